// Package search is the exercise lookup used by mid-session swap and add.
// It is a read-only data source: a catalog table fronted by a small
// in-process cache, since the swap dialog fires the same query repeatedly
// while the user types.
package search

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/coocood/freecache"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/irontracks/liveworkout/internal/telemetry/tracing"
)

const (
	cacheSizeBytes  = 1024 * 1024
	cacheTTLSeconds = 30
	maxResults      = 20
)

type Candidate struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	VideoURL string `json:"videoUrl,omitempty"`
}

type Searcher interface {
	Search(ctx context.Context, query string) ([]Candidate, error)
}

type Repo struct {
	db    *pgxpool.Pool
	cache *freecache.Cache
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db:    db,
		cache: freecache.NewCache(cacheSizeBytes),
	}
}

func (r *Repo) Search(ctx context.Context, query string) (_ []Candidate, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercisesearch.search")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	query = strings.TrimSpace(strings.ToLower(query))
	span.SetAttributes(attribute.String("query", query))
	if query == "" {
		return []Candidate{}, nil
	}

	cacheKey := []byte("q:" + query)
	if cached, err := r.cache.Get(cacheKey); err == nil {
		var candidates []Candidate
		if err := json.Unmarshal(cached, &candidates); err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return candidates, nil
		}
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT id, name, COALESCE(video_url, '')
			FROM exercise_catalog
			WHERE LOWER(name) LIKE '%' || $1 || '%'
			ORDER BY name
			LIMIT $2;`,
		query, maxResults,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0)
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.Name, &c.VideoURL); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}

	if payload, err := json.Marshal(candidates); err == nil {
		if err := r.cache.Set(cacheKey, payload, cacheTTLSeconds); err != nil {
			log.Tracef("exercise search: cache set: %s", err)
		}
	}

	return candidates, nil
}
