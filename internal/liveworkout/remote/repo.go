package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/irontracks/liveworkout/internal/liveworkout/session"
	"github.com/irontracks/liveworkout/internal/telemetry/tracing"
)

var (
	ErrRecordNotFound = errors.New("active session record not found")
	// ErrNotProvisioned marks the backing table missing: the deployment has
	// pending migrations. Surfaced once per session, then suppressed.
	ErrNotProvisioned = errors.New("active session table not provisioned")
)

type Repo struct {
	db  *pgxpool.Pool
	rdb *redis.Client
}

func NewRepo(db *pgxpool.Pool, rdb *redis.Client) *Repo {
	return &Repo{
		db:  db,
		rdb: rdb,
	}
}

// Upsert writes the user's row, last write wins on the user_id key, and
// publishes an UPDATE event on the user's change feed. origin identifies
// the writing device so its own listener can drop the echo.
func (r *Repo) Upsert(ctx context.Context, rec Record, origin string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.activesession.upsert")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", rec.UserID))

	stateJson, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO active_workout_session (user_id, started_at, state, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id) DO UPDATE
				SET started_at = EXCLUDED.started_at,
					state = EXCLUDED.state,
					updated_at = EXCLUDED.updated_at;`,
		rec.UserID, rec.StartedAt, stateJson, rec.UpdatedAt,
	)
	if err != nil {
		return normalizeErr(err)
	}

	r.publish(ctx, rec.UserID, ChangeEvent{EventType: EventUpdate, New: rec.State, Origin: origin})
	return nil
}

// Get reads the user's row. ErrRecordNotFound when absent.
func (r *Repo) Get(ctx context.Context, userID string) (_ *Record, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.activesession.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	rows, err := r.db.Query(
		ctx,
		`SELECT user_id, started_at, state, updated_at
			FROM active_workout_session
			WHERE user_id = $1;`,
		userID,
	)
	if err != nil {
		return nil, normalizeErr(err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, normalizeErr(err)
	}

	if !rows.Next() {
		return nil, ErrRecordNotFound
	}

	var rec Record
	var stateBytes []byte
	if err := rows.Scan(&rec.UserID, &rec.StartedAt, &stateBytes, &rec.UpdatedAt); err != nil {
		return nil, fmt.Errorf("rows scan: %w", err)
	}

	if len(stateBytes) > 0 {
		var state session.Session
		if err := json.Unmarshal(stateBytes, &state); err != nil {
			return nil, fmt.Errorf("unmarshal session state: %w", err)
		}
		rec.State = &state
	}

	return &rec, nil
}

// Delete removes the user's row and publishes a DELETE event. Deleting an
// absent row is not an error.
func (r *Repo) Delete(ctx context.Context, userID, origin string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.activesession.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	if _, err = r.db.Exec(
		ctx,
		`DELETE FROM active_workout_session WHERE user_id = $1;`,
		userID,
	); err != nil {
		return normalizeErr(err)
	}

	r.publish(ctx, userID, ChangeEvent{EventType: EventDelete, Origin: origin})
	return nil
}

func (r *Repo) publish(ctx context.Context, userID string, event ChangeEvent) {
	if r.rdb == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Errorf("active session feed: marshal change event: %s", err)
		return
	}
	if err := r.rdb.Publish(ctx, changeChannel(userID), payload).Err(); err != nil {
		// the feed is best-effort, devices reconcile on next mount anyway
		log.Warnf("active session feed: publish for user %s: %s", userID, err)
	}
}

func normalizeErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
		return fmt.Errorf("%w: %s", ErrNotProvisioned, pgErr.Message)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "does not exist") && strings.Contains(msg, "relation") {
		return fmt.Errorf("%w: %s", ErrNotProvisioned, err)
	}
	return err
}

// NewRecord assembles the row for a snapshot, stamping savedAt and the
// server-side updated_at with the same clock reading.
func NewRecord(userID string, snap *session.Session, now time.Time) Record {
	state := snap.Clone()
	state.SavedAt = now
	return Record{
		UserID:    userID,
		StartedAt: snap.StartedAt,
		State:     state,
		UpdatedAt: now,
	}
}
