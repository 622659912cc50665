package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/irontracks/liveworkout/internal/telemetry/tracing"
)

// Repo is the fallback commit path: a direct insert of the denormalized
// history row, with the whole summary serialized into notes.
type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Insert(ctx context.Context, userID string, summary Summary, completedAt time.Time) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouthistory.insert")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	notes, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}

	name := summary.WorkoutTitle
	if name == "" {
		name = "Treino"
	}

	rows, err := r.db.Query(
		ctx,
		`INSERT INTO workout (user_id, name, date, completed_at, is_template, notes)
			VALUES ($1, $2, $3, $4, FALSE, $5)
			RETURNING id;`,
		userID, name, summary.Date, completedAt, notes,
	)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return "", err
	}

	if !rows.Next() {
		return "", errors.New("unexpected error [no rows next]")
	}

	var id string
	if err := rows.Scan(&id); err != nil {
		return "", fmt.Errorf("rows scan: %w", err)
	}

	span.SetAttributes(attribute.String("workout.id", id))
	return id, nil
}
