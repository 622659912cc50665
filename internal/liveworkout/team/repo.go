package team

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/irontracks/liveworkout/internal/telemetry/tracing"
	"github.com/irontracks/liveworkout/pkg"
)

var (
	ErrSessionNotFound = errors.New("team session not found")
	ErrSessionExists   = errors.New("team session id already taken")
)

type Session struct {
	ID         string     `json:"id"`
	HostUserID string     `json:"hostUserId"`
	HostName   string     `json:"hostName"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Create(ctx context.Context, ts Session) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.teamsession.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("team.session.id", ts.ID))

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO team_session (id, host_user_id, host_name, status, created_at)
			VALUES ($1, $2, $3, 'active', $4);`,
		ts.ID, ts.HostUserID, ts.HostName, ts.CreatedAt,
	)
	if pkg.IsUniqueViolationError(err) {
		return ErrSessionExists
	}
	return err
}

func (r *Repo) Join(ctx context.Context, teamSessionID, userID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.teamsession.join")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("team.session.id", teamSessionID))
	span.SetAttributes(attribute.String("user.id", userID))

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO team_session_participant (team_session_id, user_id, joined_at)
			VALUES ($1, $2, now())
			ON CONFLICT (team_session_id, user_id) DO NOTHING;`,
		teamSessionID, userID,
	)
	if pkg.IsForeignKeyViolationError(err) {
		return ErrSessionNotFound
	}
	return err
}

func (r *Repo) ParticipantsCount(ctx context.Context, teamSessionID string) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.teamsession.participantscount")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("team.session.id", teamSessionID))

	rows, err := r.db.Query(
		ctx,
		`SELECT COUNT(*) FROM team_session_participant WHERE team_session_id = $1;`,
		teamSessionID,
	)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return 0, err
	}

	if rows.Next() {
		var count int
		if err := rows.Scan(&count); err == nil {
			return count, nil
		}
	}

	return 0, errors.New("unexpected error, failed to get participants count")
}

// MarkFinished closes the team session; only the host's finish does this.
func (r *Repo) MarkFinished(ctx context.Context, teamSessionID string, finishedAt time.Time) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.teamsession.markfinished")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("team.session.id", teamSessionID))

	tag, err := r.db.Exec(
		ctx,
		`UPDATE team_session SET status = 'finished', finished_at = $1 WHERE id = $2;`,
		finishedAt, teamSessionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}
