package engine

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/irontracks/liveworkout/internal/liveworkout/history"
	"github.com/irontracks/liveworkout/internal/liveworkout/pacing"
	"github.com/irontracks/liveworkout/internal/liveworkout/session"
)

type commitClient interface {
	Commit(ctx context.Context, userID string, summary history.Summary) (string, error)
}

type summaryRepo interface {
	Insert(ctx context.Context, userID string, summary history.Summary, completedAt time.Time) (string, error)
}

// Committer persists a finished session's summary: the primary HTTP commit
// first, and on any failure a direct durable insert. Only when both fail is
// the finish aborted and the session kept alive.
type Committer struct {
	client commitClient
	repo   summaryRepo

	OnFallback func()
}

func NewCommitter(client commitClient, repo summaryRepo) *Committer {
	return &Committer{
		client: client,
		repo:   repo,
	}
}

func (c *Committer) Commit(ctx context.Context, userID string, summary history.Summary, completedAt time.Time) (string, error) {
	savedID, primaryErr := c.client.Commit(ctx, userID, summary)
	if primaryErr == nil {
		return savedID, nil
	}
	log.Warnf("finish commit for user %s failed, falling back to direct insert: %s", userID, primaryErr)
	if c.OnFallback != nil {
		c.OnFallback()
	}

	savedID, fallbackErr := c.repo.Insert(ctx, userID, summary, completedAt)
	if fallbackErr == nil {
		return savedID, nil
	}
	return "", multierr.Combine(
		fmt.Errorf("primary commit: %w", primaryErr),
		fmt.Errorf("fallback insert: %w", fallbackErr),
	)
}

// Finish ends the session: bank the last exercise's time, build the summary,
// persist it, then tear the live state down everywhere. A failed persist
// leaves the session untouched so nothing is lost.
func (e *Engine) Finish(ctx context.Context, postCheckin map[string]string) (savedID string, err error) {
	doErr := e.do(func() {
		if postCheckin != nil {
			e.store.Mutate(func(cur *session.Session) *session.Session {
				if cur != nil {
					cur.UI.PostCheckin = postCheckin
				}
				return cur
			})
		}
		savedID, err = e.finish(ctx)
	})
	if doErr != nil {
		return "", doErr
	}
	return savedID, err
}

// finish runs on the loop.
func (e *Engine) finish(ctx context.Context) (string, error) {
	snap := e.store.Snapshot()
	if snap == nil {
		return "", ErrNoActiveSession
	}

	now := e.NowFunc()
	bankDuration(snap, now)

	summary, err := e.buildSummary(ctx, snap, now)
	if err != nil {
		return "", err
	}

	savedID, err := e.committer.Commit(ctx, e.userID, summary, now)
	if err != nil {
		log.Errorf("finish for user %s: commit failed on both paths, keeping session: %s", e.userID, err)
		return "", err
	}

	wasHost := e.teamHost
	e.teardown(ctx)

	if snap.TeamSessionID != "" && wasHost {
		if err := e.teamRepo.MarkFinished(ctx, snap.TeamSessionID, now); err != nil {
			log.Warnf("finish for user %s: mark team session %s finished: %s", e.userID, snap.TeamSessionID, err)
		}
	}

	if e.instr != nil {
		e.instr.CounterSessionsFinished.Inc()
		e.instr.HistSessionDuration.Observe(now.Sub(snap.StartedAt).Seconds())
	}
	log.Debugf("session finished for user %s, saved as %s", e.userID, savedID)
	return savedID, nil
}

func (e *Engine) buildSummary(ctx context.Context, snap *session.Session, now time.Time) (history.Summary, error) {
	realTotal := 0
	for _, d := range snap.UI.PerExerciseDurations {
		realTotal += d
	}

	execTotal := executionSeconds(snap)
	restTotal := realTotal - execTotal
	if restTotal < 0 {
		restTotal = 0
	}

	summary := history.Summary{
		WorkoutTitle:          workoutTitle(snap),
		Date:                  snap.StartedAt,
		OriginWorkoutID:       snap.Workout.ID,
		Exercises:             snap.Workout.Exercises,
		Logs:                  snap.Logs,
		PerExerciseDurations:  snap.UI.PerExerciseDurations,
		RealTotalTime:         realTotal,
		TotalTime:             pacing.EstimateWorkoutSeconds(snap.Workout.Exercises),
		ExecutionTotalSeconds: execTotal,
		RestTotalSeconds:      restTotal,
		PreCheckin:            snap.UI.PreCheckin,
		PostCheckin:           snap.UI.PostCheckin,
	}

	if snap.TeamSessionID != "" {
		count, err := e.teamRepo.ParticipantsCount(ctx, snap.TeamSessionID)
		if err != nil {
			log.Warnf("finish for user %s: participants count for %s: %s", e.userID, snap.TeamSessionID, err)
		}
		// a team block in the history only makes sense if anyone else showed up
		if count > 1 {
			summary.Team = &history.TeamMeta{
				TeamSessionID: snap.TeamSessionID,
				HostName:      snap.HostName,
				Participants:  count,
			}
		}
	}

	return summary, nil
}

func workoutTitle(snap *session.Session) string {
	if snap.Workout.Title != "" {
		return snap.Workout.Title
	}
	return "Treino"
}

// executionSeconds estimates the time spent under load from the completed
// set logs: reps actually performed times the cadence, plus the fixed
// per-set overhead.
func executionSeconds(snap *session.Session) int {
	total := 0
	for _, ex := range snap.Workout.Exercises {
		perRep := pacing.CadenceSecondsPerRep(ex.Cadence)
		for setIdx := 0; setIdx < ex.SetsCount; setIdx++ {
			l, ok := snap.Logs[session.LogKey(ex.PerformedExerciseID, setIdx)]
			if !ok || !l.Done {
				continue
			}
			reps := 0
			switch {
			case l.Advanced != nil && l.Advanced.TotalReps() > 0:
				reps = l.Advanced.TotalReps()
			case l.Reps != nil:
				reps = *l.Reps
			default:
				reps = pacing.TargetReps(ex)
			}
			total += reps * perRep
		}
	}
	return total
}
