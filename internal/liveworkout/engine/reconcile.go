package engine

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/irontracks/liveworkout/internal/liveworkout/remote"
	"github.com/irontracks/liveworkout/internal/liveworkout/session"
)

// Resume restores the user's session after a mount or reload. The local
// cache is read first for the fast path, then the remote record exactly
// once; last write wins, with the remote adopted only when its write time is
// strictly greater than the cached snapshot's. The returned view is what the
// client should show ("active" only when a session really exists).
func (e *Engine) Resume(ctx context.Context) (view string, err error) {
	doErr := e.do(func() {
		view, err = e.resume(ctx)
	})
	if doErr != nil {
		return "", doErr
	}
	return view, err
}

func (e *Engine) resume(ctx context.Context) (string, error) {
	local, err := e.cache.ReadSession(ctx, e.userID)
	if err != nil {
		// a broken cache must not block resume, the remote read still runs
		log.Warnf("resume for user %s: read local cache: %s", e.userID, err)
		local = nil
	}

	adopted := local

	rec, err := e.repo.Get(ctx, e.userID)
	switch {
	case err == nil:
		if rec.State.IsValid() && localSavedAt(local).Before(rec.Time()) {
			adopted = rec.State.Clone()
			adopted.SavedAt = rec.Time()
			log.Debugf("resume for user %s: adopting remote snapshot from %s",
				e.userID, rec.Time().Format("15:04:05.000"))
		}
	case errors.Is(err, remote.ErrRecordNotFound):
	case errors.Is(err, remote.ErrNotProvisioned):
		if e.notice != nil {
			e.notice("Cross-device workout sync unavailable (pending migrations).")
		}
	default:
		// remote unavailable, resume from whatever the cache had
		log.Warnf("resume for user %s: read remote record: %s", e.userID, err)
	}

	if adopted == nil {
		return e.cache.ReadView(ctx, e.userID, false), nil
	}

	e.realign(adopted)
	e.lastSavedAt = adopted.SavedAt

	wasActive := e.store.Active()
	e.adopting = true
	e.store.Replace(adopted)
	e.adopting = false
	if !wasActive && e.instr != nil {
		e.instr.GaugeActiveSessions.Inc()
	}

	if adopted.TeamSessionID != "" {
		e.openTeamChannel(adopted.TeamSessionID)
	}

	return e.cache.ReadView(ctx, e.userID, true), nil
}

func localSavedAt(local *session.Session) time.Time {
	if local == nil {
		return time.Time{}
	}
	return local.SavedAt
}

// realign repairs a restored snapshot whose navigation state went stale
// while the exercise list changed on another device: the current index snaps
// back to its group start and the duration slots are padded to the list.
func (e *Engine) realign(s *session.Session) {
	starts := session.GroupStarts(s.Workout.Exercises)
	total := len(s.Workout.Exercises)
	s.UI.CurrentExerciseIndex = session.AlignedGroupStart(starts, s.UI.CurrentExerciseIndex, total)
	for len(s.UI.PerExerciseDurations) < total {
		s.UI.PerExerciseDurations = append(s.UI.PerExerciseDurations, 0)
	}
	if s.UI.ExerciseStartTimestamp.IsZero() {
		s.UI.ExerciseStartTimestamp = e.NowFunc()
	}
}

func (e *Engine) enqueueChangeEvent(ev remote.ChangeEvent) {
	e.enqueue(func() {
		e.applyChangeEvent(ev)
	})
}

// applyChangeEvent reacts to another device changing the remote record while
// this engine is live. Runs on the loop.
func (e *Engine) applyChangeEvent(ev remote.ChangeEvent) {
	switch ev.EventType {
	case remote.EventDelete:
		if e.NowFunc().Before(e.suppressDeleteUntil) {
			// our own teardown's tail arriving late
			log.Debugf("change feed for user %s: delete suppressed", e.userID)
			return
		}
		if !e.store.Active() {
			return
		}
		log.Debugf("change feed for user %s: session ended on another device", e.userID)

		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		e.cache.DeleteSession(ctx, e.userID)
		e.adopting = true
		e.store.Clear()
		e.adopting = false
		e.closeTeamChannel()
		e.cache.SaveView(ctx, e.userID, "dashboard")
		if e.instr != nil {
			e.instr.GaugeActiveSessions.Dec()
		}

	case remote.EventInsert, remote.EventUpdate:
		// ev.New is valid here, the listener normalized invalid ones away
		if !ev.New.SavedAt.After(e.lastSavedAt) {
			return
		}
		wasActive := e.store.Active()
		adopted := ev.New.Clone()
		e.realign(adopted)
		e.lastSavedAt = adopted.SavedAt
		e.adopting = true
		e.store.Replace(adopted)
		e.adopting = false
		if !wasActive && e.instr != nil {
			e.instr.GaugeActiveSessions.Inc()
		}
		if adopted.TeamSessionID != "" {
			e.openTeamChannel(adopted.TeamSessionID)
		}
	}
}
