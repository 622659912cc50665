// Package engine drives one user's live workout session: a single goroutine
// per user serializes every operation (set logs, timers, navigation, team
// patches, remote change events), so no session mutation ever races another.
// Persistence is write-through and debounced on two layers, a fast local
// redis snapshot and a slower remote record enabling cross-device resume.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"github.com/irontracks/liveworkout/internal/liveworkout/localcache"
	"github.com/irontracks/liveworkout/internal/liveworkout/remote"
	"github.com/irontracks/liveworkout/internal/liveworkout/session"
	"github.com/irontracks/liveworkout/internal/liveworkout/store"
	"github.com/irontracks/liveworkout/internal/liveworkout/team"
	"github.com/irontracks/liveworkout/internal/metrics"
	"github.com/irontracks/liveworkout/pkg"
)

var (
	ErrNoActiveSession = errors.New("no active session")
	ErrSessionActive   = errors.New("a session is already active")
)

const (
	// after finishing or abandoning, remote DELETE events are ignored for
	// this long; they are the tail of our own teardown arriving late
	deleteSuppressionWindow = 8 * time.Second

	opTimeout = 10 * time.Second
)

type sessionRecordRepo interface {
	Get(ctx context.Context, userID string) (*remote.Record, error)
	Upsert(ctx context.Context, rec remote.Record, origin string) error
	Delete(ctx context.Context, userID, origin string) error
}

type teamSessionRepo interface {
	Create(ctx context.Context, ts team.Session) error
	Join(ctx context.Context, teamSessionID, userID string) error
	ParticipantsCount(ctx context.Context, teamSessionID string) (int, error)
	MarkFinished(ctx context.Context, teamSessionID string, finishedAt time.Time) error
}

type Deps struct {
	Redis        *redis.Client
	Cache        *localcache.Cache
	RemoteRepo   *remote.Repo
	TeamRepo     *team.Repo
	Committer    *Committer
	Metrics      *metrics.Manager
	Notice       remote.NoticeFunc
	SyncDebounce time.Duration
}

// Engine is the per-user session orchestrator. All exported operations are
// safe for concurrent use; internally they are funneled through one loop.
type Engine struct {
	userID string
	// origin identifies this engine instance on the change feed, so it can
	// tell its own write echoes from other devices' changes
	origin string

	store    *store.Store
	cache    *localcache.Cache
	repo     sessionRecordRepo
	syncer   *remote.Syncer
	listener *remote.Listener
	teamRepo teamSessionRepo
	rdb      *redis.Client

	committer *Committer
	instr     *metrics.Manager
	notice    remote.NoticeFunc

	commands chan func()
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}

	// loop-owned state, touched only from run()
	teamChannel         *team.Channel
	teamHost            bool
	adopting            bool
	lastSavedAt         time.Time
	suppressDeleteUntil time.Time

	NowFunc        func() time.Time
	RandStringFunc func() string
}

func New(userID string, deps Deps) *Engine {
	e := newEngine(userID, deps.Cache, deps.RemoteRepo, deps.TeamRepo, deps)
	e.listener = remote.NewListener(deps.Redis, userID, e.origin, e.enqueueChangeEvent)
	e.listener.Start(e.ctx)
	return e
}

// newEngine wires everything but the change-feed listener and starts the
// loop. The repos come in separately so tests can substitute them.
func newEngine(userID string, cache *localcache.Cache, repo sessionRecordRepo, teamRepo teamSessionRepo, deps Deps) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	notice := onceNotice(deps.Notice)
	e := &Engine{
		userID:    userID,
		origin:    randString(),
		store:     store.New(),
		cache:     cache,
		repo:      repo,
		teamRepo:  teamRepo,
		rdb:       deps.Redis,
		committer: deps.Committer,
		instr:     deps.Metrics,
		notice:    notice,
		commands:  make(chan func()),
		ctx:       ctx,
		cancel:    cancel,
		loopDone:  make(chan struct{}),

		NowFunc:        time.Now,
		RandStringFunc: randString,
	}

	e.syncer = remote.NewSyncer(repo, userID, e.origin, deps.SyncDebounce, notice)

	// every installed snapshot flows into both persistence layers, except
	// when we are adopting a remote one (writing it back would ping-pong
	// between devices)
	e.store.Subscribe(func(snap *session.Session) {
		e.cache.ScheduleSave(userID, snap)
		if e.adopting {
			return
		}
		e.lastSavedAt = e.NowFunc()
		e.syncer.Schedule(snap)
		if e.instr != nil {
			e.instr.CounterRemoteSyncWrites.Inc()
		}
	})

	go e.run()
	return e
}

// onceNotice delivers at most one notice; the unavailable-sync notice is
// shown once per session regardless of which path hit the missing table.
func onceNotice(f remote.NoticeFunc) remote.NoticeFunc {
	if f == nil {
		return nil
	}
	var once sync.Once
	return func(text string) {
		once.Do(func() {
			f(text)
		})
	}
}

func randString() string {
	s, err := pkg.GenerateRandomString(16)
	if err != nil {
		// crypto/rand failing is unrecoverable anyway
		log.Errorf("generate random string: %s", err)
		return time.Now().Format("20060102150405.000000000")
	}
	return s
}

func (e *Engine) run() {
	defer close(e.loopDone)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case cmd := <-e.commands:
			cmd()
		case <-ticker.C:
			e.clearExpiredTimer()
		}
	}
}

// do runs fn on the engine loop and waits for it.
func (e *Engine) do(fn func()) error {
	done := make(chan struct{})
	select {
	case e.commands <- func() {
		fn()
		close(done)
	}:
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
}

// enqueue posts fn to the loop without waiting, for feed callbacks that must
// not block their consumer goroutine.
func (e *Engine) enqueue(fn func()) {
	go func() {
		select {
		case e.commands <- fn:
		case <-e.ctx.Done():
		}
	}()
}

type StartOptions struct {
	TeamSessionID string
	TeamHost      bool
	HostName      string
	PreCheckin    map[string]string
}

// Start begins a new session from the given workout. Exactly one session
// can be live per user; starting over an active one is rejected.
func (e *Engine) Start(ctx context.Context, w session.Workout, opts StartOptions) error {
	var opErr error
	if err := e.do(func() {
		opErr = e.start(ctx, w, opts)
	}); err != nil {
		return err
	}
	return opErr
}

func (e *Engine) start(ctx context.Context, w session.Workout, opts StartOptions) error {
	if e.store.Active() {
		return ErrSessionActive
	}
	if len(w.Exercises) == 0 {
		return session.ErrNoExercises
	}

	for i := range w.Exercises {
		if w.Exercises[i].PerformedExerciseID == "" {
			w.Exercises[i].PerformedExerciseID = e.RandStringFunc()
		}
	}

	now := e.NowFunc()
	snap := &session.Session{
		Workout:   w,
		Logs:      make(map[string]session.SetLog),
		StartedAt: now,
		UI: session.UIState{
			CurrentExerciseIndex:   0,
			ExerciseStartTimestamp: now,
			PerExerciseDurations:   make([]int, len(w.Exercises)),
			PreCheckin:             opts.PreCheckin,
		},
		TeamSessionID: opts.TeamSessionID,
		HostName:      opts.HostName,
	}

	if opts.TeamSessionID != "" {
		if err := e.joinTeam(ctx, opts, now); err != nil {
			return err
		}
	}

	e.store.Replace(snap)
	e.cache.SaveView(ctx, e.userID, "active")
	if e.instr != nil {
		e.instr.CounterSessionsStarted.Inc()
		e.instr.GaugeActiveSessions.Inc()
	}

	log.Debugf("session started for user %s: %q, %d exercises", e.userID, w.Title, len(w.Exercises))
	return nil
}

func (e *Engine) joinTeam(ctx context.Context, opts StartOptions, now time.Time) error {
	if opts.TeamHost {
		if err := e.teamRepo.Create(ctx, team.Session{
			ID:         opts.TeamSessionID,
			HostUserID: e.userID,
			HostName:   opts.HostName,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
	}
	if err := e.teamRepo.Join(ctx, opts.TeamSessionID, e.userID); err != nil {
		return err
	}
	e.teamHost = opts.TeamHost
	e.openTeamChannel(opts.TeamSessionID)
	return nil
}

func (e *Engine) openTeamChannel(teamSessionID string) {
	if e.teamChannel != nil {
		return
	}
	e.teamChannel = team.NewChannel(e.rdb, teamSessionID, e.origin, e.enqueueTeamPatch)
	e.teamChannel.Start(e.ctx)
}

func (e *Engine) closeTeamChannel() {
	if e.teamChannel == nil {
		return
	}
	e.teamChannel.Stop()
	e.teamChannel = nil
	e.teamHost = false
}

// Snapshot returns a deep copy of the current session, or nil.
func (e *Engine) Snapshot() *session.Session {
	var snap *session.Session
	if err := e.do(func() {
		snap = e.store.Snapshot()
	}); err != nil {
		return nil
	}
	return snap
}

// UpdateSetLog records (or overwrites) one set's log.
func (e *Engine) UpdateSetLog(performedExerciseID string, setIdx int, l session.SetLog) error {
	var opErr error
	if err := e.do(func() {
		if !e.store.Active() {
			opErr = ErrNoActiveSession
			return
		}
		e.store.Mutate(func(cur *session.Session) *session.Session {
			cur.Logs[session.LogKey(performedExerciseID, setIdx)] = l
			return cur
		})
	}); err != nil {
		return err
	}
	return opErr
}

// MarkSetDone records the set as completed and, when the exercise has a rest
// time configured, arms the rest countdown.
func (e *Engine) MarkSetDone(performedExerciseID string, setIdx int, l session.SetLog) error {
	var opErr error
	if err := e.do(func() {
		if !e.store.Active() {
			opErr = ErrNoActiveSession
			return
		}
		l.Done = true
		now := e.NowFunc()
		e.store.Mutate(func(cur *session.Session) *session.Session {
			cur.Logs[session.LogKey(performedExerciseID, setIdx)] = l
			if rest := restSecondsOf(cur, performedExerciseID); rest > 0 {
				target := now.Add(time.Duration(rest) * time.Second)
				cur.TimerTargetTime = &target
			}
			return cur
		})
	}); err != nil {
		return err
	}
	return opErr
}

func restSecondsOf(s *session.Session, performedExerciseID string) int {
	for _, ex := range s.Workout.Exercises {
		if ex.PerformedExerciseID == performedExerciseID {
			return ex.RestTimeSeconds
		}
	}
	return 0
}

// StartRestTimer arms the rest countdown explicitly.
func (e *Engine) StartRestTimer(seconds int) error {
	var opErr error
	if err := e.do(func() {
		if !e.store.Active() {
			opErr = ErrNoActiveSession
			return
		}
		if seconds <= 0 {
			return
		}
		target := e.NowFunc().Add(time.Duration(seconds) * time.Second)
		e.store.Mutate(func(cur *session.Session) *session.Session {
			cur.TimerTargetTime = &target
			return cur
		})
	}); err != nil {
		return err
	}
	return opErr
}

// CloseTimer dismisses the rest countdown.
func (e *Engine) CloseTimer() error {
	var opErr error
	if err := e.do(func() {
		if !e.store.Active() {
			opErr = ErrNoActiveSession
			return
		}
		e.store.Mutate(func(cur *session.Session) *session.Session {
			cur.TimerTargetTime = nil
			return cur
		})
	}); err != nil {
		return err
	}
	return opErr
}

// clearExpiredTimer runs on every loop tick; a rest timer whose target time
// passed simply vanishes from the state.
func (e *Engine) clearExpiredTimer() {
	snap := e.store.Snapshot()
	if snap == nil || snap.TimerTargetTime == nil {
		return
	}
	if e.NowFunc().Before(*snap.TimerTargetTime) {
		return
	}
	e.store.Mutate(func(cur *session.Session) *session.Session {
		cur.TimerTargetTime = nil
		return cur
	})
}

// SetPostCheckin stores the end-of-workout answers, picked up by Finish.
func (e *Engine) SetPostCheckin(answers map[string]string) error {
	var opErr error
	if err := e.do(func() {
		if !e.store.Active() {
			opErr = ErrNoActiveSession
			return
		}
		e.store.Mutate(func(cur *session.Session) *session.Session {
			cur.UI.PostCheckin = answers
			return cur
		})
	}); err != nil {
		return err
	}
	return opErr
}

// NextGroup navigates to the next exercise group, banking the time spent on
// the current exercise. From the last group it runs the finish pipeline
// instead and returns the saved workout id.
func (e *Engine) NextGroup(ctx context.Context) (finished bool, savedID string, err error) {
	var opErr error
	if err := e.do(func() {
		finished, savedID, opErr = e.nextGroup(ctx)
	}); err != nil {
		return false, "", err
	}
	return finished, savedID, opErr
}

func (e *Engine) nextGroup(ctx context.Context) (bool, string, error) {
	snap := e.store.Snapshot()
	if snap == nil {
		return false, "", ErrNoActiveSession
	}

	starts := session.GroupStarts(snap.Workout.Exercises)
	total := len(snap.Workout.Exercises)
	current := session.AlignedGroupStart(starts, snap.UI.CurrentExerciseIndex, total)

	next, ok := session.NextGroupStart(starts, current)
	if !ok {
		savedID, err := e.finish(ctx)
		return err == nil, savedID, err
	}

	now := e.NowFunc()
	e.store.Mutate(func(cur *session.Session) *session.Session {
		bankDuration(cur, now)
		cur.UI.CurrentExerciseIndex = next
		cur.UI.ExerciseStartTimestamp = now
		cur.TimerTargetTime = nil
		return cur
	})
	return false, "", nil
}

// PrevGroup navigates back one group; a no-op at the first.
func (e *Engine) PrevGroup() error {
	var opErr error
	if err := e.do(func() {
		snap := e.store.Snapshot()
		if snap == nil {
			opErr = ErrNoActiveSession
			return
		}

		starts := session.GroupStarts(snap.Workout.Exercises)
		total := len(snap.Workout.Exercises)
		current := session.AlignedGroupStart(starts, snap.UI.CurrentExerciseIndex, total)
		prev := session.PrevGroupStart(starts, current)
		if prev == current {
			return
		}

		now := e.NowFunc()
		e.store.Mutate(func(cur *session.Session) *session.Session {
			bankDuration(cur, now)
			cur.UI.CurrentExerciseIndex = prev
			cur.UI.ExerciseStartTimestamp = now
			cur.TimerTargetTime = nil
			return cur
		})
	}); err != nil {
		return err
	}
	return opErr
}

// bankDuration adds the wall-clock time spent since the exercise start to
// the current exercise's slot and resets nothing; callers set the new index
// and timestamp themselves.
func bankDuration(cur *session.Session, now time.Time) {
	idx := cur.UI.CurrentExerciseIndex
	if idx < 0 || idx >= len(cur.Workout.Exercises) {
		return
	}
	for len(cur.UI.PerExerciseDurations) < len(cur.Workout.Exercises) {
		cur.UI.PerExerciseDurations = append(cur.UI.PerExerciseDurations, 0)
	}
	elapsed := int(now.Sub(cur.UI.ExerciseStartTimestamp).Seconds())
	if elapsed > 0 {
		cur.UI.PerExerciseDurations[idx] += elapsed
	}
}

// SwapExercise replaces the exercise at idx mid-session, keeping its logged
// sets, and broadcasts the change to team peers.
func (e *Engine) SwapExercise(ctx context.Context, idx int, replacement session.Exercise) error {
	var opErr error
	if err := e.do(func() {
		if !e.store.Active() {
			opErr = ErrNoActiveSession
			return
		}
		var applied session.Exercise
		e.store.Mutate(func(cur *session.Session) *session.Session {
			next := cur.SwapExercise(idx, replacement)
			if idx >= 0 && idx < len(next.Workout.Exercises) {
				applied = next.Workout.Exercises[idx]
			}
			return next
		})
		e.publishPatch(ctx, team.PatchEvent{
			Kind:     team.PatchSwap,
			Index:    idx,
			Exercise: applied,
		})
	}); err != nil {
		return err
	}
	return opErr
}

// AddExercise inserts a new exercise at idx mid-session and broadcasts the
// change to team peers.
func (e *Engine) AddExercise(ctx context.Context, idx int, ex session.Exercise) error {
	var opErr error
	if err := e.do(func() {
		if !e.store.Active() {
			opErr = ErrNoActiveSession
			return
		}
		if ex.PerformedExerciseID == "" {
			ex.PerformedExerciseID = e.RandStringFunc()
		}
		e.store.Mutate(func(cur *session.Session) *session.Session {
			return cur.AddExercise(idx, ex)
		})
		e.publishPatch(ctx, team.PatchEvent{
			Kind:     team.PatchAdd,
			Index:    idx,
			Exercise: ex,
		})
	}); err != nil {
		return err
	}
	return opErr
}

func (e *Engine) publishPatch(ctx context.Context, p team.PatchEvent) {
	if e.teamChannel == nil {
		return
	}
	p.SentAt = e.NowFunc()
	e.teamChannel.Publish(ctx, p)
	if e.instr != nil {
		e.instr.CounterTeamPatchesSent.Inc()
	}
}

func (e *Engine) enqueueTeamPatch(p team.PatchEvent) {
	e.enqueue(func() {
		e.applyTeamPatch(p)
	})
}

// applyTeamPatch applies a peer's edit locally, without re-broadcasting.
func (e *Engine) applyTeamPatch(p team.PatchEvent) {
	if !e.store.Active() {
		return
	}
	switch p.Kind {
	case team.PatchSwap:
		e.store.Mutate(func(cur *session.Session) *session.Session {
			return cur.SwapExercise(p.Index, p.Exercise)
		})
	case team.PatchAdd:
		e.store.Mutate(func(cur *session.Session) *session.Session {
			return cur.AddExercise(p.Index, p.Exercise)
		})
	default:
		return
	}
	if e.instr != nil {
		e.instr.CounterTeamPatchesApplied.Inc()
	}
	log.Debugf("team patch applied for user %s: %s at %d", e.userID, p.Kind, p.Index)
}

// Abandon discards the session everywhere without writing history.
func (e *Engine) Abandon(ctx context.Context) error {
	var opErr error
	if err := e.do(func() {
		if !e.store.Active() {
			opErr = ErrNoActiveSession
			return
		}
		e.teardown(ctx)
		if e.instr != nil {
			e.instr.CounterSessionsAbandoned.Inc()
		}
		log.Debugf("session abandoned for user %s", e.userID)
	}); err != nil {
		return err
	}
	return opErr
}

// teardown clears the session from all three layers. Runs on the loop.
func (e *Engine) teardown(ctx context.Context) {
	e.suppressDeleteUntil = e.NowFunc().Add(deleteSuppressionWindow)

	e.syncer.Stop()
	if err := e.repo.Delete(ctx, e.userID, e.origin); err != nil {
		// the row will be overwritten or deleted by the next session anyway
		log.Warnf("delete remote session record for user %s: %s", e.userID, err)
	}
	e.cache.DeleteSession(ctx, e.userID)

	e.adopting = true
	e.store.Clear()
	e.adopting = false

	e.closeTeamChannel()
	e.cache.SaveView(ctx, e.userID, "dashboard")
	if e.instr != nil {
		e.instr.GaugeActiveSessions.Dec()
	}
}

// Stop shuts the engine down without touching the session state anywhere;
// the pending local write is flushed first so nothing is lost.
func (e *Engine) Stop() {
	e.cancel()
	<-e.loopDone
	if e.listener != nil {
		e.listener.Stop()
	}
	if e.teamChannel != nil {
		e.teamChannel.Stop()
		e.teamChannel = nil
	}
	e.syncer.Stop()
	e.cache.Flush(e.userID)
}
