package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/irontracks/liveworkout/internal/liveworkout/history"
	"github.com/irontracks/liveworkout/internal/liveworkout/localcache"
	"github.com/irontracks/liveworkout/internal/liveworkout/remote"
	"github.com/irontracks/liveworkout/internal/liveworkout/session"
	"github.com/irontracks/liveworkout/internal/liveworkout/team"
	"github.com/irontracks/liveworkout/internal/metrics"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// INFO: https://github.com/go-redis/redis/issues/1029
		goleak.IgnoreTopFunction(
			"github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper",
		),
	)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeRecordRepo struct {
	mu      sync.Mutex
	rec     *remote.Record
	getErr  error
	upserts []remote.Record
	deletes []string
}

func (f *fakeRecordRepo) Get(_ context.Context, _ string) (*remote.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.rec == nil {
		return nil, remote.ErrRecordNotFound
	}
	return f.rec, nil
}

func (f *fakeRecordRepo) Upsert(_ context.Context, rec remote.Record, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, rec)
	return nil
}

func (f *fakeRecordRepo) Delete(_ context.Context, userID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, userID)
	return nil
}

func (f *fakeRecordRepo) deleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deletes)
}

type fakeTeamRepo struct {
	mu           sync.Mutex
	created      []team.Session
	joined       []string
	participants int
	finished     []string
}

func (f *fakeTeamRepo) Create(_ context.Context, ts team.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, ts)
	return nil
}

func (f *fakeTeamRepo) Join(_ context.Context, teamSessionID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, teamSessionID)
	return nil
}

func (f *fakeTeamRepo) ParticipantsCount(_ context.Context, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.participants, nil
}

func (f *fakeTeamRepo) MarkFinished(_ context.Context, teamSessionID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, teamSessionID)
	return nil
}

type fakeCommitClient struct {
	mu        sync.Mutex
	savedID   string
	err       error
	summaries []history.Summary
}

func (f *fakeCommitClient) Commit(_ context.Context, _ string, summary history.Summary) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.summaries = append(f.summaries, summary)
	return f.savedID, nil
}

type fakeSummaryRepo struct {
	mu      sync.Mutex
	savedID string
	err     error
	inserts []history.Summary
}

func (f *fakeSummaryRepo) Insert(_ context.Context, _ string, summary history.Summary, _ time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.inserts = append(f.inserts, summary)
	return f.savedID, nil
}

type engineFixture struct {
	engine    *Engine
	clock     *fakeClock
	repo      *fakeRecordRepo
	teamRepo  *fakeTeamRepo
	client    *fakeCommitClient
	inserts   *fakeSummaryRepo
	notices   []string
	redisMock redismock.ClientMock
}

func newTestEngine(t *testing.T) *engineFixture {
	t.Helper()

	rdb, rmock := redismock.NewClientMock()
	t.Cleanup(func() { _ = rdb.Close() })
	rmock.MatchExpectationsInOrder(false)

	clock := &fakeClock{now: time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)}
	repo := &fakeRecordRepo{}
	teamRepo := &fakeTeamRepo{participants: 1}
	client := &fakeCommitClient{savedID: "hist-1"}
	inserts := &fakeSummaryRepo{savedID: "hist-fallback"}

	cache := localcache.New(rdb, time.Hour)
	cache.NowFunc = clock.Now

	f := &engineFixture{
		clock:     clock,
		repo:      repo,
		teamRepo:  teamRepo,
		client:    client,
		inserts:   inserts,
		redisMock: rmock,
	}

	e := newEngine("u1", cache, repo, teamRepo, Deps{
		Committer:    NewCommitter(client, inserts),
		Metrics:      metrics.NewTestManager(),
		SyncDebounce: time.Hour,
		Notice:       func(text string) { f.notices = append(f.notices, text) },
	})
	e.NowFunc = clock.Now

	nextID := 0
	e.RandStringFunc = func() string {
		nextID++
		return fmt.Sprintf("pe-%d", nextID)
	}

	t.Cleanup(e.Stop)
	f.engine = e
	return f
}

func testWorkout() session.Workout {
	return session.Workout{
		ID:    "w1",
		Title: "Upper A",
		Exercises: []session.Exercise{
			{Name: "Bench Press", SetsCount: 3, RepsTarget: "8", RestTimeSeconds: 90, Cadence: "2020", Method: session.NormalMethod()},
			{Name: "Incline Press", SetsCount: 3, RepsTarget: "10", Method: session.BiSetMethod()},
			{Name: "Cable Fly", SetsCount: 3, RepsTarget: "12", Method: session.NormalMethod()},
		},
	}
}

func TestEngine_Start(t *testing.T) {
	f := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, f.engine.Start(ctx, testWorkout(), StartOptions{
		PreCheckin: map[string]string{"mood": "fresh"},
	}))

	snap := f.engine.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, "Upper A", snap.Workout.Title)
	assert.Equal(t, f.clock.Now(), snap.StartedAt)
	assert.Equal(t, []int{0, 0, 0}, snap.UI.PerExerciseDurations)
	assert.Equal(t, "fresh", snap.UI.PreCheckin["mood"])
	for _, ex := range snap.Workout.Exercises {
		assert.NotEmpty(t, ex.PerformedExerciseID)
	}

	// one live session per user
	err := f.engine.Start(ctx, testWorkout(), StartOptions{})
	assert.ErrorIs(t, err, ErrSessionActive)
}

func TestEngine_Start_NoExercises(t *testing.T) {
	f := newTestEngine(t)
	err := f.engine.Start(context.Background(), session.Workout{Title: "empty"}, StartOptions{})
	assert.ErrorIs(t, err, session.ErrNoExercises)
	assert.Nil(t, f.engine.Snapshot())
}

func TestEngine_SetLogs(t *testing.T) {
	f := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Start(ctx, testWorkout(), StartOptions{}))

	peID := f.engine.Snapshot().Workout.Exercises[0].PerformedExerciseID
	weight := 80.0
	reps := 8

	require.NoError(t, f.engine.UpdateSetLog(peID, 0, session.SetLog{Weight: &weight, Reps: &reps}))
	snap := f.engine.Snapshot()
	l, ok := snap.Logs[session.LogKey(peID, 0)]
	require.True(t, ok)
	assert.False(t, l.Done)
	assert.Nil(t, snap.TimerTargetTime)

	// marking done arms the exercise's configured rest countdown
	require.NoError(t, f.engine.MarkSetDone(peID, 0, session.SetLog{Weight: &weight, Reps: &reps}))
	snap = f.engine.Snapshot()
	l = snap.Logs[session.LogKey(peID, 0)]
	assert.True(t, l.Done)
	require.NotNil(t, snap.TimerTargetTime)
	assert.Equal(t, f.clock.Now().Add(90*time.Second), *snap.TimerTargetTime)

	require.NoError(t, f.engine.CloseTimer())
	assert.Nil(t, f.engine.Snapshot().TimerTargetTime)
}

func TestEngine_SetLog_NoSession(t *testing.T) {
	f := newTestEngine(t)
	err := f.engine.UpdateSetLog("pe-x", 0, session.SetLog{})
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestEngine_RestTimerExpires(t *testing.T) {
	f := newTestEngine(t)
	require.NoError(t, f.engine.Start(context.Background(), testWorkout(), StartOptions{}))

	require.NoError(t, f.engine.StartRestTimer(30))
	require.NotNil(t, f.engine.Snapshot().TimerTargetTime)

	f.clock.Advance(31 * time.Second)
	require.NoError(t, f.engine.do(f.engine.clearExpiredTimer))
	assert.Nil(t, f.engine.Snapshot().TimerTargetTime)
}

func TestEngine_Navigation(t *testing.T) {
	f := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Start(ctx, testWorkout(), StartOptions{}))

	// groups: [0] and the bi-set pair [1,2]
	f.clock.Advance(60 * time.Second)
	finished, _, err := f.engine.NextGroup(ctx)
	require.NoError(t, err)
	assert.False(t, finished)

	snap := f.engine.Snapshot()
	assert.Equal(t, 1, snap.UI.CurrentExerciseIndex)
	assert.Equal(t, []int{60, 0, 0}, snap.UI.PerExerciseDurations)
	assert.Equal(t, f.clock.Now(), snap.UI.ExerciseStartTimestamp)

	f.clock.Advance(30 * time.Second)
	require.NoError(t, f.engine.PrevGroup())
	snap = f.engine.Snapshot()
	assert.Equal(t, 0, snap.UI.CurrentExerciseIndex)
	assert.Equal(t, []int{60, 30, 0}, snap.UI.PerExerciseDurations)

	// already at the first group, nothing moves and nothing is banked twice
	require.NoError(t, f.engine.PrevGroup())
	assert.Equal(t, 0, f.engine.Snapshot().UI.CurrentExerciseIndex)
}

func TestEngine_NextGroup_FromLastGroupFinishes(t *testing.T) {
	f := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Start(ctx, testWorkout(), StartOptions{}))

	_, _, err := f.engine.NextGroup(ctx)
	require.NoError(t, err)

	finished, savedID, err := f.engine.NextGroup(ctx)
	require.NoError(t, err)
	assert.True(t, finished)
	assert.Equal(t, "hist-1", savedID)

	assert.Nil(t, f.engine.Snapshot())
	require.Len(t, f.client.summaries, 1)
	assert.Equal(t, 1, f.repo.deleteCount())
}

func TestEngine_Finish_Summary(t *testing.T) {
	f := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Start(ctx, testWorkout(), StartOptions{}))

	peID := f.engine.Snapshot().Workout.Exercises[0].PerformedExerciseID
	reps := 8
	require.NoError(t, f.engine.MarkSetDone(peID, 0, session.SetLog{Reps: &reps}))

	f.clock.Advance(60 * time.Second)
	_, _, err := f.engine.NextGroup(ctx)
	require.NoError(t, err)

	f.clock.Advance(90 * time.Second)
	savedID, err := f.engine.Finish(ctx, map[string]string{"feeling": "spent"})
	require.NoError(t, err)
	assert.Equal(t, "hist-1", savedID)
	assert.Nil(t, f.engine.Snapshot())

	require.Len(t, f.client.summaries, 1)
	summary := f.client.summaries[0]
	assert.Equal(t, "Upper A", summary.WorkoutTitle)
	assert.Equal(t, []int{60, 90, 0}, summary.PerExerciseDurations)
	assert.Equal(t, 150, summary.RealTotalTime)
	// one done set of 8 reps at 4s per rep
	assert.Equal(t, 32, summary.ExecutionTotalSeconds)
	assert.Equal(t, 118, summary.RestTotalSeconds)
	assert.Equal(t, "spent", summary.PostCheckin["feeling"])
	assert.Nil(t, summary.Team)
}

func TestEngine_Finish_NoSession(t *testing.T) {
	f := newTestEngine(t)
	_, err := f.engine.Finish(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestEngine_Finish_TeamSession(t *testing.T) {
	f := newTestEngine(t)
	ctx := context.Background()
	f.teamRepo.participants = 3

	now := f.clock.Now()
	require.NoError(t, f.engine.do(func() {
		f.engine.teamHost = true
		f.engine.store.Replace(&session.Session{
			Workout:       testWorkout(),
			Logs:          map[string]session.SetLog{},
			StartedAt:     now,
			TeamSessionID: "ts-1",
			HostName:      "Coach",
			UI: session.UIState{
				ExerciseStartTimestamp: now,
				PerExerciseDurations:   []int{0, 0, 0},
			},
		})
	}))

	savedID, err := f.engine.Finish(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "hist-1", savedID)

	require.Len(t, f.client.summaries, 1)
	summary := f.client.summaries[0]
	require.NotNil(t, summary.Team)
	assert.Equal(t, "ts-1", summary.Team.TeamSessionID)
	assert.Equal(t, "Coach", summary.Team.HostName)
	assert.Equal(t, 3, summary.Team.Participants)

	// the host closes the team session
	assert.Equal(t, []string{"ts-1"}, f.teamRepo.finished)
}

func TestEngine_Finish_SoloTeamSessionDropsTeamBlock(t *testing.T) {
	f := newTestEngine(t)
	ctx := context.Background()
	f.teamRepo.participants = 1

	now := f.clock.Now()
	require.NoError(t, f.engine.do(func() {
		f.engine.store.Replace(&session.Session{
			Workout:       testWorkout(),
			Logs:          map[string]session.SetLog{},
			StartedAt:     now,
			TeamSessionID: "ts-1",
			UI: session.UIState{
				ExerciseStartTimestamp: now,
				PerExerciseDurations:   []int{0, 0, 0},
			},
		})
	}))

	_, err := f.engine.Finish(ctx, nil)
	require.NoError(t, err)

	require.Len(t, f.client.summaries, 1)
	assert.Nil(t, f.client.summaries[0].Team)
	// not the host, the team session stays open
	assert.Empty(t, f.teamRepo.finished)
}

func TestCommitter_FallbackInsert(t *testing.T) {
	f := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Start(ctx, testWorkout(), StartOptions{}))

	f.client.err = errors.New("endpoint down")
	fallbacks := 0
	f.engine.committer.OnFallback = func() { fallbacks++ }

	savedID, err := f.engine.Finish(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "hist-fallback", savedID)
	assert.Equal(t, 1, fallbacks)
	require.Len(t, f.inserts.inserts, 1)
	assert.Nil(t, f.engine.Snapshot())
}

func TestCommitter_BothPathsFailKeepsSession(t *testing.T) {
	f := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Start(ctx, testWorkout(), StartOptions{}))

	f.client.err = errors.New("endpoint down")
	f.inserts.err = errors.New("db down")

	_, err := f.engine.Finish(ctx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary commit")
	assert.Contains(t, err.Error(), "fallback insert")

	// nothing was lost, the user can retry
	assert.NotNil(t, f.engine.Snapshot())
	assert.Zero(t, f.repo.deleteCount())
}

func TestEngine_Abandon(t *testing.T) {
	f := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Start(ctx, testWorkout(), StartOptions{}))

	require.NoError(t, f.engine.Abandon(ctx))
	assert.Nil(t, f.engine.Snapshot())
	assert.Equal(t, 1, f.repo.deleteCount())
	assert.Empty(t, f.client.summaries)

	assert.ErrorIs(t, f.engine.Abandon(ctx), ErrNoActiveSession)
}

func TestEngine_AddAndSwapExercise(t *testing.T) {
	f := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Start(ctx, testWorkout(), StartOptions{}))

	require.NoError(t, f.engine.AddExercise(ctx, 1, session.Exercise{
		Name:      "Lateral Raise",
		SetsCount: 3,
		Method:    session.NormalMethod(),
	}))
	snap := f.engine.Snapshot()
	require.Len(t, snap.Workout.Exercises, 4)
	assert.Equal(t, "Lateral Raise", snap.Workout.Exercises[1].Name)
	assert.NotEmpty(t, snap.Workout.Exercises[1].PerformedExerciseID)
	assert.Len(t, snap.UI.PerExerciseDurations, 4)

	originalPeID := snap.Workout.Exercises[0].PerformedExerciseID
	require.NoError(t, f.engine.SwapExercise(ctx, 0, session.Exercise{
		Name:      "Dumbbell Press",
		SetsCount: 3,
		Method:    session.NormalMethod(),
	}))
	snap = f.engine.Snapshot()
	assert.Equal(t, "Dumbbell Press", snap.Workout.Exercises[0].Name)
	assert.Equal(t, originalPeID, snap.Workout.Exercises[0].PerformedExerciseID)
	require.NotNil(t, snap.Workout.Exercises[0].Swap)
	assert.Equal(t, "Bench Press", snap.Workout.Exercises[0].Swap.Original)
}

func TestEngine_ApplyTeamPatch(t *testing.T) {
	f := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Start(ctx, testWorkout(), StartOptions{}))

	require.NoError(t, f.engine.do(func() {
		f.engine.applyTeamPatch(team.PatchEvent{
			Kind:     team.PatchSwap,
			Index:    0,
			Exercise: session.Exercise{Name: "Machine Press", SetsCount: 3, Method: session.NormalMethod()},
			SenderID: "member-b",
		})
	}))

	snap := f.engine.Snapshot()
	assert.Equal(t, "Machine Press", snap.Workout.Exercises[0].Name)
}

func TestEngine_ApplyChangeEvent_LastWriteWins(t *testing.T) {
	f := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Start(ctx, testWorkout(), StartOptions{}))

	newer := &session.Session{
		Workout:   testWorkout(),
		Logs:      map[string]session.SetLog{},
		StartedAt: f.clock.Now(),
		SavedAt:   f.clock.Now().Add(time.Minute),
	}
	newer.Workout.Title = "edited elsewhere"

	require.NoError(t, f.engine.do(func() {
		f.engine.applyChangeEvent(remote.ChangeEvent{EventType: remote.EventUpdate, New: newer})
	}))
	assert.Equal(t, "edited elsewhere", f.engine.Snapshot().Workout.Title)

	older := newer.Clone()
	older.Workout.Title = "stale echo"
	older.SavedAt = newer.SavedAt.Add(-time.Hour)

	require.NoError(t, f.engine.do(func() {
		f.engine.applyChangeEvent(remote.ChangeEvent{EventType: remote.EventUpdate, New: older})
	}))
	assert.Equal(t, "edited elsewhere", f.engine.Snapshot().Workout.Title)
}

func TestEngine_ApplyChangeEvent_DeleteSuppression(t *testing.T) {
	f := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Start(ctx, testWorkout(), StartOptions{}))

	require.NoError(t, f.engine.do(func() {
		f.engine.suppressDeleteUntil = f.clock.Now().Add(deleteSuppressionWindow)
		f.engine.applyChangeEvent(remote.ChangeEvent{EventType: remote.EventDelete})
	}))
	// suppressed, the delete was the tail of our own teardown
	assert.NotNil(t, f.engine.Snapshot())

	f.clock.Advance(deleteSuppressionWindow + time.Second)
	require.NoError(t, f.engine.do(func() {
		f.engine.applyChangeEvent(remote.ChangeEvent{EventType: remote.EventDelete})
	}))
	assert.Nil(t, f.engine.Snapshot())
}

func TestEngine_Resume_NothingAnywhere(t *testing.T) {
	f := newTestEngine(t)

	f.redisMock.ExpectGet(localcache.SessionKey("u1")).RedisNil()
	f.redisMock.ExpectGet(localcache.ViewKey("u1")).RedisNil()

	view, err := f.engine.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dashboard", view)
	assert.Nil(t, f.engine.Snapshot())
}

func TestEngine_Resume_LocalOnly(t *testing.T) {
	f := newTestEngine(t)

	local := &session.Session{
		Workout:   testWorkout(),
		Logs:      map[string]session.SetLog{},
		StartedAt: f.clock.Now().Add(-time.Hour),
		SavedAt:   f.clock.Now().Add(-time.Minute),
	}
	f.redisMock.ExpectGet(localcache.SessionKey("u1")).SetVal(marshalSession(t, local))

	view, err := f.engine.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "active", view)

	snap := f.engine.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, "Upper A", snap.Workout.Title)
}

func TestEngine_Resume_RemoteNewerWins(t *testing.T) {
	f := newTestEngine(t)
	now := f.clock.Now()

	local := &session.Session{
		Workout:   testWorkout(),
		Logs:      map[string]session.SetLog{},
		StartedAt: now.Add(-time.Hour),
		SavedAt:   now.Add(-10 * time.Minute),
	}
	f.redisMock.ExpectGet(localcache.SessionKey("u1")).SetVal(marshalSession(t, local))

	remoteState := local.Clone()
	remoteState.Workout.Title = "continued on the phone"
	// stale index inside the bi-set pair, realignment snaps it back
	remoteState.UI.CurrentExerciseIndex = 2
	remoteState.SavedAt = now.Add(-time.Minute)
	f.repo.rec = &remote.Record{
		UserID:    "u1",
		StartedAt: remoteState.StartedAt,
		State:     remoteState,
		UpdatedAt: now.Add(-time.Minute),
	}

	view, err := f.engine.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "active", view)

	snap := f.engine.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, "continued on the phone", snap.Workout.Title)
	assert.Equal(t, 1, snap.UI.CurrentExerciseIndex)
	assert.Equal(t, now.Add(-time.Minute), snap.SavedAt)
}

func TestEngine_Resume_LocalNewerKept(t *testing.T) {
	f := newTestEngine(t)
	now := f.clock.Now()

	local := &session.Session{
		Workout:   testWorkout(),
		Logs:      map[string]session.SetLog{},
		StartedAt: now.Add(-time.Hour),
		SavedAt:   now.Add(-time.Minute),
	}
	f.redisMock.ExpectGet(localcache.SessionKey("u1")).SetVal(marshalSession(t, local))

	remoteState := local.Clone()
	remoteState.Workout.Title = "old remote copy"
	remoteState.SavedAt = now.Add(-10 * time.Minute)
	f.repo.rec = &remote.Record{
		UserID:    "u1",
		State:     remoteState,
		UpdatedAt: now.Add(-10 * time.Minute),
	}

	view, err := f.engine.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "active", view)
	assert.Equal(t, "Upper A", f.engine.Snapshot().Workout.Title)
}

func TestEngine_Resume_NotProvisionedNotice(t *testing.T) {
	f := newTestEngine(t)
	f.repo.getErr = remote.ErrNotProvisioned

	f.redisMock.ExpectGet(localcache.SessionKey("u1")).RedisNil()
	f.redisMock.ExpectGet(localcache.ViewKey("u1")).SetVal("history")

	view, err := f.engine.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "history", view)
	require.Len(t, f.notices, 1)
	assert.Contains(t, f.notices[0], "sync unavailable")

	// the notice is delivered at most once per engine
	f.redisMock.ExpectGet(localcache.SessionKey("u1")).RedisNil()
	f.redisMock.ExpectGet(localcache.ViewKey("u1")).SetVal("history")
	_, err = f.engine.Resume(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.notices, 1)
}

func marshalSession(t *testing.T, s *session.Session) string {
	t.Helper()
	b, err := json.Marshal(s)
	require.NoError(t, err)
	return string(b)
}
