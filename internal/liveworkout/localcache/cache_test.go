package localcache_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/irontracks/liveworkout/internal/liveworkout/localcache"
	"github.com/irontracks/liveworkout/internal/liveworkout/session"

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

func cachedSession(startedAt time.Time) *session.Session {
	return &session.Session{
		Workout: session.Workout{
			Title: "Leg Day",
			Exercises: []session.Exercise{
				{PerformedExerciseID: "pe-0", Name: "Squat", SetsCount: 4, Method: session.NormalMethod()},
			},
		},
		Logs:      map[string]session.SetLog{},
		StartedAt: startedAt,
	}
}

func TestCache_ReadSession(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer rdb.Close()

	cache := localcache.New(rdb, time.Hour)
	ctx := context.Background()

	// missing key is not an error
	mock.ExpectGet(localcache.SessionKey("u1")).RedisNil()
	snap, err := cache.ReadSession(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, snap)

	// valid payload round-trips
	stored := cachedSession(time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC))
	payload, err := json.Marshal(stored)
	require.NoError(t, err)
	mock.ExpectGet(localcache.SessionKey("u1")).SetVal(string(payload))
	snap, err = cache.ReadSession(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "Leg Day", snap.Workout.Title)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_ReadSession_PurgesCorruptPayload(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer rdb.Close()

	cache := localcache.New(rdb, time.Hour)
	ctx := context.Background()

	mock.ExpectGet(localcache.SessionKey("u1")).SetVal("{not json")
	mock.ExpectDel(localcache.SessionKey("u1")).SetVal(1)
	snap, err := cache.ReadSession(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, snap)

	// valid json, but not a usable session (no start time)
	mock.ExpectGet(localcache.SessionKey("u1")).SetVal(`{"workout":{"title":"x","exercises":[]}}`)
	mock.ExpectDel(localcache.SessionKey("u1")).SetVal(1)
	snap, err = cache.ReadSession(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_ScheduleSave_DebouncesAndStampsSavedAt(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer rdb.Close()

	cache := localcache.New(rdb, time.Hour)
	savedAt := time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC)
	cache.NowFunc = func() time.Time { return savedAt }

	snap := cachedSession(time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC))
	stamped := snap.Clone()
	stamped.SavedAt = savedAt
	expected, err := json.Marshal(stamped)
	require.NoError(t, err)

	// two rapid saves coalesce into a single write of the last snapshot
	older := snap.Clone()
	older.Workout.Title = "stale title"
	cache.ScheduleSave("u1", older)
	cache.ScheduleSave("u1", snap)

	mock.ExpectSet(localcache.SessionKey("u1"), expected, 0).SetVal("OK")
	cache.Flush("u1")

	// flushing again with nothing pending writes nothing
	cache.Flush("u1")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_ScheduleSave_NilDeletesImmediately(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer rdb.Close()

	cache := localcache.New(rdb, time.Hour)

	mock.ExpectDel(localcache.SessionKey("u1")).SetVal(1)
	cache.ScheduleSave("u1", nil)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_DeleteSession_CancelsPendingWrite(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer rdb.Close()

	cache := localcache.New(rdb, time.Hour)
	cache.ScheduleSave("u1", cachedSession(time.Now()))

	mock.ExpectDel(localcache.SessionKey("u1")).SetVal(1)
	cache.DeleteSession(context.Background(), "u1")

	// the pending write was dropped, a flush is a no-op now
	cache.Flush("u1")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_Views(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer rdb.Close()

	cache := localcache.New(rdb, time.Hour)
	ctx := context.Background()

	mock.ExpectSet(localcache.ViewKey("u1"), "history", 0).SetVal("OK")
	cache.SaveView(ctx, "u1", "history")

	// empty views are never persisted
	cache.SaveView(ctx, "u1", "")

	// with a live session the view is always active
	assert.Equal(t, "active", cache.ReadView(ctx, "u1", true))

	mock.ExpectGet(localcache.ViewKey("u1")).SetVal("history")
	assert.Equal(t, "history", cache.ReadView(ctx, "u1", false))

	// a stored active view without a session falls back to the dashboard
	mock.ExpectGet(localcache.ViewKey("u1")).SetVal("active")
	assert.Equal(t, "dashboard", cache.ReadView(ctx, "u1", false))

	mock.ExpectGet(localcache.ViewKey("u1")).RedisNil()
	assert.Equal(t, "dashboard", cache.ReadView(ctx, "u1", false))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_Stop_DropsPendingWrites(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer rdb.Close()

	cache := localcache.New(rdb, time.Hour)
	cache.ScheduleSave("u1", cachedSession(time.Now()))
	cache.ScheduleSave("u2", cachedSession(time.Now()))

	cache.Stop()
	cache.Flush("u1")
	cache.Flush("u2")

	require.NoError(t, mock.ExpectationsWereMet())
}
