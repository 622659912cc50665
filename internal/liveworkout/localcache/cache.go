// Package localcache is the fast per-user persistence layer of the engine:
// the full session snapshot is written through to redis under a per-user key
// with a short debounce, and read back synchronously on startup so a reload
// resumes without waiting on the primary store.
package localcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"github.com/irontracks/liveworkout/internal/liveworkout/session"
)

const (
	sessionKeyPrefix = "activeSession.v2."
	viewKeyPrefix    = "appView.v2."

	DefaultDebounce = 250 * time.Millisecond
	writeTimeout    = 5 * time.Second
)

func SessionKey(userID string) string {
	return sessionKeyPrefix + userID
}

func ViewKey(userID string) string {
	return viewKeyPrefix + userID
}

type Cache struct {
	rdb      *redis.Client
	debounce time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string][]byte

	// NowFunc is injectable for tests, it stamps savedAt on write.
	NowFunc func() time.Time
}

func New(rdb *redis.Client, debounce time.Duration) *Cache {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Cache{
		rdb:      rdb,
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
		pending:  make(map[string][]byte),
		NowFunc:  time.Now,
	}
}

// ReadSession loads the cached snapshot for the user. A missing key yields
// (nil, nil). A corrupt or invalid payload is purged and also yields
// (nil, nil), so a broken cache entry never blocks startup.
func (c *Cache) ReadSession(ctx context.Context, userID string) (*session.Session, error) {
	cmd := c.rdb.Get(ctx, SessionKey(userID))
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("read cached session: %w", err)
	}

	var snap session.Session
	if err := json.Unmarshal([]byte(cmd.Val()), &snap); err != nil || !snap.IsValid() {
		log.Warnf("local cache: purging invalid session snapshot for user %s", userID)
		c.purge(ctx, userID)
		return nil, nil
	}
	return &snap, nil
}

// ScheduleSave coalesces rapid session changes into one write per debounce
// window; only the last snapshot of the window is persisted, stamped with
// savedAt. A nil snapshot deletes the key immediately.
func (c *Cache) ScheduleSave(userID string, snap *session.Session) {
	key := SessionKey(userID)

	c.cancelPending(key)

	if snap == nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		c.purge(ctx, userID)
		return
	}

	stamped := snap.Clone()
	stamped.SavedAt = c.NowFunc()
	payload, err := json.Marshal(stamped)
	if err != nil {
		log.Errorf("local cache: marshal session for user %s: %s", userID, err)
		return
	}

	c.mu.Lock()
	c.pending[key] = payload
	c.timers[key] = time.AfterFunc(c.debounce, func() {
		c.writePending(key, userID)
	})
	c.mu.Unlock()
}

func (c *Cache) writePending(key, userID string) {
	c.mu.Lock()
	payload, ok := c.pending[key]
	delete(c.pending, key)
	delete(c.timers, key)
	c.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.rdb.Set(ctx, key, payload, 0).Err(); err != nil {
		log.Errorf("local cache: write session for user %s: %s", userID, err)
	}
}

// Flush runs any pending debounced write for the user right away, so
// teardown never races a scheduled write.
func (c *Cache) Flush(userID string) {
	key := SessionKey(userID)
	c.mu.Lock()
	if t, ok := c.timers[key]; ok {
		t.Stop()
	}
	c.mu.Unlock()
	c.writePending(key, userID)
}

func (c *Cache) cancelPending(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[key]; ok {
		t.Stop()
		delete(c.timers, key)
	}
	delete(c.pending, key)
}

// DeleteSession removes the cached snapshot, cancelling any pending write.
func (c *Cache) DeleteSession(ctx context.Context, userID string) {
	c.cancelPending(SessionKey(userID))
	c.purge(ctx, userID)
}

func (c *Cache) purge(ctx context.Context, userID string) {
	if err := c.rdb.Del(ctx, SessionKey(userID)).Err(); err != nil {
		log.Errorf("local cache: delete session for user %s: %s", userID, err)
	}
}

// SaveView persists the last visible app view for the user.
func (c *Cache) SaveView(ctx context.Context, userID, view string) {
	if view == "" {
		return
	}
	if err := c.rdb.Set(ctx, ViewKey(userID), view, 0).Err(); err != nil {
		log.Errorf("local cache: write view for user %s: %s", userID, err)
	}
}

// ReadView restores the saved view. The active view is never restored
// without a real session; callers pass hasSession from the session read.
func (c *Cache) ReadView(ctx context.Context, userID string, hasSession bool) string {
	if hasSession {
		return "active"
	}
	cmd := c.rdb.Get(ctx, ViewKey(userID))
	if err := cmd.Err(); err != nil {
		return "dashboard"
	}
	view := cmd.Val()
	if view == "" || view == "active" {
		return "dashboard"
	}
	return view
}

// Stop cancels all pending writes, for engine disposal.
func (c *Cache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, t := range c.timers {
		t.Stop()
		delete(c.timers, key)
		delete(c.pending, key)
	}
}
