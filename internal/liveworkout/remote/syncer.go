package remote

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/irontracks/liveworkout/internal/liveworkout/session"
)

const (
	DefaultDebounce = 900 * time.Millisecond
	writeTimeout    = 10 * time.Second
)

// NoticeFunc surfaces a non-blocking user-facing notice (one per session for
// the not-provisioned case).
type NoticeFunc func(text string)

type recordWriter interface {
	Upsert(ctx context.Context, rec Record, origin string) error
	Delete(ctx context.Context, userID, origin string) error
}

// Syncer mirrors session snapshots into the remote record with a long
// debounce. Before a scheduled write fires it re-checks that no newer
// mutation superseded it, so a slow network call can never clobber a newer
// local edit.
type Syncer struct {
	repo     recordWriter
	userID   string
	origin   string
	debounce time.Duration
	notice   NoticeFunc

	mu        sync.Mutex
	intentKey string
	timer     *time.Timer
	warned    bool

	NowFunc func() time.Time
}

func NewSyncer(repo recordWriter, userID, origin string, debounce time.Duration, notice NoticeFunc) *Syncer {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Syncer{
		repo:     repo,
		userID:   userID,
		origin:   origin,
		debounce: debounce,
		notice:   notice,
		NowFunc:  time.Now,
	}
}

// Schedule queues an upsert of the snapshot (or a delete when nil). The
// serialized snapshot captured here is the write intent; if another
// Schedule call replaces it before the debounce fires, this write is
// skipped, not sent stale.
func (s *Syncer) Schedule(snap *session.Session) {
	key := intentKeyOf(snap)

	s.mu.Lock()
	s.intentKey = key
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.fire(key, snap)
	})
	s.mu.Unlock()
}

func (s *Syncer) fire(key string, snap *session.Session) {
	s.mu.Lock()
	superseded := s.intentKey != key
	s.mu.Unlock()
	if superseded {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	if snap == nil {
		err = s.repo.Delete(ctx, s.userID, s.origin)
	} else {
		if !snap.IsValid() {
			return
		}
		err = s.repo.Upsert(ctx, NewRecord(s.userID, snap, s.NowFunc()), s.origin)
	}
	if err == nil {
		return
	}

	if errors.Is(err, ErrNotProvisioned) {
		s.warnOnce()
		return
	}
	// transient failure: drop it, the next mutation re-schedules naturally
	log.Warnf("remote session sync for user %s: %s", s.userID, err)
}

func (s *Syncer) warnOnce() {
	s.mu.Lock()
	already := s.warned
	s.warned = true
	s.mu.Unlock()
	if already || s.notice == nil {
		return
	}
	s.notice("Cross-device workout sync unavailable (pending migrations).")
}

// Stop cancels any scheduled write.
func (s *Syncer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func intentKeyOf(snap *session.Session) string {
	if snap == nil {
		return "null"
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return ""
	}
	return string(b)
}
