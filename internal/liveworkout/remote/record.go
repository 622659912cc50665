package remote

import (
	"time"

	"github.com/irontracks/liveworkout/internal/liveworkout/session"
)

// Record is the one durable row per user that enables cross-device resume.
type Record struct {
	UserID    string           `json:"userId"`
	StartedAt time.Time        `json:"startedAt"`
	State     *session.Session `json:"state"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Time resolves the record's logical write time: the greater of the server
// column and the savedAt embedded in the state. Reconciliation compares it
// against the local snapshot's savedAt.
func (r *Record) Time() time.Time {
	if r == nil {
		return time.Time{}
	}
	t := r.UpdatedAt
	if r.State != nil && r.State.SavedAt.After(t) {
		t = r.State.SavedAt
	}
	return t
}

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent is one message of the per-user change feed. Origin names the
// device that caused the change; devices drop their own echoes by it.
type ChangeEvent struct {
	EventType EventType        `json:"eventType"`
	New       *session.Session `json:"new,omitempty"`
	Old       *session.Session `json:"old,omitempty"`
	Origin    string           `json:"origin,omitempty"`
}

func changeChannel(userID string) string {
	return "active-session-changes:" + userID
}
