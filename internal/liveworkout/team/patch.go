package team

import (
	"time"

	"github.com/irontracks/liveworkout/internal/liveworkout/session"
)

const patchEventName = "workout_patch"

type PatchKind string

const (
	PatchSwap PatchKind = "swap"
	PatchAdd  PatchKind = "add"
)

// PatchEvent is one live edit broadcast to every participant of a team
// session. There is no sequence number: edits are sparse and human-paced,
// late ones win per index.
type PatchEvent struct {
	Kind     PatchKind        `json:"kind"`
	Index    int              `json:"index"`
	Exercise session.Exercise `json:"exercise"`
	SenderID string           `json:"senderId"`
	SentAt   time.Time        `json:"sentAt"`
}

// envelope is the wire shape on the broadcast topic.
type envelope struct {
	Event   string     `json:"event"`
	Payload PatchEvent `json:"payload"`
}

func topicOf(teamSessionID string) string {
	return "team-session:" + teamSessionID
}
