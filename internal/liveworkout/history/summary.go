package history

import (
	"time"

	"github.com/irontracks/liveworkout/internal/liveworkout/session"
)

// Summary is the durable result of a finished session: the workout snapshot,
// the cleaned set logs, and the time actually spent.
type Summary struct {
	WorkoutTitle         string                    `json:"workoutTitle"`
	Date                 time.Time                 `json:"date"`
	OriginWorkoutID      string                    `json:"originWorkoutId,omitempty"`
	Exercises            []session.Exercise        `json:"exercises"`
	Logs                 map[string]session.SetLog `json:"logs"`
	PerExerciseDurations []int                     `json:"perExerciseDurations"`

	// RealTotalTime is the sum of per-exercise durations in seconds, i.e.
	// time actually spent, independent of the pacer targets.
	RealTotalTime         int `json:"realTotalTime"`
	TotalTime             int `json:"totalTime"`
	ExecutionTotalSeconds int `json:"executionTotalSeconds"`
	RestTotalSeconds      int `json:"restTotalSeconds"`

	PreCheckin  map[string]string `json:"preCheckin,omitempty"`
	PostCheckin map[string]string `json:"postCheckin,omitempty"`

	// Team metadata is only carried for sessions that actually had more
	// than one participant.
	Team *TeamMeta `json:"team,omitempty"`
}

type TeamMeta struct {
	TeamSessionID string `json:"teamSessionId"`
	HostName      string `json:"hostName,omitempty"`
	Participants  int    `json:"participants"`
}
