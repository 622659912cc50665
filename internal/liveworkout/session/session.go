package session

import (
	"errors"
	"fmt"
	"time"
)

var ErrNoExercises = errors.New("session has no exercises")

// Session is the single in-progress workout of one user. There is at most one
// per user, locally and remotely; its identity is the user id.
type Session struct {
	Workout         Workout           `json:"workout"`
	Logs            map[string]SetLog `json:"logs"`
	StartedAt       time.Time         `json:"startedAt"`
	TimerTargetTime *time.Time        `json:"timerTargetTime,omitempty"`
	UI              UIState           `json:"ui"`
	TeamSessionID   string            `json:"teamSessionId,omitempty"`
	HostName        string            `json:"hostName,omitempty"`

	// SavedAt is the logical write timestamp embedded at persist time.
	// Reconciliation keeps the snapshot with the greater SavedAt.
	SavedAt time.Time `json:"savedAt,omitempty"`
}

type Workout struct {
	ID        string     `json:"id,omitempty"`
	Title     string     `json:"title"`
	Exercises []Exercise `json:"exercises"`
}

type Exercise struct {
	ID string `json:"id,omitempty"`
	// PerformedExerciseID is assigned when the exercise enters the session
	// (at start, or on a mid-session add/swap) and never changes afterwards.
	// Set logs are keyed by it, so inserting or removing exercises does not
	// invalidate existing logs.
	PerformedExerciseID string `json:"performedExerciseId"`
	Name                string `json:"name"`
	SetsCount           int    `json:"setsCount"`
	RepsTarget          string `json:"repsTarget,omitempty"`
	RPETarget           string `json:"rpeTarget,omitempty"`
	RestTimeSeconds     int    `json:"restTimeSeconds,omitempty"`
	Cadence             string `json:"cadence,omitempty"`
	Method              Method `json:"method"`
	VideoURL            string `json:"videoUrl,omitempty"`
	Notes               string `json:"notes,omitempty"`
	Swap                *Swap  `json:"swap,omitempty"`
}

// Swap records a mid-session exercise replacement.
type Swap struct {
	Original  string `json:"original"`
	SwappedTo string `json:"swappedTo"`
}

type SetLog struct {
	Weight   *float64        `json:"weight,omitempty"`
	Reps     *int            `json:"reps,omitempty"`
	RPE      *float64        `json:"rpe,omitempty"`
	Note     string          `json:"note,omitempty"`
	Done     bool            `json:"done"`
	IsWarmup bool            `json:"isWarmup"`
	Advanced *AdvancedConfig `json:"advancedConfig,omitempty"`
}

type UIState struct {
	CurrentExerciseIndex   int       `json:"currentExerciseIndex"`
	ExerciseStartTimestamp time.Time `json:"exerciseStartTimestamp"`
	// PerExerciseDurations holds the accumulated seconds actually spent on
	// each exercise, positionally aligned with workout.Exercises.
	PerExerciseDurations []int `json:"perExerciseDurations"`

	PreCheckin  map[string]string `json:"preCheckin,omitempty"`
	PostCheckin map[string]string `json:"postCheckin,omitempty"`
}

// LogKey builds the key of one set's log. Keys are stable across exercise
// inserts and removals because they are based on the performed-exercise id,
// not the position in the list.
func LogKey(performedExerciseID string, setIdx int) string {
	return fmt.Sprintf("%s:%d", performedExerciseID, setIdx)
}

// IsValid is the minimal validity check applied to snapshots read from the
// cache or the remote record: a usable session has a start time and a workout
// with at least one exercise. Anything else is treated as "no session".
func (s *Session) IsValid() bool {
	if s == nil {
		return false
	}
	if s.StartedAt.IsZero() {
		return false
	}
	return len(s.Workout.Exercises) > 0
}

// Clone returns a deep copy, so store listeners can never observe a later
// mutation through a shared map or slice.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Workout.Exercises = cloneExercises(s.Workout.Exercises)
	out.Logs = make(map[string]SetLog, len(s.Logs))
	for k, v := range s.Logs {
		out.Logs[k] = v.clone()
	}
	if s.TimerTargetTime != nil {
		t := *s.TimerTargetTime
		out.TimerTargetTime = &t
	}
	out.UI.PerExerciseDurations = append([]int(nil), s.UI.PerExerciseDurations...)
	out.UI.PreCheckin = cloneStringMap(s.UI.PreCheckin)
	out.UI.PostCheckin = cloneStringMap(s.UI.PostCheckin)
	return &out
}

func cloneExercises(in []Exercise) []Exercise {
	if in == nil {
		return nil
	}
	out := make([]Exercise, len(in))
	for i, ex := range in {
		out[i] = ex.clone()
	}
	return out
}

func (e Exercise) clone() Exercise {
	out := e
	out.Method = e.Method.clone()
	if e.Swap != nil {
		s := *e.Swap
		out.Swap = &s
	}
	return out
}

func (l SetLog) clone() SetLog {
	out := l
	out.Weight = clonePtr(l.Weight)
	out.Reps = clonePtr(l.Reps)
	out.RPE = clonePtr(l.RPE)
	if l.Advanced != nil {
		out.Advanced = l.Advanced.clone()
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
