// Package pacing estimates the time budget of an exercise from its shape
// alone: sets, reps, rest and cadence. The pacer countdown is derived from
// these estimates; actual elapsed time is tracked separately by the engine.
package pacing

import (
	"strconv"
	"strings"

	"github.com/irontracks/liveworkout/internal/liveworkout/session"
)

const (
	defaultSecondsPerRep = 4
	defaultCardioMinutes = 5
	defaultRestSeconds   = 60
	setOverheadSeconds   = 5
	defaultRepsPerSet    = 10
)

// CadenceSecondsPerRep parses a cadence notation like "3-1-2" or "2020" into
// seconds per rep by summing its digits. Anything unparsable falls back to
// the default.
func CadenceSecondsPerRep(cadence string) int {
	sum := 0
	seen := false
	for _, r := range cadence {
		if r >= '0' && r <= '9' {
			sum += int(r - '0')
			seen = true
		}
	}
	if !seen || sum <= 0 {
		return defaultSecondsPerRep
	}
	return sum
}

// TargetReps parses the planned reps of an exercise ("8", "8-12", "10 each
// side"), falling back to the default when the target is free-form.
func TargetReps(ex session.Exercise) int {
	reps := parseLeadingInt(ex.RepsTarget)
	if reps <= 0 {
		return defaultRepsPerSet
	}
	return reps
}

// EstimateExerciseSeconds is the pacing estimate for a single exercise.
func EstimateExerciseSeconds(ex session.Exercise) int {
	if ex.Method.IsCardio() {
		minutes := 0
		if ex.Method.Cardio != nil {
			minutes = ex.Method.Cardio.Minutes
		}
		if minutes <= 0 {
			minutes = parseLeadingInt(ex.RepsTarget)
		}
		if minutes <= 0 {
			minutes = defaultCardioMinutes
		}
		return minutes * 60
	}

	reps := parseLeadingInt(ex.RepsTarget)
	if reps <= 0 {
		reps = defaultRepsPerSet
	}
	sets := ex.SetsCount
	if sets <= 0 {
		sets = 1
	}
	rest := ex.RestTimeSeconds
	if rest <= 0 {
		rest = defaultRestSeconds
	}

	perRep := CadenceSecondsPerRep(ex.Cadence)
	perSetExecution := perRep*reps + setOverheadSeconds
	return (perSetExecution + rest) * sets
}

// EstimateGroupSeconds estimates a whole navigation group (one exercise, or a
// bi-set pair performed back-to-back). A pair cycles through its members with
// one rest after each cycle, taking the longest configured rest.
func EstimateGroupSeconds(exercises []session.Exercise) int {
	if len(exercises) == 0 {
		return 0
	}
	if len(exercises) == 1 {
		return EstimateExerciseSeconds(exercises[0])
	}

	cycleExecution := 0
	cycles := 1
	restPerCycle := 0
	cardioTotal := 0
	for _, ex := range exercises {
		if ex.Method.IsCardio() {
			cardioTotal += EstimateExerciseSeconds(ex)
			continue
		}

		reps := parseLeadingInt(ex.RepsTarget)
		if reps <= 0 {
			reps = defaultRepsPerSet
		}
		perRep := CadenceSecondsPerRep(ex.Cadence)
		cycleExecution += perRep*reps + setOverheadSeconds

		if ex.SetsCount > cycles {
			cycles = ex.SetsCount
		}
		if ex.RestTimeSeconds > restPerCycle {
			restPerCycle = ex.RestTimeSeconds
		}
	}
	if cycleExecution == 0 {
		return cardioTotal
	}
	if restPerCycle <= 0 {
		restPerCycle = defaultRestSeconds
	}
	return cycles*cycleExecution + (cycles-1)*restPerCycle + cardioTotal
}

// EstimateWorkoutSeconds sums the estimates of the whole exercise list.
func EstimateWorkoutSeconds(exercises []session.Exercise) int {
	total := 0
	for _, ex := range exercises {
		total += EstimateExerciseSeconds(ex)
	}
	return total
}

func parseLeadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
