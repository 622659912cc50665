package session

// SwapExercise returns a copy of the session with the exercise at idx
// replaced. The replacement keeps the original's performed-exercise id (so
// already-logged sets survive the swap) and records where it came from.
// Out-of-range indices return the session unchanged.
func (s *Session) SwapExercise(idx int, replacement Exercise) *Session {
	if s == nil || idx < 0 || idx >= len(s.Workout.Exercises) {
		return s
	}
	next := s.Clone()
	original := next.Workout.Exercises[idx]
	if replacement.PerformedExerciseID == "" {
		replacement.PerformedExerciseID = original.PerformedExerciseID
	}
	if replacement.Swap == nil {
		replacement.Swap = &Swap{
			Original:  original.Name,
			SwappedTo: replacement.Name,
		}
	}
	next.Workout.Exercises[idx] = replacement
	return next
}

// AddExercise returns a copy of the session with the exercise inserted at
// idx, a zero inserted into the per-exercise durations at the same position,
// and the current exercise index bumped when it sits at or after the
// insertion point, so navigation does not silently jump an exercise.
// idx is clamped to the list bounds.
func (s *Session) AddExercise(idx int, ex Exercise) *Session {
	if s == nil {
		return s
	}
	next := s.Clone()
	if idx < 0 {
		idx = 0
	}
	if idx > len(next.Workout.Exercises) {
		idx = len(next.Workout.Exercises)
	}

	exercises := next.Workout.Exercises
	exercises = append(exercises, Exercise{})
	copy(exercises[idx+1:], exercises[idx:])
	exercises[idx] = ex
	next.Workout.Exercises = exercises

	durations := next.UI.PerExerciseDurations
	for len(durations) < len(next.Workout.Exercises)-1 {
		durations = append(durations, 0)
	}
	durations = append(durations, 0)
	copy(durations[idx+1:], durations[idx:])
	durations[idx] = 0
	next.UI.PerExerciseDurations = durations

	if next.UI.CurrentExerciseIndex >= idx {
		next.UI.CurrentExerciseIndex++
	}
	return next
}
