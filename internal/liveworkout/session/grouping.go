package session

// GroupStarts derives the navigable groups from the exercise list. Exercise i
// starts a group; a bi-set joins i with the immediately following exercise,
// unless either of the two is cardio. The result is non-empty for a non-empty
// list, strictly increasing, and always contains 0.
func GroupStarts(exercises []Exercise) []int {
	var starts []int
	for i := 0; i < len(exercises); i++ {
		starts = append(starts, i)
		if exercises[i].Method.Kind != MethodBiSet {
			continue
		}
		if i+1 >= len(exercises) {
			continue
		}
		if exercises[i].Method.IsCardio() || exercises[i+1].Method.IsCardio() {
			continue
		}
		i++ // pair consumed, scan resumes after it
	}
	return starts
}

// GroupSize returns how many exercises the group starting at start spans.
func GroupSize(starts []int, start, total int) int {
	for i, s := range starts {
		if s != start {
			continue
		}
		if i+1 < len(starts) {
			return starts[i+1] - s
		}
		return total - s
	}
	return 1
}

// AlignedGroupStart snaps a possibly-stale exercise index (e.g. restored from
// cache after the list changed) back to its group's start: the greatest group
// start that is <= the clamped index.
func AlignedGroupStart(starts []int, idx, total int) int {
	if len(starts) == 0 {
		return 0
	}
	if idx < 0 {
		idx = 0
	}
	if idx > total-1 {
		idx = total - 1
	}
	aligned := starts[0]
	for _, s := range starts {
		if s <= idx {
			aligned = s
		}
	}
	return aligned
}

// NextGroupStart returns the group start following the current one, and false
// if the current group is the last (in which case the caller finishes the
// session instead of navigating).
func NextGroupStart(starts []int, current int) (int, bool) {
	for i, s := range starts {
		if s == current && i+1 < len(starts) {
			return starts[i+1], true
		}
	}
	return current, false
}

// PrevGroupStart returns the group start preceding the current one; a no-op
// at the first group.
func PrevGroupStart(starts []int, current int) int {
	prev := current
	for i, s := range starts {
		if s == current && i > 0 {
			prev = starts[i-1]
		}
	}
	return prev
}
