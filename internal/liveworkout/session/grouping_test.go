package session_test

import (
	"testing"

	"github.com/irontracks/liveworkout/internal/liveworkout/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercisesOf(methods ...session.Method) []session.Exercise {
	out := make([]session.Exercise, 0, len(methods))
	for i, m := range methods {
		out = append(out, session.Exercise{
			PerformedExerciseID: session.LogKey("pe", i),
			Name:                "ex",
			SetsCount:           3,
			Method:              m,
		})
	}
	return out
}

func TestGroupStarts(t *testing.T) {
	testCases := []struct {
		name     string
		methods  []session.Method
		expected []int
	}{
		{
			name:     "all normal",
			methods:  []session.Method{session.NormalMethod(), session.NormalMethod(), session.NormalMethod()},
			expected: []int{0, 1, 2},
		},
		{
			name:     "bi set pairs with the next",
			methods:  []session.Method{session.NormalMethod(), session.BiSetMethod(), session.NormalMethod(), session.NormalMethod()},
			expected: []int{0, 1, 3},
		},
		{
			name:     "bi set at the end has no partner",
			methods:  []session.Method{session.NormalMethod(), session.BiSetMethod()},
			expected: []int{0, 1},
		},
		{
			name:     "cardio never joins a pair",
			methods:  []session.Method{session.BiSetMethod(), session.CardioMethod(10), session.NormalMethod()},
			expected: []int{0, 1, 2},
		},
		{
			name:     "consecutive bi sets chain into pairs",
			methods:  []session.Method{session.BiSetMethod(), session.BiSetMethod(), session.BiSetMethod(), session.NormalMethod()},
			expected: []int{0, 2},
		},
		{
			name:     "empty list",
			methods:  nil,
			expected: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			starts := session.GroupStarts(exercisesOf(tc.methods...))
			assert.Equal(t, tc.expected, starts)
			if len(tc.methods) > 0 {
				require.NotEmpty(t, starts)
				assert.Equal(t, 0, starts[0])
				for i := 1; i < len(starts); i++ {
					assert.Greater(t, starts[i], starts[i-1])
				}
			}
		})
	}
}

func TestGroupSize(t *testing.T) {
	starts := []int{0, 1, 3}
	assert.Equal(t, 1, session.GroupSize(starts, 0, 4))
	assert.Equal(t, 2, session.GroupSize(starts, 1, 4))
	assert.Equal(t, 1, session.GroupSize(starts, 3, 4))
	// unknown start falls back to a single exercise
	assert.Equal(t, 1, session.GroupSize(starts, 2, 4))
}

func TestAlignedGroupStart(t *testing.T) {
	starts := []int{0, 1, 3}

	// index inside the pair snaps back to the pair start
	assert.Equal(t, 1, session.AlignedGroupStart(starts, 2, 4))
	// exact group starts stay put
	assert.Equal(t, 0, session.AlignedGroupStart(starts, 0, 4))
	assert.Equal(t, 3, session.AlignedGroupStart(starts, 3, 4))
	// out of range indices clamp to the list bounds first
	assert.Equal(t, 3, session.AlignedGroupStart(starts, 17, 4))
	assert.Equal(t, 0, session.AlignedGroupStart(starts, -5, 4))
	assert.Equal(t, 0, session.AlignedGroupStart(nil, 2, 4))
}

func TestNextPrevGroupStart(t *testing.T) {
	starts := []int{0, 1, 3}

	next, ok := session.NextGroupStart(starts, 0)
	require.True(t, ok)
	assert.Equal(t, 1, next)

	next, ok = session.NextGroupStart(starts, 1)
	require.True(t, ok)
	assert.Equal(t, 3, next)

	// last group has no next
	next, ok = session.NextGroupStart(starts, 3)
	assert.False(t, ok)
	assert.Equal(t, 3, next)

	assert.Equal(t, 1, session.PrevGroupStart(starts, 3))
	assert.Equal(t, 0, session.PrevGroupStart(starts, 1))
	// first group stays
	assert.Equal(t, 0, session.PrevGroupStart(starts, 0))
}
