//go:build integration_test || all_tests

package team

import (
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irontracks/liveworkout/internal/liveworkout/session"
	pkgtesting "github.com/irontracks/liveworkout/pkg/testing"
)

func TestChannel_Broadcast(t *testing.T) {
	ctx, rdb := pkgtesting.GetRedisClientAndCtx(t)
	defer rdb.Close()

	teamSessionID := gofakeit.UUID()

	var mu sync.Mutex
	var hostGot, memberGot []PatchEvent

	host := NewChannel(rdb, teamSessionID, "host", func(e PatchEvent) {
		mu.Lock()
		defer mu.Unlock()
		hostGot = append(hostGot, e)
	})
	member := NewChannel(rdb, teamSessionID, "member", func(e PatchEvent) {
		mu.Lock()
		defer mu.Unlock()
		memberGot = append(memberGot, e)
	})

	host.Start(ctx)
	member.Start(ctx)
	defer host.Stop()
	defer member.Stop()

	// redis pubsub subscriptions need a moment to become effective
	time.Sleep(200 * time.Millisecond)

	host.Publish(ctx, PatchEvent{
		Kind:  PatchSwap,
		Index: 1,
		Exercise: session.Exercise{
			PerformedExerciseID: gofakeit.UUID(),
			Name:                "Supino Inclinado",
			Method:              session.NormalMethod(),
		},
		SentAt: time.Now(),
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(memberGot) == 1
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, PatchSwap, memberGot[0].Kind)
	assert.Equal(t, 1, memberGot[0].Index)
	assert.Equal(t, "host", memberGot[0].SenderID)
	assert.Equal(t, "Supino Inclinado", memberGot[0].Exercise.Name)
	// the sender drops its own broadcast
	assert.Empty(t, hostGot)
}
