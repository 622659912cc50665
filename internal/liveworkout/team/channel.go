package team

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

// Channel is one participant's handle on a team session's broadcast topic.
// Publishes are best-effort: a lost patch leaves the peers stale, which the
// next patch or a fresh session read repairs.
type Channel struct {
	rdb           *redis.Client
	teamSessionID string
	selfID        string
	apply         func(PatchEvent)

	cancel context.CancelFunc
	done   chan struct{}
}

func NewChannel(rdb *redis.Client, teamSessionID, selfID string, apply func(PatchEvent)) *Channel {
	return &Channel{
		rdb:           rdb,
		teamSessionID: teamSessionID,
		selfID:        selfID,
		apply:         apply,
	}
}

// Publish sends a patch to every subscriber of the topic, including this
// client, which drops it again on receive by sender id.
func (c *Channel) Publish(ctx context.Context, event PatchEvent) {
	event.SenderID = c.selfID
	payload, err := json.Marshal(envelope{Event: patchEventName, Payload: event})
	if err != nil {
		log.Errorf("team broadcast %s: marshal patch: %s", c.teamSessionID, err)
		return
	}
	if err := c.rdb.Publish(ctx, topicOf(c.teamSessionID), payload).Err(); err != nil {
		log.Warnf("team broadcast %s: publish: %s", c.teamSessionID, err)
	}
}

// Start subscribes and applies inbound patches until Stop. Own events are
// dropped, they were already applied locally before publishing.
func (c *Channel) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	sub := c.rdb.Subscribe(ctx, topicOf(c.teamSessionID))

	go func() {
		defer close(c.done)
		defer func() {
			if err := sub.Close(); err != nil {
				log.Warnf("team broadcast %s: close: %s", c.teamSessionID, err)
			}
		}()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				c.handle(msg)
			}
		}
	}()
}

func (c *Channel) handle(msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		log.Errorf("team broadcast %s: unmarshal: %s", c.teamSessionID, err)
		return
	}
	if env.Event != patchEventName {
		return
	}
	if env.Payload.SenderID == c.selfID {
		return
	}
	switch env.Payload.Kind {
	case PatchSwap, PatchAdd:
		c.apply(env.Payload)
	default:
		log.Warnf("team broadcast %s: unknown patch kind %q", c.teamSessionID, env.Payload.Kind)
	}
}

// Stop unsubscribes and waits for the consumer goroutine.
func (c *Channel) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.done != nil {
		<-c.done
	}
}
