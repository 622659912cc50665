package remote

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

// Listener subscribes to the change feed of one user's remote session
// record and hands every event to the engine. An UPDATE carrying an invalid
// state is normalized to a DELETE before delivery, so a corrupt remote write
// behaves like the row vanishing.
type Listener struct {
	rdb    *redis.Client
	userID string
	origin string
	apply  func(ChangeEvent)

	cancel context.CancelFunc
	done   chan struct{}
}

func NewListener(rdb *redis.Client, userID, origin string, apply func(ChangeEvent)) *Listener {
	return &Listener{
		rdb:    rdb,
		userID: userID,
		origin: origin,
		apply:  apply,
	}
}

// Start subscribes and consumes until Stop or context cancellation.
func (l *Listener) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})

	sub := l.rdb.Subscribe(ctx, changeChannel(l.userID))

	go func() {
		defer close(l.done)
		defer func() {
			if err := sub.Close(); err != nil {
				log.Warnf("session change listener for user %s: close: %s", l.userID, err)
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
				l.handle(msg)
			}
		}
	}()
}

func (l *Listener) handle(msg *redis.Message) {
	var event ChangeEvent
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		log.Errorf("session change listener for user %s: unmarshal: %s", l.userID, err)
		return
	}

	if event.Origin != "" && event.Origin == l.origin {
		// own echo, the change was already applied locally
		return
	}

	switch event.EventType {
	case EventDelete:
	case EventInsert, EventUpdate:
		if !event.New.IsValid() {
			event = ChangeEvent{EventType: EventDelete, Old: event.New}
		}
	default:
		log.Warnf("session change listener for user %s: unknown event type %q", l.userID, event.EventType)
		return
	}

	l.apply(event)
}

// Stop unsubscribes and waits for the consumer goroutine to exit.
func (l *Listener) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	if l.done != nil {
		<-l.done
	}
}
