package gateway

import (
	"context"
	"log"
	"time"
)

// Source streams the events published for an operation.
type Source interface {
	Subscribe(ctx context.Context, operation string, fn func(channel string, payload []byte)) error
}

// Relay forwards an operation's published events to the hub, resubscribing
// after failures until ctx is done.
func Relay(ctx context.Context, src Source, operation string, h *Hub) {
	for {
		err := src.Subscribe(ctx, operation, h.Broadcast)
		if ctx.Err() != nil {
			return
		}
		log.Printf("[gateway] relay for %s stopped: %v, retrying", operation, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// Push publishes notifier messages on the hub.
type Push struct {
	Hub *Hub
}

func (p Push) Push(channel string, payload []byte) { p.Hub.Broadcast(channel, payload) }
