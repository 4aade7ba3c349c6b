package notification

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// Pusher publishes a payload on a named stream, e.g. the websocket hub.
type Pusher interface {
	Push(channel string, payload []byte)
}

// Push forwards alerts to websocket clients on "pub:didi:notify:{operation}".
type Push struct {
	pusher Pusher
}

func NewPush(p Pusher) *Push { return &Push{pusher: p} }

func (p *Push) Name() string { return "push" }

func (p *Push) Send(_ context.Context, a Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("push: marshal: %w", err)
	}
	p.pusher.Push("pub:didi:notify:"+a.Operation, payload)
	return nil
}
