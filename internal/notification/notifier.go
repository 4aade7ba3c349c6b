// Package notification fans operation messages out to broadcasters
// (screen, Telegram, WhatsApp webhook, email, websocket push).
package notification

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"didibot/internal/metrics"
	"didibot/internal/model"
)

// Channel is the kind of a message.
type Channel string

const (
	ChannelDebug Channel = "debug"
	ChannelError Channel = "error"
	ChannelTrade Channel = "trade"
)

// Header is the prefix every broadcaster puts in front of a message of this channel.
func (c Channel) Header() string {
	switch c {
	case ChannelError:
		return "[ERROR]"
	case ChannelTrade:
		return "[TRADE]"
	default:
		return "[DEBUG]"
	}
}

// Alert is one message to deliver.
type Alert struct {
	Operation string    `json:"operation"`
	Channel   Channel   `json:"channel"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Text is the header followed by the message.
func (a Alert) Text() string {
	if a.Operation == "" {
		return a.Channel.Header() + " " + a.Message
	}
	return a.Channel.Header() + " " + a.Operation + ": " + a.Message
}

// Broadcaster delivers alerts to one destination.
type Broadcaster interface {
	Name() string
	Send(ctx context.Context, a Alert) error
}

// Notifier implements model.Notifier for one Operation. Delivery is best
// effort: a failing broadcaster is logged and counted, never returned.
type Notifier struct {
	operation    string
	broadcasters []Broadcaster
	debug        bool
	debugEvery   int
	metrics      *metrics.Metrics
	now          func() time.Time

	mu      sync.Mutex
	pending []string
	ticks   int
}

var _ model.Notifier = (*Notifier)(nil)

// New builds a notifier. With setup.DebugEvery > 1 debug messages are held
// and sent as one digest every DebugEvery calls to Flush.
func New(operation string, setup model.NotifierSetup, bs []Broadcaster) *Notifier {
	return &Notifier{
		operation:    operation,
		broadcasters: bs,
		debug:        setup.Debug,
		debugEvery:   setup.DebugEvery,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (n *Notifier) WithMetrics(m *metrics.Metrics) *Notifier { n.metrics = m; return n }

func (n *Notifier) Debug(ctx context.Context, msg string) {
	if !n.debug {
		return
	}
	if n.debugEvery > 1 {
		n.mu.Lock()
		n.pending = append(n.pending, msg)
		n.mu.Unlock()
		return
	}
	n.send(ctx, ChannelDebug, msg)
}

func (n *Notifier) Error(ctx context.Context, msg string) { n.send(ctx, ChannelError, msg) }

func (n *Notifier) Trade(ctx context.Context, msg string) { n.send(ctx, ChannelTrade, msg) }

// Flush marks the end of a tick and sends the held debug digest when due.
func (n *Notifier) Flush(ctx context.Context) {
	n.mu.Lock()
	n.ticks++
	if n.debugEvery <= 1 || n.ticks%n.debugEvery != 0 || len(n.pending) == 0 {
		n.mu.Unlock()
		return
	}
	digest := strings.Join(n.pending, "\n")
	n.pending = nil
	n.mu.Unlock()

	n.send(ctx, ChannelDebug, digest)
}

func (n *Notifier) send(ctx context.Context, ch Channel, msg string) {
	a := Alert{Operation: n.operation, Channel: ch, Message: msg, At: n.now()}
	for _, b := range n.broadcasters {
		if err := b.Send(ctx, a); err != nil {
			n.metrics.NotifierFailure(b.Name())
			log.Printf("[notify] %s failed: %v (undelivered: %s)", b.Name(), err, a.Text())
		}
	}
}
