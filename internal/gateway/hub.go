// Package gateway fans operation events out to websocket clients: results
// and orders relayed from the redis series, and notifier pushes.
package gateway

import (
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	clientBuffer = 256
	backlogSize  = 500
)

// Hub tracks websocket clients and the recent envelopes of every channel.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	latest   map[string][]byte
	seq      int64
	chanSeqs map[string]int64
	backlogs map[string]*Backlog

	now func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		clients:  make(map[*Client]bool),
		latest:   make(map[string][]byte),
		chanSeqs: make(map[string]int64),
		backlogs: make(map[string]*Backlog),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Broadcast wraps data in an envelope and queues it to every client
// subscribed to channel. Slow clients miss messages rather than block.
//
//	{"channel":"...","data":<data>,"ts":"...","seq":N,"channel_seq":M}
func (h *Hub) Broadcast(channel string, data []byte) {
	now := h.now()

	h.mu.Lock()
	h.seq++
	h.chanSeqs[channel]++
	seq, chanSeq := h.seq, h.chanSeqs[channel]
	bl, ok := h.backlogs[channel]
	if !ok {
		bl = NewBacklog(backlogSize)
		h.backlogs[channel] = bl
	}
	h.mu.Unlock()

	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, chanSeq, 10)
	buf = append(buf, '}')
	bl.Push(chanSeq, buf)

	h.mu.Lock()
	h.latest[channel] = buf
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(channel) {
			continue
		}
		select {
		case c.send <- buf:
		default:
		}
	}
}

// Register starts serving conn and sends it the latest envelope of every channel.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	c := newClient(h, conn)
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	for _, env := range h.latest {
		select {
		case c.send <- env:
		default:
		}
	}
	h.mu.Unlock()
	log.Printf("[gateway] ws client connected (%d total)", count)

	go c.writePump()
	go c.readPump()
	return c
}

// RemoveClient drops c and closes its queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Missed returns the buffered envelopes of channel with channel_seq in [from, to].
func (h *Hub) Missed(channel string, from, to int64) [][]byte {
	h.mu.RLock()
	bl, ok := h.backlogs[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	var out [][]byte
	for _, e := range bl.Range(from, to) {
		out = append(out, e.Data)
	}
	return out
}

// ChannelSeq is the last channel_seq sent on channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.chanSeqs[channel]
}

// ChannelStat is the push state of one channel.
type ChannelStat struct {
	Channel  string `json:"channel"`
	Seq      int64  `json:"seq"`
	Buffered int    `json:"buffered"`
}

// Stats returns the channels seen so far, sorted by name.
func (h *Hub) Stats() []ChannelStat {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ChannelStat, 0, len(h.backlogs))
	for ch, bl := range h.backlogs {
		out = append(out, ChannelStat{Channel: ch, Seq: h.chanSeqs[ch], Buffered: bl.Len()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}
