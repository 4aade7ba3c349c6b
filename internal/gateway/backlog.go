package gateway

import "sync"

type backlogEntry struct {
	Seq  int64
	Data []byte
}

// Backlog is a fixed-size ring of the last envelopes of one channel,
// kept so clients can fill sequence gaps.
type Backlog struct {
	mu      sync.RWMutex
	entries []backlogEntry
	next    int
	full    bool
}

func NewBacklog(size int) *Backlog {
	if size <= 0 {
		size = backlogSize
	}
	return &Backlog{entries: make([]backlogEntry, size)}
}

// Push stores a copy of data, evicting the oldest entry when full.
func (b *Backlog) Push(seq int64, data []byte) {
	cp := append([]byte(nil), data...)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.next] = backlogEntry{Seq: seq, Data: cp}
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Range returns the entries with seq in [from, to], oldest first.
func (b *Backlog) Range(from, to int64) []backlogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, start := b.next, 0
	if b.full {
		n, start = len(b.entries), b.next
	}
	var out []backlogEntry
	for i := 0; i < n; i++ {
		e := b.entries[(start+i)%len(b.entries)]
		if e.Seq >= from && e.Seq <= to {
			out = append(out, e)
		}
	}
	return out
}

func (b *Backlog) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.full {
		return len(b.entries)
	}
	return b.next
}
