package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"didibot/internal/model"
)

// pendingWrite is a write held back while the circuit is open.
type pendingWrite struct {
	operation string
	symbol    string
	result    *model.AnalysisResult
	order     *model.Order
}

// BufferedWriter wraps a series writer with a circuit breaker. While the
// circuit is open, writes are buffered locally and replayed once it closes.
type BufferedWriter struct {
	writer model.SeriesWriter
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int

	OnBuffer func()          // called when a write is buffered (optional)
	OnFlush  func(count int) // called after buffered writes are replayed (optional)
}

// NewBufferedWriter buffers at most maxBufferSize writes, dropping the oldest beyond it.
func NewBufferedWriter(ctx context.Context, w model.SeriesWriter, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		maxBuf: maxBufferSize,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		switch {
		case to == StateOpen && from == StateClosed:
			log.Printf("[buffered-writer] redis unavailable, buffering series writes for %s", cb.resetTimeout)
		case to == StateClosed && from != StateClosed:
			go bw.Flush()
		}
	}
	return bw
}

func (bw *BufferedWriter) WriteResult(ctx context.Context, operation, symbol string, r model.AnalysisResult) error {
	err := bw.cb.Execute(func() error { return bw.writer.WriteResult(ctx, operation, symbol, r) })
	return bw.handle(err, pendingWrite{operation: operation, symbol: symbol, result: &r})
}

func (bw *BufferedWriter) WriteOrder(ctx context.Context, operation, symbol string, o model.Order) error {
	err := bw.cb.Execute(func() error { return bw.writer.WriteOrder(ctx, operation, symbol, o) })
	return bw.handle(err, pendingWrite{operation: operation, symbol: symbol, order: &o})
}

// handle buffers failed writes; series loss never stops the trading loop.
func (bw *BufferedWriter) handle(err error, pw pendingWrite) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrCircuitOpen) {
		log.Printf("[buffered-writer] write %s/%s failed, buffering: %v", pw.operation, pw.symbol, err)
	}
	bw.mu.Lock()
	if len(bw.buffer) >= bw.maxBuf {
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, pw)
	bw.mu.Unlock()
	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
	return nil
}

// Flush replays the buffered writes in order. Writes failing again stay buffered.
func (bw *BufferedWriter) Flush() {
	bw.mu.Lock()
	toFlush := bw.buffer
	bw.buffer = nil
	bw.mu.Unlock()
	if len(toFlush) == 0 {
		return
	}

	var failed []pendingWrite
	for _, pw := range toFlush {
		var err error
		if pw.result != nil {
			err = bw.writer.WriteResult(bw.ctx, pw.operation, pw.symbol, *pw.result)
		} else {
			err = bw.writer.WriteOrder(bw.ctx, pw.operation, pw.symbol, *pw.order)
		}
		if err != nil {
			failed = append(failed, pw)
		}
	}

	if len(failed) > 0 {
		bw.mu.Lock()
		bw.buffer = append(failed, bw.buffer...)
		bw.mu.Unlock()
	}
	flushed := len(toFlush) - len(failed)
	log.Printf("[buffered-writer] flushed %d buffered writes, %d still pending", flushed, len(failed))
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}
