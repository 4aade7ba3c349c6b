package clock

import (
	"context"
	"math"
	"sync"
	"time"
)

// DefaultMaxCooldown caps the retry cooldown of the klines getter.
const DefaultMaxCooldown = time.Hour

// CooldownTime grows from 2s towards tMax+2s as attempts accumulate, and is capped at tMax.
//
//	t(attempt) = 2 + tMax * (1 - exp(-(attempt-1)/1000))
func CooldownTime(attempt int, tMax time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	maxSecs := tMax.Seconds()
	secs := 2 + maxSecs*(1-math.Exp(-float64(attempt-1)/1000))
	if secs > maxSecs {
		secs = maxSecs
	}
	return time.Duration(secs * float64(time.Second))
}

// Clock yields the current time in UTC seconds.
type Clock interface {
	Now() int64
}

// System reads the wall clock.
type System struct{}

func (System) Now() int64 { return time.Now().UTC().Unix() }

// Virtual is a manually advanced clock used by backtesting.
type Virtual struct {
	mu  sync.RWMutex
	now int64
}

// NewVirtual starts a virtual clock at ts.
func NewVirtual(ts int64) *Virtual {
	return &Virtual{now: ts}
}

func (v *Virtual) Now() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.now
}

// Advance moves the clock forward by secs.
func (v *Virtual) Advance(secs int64) {
	v.mu.Lock()
	v.now += secs
	v.mu.Unlock()
}

// Set moves the clock to ts.
func (v *Virtual) Set(ts int64) {
	v.mu.Lock()
	v.now = ts
	v.mu.Unlock()
}

// Sleeper blocks for a duration unless ctx is cancelled first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper sleeps on the wall clock.
type RealSleeper struct{}

func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoSleep returns immediately; backtesting advances a Virtual clock instead.
type NoSleep struct{}

func (NoSleep) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }
