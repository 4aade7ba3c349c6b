// Package tfbuilder resamples finest-grained klines into coarser time frames.
// Bars are consumed in open_time order and merged into a forming bucket in
// O(1); when a bar lands in a new bucket, the previous one is finalized.
package tfbuilder

import (
	"didibot/internal/clock"
	"didibot/internal/model"
)

// Builder resamples klines into one time frame. Not safe for concurrent use.
type Builder struct {
	tf      int64
	bucket  int64
	forming model.Kline
	started bool
	out     []model.Kline

	// OnStaleBar is called when a bar older than the forming bucket is dropped (optional).
	OnStaleBar func(k model.Kline)
}

// New creates a builder for tf seconds.
func New(tf int64) *Builder {
	return &Builder{tf: tf}
}

// Add merges one bar. Bars must arrive in ascending open_time.
func (b *Builder) Add(k model.Kline) {
	bucket := clock.Align(k.OpenTime, b.tf)

	if b.started && bucket < b.bucket {
		if b.OnStaleBar != nil {
			b.OnStaleBar(k)
		}
		return
	}

	if b.started && bucket > b.bucket {
		b.out = append(b.out, b.forming)
		b.started = false
	}

	if !b.started {
		b.bucket = bucket
		b.started = true
		b.forming = model.Kline{
			OpenTime: bucket,
			Open:     k.Open,
			High:     k.High,
			Low:      k.Low,
			Close:    k.Close,
			Volume:   k.Volume,
		}
		return
	}

	fc := &b.forming
	if k.High > fc.High {
		fc.High = k.High
	}
	if k.Low < fc.Low {
		fc.Low = k.Low
	}
	fc.Close = k.Close
	fc.Volume += k.Volume
}

// Flush finalizes the forming bucket and returns every finalized bar.
// The builder is reset.
func (b *Builder) Flush() []model.Kline {
	if b.started {
		b.out = append(b.out, b.forming)
		b.started = false
	}
	out := b.out
	b.out = nil
	return out
}

// Resample aggregates ks into tf-second bars with open=first, high=max,
// low=min, close=last and volume=sum.
func Resample(ks []model.Kline, tf int64) []model.Kline {
	b := New(tf)
	for _, k := range ks {
		b.Add(k)
	}
	out := b.Flush()
	for i := range out {
		out[i] = out[i].WithCloseTime(tf)
	}
	return out
}
