// Package model defines the domain entities shared by the klines pipeline,
// the analyzers and the order coordinator, plus the ports between them.
package model

import "didibot/internal/clock"

// Ticker is a symbol pair on one exchange. In BTC/USDT, BTC is the quote
// (traded) asset and USDT the base (pricing) asset.
type Ticker struct {
	Symbol string `json:"symbol" db:"symbol" toml:"symbol" validate:"required"`
	Base   string `json:"base" db:"base" toml:"base" validate:"required"`
	Quote  string `json:"quote" db:"quote" toml:"quote" validate:"required"`
}

func (t Ticker) String() string { return t.Quote + "/" + t.Base }

// Kline is one OHLCV bar. OpenTime is aligned to the bar's time frame.
type Kline struct {
	OpenTime  int64   `json:"open_time" db:"open_time"`
	Open      float64 `json:"open" db:"open"`
	High      float64 `json:"high" db:"high"`
	Low       float64 `json:"low" db:"low"`
	Close     float64 `json:"close" db:"close"`
	Volume    float64 `json:"volume" db:"volume"`
	CloseTime int64   `json:"close_time,omitempty" db:"-"`

	// OpenTimeHuman is only filled by getters configured to return human readable times.
	OpenTimeHuman string `json:"open_time_human,omitempty" db:"-"`
}

// WithCloseTime sets CloseTime = OpenTime + tf - 1.
func (k Kline) WithCloseTime(tfSeconds int64) Kline {
	k.CloseTime = k.OpenTime + tfSeconds - 1
	return k
}

// IsClosed reports whether the bar has closed at now.
func (k Kline) IsClosed(tfSeconds, now int64) bool {
	return clock.IsClosed(k.OpenTime, tfSeconds, now)
}

// DropUnclosed removes the trailing bar when it has not closed at now.
func DropUnclosed(ks []Kline, tfSeconds, now int64) []Kline {
	if n := len(ks); n > 0 && !ks[n-1].IsClosed(tfSeconds, now) {
		return ks[:n-1]
	}
	return ks
}

// Humanize fills OpenTimeHuman on every bar.
func Humanize(ks []Kline) []Kline {
	for i := range ks {
		ks[i].OpenTimeHuman = clock.FormatTimestamp(ks[i].OpenTime)
	}
	return ks
}

// Selection chooses a window of bars. Zero fields are unset:
//
//	Since & Until          -> range
//	NumberSamples & Since  -> forward N
//	NumberSamples & Until  -> backward N
//	nothing                -> full available range
type Selection struct {
	Since         int64
	Until         int64
	NumberSamples int
}

// KlinesRequest is one page asked to a broker. Zero fields are omitted.
type KlinesRequest struct {
	Since int64
	Until int64
	Limit int
}

// AnalysisResult is one enriched row produced by a classifier.
type AnalysisResult struct {
	OpenTime int64              `json:"open_time"`
	Score    float64            `json:"score"`
	Values   map[string]float64 `json:"values"`
}
