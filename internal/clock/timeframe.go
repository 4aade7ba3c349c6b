// Package clock holds the time-frame arithmetic shared by the klines pipeline,
// the analyzers and the tick scheduler. All timestamps are integer UTC seconds.
package clock

import (
	"fmt"
	"strconv"
	"strings"
)

// unitSeconds maps a time-frame unit to its length in seconds.
// "M" is a 30 day month so the exchange's 1M frame stays parseable.
var unitSeconds = map[byte]int64{
	'm': 60,
	'h': 3600,
	'd': 86400,
	'w': 604800,
	'M': 2592000,
}

// SecondsIn parses a time frame such as "15m" or "4h" and returns its length in seconds.
func SecondsIn(tf string) (int64, error) {
	tf = strings.TrimSpace(tf)
	if len(tf) < 2 {
		return 0, fmt.Errorf("invalid time frame %q", tf)
	}
	unit := tf[len(tf)-1]
	secs, ok := unitSeconds[unit]
	if !ok {
		return 0, fmt.Errorf("invalid time frame %q: unknown unit %q", tf, string(unit))
	}
	amount, err := strconv.ParseInt(tf[:len(tf)-1], 10, 64)
	if err != nil || amount <= 0 {
		return 0, fmt.Errorf("invalid time frame %q: bad amount", tf)
	}
	return amount * secs, nil
}

// MustSecondsIn is SecondsIn for frames validated at setup time.
func MustSecondsIn(tf string) int64 {
	s, err := SecondsIn(tf)
	if err != nil {
		panic(err)
	}
	return s
}

// Align returns the start of the tf-sized window containing ts.
func Align(ts, tfSeconds int64) int64 {
	if tfSeconds <= 0 {
		return ts
	}
	r := ts % tfSeconds
	if r < 0 {
		r += tfSeconds
	}
	return ts - r
}

// IsClosed reports whether the bar opened at openTime has closed at now.
func IsClosed(openTime, tfSeconds, now int64) bool {
	return now >= openTime+tfSeconds
}

// LastClosedOpenTime returns the open time of the most recent closed bar at now.
func LastClosedOpenTime(tfSeconds, now int64) int64 {
	return Align(now, tfSeconds) - tfSeconds
}

// NextClosedCandleDelay returns how many seconds to wait, counted from now, until the bar
// following the one opened at openTime has closed. A short backoff is returned when that
// moment has already passed.
func NextClosedCandleDelay(tfSeconds, openTime, now int64) int64 {
	delta := openTime + 2*tfSeconds - now
	if delta <= 0 {
		return tfSeconds/10 + 3
	}
	return delta + 3
}

// Finest returns the shortest frame of the list.
func Finest(tfs []string) (string, error) {
	best := ""
	var bestSecs int64
	for _, tf := range tfs {
		s, err := SecondsIn(tf)
		if err != nil {
			return "", err
		}
		if best == "" || s < bestSecs {
			best, bestSecs = tf, s
		}
	}
	if best == "" {
		return "", fmt.Errorf("no time frames")
	}
	return best, nil
}
