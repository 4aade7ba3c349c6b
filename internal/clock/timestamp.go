package clock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HumanLayout is the human readable timestamp format, always interpreted as UTC.
const HumanLayout = "2006-01-02 15:04:05"

// ErrTimeFormat is matched by every TimeFormatError.
var ErrTimeFormat = errors.New("time format error")

// TimeFormatError reports an input that is neither integer seconds nor HumanLayout.
type TimeFormatError struct {
	Input string
}

func (e *TimeFormatError) Error() string {
	return fmt.Sprintf("time format error: %q is not %q nor integer seconds", e.Input, "YYYY-MM-DD HH:mm:ss")
}

func (e *TimeFormatError) Unwrap() error { return ErrTimeFormat }

// ParseTimestamp accepts integer UTC seconds or "YYYY-MM-DD HH:mm:ss" (UTC).
func ParseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &TimeFormatError{Input: s}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	t, err := time.ParseInLocation(HumanLayout, s, time.UTC)
	if err != nil {
		return 0, &TimeFormatError{Input: s}
	}
	return t.Unix(), nil
}

// FormatTimestamp renders integer UTC seconds as "YYYY-MM-DD HH:mm:ss".
func FormatTimestamp(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(HumanLayout)
}

// Millis converts seconds to exchange milliseconds.
func Millis(ts int64) int64 { return ts * 1000 }

// FromMillis converts exchange milliseconds to seconds.
func FromMillis(ms int64) int64 { return ms / 1000 }
