// Package klines implements the klines getters: a selection sanitizer, a
// rate-limited paginated getter over a broker, a getter over the klines
// store and a synced getter that backfills the store before reading it.
package klines

import (
	"strings"

	"didibot/internal/clock"
	"didibot/internal/model"
)

// Mode is the resolved kind of a Selection.
type Mode int

const (
	ModeFull Mode = iota
	ModeRange
	ModeForward
	ModeBackward
)

func (m Mode) String() string {
	switch m {
	case ModeRange:
		return "range"
	case ModeForward:
		return "forward"
	case ModeBackward:
		return "backward"
	default:
		return "full"
	}
}

// ModeOf classifies sel. Since and Until together always mean a range;
// NumberSamples alone counts back from the newest bar.
func ModeOf(sel model.Selection) Mode {
	switch {
	case sel.Since != 0 && sel.Until != 0:
		return ModeRange
	case sel.NumberSamples > 0 && sel.Since != 0:
		return ModeForward
	case sel.NumberSamples > 0:
		return ModeBackward
	case sel.Since != 0 || sel.Until != 0:
		return ModeRange
	}
	return ModeFull
}

// Sanitize resolves sel into an inclusive [since, until] window of open times,
// clamped to [oldest, newest] and swapped when reversed.
func Sanitize(sel model.Selection, tfSeconds, oldest, newest int64) (since, until int64) {
	span := int64(sel.NumberSamples-1) * tfSeconds

	switch ModeOf(sel) {
	case ModeRange:
		since, until = sel.Since, sel.Until
		if since == 0 {
			since = oldest
		}
		if until == 0 {
			until = newest
		}
	case ModeForward:
		since = sel.Since
		until = since + span
	case ModeBackward:
		until = sel.Until
		if until == 0 {
			until = newest
		}
		since = until - span
	default:
		since, until = oldest, newest
	}

	if since > until {
		since, until = until, since
	}
	if since < oldest {
		since = oldest
	}
	if until > newest {
		until = newest
	}
	return since, until
}

// SelectionFromText parses optional human readable or integer bounds.
// Empty strings leave the bound unset.
func SelectionFromText(since, until string, numberSamples int) (model.Selection, error) {
	sel := model.Selection{NumberSamples: numberSamples}
	var err error
	if strings.TrimSpace(since) != "" {
		if sel.Since, err = clock.ParseTimestamp(since); err != nil {
			return model.Selection{}, err
		}
	}
	if strings.TrimSpace(until) != "" {
		if sel.Until, err = clock.ParseTimestamp(until); err != nil {
			return model.Selection{}, err
		}
	}
	return sel, nil
}
