package model

import (
	"errors"
	"fmt"

	"didibot/internal/clock"
)

var (
	ErrTimeFormat    = clock.ErrTimeFormat
	ErrBroker        = errors.New("broker error")
	ErrStorage       = errors.New("storage error")
	ErrValue         = errors.New("invalid value")
	ErrIndex         = errors.New("not enough data")
	ErrOrderRejected = errors.New("order rejected")
	ErrNotFound      = errors.New("not found")
)

// TimeFormatError is an alias so callers only need this package.
type TimeFormatError = clock.TimeFormatError

// BrokerError wraps a failed broker call. Status is the HTTP status when known.
type BrokerError struct {
	Op     string
	Status int
	Err    error
}

func (e *BrokerError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("broker %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("broker %s: %v", e.Op, e.Err)
}

func (e *BrokerError) Unwrap() []error { return []error{ErrBroker, e.Err} }

// NewBrokerError wraps err, returning nil when err is nil.
func NewBrokerError(op string, status int, err error) error {
	if err == nil {
		return nil
	}
	return &BrokerError{Op: op, Status: status, Err: err}
}
