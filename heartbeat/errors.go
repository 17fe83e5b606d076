package heartbeat

import (
	"errors"
	"fmt"
	"time"
)

// Detection verdicts are ordinary error values carrying their diagnostic
// fields; match them with errors.As. Observe returns at most one verdict
// per beat, and a verdict is never a panic: a failing producer is the
// expected input here. Transport failures are kept strictly separate and
// pass through the layers unchanged.

// TimeoutError reports that the silence bound was reached: Since is the
// time since the last accepted beat (or since arming, if nothing was
// accepted yet).
type TimeoutError struct {
	Since time.Duration
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("no accepted beat for %v", e.Since)
}

// WindowError reports a beat whose spacing fell outside the inclusive
// acceptance window [Min, Max]. The beat was still accepted as proof of
// life.
type WindowError struct {
	Min, Max time.Duration
	Actual   time.Duration
}

func (e WindowError) Error() string {
	return fmt.Sprintf("beat spacing %v outside window [%v, %v]", e.Actual, e.Min, e.Max)
}

// OutOfOrderError reports a beat with the wrong polarity. The beat was
// not accepted and the expectation did not move.
type OutOfOrderError struct {
	Expected, Actual Edge
}

func (e OutOfOrderError) Error() string {
	return fmt.Sprintf("expected %s edge, got %s", e.Expected, e.Actual)
}

// IsVerdict reports whether err is one of the three detection verdicts,
// as opposed to a transport or configuration failure.
func IsVerdict(err error) bool {
	var t TimeoutError
	var w WindowError
	var o OutOfOrderError
	return errors.As(err, &t) || errors.As(err, &w) || errors.As(err, &o)
}
