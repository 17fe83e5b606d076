package heartbeat

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the timing contract shared by a Heart and a Watchdog.
// Build one with NewConfig and adjust fields before handing it to a
// constructor; constructors validate eagerly, so a bad combination fails
// at build time rather than as a spurious verdict later.
type Config struct {
	// Period is the nominal time between consecutive beats.
	Period time.Duration

	// ToleranceLow and ToleranceHigh bound the acceptance window around
	// Period: a beat is on time when its spacing from the previous
	// accepted beat falls inside [Period-ToleranceLow, Period+ToleranceHigh],
	// both ends inclusive.
	ToleranceLow  time.Duration
	ToleranceHigh time.Duration

	// MaxSilence is the absolute liveness bound. Spacing at or above it is
	// a timeout regardless of the window. Must be at least
	// Period+ToleranceHigh.
	MaxSilence time.Duration

	// Ordered enables polarity checking: beats must strictly alternate,
	// starting with Rising after arming. Disable it for transports that
	// cannot preserve ordering; polarity is then ignored entirely.
	Ordered bool
}

// NewConfig returns the default contract for a period: a tenth of the
// period of tolerance each side, a silence bound of twice the period, and
// ordering enabled.
func NewConfig(period time.Duration) Config {
	return Config{
		Period:        period,
		ToleranceLow:  period / 10,
		ToleranceHigh: period / 10,
		MaxSilence:    2 * period,
		Ordered:       true,
	}
}

// Validate checks the timing invariants. All violations are reported
// together, not just the first.
func (c Config) Validate() error {
	var errs []error
	if c.Period <= 0 {
		errs = append(errs, fmt.Errorf("period must be positive, got %v", c.Period))
	}
	if c.ToleranceLow < 0 {
		errs = append(errs, fmt.Errorf("tolerance low must not be negative, got %v", c.ToleranceLow))
	}
	if c.ToleranceHigh < 0 {
		errs = append(errs, fmt.Errorf("tolerance high must not be negative, got %v", c.ToleranceHigh))
	}
	if c.MaxSilence < c.Period+c.ToleranceHigh {
		errs = append(errs, fmt.Errorf("max silence %v must be at least period+tolerance high (%v)",
			c.MaxSilence, c.Period+c.ToleranceHigh))
	}
	return errors.Join(errs...)
}

// Window returns the inclusive acceptance bounds around Period.
func (c Config) Window() (min, max time.Duration) {
	return c.Period - c.ToleranceLow, c.Period + c.ToleranceHigh
}
