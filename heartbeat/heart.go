package heartbeat

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// Heart produces the beat train: edges of alternating polarity, starting
// with Rising, paced one Period apart. It shares the Config with the
// Watchdog that will judge it so the two sides cannot drift apart on the
// timing contract.
type Heart struct {
	period time.Duration
	clk    clock.Clock
	tx     Sender

	next     Edge
	lastSend time.Time
}

// NewHeart creates a Heart on the wall clock sending through tx.
func NewHeart(cfg Config, tx Sender) (*Heart, error) {
	return NewHeartWithClock(cfg, tx, clock.New())
}

// NewHeartWithClock creates a Heart on the given clock.
func NewHeartWithClock(cfg Config, tx Sender, clk clock.Clock) (*Heart, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("heart config: %w", err)
	}
	return &Heart{period: cfg.Period, clk: clk, tx: tx, next: Rising}, nil
}

// Beat sends the next edge. The first call sends immediately; later calls
// first sleep until one Period has passed since the previous send. The
// pacing reference is the moment of the send itself, not the moment the
// wait began, so scheduling latency on one beat is not compounded into
// the next; drift stays bounded per beat instead of accumulating.
//
// A transport error is returned unchanged. The polarity does not flip and
// the reference does not advance on failure, so a caller-driven retry
// re-sends the same edge without an extra wait; there is no automatic
// retry. Beat must not be called concurrently with itself.
func (h *Heart) Beat() error {
	if !h.lastSend.IsZero() {
		if wait := h.lastSend.Add(h.period).Sub(h.clk.Now()); wait > 0 {
			h.clk.Sleep(wait)
		}
	}

	if err := h.tx.Send(h.next); err != nil {
		return err
	}

	h.lastSend = h.clk.Now()
	h.next = h.next.Flip()
	return nil
}

// Period returns the configured beat period.
func (h *Heart) Period() time.Duration {
	return h.period
}
