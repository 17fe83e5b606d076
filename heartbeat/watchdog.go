package heartbeat

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Watchdog validates a stream of observed beats against a Config.
//
// It is either disarmed (all input ignored) or armed (every beat judged).
// The armed flag, the last accepted instant and the expected polarity are
// three independent atomics: Observe and Check never take a lock, and
// Disarm may be called concurrently with either. Observe itself must be
// called from a single goroutine; beats have no meaningful order across
// callers anyway.
type Watchdog struct {
	cfg Config
	clk clock.Clock

	armed    atomic.Bool
	last     atomic.Int64  // UnixNano of the last accepted beat, or of arming
	expected atomic.Uint32 // Edge the next beat must carry while Ordered
}

// New creates a disarmed Watchdog on the wall clock.
func New(cfg Config) (*Watchdog, error) {
	return NewWithClock(cfg, clock.New())
}

// NewWithClock creates a disarmed Watchdog on the given clock. Tests and
// cooperatively scheduled hosts pass clock.NewMock().
func NewWithClock(cfg Config, clk clock.Clock) (*Watchdog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("watchdog config: %w", err)
	}
	w := &Watchdog{cfg: cfg, clk: clk}
	w.expected.Store(uint32(Rising))
	return w, nil
}

// Config returns the timing contract the watchdog was built with.
func (w *Watchdog) Config() Config {
	return w.cfg
}

// Arm starts monitoring: the silence clock restarts at now and the next
// expected polarity is Rising. Arming an armed watchdog has the same
// effect, so a re-arm never produces a spurious timeout from pre-arm
// silence.
func (w *Watchdog) Arm() {
	// State is written before the armed flag so a concurrent Check never
	// measures against a stale instant.
	w.last.Store(w.clk.Now().UnixNano())
	w.expected.Store(uint32(Rising))
	w.armed.Store(true)
}

// Disarm stops monitoring. Idempotent, safe to call concurrently with
// Observe and Check, and takes effect no later than their next call.
func (w *Watchdog) Disarm() {
	w.armed.Store(false)
}

// Armed reports whether the watchdog is monitoring.
func (w *Watchdog) Armed() bool {
	return w.armed.Load()
}

// Observe judges one received beat. The verdicts and their state effects:
//
//   - nil while disarmed: nothing is recorded at all.
//   - TimeoutError: spacing reached MaxSilence. The beat is NOT accepted,
//     so every later beat keeps timing out until the watchdog is re-armed;
//     a timeout is not a recovery point.
//   - OutOfOrderError: wrong polarity. The beat is NOT accepted and the
//     expectation does not flip, so a producer stuck on one polarity keeps
//     failing rather than resynchronizing the monitor to its bug.
//   - WindowError: spacing outside the acceptance window. The beat IS
//     accepted (reference advances, expectation flips): jitter is reported
//     but absorbed, since the beat still proves the producer is alive.
//   - nil: an on-time beat, accepted.
//
// At most one verdict per beat; the silence rule wins over the others.
func (w *Watchdog) Observe(b Beat) error {
	if !w.armed.Load() {
		return nil
	}

	elapsed := b.ObservedAt.Sub(time.Unix(0, w.last.Load()))
	if elapsed >= w.cfg.MaxSilence {
		return TimeoutError{Since: elapsed}
	}

	expected := Edge(w.expected.Load())
	if w.cfg.Ordered && b.Edge != expected {
		return OutOfOrderError{Expected: expected, Actual: b.Edge}
	}

	// Accepted: advance the reference and flip the expectation before the
	// window check, which reports but does not reject.
	w.last.Store(b.ObservedAt.UnixNano())
	w.expected.Store(uint32(expected.Flip()))

	if min, max := w.cfg.Window(); elapsed < min || elapsed > max {
		return WindowError{Min: min, Max: max, Actual: elapsed}
	}
	return nil
}

// Check applies only the silence rule at the given instant, for hosts
// that poll between beats. It never advances state, so consecutive checks
// past the bound keep reporting the growing silence.
func (w *Watchdog) Check(now time.Time) error {
	if !w.armed.Load() {
		return nil
	}
	elapsed := now.Sub(time.Unix(0, w.last.Load()))
	if elapsed >= w.cfg.MaxSilence {
		return TimeoutError{Since: elapsed}
	}
	return nil
}

// SilenceDeadline returns the instant at which Check would first report a
// timeout if no further beat were accepted. ok is false while disarmed.
func (w *Watchdog) SilenceDeadline() (deadline time.Time, ok bool) {
	if !w.armed.Load() {
		return time.Time{}, false
	}
	return time.Unix(0, w.last.Load()).Add(w.cfg.MaxSilence), true
}
