package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Status is the aggregate health verdict maintained by a Supervisor.
type Status uint8

const (
	StatusFault Status = iota
	StatusOK
)

// String returns "OK" or "FAULT".
func (s Status) String() string {
	if s == StatusOK {
		return "OK"
	}
	return "FAULT"
}

// FaultKind says why a Supervisor is in StatusFault.
type FaultKind string

const (
	// FaultInitial is the starting state: a supervisor is born faulted and
	// must earn OK with clean beats.
	FaultInitial FaultKind = "INITIAL"

	FaultTimeout    FaultKind = "TIMEOUT"
	FaultWindow     FaultKind = "WINDOW"
	FaultOutOfOrder FaultKind = "OUT_OF_ORDER"
)

// StateEvent records one status flip.
type StateEvent struct {
	Status Status
	Kind   FaultKind // reason, set when Status is StatusFault
	Err    error     // verdict that caused the fault; nil for FaultInitial
	At     time.Time
}

// Counts are the running totals of what a Supervisor has seen.
type Counts struct {
	Observed   uint64 // beats received from the transport
	Accepted   uint64 // beats that advanced the watchdog cleanly
	Timeouts   uint64
	Windows    uint64
	OutOfOrder uint64
}

// SupervisorConfig extends the beat timing contract with recovery policy.
type SupervisorConfig struct {
	Config

	// MinBeats is the number of beat pairs (twice this many edges) that
	// must arrive clean, back to back, before a fault flips to OK.
	MinBeats int

	// Warmup is the grace taken after the initial arming and after every
	// timeout: the supervisor waits this long, drops whatever the
	// transport buffered meanwhile, and re-arms with a fresh silence
	// clock.
	Warmup time.Duration
}

// NewSupervisorConfig returns the default recovery policy for a period:
// two clean beat pairs to leave FAULT, and a warmup of twice the period.
func NewSupervisorConfig(period time.Duration) SupervisorConfig {
	return SupervisorConfig{
		Config:   NewConfig(period),
		MinBeats: 2,
		Warmup:   2 * period,
	}
}

// Validate checks the timing contract and the recovery policy together.
func (c SupervisorConfig) Validate() error {
	var errs []error
	if err := c.Config.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MinBeats < 1 {
		errs = append(errs, fmt.Errorf("min beats must be at least 1, got %d", c.MinBeats))
	}
	if c.Warmup < 0 {
		errs = append(errs, fmt.Errorf("warmup must not be negative, got %v", c.Warmup))
	}
	return errors.Join(errs...)
}

// Supervisor runs a Watchdog over a Receiver and folds the per-beat
// verdicts into a single OK/FAULT status with hysteresis: any verdict
// faults immediately, and OK is regained only after MinBeats clean beat
// pairs in a row. Status flips are published on a capacity-1 latest-wins
// channel, so a slow consumer always sees the newest flip rather than a
// stale backlog.
type Supervisor struct {
	cfg SupervisorConfig
	wd  *Watchdog
	clk clock.Clock

	ok     atomic.Bool
	events chan StateEvent

	observed   atomic.Uint64
	accepted   atomic.Uint64
	timeouts   atomic.Uint64
	windows    atomic.Uint64
	outOfOrder atomic.Uint64
}

// NewSupervisor creates a Supervisor on the wall clock.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	return NewSupervisorWithClock(cfg, clock.New())
}

// NewSupervisorWithClock creates a Supervisor on the given clock.
func NewSupervisorWithClock(cfg SupervisorConfig, clk clock.Clock) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("supervisor config: %w", err)
	}
	wd, err := NewWithClock(cfg.Config, clk)
	if err != nil {
		return nil, err
	}
	return &Supervisor{
		cfg:    cfg,
		wd:     wd,
		clk:    clk,
		events: make(chan StateEvent, 1),
	}, nil
}

// Status returns the current aggregate verdict. Safe from any goroutine.
func (s *Supervisor) Status() Status {
	if s.ok.Load() {
		return StatusOK
	}
	return StatusFault
}

// Watchdog exposes the underlying per-beat state machine, mainly for
// status reporting (Armed, SilenceDeadline).
func (s *Supervisor) Watchdog() *Watchdog {
	return s.wd
}

// Events returns the status flip channel. Only the newest unconsumed flip
// is retained.
func (s *Supervisor) Events() <-chan StateEvent {
	return s.events
}

// Counts returns the running totals. Safe from any goroutine.
func (s *Supervisor) Counts() Counts {
	return Counts{
		Observed:   s.observed.Load(),
		Accepted:   s.accepted.Load(),
		Timeouts:   s.timeouts.Load(),
		Windows:    s.windows.Load(),
		OutOfOrder: s.outOfOrder.Load(),
	}
}

// Run drives the watchdog from rx until ctx is done or the transport
// fails; the transport error is returned unchanged, a context stop
// returns nil.
//
// Run owns the arm cycle. It starts in FAULT(INITIAL), warms up, then
// arms. A timeout disarms and repeats the warmup cycle: the watchdog
// never recovers from silence on its own, so a fresh silence clock is
// the only way back. Window and ordering faults keep the
// watchdog armed: the offending beat stream is still alive, and clean
// beats from it count toward recovery immediately.
func (s *Supervisor) Run(ctx context.Context, rx Receiver) error {
	s.ok.Store(false)
	s.emit(StateEvent{Status: StatusFault, Kind: FaultInitial, At: s.clk.Now()})

	if err := s.warmup(ctx, rx); err != nil {
		return err
	}

	streak := 0
	for ctx.Err() == nil {
		wait := s.cfg.Period
		if deadline, armed := s.wd.SilenceDeadline(); armed {
			wait = deadline.Sub(s.clk.Now())
		}

		if wait <= 0 {
			verdict := s.wd.Check(s.clk.Now())
			if verdict == nil {
				continue
			}
			streak = 0
			s.timeouts.Add(1)
			s.enterFault(FaultTimeout, verdict)
			if err := s.warmup(ctx, rx); err != nil {
				return err
			}
			continue
		}
		if wait > s.cfg.Period {
			// Cap the block so a context stop is noticed within a period
			// even when the silence deadline is far off.
			wait = s.cfg.Period
		}

		b, ok, err := rx.RecvTimeout(wait)
		if err != nil {
			s.wd.Disarm()
			return err
		}
		if !ok {
			continue
		}

		s.observed.Add(1)
		verdict := s.wd.Observe(b)

		var timeout TimeoutError
		var window WindowError
		var order OutOfOrderError
		switch {
		case verdict == nil:
			s.accepted.Add(1)
			streak++
			if !s.ok.Load() && streak >= s.cfg.MinBeats*2 {
				s.setOK(b.ObservedAt)
			}
		case errors.As(verdict, &timeout):
			streak = 0
			s.timeouts.Add(1)
			s.enterFault(FaultTimeout, verdict)
			if err := s.warmup(ctx, rx); err != nil {
				return err
			}
		case errors.As(verdict, &window):
			streak = 0
			s.windows.Add(1)
			s.enterFault(FaultWindow, verdict)
		case errors.As(verdict, &order):
			streak = 0
			s.outOfOrder.Add(1)
			s.enterFault(FaultOutOfOrder, verdict)
		}
	}

	s.wd.Disarm()
	return nil
}

// warmup sleeps off the grace, drops the transport backlog and arms with
// a fresh silence clock. On a context stop it leaves the watchdog
// disarmed and returns nil; the caller's loop exits on its own.
func (s *Supervisor) warmup(ctx context.Context, rx Receiver) error {
	if s.cfg.Warmup > 0 {
		t := s.clk.Timer(s.cfg.Warmup)
		defer t.Stop()
		select {
		case <-ctx.Done():
			s.wd.Disarm()
			return nil
		case <-t.C:
		}
	}
	if err := rx.Clear(); err != nil {
		s.wd.Disarm()
		return err
	}
	s.wd.Arm()
	return nil
}

// enterFault flips to FAULT and announces it. Re-entering an existing
// fault is silent: consumers see flips, not every repeated verdict.
func (s *Supervisor) enterFault(kind FaultKind, cause error) {
	if !s.ok.Swap(false) {
		return
	}
	s.emit(StateEvent{Status: StatusFault, Kind: kind, Err: cause, At: s.clk.Now()})
}

func (s *Supervisor) setOK(at time.Time) {
	if s.ok.Swap(true) {
		return
	}
	s.emit(StateEvent{Status: StatusOK, At: at})
}

// emit delivers latest-wins: when the consumer has not taken the previous
// event yet, it is displaced by this one.
func (s *Supervisor) emit(e StateEvent) {
	for {
		select {
		case s.events <- e:
			return
		default:
			select {
			case <-s.events:
			default:
			}
		}
	}
}
