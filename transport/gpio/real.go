//go:build linux

package gpio

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/beatmon/heartbeat"
)

// Sender drives a GPIO line from actual hardware: high for Rising, low
// for Falling.
type Sender struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewSender requests the line as an output, initially low.
func NewSender(cfg Config) (*Sender, error) {
	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", cfg.Chip, err)
	}
	line, err := chip.RequestLine(cfg.Line,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("beatmon-heart"))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request line %d: %w", cfg.Line, err)
	}
	return &Sender{chip: chip, line: line}, nil
}

// Send drives the line to the edge's level.
func (s *Sender) Send(e heartbeat.Edge) error {
	if err := s.line.SetValue(levelFor(e)); err != nil {
		return fmt.Errorf("set line: %w", err)
	}
	return nil
}

// Close releases the line. The line is reconfigured to input with
// pull-down first, matching boot defaults, so a restart never finds the
// pin held in a stale state.
func (s *Sender) Close() error {
	var errs []error
	if s.line != nil {
		if err := s.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
		}
		if err := s.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// Receiver watches a GPIO line for edge events from actual hardware.
// The kernel delivers events on its own goroutine; they are queued on a
// bounded channel and stamped at delivery into the handler.
type Receiver struct {
	chip    *gpiocdev.Chip
	line    *gpiocdev.Line
	clk     clock.Clock
	events  chan heartbeat.Beat
	dropped atomic.Uint64
}

// NewReceiver requests the line as an edge-detecting input on the wall
// clock.
func NewReceiver(cfg Config) (*Receiver, error) {
	return NewReceiverWithClock(cfg, clock.New())
}

// NewReceiverWithClock requests the line as an edge-detecting input,
// stamping received beats from clk.
func NewReceiverWithClock(cfg Config, clk clock.Clock) (*Receiver, error) {
	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", cfg.Chip, err)
	}

	r := &Receiver{
		chip:   chip,
		clk:    clk,
		events: make(chan heartbeat.Beat, eventBuffer),
	}

	// Pull-down to match boot defaults, so a floating line reads low
	// rather than chattering.
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(r.handle),
		gpiocdev.WithConsumer("beatmon-watch"),
	}
	if cfg.Debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(cfg.Debounce))
	}
	line, err := chip.RequestLine(cfg.Line, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request line %d: %w", cfg.Line, err)
	}
	r.line = line
	return r, nil
}

// handle runs on the kernel event goroutine: it must never block, so a
// full queue drops the event and counts it.
func (r *Receiver) handle(ev gpiocdev.LineEvent) {
	var edge heartbeat.Edge
	switch ev.Type {
	case gpiocdev.LineEventRisingEdge:
		edge = heartbeat.Rising
	case gpiocdev.LineEventFallingEdge:
		edge = heartbeat.Falling
	default:
		return
	}

	b := heartbeat.Beat{Edge: edge, ObservedAt: r.clk.Now()}
	select {
	case r.events <- b:
	default:
		r.dropped.Add(1)
	}
}

// RecvTimeout waits up to d for the next edge event.
func (r *Receiver) RecvTimeout(d time.Duration) (heartbeat.Beat, bool, error) {
	t := r.clk.Timer(d)
	defer t.Stop()
	select {
	case b := <-r.events:
		return b, true, nil
	case <-t.C:
		return heartbeat.Beat{}, false, nil
	}
}

// Clear drops every queued edge event.
func (r *Receiver) Clear() error {
	for {
		select {
		case <-r.events:
		default:
			return nil
		}
	}
}

// Dropped reports how many events overflowed the queue.
func (r *Receiver) Dropped() uint64 {
	return r.dropped.Load()
}

// Close releases the line.
func (r *Receiver) Close() error {
	var errs []error
	if r.line != nil {
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
