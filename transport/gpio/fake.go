package gpio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sweeney/beatmon/heartbeat"
)

// FakeLine is a test double standing in for one GPIO line: the sender
// half drives a level and the receiver half sees the resulting edge
// events. Like hardware edge detection, re-asserting the current level
// produces no event, so a producer stuck on one polarity goes silent at
// the receiver rather than repeating itself.
type FakeLine struct {
	clk clock.Clock

	mu     sync.Mutex
	level  int
	closed bool

	// SendError, if set, will be returned by Send.
	SendError error

	events  chan heartbeat.Beat
	dropped atomic.Uint64
}

// NewFakeLine creates a fake line on the wall clock, initially low.
func NewFakeLine() *FakeLine {
	return NewFakeLineWithClock(clock.New())
}

// NewFakeLineWithClock creates a fake line stamping events from clk.
func NewFakeLineWithClock(clk clock.Clock) *FakeLine {
	return &FakeLine{clk: clk, events: make(chan heartbeat.Beat, eventBuffer)}
}

// Send drives the line to the edge's level. Only a level change emits an
// event; events are stamped at the moment of the change, as the real
// receiver's handler would see them.
func (f *FakeLine) Send(e heartbeat.Edge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendError != nil {
		return f.SendError
	}
	if f.closed {
		return errors.New("gpio: line closed")
	}

	level := levelFor(e)
	if level == f.level {
		return nil
	}
	f.level = level

	b := heartbeat.Beat{Edge: e, ObservedAt: f.clk.Now()}
	select {
	case f.events <- b:
	default:
		f.dropped.Add(1)
	}
	return nil
}

// Level returns the current line level.
func (f *FakeLine) Level() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

// RecvTimeout waits up to d for the next edge event.
func (f *FakeLine) RecvTimeout(d time.Duration) (heartbeat.Beat, bool, error) {
	t := f.clk.Timer(d)
	defer t.Stop()
	select {
	case b := <-f.events:
		return b, true, nil
	case <-t.C:
		return heartbeat.Beat{}, false, nil
	}
}

// Clear drops every queued edge event.
func (f *FakeLine) Clear() error {
	for {
		select {
		case <-f.events:
		default:
			return nil
		}
	}
}

// Dropped reports how many events overflowed the queue.
func (f *FakeLine) Dropped() uint64 {
	return f.dropped.Load()
}

// Close stops the sender half; queued events remain readable.
func (f *FakeLine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
