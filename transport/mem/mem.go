// Package mem provides an in-process beat transport: a bounded pipe whose
// send half implements heartbeat.Sender and whose receive half implements
// heartbeat.Receiver. It wires a Heart and a Supervisor together inside
// one process, for tests and for the loopback demo mode.
package mem

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sweeney/beatmon/heartbeat"
)

// ErrClosed is returned by operations on a closed pipe.
var ErrClosed = errors.New("mem: pipe closed")

// Pipe is a bounded in-process edge queue. Send never blocks: when the
// buffer is full the edge is dropped and counted, which is how a lossy
// datagram transport behaves under backpressure.
type Pipe struct {
	clk clock.Clock

	mu     sync.Mutex
	ch     chan heartbeat.Edge
	closed bool

	dropped atomic.Uint64
}

// NewPipe creates a pipe buffering up to capacity edges on the wall
// clock. Capacities below one are raised to one.
func NewPipe(capacity int) *Pipe {
	return NewPipeWithClock(capacity, clock.New())
}

// NewPipeWithClock creates a pipe on the given clock; received beats are
// stamped from it at delivery.
func NewPipeWithClock(capacity int, clk clock.Clock) *Pipe {
	if capacity < 1 {
		capacity = 1
	}
	return &Pipe{clk: clk, ch: make(chan heartbeat.Edge, capacity)}
}

// Send queues one edge without blocking. A full buffer drops the edge and
// counts it; the pipe itself never fails a send unless closed.
func (p *Pipe) Send(e heartbeat.Edge) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.ch <- e:
	default:
		p.dropped.Add(1)
	}
	return nil
}

// RecvTimeout waits up to d for an edge and stamps it at the moment of
// delivery. Edges queued before Close drain first; afterwards every call
// reports ErrClosed.
func (p *Pipe) RecvTimeout(d time.Duration) (heartbeat.Beat, bool, error) {
	t := p.clk.Timer(d)
	defer t.Stop()
	select {
	case e, ok := <-p.ch:
		if !ok {
			return heartbeat.Beat{}, false, ErrClosed
		}
		return heartbeat.Beat{Edge: e, ObservedAt: p.clk.Now()}, true, nil
	case <-t.C:
		return heartbeat.Beat{}, false, nil
	}
}

// Clear drops every queued edge without waiting.
func (p *Pipe) Clear() error {
	for {
		select {
		case _, ok := <-p.ch:
			if !ok {
				return ErrClosed
			}
		default:
			return nil
		}
	}
}

// Dropped reports how many edges were discarded against a full buffer.
func (p *Pipe) Dropped() uint64 {
	return p.dropped.Load()
}

// Close closes both halves of the pipe. Idempotent.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.ch)
	return nil
}
