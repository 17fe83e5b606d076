//go:build !linux

package gpio

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sweeney/beatmon/heartbeat"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Sender is not available on non-Linux platforms.
type Sender struct{}

// NewSender returns an error on non-Linux platforms.
func NewSender(cfg Config) (*Sender, error) {
	return nil, errUnsupported
}

func (s *Sender) Send(e heartbeat.Edge) error { return errUnsupported }

func (s *Sender) Close() error { return nil }

// Receiver is not available on non-Linux platforms.
type Receiver struct{}

// NewReceiver returns an error on non-Linux platforms.
func NewReceiver(cfg Config) (*Receiver, error) {
	return nil, errUnsupported
}

// NewReceiverWithClock returns an error on non-Linux platforms.
func NewReceiverWithClock(cfg Config, clk clock.Clock) (*Receiver, error) {
	return nil, errUnsupported
}

func (r *Receiver) RecvTimeout(d time.Duration) (heartbeat.Beat, bool, error) {
	return heartbeat.Beat{}, false, errUnsupported
}

func (r *Receiver) Clear() error { return errUnsupported }

func (r *Receiver) Dropped() uint64 { return 0 }

func (r *Receiver) Close() error { return nil }
