package heartbeat

import "time"

// Sender is the producer side of a beat transport. Implementations live
// in the transport subpackages; the Heart only needs these two calls.
type Sender interface {
	// Send transmits one edge. Blocking is bounded by the transport's own
	// timeouts. There is no retry at this layer and no queueing contract:
	// a lost beat is simply observed as silence on the far side.
	Send(e Edge) error

	// Close releases the transport.
	Close() error
}

// Receiver is the consumer side of a beat transport.
//
// Received beats carry ObservedAt stamped at the moment of reception, so
// the Watchdog judges arrival times, not claimed send times.
type Receiver interface {
	// RecvTimeout waits up to d for the next beat. It returns ok=false
	// with a nil error when nothing arrived in time: absent traffic is a
	// verdict for the Watchdog to draw, not a transport failure. The
	// error return is reserved for real failures (socket errors, closed
	// transport, undecodable traffic) and is passed through unchanged by
	// everything above this layer.
	RecvTimeout(d time.Duration) (b Beat, ok bool, err error)

	// Clear drops any beats buffered inside the transport. Called after a
	// fault so monitoring resumes against live traffic instead of a stale
	// backlog.
	Clear() error

	// Close releases the transport and unblocks pending receives.
	Close() error
}
