// Package heartbeat implements pulse-train liveness monitoring: a Heart
// emits edges of alternating polarity at a fixed period, and a Watchdog
// checks that edges keep arriving on time, in order, and inside the
// configured acceptance window.
//
// Detection logic performs NO I/O of its own. Time enters either on the
// beats themselves or through an injectable clock.Clock, so the same code
// runs against the wall clock in production and against a mock clock in
// tests or cooperatively scheduled hosts.
package heartbeat

import (
	"fmt"
	"time"
)

// Edge is the polarity of a heartbeat pulse. The enum values are the wire
// symbols, so an Edge converts to and from its single-byte encoding
// directly.
type Edge byte

const (
	Rising  Edge = '+'
	Falling Edge = '.'
)

// Flip returns the opposite polarity.
func (e Edge) Flip() Edge {
	if e == Rising {
		return Falling
	}
	return Rising
}

// Byte returns the single-byte wire encoding of the edge.
func (e Edge) Byte() byte {
	return byte(e)
}

// String returns "RISING" or "FALLING".
func (e Edge) String() string {
	switch e {
	case Rising:
		return "RISING"
	case Falling:
		return "FALLING"
	default:
		return fmt.Sprintf("EDGE(%#02x)", byte(e))
	}
}

// EdgeFromByte decodes a wire byte. Any byte other than the two edge
// symbols is a decode error, never a default edge.
func EdgeFromByte(b byte) (Edge, error) {
	switch b {
	case byte(Rising):
		return Rising, nil
	case byte(Falling):
		return Falling, nil
	default:
		return 0, fmt.Errorf("invalid edge byte %#02x", b)
	}
}

// Beat is a single received pulse: which polarity arrived and when.
// ObservedAt is stamped by the receiving transport at the moment of
// reception from its own clock; the Watchdog never consults a clock to
// judge a beat.
type Beat struct {
	Edge       Edge
	ObservedAt time.Time
}
