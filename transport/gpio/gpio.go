// Package gpio carries heartbeat edges over a GPIO line: the sender
// drives the line high for a rising edge and low for a falling one, and
// the receiver turns kernel edge events back into beats. The real
// implementation uses the Linux GPIO character device; the fake allows
// testing without hardware.
package gpio

import (
	"time"

	"github.com/sweeney/beatmon/heartbeat"
)

const (
	// DefaultChip is the character device most boards expose first.
	DefaultChip = "gpiochip0"

	// DefaultHeartLine is the line a heart drives (BCM numbering). The
	// reference rig jumpers it to DefaultWatchLine so one board can run
	// both ends.
	DefaultHeartLine = 17

	// DefaultWatchLine is the line a watcher listens on (BCM numbering).
	DefaultWatchLine = 27

	// DefaultDebounce filters contact chatter on the receiving line.
	DefaultDebounce = 2 * time.Millisecond

	// eventBuffer bounds edge events queued between the kernel handler
	// and RecvTimeout. Overflow drops the newest event and counts it.
	eventBuffer = 16
)

// Config selects the GPIO chip and line offset to use. Debounce applies
// to receivers only; zero disables it.
type Config struct {
	Chip     string
	Line     int
	Debounce time.Duration
}

// DefaultConfig returns the watcher's default chip and line.
func DefaultConfig() Config {
	return Config{Chip: DefaultChip, Line: DefaultWatchLine, Debounce: DefaultDebounce}
}

// levelFor maps an edge to the line level that represents it.
func levelFor(e heartbeat.Edge) int {
	if e == heartbeat.Rising {
		return 1
	}
	return 0
}
