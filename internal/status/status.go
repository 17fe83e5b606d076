// Package status provides a thread-safe status tracker for the monitor
// daemon. It is read by HTTP handlers and the MQTT status publisher.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/beatmon/heartbeat"
)

// Config contains daemon configuration for display.
type Config struct {
	PeriodMs        int64
	ToleranceLowMs  int64
	ToleranceHighMs int64
	MaxSilenceMs    int64
	Ordered         bool
	MinBeats        int
	WarmupMs        int64
	Transport       string // "udp", "gpio", "mqtt", "nats", or "mem"
	Endpoint        string // beat source: address, topic, subject, or chip:line
	Broker          string // MQTT broker for system events (empty = disabled)
	HTTPAddr        string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	InstanceID    string
	Status        heartbeat.Status
	FaultKind     heartbeat.FaultKind
	FaultDetail   string
	LastChangeAt  time.Time // when liveness last flipped; zero before the first event
	Armed         bool
	Counts        heartbeat.Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given identity, start time and
// config. The monitor is born faulted, so the tracker is too.
func NewTracker(instanceID string, startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			InstanceID: instanceID,
			Status:     heartbeat.StatusFault,
			FaultKind:  heartbeat.FaultInitial,
			StartTime:  startTime,
			Config:     cfg,
		},
	}
}

// SetState records a liveness flip from the supervisor. A recovery event
// carries no kind or cause, which clears both.
func (t *Tracker) SetState(e heartbeat.StateEvent) {
	t.mu.Lock()
	t.snap.Status = e.Status
	t.snap.FaultKind = e.Kind
	if e.Err != nil {
		t.snap.FaultDetail = e.Err.Error()
	} else {
		t.snap.FaultDetail = ""
	}
	t.snap.LastChangeAt = e.At
	t.mu.Unlock()
}

// UpdateCounts sets the verdict counters. Called from the watch loop on
// every pass.
func (t *Tracker) UpdateCounts(counts heartbeat.Counts) {
	t.mu.Lock()
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetArmed records whether the watchdog is currently armed.
func (t *Tracker) SetArmed(armed bool) {
	t.mu.Lock()
	t.snap.Armed = armed
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
