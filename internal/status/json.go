package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Instance      string     `json:"instance"`
	Liveness      string     `json:"liveness"`
	FaultKind     string     `json:"fault_kind,omitempty"`
	FaultDetail   string     `json:"fault_detail,omitempty"`
	Armed         bool       `json:"armed"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	LastChange    string     `json:"last_change,omitempty"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"beat_counts"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// CountsJSON is the JSON representation of verdict counters.
type CountsJSON struct {
	Observed   uint64 `json:"observed"`
	Accepted   uint64 `json:"accepted"`
	Timeouts   uint64 `json:"timeouts"`
	Windows    uint64 `json:"windows"`
	OutOfOrder uint64 `json:"out_of_order"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PeriodMs        int64  `json:"period_ms"`
	ToleranceLowMs  int64  `json:"tolerance_low_ms"`
	ToleranceHighMs int64  `json:"tolerance_high_ms"`
	MaxSilenceMs    int64  `json:"max_silence_ms"`
	Ordered         bool   `json:"ordered"`
	MinBeats        int    `json:"min_beats"`
	WarmupMs        int64  `json:"warmup_ms"`
	Transport       string `json:"transport"`
	Endpoint        string `json:"endpoint,omitempty"`
	HTTPAddr        string `json:"http_addr,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Instance:      snap.InstanceID,
		Liveness:      snap.Status.String(),
		FaultKind:     string(snap.FaultKind),
		FaultDetail:   snap.FaultDetail,
		Armed:         snap.Armed,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Observed:   snap.Counts.Observed,
			Accepted:   snap.Counts.Accepted,
			Timeouts:   snap.Counts.Timeouts,
			Windows:    snap.Counts.Windows,
			OutOfOrder: snap.Counts.OutOfOrder,
		},
		Config: ConfigJSON{
			PeriodMs:        snap.Config.PeriodMs,
			ToleranceLowMs:  snap.Config.ToleranceLowMs,
			ToleranceHighMs: snap.Config.ToleranceHighMs,
			MaxSilenceMs:    snap.Config.MaxSilenceMs,
			Ordered:         snap.Config.Ordered,
			MinBeats:        snap.Config.MinBeats,
			WarmupMs:        snap.Config.WarmupMs,
			Transport:       snap.Config.Transport,
			Endpoint:        snap.Config.Endpoint,
			HTTPAddr:        snap.Config.HTTPAddr,
		},
	}
	if !snap.LastChangeAt.IsZero() {
		inner.LastChange = snap.LastChangeAt.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
