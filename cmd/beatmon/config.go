package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sweeney/beatmon/heartbeat"
	"github.com/sweeney/beatmon/internal/status"
	"github.com/sweeney/beatmon/transport/gpio"
	"github.com/sweeney/beatmon/transport/mqtt"
	"github.com/sweeney/beatmon/transport/nats"
)

// Config holds daemon settings merged from defaults, an optional TOML
// file, and command-line flags. Flags beat the file, the file beats the
// defaults. Zero timing fields are derived from the period when the
// watcher is built.
type Config struct {
	Role      string // "heart", "watch", or "demo"
	Transport string // "udp", "gpio", "mqtt", "nats", or "mem" (demo only)

	Period        time.Duration
	ToleranceLow  time.Duration // 0 = period/10
	ToleranceHigh time.Duration // 0 = period/10
	MaxSilence    time.Duration // 0 = twice the period
	Ordered       bool
	MinBeats      int
	Warmup        time.Duration // 0 = twice the period

	Addr     string // UDP address
	Broker   string // MQTT broker; also enables system events for the watcher
	Topic    string // MQTT beat topic
	NATSURL  string
	Subject  string // NATS beat subject
	GPIOChip string
	GPIOLine int // -1 = role default: heart drives 17, watcher listens on 27

	HTTPAddr string // status server address; empty disables

	BreakEvery int // heart: misbehave every n beats; 0 = never
}

// DefaultConfig returns the daemon defaults: a watcher on UDP loopback.
func DefaultConfig() Config {
	return Config{
		Role:      "watch",
		Transport: "udp",
		Period:    100 * time.Millisecond,
		Ordered:   true,
		MinBeats:  2,
		Addr:      "127.0.0.1:9999",
		Topic:     mqtt.TopicBeats,
		NATSURL:   nats.DefaultConfig().URL,
		Subject:   nats.DefaultSubject,
		GPIOChip:  gpio.DefaultChip,
		GPIOLine:  -1,
		HTTPAddr:  ":8080",
	}
}

// Validate checks the role, transport and period. Timing derivation and
// the full beat contract are validated later by the supervisor config.
func (c Config) Validate() error {
	var errs []error

	switch c.Role {
	case "heart", "watch", "demo":
	default:
		errs = append(errs, fmt.Errorf("unknown role %q (want heart, watch, or demo)", c.Role))
	}

	switch c.Transport {
	case "udp", "gpio", "mqtt", "nats":
	case "mem":
		if c.Role != "demo" {
			errs = append(errs, errors.New("transport mem only works with role demo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q (want udp, gpio, mqtt, nats, or mem)", c.Transport))
	}

	if c.Period <= 0 {
		errs = append(errs, fmt.Errorf("period must be positive, got %v", c.Period))
	}

	return errors.Join(errs...)
}

// supervisorConfig expands the daemon settings into the monitor's
// contract, deriving any unset timing field from the period.
func (c Config) supervisorConfig() heartbeat.SupervisorConfig {
	scfg := heartbeat.NewSupervisorConfig(c.Period)
	if c.ToleranceLow > 0 {
		scfg.ToleranceLow = c.ToleranceLow
	}
	if c.ToleranceHigh > 0 {
		scfg.ToleranceHigh = c.ToleranceHigh
	}
	if c.MaxSilence > 0 {
		scfg.MaxSilence = c.MaxSilence
	}
	scfg.Ordered = c.Ordered
	if c.MinBeats > 0 {
		scfg.MinBeats = c.MinBeats
	}
	if c.Warmup > 0 {
		scfg.Warmup = c.Warmup
	}
	return scfg
}

// statusConfig renders the resolved settings for the status page and the
// system events.
func (c Config) statusConfig(scfg heartbeat.SupervisorConfig, endpoint string) status.Config {
	return status.Config{
		PeriodMs:        scfg.Period.Milliseconds(),
		ToleranceLowMs:  scfg.ToleranceLow.Milliseconds(),
		ToleranceHighMs: scfg.ToleranceHigh.Milliseconds(),
		MaxSilenceMs:    scfg.MaxSilence.Milliseconds(),
		Ordered:         scfg.Ordered,
		MinBeats:        scfg.MinBeats,
		WarmupMs:        scfg.Warmup.Milliseconds(),
		Transport:       c.Transport,
		Endpoint:        endpoint,
		Broker:          c.Broker,
		HTTPAddr:        c.HTTPAddr,
	}
}

// gpioLine resolves the line offset for a role. The defaults mirror a
// rig where the heart's line is jumpered to the watcher's, so one board
// can run both ends against itself.
func (c Config) gpioLine(role string) int {
	if c.GPIOLine >= 0 {
		return c.GPIOLine
	}
	if role == "heart" {
		return gpio.DefaultHeartLine
	}
	return gpio.DefaultWatchLine
}

// duration wraps time.Duration so TOML carries values like "100ms".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// tomlConfig is the file form of Config. Fields that distinguish "absent"
// from a meaningful zero value are pointers.
type tomlConfig struct {
	Role      string `toml:"role"`
	Transport string `toml:"transport"`

	Period        duration `toml:"period"`
	ToleranceLow  duration `toml:"tolerance_low"`
	ToleranceHigh duration `toml:"tolerance_high"`
	MaxSilence    duration `toml:"max_silence"`
	Ordered       *bool    `toml:"ordered"`
	MinBeats      int      `toml:"min_beats"`
	Warmup        duration `toml:"warmup"`

	Addr     string `toml:"addr"`
	Broker   string `toml:"broker"`
	Topic    string `toml:"topic"`
	NATSURL  string `toml:"nats_url"`
	Subject  string `toml:"subject"`
	GPIOChip string `toml:"gpio_chip"`
	GPIOLine *int   `toml:"gpio_line"`

	HTTPAddr *string `toml:"http"`

	BreakEvery int `toml:"break_every"`
}

// loadFile overlays settings from a TOML file onto cfg. Absent keys leave
// the current value alone.
func loadFile(path string, cfg *Config) error {
	var tc tomlConfig
	if _, err := toml.DecodeFile(path, &tc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if tc.Role != "" {
		cfg.Role = tc.Role
	}
	if tc.Transport != "" {
		cfg.Transport = tc.Transport
	}
	if tc.Period.Duration > 0 {
		cfg.Period = tc.Period.Duration
	}
	if tc.ToleranceLow.Duration > 0 {
		cfg.ToleranceLow = tc.ToleranceLow.Duration
	}
	if tc.ToleranceHigh.Duration > 0 {
		cfg.ToleranceHigh = tc.ToleranceHigh.Duration
	}
	if tc.MaxSilence.Duration > 0 {
		cfg.MaxSilence = tc.MaxSilence.Duration
	}
	if tc.Ordered != nil {
		cfg.Ordered = *tc.Ordered
	}
	if tc.MinBeats > 0 {
		cfg.MinBeats = tc.MinBeats
	}
	if tc.Warmup.Duration > 0 {
		cfg.Warmup = tc.Warmup.Duration
	}
	if tc.Addr != "" {
		cfg.Addr = tc.Addr
	}
	if tc.Broker != "" {
		cfg.Broker = tc.Broker
	}
	if tc.Topic != "" {
		cfg.Topic = tc.Topic
	}
	if tc.NATSURL != "" {
		cfg.NATSURL = tc.NATSURL
	}
	if tc.Subject != "" {
		cfg.Subject = tc.Subject
	}
	if tc.GPIOChip != "" {
		cfg.GPIOChip = tc.GPIOChip
	}
	if tc.GPIOLine != nil {
		cfg.GPIOLine = *tc.GPIOLine
	}
	if tc.HTTPAddr != nil {
		cfg.HTTPAddr = *tc.HTTPAddr
	}
	if tc.BreakEvery > 0 {
		cfg.BreakEvery = tc.BreakEvery
	}
	return nil
}
