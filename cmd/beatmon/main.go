// Command beatmon runs one end of a heartbeat: a heart that flips a line
// between rising and falling edges once per period, or a watcher that
// judges the beat train for silence, spacing and polarity, publishes
// liveness flips to MQTT and serves a status page. The demo role runs
// both ends in one process over an in-memory pipe.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/sweeney/beatmon/heartbeat"
	"github.com/sweeney/beatmon/internal/status"
	"github.com/sweeney/beatmon/internal/web"
	"github.com/sweeney/beatmon/transport/gpio"
	"github.com/sweeney/beatmon/transport/mem"
	"github.com/sweeney/beatmon/transport/mqtt"
	"github.com/sweeney/beatmon/transport/nats"
	"github.com/sweeney/beatmon/transport/udp"
)

func main() {
	defaults := DefaultConfig()

	configPath := flag.String("config", "", "TOML config file")
	role := flag.String("role", defaults.Role, "Role: heart, watch, or demo")
	transport := flag.String("transport", defaults.Transport, "Transport: udp, gpio, mqtt, nats, or mem (demo only)")
	period := flag.Duration("period", defaults.Period, "Beat period")
	tolLow := flag.Duration("tolerance-low", 0, "Allowed beat spacing below the period (0 = period/10)")
	tolHigh := flag.Duration("tolerance-high", 0, "Allowed beat spacing above the period (0 = period/10)")
	maxSilence := flag.Duration("max-silence", 0, "Silence that counts as a timeout (0 = twice the period)")
	unordered := flag.Bool("unordered", false, "Accept beats of either polarity")
	minBeats := flag.Int("min-beats", defaults.MinBeats, "Clean beat pairs required to leave FAULT")
	warmup := flag.Duration("warmup", 0, "Grace before arming and after timeouts (0 = twice the period)")
	addr := flag.String("addr", defaults.Addr, "UDP address to send to or listen on")
	broker := flag.String("broker", defaults.Broker, "MQTT broker address (the watcher publishes system events when set)")
	topic := flag.String("topic", defaults.Topic, "MQTT beat topic")
	natsURL := flag.String("nats-url", defaults.NATSURL, "NATS server URL")
	subject := flag.String("subject", defaults.Subject, "NATS beat subject")
	gpioChip := flag.String("gpio-chip", defaults.GPIOChip, "GPIO chip name")
	gpioLine := flag.Int("gpio-line", defaults.GPIOLine, "GPIO line offset (-1 = 17 for heart, 27 for watch)")
	httpAddr := flag.String("http", defaults.HTTPAddr, "HTTP status address (empty to disable)")
	breakEvery := flag.Int("break-every", defaults.BreakEvery, "Heart: misbehave every n beats, alternating a late beat and a stall (0 = never)")

	flag.Parse()

	cfg := defaults
	if *configPath != "" {
		if err := loadFile(*configPath, &cfg); err != nil {
			log.Fatalf("fatal: %v", err)
		}
	}

	// Flags the user actually set override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "role":
			cfg.Role = *role
		case "transport":
			cfg.Transport = *transport
		case "period":
			cfg.Period = *period
		case "tolerance-low":
			cfg.ToleranceLow = *tolLow
		case "tolerance-high":
			cfg.ToleranceHigh = *tolHigh
		case "max-silence":
			cfg.MaxSilence = *maxSilence
		case "unordered":
			cfg.Ordered = !*unordered
		case "min-beats":
			cfg.MinBeats = *minBeats
		case "warmup":
			cfg.Warmup = *warmup
		case "addr":
			cfg.Addr = *addr
		case "broker":
			cfg.Broker = *broker
		case "topic":
			cfg.Topic = *topic
		case "nats-url":
			cfg.NATSURL = *natsURL
		case "subject":
			cfg.Subject = *subject
		case "gpio-chip":
			cfg.GPIOChip = *gpioChip
		case "gpio-line":
			cfg.GPIOLine = *gpioLine
		case "http":
			cfg.HTTPAddr = *httpAddr
		case "break-every":
			cfg.BreakEvery = *breakEvery
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: invalid configuration: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg Config) error {
	switch cfg.Role {
	case "heart":
		return runHeart(cfg)
	case "watch":
		return runWatch(cfg)
	case "demo":
		return runDemo(cfg)
	}
	return fmt.Errorf("unknown role %q", cfg.Role)
}

// newSender builds the sending end of the configured transport and
// reports the endpoint it talks to.
func newSender(cfg Config) (heartbeat.Sender, string, error) {
	switch cfg.Transport {
	case "udp":
		tx, err := udp.NewSender(cfg.Addr)
		if err != nil {
			return nil, "", err
		}
		return tx, cfg.Addr, nil
	case "gpio":
		line := cfg.gpioLine("heart")
		tx, err := gpio.NewSender(gpio.Config{Chip: cfg.GPIOChip, Line: line})
		if err != nil {
			return nil, "", err
		}
		return tx, fmt.Sprintf("%s:%d", cfg.GPIOChip, line), nil
	case "mqtt":
		mcfg := mqtt.DefaultConfig()
		if cfg.Broker != "" {
			mcfg.Broker = cfg.Broker
		}
		mcfg.Topic = cfg.Topic
		tx, err := mqtt.NewSender(mcfg)
		if err != nil {
			return nil, "", err
		}
		return tx, mcfg.Topic, nil
	case "nats":
		ncfg := nats.DefaultConfig()
		ncfg.URL = cfg.NATSURL
		ncfg.Subject = cfg.Subject
		tx, err := nats.NewSender(ncfg)
		if err != nil {
			return nil, "", err
		}
		return tx, ncfg.Subject, nil
	}
	return nil, "", fmt.Errorf("no sender for transport %q", cfg.Transport)
}

// newReceiver builds the receiving end of the configured transport and
// reports the endpoint it listens on.
func newReceiver(cfg Config) (heartbeat.Receiver, string, error) {
	switch cfg.Transport {
	case "udp":
		rx, err := udp.NewReceiver(cfg.Addr)
		if err != nil {
			return nil, "", err
		}
		return rx, cfg.Addr, nil
	case "gpio":
		line := cfg.gpioLine("watch")
		rx, err := gpio.NewReceiver(gpio.Config{Chip: cfg.GPIOChip, Line: line, Debounce: gpio.DefaultDebounce})
		if err != nil {
			return nil, "", err
		}
		return rx, fmt.Sprintf("%s:%d", cfg.GPIOChip, line), nil
	case "mqtt":
		mcfg := mqtt.DefaultConfig()
		if cfg.Broker != "" {
			mcfg.Broker = cfg.Broker
		}
		mcfg.Topic = cfg.Topic
		rx, err := mqtt.NewReceiver(mcfg)
		if err != nil {
			return nil, "", err
		}
		return rx, mcfg.Topic, nil
	case "nats":
		ncfg := nats.DefaultConfig()
		ncfg.URL = cfg.NATSURL
		ncfg.Subject = cfg.Subject
		rx, err := nats.NewReceiver(ncfg)
		if err != nil {
			return nil, "", err
		}
		return rx, ncfg.Subject, nil
	}
	return nil, "", fmt.Errorf("no receiver for transport %q", cfg.Transport)
}

func runHeart(cfg Config) error {
	tx, endpoint, err := newSender(cfg)
	if err != nil {
		return fmt.Errorf("init %s sender: %w", cfg.Transport, err)
	}
	defer tx.Close()

	h, err := heartbeat.NewHeart(cfg.supervisorConfig().Config, tx)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("heart started: transport=%s endpoint=%s period=%v", cfg.Transport, endpoint, cfg.Period)

	return heartLoop(h, cfg.BreakEvery, clock.New(), sigCh)
}

// heartLoop beats until a signal arrives. A positive breakEvery makes the
// heart misbehave every breakEvery beats, alternating a beat held past
// the spacing window with a stall past the silence budget, so a watcher
// on the other end has faults to show.
func heartLoop(h *heartbeat.Heart, breakEvery int, clk clock.Clock, sig <-chan os.Signal) error {
	for i := 1; ; i++ {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			return nil
		default:
		}

		if err := h.Beat(); err != nil {
			log.Printf("beat error: %v", err)
			clk.Sleep(h.Period())
			continue
		}

		if breakEvery > 0 && i%breakEvery == 0 {
			if (i/breakEvery)%2 == 0 {
				log.Printf("timing out")
				clk.Sleep(2 * h.Period())
			} else {
				log.Printf("breaking the window")
				clk.Sleep(h.Period() + h.Period()/2)
			}
		}
	}
}

func runWatch(cfg Config) error {
	rx, endpoint, err := newReceiver(cfg)
	if err != nil {
		return fmt.Errorf("init %s receiver: %w", cfg.Transport, err)
	}
	defer rx.Close()

	return watch(cfg, rx, endpoint)
}

// watch supervises beats from rx until a signal or a transport failure.
func watch(cfg Config, rx heartbeat.Receiver, endpoint string) error {
	scfg := cfg.supervisorConfig()
	sup, err := heartbeat.NewSupervisor(scfg)
	if err != nil {
		return err
	}

	// System events go out over MQTT when a broker is configured.
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.Broker != "" {
		mcfg := mqtt.DefaultConfig()
		mcfg.Broker = cfg.Broker
		sysPub, err := mqtt.NewSystemPublisher(mcfg)
		if err != nil {
			return fmt.Errorf("init mqtt system publisher: %w", err)
		}
		defer sysPub.Close()
		publisher = sysPub
		mqttStatus = sysPub
	}

	tracker := status.NewTracker(uuid.NewString(), time.Now(), cfg.statusConfig(scfg, endpoint))
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}

	publishSystem(publisher, mqttStatus, tracker, time.Now(), "STARTUP", "")

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	wmin, wmax := scfg.Window()
	log.Printf("watch started: transport=%s endpoint=%s period=%v window=[%v, %v] max-silence=%v",
		cfg.Transport, endpoint, scfg.Period, wmin, wmax, scfg.MaxSilence)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	runErr := make(chan error, 1)
	go func() {
		runErr <- sup.Run(ctx, rx)
	}()

	ticker := time.NewTicker(scfg.Period)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return watchLoop(sup, runErr, stop, publisher, mqttStatus, tracker, time.Now, ticker.C, sigCh)
}

// watchLoop consumes supervisor events until a signal arrives or the
// transport fails, keeping the tracker fresh and publishing liveness
// flips as retained STATUS events.
func watchLoop(sup *heartbeat.Supervisor, runErr <-chan error, stop context.CancelFunc, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			tracker.UpdateCounts(sup.Counts())
			publishSystem(publisher, mqttStatus, tracker, now(), "SHUTDOWN", signalName)
			stop()
			if err := <-runErr; err != nil {
				log.Printf("supervisor exit: %v", err)
			}
			return nil

		case err := <-runErr:
			// Run returns on its own only when the transport fails.
			if err == nil {
				return nil
			}
			tracker.UpdateCounts(sup.Counts())
			publishSystem(publisher, mqttStatus, tracker, now(), "SHUTDOWN", "TRANSPORT_ERROR")
			return fmt.Errorf("supervise beats: %w", err)

		case e := <-sup.Events():
			tracker.UpdateCounts(sup.Counts())
			tracker.SetArmed(sup.Watchdog().Armed())
			tracker.SetState(e)
			if e.Status == heartbeat.StatusOK {
				log.Printf("liveness OK")
			} else if e.Err != nil {
				log.Printf("liveness FAULT (%s): %v", e.Kind, e.Err)
			} else {
				log.Printf("liveness FAULT (%s)", e.Kind)
			}
			publishSystem(publisher, mqttStatus, tracker, e.At, "STATUS", string(e.Kind))

		case <-tick:
			tracker.UpdateCounts(sup.Counts())
			tracker.SetArmed(sup.Watchdog().Armed())
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
		}
	}
}

// publishSystem publishes a retained lifecycle event carrying the full
// status document. A nil publisher (no broker configured) makes it a
// no-op.
func publishSystem(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, at time.Time, eventName, reason string) {
	if publisher == nil {
		return
	}
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	snap := tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  at,
		Event:      eventName,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, eventName, reason),
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish %s event: %v", strings.ToLower(eventName), err)
	} else {
		log.Printf("published %s event", strings.ToLower(eventName))
	}
}

// runDemo runs a heart and a watcher in one process, by default over an
// in-memory pipe. With -break-every the heart injects faults so the
// watcher has something to report.
func runDemo(cfg Config) error {
	var (
		tx       heartbeat.Sender
		rx       heartbeat.Receiver
		endpoint string
	)
	if cfg.Transport == "mem" {
		pipe := mem.NewPipe(16)
		tx, rx, endpoint = pipe, pipe, "in-process"
	} else {
		var err error
		rx, endpoint, err = newReceiver(cfg)
		if err != nil {
			return fmt.Errorf("init %s receiver: %w", cfg.Transport, err)
		}
		tx, _, err = newSender(cfg)
		if err != nil {
			rx.Close()
			return fmt.Errorf("init %s sender: %w", cfg.Transport, err)
		}
	}
	defer tx.Close()
	defer rx.Close()

	h, err := heartbeat.NewHeart(cfg.supervisorConfig().Config, tx)
	if err != nil {
		return err
	}

	heartSig := make(chan os.Signal, 1)
	heartDone := make(chan struct{})
	go func() {
		defer close(heartDone)
		if err := heartLoop(h, cfg.BreakEvery, clock.New(), heartSig); err != nil {
			log.Printf("heart exit: %v", err)
		}
	}()

	err = watch(cfg, rx, endpoint)

	heartSig <- syscall.SIGTERM
	<-heartDone
	return err
}
