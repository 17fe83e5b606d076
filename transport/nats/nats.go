// Package nats carries heartbeat edges over a NATS subject.
//
// Beats travel as single-byte payloads ('+' or '.') with no delivery
// guarantee. The sender disables reconnect buffering so a publish during
// an outage fails instead of queueing: the heart keeps its edge and
// retries, and the watchdog sees the outage as silence.
package nats

import (
	"fmt"
	"sync/atomic"
	"time"

	natsio "github.com/nats-io/nats.go"
	"github.com/sweeney/beatmon/heartbeat"
)

// DefaultSubject is the subject beats travel on.
const DefaultSubject = "beatmon.heartbeat.beats"

// beatBuffer bounds the queue between the NATS delivery goroutine and
// RecvTimeout. Beats past it are dropped and counted.
const beatBuffer = 16

// Config holds NATS connection settings.
type Config struct {
	// URL is the NATS server URL (e.g. "nats://localhost:4222").
	URL string

	// Subject is the subject beats are published on.
	Subject string

	// Name is the client name for identification.
	Name string

	// Token for token-based auth.
	Token string

	// User and Password for basic auth.
	User     string
	Password string

	// ReconnectWait is the time to wait between reconnection attempts.
	ReconnectWait time.Duration

	// MaxReconnects is the maximum number of reconnection attempts.
	// -1 = unlimited
	MaxReconnects int

	// ConnectTimeout for the initial connection.
	ConnectTimeout time.Duration
}

// DefaultConfig returns configuration for a server on localhost.
func DefaultConfig() Config {
	return Config{
		URL:            natsio.DefaultURL,
		Subject:        DefaultSubject,
		Name:           "beatmon",
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 5 * time.Second,
	}
}

// connect dials the server with the reconnect policy from cfg.
func connect(cfg Config, extra ...natsio.Option) (*natsio.Conn, error) {
	if cfg.URL == "" {
		cfg.URL = natsio.DefaultURL
	}

	opts := []natsio.Option{
		natsio.ReconnectWait(cfg.ReconnectWait),
		natsio.MaxReconnects(cfg.MaxReconnects),
		natsio.Timeout(cfg.ConnectTimeout),
	}
	if cfg.Name != "" {
		opts = append(opts, natsio.Name(cfg.Name))
	}
	if cfg.Token != "" {
		opts = append(opts, natsio.Token(cfg.Token))
	}
	if cfg.User != "" {
		opts = append(opts, natsio.UserInfo(cfg.User, cfg.Password))
	}
	opts = append(opts, extra...)

	conn, err := natsio.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return conn, nil
}

// Sender publishes heartbeat edges to the beat subject.
type Sender struct {
	conn    *natsio.Conn
	subject string
}

// NewSender connects to the server and returns a beat sender.
func NewSender(cfg Config) (*Sender, error) {
	// ReconnectBufSize(-1): publishing while disconnected returns an
	// error instead of buffering, so the heart does not flip its edge
	// on a beat that never left the process.
	conn, err := connect(cfg, natsio.ReconnectBufSize(-1))
	if err != nil {
		return nil, err
	}
	return &Sender{conn: conn, subject: cfg.Subject}, nil
}

// Send publishes one edge as a single-byte payload.
func (s *Sender) Send(e heartbeat.Edge) error {
	if err := s.conn.Publish(s.subject, []byte{e.Byte()}); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Close closes the connection.
func (s *Sender) Close() error {
	s.conn.Close()
	return nil
}

// Receiver subscribes to the beat subject and queues observed beats.
type Receiver struct {
	conn      *natsio.Conn
	sub       *natsio.Subscription
	beats     chan heartbeat.Beat
	dropped   atomic.Uint64
	malformed atomic.Uint64
}

// NewReceiver connects to the server and subscribes to the beat subject.
func NewReceiver(cfg Config) (*Receiver, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	r := &Receiver{
		conn:  conn,
		beats: make(chan heartbeat.Beat, beatBuffer),
	}
	sub, err := conn.Subscribe(cfg.Subject, r.handle)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	r.sub = sub
	return r, nil
}

// handle runs on the NATS delivery goroutine and must not block. Beats
// are stamped here, at delivery. Payloads that do not decode as an edge
// are counted and discarded.
func (r *Receiver) handle(m *natsio.Msg) {
	if len(m.Data) != 1 {
		r.malformed.Add(1)
		return
	}
	edge, err := heartbeat.EdgeFromByte(m.Data[0])
	if err != nil {
		r.malformed.Add(1)
		return
	}

	b := heartbeat.Beat{Edge: edge, ObservedAt: time.Now()}
	select {
	case r.beats <- b:
	default:
		r.dropped.Add(1)
	}
}

// RecvTimeout waits up to d for the next beat. ok is false when the
// timeout passes with no beat.
func (r *Receiver) RecvTimeout(d time.Duration) (heartbeat.Beat, bool, error) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case b := <-r.beats:
		return b, true, nil
	case <-t.C:
		return heartbeat.Beat{}, false, nil
	}
}

// Clear discards queued beats so the next read reflects only traffic
// after the call.
func (r *Receiver) Clear() error {
	for {
		select {
		case <-r.beats:
		default:
			return nil
		}
	}
}

// Dropped reports how many beats were discarded because the queue was
// full.
func (r *Receiver) Dropped() uint64 {
	return r.dropped.Load()
}

// Malformed reports how many payloads did not decode as an edge.
func (r *Receiver) Malformed() uint64 {
	return r.malformed.Load()
}

// Close unsubscribes and closes the connection.
func (r *Receiver) Close() error {
	var errs []error
	if err := r.sub.Unsubscribe(); err != nil {
		errs = append(errs, err)
	}
	r.conn.Close()

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
