package mqtt

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/beatmon/heartbeat"
)

// beatBuffer bounds the queue between the paho router goroutine and
// RecvTimeout. Beats past it are dropped and counted.
const beatBuffer = 16

// systemBufferCap bounds the number of lifecycle events held while the
// broker is unreachable.
const systemBufferCap = 32

// connect dials the broker with the retry policy shared by every
// connection role. The role suffix keeps client IDs distinct so the
// broker does not kick one session off when another connects.
func connect(cfg Config, role string, onConnect paho.OnConnectHandler) (paho.Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID + role).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if onConnect != nil {
		opts.SetOnConnectHandler(onConnect)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return client, nil
}

// Sender publishes heartbeat edges to the beat topic.
type Sender struct {
	client paho.Client
	topic  string
}

// NewSender connects to the broker and returns a beat sender.
func NewSender(cfg Config) (*Sender, error) {
	client, err := connect(cfg, "-tx", nil)
	if err != nil {
		return nil, err
	}
	return &Sender{client: client, topic: cfg.Topic}, nil
}

// Send publishes one edge as a single-byte payload.
func (s *Sender) Send(e heartbeat.Edge) error {
	// QoS 0 (at-most-once): the next beat supersedes a lost one.
	token := s.client.Publish(s.topic, 0, false, []byte{e.Byte()})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish beat: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (s *Sender) Close() error {
	s.client.Disconnect(1000) // 1 second timeout
	return nil
}

// Receiver subscribes to the beat topic and queues observed beats.
type Receiver struct {
	client    paho.Client
	topic     string
	beats     chan heartbeat.Beat
	dropped   atomic.Uint64
	malformed atomic.Uint64
}

// NewReceiver connects to the broker and subscribes to the beat topic.
func NewReceiver(cfg Config) (*Receiver, error) {
	r := &Receiver{
		topic: cfg.Topic,
		beats: make(chan heartbeat.Beat, beatBuffer),
	}

	client, err := connect(cfg, "-rx", nil)
	if err != nil {
		return nil, err
	}

	token := client.Subscribe(r.topic, 0, r.handle)
	if !token.WaitTimeout(5 * time.Second) {
		client.Disconnect(250)
		return nil, fmt.Errorf("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("subscribe %s: %w", r.topic, err)
	}

	r.client = client
	return r, nil
}

// handle runs on the paho router goroutine and must not block. Beats
// are stamped here, at delivery, not when RecvTimeout picks them up.
// Payloads that do not decode as an edge are counted and discarded: a
// subscription callback has no error path to surface them on.
func (r *Receiver) handle(_ paho.Client, m paho.Message) {
	p := m.Payload()
	if len(p) != 1 {
		r.malformed.Add(1)
		return
	}
	edge, err := heartbeat.EdgeFromByte(p[0])
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

// Close unsubscribes and disconnects from the broker.
func (r *Receiver) Close() error {
	token := r.client.Unsubscribe(r.topic)
	token.WaitTimeout(time.Second)
	r.client.Disconnect(1000) // 1 second timeout
	return nil
}

// SystemPublisher publishes lifecycle events, buffering them while the
// broker is unreachable.
type SystemPublisher struct {
	mu     sync.Mutex
	client paho.Client
	buffer *ringBuffer // guarded by mu
}

// NewSystemPublisher connects to the broker and returns a publisher for
// lifecycle events.
func NewSystemPublisher(cfg Config) (*SystemPublisher, error) {
	p := &SystemPublisher{buffer: newRingBuffer(systemBufferCap)}

	// The reconnect handler replays buffered events. It takes the client
	// as an argument because it can fire before connect returns.
	client, err := connect(cfg, "-sys", p.replay)
	if err != nil {
		return nil, err
	}
	p.client = client
	return p, nil
}

// PublishSystem publishes a lifecycle event. While the broker is
// unreachable the event is buffered for replay on reconnect; buffering
// is not an error.
func (p *SystemPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.client.IsConnected() {
		p.buffer.push(bufferedMsg{topic: TopicSystem, payload: payload, retained: event.Retained})
		return nil
	}

	// QoS 1 (at-least-once): state flips must survive a flaky link.
	token := p.client.Publish(TopicSystem, 1, event.Retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// replay flushes events buffered while disconnected. Registered as the
// paho OnConnect handler, so it runs on every reconnect.
func (p *SystemPublisher) replay(client paho.Client) {
	p.mu.Lock()
	msgs := p.buffer.drainAll()
	p.mu.Unlock()

	for _, m := range msgs {
		token := client.Publish(m.topic, 1, m.retained, m.payload)
		if token.WaitTimeout(5*time.Second) && token.Error() == nil {
			continue
		}
		log.Printf("mqtt: replay buffered system event: %v", token.Error())
	}
}

// IsConnected reports whether the broker connection is up.
func (p *SystemPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Buffered reports how many events are waiting for reconnect.
func (p *SystemPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker. Events still buffered are dropped.
func (p *SystemPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
