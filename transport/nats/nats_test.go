package nats

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	natsio "github.com/nats-io/nats.go"
	"github.com/sweeney/beatmon/heartbeat"
)

var (
	_ heartbeat.Sender   = (*Sender)(nil)
	_ heartbeat.Receiver = (*Receiver)(nil)
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.URL != natsio.DefaultURL {
		t.Errorf("URL: got %s", cfg.URL)
	}
	if cfg.Subject != DefaultSubject {
		t.Errorf("subject: got %s", cfg.Subject)
	}
	if cfg.ReconnectWait != 2*time.Second {
		t.Errorf("reconnect wait: got %v", cfg.ReconnectWait)
	}
	if cfg.MaxReconnects != -1 {
		t.Errorf("max reconnects: got %d", cfg.MaxReconnects)
	}
	if cfg.ConnectTimeout != 5*time.Second {
		t.Errorf("connect timeout: got %v", cfg.ConnectTimeout)
	}
}

// newTestReceiver builds a receiver without a server connection. Only
// handle, RecvTimeout, Clear and the counters work on it.
func newTestReceiver() *Receiver {
	return &Receiver{
		beats: make(chan heartbeat.Beat, beatBuffer),
	}
}

func TestHandleDecodesEdges(t *testing.T) {
	r := newTestReceiver()
	before := time.Now()

	r.handle(&natsio.Msg{Subject: DefaultSubject, Data: []byte{'+'}})
	r.handle(&natsio.Msg{Subject: DefaultSubject, Data: []byte{'.'}})

	b, ok, err := r.RecvTimeout(time.Second)
	if err != nil || !ok {
		t.Fatalf("expected first beat, got ok=%v err=%v", ok, err)
	}
	if b.Edge != heartbeat.Rising {
		t.Errorf("expected rising, got %v", b.Edge)
	}
	if b.ObservedAt.Before(before) {
		t.Errorf("beat stamped before delivery: %v < %v", b.ObservedAt, before)
	}

	b, ok, err = r.RecvTimeout(time.Second)
	if err != nil || !ok {
		t.Fatalf("expected second beat, got ok=%v err=%v", ok, err)
	}
	if b.Edge != heartbeat.Falling {
		t.Errorf("expected falling, got %v", b.Edge)
	}
}

func TestHandleCountsMalformed(t *testing.T) {
	r := newTestReceiver()

	r.handle(&natsio.Msg{Subject: DefaultSubject, Data: []byte{'x'}})
	r.handle(&natsio.Msg{Subject: DefaultSubject, Data: []byte("++")})
	r.handle(&natsio.Msg{Subject: DefaultSubject, Data: nil})

	if got := r.Malformed(); got != 3 {
		t.Errorf("expected 3 malformed, got %d", got)
	}
	if _, ok, err := r.RecvTimeout(10 * time.Millisecond); ok || err != nil {
		t.Errorf("malformed payloads should queue nothing, got ok=%v err=%v", ok, err)
	}
}

func TestHandleDropsWhenFull(t *testing.T) {
	r := newTestReceiver()

	edges := []byte{'+', '.'}
	for i := 0; i < beatBuffer+3; i++ {
		r.handle(&natsio.Msg{Subject: DefaultSubject, Data: []byte{edges[i%2]}})
	}

	if got := r.Dropped(); got != 3 {
		t.Errorf("expected 3 dropped, got %d", got)
	}
}

func TestRecvTimeoutQuiet(t *testing.T) {
	r := newTestReceiver()

	start := time.Now()
	b, ok, err := r.RecvTimeout(20 * time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected quiet timeout, got beat %+v", b)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}
}

func TestClear(t *testing.T) {
	r := newTestReceiver()

	for i := 0; i < 5; i++ {
		r.handle(&natsio.Msg{Subject: DefaultSubject, Data: []byte{'+'}})
	}
	if err := r.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, err := r.RecvTimeout(10 * time.Millisecond); ok || err != nil {
		t.Errorf("expected empty queue after clear, got ok=%v err=%v", ok, err)
	}
}

// --- Integration tests (need a local NATS server) ---

// getServerURL returns the NATS URL for testing, or skips the test.
func getServerURL(t *testing.T) string {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		url = natsio.DefaultURL
	}

	if testing.Short() {
		t.Skip("skipping NATS test in short mode")
	}

	conn, err := natsio.Connect(url, natsio.Timeout(2*time.Second))
	if err != nil {
		t.Skipf("skipping: NATS not available at %s: %v", url, err)
	}
	conn.Close()

	return url
}

// testConfig returns a config pointed at the test server with a unique
// subject so parallel runs do not hear each other.
func testConfig(t *testing.T) Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.URL = getServerURL(t)
	cfg.Subject = "beatmon.test." + uuid.NewString()
	return cfg
}

func TestSendRecvRoundTrip(t *testing.T) {
	cfg := testConfig(t)

	rx, err := NewReceiver(cfg)
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	defer rx.Close()

	tx, err := NewSender(cfg)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	defer tx.Close()

	for _, want := range []heartbeat.Edge{heartbeat.Rising, heartbeat.Falling, heartbeat.Rising} {
		if err := tx.Send(want); err != nil {
			t.Fatalf("send %v: %v", want, err)
		}
		b, ok, err := rx.RecvTimeout(2 * time.Second)
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		if !ok {
			t.Fatalf("timed out waiting for %v", want)
		}
		if b.Edge != want {
			t.Errorf("expected %v, got %v", want, b.Edge)
		}
		if b.ObservedAt.IsZero() {
			t.Error("beat has zero timestamp")
		}
	}
}

func TestClearDrainsBacklog(t *testing.T) {
	cfg := testConfig(t)

	rx, err := NewReceiver(cfg)
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	defer rx.Close()

	tx, err := NewSender(cfg)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	defer tx.Close()

	for i := 0; i < 5; i++ {
		if err := tx.Send(heartbeat.Rising); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	// Let the backlog land before draining it.
	time.Sleep(100 * time.Millisecond)

	if err := rx.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if err := tx.Send(heartbeat.Falling); err != nil {
		t.Fatalf("send after clear: %v", err)
	}
	b, ok, err := rx.RecvTimeout(2 * time.Second)
	if err != nil || !ok {
		t.Fatalf("expected beat after clear, got ok=%v err=%v", ok, err)
	}
	if b.Edge != heartbeat.Falling {
		t.Errorf("expected falling after clear, got %v", b.Edge)
	}
}
