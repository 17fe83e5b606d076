package heartbeat

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

type recordingSender struct {
	edges  []Edge
	times  []time.Time
	err    error
	closed bool
}

func (s *recordingSender) Send(e Edge) error {
	if s.err != nil {
		return s.err
	}
	s.edges = append(s.edges, e)
	s.times = append(s.times, time.Now())
	return nil
}

func (s *recordingSender) Close() error {
	s.closed = true
	return nil
}

func newTestHeart(t *testing.T, period time.Duration) (*Heart, *recordingSender, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	s := &recordingSender{}
	h, err := NewHeartWithClock(NewConfig(period), s, mock)
	if err != nil {
		t.Fatalf("NewHeartWithClock: %v", err)
	}
	return h, s, mock
}

func TestNewHeartRejectsBadConfig(t *testing.T) {
	if _, err := NewHeart(Config{}, &recordingSender{}); err == nil {
		t.Error("expected error for zero config")
	}
}

func TestHeartFirstBeatImmediate(t *testing.T) {
	h, s, mock := newTestHeart(t, 100*time.Millisecond)

	// The first beat must go out without waiting a period. On the mock
	// clock a sleeping first beat would hang here instead of returning.
	if err := h.Beat(); err != nil {
		t.Fatalf("Beat: %v", err)
	}
	if len(s.edges) != 1 || s.edges[0] != Rising {
		t.Fatalf("expected one RISING edge, got %v", s.edges)
	}
	if h.next != Falling {
		t.Errorf("expected next edge FALLING, got %s", h.next)
	}
	if !h.lastSend.Equal(mock.Now()) {
		t.Errorf("expected send stamped at %v, got %v", mock.Now(), h.lastSend)
	}
}

func TestHeartAlternatesEdges(t *testing.T) {
	h, s, mock := newTestHeart(t, 100*time.Millisecond)

	for i := 0; i < 4; i++ {
		if err := h.Beat(); err != nil {
			t.Fatalf("beat %d: %v", i, err)
		}
		mock.Add(100 * time.Millisecond)
	}

	want := []Edge{Rising, Falling, Rising, Falling}
	if len(s.edges) != len(want) {
		t.Fatalf("expected %d edges, got %d", len(want), len(s.edges))
	}
	for i, e := range want {
		if s.edges[i] != e {
			t.Errorf("edge %d: expected %s, got %s", i, e, s.edges[i])
		}
	}
}

func TestHeartDoesNotSleepWhenBehind(t *testing.T) {
	h, s, mock := newTestHeart(t, 100*time.Millisecond)

	if err := h.Beat(); err != nil {
		t.Fatalf("beat 1: %v", err)
	}

	// Fall far behind schedule. The next beat goes out at once and the
	// pacing reference moves to that send; there is no burst of catch-up
	// beats afterwards.
	mock.Add(350 * time.Millisecond)
	if err := h.Beat(); err != nil {
		t.Fatalf("beat 2: %v", err)
	}
	if !h.lastSend.Equal(mock.Now()) {
		t.Errorf("expected pacing reference at %v, got %v", mock.Now(), h.lastSend)
	}

	mock.Add(100 * time.Millisecond)
	if err := h.Beat(); err != nil {
		t.Fatalf("beat 3: %v", err)
	}

	want := []Edge{Rising, Falling, Rising}
	for i, e := range want {
		if s.edges[i] != e {
			t.Errorf("edge %d: expected %s, got %s", i, e, s.edges[i])
		}
	}
}

func TestHeartSendFailureKeepsEdge(t *testing.T) {
	h, s, _ := newTestHeart(t, 100*time.Millisecond)

	fail := errors.New("transport down")
	s.err = fail
	if err := h.Beat(); err != fail {
		t.Fatalf("expected transport error passed through, got %v", err)
	}
	if len(s.edges) != 0 {
		t.Fatalf("expected no edge recorded, got %v", s.edges)
	}
	if h.next != Rising {
		t.Errorf("failed send must not flip polarity, next = %s", h.next)
	}
	if !h.lastSend.IsZero() {
		t.Errorf("failed send must not advance pacing, lastSend = %v", h.lastSend)
	}

	// The retry sends the same edge.
	s.err = nil
	if err := h.Beat(); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(s.edges) != 1 || s.edges[0] != Rising {
		t.Errorf("expected retried RISING edge, got %v", s.edges)
	}
}

func TestHeartPacing(t *testing.T) {
	const period = 30 * time.Millisecond
	s := &recordingSender{}
	h, err := NewHeart(NewConfig(period), s)
	if err != nil {
		t.Fatalf("NewHeart: %v", err)
	}

	start := time.Now()
	for i := 0; i < 4; i++ {
		if err := h.Beat(); err != nil {
			t.Fatalf("beat %d: %v", i, err)
		}
	}

	if gap := s.times[0].Sub(start); gap >= period {
		t.Errorf("first beat waited a full period: %v", gap)
	}
	for i := 1; i < len(s.times); i++ {
		if gap := s.times[i].Sub(s.times[i-1]); gap < period {
			t.Errorf("beat %d arrived %v after previous, want at least %v", i, gap, period)
		}
	}
	if elapsed := s.times[3].Sub(s.times[0]); elapsed < 3*period {
		t.Errorf("four beats spanned %v, want at least %v", elapsed, 3*period)
	}
}
