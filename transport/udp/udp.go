// Package udp carries heartbeat edges as single-byte UDP datagrams: '+'
// for a rising edge, '.' for a falling one. Datagrams are fire-and-forget
// with no framing beyond the one byte, so a lost or duplicated packet
// surfaces downstream as a watchdog verdict, not a transport error.
package udp

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sweeney/beatmon/heartbeat"
)

// Sender emits edges to a fixed peer address.
type Sender struct {
	conn *net.UDPConn
}

// NewSender connects to a watchdog's listen address ("host:port").
func NewSender(addr string) (*Sender, error) {
	peer, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, peer)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Sender{conn: conn}, nil
}

// Send writes the edge's wire byte as one datagram.
func (s *Sender) Send(e heartbeat.Edge) error {
	if _, err := s.conn.Write([]byte{e.Byte()}); err != nil {
		return fmt.Errorf("send edge: %w", err)
	}
	return nil
}

// Close releases the socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}

// Receiver listens for edge datagrams on a local address. Beats are
// stamped with the wall-clock instant the datagram was read.
type Receiver struct {
	conn *net.UDPConn
}

// NewReceiver binds addr ("host:port"; use port 0 to let the kernel pick).
func NewReceiver(addr string) (*Receiver, error) {
	local, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Receiver{conn: conn}, nil
}

// Addr returns the bound local address, useful when the receiver was
// bound with port 0.
func (r *Receiver) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// RecvTimeout waits up to d for one datagram. A quiet interval is not an
// error: it reports ok=false with a nil error. A datagram that is not a
// valid edge byte is a decode error.
func (r *Receiver) RecvTimeout(d time.Duration) (heartbeat.Beat, bool, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		return heartbeat.Beat{}, false, fmt.Errorf("set read deadline: %w", err)
	}
	var buf [1]byte
	n, _, err := r.conn.ReadFromUDP(buf[:])
	if err != nil {
		if isTimeout(err) {
			return heartbeat.Beat{}, false, nil
		}
		return heartbeat.Beat{}, false, fmt.Errorf("recv: %w", err)
	}
	now := time.Now()
	if n == 0 {
		// Zero-length datagrams carry nothing; skip them.
		return heartbeat.Beat{}, false, nil
	}
	edge, err := heartbeat.EdgeFromByte(buf[0])
	if err != nil {
		return heartbeat.Beat{}, false, fmt.Errorf("decode beat: %w", err)
	}
	return heartbeat.Beat{Edge: edge, ObservedAt: now}, true, nil
}

// Clear drains every datagram already queued in the socket buffer.
func (r *Receiver) Clear() error {
	for {
		if err := r.conn.SetReadDeadline(time.Now()); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		var buf [1]byte
		if _, _, err := r.conn.ReadFromUDP(buf[:]); err != nil {
			if isTimeout(err) {
				return nil
			}
			return fmt.Errorf("drain: %w", err)
		}
	}
}

// Close releases the socket. A blocked RecvTimeout returns with an error.
func (r *Receiver) Close() error {
	return r.conn.Close()
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
