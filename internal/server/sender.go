package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// tcpSender implements session.Sender over a raw net.Conn, serializing
// writes behind a mutex since the connection's read loop and any
// dispatcher-driven outbound event can both reach Send concurrently.
type tcpSender struct {
	conn     net.Conn
	mu       sync.Mutex
	writable atomic.Bool
	closed   atomic.Bool
}

func newTCPSender(conn net.Conn) *tcpSender {
	s := &tcpSender{conn: conn}
	s.writable.Store(true)
	return s
}

func (s *tcpSender) Send(payload []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("server: tcp sender closed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Write(payload)
	return err
}

func (s *tcpSender) Writable() bool { return s.writable.Load() && !s.closed.Load() }

func (s *tcpSender) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.conn.Close()
}

// wsSender implements session.Sender over a gorilla *websocket.Conn.
// gorilla requires writes to be serialized per-connection even though reads
// may run concurrently on a separate goroutine (spec §4.5 WebSocket chain).
type wsSender struct {
	conn     *websocket.Conn
	mu       sync.Mutex
	writable atomic.Bool
	closed   atomic.Bool
}

func newWSSender(conn *websocket.Conn) *wsSender {
	s := &wsSender{conn: conn}
	s.writable.Store(true)
	return s
}

func (s *wsSender) Send(payload []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("server: websocket sender closed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, payload)
}

func (s *wsSender) Writable() bool { return s.writable.Load() && !s.closed.Load() }

func (s *wsSender) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.conn.Close()
}
