package server

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestTCPSender_SendWritesToConn(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	s := newTCPSender(server)
	defer s.Close()

	go func() {
		_ = s.Send([]byte("hello"))
	}()

	buf := make([]byte, 5)
	_, err := client.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
}

func TestTCPSender_Close_IsIdempotentAndRejectsFurtherSends(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	s := newTCPSender(server)

	require.True(t, s.Writable())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close must not error")
	require.False(t, s.Writable())

	err := s.Send([]byte("x"))
	require.Error(t, err)
}

func TestWSSender_SendWritesBinaryMessage(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		sender := newWSSender(conn)
		defer sender.Close()
		require.NoError(t, sender.Send([]byte("ping-back")))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	msgType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, msgType)
	require.Equal(t, "ping-back", string(payload))
}

func TestWSSender_Close_IsIdempotent(t *testing.T) {
	upgrader := websocket.Upgrader{}
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		sender := newWSSender(conn)
		require.NoError(t, sender.Close())
		require.NoError(t, sender.Close())
		close(done)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	<-done
}
