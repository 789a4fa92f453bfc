package server

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zealnet/server/internal/dispatch"
	"github.com/zealnet/server/internal/event"
	"github.com/zealnet/server/internal/game"
	"github.com/zealnet/server/internal/idgen"
	"github.com/zealnet/server/internal/pipeline"
	"github.com/zealnet/server/internal/registry"
)

func newTestDeps(t *testing.T, v stubVerifier) (Deps, func()) {
	t.Helper()
	d := dispatch.New(dispatch.Config{Shards: 1})
	reg := registry.New(registry.Config{})
	g := game.New("arena", d, nil)
	return Deps{
			Dispatcher: d,
			Registry:   reg,
			Game:       g,
			Verifier:   v,
			Minter:     stubMinter{token: "tok"},
			IDGen:      idgen.New("test"),
		}, func() {
			reg.Close()
			d.Close()
		}
}

func readFramed(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var header [2]byte
	_, err := io.ReadFull(conn, header[:])
	require.NoError(t, err)
	n := binary.BigEndian.Uint16(header[:])
	frame := make([]byte, n)
	_, err = io.ReadFull(conn, frame)
	require.NoError(t, err)
	return frame
}

func writeFramed(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	var header [2]byte
	binary.BigEndian.PutUint16(header[:], uint16(len(payload)))
	_, err := conn.Write(header[:])
	require.NoError(t, err)
	_, err = conn.Write(payload)
	require.NoError(t, err)
}

func TestTCPListener_StartTwice_IsNoop(t *testing.T) {
	deps, cleanup := newTestDeps(t, stubVerifier{ok: false})
	defer cleanup()

	l := NewTCPListener("127.0.0.1:0", deps, func() pipeline.Protocol { return pipeline.NewBinaryTCP() })
	require.NoError(t, l.Start())
	require.NoError(t, l.Start())
	require.NoError(t, l.Stop())
}

func TestTCPListener_RejectedLogin_RespondsFailureAndCloses(t *testing.T) {
	deps, cleanup := newTestDeps(t, stubVerifier{ok: false})
	defer cleanup()

	l := NewTCPListener("127.0.0.1:0", deps, func() pipeline.Protocol { return pipeline.NewBinaryTCP() })
	require.NoError(t, l.Start())
	defer l.Stop()

	addr := listenerAddr(t, l)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	writeFramed(t, conn, []byte{byte(event.LogIn)})

	frame := readFramed(t, conn)
	require.Equal(t, byte(event.LogInFailure), frame[0])

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestTCPListener_Stop_ClosesAcceptSocket(t *testing.T) {
	deps, cleanup := newTestDeps(t, stubVerifier{ok: false})
	defer cleanup()

	l := NewTCPListener("127.0.0.1:0", deps, func() pipeline.Protocol { return pipeline.NewBinaryTCP() })
	require.NoError(t, l.Start())
	addr := listenerAddr(t, l)

	require.NoError(t, l.Stop())

	_, err := net.DialTimeout("tcp", addr, time.Second)
	require.Error(t, err)
}

// listenerAddr pulls the bound address back off a started TCPListener for
// a dial target, since NewTCPListener is handed ":0" for an ephemeral port.
func listenerAddr(t *testing.T, l *TCPListener) string {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	require.NotNil(t, l.listener)
	return l.listener.Addr().String()
}
