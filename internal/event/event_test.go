package event_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zealnet/server/internal/event"
)

func TestNew_RejectsNetworkMessageType(t *testing.T) {
	require.Panics(t, func() {
		event.New(event.NetworkMessage, []byte("boom"))
	})
}

func TestNew_SetsTimestampAndPayload(t *testing.T) {
	before := time.Now()
	e := event.New(event.LogIn, "payload")
	after := time.Now()

	require.Equal(t, event.LogIn, e.Type())
	require.Equal(t, "payload", e.Payload())
	require.False(t, e.Timestamp().Before(before))
	require.False(t, e.Timestamp().After(after))
	require.False(t, e.IsNetworkMessage())
}

func TestNewNetworkMessage_IsPermanentlyTyped(t *testing.T) {
	e := event.NewNetworkMessage([]byte{1, 2, 3})
	require.True(t, e.IsNetworkMessage())
	require.Equal(t, event.NetworkMessage, e.Type())
	require.Equal(t, []byte{1, 2, 3}, e.Payload())
}

func TestNewForSession_CarriesRoutingKey(t *testing.T) {
	e := event.NewForSession(event.GameEnter, nil, "session-42")
	id, ok := e.Session().ID()
	require.True(t, ok)
	require.Equal(t, "session-42", id)
}

func TestEvent_NoSessionKey_IsUnset(t *testing.T) {
	e := event.New(event.Start, nil)
	_, ok := e.Session().ID()
	require.False(t, ok)
}

func TestType_String(t *testing.T) {
	cases := map[event.Type]string{
		event.LogIn:          "LOG_IN",
		event.LogInSuccess:   "LOG_IN_SUCCESS",
		event.LogInFailure:   "LOG_IN_FAILURE",
		event.LogOut:         "LOG_OUT",
		event.SessionMessage: "SESSION_MESSAGE",
		event.NetworkMessage: "NETWORK_MESSAGE",
		event.Disconnect:     "DISCONNECT",
		event.GameEnter:      "GAME_ENTER",
		event.GameLeave:      "GAME_LEAVE",
		event.Start:          "START",
		event.Stop:           "STOP",
		event.Exception:      "EXCEPTION",
		event.Any:            "ANY",
		event.Type(0x99):     "UNKNOWN",
	}
	for typ, want := range cases {
		require.Equal(t, want, typ.String())
	}
}
