package login_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/zealnet/server/internal/login"
)

func TestMapVerifier_SuccessMintsUniqueRandomKey(t *testing.T) {
	v := login.NewMapVerifier(func(_ context.Context, fields map[string]any) (string, map[string]any, bool, error) {
		return fields["account"].(string), nil, true, nil
	})

	credsA, ok, err := v.Verify(context.Background(), map[string]any{"account": "alice"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", credsA.Attributes["account"])
	require.NotEmpty(t, credsA.RandomKey)

	credsB, ok, err := v.Verify(context.Background(), map[string]any{"account": "alice"})
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, credsA.RandomKey, credsB.RandomKey, "each verified login gets a fresh random key")
}

func TestMapVerifier_RejectsNonMapPayload(t *testing.T) {
	v := login.NewMapVerifier(func(context.Context, map[string]any) (string, map[string]any, bool, error) {
		return "", nil, true, nil
	})

	_, ok, err := v.Verify(context.Background(), "not a map")
	require.Error(t, err)
	require.False(t, ok)
}

func TestMapVerifier_PropagatesVerifierRejection(t *testing.T) {
	v := login.NewMapVerifier(func(context.Context, map[string]any) (string, map[string]any, bool, error) {
		return "", nil, false, nil
	})

	_, ok, err := v.Verify(context.Background(), map[string]any{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJWTVerifier_SuccessfulToken(t *testing.T) {
	secret := []byte("test-secret")
	v := login.NewJWTVerifier(secret)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "account-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	creds, ok, err := v.Verify(context.Background(), map[string]any{"token": signed})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "account-42", creds.Attributes["account"])
}

func TestJWTVerifier_RejectsBadSignature(t *testing.T) {
	v := login.NewJWTVerifier([]byte("real-secret"))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"})
	signed, err := token.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	_, ok, err := v.Verify(context.Background(), map[string]any{"token": signed})
	require.Error(t, err)
	require.False(t, ok)
}

func TestJWTVerifier_MissingTokenField(t *testing.T) {
	v := login.NewJWTVerifier([]byte("secret"))
	_, ok, err := v.Verify(context.Background(), map[string]any{})
	require.Error(t, err)
	require.False(t, ok)
}
