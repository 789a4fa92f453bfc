package login_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zealnet/server/internal/login"
)

func TestAESGCMMinter_RoundTrip(t *testing.T) {
	key := make([]byte, 32)
	minter, err := login.NewAESGCMMinter(key)
	require.NoError(t, err)

	token, err := minter.Mint("random-key-123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	decoded, err := minter.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "random-key-123", decoded)
}

func TestAESGCMMinter_DistinctTokensPerCall(t *testing.T) {
	key := make([]byte, 32)
	minter, err := login.NewAESGCMMinter(key)
	require.NoError(t, err)

	a, err := minter.Mint("same-key")
	require.NoError(t, err)
	b, err := minter.Mint("same-key")
	require.NoError(t, err)

	require.NotEqual(t, a, b, "a fresh random IV must make every mint distinct even for the same randomKey")
}

func TestAESGCMMinter_Verify_RejectsTamperedToken(t *testing.T) {
	key := make([]byte, 32)
	minter, err := login.NewAESGCMMinter(key)
	require.NoError(t, err)

	token, err := minter.Mint("random-key")
	require.NoError(t, err)

	tampered := []byte(token)
	tampered[len(tampered)-1] ^= 0xFF
	_, err = minter.Verify(string(tampered))
	require.Error(t, err)
}

func TestAESGCMMinter_Verify_RejectsShortToken(t *testing.T) {
	key := make([]byte, 32)
	minter, err := login.NewAESGCMMinter(key)
	require.NoError(t, err)

	_, err = minter.Verify("AA")
	require.Error(t, err)
}

func TestNewAESGCMMinter_RejectsInvalidKeySize(t *testing.T) {
	_, err := login.NewAESGCMMinter([]byte{1, 2, 3})
	require.Error(t, err)
}
