package pipeline_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zealnet/server/internal/pipeline"
)

func TestFramer_RoundTrip(t *testing.T) {
	f := pipeline.Framer{}
	var buf bytes.Buffer

	require.NoError(t, f.WriteFrame(&buf, []byte("hello")))

	got, err := f.ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestFramer_EmptyPayload(t *testing.T) {
	f := pipeline.Framer{}
	var buf bytes.Buffer

	require.NoError(t, f.WriteFrame(&buf, nil))
	got, err := f.ReadFrame(&buf)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFramer_WriteFrame_RejectsOverMaxFrame(t *testing.T) {
	f := pipeline.Framer{MaxFrame: 4}
	var buf bytes.Buffer
	err := f.WriteFrame(&buf, []byte("too long"))
	require.Error(t, err)
}

func TestFramer_ReadFrame_RejectsOverMaxFrame(t *testing.T) {
	writer := pipeline.Framer{}
	var buf bytes.Buffer
	require.NoError(t, writer.WriteFrame(&buf, []byte("exceeds limit")))

	reader := pipeline.Framer{MaxFrame: 4}
	_, err := reader.ReadFrame(&buf)
	require.Error(t, err)
}

func TestFramer_ReadFrame_ShortHeader(t *testing.T) {
	f := pipeline.Framer{}
	_, err := f.ReadFrame(bytes.NewReader([]byte{0x00}))
	require.Error(t, err)
}
