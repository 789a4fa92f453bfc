package idgen_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zealnet/server/internal/idgen"
)

func TestGenerator_Next_IsMonotonicAndPrefixed(t *testing.T) {
	g := idgen.New("node-a")
	require.Equal(t, "node-a-1", g.Next())
	require.Equal(t, "node-a-2", g.Next())
	require.Equal(t, "node-a-3", g.Next())
}

func TestGenerator_Next_NoNodeYieldsBareNumeric(t *testing.T) {
	g := idgen.New("")
	require.Equal(t, "1", g.Next())
	require.Equal(t, "2", g.Next())
}

func TestGenerator_Reset_RestartsCounter(t *testing.T) {
	g := idgen.New("n")
	g.Next()
	g.Next()
	g.Reset()
	require.Equal(t, "n-1", g.Next())
}
