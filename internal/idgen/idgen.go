// Package idgen mints session identifiers: a single atomic counter plus an
// optional node-name prefix, exposed as a capability so tests can reset it
// (spec §9 "Id generator").
package idgen

import (
	"fmt"
	"sync/atomic"
)

// Generator hands out monotonically increasing ids, optionally prefixed with
// a node name ("{node}-{seq}"). A zero-value Generator with no node name
// yields bare numeric ids, per spec §6 ZealNode semantics.
type Generator struct {
	node    string
	counter atomic.Int64
}

// New creates a Generator. An empty node produces numeric-only ids.
func New(node string) *Generator {
	return &Generator{node: node}
}

// Next returns the next id.
func (g *Generator) Next() string {
	seq := g.counter.Add(1)
	if g.node == "" {
		return fmt.Sprintf("%d", seq)
	}
	return fmt.Sprintf("%s-%d", g.node, seq)
}

// Reset sets the internal counter back to zero. Test-only capability.
func (g *Generator) Reset() {
	g.counter.Store(0)
}
