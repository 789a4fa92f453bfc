// Package pipeline implements the per-connection protocol pipeline (spec
// §4.5): an ordered, named, mutable stage chain built by a Protocol and
// mutated only on the connection's own execution context.
package pipeline

import (
	"fmt"
	"io"

	"github.com/zealnet/server/internal/event"
	"github.com/zealnet/server/internal/session"
)

// Handler processes one decoded event against the connection's session.
// Pre-login chains invoke it with the bare Session; post-login chains
// invoke it with ps.Session once a PlayerSession has been created.
type Handler func(s *session.Session, e event.Event) error

// Stage is one named link in a pipeline. Each stage fills in only the
// fields relevant to its role: a framer carries ReadFrame/WriteFrame, a
// codec carries Decode/Encode, the terminal application stage carries
// Handle.
type Stage struct {
	Name       string
	ReadFrame  func(r io.Reader) ([]byte, error)
	WriteFrame func(w io.Writer, payload []byte) error
	Decode     func(frame []byte) (event.Event, error)
	Encode     func(e event.Event) ([]byte, error)
	Handle     Handler
}

// Pipeline is a connection's ordered, named, mutable stage chain. It is not
// safe for concurrent use — spec §4.5 requires all mutation to happen on
// the connection's own execution context, same discipline as buffer.Buffer.
type Pipeline struct {
	name   string
	stages []Stage
}

// New creates an empty, named pipeline.
func New(name string) *Pipeline {
	return &Pipeline{name: name}
}

// Name returns the pipeline's identifying name (for logging/diagnostics).
func (p *Pipeline) Name() string { return p.name }

// Stages returns a snapshot of the current chain.
func (p *Pipeline) Stages() []Stage {
	out := make([]Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// Install replaces (clearExisting=true) or appends (false) chain onto the
// pipeline — the mechanics behind Protocol.applyProtocol.
func (p *Pipeline) Install(chain []Stage, clearExisting bool) {
	if clearExisting {
		p.stages = append([]Stage(nil), chain...)
		return
	}
	p.stages = append(p.stages, chain...)
}

// RemoveByName removes the first stage named name, reporting whether one
// was found.
func (p *Pipeline) RemoveByName(name string) bool {
	for i, st := range p.stages {
		if st.Name == name {
			p.stages = append(p.stages[:i:i], p.stages[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the named stage, if present.
func (p *Pipeline) Get(name string) (Stage, bool) {
	for _, st := range p.stages {
		if st.Name == name {
			return st, true
		}
	}
	return Stage{}, false
}

// ReadFrame delegates to the first stage carrying a frame reader. The
// transport read loop calls this once per inbound message.
func (p *Pipeline) ReadFrame(r io.Reader) ([]byte, error) {
	for _, st := range p.stages {
		if st.ReadFrame != nil {
			return st.ReadFrame(r)
		}
	}
	return nil, fmt.Errorf("pipeline %s: no framer stage installed", p.name)
}

// WriteFrame delegates to the first stage carrying a frame writer.
func (p *Pipeline) WriteFrame(w io.Writer, payload []byte) error {
	for _, st := range p.stages {
		if st.WriteFrame != nil {
			return st.WriteFrame(w, payload)
		}
	}
	return fmt.Errorf("pipeline %s: no length-prepender stage installed", p.name)
}

// DecodeFrame delegates to the first decoder stage.
func (p *Pipeline) DecodeFrame(frame []byte) (event.Event, error) {
	for _, st := range p.stages {
		if st.Decode != nil {
			return st.Decode(frame)
		}
	}
	return event.Event{}, fmt.Errorf("pipeline %s: no decoder stage installed", p.name)
}

// EncodeEvent delegates to the first encoder stage.
func (p *Pipeline) EncodeEvent(e event.Event) ([]byte, error) {
	for _, st := range p.stages {
		if st.Encode != nil {
			return st.Encode(e)
		}
	}
	return nil, fmt.Errorf("pipeline %s: no encoder stage installed", p.name)
}

// Dispatch runs every Handle-bearing stage against s, e, in order, stopping
// at the first error.
func (p *Pipeline) Dispatch(s *session.Session, e event.Event) error {
	for _, st := range p.stages {
		if st.Handle == nil {
			continue
		}
		if err := st.Handle(s, e); err != nil {
			return err
		}
	}
	return nil
}
