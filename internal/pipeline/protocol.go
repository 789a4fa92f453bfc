package pipeline

import "github.com/zealnet/server/internal/session"

const (
	// LoginMaxFrame bounds pre-authentication frames (spec §4.5): nothing
	// legitimate a client sends before LOG_IN succeeds is large.
	LoginMaxFrame = 1024
	// DefaultMaxFrame is the largest frame the 2-byte length field can
	// address; the app-chain protocols use it as their frame ceiling.
	DefaultMaxFrame = 0xFFFF
)

// Protocol is a named strategy that builds the ordered stage chain a
// pipeline should run (spec §4.5).
type Protocol interface {
	Name() string
	Build(handle Handler) []Stage
}

// ApplyProtocol installs proto's chain onto pl and records proto on ps
// (spec §4.5 applyProtocol(session, clearExisting)).
func ApplyProtocol(ps *session.PlayerSession, pl *Pipeline, proto Protocol, handle Handler, clearExisting bool) {
	pl.Install(proto.Build(handle), clearExisting)
	ps.SetProtocol(proto)
}

// BinaryTCP is the plain-binary, length-framed protocol: framer ->
// event-decoder -> app-handler -> event-encoder -> length-prepender.
type BinaryTCP struct{ MaxFrame int }

func NewBinaryTCP() BinaryTCP { return BinaryTCP{MaxFrame: DefaultMaxFrame} }

func (p BinaryTCP) Name() string { return "binary-tcp" }

func (p BinaryTCP) Build(handle Handler) []Stage {
	framer := Framer{MaxFrame: maxFrameOr(p.MaxFrame, DefaultMaxFrame)}
	codec := BinaryCodec{}
	return []Stage{
		{Name: "length-framer", ReadFrame: framer.ReadFrame},
		{Name: "event-decoder", Decode: codec.Decode},
		{Name: "app-handler", Handle: handle},
		{Name: "event-encoder", Encode: codec.Encode},
		{Name: "length-prepender", WriteFrame: framer.WriteFrame},
	}
}

// JSONTCP is the length-framed JSON protocol: same shape as BinaryTCP with
// the JSON codec pair.
type JSONTCP struct{ MaxFrame int }

func NewJSONTCP() JSONTCP { return JSONTCP{MaxFrame: DefaultMaxFrame} }

func (p JSONTCP) Name() string { return "json-tcp" }

func (p JSONTCP) Build(handle Handler) []Stage {
	framer := Framer{MaxFrame: maxFrameOr(p.MaxFrame, DefaultMaxFrame)}
	codec := JSONCodec{}
	return []Stage{
		{Name: "length-framer", ReadFrame: framer.ReadFrame},
		{Name: "event-decoder", Decode: codec.Decode},
		{Name: "app-handler", Handle: handle},
		{Name: "event-encoder", Encode: codec.Encode},
		{Name: "length-prepender", WriteFrame: framer.WriteFrame},
	}
}

// LoginBinary is the pre-login chain installed on a connection before
// LOG_IN succeeds (spec §4.6): identical framer/codec shape to BinaryTCP
// but bounded to LoginMaxFrame, with a login-handler stage in the
// app-handler slot instead of the post-login application handler.
type LoginBinary struct{}

func (p LoginBinary) Name() string { return "login-binary" }

func (p LoginBinary) Build(handle Handler) []Stage {
	framer := Framer{MaxFrame: LoginMaxFrame}
	codec := BinaryCodec{}
	return []Stage{
		{Name: "length-framer", ReadFrame: framer.ReadFrame},
		{Name: "event-decoder", Decode: codec.Decode},
		{Name: "login-handler", Handle: handle},
		{Name: "event-encoder", Encode: codec.Encode},
		{Name: "length-prepender", WriteFrame: framer.WriteFrame},
	}
}

// SBE is the SBE-framed protocol: framer -> sbe-decoder -> app-handler ->
// sbe-encoder -> length-prepender.
type SBE struct{ MaxFrame int }

func NewSBE() SBE { return SBE{MaxFrame: DefaultMaxFrame} }

func (p SBE) Name() string { return "sbe" }

func (p SBE) Build(handle Handler) []Stage {
	framer := Framer{MaxFrame: maxFrameOr(p.MaxFrame, DefaultMaxFrame)}
	codec := SBECodec{}
	return []Stage{
		{Name: "length-framer", ReadFrame: framer.ReadFrame},
		{Name: "sbe-decoder", Decode: codec.Decode},
		{Name: "app-handler", Handle: handle},
		{Name: "sbe-encoder", Encode: codec.Encode},
		{Name: "length-prepender", WriteFrame: framer.WriteFrame},
	}
}

// WebSocket is the post-login WebSocket chain (spec §4.5): HTTP codec ->
// HTTP aggregator -> WS server protocol handler -> WS event-decoder ->
// app-handler -> WS event-encoder. It carries no length-framer: the
// WebSocket server framer (gorilla's message boundaries, wired in
// internal/server) already delimits frames.
type WebSocket struct{ JSON bool }

func NewWebSocketBinary() WebSocket { return WebSocket{JSON: false} }
func NewWebSocketJSON() WebSocket   { return WebSocket{JSON: true} }

func (p WebSocket) Name() string { return "websocket" }

func (p WebSocket) innerCodec() Codec {
	if p.JSON {
		return JSONCodec{}
	}
	return BinaryCodec{}
}

func (p WebSocket) Build(handle Handler) []Stage {
	codec := WSCodec{Inner: p.innerCodec()}
	return []Stage{
		{Name: "http-codec"},
		{Name: "http-aggregator"},
		{Name: "ws-handshake"},
		{Name: "ws-decoder", Decode: codec.Decode},
		{Name: "app-handler", Handle: handle},
		{Name: "ws-encoder", Encode: codec.Encode},
	}
}

// WebSocketPreLogin is WebSocket's pre-authentication chain: it additionally
// carries the fixed-name compression and login-handler stages (spec §4.5
// "the pre-login stage also carries a WS compression handler and a login
// handler installed under a fixed stage name").
type WebSocketPreLogin struct{ JSON bool }

func (p WebSocketPreLogin) Name() string { return "websocket-pre-login" }

func (p WebSocketPreLogin) Build(handle Handler) []Stage {
	codec := WSCodec{Inner: WebSocket{JSON: p.JSON}.innerCodec()}
	return []Stage{
		{Name: "http-codec"},
		{Name: "http-aggregator"},
		{Name: "ws-handshake"},
		{Name: "ws-compression"},
		{Name: "ws-decoder", Decode: codec.Decode},
		{Name: "login-handler", Handle: handle},
		{Name: "ws-encoder", Encode: codec.Encode},
	}
}

func maxFrameOr(configured, def int) int {
	if configured <= 0 {
		return def
	}
	return configured
}
