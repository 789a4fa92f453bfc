package server

import "net"

// listenTCP is the shared net.Listen wrapper every listener binds through,
// kept in one place so the rate-limiting wrapper (ratelimit.go) has a
// single seam to wrap.
func listenTCP(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
