package transport

import (
	"net"

	"github.com/flynn/noise"
)

// Listener accepts relay-side connections. If a static key is set,
// Upgrade runs the responder handshake; otherwise connections are plain.
type Listener struct {
	ln     net.Listener
	static *noise.DHKey
}

// Listen opens a TCP listener. Pass a static key to require the Noise
// channel, or nil for plain framing.
func Listen(addr string, static *noise.DHKey) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, static: static}, nil
}

// Accept returns the next raw TCP connection. Run Upgrade on it from the
// per-connection goroutine so a slow handshake cannot stall the accept
// loop.
func (l *Listener) Accept() (net.Conn, error) {
	return l.ln.Accept()
}

// Upgrade wraps an accepted connection with the configured framing.
func (l *Listener) Upgrade(conn net.Conn) (Conn, error) {
	if l.static == nil {
		return NewPlainConn(conn), nil
	}
	return ServerHandshake(conn, *l.static)
}

// Addr reports the bound listen address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}
