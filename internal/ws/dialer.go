package ws

import (
	"bufio"
	"context"
	"net"

	"github.com/gobwas/ws"
)

// Dialer opens the WebSocket connection. The returned reader, when non-nil,
// holds bytes the server sent right after the handshake and must be drained
// before reading from the connection.
type Dialer interface {
	Dial(ctx context.Context, url string) (net.Conn, *bufio.Reader, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (net.Conn, *bufio.Reader, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (net.Conn, *bufio.Reader, error) {
	return f(ctx, url)
}

// NetDialer dials with gobwas/ws.
type NetDialer struct {
	ws.Dialer
}

func (d NetDialer) Dial(ctx context.Context, url string) (net.Conn, *bufio.Reader, error) {
	conn, br, _, err := d.Dialer.Dial(ctx, url)
	return conn, br, err
}
