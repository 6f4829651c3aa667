// Package transport provides the physical connections to the relay, plain
// TCP by default or WebSocket for relays parked behind HTTP infrastructure,
// and wraps each one with a serialized frame writer.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/gorilla/websocket"
)

// A Dialer opens one physical connection to a relay endpoint. Every data
// session gets its own connection; nothing is multiplexed.
type Dialer interface {
	DialContext(ctx context.Context, addr string) (net.Conn, error)
}

// TCP dials raw TCP connections, the default relay transport.
type TCP struct{}

// DialContext connects to addr ("host:port") over TCP.
func (TCP) DialContext(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

// DefaultWSPath is the relay endpoint path used when WS.Path is empty.
const DefaultWSPath = "/tunnel"

// WS dials WebSocket connections and adapts them to net.Conn, so the frame
// codec sees the same byte stream either way. The relay address "host:port"
// maps to ws://host:port<Path>.
type WS struct {
	Path string
}

// DialContext connects to addr over WebSocket.
func (w WS) DialContext(ctx context.Context, addr string) (net.Conn, error) {
	path := w.Path
	if path == "" {
		path = DefaultWSPath
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: path}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", u.String(), err)
	}
	return NewWSConn(conn), nil
}
