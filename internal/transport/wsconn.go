package transport

import (
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// Compile-time interface check.
var _ net.Conn = (*WSConn)(nil)

// WSConn adapts a websocket connection to net.Conn. Binary messages are
// exposed as a continuous byte stream; a message larger than the caller's
// read buffer is drained across multiple Read calls. Non-binary messages
// are skipped.
type WSConn struct {
	*websocket.Conn
	reader io.Reader // current binary message being drained, nil between messages
}

// NewWSConn wraps an established websocket connection.
func NewWSConn(c *websocket.Conn) *WSConn {
	return &WSConn{Conn: c}
}

// Read implements io.Reader over consecutive binary messages.
func (c *WSConn) Read(b []byte) (int, error) {
	for {
		if c.reader == nil {
			msgType, r, err := c.Conn.NextReader()
			if err != nil {
				return 0, err
			}
			if msgType != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(b)
		if err == io.EOF {
			c.reader = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

// Write sends b as a single binary message.
func (c *WSConn) Write(b []byte) (int, error) {
	if err := c.Conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// SetDeadline applies t to both read and write deadlines. websocket.Conn
// has the split setters but not the combined one net.Conn requires.
func (c *WSConn) SetDeadline(t time.Time) error {
	if err := c.Conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.Conn.SetWriteDeadline(t)
}
