package session

import (
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/1ureka/rtun/internal/util"
)

const bridgeReadSize = 16 * 1024 // local service read buffer

// Bridge is the local half of a data session: one TCP connection to the
// service being exposed through the tunnel. It reaches back to its data
// session only through a weak Handle, so a torn-down session is simply
// treated as closed.
type Bridge struct {
	conn    net.Conn
	session *Handle

	closeOnce sync.Once
}

// DialBridge connects to the local service at addr and starts the
// local-to-relay read loop.
func DialBridge(addr string, session *Handle) (*Bridge, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("local service %s: %w", addr, err)
	}

	b := &Bridge{
		conn:    conn,
		session: session,
	}
	go b.readLoop()
	return b, nil
}

// Send writes post-bind relay bytes to the local service. A write failure
// tears the bridge (and with it the data session) down.
func (b *Bridge) Send(p []byte) {
	if _, err := b.conn.Write(p); err != nil {
		util.LogDebug("bridge: local write: %v", err)
		b.Close()
	}
}

// readLoop forwards every byte from the local service to the relay via the
// data session's relay-send. Local disconnect closes the session too.
func (b *Bridge) readLoop() {
	defer b.Close()

	buf := make([]byte, bridgeReadSize)
	for {
		n, err := b.conn.Read(buf)
		if n > 0 {
			if s := b.session.Resolve(); s != nil {
				s.SendRelay(buf[:n])
			}
		}
		if err != nil {
			if err != io.EOF {
				util.LogDebug("bridge: local read: %v", err)
			}
			return
		}
	}
}

// Close shuts the local connection and the owning data session down.
// Idempotent; safe to call from any goroutine.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.conn.Close()
		if s := b.session.Resolve(); s != nil {
			s.Close()
		}
	})
}
