package transport

import (
	"context"
	"net"
	"sync"

	"github.com/1ureka/rtun/internal/protocol"
	"github.com/1ureka/rtun/internal/util"
)

// Transport wraps one physical relay connection with a serialized writer
// and a context-driven lifecycle. Reads stay with the owning session's
// goroutine; all writes funnel through the internal sender goroutine.
type Transport struct {
	conn   net.Conn
	sender *sender

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New wraps an established connection. The transport lives until Close is
// called, the parent context is cancelled, or the connection fails.
func New(parent context.Context, conn net.Conn) *Transport {
	ctx, cancel := context.WithCancel(parent)
	t := &Transport{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}
	t.sender = newSender(ctx, conn)
	return t
}

// SendFrame encodes f and queues it for transmission.
func (t *Transport) SendFrame(f *protocol.Frame) {
	t.sender.send(t.ctx, protocol.Encode(f))
}

// SendRaw queues opaque relay bytes for transmission. The slice is copied
// before enqueueing, so callers may reuse their read buffer.
func (t *Transport) SendRaw(p []byte) {
	buf := make([]byte, len(p))
	copy(buf, p)
	t.sender.send(t.ctx, buf)
}

// Read reads from the underlying connection. Only the session goroutine
// that owns the transport may call it.
func (t *Transport) Read(p []byte) (int, error) {
	n, err := t.conn.Read(p)
	if n > 0 {
		util.Stats.AddRecv(n)
	}
	return n, err
}

// Done returns a channel that is closed when the transport is shut down.
func (t *Transport) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Close shuts the connection down. Safe to call from any goroutine and
// harmless to call more than once; the first call also unblocks any Read
// pending on the connection.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		err = t.conn.Close()
	})
	return err
}

// RemoteAddr reports the relay endpoint this transport is connected to.
func (t *Transport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}
