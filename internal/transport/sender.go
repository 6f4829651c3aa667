package transport

import (
	"context"
	"net"

	"github.com/1ureka/rtun/internal/util"
)

const sendBufferSize = 64 // outgoing buffer channel capacity

// sender is a goroutine-based writer that serializes all writes to a single
// relay connection, so session handlers and bridge pumps never interleave
// partial frames on the wire.
type sender struct {
	inbox chan []byte
}

// newSender creates a sender and starts the background loop. The loop exits
// when ctx is cancelled or a write fails.
func newSender(ctx context.Context, conn net.Conn) *sender {
	s := &sender{
		inbox: make(chan []byte, sendBufferSize),
	}
	go s.loop(ctx, conn)
	return s
}

// loop is the single-writer goroutine.
func (s *sender) loop(ctx context.Context, conn net.Conn) {
	for {
		select {
		case buf := <-s.inbox:
			if _, err := conn.Write(buf); err != nil {
				if ctx.Err() == nil {
					util.LogDebug("write to %s failed: %v", conn.RemoteAddr(), err)
				}
				return
			}
			util.Stats.AddSent(len(buf))

		case <-ctx.Done():
			return
		}
	}
}

// send enqueues a buffer for transmission. It blocks if the internal buffer
// is full and returns silently when ctx is already cancelled.
func (s *sender) send(ctx context.Context, buf []byte) {
	select {
	case s.inbox <- buf:
	case <-ctx.Done():
	}
}
