package transport_test

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/1ureka/rtun/internal/protocol"
	"github.com/1ureka/rtun/internal/transport"
)

// readAll reads exactly n bytes from c with a deadline.
func readAll(t *testing.T, c net.Conn, n int) []byte {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, n)
	total := 0
	for total < n {
		m, err := c.Read(buf[total:])
		if err != nil {
			t.Fatalf("read after %d bytes: %v", total, err)
		}
		total += m
	}
	return buf
}

// TestTransportSendFrame verifies that a queued frame comes out encoded on
// the underlying connection.
func TestTransportSendFrame(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := transport.New(ctx, client)
	defer tr.Close()

	frame := &protocol.Frame{
		Command: protocol.CmdConnectionBind,
		Seq:     5,
		Payload: []byte(`{"connection_id":"c1"}`),
	}
	tr.SendFrame(frame)

	encoded := protocol.Encode(frame)
	got := readAll(t, server, len(encoded))
	if !bytes.Equal(got, encoded) {
		t.Errorf("wire bytes mismatch:\n got %v\nwant %v", got, encoded)
	}
}

// TestTransportSendRawCopies verifies that SendRaw detaches from the
// caller's buffer before the write happens.
func TestTransportSendRawCopies(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := transport.New(ctx, client)
	defer tr.Close()

	buf := []byte{1, 2, 3, 4}
	tr.SendRaw(buf)
	buf[0] = 0xFF // caller reuses its read buffer immediately

	got := readAll(t, server, 4)
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("raw bytes mismatch: %v", got)
	}
}

// TestTransportCloseIdempotent verifies Close is safe to repeat and
// unblocks pending reads.
func TestTransportCloseIdempotent(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := transport.New(ctx, client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 16)
		tr.Read(buf) // blocks until Close
	}()

	tr.Close()
	tr.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not unblock a pending Read")
	}

	select {
	case <-tr.Done():
	default:
		t.Error("Done channel not closed after Close")
	}
}
