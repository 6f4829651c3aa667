package session

import (
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/1ureka/rtun/internal/config"
	"github.com/1ureka/rtun/internal/protocol"
)

// fakeRelay accepts connections on loopback and lets tests speak the
// frame protocol by hand.
type fakeRelay struct {
	ln    net.Listener
	conns chan net.Conn
}

func startFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("fake relay: listen: %v", err)
	}

	fr := &fakeRelay{ln: ln, conns: make(chan net.Conn, 4)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			fr.conns <- conn
		}
	}()

	t.Cleanup(func() { ln.Close() })
	return fr
}

func (f *fakeRelay) addr() string {
	return f.ln.Addr().String()
}

// accept waits for the next inbound connection.
func (f *fakeRelay) accept(t *testing.T, timeout time.Duration) net.Conn {
	t.Helper()
	select {
	case conn := <-f.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(timeout):
		t.Fatal("fake relay: no connection arrived")
		return nil
	}
}

// splitAddr breaks "host:port" into the config's host/int-port pair.
func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split %q: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("port %q: %v", portStr, err)
	}
	return host, port
}

// testConfig builds a config pointed at the fake relay with short timings.
func testConfig(t *testing.T, relayAddr string, localPort int) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.RelayHost, cfg.RelayPort = splitAddr(t, relayAddr)
	cfg.LocalPort = localPort
	cfg.ConnectTimeout = 2 * time.Second
	cfg.RetryDelay = 50 * time.Millisecond
	return cfg
}

// readFrame blocks until one complete frame arrives on conn.
func readFrame(t *testing.T, conn net.Conn) *protocol.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var reasm protocol.Reassembler
	buf := make([]byte, 1024)
	for {
		if f := reasm.Next(); f != nil {
			return f
		}
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		reasm.Feed(buf[:n])
	}
}

// writeFrame marshals v as the payload of cmd and writes the frame.
func writeFrame(t *testing.T, conn net.Conn, cmd protocol.Command, seq uint16, v interface{}) {
	t.Helper()
	var payload []byte
	if v != nil {
		var err error
		payload, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
	}
	if _, err := conn.Write(protocol.Encode(&protocol.Frame{Command: cmd, Seq: seq, Payload: payload})); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// waitFor polls cond every 10ms until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

// startLocalEcho runs a TCP echo service standing in for the tunneled
// local service.
func startLocalEcho(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("echo: listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if n > 0 {
						if _, werr := c.Write(buf[:n]); werr != nil {
							return
						}
					}
					if err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

// getFreeAddr finds a free TCP port on loopback and returns its address.
func getFreeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("getFreeAddr: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}
