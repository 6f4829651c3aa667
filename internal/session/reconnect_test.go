package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/1ureka/rtun/internal/protocol"
	"github.com/1ureka/rtun/internal/transport"
)

// TestReconnectorRetriesUntilRelayAppears starts the supervisor against a
// dead address, brings the relay up afterwards, and expects a control
// connection with an allocation request.
func TestReconnectorRetriesUntilRelayAppears(t *testing.T) {
	addr := getFreeAddr(t)
	cfg := testConfig(t, addr, 22)
	cfg.ConnectTimeout = 500 * time.Millisecond
	cfg.RetryDelay = 30 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewReconnector(cfg, transport.TCP{})
	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(ctx) }()

	// Let a couple of attempts fail before the relay shows up.
	time.Sleep(100 * time.Millisecond)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("late relay listen: %v", err)
	}
	defer ln.Close()

	ln.(*net.TCPListener).SetDeadline(time.Now().Add(3 * time.Second))
	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("reconnector never dialed the relay: %v", err)
	}
	defer conn.Close()

	if f := readFrame(t, conn); f.Command != protocol.CmdAllocation {
		t.Errorf("first frame: got %v, want Allocation", f.Command)
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

// TestReconnectorRedialsAfterDisconnect verifies the steady-state loop:
// once an established session dies, a fresh one shows up after the fixed
// delay.
func TestReconnectorRedialsAfterDisconnect(t *testing.T) {
	relay := startFakeRelay(t)
	cfg := testConfig(t, relay.addr(), 22)
	cfg.RetryDelay = 30 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewReconnector(cfg, transport.TCP{})
	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(ctx) }()

	conn1 := relay.accept(t, 2*time.Second)
	if f := readFrame(t, conn1); f.Command != protocol.CmdAllocation {
		t.Fatalf("first session frame: got %v, want Allocation", f.Command)
	}
	writeFrame(t, conn1, protocol.CmdAllocationAck, 1, protocol.AllocationAck{Code: protocol.StatusOK})

	// Kill the established session; a replacement must dial in.
	conn1.Close()

	conn2 := relay.accept(t, 2*time.Second)
	if f := readFrame(t, conn2); f.Command != protocol.CmdAllocation {
		t.Errorf("second session frame: got %v, want Allocation", f.Command)
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
