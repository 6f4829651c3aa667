package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/1ureka/rtun/internal/config"
	"github.com/1ureka/rtun/internal/protocol"
	"github.com/1ureka/rtun/internal/transport"
	"github.com/1ureka/rtun/internal/util"
)

const readBufferSize = 1024 // socket read size for control and data sessions

// handlerFunc processes one decoded frame. Errors are contained by the
// dispatcher; returning one drops the frame, never the session.
type handlerFunc func(context.Context, *protocol.Frame) error

// Control is the client's long-lived session on the relay's control
// endpoint. It allocates an identity with the relay, then turns
// ConnectionAttempt notifications into independent data sessions.
// A control session connects at most once; on failure it is discarded
// and the reconnector builds a fresh one.
type Control struct {
	cfg    *config.Config
	dialer transport.Dialer

	seq   *protocol.SeqGen
	reasm *protocol.Reassembler

	allocated atomic.Bool
	closed    atomic.Bool

	mu        sync.Mutex
	tr        *transport.Transport
	relayAddr string // rendezvous reported by the allocation ack, diagnostics only
	sessions  map[string]*Data

	handlers map[protocol.Command]handlerFunc

	onDisconnect func(*Control)
	closeOnce    sync.Once
}

// NewControl creates an unconnected control session.
func NewControl(cfg *config.Config, dialer transport.Dialer) *Control {
	c := &Control{
		cfg:      cfg,
		dialer:   dialer,
		seq:      protocol.NewSeqGen(),
		reasm:    &protocol.Reassembler{},
		sessions: make(map[string]*Data),
	}
	c.handlers = map[protocol.Command]handlerFunc{
		protocol.CmdAllocationAck:     c.handleAllocationAck,
		protocol.CmdConnectionAttempt: c.handleConnectionAttempt,
	}
	return c
}

// OnDisconnect registers a callback fired exactly once when an established
// session dies, however that happens. Sessions that never reached the
// relay do not fire it. Must be called before Connect.
func (c *Control) OnDisconnect(fn func(*Control)) {
	c.onDisconnect = fn
}

// Connect dials the relay control endpoint within the configured timeout,
// sends the allocation request, and starts the read loop.
func (c *Control) Connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.dialer.DialContext(dialCtx, c.cfg.ControlAddr())
	if err != nil {
		return fmt.Errorf("relay %s: %w", c.cfg.ControlAddr(), err)
	}

	tr := transport.New(ctx, conn)
	c.mu.Lock()
	c.tr = tr
	c.mu.Unlock()

	c.sendAllocation(tr)
	go c.readLoop(ctx, tr)
	return nil
}

// sendAllocation advertises the client to the relay right after connecting.
func (c *Control) sendAllocation(tr *transport.Transport) {
	payload, _ := json.Marshal(protocol.AllocationRequest{Software: c.cfg.Software})
	tr.SendFrame(&protocol.Frame{
		Command: protocol.CmdAllocation,
		Seq:     c.seq.Next(),
		Payload: payload,
	})
}

// readLoop decodes inbound frames until the transport dies, then tears the
// session down.
func (c *Control) readLoop(ctx context.Context, tr *transport.Transport) {
	defer c.Close()

	buf := make([]byte, readBufferSize)
	for {
		n, err := tr.Read(buf)
		if n > 0 {
			c.reasm.Feed(buf[:n])
			for f := c.reasm.Next(); f != nil; f = c.reasm.Next() {
				c.dispatch(ctx, f)
				// A fatal ack closes the session mid-drain; frames queued
				// behind it must not spawn anything.
				if c.closed.Load() {
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				util.LogWarning("control: read: %v", err)
			}
			return
		}
	}
}

// dispatch routes one frame through the handler table. Unknown commands
// are ignored; handler errors are contained here so a single bad frame or
// notification cannot take the session down.
func (c *Control) dispatch(ctx context.Context, f *protocol.Frame) {
	h, ok := c.handlers[f.Command]
	if !ok {
		return
	}
	if err := h(ctx, f); err != nil {
		util.LogWarning("control: %s: %v", f.Command, err)
	}
}

// handleAllocationAck records the allocation result. A failure code is
// fatal for this session: close and let the reconnector start over.
func (c *Control) handleAllocationAck(_ context.Context, f *protocol.Frame) error {
	var ack protocol.AllocationAck
	if err := json.Unmarshal(f.Payload, &ack); err != nil {
		return fmt.Errorf("allocation ack: %w", err)
	}

	if ack.Code != protocol.StatusOK {
		util.LogError("control: allocation rejected with code %d", ack.Code)
		c.Close()
		return nil
	}

	c.mu.Lock()
	c.relayAddr = ack.RelayAddress
	c.mu.Unlock()
	c.allocated.Store(true)

	util.LogInfo("allocated on relay, rendezvous at %s", ack.RelayAddress)
	return nil
}

// handleConnectionAttempt spawns a data session for a remote peer that
// wants to reach the tunneled service. A malformed notification is dropped
// here without touching the session.
func (c *Control) handleConnectionAttempt(ctx context.Context, f *protocol.Frame) error {
	var att protocol.ConnectionAttempt
	if err := json.Unmarshal(f.Payload, &att); err != nil {
		return fmt.Errorf("connection attempt: %w", err)
	}
	if att.ConnectionID == "" || att.DataAddress == "" {
		return fmt.Errorf("connection attempt missing connection_id or data_address")
	}
	if _, _, err := net.SplitHostPort(att.DataAddress); err != nil {
		return fmt.Errorf("connection attempt data_address %q: %w", att.DataAddress, err)
	}

	util.LogInfo("connection attempt %s via %s", att.ConnectionID, att.DataAddress)

	id := att.ConnectionID
	d := newData(id, att.DataAddress, c.cfg.LocalAddr(), c.dialer, c.cfg.InertOnBindFailure, func() {
		c.removeSession(id)
		util.Stats.RemoveSession()
	})

	c.mu.Lock()
	c.sessions[id] = d
	c.mu.Unlock()
	util.Stats.AddSession()

	// The session runs on its own; its failures never propagate back here.
	go d.run(ctx)
	return nil
}

// Allocated reports whether the relay has acknowledged our allocation.
func (c *Control) Allocated() bool {
	return c.allocated.Load()
}

// RelayAddr returns the rendezvous address from the allocation ack.
func (c *Control) RelayAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.relayAddr
}

// Session looks up a live data session by connection id.
func (c *Control) Session(id string) (*Data, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.sessions[id]
	return d, ok
}

// SessionCount reports the number of live data sessions.
func (c *Control) SessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func (c *Control) removeSession(id string) {
	c.mu.Lock()
	delete(c.sessions, id)
	c.mu.Unlock()
}

// Close shuts down the control session and every data session it spawned,
// then fires the disconnect callback. The callback fires at most once, and
// only for sessions that actually reached the relay.
func (c *Control) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.mu.Lock()
		tr := c.tr
		sessions := make([]*Data, 0, len(c.sessions))
		for _, d := range c.sessions {
			sessions = append(sessions, d)
		}
		c.mu.Unlock()

		if tr != nil {
			tr.Close()
		}
		for _, d := range sessions {
			d.Close()
		}
		if tr != nil && c.onDisconnect != nil {
			c.onDisconnect(c)
		}
	})
	return nil
}
