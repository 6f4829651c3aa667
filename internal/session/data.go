package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/1ureka/rtun/internal/protocol"
	"github.com/1ureka/rtun/internal/transport"
	"github.com/1ureka/rtun/internal/util"
)

// State tracks a data session's lifecycle.
type State int32

const (
	StateConnecting State = iota // dialing the relay data endpoint
	StateSentBind                // bind request sent, awaiting the ack
	StateBound                   // bind acknowledged, bridge dialed
	StateRelaying                // opaque payload flowing
	StateClosed                  // terminal
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSentBind:
		return "sent-bind"
	case StateBound:
		return "bound"
	case StateRelaying:
		return "relaying"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Data owns one physical connection to the relay's data endpoint. It binds
// the connection to a relay-minted connection id, then relays all further
// bytes opaquely between the relay and its local service bridge. Created
// by the control session, one per ConnectionAttempt.
type Data struct {
	id        string // relay-minted connection id
	relayAddr string // relay data endpoint
	localAddr string // local service the bridge dials

	dialer transport.Dialer
	seq    *protocol.SeqGen
	reasm  *protocol.Reassembler
	handle *Handle

	// inert restores the legacy behavior of leaving the session open but
	// non-functional after a rejected bind.
	inert bool

	state atomic.Int32

	mu     sync.Mutex
	tr     *transport.Transport
	bridge *Bridge

	handlers  map[protocol.Command]handlerFunc
	onClose   func()
	closeOnce sync.Once
}

// newData creates an unstarted data session. onClose runs once when the
// session dies, however that happens; the control session uses it to drop
// its map entry.
func newData(id, relayAddr, localAddr string, dialer transport.Dialer, inert bool, onClose func()) *Data {
	d := &Data{
		id:        id,
		relayAddr: relayAddr,
		localAddr: localAddr,
		dialer:    dialer,
		seq:       protocol.NewSeqGen(),
		reasm:     &protocol.Reassembler{},
		inert:     inert,
		onClose:   onClose,
	}
	d.handle = newHandle(d)
	d.handlers = map[protocol.Command]handlerFunc{
		protocol.CmdConnectionBindAck: d.handleBindAck,
	}
	return d
}

// ID returns the relay-minted connection id this session is bound to.
func (d *Data) ID() string {
	return d.id
}

// State returns the session's current lifecycle state.
func (d *Data) State() State {
	return State(d.state.Load())
}

func (d *Data) setState(s State) {
	d.state.Store(int32(s))
}

// run is the session goroutine: dial, bind, then read until disconnect.
// Failures stay inside the session; the control session never hears about
// them beyond the onClose callback.
func (d *Data) run(ctx context.Context) {
	defer d.Close()

	conn, err := d.dialer.DialContext(ctx, d.relayAddr)
	if err != nil {
		util.LogWarning("data %s: relay dial %s: %v", d.id, d.relayAddr, err)
		return
	}

	d.mu.Lock()
	if d.State() == StateClosed {
		d.mu.Unlock()
		conn.Close()
		return
	}
	tr := transport.New(ctx, conn)
	d.tr = tr
	d.mu.Unlock()

	d.sendBind(tr)

	buf := make([]byte, readBufferSize)
	for {
		n, err := tr.Read(buf)
		if n > 0 {
			d.process(buf[:n])
		}
		if err != nil {
			if err != io.EOF && d.State() != StateClosed {
				util.LogDebug("data %s: read: %v", d.id, err)
			}
			return
		}
	}
}

// sendBind asks the relay to associate this connection with our id.
func (d *Data) sendBind(tr *transport.Transport) {
	payload, _ := json.Marshal(protocol.BindRequest{ConnectionID: d.id})
	tr.SendFrame(&protocol.Frame{
		Command: protocol.CmdConnectionBind,
		Seq:     d.seq.Next(),
		Payload: payload,
	})
	d.setState(StateSentBind)
	util.LogDebug("data %s: bind request sent", d.id)
}

// process handles inbound relay bytes. Before the bind ack this is frame
// decoding with resync; after it, a hard mode switch: every byte is opaque
// relay payload, even ones that happen to look like frames.
func (d *Data) process(p []byte) {
	if d.State() >= StateBound {
		d.forward(p)
		return
	}

	d.reasm.Feed(p)
	for {
		f := d.reasm.Next()
		if f == nil {
			return
		}
		d.dispatch(f)

		if d.State() >= StateBound {
			// Bytes already buffered behind the ack are relay payload,
			// not frames. Flush them before resuming direct forwarding.
			if rest := d.reasm.Drain(); len(rest) > 0 {
				d.forward(rest)
			}
			return
		}
	}
}

// dispatch routes one frame through the handler table. Unknown commands
// are ignored; handler errors are contained here so a single bad frame
// cannot take the session down.
func (d *Data) dispatch(f *protocol.Frame) {
	h, ok := d.handlers[f.Command]
	if !ok {
		return
	}
	if err := h(context.Background(), f); err != nil {
		util.LogWarning("data %s: %s: %v", d.id, f.Command, err)
	}
}

// handleBindAck processes the relay's answer to our bind request.
func (d *Data) handleBindAck(_ context.Context, f *protocol.Frame) error {
	if d.State() != StateSentBind {
		return nil // duplicate ack, nothing to do
	}

	var ack protocol.BindAck
	if err := json.Unmarshal(f.Payload, &ack); err != nil {
		return fmt.Errorf("bind ack: %w", err)
	}

	if ack.Code != protocol.StatusOK {
		if d.inert {
			// Legacy behavior: stay open but non-functional until the
			// relay or the control session closes us.
			return fmt.Errorf("bind rejected with code %d, session left inert", ack.Code)
		}
		d.Close()
		return fmt.Errorf("bind rejected with code %d", ack.Code)
	}

	d.setState(StateBound)
	util.LogInfo("data %s: bound, bridging to %s", d.id, d.localAddr)

	br, err := DialBridge(d.localAddr, d.handle)
	if err != nil {
		// Stay bound without a bridge: inbound relay bytes have nowhere
		// to go and are dropped in forward.
		util.LogWarning("data %s: %v", d.id, err)
		return nil
	}

	d.mu.Lock()
	d.bridge = br
	d.mu.Unlock()
	return nil
}

// forward hands post-bind relay bytes to the local bridge.
func (d *Data) forward(p []byte) {
	if d.State() == StateClosed {
		return
	}
	// Only a bound session may enter relaying; a concurrent Close wins the
	// race and the state word stays closed.
	d.state.CompareAndSwap(int32(StateBound), int32(StateRelaying))

	d.mu.Lock()
	br := d.bridge
	d.mu.Unlock()

	if br == nil {
		util.LogDebug("data %s: dropping %d relay bytes (no bridge)", d.id, len(p))
		return
	}
	br.Send(p)
}

// SendRelay queues bytes read from the local service for the relay peer.
// Called by the bridge's read goroutine.
func (d *Data) SendRelay(p []byte) {
	d.mu.Lock()
	tr := d.tr
	d.mu.Unlock()
	if tr != nil {
		tr.SendRaw(p)
	}
}

// Close tears the session down: bridge, transport, the weak back-reference,
// and the owning control session's map entry. Safe to call from any
// goroutine and harmless to call more than once.
func (d *Data) Close() error {
	d.closeOnce.Do(func() {
		d.setState(StateClosed)
		d.handle.clear()

		d.mu.Lock()
		br := d.bridge
		tr := d.tr
		d.mu.Unlock()

		if br != nil {
			br.Close()
		}
		if tr != nil {
			tr.Close()
		}
		if d.onClose != nil {
			d.onClose()
		}
		util.LogDebug("data %s: closed", d.id)
	})
	return nil
}
