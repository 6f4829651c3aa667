// Package protocol defines the relay wire format: sentinel-delimited,
// length-prefixed binary frames carrying JSON control payloads. All
// multi-byte header fields are big-endian.
package protocol

// SyncByte is the fixed sentinel that starts every frame on the wire.
// A stream position whose leading byte is not the sentinel is garbage
// and gets discarded one byte at a time until the decoder resyncs.
const SyncByte byte = 0xAA

// Command identifies the protocol operation carried by a frame.
type Command uint8

// Protocol commands. The enumeration is closed: frames carrying values
// outside this set are ignored without terminating the session.
const (
	CmdAllocation        Command = 0x01 // client -> relay, request an identity
	CmdAllocationAck     Command = 0x02 // relay -> client, allocation result
	CmdConnectionBind    Command = 0x03 // client -> relay, bind a data channel
	CmdConnectionBindAck Command = 0x04 // relay -> client, bind result
	CmdConnectionAttempt Command = 0x05 // relay -> client, remote peer wants in
)

// String returns the command name for logging.
func (c Command) String() string {
	switch c {
	case CmdAllocation:
		return "Allocation"
	case CmdAllocationAck:
		return "AllocationAck"
	case CmdConnectionBind:
		return "ConnectionBind"
	case CmdConnectionBindAck:
		return "ConnectionBindAck"
	case CmdConnectionAttempt:
		return "ConnectionAttempt"
	}
	return "Unknown"
}

// HeaderSize is the fixed header size: Sync(1) + Command(1) + Seq(2) + PayloadLen(2).
const HeaderSize = 6

// MaxPayloadSize is the largest payload a single frame can carry,
// bounded by the 2-byte length field.
const MaxPayloadSize = 0xFFFF

// Frame represents one protocol message unit exchanged with the relay.
// The sync byte and payload length are wire-level concerns handled by
// Encode/Decode and are not part of the in-memory representation.
type Frame struct {
	Command Command
	Seq     uint16 // advisory sender-side counter, no ack semantics
	Payload []byte // JSON for control commands, opaque once a data session is bound
}
