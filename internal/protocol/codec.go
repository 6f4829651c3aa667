package protocol

import (
	"encoding/binary"
)

// Encode serializes a frame into its wire representation. The payload
// length field always reflects the actual payload byte count; payloads
// larger than MaxPayloadSize must be split by the caller before encoding.
func Encode(f *Frame) []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	buf[0] = SyncByte
	buf[1] = byte(f.Command)
	binary.BigEndian.PutUint16(buf[2:4], f.Seq)
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(f.Payload)))
	copy(buf[HeaderSize:], f.Payload)
	return buf
}

// Decode scans buf for one complete frame. It returns the frame (nil when
// no complete frame is buffered yet) and the number of leading bytes the
// caller must discard: any non-sentinel garbage skipped during resync,
// plus the full frame size when a frame was produced.
//
// An incomplete frame is not an error: the caller feeds more bytes and
// calls Decode again. The returned payload is copied, never aliased
// into buf.
func Decode(buf []byte) (*Frame, int) {
	skipped := 0
	for len(buf) > 0 && buf[0] != SyncByte {
		buf = buf[1:]
		skipped++
	}

	if len(buf) < HeaderSize {
		return nil, skipped
	}

	plen := int(binary.BigEndian.Uint16(buf[4:6]))
	if len(buf) < HeaderSize+plen {
		return nil, skipped
	}

	f := &Frame{
		Command: Command(buf[1]),
		Seq:     binary.BigEndian.Uint16(buf[2:4]),
	}
	if plen > 0 {
		f.Payload = make([]byte, plen)
		copy(f.Payload, buf[HeaderSize:HeaderSize+plen])
	}
	return f, skipped + HeaderSize + plen
}

// Reassembler accumulates partial socket reads until complete frames are
// available. It is owned by a single session goroutine and needs no locking.
type Reassembler struct {
	buf []byte
}

// Feed appends raw bytes read from the transport to the pending buffer.
func (r *Reassembler) Feed(p []byte) {
	r.buf = append(r.buf, p...)
}

// Next consumes and returns the next complete frame, or nil when the
// buffered bytes do not yet form one. Garbage bytes ahead of the next
// sentinel are discarded either way.
func (r *Reassembler) Next() *Frame {
	f, n := Decode(r.buf)
	r.buf = r.buf[n:]
	return f
}

// Drain returns whatever is left in the buffer and resets it. A data
// session calls this at the moment it switches from frame decoding to
// opaque relaying, so bytes that arrived behind the bind ack are flushed
// to the bridge instead of being misread as frames.
func (r *Reassembler) Drain() []byte {
	b := r.buf
	r.buf = nil
	return b
}

// Len reports the number of buffered bytes awaiting a complete frame.
func (r *Reassembler) Len() int {
	return len(r.buf)
}
