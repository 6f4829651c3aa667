package protocol

import "sync/atomic"

// SeqGen generates the advisory frame sequence numbers for one session.
// Values start at 1 and wrap through 0 at the uint16 modulus (65536).
// Sessions hand frames to a sender goroutine, so increments are atomic.
type SeqGen struct {
	val atomic.Uint32
}

// NewSeqGen creates a sequence generator whose first Next() returns 1.
func NewSeqGen() *SeqGen {
	return &SeqGen{}
}

// Next returns the next sequence number modulo 65536.
func (s *SeqGen) Next() uint16 {
	return uint16(s.val.Add(1))
}
