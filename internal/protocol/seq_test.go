package protocol_test

import (
	"testing"

	"github.com/1ureka/rtun/internal/protocol"
)

// TestSeqGenStartsAtOne verifies the first generated value.
func TestSeqGenStartsAtOne(t *testing.T) {
	seq := protocol.NewSeqGen()
	if got := seq.Next(); got != 1 {
		t.Fatalf("first sequence number: got %d, want 1", got)
	}
	if got := seq.Next(); got != 2 {
		t.Fatalf("second sequence number: got %d, want 2", got)
	}
}

// TestSeqGenWrap drives the generator through a full cycle and checks that
// it wraps through 0 back to 1 at the 65536 modulus.
func TestSeqGenWrap(t *testing.T) {
	seq := protocol.NewSeqGen()

	var last uint16
	for i := 0; i < 65535; i++ {
		last = seq.Next()
	}
	if last != 65535 {
		t.Fatalf("after 65535 values: got %d, want 65535", last)
	}

	if got := seq.Next(); got != 0 {
		t.Fatalf("wrap value: got %d, want 0", got)
	}
	if got := seq.Next(); got != 1 {
		t.Fatalf("value after wrap: got %d, want 1", got)
	}
}
