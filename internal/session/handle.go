// Package session implements the relay client sessions: the long-lived
// control session, per-connection data sessions with their local service
// bridges, and the reconnect supervisor.
package session

import "sync"

// Handle is a non-owning reference to a data session. The bridge holds one
// instead of a *Data so teardown can sever the link: once the session
// clears itself on close, Resolve reports it as gone and the bridge treats
// it as already closed. The handle never keeps a session alive.
type Handle struct {
	mu sync.Mutex
	s  *Data
}

func newHandle(s *Data) *Handle {
	return &Handle{s: s}
}

// Resolve returns the session, or nil if it has been torn down.
func (h *Handle) Resolve() *Data {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.s
}

// clear severs the back-reference. Called by the session on close.
func (h *Handle) clear() {
	h.mu.Lock()
	h.s = nil
	h.mu.Unlock()
}
