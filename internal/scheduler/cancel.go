package scheduler

import (
	"log/slog"
	"sync"
)

// CancellationToken is a cheap-to-clone handle over a single cancellation
// flag. Multiple copies observe the same trip; Cancel is idempotent.
type CancellationToken struct {
	state *cancelState
}

type cancelState struct {
	mu        sync.Mutex
	cancelled bool
}

// NewCancellationToken returns a fresh, untripped token.
func NewCancellationToken() CancellationToken {
	return CancellationToken{state: &cancelState{}}
}

// Cancel trips the token. Safe to call more than once; later calls are no-ops.
func (t CancellationToken) Cancel() {
	t.state.mu.Lock()
	t.state.cancelled = true
	t.state.mu.Unlock()
}

// IsCancelled reports whether the token has been tripped.
func (t CancellationToken) IsCancelled() bool {
	t.state.mu.Lock()
	defer t.state.mu.Unlock()
	return t.state.cancelled
}

// CancellationRegistry maps a SessionID to the token for its in-flight
// request, if any. An entry exists iff a request for that session is either
// queued or executing (spec.md §3 invariants).
type CancellationRegistry struct {
	mu     sync.Mutex
	tokens map[SessionID]CancellationToken
}

// NewCancellationRegistry builds an empty registry.
func NewCancellationRegistry() *CancellationRegistry {
	return &CancellationRegistry{tokens: make(map[SessionID]CancellationToken)}
}

// Register creates a token for id, inserts it, and returns a clone.
// Re-registering a session that already has an entry overwrites it — this
// core treats concurrent resubmission for one session as a programmer error
// in the layer above and does not reject it (spec.md §4.3); the overwritten
// token is simply orphaned (its holder can still trip it, but nothing reads
// it from the registry anymore).
func (r *CancellationRegistry) Register(id SessionID) CancellationToken {
	tok := NewCancellationToken()
	r.mu.Lock()
	_, existed := r.tokens[id]
	r.tokens[id] = tok
	r.mu.Unlock()
	if existed {
		slog.Warn("scheduler: overwriting cancellation token for session with one already in flight", "session", id)
	}
	return tok
}

// Remove drops the entry for id. No-op if absent.
func (r *CancellationRegistry) Remove(id SessionID) {
	r.mu.Lock()
	delete(r.tokens, id)
	r.mu.Unlock()
}

// Lookup returns the current token for id, if any, without removing it.
func (r *CancellationRegistry) Lookup(id SessionID) (CancellationToken, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.tokens[id]
	return tok, ok
}

// Cancel removes the entry for id (if present) and trips its token.
// Returns whether an entry existed. Never blocks waiting for a worker to
// observe the trip.
func (r *CancellationRegistry) Cancel(id SessionID) bool {
	r.mu.Lock()
	tok, ok := r.tokens[id]
	if ok {
		delete(r.tokens, id)
	}
	r.mu.Unlock()
	if ok {
		tok.Cancel()
	}
	return ok
}
