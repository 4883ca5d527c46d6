package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/voxlane/janusctl/internal/protocol"
)

// Outcome is the terminal result of one correlated exchange. Payload holds
// the unwrapped plugin payload for event envelopes, or the ack-level data
// object for other correlated replies.
type Outcome struct {
	Payload  map[string]any
	Envelope *protocol.Envelope
	Err      error
}

// NewTransaction allocates a globally unique transaction id.
func NewTransaction() string {
	return uuid.NewString()
}

// Registry maps in-flight transaction ids to single-shot completions.
// A completion fires exactly once; fulfilling an unknown or already-fulfilled
// transaction is a no-op.
type Registry struct {
	mu      sync.Mutex
	waiters map[string]chan Outcome
}

func NewRegistry() *Registry {
	return &Registry{
		waiters: make(map[string]chan Outcome),
	}
}

// Register subscribes to the completion of txn. The returned channel receives
// at most one Outcome. Callers register before dispatching the request so the
// completion cannot race past them on the poll channel.
func (r *Registry) Register(txn string) <-chan Outcome {
	ch := make(chan Outcome, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiters[txn] = ch
	return ch
}

// Fulfill resolves the waiter for txn, removing it. Returns false when no
// waiter exists, which includes the second fulfillment of the same txn.
func (r *Registry) Fulfill(txn string, out Outcome) bool {
	r.mu.Lock()
	ch, ok := r.waiters[txn]
	if ok {
		delete(r.waiters, txn)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	ch <- out
	return true
}

// Drop abandons the waiter for txn without resolving it.
func (r *Registry) Drop(txn string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.waiters, txn)
}

// FailAll resolves every pending waiter with err and clears the registry.
// The session calls this on disconnect so abandoned waits do not leak.
func (r *Registry) FailAll(err error) {
	r.mu.Lock()
	pending := r.waiters
	r.waiters = make(map[string]chan Outcome)
	r.mu.Unlock()
	for _, ch := range pending {
		ch <- Outcome{Err: err}
	}
}

// Pending reports the number of in-flight waiters.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
