package clock

import (
	"context"
	"fmt"
	"sync"
)

// Store persists Lamport clock state for one node.
//
// The clock value must survive process restarts: an event stamped with a
// clock value that could repeat after a crash would break causal
// ordering, so Increment must be an atomic read-modify-persist.
type Store interface {
	// NodeID returns the stable node identity, creating it on first use.
	NodeID(ctx context.Context) (string, error)

	// Increment atomically advances the persisted clock and returns the
	// new value. A value returned by Increment is never returned again,
	// even across process restarts.
	Increment(ctx context.Context) (uint64, error)

	// Current returns the last persisted clock value without advancing it.
	Current(ctx context.Context) (uint64, error)
}

// Authority is the per-node monotonic logical clock used to causally
// order events from one machine.
//
// All events are stamped with a strictly increasing lamport value from
// this clock. Ticks are serialized relative to persistence: concurrent
// emits from the same process cannot observe the same value, and the
// backing Store guarantees no repeats across restarts.
//
// Single-writer per node is assumed - no cross-process coordination
// beyond the store's own atomicity is required.
type Authority struct {
	mu     sync.Mutex
	store  Store
	nodeID string
}

// New creates a clock authority backed by the given store, resolving
// the node identity eagerly so emit paths never block on it.
func New(ctx context.Context, store Store) (*Authority, error) {
	nodeID, err := store.NodeID(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve node id: %w", err)
	}
	return &Authority{store: store, nodeID: nodeID}, nil
}

// NodeID returns the stable per-machine identity (12 hex chars).
func (a *Authority) NodeID() string {
	return a.nodeID
}

// Tick returns the next lamport clock value.
//
// The value is persisted before it is returned; a persistence failure
// fails the tick, and the caller must fail the emit (the event must not
// be stamped with a value that cannot be trusted to never repeat).
func (a *Authority) Tick(ctx context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	v, err := a.store.Increment(ctx)
	if err != nil {
		return 0, fmt.Errorf("clock tick: %w", err)
	}
	return v, nil
}

// Current returns the current clock value without advancing it.
// Useful for status reporting.
func (a *Authority) Current(ctx context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.Current(ctx)
}
