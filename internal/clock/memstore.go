package clock

import (
	"context"
	"sync/atomic"
)

// MemStore is an in-memory Store for tests. It provides the same
// atomicity guarantees as SQLStore within one process, but no
// durability across restarts.
type MemStore struct {
	nodeID string
	seq    atomic.Uint64
}

// NewMemStore creates an in-memory store with a fixed node identity.
func NewMemStore(nodeID string) *MemStore {
	return &MemStore{nodeID: nodeID}
}

// NewMemStoreAt creates an in-memory store starting at a specific clock
// value. Used to simulate resuming after a restart.
func NewMemStoreAt(nodeID string, start uint64) *MemStore {
	s := &MemStore{nodeID: nodeID}
	s.seq.Store(start)
	return s
}

func (s *MemStore) NodeID(_ context.Context) (string, error) {
	return s.nodeID, nil
}

func (s *MemStore) Increment(_ context.Context) (uint64, error) {
	return s.seq.Add(1), nil
}

func (s *MemStore) Current(_ context.Context) (uint64, error) {
	return s.seq.Load(), nil
}
