package merkletree

import (
	"context"
	"sync"

	"github.com/mateodaza/galeon-sub004/internal/field"
)

// LeafStore persists a tree's leaves in insertion order. A LeanIMT is
// fully reconstructible from its ordered leaf list alone (spec §4.8's
// "minimal persisted form is the ordered list of labels"), so unlike the
// teacher's merkle.go — which persists every intermediate node through a
// per-node TreeStore (GetNode/SetNode/GetRoot/SetRoot/GetSize/SetSize) —
// this store only needs to durably record leaves; internal nodes are
// always recomputed from them at load time.
type LeafStore interface {
	AppendLeaf(ctx context.Context, leaf field.F) error
	Leaves(ctx context.Context) ([]field.F, error)
	Count(ctx context.Context) (uint64, error)
}

// InMemoryLeafStore is a LeafStore backed by a slice, used for the
// per-session state tree (rebuilt from the event feed every session, per
// spec §5's "per-user, read-only after construction" note) and in tests.
// It is the only LeafStore in this module; the ASP service also builds its
// tree on an InMemoryLeafStore and persists its labels separately through
// asp.Store.
type InMemoryLeafStore struct {
	mu     sync.RWMutex
	leaves []field.F
}

// NewInMemoryLeafStore returns an empty in-memory leaf store.
func NewInMemoryLeafStore() *InMemoryLeafStore {
	return &InMemoryLeafStore{}
}

func (s *InMemoryLeafStore) AppendLeaf(_ context.Context, leaf field.F) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves = append(s.leaves, leaf)
	return nil
}

func (s *InMemoryLeafStore) Leaves(_ context.Context) ([]field.F, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]field.F, len(s.leaves))
	copy(out, s.leaves)
	return out, nil
}

func (s *InMemoryLeafStore) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.leaves)), nil
}
