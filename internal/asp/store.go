// Package asp implements the Association Set Provider service of spec
// §4.8: an append-only Merkle tree of approved deposit labels, durably
// persisted, that answers label-inclusion proofs for withdrawals and
// publishes its root on-chain when it grows.
package asp

import (
	"context"
	"sync"

	"github.com/mateodaza/galeon-sub004/internal/field"
)

// LabelRecord is one persisted ASP entry: an approved label plus the
// chain position it was observed at, the minimum persisted form spec §6
// calls for (the tree itself is always reconstructible from this log).
type LabelRecord struct {
	Label       field.F
	BlockNumber uint64
	LogIndex    uint32
}

// Store is the ASP's durable state: the ordered label log plus the last
// root successfully published on-chain. Implementations must serialize
// AppendLabel calls — the ASP service is single-writer (spec §5).
type Store interface {
	AppendLabel(ctx context.Context, rec LabelRecord) error
	Labels(ctx context.Context) ([]LabelRecord, error)

	// Reset discards every persisted label and the last published root,
	// used by Service.RebuildFromDeposits to start a full rescan clean.
	Reset(ctx context.Context) error

	LastPublishedRoot(ctx context.Context) (root field.F, ok bool, err error)
	SetLastPublishedRoot(ctx context.Context, root field.F) error
}

// InMemoryStore is a Store backed by a slice, used in tests and for
// local/dev runs without Postgres configured.
type InMemoryStore struct {
	mu                sync.RWMutex
	records           []LabelRecord
	lastPublishedRoot field.F
	hasPublishedRoot  bool
}

// NewInMemoryStore returns an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) AppendLabel(_ context.Context, rec LabelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *InMemoryStore) Labels(_ context.Context) ([]LabelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LabelRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *InMemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.lastPublishedRoot = field.Zero()
	s.hasPublishedRoot = false
	return nil
}

func (s *InMemoryStore) LastPublishedRoot(_ context.Context) (field.F, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPublishedRoot, s.hasPublishedRoot, nil
}

func (s *InMemoryStore) SetLastPublishedRoot(_ context.Context, root field.F) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPublishedRoot = root
	s.hasPublishedRoot = true
	return nil
}
