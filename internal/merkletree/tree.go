// Package merkletree implements the LeanIMT: an append-only, Poseidon-
// hashed binary Merkle tree with dynamic depth, per spec §4.4. It
// generalizes the structural shape of the teacher's internal/zkp/merkle.go
// CommitmentTree (depth/size/root fields, a pluggable store, a
// mutex-guarded API) but replaces its fixed-depth sha256 full-tree
// construction — which pads every odd level with a self-duplicate — with
// the LeanIMT convention: a lone node at an odd level is lifted unchanged
// to the next level, never paired with itself. The two conventions
// produce different roots for the same leaf sequence, so this is a
// replacement, not a generalization, of the teacher's algorithm.
package merkletree

import (
	"context"
	"sync"

	"github.com/mateodaza/galeon-sub004/internal/field"
	"github.com/mateodaza/galeon-sub004/internal/poolerr"
)

// MaxTreeDepth is the fixed width every serialized proof is padded to,
// for compatibility with a circuit that expects a constant-size sibling
// array regardless of the tree's actual current depth.
const MaxTreeDepth = 32

// Tree is a LeanIMT over field elements. Safe for concurrent use; all
// mutation goes through Insert, which is serialized by mu.
type Tree struct {
	mu      sync.RWMutex
	nodes   [][]field.F // nodes[0] are leaves; nodes[i] is level i
	indexOf map[field.F]uint64
	depth   uint32
	store   LeafStore
}

// New returns an empty tree backed by store.
func New(store LeafStore) *Tree {
	return &Tree{
		nodes:   [][]field.F{{}},
		indexOf: make(map[field.F]uint64),
		store:   store,
	}
}

// Load rebuilds the tree in memory by replaying every leaf recorded in
// the store, in order. Used at process start for both the per-session
// state tree (replayed from recovered events) and the ASP's durable tree.
func (t *Tree) Load(ctx context.Context) error {
	leaves, err := t.store.Leaves(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes = [][]field.F{{}}
	t.indexOf = make(map[field.F]uint64, len(leaves))
	t.depth = 0

	for _, leaf := range leaves {
		if err := t.insertLocked(leaf); err != nil {
			return err
		}
	}
	return nil
}

// Insert appends leaf to the store and tree, recomputing only the
// affected path, and returns the new root.
func (t *Tree) Insert(ctx context.Context, leaf field.F) (field.F, error) {
	if err := t.store.AppendLeaf(ctx, leaf); err != nil {
		return field.Zero(), err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.insertLocked(leaf); err != nil {
		return field.Zero(), err
	}
	return t.rootLocked(), nil
}

// insertLocked performs the in-memory half of Insert; callers must hold
// t.mu and have already durably recorded leaf.
func (t *Tree) insertLocked(leaf field.F) error {
	idx := uint64(len(t.nodes[0]))
	t.nodes[0] = append(t.nodes[0], leaf)
	if _, exists := t.indexOf[leaf]; !exists {
		t.indexOf[leaf] = idx
	}

	level := 0
	for len(t.nodes[level]) > 1 {
		n := len(t.nodes[level])
		var parent field.F
		if n%2 == 0 {
			h, err := field.Poseidon(t.nodes[level][n-2], t.nodes[level][n-1])
			if err != nil {
				return err
			}
			parent = h
		} else {
			// Lone node at this level: lifted unchanged, never paired
			// with itself.
			parent = t.nodes[level][n-1]
		}

		nextIdx := (n - 1) / 2
		if level+1 >= len(t.nodes) {
			t.nodes = append(t.nodes, []field.F{})
		}
		if nextIdx < len(t.nodes[level+1]) {
			t.nodes[level+1][nextIdx] = parent
		} else {
			t.nodes[level+1] = append(t.nodes[level+1], parent)
		}
		level++
	}
	t.depth = uint32(level)
	return nil
}

// Root returns the current tree root, or the zero field element for an
// empty tree.
func (t *Tree) Root() field.F {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootLocked()
}

func (t *Tree) rootLocked() field.F {
	if len(t.nodes[0]) == 0 {
		return field.Zero()
	}
	return t.nodes[t.depth][0]
}

// Size returns the number of leaves inserted so far.
func (t *Tree) Size() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return uint64(len(t.nodes[0]))
}

// Depth returns the tree's current depth (0 for a single-leaf tree).
func (t *Tree) Depth() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.depth
}

// IndexOf returns the position leaf was first inserted at. If the same
// leaf value is inserted more than once, the earliest index wins — spec
// §8's tie-break for a precommitment appearing in more than one event.
func (t *Tree) IndexOf(leaf field.F) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.indexOf[leaf]
	return idx, ok
}

// Proof is an inclusion proof for one leaf, with siblings zero-padded to
// MaxTreeDepth. A level with no real sibling (the LeanIMT lone-node case)
// is left at its zero value; Verify treats a zero sibling as "pass
// through unchanged" rather than carrying a separate lifted flag, since a
// flag independent of Siblings could be forged without touching the
// value Verify actually hashes.
type Proof struct {
	Root     field.F
	Leaf     field.F
	Index    uint64
	Depth    uint32
	Siblings [MaxTreeDepth]field.F
}

// Proof returns an inclusion proof for the leaf at index.
func (t *Tree) Proof(index uint64) (Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index >= uint64(len(t.nodes[0])) {
		return Proof{}, poolerr.Wrap(poolerr.ErrTreeLeafNotFound, "no leaf at index %d", index)
	}

	p := Proof{
		Root:  t.rootLocked(),
		Leaf:  t.nodes[0][index],
		Index: index,
		Depth: t.depth,
	}

	idx := index
	for level := uint32(0); level < t.depth; level++ {
		n := len(t.nodes[level])
		var siblingIdx uint64
		hasSibling := true
		if idx%2 == 0 {
			siblingIdx = idx + 1
			if siblingIdx >= uint64(n) {
				hasSibling = false
			}
		} else {
			siblingIdx = idx - 1
		}

		if hasSibling {
			p.Siblings[level] = t.nodes[level][siblingIdx]
		}
		idx = idx / 2
	}

	return p, nil
}

// Verify recomputes a proof's root from its leaf and siblings and reports
// whether it matches p.Root. Per level, a zero Siblings[level] means the
// node was the lone one at that level (the LeanIMT lone-node case) and
// passes through unchanged; any nonzero value is hashed with the current
// value, ordered by the index's parity at that level. This mirrors the
// LeanIMT circuit convention of inferring the lift case from a zero
// sibling rather than a side flag, so a tampered sibling can never be
// silently ignored.
func Verify(p Proof) bool {
	current := p.Leaf
	idx := p.Index

	for level := uint32(0); level < p.Depth; level++ {
		if field.Equal(p.Siblings[level], field.Zero()) {
			idx = idx / 2
			continue
		}

		var h field.F
		var err error
		if idx%2 == 0 {
			h, err = field.Poseidon(current, p.Siblings[level])
		} else {
			h, err = field.Poseidon(p.Siblings[level], current)
		}
		if err != nil {
			return false
		}
		current = h
		idx = idx / 2
	}

	return field.Equal(current, p.Root)
}
