package merkletree

import (
	"context"
	"testing"

	"github.com/mateodaza/galeon-sub004/internal/field"
)

func TestEmptyTreeRootIsZero(t *testing.T) {
	tree := New(NewInMemoryLeafStore())
	if !field.Equal(tree.Root(), field.Zero()) {
		t.Fatal("empty tree root must be the zero field element")
	}
}

func TestSingleLeafRootIsLeaf(t *testing.T) {
	ctx := context.Background()
	tree := New(NewInMemoryLeafStore())

	leaf := field.FromUint64(42)
	root, err := tree.Insert(ctx, leaf)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !field.Equal(root, leaf) {
		t.Fatal("a single-leaf tree's root must equal that leaf unchanged")
	}
}

func TestInsertAndProofRoundTrip(t *testing.T) {
	ctx := context.Background()
	tree := New(NewInMemoryLeafStore())

	for i := uint64(0); i < 7; i++ {
		if _, err := tree.Insert(ctx, field.FromUint64(i+1)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	for i := uint64(0); i < 7; i++ {
		proof, err := tree.Proof(i)
		if err != nil {
			t.Fatalf("proof(%d): %v", i, err)
		}
		if !Verify(proof) {
			t.Fatalf("proof for index %d did not verify", i)
		}
		if !field.Equal(proof.Root, tree.Root()) {
			t.Fatalf("proof root for index %d does not match tree root", i)
		}
	}
}

func TestProofRejectsTamperedSibling(t *testing.T) {
	ctx := context.Background()
	tree := New(NewInMemoryLeafStore())
	for i := uint64(0); i < 5; i++ {
		if _, err := tree.Insert(ctx, field.FromUint64(i+100)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	proof, err := tree.Proof(2)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if !Verify(proof) {
		t.Fatal("untampered proof should verify")
	}

	proof.Siblings[0] = field.FromUint64(999999)
	if Verify(proof) {
		t.Fatal("tampering a sibling must invalidate the proof")
	}
}

func TestProofRejectsTamperedLiftedSibling(t *testing.T) {
	ctx := context.Background()
	tree := New(NewInMemoryLeafStore())
	for i := uint64(0); i < 5; i++ {
		if _, err := tree.Insert(ctx, field.FromUint64(i+300)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	// Index 4 is the lone node at both level 0 (5 leaves) and level 1 (3
	// nodes), so its proof's Siblings[0] and Siblings[1] are left zero —
	// the LeanIMT lift case. A forged nonzero value at a lifted level
	// must still invalidate the proof.
	proof, err := tree.Proof(4)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if !Verify(proof) {
		t.Fatal("untampered proof should verify")
	}
	if !field.Equal(proof.Siblings[0], field.Zero()) || !field.Equal(proof.Siblings[1], field.Zero()) {
		t.Fatal("test assumption violated: expected levels 0 and 1 to be lifted (zero sibling)")
	}

	proof.Siblings[0] = field.FromUint64(999999)
	if Verify(proof) {
		t.Fatal("tampering a lifted level's sibling must invalidate the proof")
	}
}

func TestProofRejectsTamperedIndex(t *testing.T) {
	ctx := context.Background()
	tree := New(NewInMemoryLeafStore())
	for i := uint64(0); i < 5; i++ {
		if _, err := tree.Insert(ctx, field.FromUint64(i+200)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	proof, err := tree.Proof(1)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	proof.Index = 3
	if Verify(proof) {
		t.Fatal("tampering the index must invalidate the proof")
	}
}

func TestProofUnknownLeafErrors(t *testing.T) {
	tree := New(NewInMemoryLeafStore())
	if _, err := tree.Proof(0); err == nil {
		t.Fatal("expected an error for a proof request against an empty tree")
	}
}

func TestIndexOfEarliestTieBreak(t *testing.T) {
	ctx := context.Background()
	tree := New(NewInMemoryLeafStore())

	dup := field.FromUint64(7)
	if _, err := tree.Insert(ctx, dup); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := tree.Insert(ctx, field.FromUint64(8)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := tree.Insert(ctx, dup); err != nil {
		t.Fatalf("insert: %v", err)
	}

	idx, ok := tree.IndexOf(dup)
	if !ok {
		t.Fatal("expected duplicate leaf to be indexed")
	}
	if idx != 0 {
		t.Fatalf("expected earliest index 0 for duplicate leaf, got %d", idx)
	}
}

func TestLoadRebuildsIdenticalRoot(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryLeafStore()
	tree := New(store)

	var wantRoot field.F
	for i := uint64(0); i < 11; i++ {
		r, err := tree.Insert(ctx, field.FromUint64(i+1000))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		wantRoot = r
	}

	reloaded := New(store)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !field.Equal(reloaded.Root(), wantRoot) {
		t.Fatal("reloading from the same leaf store must reproduce the same root")
	}
	if reloaded.Size() != tree.Size() {
		t.Fatal("reloading must reproduce the same size")
	}
}

func TestGrowthMatchesSequentialInsertOrder(t *testing.T) {
	ctx := context.Background()

	a := New(NewInMemoryLeafStore())
	b := New(NewInMemoryLeafStore())

	leaves := []field.F{field.FromUint64(1), field.FromUint64(2), field.FromUint64(3), field.FromUint64(4), field.FromUint64(5)}
	for _, l := range leaves {
		if _, err := a.Insert(ctx, l); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	// Reversed insertion order must NOT produce the same root; order matters.
	for i := len(leaves) - 1; i >= 0; i-- {
		if _, err := b.Insert(ctx, leaves[i]); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if field.Equal(a.Root(), b.Root()) {
		t.Fatal("insertion order must affect the root")
	}
}
