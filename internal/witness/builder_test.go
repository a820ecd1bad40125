package witness

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mateodaza/galeon-sub004/internal/commitment"
	"github.com/mateodaza/galeon-sub004/internal/field"
	"github.com/mateodaza/galeon-sub004/internal/keys"
	"github.com/mateodaza/galeon-sub004/internal/merkletree"
	"github.com/mateodaza/galeon-sub004/pkg/types"
)

func buildDeposit(t *testing.T, k keys.MasterKeys, scope, label field.F, index uint64, value int64) types.ActiveDeposit {
	t.Helper()
	pre, err := commitment.DepositSecrets(k, scope, index)
	if err != nil {
		t.Fatalf("deposit secrets: %v", err)
	}
	return types.ActiveDeposit{
		Index:             index,
		Nullifier:         pre.Nullifier,
		Secret:            pre.Secret,
		PrecommitmentHash: pre.Hash,
		Value:             big.NewInt(value),
		Label:             label,
	}
}

func TestBuildProducesValidWitness(t *testing.T) {
	ctx := context.Background()
	k := keys.DeriveMasterKeys([]byte{7, 7, 7})
	scope := field.FromUint64(0x10)
	label := field.FromUint64(0xA)

	deposit := buildDeposit(t, k, scope, label, 0, 1000)
	commitmentHash, err := deposit.CommitmentHash()
	if err != nil {
		t.Fatalf("commitment hash: %v", err)
	}

	stateTree := merkletree.New(merkletree.NewInMemoryLeafStore())
	if _, err := stateTree.Insert(ctx, commitmentHash); err != nil {
		t.Fatalf("insert state leaf: %v", err)
	}

	aspTree := merkletree.New(merkletree.NewInMemoryLeafStore())
	if _, err := aspTree.Insert(ctx, label); err != nil {
		t.Fatalf("insert asp leaf: %v", err)
	}
	aspIdx, ok := aspTree.IndexOf(label)
	if !ok {
		t.Fatal("expected label to be indexed in asp tree")
	}
	aspProof, err := aspTree.Proof(aspIdx)
	if err != nil {
		t.Fatalf("asp proof: %v", err)
	}

	b := NewBuilder(k)
	w, err := b.Build(deposit, big.NewInt(400), stateTree, aspProof)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if w.ExistingValue.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected existing value: %s", w.ExistingValue)
	}
	if w.WithdrawnValue.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("unexpected withdrawn value: %s", w.WithdrawnValue)
	}
	if len(w.StateSiblings) != merkletree.MaxTreeDepth {
		t.Fatalf("expected %d state siblings, got %d", merkletree.MaxTreeDepth, len(w.StateSiblings))
	}
	if len(w.ASPSiblings) != merkletree.MaxTreeDepth {
		t.Fatalf("expected %d asp siblings, got %d", merkletree.MaxTreeDepth, len(w.ASPSiblings))
	}

	withdrawal := Withdrawal{Processooor: common.HexToAddress("0x1111111111111111111111111111111111111111"), Data: []byte("relay-payload")}
	w, err = AttachContext(w, withdrawal, scope)
	if err != nil {
		t.Fatalf("attach context: %v", err)
	}
	if field.Equal(w.Context, field.Zero()) {
		t.Fatal("context hash should not be zero for a non-trivial withdrawal")
	}
}

func TestBuildRejectsOverdraw(t *testing.T) {
	ctx := context.Background()
	k := keys.DeriveMasterKeys([]byte{8})
	scope := field.FromUint64(1)
	label := field.FromUint64(2)

	deposit := buildDeposit(t, k, scope, label, 0, 100)
	commitmentHash, err := deposit.CommitmentHash()
	if err != nil {
		t.Fatalf("commitment hash: %v", err)
	}

	stateTree := merkletree.New(merkletree.NewInMemoryLeafStore())
	if _, err := stateTree.Insert(ctx, commitmentHash); err != nil {
		t.Fatalf("insert: %v", err)
	}
	aspTree := merkletree.New(merkletree.NewInMemoryLeafStore())
	if _, err := aspTree.Insert(ctx, label); err != nil {
		t.Fatalf("insert: %v", err)
	}
	aspProof, err := aspTree.Proof(0)
	if err != nil {
		t.Fatalf("asp proof: %v", err)
	}

	b := NewBuilder(k)
	if _, err := b.Build(deposit, big.NewInt(200), stateTree, aspProof); err == nil {
		t.Fatal("expected an error when withdrawing more than the deposit's value")
	}
}

func TestBuildRejectsMissingCommitment(t *testing.T) {
	k := keys.DeriveMasterKeys([]byte{9})
	scope := field.FromUint64(1)
	label := field.FromUint64(2)

	deposit := buildDeposit(t, k, scope, label, 0, 100)

	stateTree := merkletree.New(merkletree.NewInMemoryLeafStore()) // empty: commitment never inserted
	aspTree := merkletree.New(merkletree.NewInMemoryLeafStore())
	ctx := context.Background()
	if _, err := aspTree.Insert(ctx, label); err != nil {
		t.Fatalf("insert: %v", err)
	}
	aspProof, err := aspTree.Proof(0)
	if err != nil {
		t.Fatalf("asp proof: %v", err)
	}

	b := NewBuilder(k)
	if _, err := b.Build(deposit, big.NewInt(10), stateTree, aspProof); err == nil {
		t.Fatal("expected an error when the deposit's commitment is not in the state tree")
	}
}

func TestNextChildIndexAvoidsCollisions(t *testing.T) {
	k := keys.DeriveMasterKeys([]byte{10})
	label := field.FromUint64(99)

	b := NewBuilder(k)
	first := b.nextChildIndex(label)
	b.markChildIndexUsed(label, first)
	second := b.nextChildIndex(label)

	if first == second {
		t.Fatal("successive child indices for the same label must not collide")
	}
}
