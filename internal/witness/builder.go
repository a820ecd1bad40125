// Package witness assembles the Groth16 withdrawal witness of spec §4.6:
// the state-tree inclusion proof for the spent commitment, the ASP
// inclusion proof for its label, the withdrawal context hash, and the
// freshly derived child secrets for the remaining or merged balance.
//
// It mirrors the teacher's internal/zkp/transaction.go TransactionBuilder
// pipeline shape (value-conservation check, then secret derivation, then
// commitment assembly) but targets this protocol's single-input,
// single-output withdrawal rather than the teacher's multi-note shielded
// transaction.
package witness

import (
	"math/big"
	"sync"

	"github.com/mateodaza/galeon-sub004/internal/commitment"
	"github.com/mateodaza/galeon-sub004/internal/field"
	"github.com/mateodaza/galeon-sub004/internal/keys"
	"github.com/mateodaza/galeon-sub004/internal/merkletree"
	"github.com/mateodaza/galeon-sub004/internal/poolerr"
	"github.com/mateodaza/galeon-sub004/pkg/types"
)

// Builder assembles withdrawal witnesses for one user session. It tracks
// the smallest unused child index per label locally, so repeated partial
// withdrawals from the same deposit never collide on the same derived
// child commitment.
type Builder struct {
	keys keys.MasterKeys

	mu   sync.Mutex
	used map[field.F]map[uint64]bool
}

// NewBuilder returns a witness builder bound to one session's master keys.
func NewBuilder(k keys.MasterKeys) *Builder {
	return &Builder{
		keys: k,
		used: make(map[field.F]map[uint64]bool),
	}
}

// nextChildIndex returns the smallest child index not yet used for label.
func (b *Builder) nextChildIndex(label field.F) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	used := b.used[label]
	idx := uint64(0)
	for used[idx] {
		idx++
	}
	return idx
}

func (b *Builder) markChildIndexUsed(label field.F, idx uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used[label] == nil {
		b.used[label] = make(map[uint64]bool)
	}
	b.used[label][idx] = true
}

// Build assembles the witness for spending deposit, withdrawing
// withdrawnValue, against the given state tree (which must already
// contain the deposit's current commitment) and a precomputed ASP
// inclusion proof for the deposit's label.
//
// It fails fast on any violated invariant — per spec §4.6/§7, no partial
// witness is ever handed to the prover.
func (b *Builder) Build(
	deposit types.ActiveDeposit,
	withdrawnValue *big.Int,
	stateTree *merkletree.Tree,
	aspProof merkletree.Proof,
) (types.WithdrawalWitness, error) {
	if withdrawnValue.Sign() < 0 || withdrawnValue.Cmp(deposit.Value) > 0 {
		return types.WithdrawalWitness{}, poolerr.Wrap(
			poolerr.ErrWitnessInvariantViolated,
			"withdrawnValue %s must be in [0, existingValue=%s]", withdrawnValue, deposit.Value,
		)
	}

	commitmentHash, err := deposit.CommitmentHash()
	if err != nil {
		return types.WithdrawalWitness{}, err
	}

	stateIndex, ok := stateTree.IndexOf(commitmentHash)
	if !ok {
		return types.WithdrawalWitness{}, poolerr.Wrap(poolerr.ErrTreeLeafNotFound, "deposit commitment not present in state tree")
	}
	stateProof, err := stateTree.Proof(stateIndex)
	if err != nil {
		return types.WithdrawalWitness{}, err
	}

	if !merkletree.Verify(stateProof) {
		return types.WithdrawalWitness{}, poolerr.Wrap(poolerr.ErrTreeProofInvalid, "state proof for index %d failed to verify", stateIndex)
	}
	if !merkletree.Verify(aspProof) {
		return types.WithdrawalWitness{}, poolerr.Wrap(poolerr.ErrTreeProofInvalid, "ASP proof for label %s failed to verify", field.ToBigInt(deposit.Label))
	}
	if !field.Equal(aspProof.Leaf, deposit.Label) {
		return types.WithdrawalWitness{}, poolerr.Wrap(poolerr.ErrWitnessInvariantViolated, "ASP proof leaf does not match deposit label")
	}

	childIndex := b.nextChildIndex(deposit.Label)
	child, err := commitment.WithdrawalSecrets(b.keys, deposit.Label, childIndex)
	if err != nil {
		return types.WithdrawalWitness{}, err
	}
	b.markChildIndexUsed(deposit.Label, childIndex)

	return types.WithdrawalWitness{
		WithdrawnValue: withdrawnValue,

		StateRoot:      stateTree.Root(),
		StateTreeDepth: stateProof.Depth,
		ASPRoot:        aspProof.Root,
		ASPTreeDepth:   aspProof.Depth,

		Label: deposit.Label,

		ExistingValue:     deposit.Value,
		ExistingNullifier: deposit.Nullifier,
		ExistingSecret:    deposit.Secret,

		NewNullifier: child.Nullifier,
		NewSecret:    child.Secret,

		StateSiblings: stateProof.Siblings[:],
		StateIndex:    stateProof.Index,
		ASPSiblings:   aspProof.Siblings[:],
		ASPIndex:      aspProof.Index,
	}, nil
}

// AttachContext computes and sets the witness's context hash for the
// given withdrawal struct and pool scope. Kept separate from Build so
// callers can assemble the withdrawal-relay payload (which may depend on
// the chosen destination address) after the tree proofs are already
// fixed.
func AttachContext(w types.WithdrawalWitness, withdrawal Withdrawal, scope field.F) (types.WithdrawalWitness, error) {
	ctx, err := ComputeContext(withdrawal, scope)
	if err != nil {
		return types.WithdrawalWitness{}, err
	}
	w.Context = ctx
	return w, nil
}
