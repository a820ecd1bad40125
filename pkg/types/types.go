// Package types defines the shared data model of the privacy pool engine:
// chain events consumed from the pool contract's log feed, the recovered
// ActiveDeposit record, and the assembled withdrawal witness. These are
// plain structs; the only behavior here is the ChainOrder comparison and
// ActiveDeposit.CommitmentHash. They generalize the teacher's
// pkg/types/transaction.go and block.go (Hash/Commitment/ZKProof wrapper
// types) from a Pedersen-commitment transaction model to this protocol's
// Poseidon-commitment deposit/withdrawal model.
package types

import (
	"math/big"

	"github.com/mateodaza/galeon-sub004/internal/field"
)

// Hash32 is a 32-byte chain value (a transaction hash or similar), kept
// distinct from field.Bytes32 because it is not necessarily a reduced
// field element — it is raw chain data.
type Hash32 = [32]byte

// Address is a 20-byte EVM address.
type Address = [20]byte

// Deposited mirrors the pool contract's Deposited event: a new original
// deposit entering the state tree.
type Deposited struct {
	Depositor     Address
	Pool          Address
	Commitment    field.F
	Label         field.F
	Value         *big.Int
	Precommitment field.F
	BlockNumber   uint64
	LogIndex      uint32
	TxHash        Hash32
}

// MergeDeposit mirrors the pool contract's MergeDeposit event: an
// existing active deposit absorbed additional value, replacing its
// commitment.
type MergeDeposit struct {
	ExistingNullifierHash field.F
	NewCommitment         field.F
	DepositValue          *big.Int
	BlockNumber           uint64
	LogIndex              uint32
	TxHash                Hash32
}

// Withdrawn mirrors the pool contract's Withdrawn event. NewCommitment is
// the zero field element when the withdrawal fully spent the deposit.
type Withdrawn struct {
	SpentNullifier field.F
	WithdrawnValue *big.Int
	NewCommitment  field.F
	BlockNumber    uint64
	LogIndex       uint32
	TxHash         Hash32
}

// ChainOrder reports whether a precedes b in (blockNumber, logIndex)
// order, the total order the recovery engine and the ASP service both
// require events to be processed in.
func ChainOrder(aBlock uint64, aLog uint32, bBlock uint64, bLog uint32) bool {
	if aBlock != bBlock {
		return aBlock < bBlock
	}
	return aLog < bLog
}

// ActiveDeposit is a recovered, spendable commitment: the user holds
// (nullifier, secret) for it and it has not been fully withdrawn.
//
// Index semantics depend on provenance: for an original deposit it is the
// sequential deposit index under the pool scope; for a merged or
// withdrawal-change commitment it is the child index used in
// withdrawalSecrets derivation.
type ActiveDeposit struct {
	Index             uint64
	Nullifier         field.F
	Secret            field.F
	PrecommitmentHash field.F
	Value             *big.Int
	Label             field.F
	BlockNumber       uint64
	TxHash            Hash32
}

// CommitmentHash recomputes the state-tree leaf this deposit currently
// occupies: Poseidon(value, label, precommitmentHash).
func (d ActiveDeposit) CommitmentHash() (field.F, error) {
	return field.Poseidon(field.FromBigInt(d.Value), d.Label, d.PrecommitmentHash)
}

// WithdrawalWitness is the full Groth16 public/private witness for one
// withdrawal, assembled per spec §3/§4.6.
type WithdrawalWitness struct {
	WithdrawnValue *big.Int

	StateRoot      field.F
	StateTreeDepth uint32
	ASPRoot        field.F
	ASPTreeDepth   uint32

	Context field.F
	Label   field.F

	ExistingValue     *big.Int
	ExistingNullifier field.F
	ExistingSecret    field.F

	NewNullifier field.F
	NewSecret    field.F

	StateSiblings []field.F
	StateIndex    uint64
	ASPSiblings   []field.F
	ASPIndex      uint64
}

