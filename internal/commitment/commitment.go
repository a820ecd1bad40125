// Package commitment implements the pure commitment algebra of spec.md
// §4.3: the mapping from master keys plus a scope/label/index to deposit
// and withdrawal-child secrets, precommitments, nullifiers, and commitment
// hashes. Every operation here is a pure function over field.F — no I/O,
// no state — mirroring the teacher's internal/zkp/pedersen.go commitment
// helpers in shape (compute-and-return, no hidden globals) while replacing
// the teacher's Pedersen/EC construction with Poseidon, since this
// protocol's commitments are Poseidon hashes of plaintext field elements,
// not elliptic-curve blinded values (see DESIGN.md for why Pedersen itself
// was dropped rather than adapted).
package commitment

import (
	"github.com/mateodaza/galeon-sub004/internal/field"
	"github.com/mateodaza/galeon-sub004/internal/keys"
)

// Precommitment is the (nullifier, secret) pair and its hash, committed to
// at deposit time.
type Precommitment struct {
	Nullifier field.F
	Secret    field.F
	Hash      field.F
}

// DepositSecrets derives the deposit-time precommitment for a given scope
// and sequential deposit index:
//
//	nullifier = Poseidon(masterNullifier, scope, index)
//	secret    = Poseidon(masterSecret, scope, index)
//	hash      = Poseidon(nullifier, secret)
func DepositSecrets(k keys.MasterKeys, scope field.F, index uint64) (Precommitment, error) {
	idx := field.FromUint64(index)

	nullifier, err := field.Poseidon(k.Nullifier, scope, idx)
	if err != nil {
		return Precommitment{}, err
	}
	secret, err := field.Poseidon(k.Secret, scope, idx)
	if err != nil {
		return Precommitment{}, err
	}
	hash, err := field.Poseidon(nullifier, secret)
	if err != nil {
		return Precommitment{}, err
	}

	return Precommitment{Nullifier: nullifier, Secret: secret, Hash: hash}, nil
}

// WithdrawalSecrets derives a withdrawal-child precommitment, used both
// for the new commitment a withdrawal produces and for tracing merge /
// partial-withdrawal chains during recovery:
//
//	nullifier' = Poseidon(masterNullifier, label, childIndex)
//	secret'    = Poseidon(masterSecret, label, childIndex)
func WithdrawalSecrets(k keys.MasterKeys, label field.F, childIndex uint64) (Precommitment, error) {
	idx := field.FromUint64(childIndex)

	nullifier, err := field.Poseidon(k.Nullifier, label, idx)
	if err != nil {
		return Precommitment{}, err
	}
	secret, err := field.Poseidon(k.Secret, label, idx)
	if err != nil {
		return Precommitment{}, err
	}
	hash, err := field.Poseidon(nullifier, secret)
	if err != nil {
		return Precommitment{}, err
	}

	return Precommitment{Nullifier: nullifier, Secret: secret, Hash: hash}, nil
}

// Hash computes the state-tree leaf for a commitment:
//
//	commitmentHash = Poseidon(value, label, precommitmentHash)
func Hash(value field.F, label field.F, precommitmentHash field.F) (field.F, error) {
	return field.Poseidon(value, label, precommitmentHash)
}

// NullifierHash computes the value revealed on spend to prevent
// double-spending: Poseidon(nullifier).
func NullifierHash(nullifier field.F) (field.F, error) {
	return field.Poseidon(nullifier)
}
