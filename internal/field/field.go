// Package field implements field-element representation and the Poseidon
// hash primitive used throughout the pool engine — commitments, nullifiers,
// and every Merkle tree node hash go through this package.
//
// F is backed by gnark-crypto's BN254 scalar field element (the teacher's
// internal/zkp/pedersen.go already depends on
// github.com/consensys/gnark-crypto/ecc/bn254/fr for the same field; this
// package keeps that dependency and adds the Poseidon permutation the
// teacher never implemented). Poseidon itself is delegated to
// github.com/iden3/go-iden3-crypto/poseidon, the circomlib-compatible
// implementation real privacy-pool circuits are built against, rather than
// a hand-rolled permutation: spec.md requires bit-for-bit compatibility
// with the target circuit, a guarantee only an audited, widely-deployed
// implementation can make.
package field

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/iden3/go-iden3-crypto/poseidon"

	"github.com/mateodaza/galeon-sub004/internal/poolerr"
)

// F is a BN254 scalar field element, always held reduced mod p.
type F = fr.Element

// Bytes32 is the canonical big-endian, fixed-width encoding of an F, used
// at every serialization boundary (witness JSON, ABI encoding, Postgres).
type Bytes32 = [32]byte

// MaxPoseidonArity is the largest number of inputs this wrapper accepts in
// one call; the protocol only ever needs 1, 2, or 3 inputs (the withdrawal
// context is a Keccak hash, not a Poseidon one), but go-iden3-crypto
// supports up to 16.
const MaxPoseidonArity = 16

// Zero returns the additive identity.
func Zero() F {
	var z F
	return z
}

// FromUint64 lifts a uint64 (e.g. a deposit/child index or a token value)
// into the field.
func FromUint64(v uint64) F {
	var f F
	f.SetUint64(v)
	return f
}

// FromBigInt reduces an arbitrary-precision integer mod p.
func FromBigInt(v *big.Int) F {
	var f F
	f.SetBigInt(v)
	return f
}

// ToBigInt returns the canonical big.Int representation of f, in [0, p).
func ToBigInt(f F) *big.Int {
	var b big.Int
	f.BigInt(&b)
	return &b
}

// BytesToField interprets b as a big-endian integer and reduces it mod p.
// Used only to derive field elements from externally produced byte strings
// (e.g. a wallet-signature-derived hash), per spec.md §4.1.
func BytesToField(b []byte) F {
	var f F
	f.SetBytes(b)
	return f
}

// ToBytes32 returns the canonical big-endian, 32-byte encoding of f.
func ToBytes32(f F) Bytes32 {
	return f.Bytes()
}

// FromBytes32 decodes a canonical big-endian 32-byte encoding, reducing if
// the input happens to be >= p (callers that must reject out-of-range
// input should use IsCanonical first).
func FromBytes32(b Bytes32) F {
	var f F
	f.SetBytes(b[:])
	return f
}

// IsCanonical reports whether b, read as a big-endian integer, is already
// < p (i.e. round-trips through FromBytes32/ToBytes32 unchanged). No
// decoding boundary in this module calls it: the event feed and the ASP
// store decode with FromBigInt/FromBytes32, which reduce out-of-range
// input silently instead of rejecting it.
func IsCanonical(b Bytes32) bool {
	f := FromBytes32(b)
	return ToBytes32(f) == b
}

// Poseidon hashes 1..MaxPoseidonArity field elements, matching the
// circomlib/iden3 Poseidon parameterization (S-box x^5, fixed round
// constants and MDS matrix for the BN254 scalar field) used by the target
// withdrawal circuit.
func Poseidon(inputs ...F) (F, error) {
	if len(inputs) == 0 {
		return Zero(), poolerr.Wrap(poolerr.ErrFieldOutOfRange, "poseidon: no inputs")
	}
	if len(inputs) > MaxPoseidonArity {
		return Zero(), poolerr.Wrap(poolerr.ErrFieldOutOfRange, "poseidon: %d inputs exceeds max arity %d", len(inputs), MaxPoseidonArity)
	}

	bigInts := make([]*big.Int, len(inputs))
	for i, in := range inputs {
		bigInts[i] = ToBigInt(in)
	}

	out, err := poseidon.Hash(bigInts)
	if err != nil {
		return Zero(), fmt.Errorf("poseidon hash: %w", err)
	}

	return FromBigInt(out), nil
}

// MustPoseidon is Poseidon, panicking on error. Reserved for call sites
// where the arity is a compile-time constant and therefore never fails
// (e.g. hashing exactly two known-valid field elements into a tree node).
func MustPoseidon(inputs ...F) F {
	out, err := Poseidon(inputs...)
	if err != nil {
		panic(err)
	}
	return out
}

// Equal reports whether a and b represent the same field element.
func Equal(a, b F) bool {
	return a.Equal(&b)
}
