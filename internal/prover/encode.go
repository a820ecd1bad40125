// Package prover bridges an assembled withdrawal witness to an opaque,
// out-of-process Groth16 prover (spec §4.7). The prover itself — the
// circuit and the proving key — is a consumed dependency; this package
// only serializes inputs, invokes it, and decodes its output into the
// contract-ready encoding.
//
// Proof and VerifyingKey hold BN254 group elements via gnark-crypto's
// ecc/bn254 package (G1Affine/G2Affine), the same dependency the
// teacher's internal/zkp/pedersen.go already uses for its Pedersen
// commitments' G1Affine points — extended here with G2Affine for the
// Groth16 B element and a pairing check for local verification.
package prover

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"

	"github.com/mateodaza/galeon-sub004/internal/poolerr"
)

// Proof is a Groth16 proof over BN254 in the verifier's native group
// element form.
type Proof struct {
	A bn254.G1Affine
	B bn254.G2Affine
	C bn254.G1Affine
}

// VerifyingKey holds the fixed parameters of the target circuit's
// verifying key. It is supplied by whoever deploys the circuit — this
// package only consumes it for local (non-production) verification.
type VerifyingKey struct {
	Alpha bn254.G1Affine
	Beta  bn254.G2Affine
	Gamma bn254.G2Affine
	Delta bn254.G2Affine
	// IC has one element per public input plus one (the constant term),
	// in the circuit's declared public-input order.
	IC []bn254.G1Affine
}

// EncodeProof serializes proof as eight uint256 words in the order the
// Groth16 verifier expects on-chain: [a.x, a.y, b.x[1], b.x[0], b.y[1],
// b.y[0], c.x, c.y]. Note the b component's coordinate swap, required
// because BN254 precompiles expect the quadratic extension's components
// in the opposite order from gnark-crypto's internal representation.
func EncodeProof(p Proof) [8]*big.Int {
	var out [8]*big.Int
	out[0] = p.A.X.BigInt(new(big.Int))
	out[1] = p.A.Y.BigInt(new(big.Int))
	out[2] = p.B.X.A1.BigInt(new(big.Int))
	out[3] = p.B.X.A0.BigInt(new(big.Int))
	out[4] = p.B.Y.A1.BigInt(new(big.Int))
	out[5] = p.B.Y.A0.BigInt(new(big.Int))
	out[6] = p.C.X.BigInt(new(big.Int))
	out[7] = p.C.Y.BigInt(new(big.Int))
	return out
}

// VerifyLocally checks proof against vk and the public signals using a
// single multi-pairing check, equivalent to the on-chain verifier's
// e(A,B) == e(alpha,beta)·e(L,gamma)·e(C,delta) equation rearranged as a
// product-equals-one check. Reserved for tests; production submits the
// proof to the chain and lets the contract verify it.
func VerifyLocally(p Proof, vk VerifyingKey, publicSignals []*big.Int) (bool, error) {
	if len(vk.IC) != len(publicSignals)+1 {
		return false, poolerr.Wrap(poolerr.ErrProverFailure, "verifying key expects %d public signals, got %d", len(vk.IC)-1, len(publicSignals))
	}

	l := vk.IC[0]
	for i, s := range publicSignals {
		var term bn254.G1Affine
		term.ScalarMultiplication(&vk.IC[i+1], s)

		var lJac, termJac bn254.G1Jac
		lJac.FromAffine(&l)
		termJac.FromAffine(&term)
		lJac.AddAssign(&termJac)
		l.FromJacobian(&lJac)
	}

	var negBeta, negGamma, negDelta bn254.G2Affine
	negBeta.Neg(&vk.Beta)
	negGamma.Neg(&vk.Gamma)
	negDelta.Neg(&vk.Delta)

	ok, err := bn254.PairingCheck(
		[]bn254.G1Affine{p.A, vk.Alpha, l, p.C},
		[]bn254.G2Affine{p.B, negBeta, negGamma, negDelta},
	)
	if err != nil {
		return false, poolerr.Wrap(poolerr.ErrProverFailure, "pairing check: %v", err)
	}
	return ok, nil
}
