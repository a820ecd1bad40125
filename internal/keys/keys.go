// Package keys derives the two process-lifetime master scalars a pool
// session operates under from a wallet signature. Grounded on the
// teacher's internal/zkp/nullifier.go domain-separation idiom
// ("CCOIN_NULLIFIER_KEY" || spendingKey), generalized to two independent
// domain-separated reductions per spec.md §4.2.
package keys

import (
	"golang.org/x/crypto/sha3"

	"github.com/mateodaza/galeon-sub004/internal/field"
)

// PoolSignMessage is the fixed, human-readable message the wallet must
// sign to derive master keys. Its exact bytes are a compatibility
// contract: every client deriving keys for the same wallet must sign
// precisely this string, in the canonicalization the wallet layer uses
// (EIP-191 personal_sign), for DeriveMasterKeys to reproduce the same
// scalars. The session/wallet layer produces the signature; this package
// only fixes and documents the message it must cover.
const PoolSignMessage = "I am signing this message to generate my Galeon Privacy Pool keys.\n" +
	"This does not cost any gas and is only used to derive deterministic spending keys."

// Domain separators, hashed ahead of the raw signature bytes so the two
// derived scalars are independent even though they're computed from the
// same signature.
const (
	nullifierDomain = "GALEON/POOL/NULLIFIER"
	secretDomain    = "GALEON/POOL/SECRET"
)

// MasterKeys holds the two scalars a session derives once at unlock and
// destroys at sign-out. Never marshaled, never persisted.
type MasterKeys struct {
	Nullifier field.F
	Secret    field.F
}

// DeriveMasterKeys reduces a wallet signature (over PoolSignMessage) into
// the session's master nullifier and secret scalars. Deterministic: the
// same signature always yields the same keys.
func DeriveMasterKeys(signature []byte) MasterKeys {
	return MasterKeys{
		Nullifier: domainReduce(nullifierDomain, signature),
		Secret:    domainReduce(secretDomain, signature),
	}
}

func domainReduce(domain string, signature []byte) field.F {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(domain))
	h.Write(signature)
	return field.BytesToField(h.Sum(nil))
}
