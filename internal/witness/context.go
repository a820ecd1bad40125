package witness

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mateodaza/galeon-sub004/internal/field"
)

// Withdrawal is the on-chain withdrawal struct the context hash binds to:
// processooor is the address permitted to relay the withdrawal, data is
// the ABI-encoded payload the pool's relay method interprets. Per spec
// §9's open question, the exact byte layout of data is project-specific
// and must be verified against the on-chain relay method at deployment
// time; this package only fixes the (processooor, data) tuple shape and
// the context derivation around it.
type Withdrawal struct {
	Processooor common.Address
	Data        []byte
}

var contextArgs abi.Arguments

func init() {
	tupleTy, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "processooor", Type: "address"},
		{Name: "data", Type: "bytes"},
	})
	if err != nil {
		panic(err)
	}
	scopeTy, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	contextArgs = abi.Arguments{{Type: tupleTy}, {Type: scopeTy}}
}

// ComputeContext computes context = keccak256(abi.encode(withdrawal, scope)) mod p,
// using go-ethereum's ABI encoder for the tuple layout and its crypto
// package for Keccak256, matching how the on-chain verifier derives the
// same value from the same inputs (spec invariant "context hash format").
func ComputeContext(w Withdrawal, scope field.F) (field.F, error) {
	packed, err := contextArgs.Pack(struct {
		Processooor common.Address
		Data        []byte
	}{w.Processooor, w.Data}, field.ToBigInt(scope))
	if err != nil {
		return field.Zero(), err
	}

	digest := crypto.Keccak256(packed)
	return field.BytesToField(digest), nil
}
