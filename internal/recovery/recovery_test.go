package recovery

import (
	"math/big"
	"testing"

	"github.com/mateodaza/galeon-sub004/internal/commitment"
	"github.com/mateodaza/galeon-sub004/internal/field"
	"github.com/mateodaza/galeon-sub004/internal/keys"
	"github.com/mateodaza/galeon-sub004/pkg/types"
)

func testKeys() keys.MasterKeys {
	return keys.DeriveMasterKeys([]byte{1, 2, 3})
}

func mustDeposit(t *testing.T, k keys.MasterKeys, scope field.F, index uint64, value int64, label uint64, block uint64) types.Deposited {
	t.Helper()
	pre, err := commitment.DepositSecrets(k, scope, index)
	if err != nil {
		t.Fatalf("deposit secrets: %v", err)
	}
	return types.Deposited{
		Value:         big.NewInt(value),
		Label:         field.FromUint64(label),
		Precommitment: pre.Hash,
		BlockNumber:   block,
		LogIndex:      0,
	}
}

func TestRecoverOriginalDepositsOnly(t *testing.T) {
	k := testKeys()
	scope := field.FromUint64(0x10)

	deposits := []types.Deposited{
		mustDeposit(t, k, scope, 0, 1_000_000_000_000_000_000, 0xA, 1),
	}

	result, err := NewEngine(k, scope).Recover(deposits, nil, nil)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(result.Active) != 1 {
		t.Fatalf("expected 1 active deposit, got %d", len(result.Active))
	}
	if result.Active[0].Index != 0 {
		t.Fatalf("expected index 0, got %d", result.Active[0].Index)
	}
}

func TestRecoveryGapTolerance(t *testing.T) {
	k := testKeys()
	scope := field.FromUint64(0x10)

	// Indices 0, 1, 3 present; index 2 reverted on-chain.
	deposits := []types.Deposited{
		mustDeposit(t, k, scope, 0, 1, 0xA, 1),
		mustDeposit(t, k, scope, 1, 1, 0xB, 2),
		mustDeposit(t, k, scope, 3, 1, 0xC, 3),
	}

	result, err := NewEngine(k, scope).Recover(deposits, nil, nil)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(result.Active) != 3 {
		t.Fatalf("expected all 3 deposits recovered despite the gap, got %d", len(result.Active))
	}
}

func TestRecoveryStopsAfterConsecutiveMisses(t *testing.T) {
	k := testKeys()
	scope := field.FromUint64(0x10)

	deposits := []types.Deposited{
		mustDeposit(t, k, scope, 0, 1, 0xA, 1),
		mustDeposit(t, k, scope, 1, 1, 0xB, 2),
	}

	result, err := NewEngine(k, scope).Recover(deposits, nil, nil)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(result.Active) != 2 {
		t.Fatalf("expected exactly 2 deposits, got %d", len(result.Active))
	}
}

func TestRecoveryMergeThenPartialWithdraw(t *testing.T) {
	k := testKeys()
	scope := field.FromUint64(0x10)
	label := field.FromUint64(0xA)

	dep0 := mustDeposit(t, k, scope, 0, 1_000_000_000_000_000_000, 0xA, 1)

	// Merge: existing deposit 0 absorbs 5e17, merged value 1.5e18.
	origPre, err := commitment.DepositSecrets(k, scope, 0)
	if err != nil {
		t.Fatalf("deposit secrets: %v", err)
	}
	origNullifierHash, err := commitment.NullifierHash(origPre.Nullifier)
	if err != nil {
		t.Fatalf("nullifier hash: %v", err)
	}

	mergedValue := big.NewInt(1_500_000_000_000_000_000)
	var mergeChildIndex uint64
	var mergedCommitment field.F
	for ci := uint64(0); ci < MaxChildIndex; ci++ {
		child, err := commitment.WithdrawalSecrets(k, label, ci)
		if err != nil {
			t.Fatalf("withdrawal secrets: %v", err)
		}
		c, err := commitment.Hash(field.FromBigInt(mergedValue), label, child.Hash)
		if err != nil {
			t.Fatalf("commitment hash: %v", err)
		}
		mergeChildIndex = ci
		mergedCommitment = c
		break // any deterministic child index works for this synthetic test
	}
	_ = mergeChildIndex

	merges := []types.MergeDeposit{
		{
			ExistingNullifierHash: origNullifierHash,
			NewCommitment:         mergedCommitment,
			DepositValue:          big.NewInt(500_000_000_000_000_000),
			BlockNumber:           2,
		},
	}

	// Withdraw 2e17 from the merged deposit; 1.3e18 remains.
	mergedChild, err := commitment.WithdrawalSecrets(k, label, 0)
	if err != nil {
		t.Fatalf("withdrawal secrets: %v", err)
	}
	mergedNullifierHash, err := commitment.NullifierHash(mergedChild.Nullifier)
	if err != nil {
		t.Fatalf("nullifier hash: %v", err)
	}

	remainingValue := big.NewInt(1_300_000_000_000_000_000)
	var changeCommitment field.F
	for ci := uint64(0); ci < MaxChildIndex; ci++ {
		child, err := commitment.WithdrawalSecrets(k, label, ci)
		if err != nil {
			t.Fatalf("withdrawal secrets: %v", err)
		}
		c, err := commitment.Hash(field.FromBigInt(remainingValue), label, child.Hash)
		if err != nil {
			t.Fatalf("commitment hash: %v", err)
		}
		changeCommitment = c
		break
	}

	withdrawals := []types.Withdrawn{
		{
			SpentNullifier: mergedNullifierHash,
			WithdrawnValue: big.NewInt(200_000_000_000_000_000),
			NewCommitment:  changeCommitment,
			BlockNumber:    3,
		},
	}

	result, err := NewEngine(k, scope).Recover([]types.Deposited{dep0}, merges, withdrawals)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(result.Active) != 1 {
		t.Fatalf("expected 1 active deposit after merge+partial withdraw, got %d", len(result.Active))
	}
	if result.Active[0].Value.Cmp(remainingValue) != 0 {
		t.Fatalf("expected remaining value %s, got %s", remainingValue, result.Active[0].Value)
	}
	if result.Diagnostics.MergesTraversed != 1 {
		t.Fatalf("expected 1 merge traversed, got %d", result.Diagnostics.MergesTraversed)
	}
	if result.Diagnostics.WithdrawalsTraversed != 1 {
		t.Fatalf("expected 1 withdrawal traversed, got %d", result.Diagnostics.WithdrawalsTraversed)
	}
}

func TestRecoveryFullWithdrawRemovesDeposit(t *testing.T) {
	k := testKeys()
	scope := field.FromUint64(0x10)

	dep0 := mustDeposit(t, k, scope, 0, 1_000, 0xA, 1)
	pre, err := commitment.DepositSecrets(k, scope, 0)
	if err != nil {
		t.Fatalf("deposit secrets: %v", err)
	}
	nh, err := commitment.NullifierHash(pre.Nullifier)
	if err != nil {
		t.Fatalf("nullifier hash: %v", err)
	}

	withdrawals := []types.Withdrawn{
		{
			SpentNullifier: nh,
			WithdrawnValue: big.NewInt(1_000),
			NewCommitment:  field.Zero(),
			BlockNumber:    2,
		},
	}

	result, err := NewEngine(k, scope).Recover([]types.Deposited{dep0}, nil, withdrawals)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(result.Active) != 0 {
		t.Fatalf("expected fully withdrawn deposit to be removed, got %d active", len(result.Active))
	}
}

func TestRecoveryIsIdempotent(t *testing.T) {
	k := testKeys()
	scope := field.FromUint64(0x10)
	deposits := []types.Deposited{
		mustDeposit(t, k, scope, 0, 1, 0xA, 1),
		mustDeposit(t, k, scope, 1, 1, 0xB, 2),
	}

	r1, err := NewEngine(k, scope).Recover(deposits, nil, nil)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	r2, err := NewEngine(k, scope).Recover(deposits, nil, nil)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}

	if len(r1.Active) != len(r2.Active) {
		t.Fatalf("recovery must be idempotent: got %d then %d active deposits", len(r1.Active), len(r2.Active))
	}
	for i := range r1.Active {
		if !field.Equal(r1.Active[i].PrecommitmentHash, r2.Active[i].PrecommitmentHash) {
			t.Fatalf("recovery must be idempotent at index %d", i)
		}
	}
}
