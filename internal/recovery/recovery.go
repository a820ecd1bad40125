// Package recovery implements the deposit Recovery Engine of spec §4.5:
// given master keys, a pool scope, and the full ordered on-chain event
// stream, it reconstructs the set of commitments the caller currently
// holds spending secrets for, without needing any locally stored notes.
//
// The two side maps keyed by ExistingNullifierHash and SpentNullifier —
// recommended by spec §9 for O(1) chain advancement — mirror the
// index-by-key lookup idiom the teacher's internal/zkp/nullifier.go uses
// for its NullifierSet (a map keyed by nullifier hash rather than a scan),
// generalized here to two independent chain-event indices instead of one
// spent-set.
package recovery

import (
	"math/big"
	"sort"

	"github.com/mateodaza/galeon-sub004/internal/commitment"
	"github.com/mateodaza/galeon-sub004/internal/field"
	"github.com/mateodaza/galeon-sub004/internal/keys"
	"github.com/mateodaza/galeon-sub004/internal/poolerr"
	"github.com/mateodaza/galeon-sub004/pkg/types"
)

const (
	// MaxConsecutiveMisses bounds the original-deposit scan: this many
	// sequential unmatched indices under scope ends the scan, tolerating
	// failed or in-flight deposits without scanning forever.
	MaxConsecutiveMisses = 10

	// MaxChildIndex bounds the search for the child index a merge or
	// withdrawal-change commitment was derived at.
	MaxChildIndex = 100
)

// SkippedEvent records a merge or withdrawal event that matched an active
// deposit but whose child-index search failed. Recover stops at that event
// and returns it in the diagnostics together with the error and the
// deposits recovered so far. Events that match no active deposit are
// ignored and not recorded.
type SkippedEvent struct {
	Kind        string
	BlockNumber uint64
	LogIndex    uint32
	Reason      error
}

// Diagnostics reports recovery-engine bookkeeping useful for UI or
// troubleshooting, per spec §4.5's "count of merges traversed" plus the
// withdrawal-chain equivalent this implementation adds (SPEC_FULL §6).
type Diagnostics struct {
	MergesTraversed      int
	WithdrawalsTraversed int
	Skipped              []SkippedEvent
}

// Result is the recovery engine's output: the active (spendable)
// deposits, deduped by commitment hash, plus diagnostics.
type Result struct {
	Active      []types.ActiveDeposit
	Diagnostics Diagnostics
}

// Engine scans a pool's event stream for one user's keys and scope.
type Engine struct {
	keys  keys.MasterKeys
	scope field.F
}

// NewEngine returns a recovery engine bound to one user's master keys and
// one pool's scope.
func NewEngine(k keys.MasterKeys, scope field.F) *Engine {
	return &Engine{keys: k, scope: scope}
}

// Recover runs the full three-phase algorithm of spec §4.5 over the given
// event sets. deposits, merges, and withdrawals need not be pre-sorted;
// the engine establishes chain order internally. It returns everything
// recovered so far even when it also returns a non-nil error — per spec
// §7, the recovery engine degrades to partial success rather than
// discarding progress.
func (e *Engine) Recover(deposits []types.Deposited, merges []types.MergeDeposit, withdrawals []types.Withdrawn) (Result, error) {
	active, err := e.recoverOriginalDeposits(deposits)
	if err != nil {
		return Result{Active: active}, err
	}

	byNullifierHash := make(map[field.F]int, len(active)) // nullifierHash -> index into active
	for i, d := range active {
		nh, err := commitment.NullifierHash(d.Nullifier)
		if err != nil {
			return Result{Active: active}, err
		}
		byNullifierHash[nh] = i
	}

	events := mergeChainEvents(merges, withdrawals)

	var diag Diagnostics
	removed := make(map[int]bool)

	for _, ev := range events {
		switch {
		case ev.merge != nil:
			i, ok := byNullifierHash[ev.merge.ExistingNullifierHash]
			if !ok || removed[i] {
				continue
			}
			d := active[i]
			newValue := new(big.Int).Add(d.Value, ev.merge.DepositValue)
			merged, err := traceChild(e.keys, d.Label, newValue, ev.merge.NewCommitment)
			if err != nil {
				diag.Skipped = append(diag.Skipped, SkippedEvent{
					Kind: "MergeDeposit", BlockNumber: ev.blockNumber, LogIndex: ev.logIndex, Reason: err,
				})
				return Result{Active: compact(active, removed), Diagnostics: diag}, err
			}
			merged.Label = d.Label
			merged.Value = newValue
			merged.BlockNumber = ev.blockNumber
			merged.TxHash = ev.merge.TxHash
			active[i] = merged

			delete(byNullifierHash, ev.merge.ExistingNullifierHash)
			nh, err := commitment.NullifierHash(merged.Nullifier)
			if err != nil {
				return Result{Active: compact(active, removed), Diagnostics: diag}, err
			}
			byNullifierHash[nh] = i
			diag.MergesTraversed++

		case ev.withdrawal != nil:
			i, ok := byNullifierHash[ev.withdrawal.SpentNullifier]
			if !ok || removed[i] {
				continue
			}
			d := active[i]

			fullySpent := isZero(ev.withdrawal.NewCommitment) || d.Value.Cmp(ev.withdrawal.WithdrawnValue) == 0
			if fullySpent {
				removed[i] = true
				delete(byNullifierHash, ev.withdrawal.SpentNullifier)
				diag.WithdrawalsTraversed++
				continue
			}

			remaining := new(big.Int).Sub(d.Value, ev.withdrawal.WithdrawnValue)
			changed, err := traceChild(e.keys, d.Label, remaining, ev.withdrawal.NewCommitment)
			if err != nil {
				diag.Skipped = append(diag.Skipped, SkippedEvent{
					Kind: "Withdrawn", BlockNumber: ev.blockNumber, LogIndex: ev.logIndex, Reason: err,
				})
				return Result{Active: compact(active, removed), Diagnostics: diag}, err
			}
			changed.Label = d.Label
			changed.Value = remaining
			changed.BlockNumber = ev.blockNumber
			changed.TxHash = ev.withdrawal.TxHash
			active[i] = changed

			delete(byNullifierHash, ev.withdrawal.SpentNullifier)
			nh, err := commitment.NullifierHash(changed.Nullifier)
			if err != nil {
				return Result{Active: compact(active, removed), Diagnostics: diag}, err
			}
			byNullifierHash[nh] = i
			diag.WithdrawalsTraversed++
		}
	}

	return Result{Active: compact(active, removed), Diagnostics: diag}, nil
}

// recoverOriginalDeposits implements spec §4.5 phase 1: sequentially
// derive the expected precommitment for each deposit index and match it
// against observed Deposited events, stopping after MaxConsecutiveMisses
// in a row.
func (e *Engine) recoverOriginalDeposits(deposits []types.Deposited) ([]types.ActiveDeposit, error) {
	byPrecommitment := earliestByPrecommitment(deposits)

	var active []types.ActiveDeposit
	misses := 0

	for index := uint64(0); misses < MaxConsecutiveMisses; index++ {
		pre, err := commitment.DepositSecrets(e.keys, e.scope, index)
		if err != nil {
			return active, err
		}

		ev, ok := byPrecommitment[pre.Hash]
		if !ok {
			misses++
			continue
		}
		misses = 0

		active = append(active, types.ActiveDeposit{
			Index:             index,
			Nullifier:         pre.Nullifier,
			Secret:            pre.Secret,
			PrecommitmentHash: pre.Hash,
			Value:             ev.Value,
			Label:             ev.Label,
			BlockNumber:       ev.BlockNumber,
			TxHash:            ev.TxHash,
		})
	}

	return active, nil
}

// earliestByPrecommitment indexes deposits by precommitment hash,
// keeping the chain-earliest event when the same precommitment appears
// more than once (spec §8's tie-break).
func earliestByPrecommitment(deposits []types.Deposited) map[field.F]types.Deposited {
	out := make(map[field.F]types.Deposited, len(deposits))
	for _, d := range deposits {
		existing, ok := out[d.Precommitment]
		if !ok || types.ChainOrder(d.BlockNumber, d.LogIndex, existing.BlockNumber, existing.LogIndex) {
			out[d.Precommitment] = d
		}
	}
	return out
}

// traceChild searches childIndex in [0, MaxChildIndex) for the withdrawal
// secrets that reproduce wantCommitment at the given label and new value,
// used by both merge-chain and withdrawal-change tracing (spec §4.5
// phases 2 and 3, which are the same search against a different target
// commitment and value).
func traceChild(k keys.MasterKeys, label field.F, value *big.Int, wantCommitment field.F) (types.ActiveDeposit, error) {
	for childIndex := uint64(0); childIndex < MaxChildIndex; childIndex++ {
		child, err := commitment.WithdrawalSecrets(k, label, childIndex)
		if err != nil {
			return types.ActiveDeposit{}, err
		}
		got, err := commitment.Hash(field.FromBigInt(value), label, child.Hash)
		if err != nil {
			return types.ActiveDeposit{}, err
		}
		if field.Equal(got, wantCommitment) {
			return types.ActiveDeposit{
				Index:             childIndex,
				Nullifier:         child.Nullifier,
				Secret:            child.Secret,
				PrecommitmentHash: child.Hash,
			}, nil
		}
	}
	return types.ActiveDeposit{}, poolerr.Wrap(poolerr.ErrRecoveryChildNotFound, "no child index in [0, %d) reproduces the observed commitment", MaxChildIndex)
}

func isZero(f field.F) bool {
	return field.Equal(f, field.Zero())
}

// compact drops removed indices from active, preserving order.
func compact(active []types.ActiveDeposit, removed map[int]bool) []types.ActiveDeposit {
	if len(removed) == 0 {
		return active
	}
	out := make([]types.ActiveDeposit, 0, len(active)-len(removed))
	for i, d := range active {
		if !removed[i] {
			out = append(out, d)
		}
	}
	return out
}

type chainEvent struct {
	blockNumber uint64
	logIndex    uint32
	merge       *types.MergeDeposit
	withdrawal  *types.Withdrawn
}

// mergeChainEvents interleaves merges and withdrawals into one
// (blockNumber, logIndex)-ordered timeline, so a deposit's history is
// traced in the exact order it happened on-chain regardless of which
// event kind advanced it (spec §4.5's ordering guarantee).
func mergeChainEvents(merges []types.MergeDeposit, withdrawals []types.Withdrawn) []chainEvent {
	events := make([]chainEvent, 0, len(merges)+len(withdrawals))
	for i := range merges {
		m := merges[i]
		events = append(events, chainEvent{blockNumber: m.BlockNumber, logIndex: m.LogIndex, merge: &m})
	}
	for i := range withdrawals {
		w := withdrawals[i]
		events = append(events, chainEvent{blockNumber: w.BlockNumber, logIndex: w.LogIndex, withdrawal: &w})
	}
	sort.Slice(events, func(i, j int) bool {
		return types.ChainOrder(events[i].blockNumber, events[i].logIndex, events[j].blockNumber, events[j].logIndex)
	})
	return events
}
