package asp

import (
	"context"
	"math/big"
	"testing"

	"github.com/mateodaza/galeon-sub004/internal/field"
	pooltypes "github.com/mateodaza/galeon-sub004/pkg/types"
)

// fakeFeed is a DepositSource fed from a fixed, in-memory event list, so
// the service can be exercised without a live or simulated Ethereum
// backend.
type fakeFeed struct {
	deposits []pooltypes.Deposited
}

func (f *fakeFeed) FetchDeposited(_ context.Context, fromBlock, toBlock uint64) ([]pooltypes.Deposited, error) {
	var out []pooltypes.Deposited
	for _, d := range f.deposits {
		if d.BlockNumber >= fromBlock && d.BlockNumber <= toBlock {
			out = append(out, d)
		}
	}
	return out, nil
}

func depositAt(label uint64, block uint64) pooltypes.Deposited {
	return pooltypes.Deposited{
		Commitment:  field.FromUint64(label * 1000),
		Label:       field.FromUint64(label),
		Value:       big.NewInt(100),
		BlockNumber: block,
		LogIndex:    0,
	}
}

func TestInitializeRebuildsFromIndexerWhenStoreEmpty(t *testing.T) {
	feed := &fakeFeed{deposits: []pooltypes.Deposited{
		depositAt(1, 10),
		depositAt(2, 20),
		depositAt(3, 30),
	}}
	svc := NewService(NewInMemoryStore(), feed, nil, nil, nil)

	res, err := svc.Initialize(context.Background(), 30)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if res.Source != "indexer" || res.LabelsLoaded != 3 {
		t.Fatalf("unexpected init result: %+v", res)
	}
	if svc.Status().Size != 3 {
		t.Fatalf("expected 3 leaves, got %d", svc.Status().Size)
	}
}

func TestInitializeLoadsFromStoreWhenPresent(t *testing.T) {
	store := NewInMemoryStore()
	_ = store.AppendLabel(context.Background(), LabelRecord{Label: field.FromUint64(1), BlockNumber: 10})
	_ = store.AppendLabel(context.Background(), LabelRecord{Label: field.FromUint64(2), BlockNumber: 20})

	svc := NewService(store, &fakeFeed{}, nil, nil, nil)
	res, err := svc.Initialize(context.Background(), 20)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if res.Source != "store" || res.LabelsLoaded != 2 {
		t.Fatalf("unexpected init result: %+v", res)
	}
}

func TestProcessNewDepositsAppendsOnlyNewLabels(t *testing.T) {
	feed := &fakeFeed{}
	svc := NewService(NewInMemoryStore(), feed, nil, nil, nil)

	if _, err := svc.Initialize(context.Background(), 0); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	feed.deposits = []pooltypes.Deposited{depositAt(1, 5)}
	res, err := svc.ProcessNewDeposits(context.Background(), 5)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.NewLabels != 1 {
		t.Fatalf("expected 1 new label, got %d", res.NewLabels)
	}

	// A second scan up to the same block must not re-append the label or
	// re-fetch anything new.
	res2, err := svc.ProcessNewDeposits(context.Background(), 5)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res2.NewLabels != 0 {
		t.Fatalf("expected idempotent rescan to add nothing, got %d", res2.NewLabels)
	}
}

func TestProcessNewDepositsRespectsBlocklist(t *testing.T) {
	blocked := field.FromUint64(666)
	feed := &fakeFeed{deposits: []pooltypes.Deposited{
		{Label: blocked, Value: big.NewInt(1), BlockNumber: 1},
		depositAt(2, 2),
	}}
	svc := NewService(NewInMemoryStore(), feed, nil, func(l field.F) bool {
		return field.Equal(l, blocked)
	}, nil)

	if _, err := svc.Initialize(context.Background(), 0); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	res, err := svc.ProcessNewDeposits(context.Background(), 2)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.NewLabels != 1 || res.Blocked != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, err := svc.GenerateProof(context.Background(), blocked); err == nil {
		t.Fatal("expected blocked label to have no proof")
	}
}

func TestGenerateProofRoundTrips(t *testing.T) {
	feed := &fakeFeed{deposits: []pooltypes.Deposited{depositAt(1, 1), depositAt(2, 2)}}
	svc := NewService(NewInMemoryStore(), feed, nil, nil, nil)
	if _, err := svc.Initialize(context.Background(), 2); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	proof, err := svc.GenerateProof(context.Background(), field.FromUint64(2))
	if err != nil {
		t.Fatalf("generate proof: %v", err)
	}
	if proof.Root != svc.Status().Root {
		t.Fatal("proof root does not match current tree root")
	}
}

func TestRebuildFromDepositsReevaluatesBlocklist(t *testing.T) {
	toBlock := field.FromUint64(42)
	feed := &fakeFeed{deposits: []pooltypes.Deposited{
		{Label: toBlock, Value: big.NewInt(1), BlockNumber: 1},
		depositAt(2, 2),
	}}

	svc := NewService(NewInMemoryStore(), feed, nil, nil, nil)
	if _, err := svc.Initialize(context.Background(), 2); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if svc.Status().Size != 2 {
		t.Fatalf("expected 2 labels before rebuild, got %d", svc.Status().Size)
	}

	svc.blocklist = func(l field.F) bool { return field.Equal(l, toBlock) }
	res, err := svc.RebuildFromDeposits(context.Background(), 2)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if res.LabelsLoaded != 1 {
		t.Fatalf("expected rebuild to load 1 label after blocklisting, got %d", res.LabelsLoaded)
	}
}

func TestUpdateOnChainRootWithoutPublisherIsDryRun(t *testing.T) {
	feed := &fakeFeed{deposits: []pooltypes.Deposited{depositAt(1, 1)}}
	svc := NewService(NewInMemoryStore(), feed, nil, nil, nil)
	if _, err := svc.Initialize(context.Background(), 1); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	res, err := svc.UpdateOnChainRoot(context.Background())
	if err != nil {
		t.Fatalf("update root: %v", err)
	}
	if res.Published {
		t.Fatal("expected dry-run update to report not published")
	}
	if field.Equal(res.Root, field.Zero()) {
		t.Fatal("expected a non-zero pending root")
	}
}
