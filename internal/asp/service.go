package asp

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mateodaza/galeon-sub004/internal/field"
	"github.com/mateodaza/galeon-sub004/internal/merkletree"
	"github.com/mateodaza/galeon-sub004/internal/poolerr"
	pooltypes "github.com/mateodaza/galeon-sub004/pkg/types"
)

// DepositSource is the slice of chainfeed.Feed the ASP service depends
// on: a read-only Deposited event scan. Kept as a narrow interface
// (rather than depending on *chainfeed.Feed directly) so the service can
// be exercised against a fake indexer in tests without a live or
// simulated Ethereum backend.
type DepositSource interface {
	FetchDeposited(ctx context.Context, fromBlock, toBlock uint64) ([]pooltypes.Deposited, error)
}

// BlocklistFunc reports whether a label must be excluded from the
// association set (spec §4.8's optional compliance hook). A nil func
// admits every label.
type BlocklistFunc func(label field.F) bool

// Service is the ASP of spec §4.8: it maintains an append-only Merkle
// tree of approved deposit labels, answers inclusion-proof queries for
// withdrawals, and publishes the tree root on-chain as it grows. Single-
// writer: every mutating method is serialized by mu, mirroring the
// teacher's internal/pouw task_queue.go single-dispatcher discipline
// generalized from a mining task queue to this service's label log.
type Service struct {
	mu sync.Mutex

	store     Store
	feed      DepositSource
	publisher *Publisher
	blocklist BlocklistFunc
	log       *logrus.Entry

	tree              *merkletree.Tree
	seen              map[field.F]bool
	lastProcessedBlock uint64
}

// NewService wires a Service from its durable store, chain event feed,
// and on-chain root publisher. publisher and blocklist may be nil: a nil
// publisher makes UpdateOnChainRoot a no-op that reports the pending
// root without submitting it (used in tests and for dry runs); a nil
// blocklist admits every label.
func NewService(store Store, feed DepositSource, publisher *Publisher, blocklist BlocklistFunc, log *logrus.Entry) *Service {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = logrus.NewEntry(l)
	}
	return &Service{
		store:     store,
		feed:      feed,
		publisher: publisher,
		blocklist: blocklist,
		log:       log,
		tree:      merkletree.New(merkletree.NewInMemoryLeafStore()),
		seen:      make(map[field.F]bool),
	}
}

// InitResult reports how Initialize populated the tree.
type InitResult struct {
	Source       string // "store" or "indexer"
	LabelsLoaded int
}

// Initialize loads the persisted label log into the in-memory tree. If
// the store is empty (first run, or recovering from a lost database) it
// falls back to a full rebuild from the chain indexer up to toBlock.
func (s *Service) Initialize(ctx context.Context, toBlock uint64) (InitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.store.Labels(ctx)
	if err != nil {
		return InitResult{}, poolerr.Wrap(poolerr.ErrChainUnavailable, "load asp store: %v", err)
	}

	if len(records) == 0 {
		n, err := s.rebuildLocked(ctx, toBlock)
		if err != nil {
			return InitResult{}, err
		}
		return InitResult{Source: "indexer", LabelsLoaded: n}, nil
	}

	for _, rec := range records {
		if err := s.insertLocked(ctx, rec, false); err != nil {
			return InitResult{}, err
		}
	}
	return InitResult{Source: "store", LabelsLoaded: len(records)}, nil
}

// ProcessResult reports one incremental scan's outcome.
type ProcessResult struct {
	NewLabels  int
	Blocked    int
	ToBlock    uint64
}

// ProcessNewDeposits scans Deposited events in
// (lastProcessedBlock, toBlock] and appends any newly approved labels —
// spec §4.8's steady-state operation, driven by the ASP daemon's poll
// loop.
func (s *Service) ProcessNewDeposits(ctx context.Context, toBlock uint64) (ProcessResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if toBlock <= s.lastProcessedBlock {
		return ProcessResult{ToBlock: s.lastProcessedBlock}, nil
	}

	deposits, err := s.feed.FetchDeposited(ctx, s.lastProcessedBlock+1, toBlock)
	if err != nil {
		return ProcessResult{}, err
	}

	result := ProcessResult{ToBlock: toBlock}
	for _, d := range deposits {
		if s.blocklist != nil && s.blocklist(d.Label) {
			result.Blocked++
			continue
		}
		rec := LabelRecord{Label: d.Label, BlockNumber: d.BlockNumber, LogIndex: d.LogIndex}
		if s.seen[rec.Label] {
			continue
		}
		if err := s.insertLocked(ctx, rec, true); err != nil {
			return ProcessResult{}, err
		}
		result.NewLabels++
	}
	s.lastProcessedBlock = toBlock
	return result, nil
}

// RebuildFromDeposits discards the in-memory tree and replays every
// Deposited event from genesis through toBlock, re-evaluating the
// blocklist against the current policy. Used for recovery when the
// local store is missing or suspected corrupt; idempotent.
func (s *Service) RebuildFromDeposits(ctx context.Context, toBlock uint64) (RebuildResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.rebuildLocked(ctx, toBlock)
	if err != nil {
		return RebuildResult{}, err
	}
	return RebuildResult{LabelsLoaded: n, ToBlock: toBlock}, nil
}

// RebuildResult reports a full rebuild's outcome.
type RebuildResult struct {
	LabelsLoaded int
	ToBlock      uint64
}

func (s *Service) rebuildLocked(ctx context.Context, toBlock uint64) (int, error) {
	if err := s.store.Reset(ctx); err != nil {
		return 0, poolerr.Wrap(poolerr.ErrChainUnavailable, "reset asp store: %v", err)
	}
	s.tree = merkletree.New(merkletree.NewInMemoryLeafStore())
	s.seen = make(map[field.F]bool)

	deposits, err := s.feed.FetchDeposited(ctx, 0, toBlock)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, d := range deposits {
		if s.blocklist != nil && s.blocklist(d.Label) {
			continue
		}
		rec := LabelRecord{Label: d.Label, BlockNumber: d.BlockNumber, LogIndex: d.LogIndex}
		if s.seen[rec.Label] {
			continue
		}
		if err := s.insertLocked(ctx, rec, true); err != nil {
			return 0, err
		}
		loaded++
	}
	s.lastProcessedBlock = toBlock
	return loaded, nil
}

// insertLocked persists rec (when persist is true — replaying an
// already-persisted record on load must not re-append it) and inserts
// its label into the in-memory tree. Callers must hold s.mu.
func (s *Service) insertLocked(ctx context.Context, rec LabelRecord, persist bool) error {
	if persist {
		if err := s.store.AppendLabel(ctx, rec); err != nil {
			return poolerr.Wrap(poolerr.ErrChainUnavailable, "persist label: %v", err)
		}
	}
	if _, err := s.tree.Insert(ctx, rec.Label); err != nil {
		return err
	}
	s.seen[rec.Label] = true
	if rec.BlockNumber > s.lastProcessedBlock {
		s.lastProcessedBlock = rec.BlockNumber
	}
	return nil
}

// GenerateProof returns the current inclusion proof for label, the ASP
// side of a withdrawal witness (spec §4.6/§4.8). Fails with
// ErrLabelNotApproved if label has never been inserted.
func (s *Service) GenerateProof(ctx context.Context, label field.F) (merkletree.Proof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.tree.IndexOf(label)
	if !ok {
		return merkletree.Proof{}, poolerr.Wrap(poolerr.ErrLabelNotApproved, "label %s", field.ToBigInt(label))
	}
	return s.tree.Proof(idx)
}

// UpdateResult reports an on-chain root publication attempt.
type UpdateResult struct {
	Published bool
	Root      field.F
	TxHash    string
}

// UpdateOnChainRoot publishes the tree's current root if it differs from
// the last published one. With a nil publisher it only reports the
// pending root without submitting a transaction.
func (s *Service) UpdateOnChainRoot(ctx context.Context) (UpdateResult, error) {
	s.mu.Lock()
	root := s.tree.Root()
	s.mu.Unlock()

	lastPublished, ok, err := s.store.LastPublishedRoot(ctx)
	if err != nil {
		return UpdateResult{}, poolerr.Wrap(poolerr.ErrChainUnavailable, "read last published root: %v", err)
	}
	if ok && field.Equal(lastPublished, root) {
		return UpdateResult{Published: false, Root: root}, nil
	}

	if s.publisher == nil {
		return UpdateResult{Published: false, Root: root}, nil
	}

	txHash, err := s.publisher.PublishRoot(ctx, root)
	if err != nil {
		return UpdateResult{}, err
	}

	if err := s.store.SetLastPublishedRoot(ctx, root); err != nil {
		return UpdateResult{}, poolerr.Wrap(poolerr.ErrChainUnavailable, "persist last published root: %v", err)
	}
	s.log.WithField("root", field.ToBigInt(root)).Info("published asp root")

	return UpdateResult{Published: true, Root: root, TxHash: txHash}, nil
}

// StatusResult is a snapshot of the service's current state, for health
// checks.
type StatusResult struct {
	Root               field.F
	Depth              uint32
	Size               uint64
	LastProcessedBlock uint64
}

// Status returns a snapshot of the service's current state.
func (s *Service) Status() StatusResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatusResult{
		Root:               s.tree.Root(),
		Depth:              s.tree.Depth(),
		Size:               s.tree.Size(),
		LastProcessedBlock: s.lastProcessedBlock,
	}
}
