package chainfeed

import (
	"context"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mateodaza/galeon-sub004/internal/field"
	"github.com/mateodaza/galeon-sub004/internal/poolerr"
	pooltypes "github.com/mateodaza/galeon-sub004/pkg/types"
)

// Feed reads events and views from one pool contract over an Ethereum
// JSON-RPC client.
type Feed struct {
	client  *ethclient.Client
	pool    common.Address
	contract *bind.BoundContract
}

// New returns a Feed bound to the pool contract at pool.
func New(client *ethclient.Client, pool common.Address) *Feed {
	return &Feed{
		client:   client,
		pool:     pool,
		contract: bind.NewBoundContract(pool, PoolABI, client, client, client),
	}
}

// Scope returns the pool's SCOPE() view, the field element all derived
// keys for this pool are bound to.
func (f *Feed) Scope(ctx context.Context) (field.F, error) {
	var out []interface{}
	err := f.contract.Call(&bind.CallOpts{Context: ctx}, &out, "SCOPE")
	if err != nil {
		return field.Zero(), poolerr.Wrap(poolerr.ErrChainUnavailable, "SCOPE(): %v", err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return field.Zero(), poolerr.Wrap(poolerr.ErrChainUnavailable, "SCOPE(): unexpected return type")
	}
	return field.FromBigInt(v), nil
}

// CurrentRoot returns the pool's on-chain state tree root, depth, and size.
func (f *Feed) CurrentRoot(ctx context.Context) (root field.F, depth uint32, size uint64, err error) {
	opts := &bind.CallOpts{Context: ctx}

	rootOut, err := f.callUint256(opts, "currentRoot")
	if err != nil {
		return field.Zero(), 0, 0, err
	}
	depthOut, err := f.callUint256(opts, "currentTreeDepth")
	if err != nil {
		return field.Zero(), 0, 0, err
	}
	sizeOut, err := f.callUint256(opts, "currentTreeSize")
	if err != nil {
		return field.Zero(), 0, 0, err
	}

	return field.FromBigInt(rootOut), uint32(depthOut.Uint64()), sizeOut.Uint64(), nil
}

func (f *Feed) callUint256(opts *bind.CallOpts, method string) (*big.Int, error) {
	var out []interface{}
	if err := f.contract.Call(opts, &out, method); err != nil {
		return nil, poolerr.Wrap(poolerr.ErrChainUnavailable, "%s(): %v", method, err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, poolerr.Wrap(poolerr.ErrChainUnavailable, "%s(): unexpected return type", method)
	}
	return v, nil
}

// FetchDeposited returns every Deposited event in [fromBlock, toBlock].
func (f *Feed) FetchDeposited(ctx context.Context, fromBlock, toBlock uint64) ([]pooltypes.Deposited, error) {
	logs, err := f.filterLogs(ctx, fromBlock, toBlock, "Deposited")
	if err != nil {
		return nil, err
	}

	out := make([]pooltypes.Deposited, 0, len(logs))
	for _, log := range logs {
		var decoded struct {
			Commitment    *big.Int
			Label         *big.Int
			Value         *big.Int
			Precommitment *big.Int
		}
		if err := PoolABI.UnpackIntoInterface(&decoded, "Deposited", log.Data); err != nil {
			return nil, poolerr.Wrap(poolerr.ErrChainUnavailable, "decode Deposited: %v", err)
		}
		if len(log.Topics) < 3 {
			return nil, poolerr.Wrap(poolerr.ErrChainUnavailable, "Deposited log missing indexed topics")
		}

		out = append(out, pooltypes.Deposited{
			Depositor:     common.HexToAddress(log.Topics[1].Hex()),
			Pool:          common.HexToAddress(log.Topics[2].Hex()),
			Commitment:    field.FromBigInt(decoded.Commitment),
			Label:         field.FromBigInt(decoded.Label),
			Value:         decoded.Value,
			Precommitment: field.FromBigInt(decoded.Precommitment),
			BlockNumber:   log.BlockNumber,
			LogIndex:      uint32(log.Index),
			TxHash:        log.TxHash,
		})
	}
	return out, nil
}

// FetchMergeDeposits returns every MergeDeposit event in [fromBlock, toBlock].
func (f *Feed) FetchMergeDeposits(ctx context.Context, fromBlock, toBlock uint64) ([]pooltypes.MergeDeposit, error) {
	logs, err := f.filterLogs(ctx, fromBlock, toBlock, "MergeDeposit")
	if err != nil {
		return nil, err
	}

	out := make([]pooltypes.MergeDeposit, 0, len(logs))
	for _, log := range logs {
		var decoded struct {
			ExistingNullifierHash *big.Int
			NewCommitment         *big.Int
			DepositValue          *big.Int
		}
		if err := PoolABI.UnpackIntoInterface(&decoded, "MergeDeposit", log.Data); err != nil {
			return nil, poolerr.Wrap(poolerr.ErrChainUnavailable, "decode MergeDeposit: %v", err)
		}

		out = append(out, pooltypes.MergeDeposit{
			ExistingNullifierHash: field.FromBigInt(decoded.ExistingNullifierHash),
			NewCommitment:         field.FromBigInt(decoded.NewCommitment),
			DepositValue:          decoded.DepositValue,
			BlockNumber:           log.BlockNumber,
			LogIndex:              uint32(log.Index),
			TxHash:                log.TxHash,
		})
	}
	return out, nil
}

// FetchWithdrawn returns every Withdrawn event in [fromBlock, toBlock].
func (f *Feed) FetchWithdrawn(ctx context.Context, fromBlock, toBlock uint64) ([]pooltypes.Withdrawn, error) {
	logs, err := f.filterLogs(ctx, fromBlock, toBlock, "Withdrawn")
	if err != nil {
		return nil, err
	}

	out := make([]pooltypes.Withdrawn, 0, len(logs))
	for _, log := range logs {
		var decoded struct {
			Value          *big.Int
			SpentNullifier *big.Int
			NewCommitment  *big.Int
		}
		if err := PoolABI.UnpackIntoInterface(&decoded, "Withdrawn", log.Data); err != nil {
			return nil, poolerr.Wrap(poolerr.ErrChainUnavailable, "decode Withdrawn: %v", err)
		}

		out = append(out, pooltypes.Withdrawn{
			SpentNullifier: field.FromBigInt(decoded.SpentNullifier),
			WithdrawnValue: decoded.Value,
			NewCommitment:  field.FromBigInt(decoded.NewCommitment),
			BlockNumber:    log.BlockNumber,
			LogIndex:       uint32(log.Index),
			TxHash:         log.TxHash,
		})
	}
	return out, nil
}

func (f *Feed) filterLogs(ctx context.Context, fromBlock, toBlock uint64, event string) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{f.pool},
		Topics:    [][]common.Hash{{PoolABI.Events[event].ID}},
	}

	logs, err := f.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, poolerr.Wrap(poolerr.ErrChainUnavailable, "filter %s logs: %v", event, err)
	}
	return logs, nil
}
