package asp

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/mateodaza/galeon-sub004/internal/chainfeed"
	"github.com/mateodaza/galeon-sub004/internal/field"
	"github.com/mateodaza/galeon-sub004/internal/poolerr"
)

// Publisher submits updateRoot transactions to the ASP entrypoint
// contract. Grounded on the prysm e2e Depositor's txops/SendDeposit
// pattern (bind.NewKeyedTransactorWithChainID, pending-nonce lookup,
// gas limit, a bound contract built per attempt), generalized from sending ETH2
// deposit transactions to this protocol's single nonpayable root-update
// call, and wrapped in cenkalti/backoff retries for spec §7's
// RootPublishFailed failure mode (chain congestion, transient RPC
// errors — retried with bounded exponential backoff; a contract revert
// is not retried since resubmitting an identical transaction would
// revert identically).
type Publisher struct {
	client     *ethclient.Client
	entrypoint common.Address
	key        *ecdsa.PrivateKey
	chainID    *big.Int
	gasLimit   uint64
	log        *logrus.Entry

	newBackoff func() backoff.BackOff
}

// NewPublisher returns a Publisher that signs transactions with key and
// submits them to the ASP entrypoint contract at entrypoint.
func NewPublisher(client *ethclient.Client, entrypoint common.Address, key *ecdsa.PrivateKey, chainID *big.Int, log *logrus.Entry) *Publisher {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = logrus.NewEntry(l)
	}
	return &Publisher{
		client:     client,
		entrypoint: entrypoint,
		key:        key,
		chainID:    chainID,
		gasLimit:   200_000,
		log:        log,
		newBackoff: defaultBackoff,
	}
}

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 5 * time.Minute
	return backoff.WithMaxRetries(b, 6)
}

// PublishRoot submits an updateRoot(root, "") transaction, retrying
// transient failures, and returns the accepted transaction's hash.
func (p *Publisher) PublishRoot(ctx context.Context, root field.F) (string, error) {
	var txHash string

	operation := func() error {
		txo, err := p.transactOpts(ctx)
		if err != nil {
			return backoff.Permanent(poolerr.Wrap(poolerr.ErrChainUnavailable, "build transactor: %v", err))
		}

		contract := bind.NewBoundContract(p.entrypoint, chainfeed.EntrypointABI, p.client, p.client, p.client)
		tx, err := contract.Transact(txo, "updateRoot", field.ToBigInt(root), "")
		if err != nil {
			p.log.WithError(err).Warn("updateRoot submission failed, retrying")
			return poolerr.Wrap(poolerr.ErrRootPublishFailed, "submit updateRoot: %v", err)
		}

		receipt, err := bind.WaitMined(ctx, p.client, tx)
		if err != nil {
			return poolerr.Wrap(poolerr.ErrRootPublishFailed, "wait for updateRoot receipt: %v", err)
		}
		if receipt.Status == 0 {
			return backoff.Permanent(poolerr.Wrap(poolerr.ErrRootPublishFailed, "updateRoot reverted: tx %s", tx.Hash()))
		}

		txHash = tx.Hash().Hex()
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(p.newBackoff(), ctx)); err != nil {
		return "", err
	}
	return txHash, nil
}

func (p *Publisher) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	txo, err := bind.NewKeyedTransactorWithChainID(p.key, p.chainID)
	if err != nil {
		return nil, err
	}
	txo.Context = ctx
	txo.GasLimit = p.gasLimit

	from := txo.From
	nonce, err := p.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, err
	}
	txo.Nonce = new(big.Int).SetUint64(nonce)
	return txo, nil
}
