// aspd runs the Association Set Provider: it watches a privacy pool's
// Deposited events, maintains the approved-label Merkle tree, and
// publishes its root to the ASP entrypoint contract.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/mateodaza/galeon-sub004/internal/asp"
	"github.com/mateodaza/galeon-sub004/internal/chainfeed"
	hexutil "github.com/mateodaza/galeon-sub004/pkg/common"
)

const version = "0.1.0"

const banner = `
    ___    _____ ____
   /   |  / ___// __ \
  / /| |  \__ \/ /_/ /
 / ___ | ___/ / ____/
/_/  |_|/____/_/

  aspd v%s - Association Set Provider
`

// Config holds the daemon's runtime configuration.
type Config struct {
	RPCURL             string
	PoolAddress        string
	EntrypointAddress  string
	SignerKeyHex       string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	UseMemory  bool

	PollInterval time.Duration
	LogLevel     string
}

func main() {
	cfg := parseFlags()
	fmt.Printf(banner, version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nshutting down...")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.RPCURL, "rpc-url", "http://localhost:8545", "Ethereum JSON-RPC endpoint")
	flag.StringVar(&cfg.PoolAddress, "pool", "", "privacy pool contract address")
	flag.StringVar(&cfg.EntrypointAddress, "entrypoint", "", "ASP entrypoint contract address")
	flag.StringVar(&cfg.SignerKeyHex, "signer-key", "", "hex-encoded private key for root-publication transactions (empty: dry run, no on-chain submission)")

	flag.StringVar(&cfg.DBHost, "db-host", "localhost", "PostgreSQL host")
	flag.IntVar(&cfg.DBPort, "db-port", 5432, "PostgreSQL port")
	flag.StringVar(&cfg.DBUser, "db-user", "asp", "PostgreSQL user")
	flag.StringVar(&cfg.DBPassword, "db-password", "", "PostgreSQL password")
	flag.StringVar(&cfg.DBName, "db-name", "asp", "PostgreSQL database name")
	flag.BoolVar(&cfg.UseMemory, "memory", false, "use an in-memory store instead of Postgres (dev/test only, not durable)")

	flag.DurationVar(&cfg.PollInterval, "poll-interval", 30*time.Second, "chain poll interval")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")

	flag.Parse()
	return cfg
}

func run(ctx context.Context, cfg *Config) error {
	log := newLogger(cfg.LogLevel)

	if cfg.PoolAddress == "" || cfg.EntrypointAddress == "" {
		return fmt.Errorf("both -pool and -entrypoint addresses are required")
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}

	feed := chainfeed.New(client, common.HexToAddress(cfg.PoolAddress))

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if closer, ok := store.(*asp.PostgresStore); ok {
		defer closer.Close()
	}

	publisher, err := openPublisher(client, cfg, log)
	if err != nil {
		return err
	}
	if publisher == nil {
		log.Warn("no -signer-key configured: running in dry-run mode, roots will not be published on-chain")
	}

	service := asp.NewService(store, feed, publisher, nil, log.WithField("component", "asp"))

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("read chain head: %w", err)
	}
	initRes, err := service.Initialize(ctx, head)
	if err != nil {
		return fmt.Errorf("initialize asp service: %w", err)
	}
	log.WithFields(logrus.Fields{"source": initRes.Source, "labels": initRes.LabelsLoaded}).Info("asp service initialized")

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("stopped")
			return nil
		case <-ticker.C:
			if err := pollOnce(ctx, client, service, log); err != nil {
				log.WithError(err).Error("poll iteration failed")
			}
		}
	}
}

func pollOnce(ctx context.Context, client *ethclient.Client, service *asp.Service, log *logrus.Entry) error {
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("read chain head: %w", err)
	}

	processRes, err := service.ProcessNewDeposits(ctx, head)
	if err != nil {
		return fmt.Errorf("process new deposits: %w", err)
	}
	if processRes.NewLabels > 0 {
		log.WithFields(logrus.Fields{"new_labels": processRes.NewLabels, "blocked": processRes.Blocked, "to_block": head}).Info("processed new deposits")
	}

	updateRes, err := service.UpdateOnChainRoot(ctx)
	if err != nil {
		return fmt.Errorf("update on-chain root: %w", err)
	}
	if updateRes.Published {
		log.WithFields(logrus.Fields{"tx": updateRes.TxHash}).Info("published new asp root")
	}
	return nil
}

func openStore(ctx context.Context, cfg *Config) (asp.Store, error) {
	if cfg.UseMemory {
		return asp.NewInMemoryStore(), nil
	}
	store, err := asp.NewPostgresStore(ctx, &asp.PostgresConfig{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  "disable",
		MaxConns: 10,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to asp database: %w", err)
	}
	return store, nil
}

func openPublisher(client *ethclient.Client, cfg *Config, log *logrus.Entry) (*asp.Publisher, error) {
	if cfg.SignerKeyHex == "" {
		return nil, nil
	}
	keyBytes, err := hexutil.HexToBytes(cfg.SignerKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	key, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	chainID, err := client.ChainID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	return asp.NewPublisher(client, common.HexToAddress(cfg.EntrypointAddress), key, chainID, log.WithField("component", "publisher")), nil
}

func newLogger(level string) *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)
	return logrus.NewEntry(l)
}
