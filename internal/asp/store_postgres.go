package asp

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mateodaza/galeon-sub004/internal/field"
	"github.com/mateodaza/galeon-sub004/internal/poolerr"
)

// PostgresStore is the durable Store backing the ASP daemon, grounded on
// the teacher's internal/storage/postgres.go PostgresStore (pgxpool
// connection, Config/DefaultConfig, query-per-method shape). The schema
// it targets is far smaller than the teacher's block/transaction/DAG
// tables: one append-only log of approved labels plus a singleton row
// for the last published root, matching spec §6's "minimal persisted
// form" for the ASP.
//
// Expected schema:
//
//	CREATE TABLE asp_labels (
//	    label        BYTEA PRIMARY KEY,
//	    block_number BIGINT NOT NULL,
//	    log_index    INTEGER NOT NULL,
//	    inserted_at  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE TABLE asp_published_root (
//	    id   BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
//	    root BYTEA NOT NULL
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds connection parameters for the ASP's database.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// DefaultPostgresConfig returns sane local-development defaults.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "asp",
		Database: "asp",
		SSLMode:  "disable",
		MaxConns: 10,
	}
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(ctx context.Context, cfg *PostgresConfig) (*PostgresStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, cfg.MaxConns,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, poolerr.Wrap(poolerr.ErrChainUnavailable, "open asp database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, poolerr.Wrap(poolerr.ErrChainUnavailable, "ping asp database: %v", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) AppendLabel(ctx context.Context, rec LabelRecord) error {
	b := field.ToBytes32(rec.Label)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO asp_labels (label, block_number, log_index) VALUES ($1, $2, $3)
		 ON CONFLICT (label) DO NOTHING`,
		b[:], rec.BlockNumber, rec.LogIndex,
	)
	if err != nil {
		return fmt.Errorf("insert asp label: %w", err)
	}
	return nil
}

func (s *PostgresStore) Labels(ctx context.Context) ([]LabelRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT label, block_number, log_index FROM asp_labels
		 ORDER BY block_number ASC, log_index ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query asp labels: %w", err)
	}
	defer rows.Close()

	var out []LabelRecord
	for rows.Next() {
		var labelBytes []byte
		var rec LabelRecord
		if err := rows.Scan(&labelBytes, &rec.BlockNumber, &rec.LogIndex); err != nil {
			return nil, fmt.Errorf("scan asp label: %w", err)
		}
		var b field.Bytes32
		copy(b[:], labelBytes)
		rec.Label = field.FromBytes32(b)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE asp_labels`); err != nil {
		return fmt.Errorf("truncate asp_labels: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM asp_published_root`); err != nil {
		return fmt.Errorf("clear asp_published_root: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) LastPublishedRoot(ctx context.Context) (field.F, bool, error) {
	var rootBytes []byte
	err := s.pool.QueryRow(ctx, `SELECT root FROM asp_published_root WHERE id = TRUE`).Scan(&rootBytes)
	if err == pgx.ErrNoRows {
		return field.Zero(), false, nil
	}
	if err != nil {
		return field.Zero(), false, fmt.Errorf("query last published root: %w", err)
	}
	var b field.Bytes32
	copy(b[:], rootBytes)
	return field.FromBytes32(b), true, nil
}

func (s *PostgresStore) SetLastPublishedRoot(ctx context.Context, root field.F) error {
	b := field.ToBytes32(root)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO asp_published_root (id, root) VALUES (TRUE, $1)
		 ON CONFLICT (id) DO UPDATE SET root = EXCLUDED.root`,
		b[:],
	)
	if err != nil {
		return fmt.Errorf("upsert last published root: %w", err)
	}
	return nil
}
