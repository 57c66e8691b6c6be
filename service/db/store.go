package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fishnet-hq/paygate/service/metrics"
	"github.com/fishnet-hq/paygate/service/payment"
)

// Store provides database operations for the transaction ledger.
// It wraps a pgx connection pool; the signature column is the primary key,
// so a settled payment can be recorded at most once.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// The metrics parameter may be nil.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// schema is applied idempotently at startup. Amounts are stored as decimal
// strings of raw smallest units so no row ever holds a float.
const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	signature         TEXT PRIMARY KEY,
	dataset_id        TEXT NOT NULL,
	dataset_name      TEXT NOT NULL,
	signer            TEXT NOT NULL,
	seller            TEXT NOT NULL,
	currency          TEXT NOT NULL,
	amount            TEXT NOT NULL,
	ts                TIMESTAMPTZ NOT NULL,
	permission_hashes TEXT[] NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_transactions_signer ON transactions (signer);
CREATE INDEX IF NOT EXISTS idx_transactions_seller ON transactions (seller);
`

// EnsureSchema creates the ledger table and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure ledger schema: %w", err)
	}
	return nil
}

// RecordTransaction inserts a verified transaction into the ledger.
// Inserting a signature that already exists returns payment.ErrLedgerConflict.
func (s *Store) RecordTransaction(ctx context.Context, txn *payment.Transaction) error {
	start := time.Now()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO transactions
			(signature, dataset_id, dataset_name, signer, seller, currency, amount, ts, permission_hashes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		txn.Signature,
		txn.DatasetID,
		txn.DatasetName,
		txn.Signer,
		txn.Seller,
		txn.Currency,
		txn.Amount,
		txn.Timestamp,
		txn.PermissionHashes,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			s.record("record_transaction", "conflict", start)
			return fmt.Errorf("%w: signature %s", payment.ErrLedgerConflict, txn.Signature)
		}
		s.record("record_transaction", "error", start)
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	s.record("record_transaction", "success", start)
	return nil
}

// ListTransactionsBySigner returns all ledger rows where the address paid,
// most recent first.
func (s *Store) ListTransactionsBySigner(ctx context.Context, address string) ([]*payment.Transaction, error) {
	return s.list(ctx, "list_by_signer", `
		SELECT signature, dataset_id, dataset_name, signer, seller, currency, amount, ts, permission_hashes
		FROM transactions
		WHERE signer = $1
		ORDER BY ts DESC`, address)
}

// ListTransactionsBySeller returns all ledger rows where the address was paid,
// most recent first.
func (s *Store) ListTransactionsBySeller(ctx context.Context, address string) ([]*payment.Transaction, error) {
	return s.list(ctx, "list_by_seller", `
		SELECT signature, dataset_id, dataset_name, signer, seller, currency, amount, ts, permission_hashes
		FROM transactions
		WHERE seller = $1
		ORDER BY ts DESC`, address)
}

func (s *Store) list(ctx context.Context, operation, query, address string) ([]*payment.Transaction, error) {
	start := time.Now()

	rows, err := s.pool.Query(ctx, query, address)
	if err != nil {
		s.record(operation, "error", start)
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txns := make([]*payment.Transaction, 0)
	for rows.Next() {
		var txn payment.Transaction
		if err := rows.Scan(
			&txn.Signature,
			&txn.DatasetID,
			&txn.DatasetName,
			&txn.Signer,
			&txn.Seller,
			&txn.Currency,
			&txn.Amount,
			&txn.Timestamp,
			&txn.PermissionHashes,
		); err != nil {
			s.record(operation, "error", start)
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		txns = append(txns, &txn)
	}
	if err := rows.Err(); err != nil {
		s.record(operation, "error", start)
		return nil, fmt.Errorf("failed to iterate transaction rows: %w", err)
	}

	s.record(operation, "success", start)
	return txns, nil
}

// GetTransaction retrieves a single ledger row by signature.
func (s *Store) GetTransaction(ctx context.Context, signature string) (*payment.Transaction, error) {
	start := time.Now()

	var txn payment.Transaction
	err := s.pool.QueryRow(ctx, `
		SELECT signature, dataset_id, dataset_name, signer, seller, currency, amount, ts, permission_hashes
		FROM transactions
		WHERE signature = $1`, signature,
	).Scan(
		&txn.Signature,
		&txn.DatasetID,
		&txn.DatasetName,
		&txn.Signer,
		&txn.Seller,
		&txn.Currency,
		&txn.Amount,
		&txn.Timestamp,
		&txn.PermissionHashes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.record("get_transaction", "not_found", start)
			return nil, fmt.Errorf("transaction %s not found", signature)
		}
		s.record("get_transaction", "error", start)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	s.record("get_transaction", "success", start)
	return &txn, nil
}

func (s *Store) record(operation, status string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordDBOperation(operation, status, time.Since(start).Seconds())
	}
}
