package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbit-pay/orbit_pay/internal/infra"
)

// PostgresStore persists versioned ledger accounts in PostgreSQL. Row-level
// FOR UPDATE locks serialize mutations per wallet/kind pair.
type PostgresStore struct {
	db            *pgxpool.Pool
	commitTimeout time.Duration
}

// NewPostgresStore constructs a Postgres-backed ledger store. commitTimeout
// bounds each atomic scope, lock waits included.
func NewPostgresStore(db *pgxpool.Pool, commitTimeout time.Duration) *PostgresStore {
	if commitTimeout <= 0 {
		commitTimeout = 5 * time.Second
	}
	return &PostgresStore{db: db, commitTimeout: commitTimeout}
}

// EnsureAccount guarantees an active account row exists for the pair.
func (s *PostgresStore) EnsureAccount(ctx context.Context, walletID string, kind Kind) error {
	q := infra.QuerierFrom(ctx, s.db)
	_, err := q.Exec(ctx, `INSERT INTO ledger_accounts (wallet_id, kind, balance, version, status, updated_at)
        VALUES ($1, $2, 0, 0, $3, NOW())
        ON CONFLICT (wallet_id, kind) DO NOTHING`, walletID, string(kind), StatusActive)
	return err
}

// Balance returns the stored balance for the pair.
func (s *PostgresStore) Balance(ctx context.Context, walletID string, kind Kind) (int64, error) {
	q := infra.QuerierFrom(ctx, s.db)
	var balance int64
	err := q.QueryRow(ctx, `SELECT balance FROM ledger_accounts WHERE wallet_id = $1 AND kind = $2`,
		walletID, string(kind)).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrWalletNotFound
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Balances returns the balance of every account held by the wallet.
func (s *PostgresStore) Balances(ctx context.Context, walletID string) (map[Kind]int64, error) {
	q := infra.QuerierFrom(ctx, s.db)
	rows, err := q.Query(ctx, `SELECT kind, balance FROM ledger_accounts WHERE wallet_id = $1`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[Kind]int64)
	for rows.Next() {
		var kind string
		var balance int64
		if err := rows.Scan(&kind, &balance); err != nil {
			return nil, err
		}
		out[Kind(kind)] = balance
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrWalletNotFound
	}
	return out, nil
}

// ApplyDelta locks the account row, validates status and sufficiency, then
// writes the new balance and bumps the row version.
func (s *PostgresStore) ApplyDelta(ctx context.Context, walletID string, kind Kind, delta int64) (int64, error) {
	q := infra.QuerierFrom(ctx, s.db)

	var balance int64
	var status string
	err := q.QueryRow(ctx, `SELECT balance, status FROM ledger_accounts
        WHERE wallet_id = $1 AND kind = $2 FOR UPDATE`, walletID, string(kind)).Scan(&balance, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrWalletNotFound
	}
	if err != nil {
		return 0, classifyStorageErr(err)
	}
	if status != StatusActive {
		return 0, ErrWalletFrozen
	}

	next := balance + delta
	if delta < 0 && next < 0 {
		return 0, ErrInsufficientFunds
	}

	if _, err := q.Exec(ctx, `UPDATE ledger_accounts
        SET balance = $3, version = version + 1, updated_at = NOW()
        WHERE wallet_id = $1 AND kind = $2`, walletID, string(kind), next); err != nil {
		return 0, classifyStorageErr(err)
	}
	return next, nil
}

// SetAccountStatus propagates a wallet status change to all of its accounts.
func (s *PostgresStore) SetAccountStatus(ctx context.Context, walletID string, status string) error {
	q := infra.QuerierFrom(ctx, s.db)
	tag, err := q.Exec(ctx, `UPDATE ledger_accounts SET status = $2, updated_at = NOW()
        WHERE wallet_id = $1`, walletID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// Atomically opens one database transaction, places it in the context and
// runs fn; everything issued through the context commits or rolls back as a
// unit. The scope is bounded by the configured commit timeout.
func (s *PostgresStore) Atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := infra.TxFrom(ctx); ok {
		// Already inside a scope; join it.
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, s.commitTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classifyStorageErr(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(infra.WithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyStorageErr(err)
	}
	return nil
}

// classifyStorageErr folds lock timeouts, deadlocks and serialization
// conflicts into ErrTransactionFailure so the orchestrator can retry once.
func classifyStorageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTransactionFailure, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03": // serialization, deadlock, lock not available
			return fmt.Errorf("%w: %v", ErrTransactionFailure, err)
		}
	}
	return err
}
