package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbit-pay/orbit_pay/internal/infra"
	"github.com/orbit-pay/orbit_pay/internal/ledger"
)

// ErrRecordNotFound indicates no transfer exists for the identifier or key.
var ErrRecordNotFound = errors.New("transfer record not found")

// Repository persists transfer records. Transition is the only mutation and
// enforces the state machine with compare-and-set semantics; it participates
// in an ambient atomic scope when one is present on the context.
type Repository interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	FindByIdempotencyKey(ctx context.Context, key string) (Record, error)
	Transition(ctx context.Context, id string, from, to Status, completedAt *time.Time, failureReason string) (bool, error)
	History(ctx context.Context, walletID string, limit int) ([]Record, error)

	// SpentSince implements limits.UsageSource over completed outgoing
	// transfers attributed by completion timestamp.
	SpentSince(ctx context.Context, walletID string, p2pOnly bool, since time.Time) (int64, error)
}

// PostgresRepository stores transfer records in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const transferColumns = `id, kind, source_wallet_id, dest_wallet_id, source_ledger, dest_ledger,
        amount, fee, status, COALESCE(idempotency_key, ''), note, failure_reason, created_at, completed_at`

// Create inserts the pending record.
func (r *PostgresRepository) Create(ctx context.Context, rec Record) error {
	q := infra.QuerierFrom(ctx, r.db)
	var key any
	if rec.IdempotencyKey != "" {
		key = rec.IdempotencyKey
	}
	_, err := q.Exec(ctx, `INSERT INTO transfers
        (id, kind, source_wallet_id, dest_wallet_id, source_ledger, dest_ledger,
         amount, fee, status, idempotency_key, note, failure_reason, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, '', $12)`,
		rec.ID, string(rec.Kind), rec.SourceWalletID, rec.DestWalletID,
		string(rec.SourceLedger), string(rec.DestLedger),
		rec.Amount, rec.Fee, string(rec.Status), key, rec.Note, rec.CreatedAt.UTC())
	return err
}

// Get fetches a record by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, ErrRecordNotFound
	}
	q := infra.QuerierFrom(ctx, r.db)
	row := q.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1`, id)
	return scanRecord(row)
}

// FindByIdempotencyKey fetches the record created under the key, if any.
func (r *PostgresRepository) FindByIdempotencyKey(ctx context.Context, key string) (Record, error) {
	q := infra.QuerierFrom(ctx, r.db)
	row := q.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE idempotency_key = $1`, key)
	return scanRecord(row)
}

// Transition moves the record from one status to another; it reports false
// without error when the record is no longer in the expected state.
func (r *PostgresRepository) Transition(ctx context.Context, id string, from, to Status, completedAt *time.Time, failureReason string) (bool, error) {
	q := infra.QuerierFrom(ctx, r.db)
	tag, err := q.Exec(ctx, `UPDATE transfers
        SET status = $3, completed_at = $4, failure_reason = $5
        WHERE id = $1 AND status = $2`,
		id, string(from), string(to), completedAt, failureReason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// History lists transfers touching the wallet, newest first.
func (r *PostgresRepository) History(ctx context.Context, walletID string, limit int) ([]Record, error) {
	q := infra.QuerierFrom(ctx, r.db)
	rows, err := q.Query(ctx, `SELECT `+transferColumns+` FROM transfers
        WHERE source_wallet_id = $1 OR dest_wallet_id = $1
        ORDER BY created_at DESC LIMIT $2`, walletID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SpentSince sums completed outgoing transfer amounts attributed to the
// window by completion timestamp.
func (r *PostgresRepository) SpentSince(ctx context.Context, walletID string, p2pOnly bool, since time.Time) (int64, error) {
	q := infra.QuerierFrom(ctx, r.db)
	query := `SELECT COALESCE(SUM(amount), 0) FROM transfers
        WHERE source_wallet_id = $1 AND status = 'completed' AND completed_at >= $2`
	args := []any{walletID, since.UTC()}
	if p2pOnly {
		query += ` AND kind = $3`
		args = append(args, string(KindP2P))
	}
	var total int64
	if err := q.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var kind, sourceLedger, destLedger, status string
	var createdAt time.Time
	var completedAt *time.Time
	if err := row.Scan(&rec.ID, &kind, &rec.SourceWalletID, &rec.DestWalletID,
		&sourceLedger, &destLedger, &rec.Amount, &rec.Fee, &status,
		&rec.IdempotencyKey, &rec.Note, &rec.FailureReason, &createdAt, &completedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	rec.Kind = Kind(kind)
	rec.SourceLedger = ledger.Kind(sourceLedger)
	rec.DestLedger = ledger.Kind(destLedger)
	rec.Status = Status(status)
	rec.CreatedAt = createdAt.UTC()
	if completedAt != nil {
		utc := completedAt.UTC()
		rec.CompletedAt = &utc
	}
	return rec, nil
}
