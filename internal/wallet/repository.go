package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbit-pay/orbit_pay/internal/infra"
)

// ErrNotFound indicates no wallet exists for the identifier.
var ErrNotFound = errors.New("wallet not found")

// Repository persists wallet metadata.
type Repository interface {
	Create(ctx context.Context, wallet Wallet) error
	Get(ctx context.Context, id string) (Wallet, error)
	FindByOwner(ctx context.Context, ownerID string) (Wallet, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a wallet record.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet) error {
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return err
	}
	ownerID, err := uuid.Parse(wallet.OwnerID)
	if err != nil {
		return err
	}
	q := infra.QuerierFrom(ctx, r.db)
	_, err = q.Exec(ctx, `INSERT INTO wallets (id, owner_id, currency, tier, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		walletID, ownerID, wallet.Currency, wallet.Tier, wallet.Status, wallet.CreatedAt.UTC())
	return err
}

// Get fetches wallet metadata by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Wallet, error) {
	walletUUID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	q := infra.QuerierFrom(ctx, r.db)
	row := q.QueryRow(ctx, `SELECT id, owner_id, currency, tier, status, created_at
        FROM wallets WHERE id = $1`, walletUUID)
	return scanWallet(row)
}

// FindByOwner returns the owner's wallet; each user holds one wallet spanning
// both ledgers.
func (r *PostgresRepository) FindByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	ownerUUID, err := uuid.Parse(ownerID)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	q := infra.QuerierFrom(ctx, r.db)
	row := q.QueryRow(ctx, `SELECT id, owner_id, currency, tier, status, created_at
        FROM wallets WHERE owner_id = $1 ORDER BY created_at LIMIT 1`, ownerUUID)
	return scanWallet(row)
}

// UpdateStatus transitions the wallet lifecycle state.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id, status string) error {
	walletUUID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	q := infra.QuerierFrom(ctx, r.db)
	tag, err := q.Exec(ctx, `UPDATE wallets SET status = $2 WHERE id = $1`, walletUUID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	var idVal, ownerID uuid.UUID
	var createdAt time.Time
	if err := row.Scan(&idVal, &ownerID, &w.Currency, &w.Tier, &w.Status, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	w.ID = idVal.String()
	w.OwnerID = ownerID.String()
	w.CreatedAt = createdAt.UTC()
	return w, nil
}
