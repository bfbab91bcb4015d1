// Package bridge moves funds between a wallet's primary and custodial ledgers:
// fee estimates for explicit moves and a threshold monitor that rebalances
// wallets toward their preferred ledger automatically.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbit-pay/orbit_pay/internal/infra"
	"github.com/orbit-pay/orbit_pay/internal/ledger"
)

// ErrPreferenceNotFound is returned when a wallet has no link preference row.
var ErrPreferenceNotFound = errors.New("bridge preference not found")

// LinkPreference configures auto-bridging for one wallet. PreferredLedger is
// where the owner wants funds concentrated; the monitor drains the other
// ledger once it climbs past Threshold. Amounts are integer minor units.
type LinkPreference struct {
	WalletID        string
	AutoBridge      bool
	PreferredLedger ledger.Kind
	Threshold       int64
	MinBridgeAmount int64
	MaxBridgeAmount int64
	UpdatedAt       time.Time
}

// PreferenceRepository stores wallet link preferences.
type PreferenceRepository interface {
	Upsert(ctx context.Context, pref LinkPreference) error
	Get(ctx context.Context, walletID string) (LinkPreference, error)
	// ListEnabled returns every preference with auto-bridge switched on.
	ListEnabled(ctx context.Context) ([]LinkPreference, error)
}

// PostgresPreferenceRepository persists preferences in Postgres.
type PostgresPreferenceRepository struct {
	db *pgxpool.Pool
}

// NewPostgresPreferenceRepository creates a Postgres-backed repository.
func NewPostgresPreferenceRepository(db *pgxpool.Pool) *PostgresPreferenceRepository {
	return &PostgresPreferenceRepository{db: db}
}

// Upsert inserts or replaces the wallet's preference row.
func (r *PostgresPreferenceRepository) Upsert(ctx context.Context, pref LinkPreference) error {
	q := infra.QuerierFrom(ctx, r.db)
	_, err := q.Exec(ctx, `
		INSERT INTO wallet_link_preferences
			(wallet_id, auto_bridge_enabled, preferred_ledger, bridge_threshold, min_bridge_amount, max_bridge_amount, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (wallet_id) DO UPDATE SET
			auto_bridge_enabled = EXCLUDED.auto_bridge_enabled,
			preferred_ledger = EXCLUDED.preferred_ledger,
			bridge_threshold = EXCLUDED.bridge_threshold,
			min_bridge_amount = EXCLUDED.min_bridge_amount,
			max_bridge_amount = EXCLUDED.max_bridge_amount,
			updated_at = now()
	`, pref.WalletID, pref.AutoBridge, string(pref.PreferredLedger), pref.Threshold, pref.MinBridgeAmount, pref.MaxBridgeAmount)
	return err
}

// Get fetches the wallet's preference.
func (r *PostgresPreferenceRepository) Get(ctx context.Context, walletID string) (LinkPreference, error) {
	q := infra.QuerierFrom(ctx, r.db)
	row := q.QueryRow(ctx, `
		SELECT wallet_id, auto_bridge_enabled, preferred_ledger, bridge_threshold, min_bridge_amount, max_bridge_amount, updated_at
		FROM wallet_link_preferences
		WHERE wallet_id = $1
	`, walletID)
	return scanPreference(row)
}

// ListEnabled returns all preferences with auto-bridge enabled.
func (r *PostgresPreferenceRepository) ListEnabled(ctx context.Context) ([]LinkPreference, error) {
	q := infra.QuerierFrom(ctx, r.db)
	rows, err := q.Query(ctx, `
		SELECT wallet_id, auto_bridge_enabled, preferred_ledger, bridge_threshold, min_bridge_amount, max_bridge_amount, updated_at
		FROM wallet_link_preferences
		WHERE auto_bridge_enabled = true
		ORDER BY wallet_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prefs []LinkPreference
	for rows.Next() {
		pref, err := scanPreference(rows)
		if err != nil {
			return nil, err
		}
		prefs = append(prefs, pref)
	}
	return prefs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPreference(row rowScanner) (LinkPreference, error) {
	var pref LinkPreference
	var preferred string
	err := row.Scan(&pref.WalletID, &pref.AutoBridge, &preferred, &pref.Threshold, &pref.MinBridgeAmount, &pref.MaxBridgeAmount, &pref.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LinkPreference{}, ErrPreferenceNotFound
		}
		return LinkPreference{}, err
	}
	pref.PreferredLedger = ledger.Kind(preferred)
	return pref, nil
}

// MemoryPreferenceRepository is the in-memory repository used in dev and tests.
type MemoryPreferenceRepository struct {
	mu    sync.RWMutex
	prefs map[string]LinkPreference
}

// NewMemoryPreferenceRepository creates an empty in-memory repository.
func NewMemoryPreferenceRepository() *MemoryPreferenceRepository {
	return &MemoryPreferenceRepository{prefs: make(map[string]LinkPreference)}
}

// Upsert stores the preference.
func (r *MemoryPreferenceRepository) Upsert(_ context.Context, pref LinkPreference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pref.UpdatedAt = time.Now().UTC()
	r.prefs[pref.WalletID] = pref
	return nil
}

// Get fetches the wallet's preference.
func (r *MemoryPreferenceRepository) Get(_ context.Context, walletID string) (LinkPreference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pref, ok := r.prefs[walletID]
	if !ok {
		return LinkPreference{}, ErrPreferenceNotFound
	}
	return pref, nil
}

// ListEnabled returns all preferences with auto-bridge enabled.
func (r *MemoryPreferenceRepository) ListEnabled(_ context.Context) ([]LinkPreference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var prefs []LinkPreference
	for _, pref := range r.prefs {
		if pref.AutoBridge {
			prefs = append(prefs, pref)
		}
	}
	return prefs, nil
}
