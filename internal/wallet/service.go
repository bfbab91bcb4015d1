package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/orbit-pay/orbit_pay/internal/ledger"
)

const (
	defaultCurrency = "USD"
	defaultTier     = "standard"
)

// Service exposes wallet operations backed by the ledger.
type Service struct {
	repo  Repository
	store ledger.Store
}

// NewService builds a wallet service instance.
func NewService(repo Repository, store ledger.Store) *Service {
	return &Service{repo: repo, store: store}
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	OwnerID  string
	Currency string
	Tier     string
	// LinkCustodial provisions the custodial ledger account alongside the
	// primary one, enabling bridge transfers from the start.
	LinkCustodial bool
}

// Create provisions a wallet and its primary ledger account.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	if _, err := uuid.Parse(input.OwnerID); err != nil {
		return Wallet{}, err
	}

	walletID := uuid.New().String()
	if err := s.store.EnsureAccount(ctx, walletID, ledger.KindPrimary); err != nil {
		return Wallet{}, err
	}
	if input.LinkCustodial {
		if err := s.store.EnsureAccount(ctx, walletID, ledger.KindCustodial); err != nil {
			return Wallet{}, err
		}
	}

	currency := input.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	tier := input.Tier
	if tier == "" {
		tier = defaultTier
	}

	wallet := Wallet{
		ID:        walletID,
		OwnerID:   input.OwnerID,
		Currency:  currency,
		Tier:      tier,
		Status:    StatusActive,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, wallet); err != nil {
		return Wallet{}, err
	}

	return wallet, nil
}

// Get retrieves wallet metadata.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// FindByOwner retrieves the owner's wallet.
func (s *Service) FindByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	return s.repo.FindByOwner(ctx, ownerID)
}

// LinkCustodial provisions the custodial ledger account for an existing wallet.
func (s *Service) LinkCustodial(ctx context.Context, id string) error {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.store.EnsureAccount(ctx, w.ID, ledger.KindCustodial)
}

// Balances returns the wallet's funds on both ledgers.
func (s *Service) Balances(ctx context.Context, id string) (Balances, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return Balances{}, err
	}
	amounts, err := s.store.Balances(ctx, w.ID)
	if err != nil {
		return Balances{}, err
	}
	return Balances{
		WalletID:  w.ID,
		Primary:   amounts[ledger.KindPrimary],
		Custodial: amounts[ledger.KindCustodial],
		AsOf:      time.Now().UTC(),
	}, nil
}

// SetStatus transitions the wallet lifecycle state and mirrors it onto the
// ledger accounts so in-flight transfers observe the change.
func (s *Service) SetStatus(ctx context.Context, id, status string) error {
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	return s.store.SetAccountStatus(ctx, id, status)
}
