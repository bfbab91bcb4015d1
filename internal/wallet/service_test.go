package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/orbit-pay/orbit_pay/internal/ledger"
)

func TestCreateProvisionsPrimaryAccount(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(NewMemoryRepository(), store)
	ctx := context.Background()

	w, err := svc.Create(ctx, CreateInput{OwnerID: uuid.NewString()})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if w.Currency != "USD" || w.Tier != "standard" || w.Status != StatusActive {
		t.Fatalf("unexpected defaults: %+v", w)
	}

	if _, err := store.Balance(ctx, w.ID, ledger.KindPrimary); err != nil {
		t.Fatalf("primary account missing: %v", err)
	}
	if _, err := store.Balance(ctx, w.ID, ledger.KindCustodial); !errors.Is(err, ledger.ErrWalletNotFound) {
		t.Fatalf("custodial account should not exist yet, got %v", err)
	}
}

func TestLinkCustodial(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(NewMemoryRepository(), store)
	ctx := context.Background()

	w, err := svc.Create(ctx, CreateInput{OwnerID: uuid.NewString(), LinkCustodial: true})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if _, err := store.Balance(ctx, w.ID, ledger.KindCustodial); err != nil {
		t.Fatalf("custodial account missing: %v", err)
	}
}

func TestBalancesCombineLedgers(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(NewMemoryRepository(), store)
	ctx := context.Background()

	w, _ := svc.Create(ctx, CreateInput{OwnerID: uuid.NewString(), LinkCustodial: true})
	ledger.SeedBalance(store, w.ID, ledger.KindPrimary, 250)
	ledger.SeedBalance(store, w.ID, ledger.KindCustodial, 50)

	balances, err := svc.Balances(ctx, w.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if balances.Primary != 250 || balances.Custodial != 50 || balances.Combined() != 300 {
		t.Fatalf("unexpected balances: %+v", balances)
	}
}

func TestSetStatusFreezesLedgerAccounts(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(NewMemoryRepository(), store)
	ctx := context.Background()

	w, _ := svc.Create(ctx, CreateInput{OwnerID: uuid.NewString()})
	if err := svc.SetStatus(ctx, w.ID, StatusFrozen); err != nil {
		t.Fatalf("set status: %v", err)
	}

	if _, err := store.ApplyDelta(ctx, w.ID, ledger.KindPrimary, 100); !errors.Is(err, ledger.ErrWalletFrozen) {
		t.Fatalf("expected frozen ledger account, got %v", err)
	}

	got, _ := svc.Get(ctx, w.ID)
	if got.Status != StatusFrozen {
		t.Fatalf("wallet status not updated: %s", got.Status)
	}
}
