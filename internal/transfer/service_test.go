package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/orbit-pay/orbit_pay/internal/ledger"
	"github.com/orbit-pay/orbit_pay/internal/limits"
	"github.com/orbit-pay/orbit_pay/internal/logging"
	"github.com/orbit-pay/orbit_pay/internal/wallet"
)

type fixture struct {
	store    ledger.Store
	repo     Repository
	wallets  *wallet.Service
	enforcer *limits.Enforcer
	broker   *Broker
	svc      *Service
}

func newFixture() *fixture {
	store := ledger.NewInMemory()
	repo := NewMemoryRepository()
	wallets := wallet.NewService(wallet.NewMemoryRepository(), store)
	enforcer := limits.NewEnforcer(repo)
	broker := NewBroker()
	svc := NewService(store, repo, wallets, enforcer, broker, logging.Discard())
	return &fixture{store: store, repo: repo, wallets: wallets, enforcer: enforcer, broker: broker, svc: svc}
}

func (f *fixture) newWallet(t *testing.T, balance int64, custodial bool) wallet.Wallet {
	t.Helper()
	w, err := f.wallets.Create(context.Background(), wallet.CreateInput{
		OwnerID:       uuid.NewString(),
		LinkCustodial: custodial,
	})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if balance > 0 {
		ledger.SeedBalance(f.store, w.ID, ledger.KindPrimary, balance)
	}
	return w
}

func TestP2PTransferSuccess(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	events := f.broker.Subscribe()

	a := f.newWallet(t, 1_000, false)
	b := f.newWallet(t, 0, false)

	rec, err := f.svc.Initiate(ctx, InitiateInput{
		SourceWalletID: a.ID,
		DestWalletID:   b.ID,
		Amount:         100,
	})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if rec.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", rec.Status)
	}
	if rec.Fee != 0 || rec.CompletedAt == nil {
		t.Fatalf("unexpected record: %+v", rec)
	}

	aBal, _ := f.store.Balance(ctx, a.ID, ledger.KindPrimary)
	bBal, _ := f.store.Balance(ctx, b.ID, ledger.KindPrimary)
	if aBal != 900 || bBal != 100 {
		t.Fatalf("expected 900/100, got %d/%d", aBal, bBal)
	}

	select {
	case got := <-events:
		if got.ID != rec.ID {
			t.Fatalf("unexpected event record: %s", got.ID)
		}
	default:
		t.Fatal("expected a completed-transfer event")
	}
}

func TestP2PInsufficientFunds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a := f.newWallet(t, 500, false)
	b := f.newWallet(t, 0, false)

	rec, err := f.svc.Initiate(ctx, InitiateInput{
		SourceWalletID: a.ID,
		DestWalletID:   b.ID,
		Amount:         1_000,
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if rec.Status != StatusFailed {
		t.Fatalf("expected failed record, got %s", rec.Status)
	}

	aBal, _ := f.store.Balance(ctx, a.ID, ledger.KindPrimary)
	if aBal != 500 {
		t.Fatalf("balance mutated on failed transfer: %d", aBal)
	}

	history, _ := f.svc.History(ctx, a.ID, 10)
	for _, h := range history {
		if h.Status == StatusCompleted {
			t.Fatalf("completed record exists for failed transfer: %+v", h)
		}
	}
}

func TestLimitBreachLeavesNoRecord(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a := f.newWallet(t, 20_000_00, false)
	b := f.newWallet(t, 0, false)
	f.enforcer.SetOverride(a.ID, limits.Policy{PerTransaction: 2_500_00})

	_, err := f.svc.Initiate(ctx, InitiateInput{
		SourceWalletID: a.ID,
		DestWalletID:   b.ID,
		Amount:         10_000_00,
	})
	if !errors.Is(err, limits.ErrLimitExceeded) {
		t.Fatalf("expected limit exceeded, got %v", err)
	}

	history, _ := f.svc.History(ctx, a.ID, 10)
	if len(history) != 0 {
		t.Fatalf("limit rejection must not create a record, got %d", len(history))
	}

	aBal, _ := f.store.Balance(ctx, a.ID, ledger.KindPrimary)
	if aBal != 20_000_00 {
		t.Fatalf("balance mutated on rejected transfer: %d", aBal)
	}
}

func TestIdempotentReplay(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a := f.newWallet(t, 1_000, false)
	b := f.newWallet(t, 0, false)

	input := InitiateInput{
		SourceWalletID: a.ID,
		DestWalletID:   b.ID,
		Amount:         200,
		IdempotencyKey: "retry-key",
	}

	first, err := f.svc.Initiate(ctx, input)
	if err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	second, err := f.svc.Initiate(ctx, input)
	if err != nil {
		t.Fatalf("replay attempt: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay created a new record: %s vs %s", first.ID, second.ID)
	}

	bBal, _ := f.store.Balance(ctx, b.ID, ledger.KindPrimary)
	if bBal != 200 {
		t.Fatalf("expected exactly one credit, got %d", bBal)
	}
}

func TestDuplicateKeyStillProcessing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a := f.newWallet(t, 1_000, false)
	b := f.newWallet(t, 0, false)

	inflight := Record{
		ID:             uuid.NewString(),
		Kind:           KindP2P,
		SourceWalletID: a.ID,
		DestWalletID:   b.ID,
		SourceLedger:   ledger.KindPrimary,
		DestLedger:     ledger.KindPrimary,
		Amount:         100,
		Status:         StatusProcessing,
		IdempotencyKey: "inflight-key",
		CreatedAt:      time.Now().UTC(),
	}
	if err := f.repo.Create(ctx, inflight); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	_, err := f.svc.Initiate(ctx, InitiateInput{
		SourceWalletID: a.ID,
		DestWalletID:   b.ID,
		Amount:         100,
		IdempotencyKey: "inflight-key",
	})
	if !errors.Is(err, ErrDuplicateTransfer) {
		t.Fatalf("expected duplicate transfer error, got %v", err)
	}
}

func TestValidationRejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.newWallet(t, 1_000, false)

	cases := []struct {
		name  string
		input InitiateInput
	}{
		{"zero amount", InitiateInput{SourceWalletID: a.ID, DestWalletID: uuid.NewString(), Amount: 0}},
		{"negative amount", InitiateInput{SourceWalletID: a.ID, DestWalletID: uuid.NewString(), Amount: -50}},
		{"self transfer", InitiateInput{SourceWalletID: a.ID, DestWalletID: a.ID, Amount: 100}},
		{"missing destination", InitiateInput{SourceWalletID: a.ID, Amount: 100}},
		{"bridge same ledger", InitiateInput{Kind: KindBridge, SourceWalletID: a.ID, SourceLedger: ledger.KindPrimary, DestLedger: ledger.KindPrimary, Amount: 100}},
	}
	for _, tc := range cases {
		if _, err := f.svc.Initiate(ctx, tc.input); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestBridgeTransfer(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	w := f.newWallet(t, 1_000, true)

	rec, err := f.svc.Initiate(ctx, InitiateInput{
		Kind:           KindBridge,
		SourceWalletID: w.ID,
		SourceLedger:   ledger.KindPrimary,
		DestLedger:     ledger.KindCustodial,
		Amount:         250,
	})
	if err != nil {
		t.Fatalf("bridge transfer failed: %v", err)
	}
	if rec.Status != StatusCompleted || rec.Kind != KindBridge || rec.Fee != 0 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	balances, _ := f.store.Balances(ctx, w.ID)
	if balances[ledger.KindPrimary] != 750 || balances[ledger.KindCustodial] != 250 {
		t.Fatalf("unexpected balances: %+v", balances)
	}
	if balances[ledger.KindPrimary]+balances[ledger.KindCustodial] != 1_000 {
		t.Fatalf("value not conserved: %+v", balances)
	}
}

func TestRollbackWhenCreditFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a := f.newWallet(t, 1_000, false)
	b := f.newWallet(t, 0, false)

	// Freeze only the destination ledger account; the wallet row stays active
	// so the pre-checks pass and the failure surfaces inside the atomic scope.
	if err := f.store.SetAccountStatus(ctx, b.ID, ledger.StatusFrozen); err != nil {
		t.Fatalf("freeze account: %v", err)
	}

	rec, err := f.svc.Initiate(ctx, InitiateInput{
		SourceWalletID: a.ID,
		DestWalletID:   b.ID,
		Amount:         300,
	})
	if !errors.Is(err, ledger.ErrWalletFrozen) {
		t.Fatalf("expected frozen error, got %v", err)
	}
	if rec.Status != StatusFailed {
		t.Fatalf("expected failed record, got %s", rec.Status)
	}

	aBal, _ := f.store.Balance(ctx, a.ID, ledger.KindPrimary)
	bBal, _ := f.store.Balance(ctx, b.ID, ledger.KindPrimary)
	if aBal != 1_000 || bBal != 0 {
		t.Fatalf("debit survived rollback: %d/%d", aBal, bBal)
	}
}

func TestCancelPendingOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a := f.newWallet(t, 1_000, false)
	b := f.newWallet(t, 0, false)

	pending := Record{
		ID:             uuid.NewString(),
		Kind:           KindP2P,
		SourceWalletID: a.ID,
		DestWalletID:   b.ID,
		SourceLedger:   ledger.KindPrimary,
		DestLedger:     ledger.KindPrimary,
		Amount:         100,
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := f.repo.Create(ctx, pending); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	cancelled, err := f.svc.Cancel(ctx, pending.ID)
	if err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	// A completed transfer must reject cancellation.
	done, err := f.svc.Initiate(ctx, InitiateInput{SourceWalletID: a.ID, DestWalletID: b.ID, Amount: 100})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, done.ID); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("expected not cancellable, got %v", err)
	}
}

func TestCancelProcessingRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	processing := Record{
		ID:           uuid.NewString(),
		Kind:         KindP2P,
		SourceLedger: ledger.KindPrimary,
		DestLedger:   ledger.KindPrimary,
		Amount:       100,
		Status:       StatusProcessing,
		CreatedAt:    time.Now().UTC(),
	}
	if err := f.repo.Create(ctx, processing); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	if _, err := f.svc.Cancel(ctx, processing.ID); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("expected not cancellable, got %v", err)
	}
}

func TestFrozenSourceWallet(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a := f.newWallet(t, 1_000, false)
	b := f.newWallet(t, 0, false)
	if err := f.wallets.SetStatus(ctx, a.ID, wallet.StatusFrozen); err != nil {
		t.Fatalf("freeze wallet: %v", err)
	}

	_, err := f.svc.Initiate(ctx, InitiateInput{SourceWalletID: a.ID, DestWalletID: b.ID, Amount: 100})
	if !errors.Is(err, ledger.ErrWalletFrozen) {
		t.Fatalf("expected frozen error, got %v", err)
	}

	history, _ := f.svc.History(ctx, a.ID, 10)
	if len(history) != 0 {
		t.Fatalf("no record should exist for a frozen-wallet rejection, got %d", len(history))
	}
}

func TestUnknownWallet(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.newWallet(t, 0, false)

	_, err := f.svc.Initiate(ctx, InitiateInput{SourceWalletID: uuid.NewString(), DestWalletID: b.ID, Amount: 100})
	if !errors.Is(err, ledger.ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a := f.newWallet(t, 1_000, false)
	b := f.newWallet(t, 0, false)

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Initiate(ctx, InitiateInput{SourceWalletID: a.ID, DestWalletID: b.ID, Amount: 10}); err != nil {
			t.Fatalf("transfer %d: %v", i, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	history, err := f.svc.History(ctx, a.ID, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected limit applied, got %d records", len(history))
	}
	if history[0].CreatedAt.Before(history[1].CreatedAt) {
		t.Fatalf("history not newest first")
	}
}
