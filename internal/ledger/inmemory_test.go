package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestInMemoryStore_ApplyDelta(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if err := s.EnsureAccount(ctx, "w1", KindPrimary); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	SeedBalance(s, "w1", KindPrimary, 1_000)

	balance, err := s.ApplyDelta(ctx, "w1", KindPrimary, -400)
	if err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	if balance != 600 {
		t.Fatalf("expected balance 600, got %d", balance)
	}
}

func TestInMemoryStore_InsufficientFunds(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	s.EnsureAccount(ctx, "w1", KindPrimary)
	SeedBalance(s, "w1", KindPrimary, 500)

	if _, err := s.ApplyDelta(ctx, "w1", KindPrimary, -1_000); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	balance, _ := s.Balance(ctx, "w1", KindPrimary)
	if balance != 500 {
		t.Fatalf("balance mutated after rejected debit: %d", balance)
	}
}

func TestInMemoryStore_UnknownAccount(t *testing.T) {
	s := NewInMemory()
	if _, err := s.ApplyDelta(context.Background(), "missing", KindPrimary, 10); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
}

func TestInMemoryStore_FrozenAccount(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	s.EnsureAccount(ctx, "w1", KindPrimary)
	if err := s.SetAccountStatus(ctx, "w1", StatusFrozen); err != nil {
		t.Fatalf("set status: %v", err)
	}

	if _, err := s.ApplyDelta(ctx, "w1", KindPrimary, 100); !errors.Is(err, ErrWalletFrozen) {
		t.Fatalf("expected frozen error, got %v", err)
	}
}

func TestInMemoryStore_AtomicScopeRollsBack(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	s.EnsureAccount(ctx, "a", KindPrimary)
	s.EnsureAccount(ctx, "b", KindPrimary)
	SeedBalance(s, "a", KindPrimary, 1_000)

	errCredit := errors.New("credit leg failed")
	err := s.Atomically(ctx, func(ctx context.Context) error {
		if _, err := s.ApplyDelta(ctx, "a", KindPrimary, -300); err != nil {
			return err
		}
		return errCredit
	})
	if !errors.Is(err, errCredit) {
		t.Fatalf("expected credit failure, got %v", err)
	}

	balance, _ := s.Balance(ctx, "a", KindPrimary)
	if balance != 1_000 {
		t.Fatalf("debit survived rollback: %d", balance)
	}
}

func TestInMemoryStore_AtomicScopeCommits(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	s.EnsureAccount(ctx, "a", KindPrimary)
	s.EnsureAccount(ctx, "a", KindCustodial)
	SeedBalance(s, "a", KindPrimary, 1_000)

	err := s.Atomically(ctx, func(ctx context.Context) error {
		if _, err := s.ApplyDelta(ctx, "a", KindPrimary, -250); err != nil {
			return err
		}
		_, err := s.ApplyDelta(ctx, "a", KindCustodial, 250)
		return err
	})
	if err != nil {
		t.Fatalf("atomic scope failed: %v", err)
	}

	balances, err := s.Balances(ctx, "a")
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if balances[KindPrimary] != 750 || balances[KindCustodial] != 250 {
		t.Fatalf("unexpected balances: %+v", balances)
	}
	if balances[KindPrimary]+balances[KindCustodial] != 1_000 {
		t.Fatalf("value not conserved: %+v", balances)
	}
}

func TestInMemoryStore_ConcurrentScopes(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	s.EnsureAccount(ctx, "a", KindPrimary)
	s.EnsureAccount(ctx, "b", KindPrimary)
	SeedBalance(s, "a", KindPrimary, 100_000)

	const workers = 10
	const amount = int64(500)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Atomically(ctx, func(ctx context.Context) error {
				if _, err := s.ApplyDelta(ctx, "a", KindPrimary, -amount); err != nil {
					return err
				}
				_, err := s.ApplyDelta(ctx, "b", KindPrimary, amount)
				return err
			})
			if err != nil {
				t.Errorf("scope %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	a, _ := s.Balance(ctx, "a", KindPrimary)
	b, _ := s.Balance(ctx, "b", KindPrimary)
	if a+b != 100_000 {
		t.Fatalf("value not conserved after concurrency, total=%d", a+b)
	}
	if b != workers*amount {
		t.Fatalf("expected %d credited, got %d", workers*amount, b)
	}
}

func TestKindRankOrdersPrimaryFirst(t *testing.T) {
	if KindPrimary.Rank() >= KindCustodial.Rank() {
		t.Fatalf("primary must lock before custodial")
	}
	if KindPrimary.Other() != KindCustodial || KindCustodial.Other() != KindPrimary {
		t.Fatalf("unexpected Other() mapping")
	}
}
