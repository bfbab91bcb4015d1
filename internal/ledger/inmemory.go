package ledger

import (
	"context"
	"sync"
)

type accountKey struct {
	walletID string
	kind     Kind
}

type account struct {
	balance int64
	version int64
	status  string
}

type memTxKey struct{}

// memTx stages balance writes for one atomic scope; the store mutex is held
// for the scope's full duration so staged reads stay consistent.
type memTx struct {
	staged map[accountKey]int64
}

type inMemoryStore struct {
	mu       sync.Mutex
	accounts map[accountKey]*account
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit
// tests and development without a database.
func NewInMemory() Store {
	return &inMemoryStore{accounts: make(map[accountKey]*account)}
}

func (s *inMemoryStore) EnsureAccount(_ context.Context, walletID string, kind Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := accountKey{walletID: walletID, kind: kind}
	if _, exists := s.accounts[key]; !exists {
		s.accounts[key] = &account{status: StatusActive}
	}
	return nil
}

func (s *inMemoryStore) Balance(ctx context.Context, walletID string, kind Kind) (int64, error) {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		return s.balanceLocked(tx, walletID, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked(nil, walletID, kind)
}

func (s *inMemoryStore) balanceLocked(tx *memTx, walletID string, kind Kind) (int64, error) {
	key := accountKey{walletID: walletID, kind: kind}
	acct, exists := s.accounts[key]
	if !exists {
		return 0, ErrWalletNotFound
	}
	if tx != nil {
		if staged, ok := tx.staged[key]; ok {
			return staged, nil
		}
	}
	return acct.balance, nil
}

func (s *inMemoryStore) Balances(ctx context.Context, walletID string) (map[Kind]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Kind]int64)
	for key, acct := range s.accounts {
		if key.walletID == walletID {
			out[key.kind] = acct.balance
		}
	}
	if len(out) == 0 {
		return nil, ErrWalletNotFound
	}
	return out, nil
}

func (s *inMemoryStore) ApplyDelta(ctx context.Context, walletID string, kind Kind, delta int64) (int64, error) {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		return s.applyLocked(tx, walletID, kind, delta)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(nil, walletID, kind, delta)
}

func (s *inMemoryStore) applyLocked(tx *memTx, walletID string, kind Kind, delta int64) (int64, error) {
	key := accountKey{walletID: walletID, kind: kind}
	acct, exists := s.accounts[key]
	if !exists {
		return 0, ErrWalletNotFound
	}
	if acct.status != StatusActive {
		return 0, ErrWalletFrozen
	}

	current := acct.balance
	if tx != nil {
		if staged, ok := tx.staged[key]; ok {
			current = staged
		}
	}

	next := current + delta
	if delta < 0 && next < 0 {
		return 0, ErrInsufficientFunds
	}

	if tx != nil {
		tx.staged[key] = next
		return next, nil
	}

	acct.balance = next
	acct.version++
	return next, nil
}

func (s *inMemoryStore) SetAccountStatus(_ context.Context, walletID string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for key, acct := range s.accounts {
		if key.walletID == walletID {
			acct.status = status
			found = true
		}
	}
	if !found {
		return ErrWalletNotFound
	}
	return nil
}

// Atomically serializes the whole scope under the store mutex and stages
// every delta; staged writes flush only when fn succeeds, so a failure after
// a debit leaves all balances untouched.
func (s *inMemoryStore) Atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		// Already inside a scope; join it.
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{staged: make(map[accountKey]int64)}
	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		return err
	}

	for key, balance := range tx.staged {
		acct := s.accounts[key]
		acct.balance = balance
		acct.version++
	}
	return nil
}
