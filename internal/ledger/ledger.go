package ledger

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientFunds occurs when a debit would take an account balance
	// below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrWalletNotFound indicates the wallet/ledger pair has no account.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrWalletFrozen indicates the account exists but is not active.
	ErrWalletFrozen = errors.New("wallet frozen")

	// ErrTransactionFailure wraps storage or lock-layer faults raised while an
	// atomic scope is executing. Callers may retry once for transient cases.
	ErrTransactionFailure = errors.New("transaction failure")
)

// Kind identifies one of the two balance-of-record systems a wallet may hold
// funds in.
type Kind string

const (
	// KindPrimary is the internal wallet ledger.
	KindPrimary Kind = "primary"
	// KindCustodial is the external stablecoin custodian ledger.
	KindCustodial Kind = "custodial"
)

// Valid reports whether the kind names a known ledger.
func (k Kind) Valid() bool {
	return k == KindPrimary || k == KindCustodial
}

// Other returns the opposite ledger kind.
func (k Kind) Other() Kind {
	if k == KindPrimary {
		return KindCustodial
	}
	return KindPrimary
}

// Rank defines the global lock-acquisition order: primary-ledger rows are
// always locked before custodial-ledger rows, so two opposite-direction
// bridge transfers cannot deadlock.
func (k Kind) Rank() int {
	if k == KindPrimary {
		return 0
	}
	return 1
}

// Account statuses mirror the owning wallet's lifecycle.
const (
	StatusActive = "active"
	StatusFrozen = "frozen"
	StatusClosed = "closed"
)

// Store is the only component permitted to mutate balances. All mutations for
// a wallet/kind pair are serialized, and Atomically provides the unit of work
// within which multiple deltas commit or roll back together.
type Store interface {
	// EnsureAccount guarantees an active account exists for the pair.
	EnsureAccount(ctx context.Context, walletID string, kind Kind) error

	// Balance returns the current balance for the pair.
	Balance(ctx context.Context, walletID string, kind Kind) (int64, error)

	// Balances returns the balance of every account held by the wallet.
	Balances(ctx context.Context, walletID string) (map[Kind]int64, error)

	// ApplyDelta adjusts the balance, failing with ErrInsufficientFunds when a
	// negative delta would overdraw, ErrWalletNotFound for an unknown pair and
	// ErrWalletFrozen when the account is not active. Inside Atomically the
	// write joins the surrounding scope; no retries happen here.
	ApplyDelta(ctx context.Context, walletID string, kind Kind, delta int64) (int64, error)

	// SetAccountStatus propagates a wallet status change to its accounts.
	SetAccountStatus(ctx context.Context, walletID string, status string) error

	// Atomically runs fn inside one atomic scope: every delta applied through
	// the returned context commits or rolls back as a unit. The scope is
	// bounded; on timeout the error wraps ErrTransactionFailure.
	Atomically(ctx context.Context, fn func(ctx context.Context) error) error
}
