package wallet

import "time"

// Wallet statuses.
const (
	StatusActive = "active"
	StatusFrozen = "frozen"
	StatusClosed = "closed"
)

// Wallet represents a stored value account whose balances live in the ledger.
type Wallet struct {
	ID        string
	OwnerID   string
	Currency  string
	Tier      string
	Status    string
	CreatedAt time.Time
}

// Active reports whether the wallet may transact.
func (w Wallet) Active() bool {
	return w.Status == StatusActive
}

// Balances reports the wallet's funds per ledger.
type Balances struct {
	WalletID  string
	Primary   int64
	Custodial int64
	AsOf      time.Time
}

// Combined returns the total across both ledgers.
func (b Balances) Combined() int64 {
	return b.Primary + b.Custodial
}
