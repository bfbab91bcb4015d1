package transfer

import (
	"time"

	"github.com/orbit-pay/orbit_pay/internal/ledger"
)

// Status is the transfer state machine position. Completed, failed and
// cancelled are terminal; records are immutable once terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Kind distinguishes the two transfer flavors the orchestrator executes.
type Kind string

const (
	// KindP2P moves value between two users' wallets on the same ledger.
	KindP2P Kind = "p2p"
	// KindBridge moves value between the two ledgers of one wallet.
	KindBridge Kind = "bridge"
)

// Record is the append-only audit row for one transfer.
type Record struct {
	ID             string
	Kind           Kind
	SourceWalletID string
	DestWalletID   string
	SourceLedger   ledger.Kind
	DestLedger     ledger.Kind
	Amount         int64
	Fee            int64
	Status         Status
	IdempotencyKey string
	Note           string
	FailureReason  string
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// ProcessingSeconds returns the whole seconds between initiation and the
// terminal timestamp, or -1 while the transfer is still in flight.
func (r Record) ProcessingSeconds() int64 {
	if r.CompletedAt == nil {
		return -1
	}
	return int64(r.CompletedAt.Sub(r.CreatedAt) / time.Second)
}
