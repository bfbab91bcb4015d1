package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/orbit-pay/orbit_pay/internal/ledger"
	"github.com/orbit-pay/orbit_pay/internal/limits"
	"github.com/orbit-pay/orbit_pay/internal/wallet"
)

var (
	// ErrValidation marks a malformed request: non-positive amount, self
	// transfer, unknown ledger kinds. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrDuplicateTransfer is returned when the idempotency key belongs to a
	// transfer that is still in flight.
	ErrDuplicateTransfer = errors.New("duplicate transfer in progress")

	// ErrNotCancellable is returned when cancellation is requested after
	// processing has begun or the transfer is already terminal.
	ErrNotCancellable = errors.New("transfer not cancellable")

	// ErrNotOwner indicates the caller does not own the source wallet.
	ErrNotOwner = errors.New("not owner of source wallet")
)

// Service is the transfer orchestrator: it validates, authorizes, reserves
// and executes both P2P and bridge transfers, and owns the status state
// machine pending -> processing -> completed|failed, pending -> cancelled.
type Service struct {
	store    ledger.Store
	repo     Repository
	wallets  *wallet.Service
	enforcer *limits.Enforcer
	broker   *Broker
	logger   *slog.Logger
}

// NewService constructs the orchestrator.
func NewService(store ledger.Store, repo Repository, wallets *wallet.Service, enforcer *limits.Enforcer, broker *Broker, logger *slog.Logger) *Service {
	return &Service{store: store, repo: repo, wallets: wallets, enforcer: enforcer, broker: broker, logger: logger}
}

// InitiateInput captures the data needed to move funds.
type InitiateInput struct {
	Kind           Kind
	SourceWalletID string
	DestWalletID   string
	SourceLedger   ledger.Kind
	DestLedger     ledger.Kind
	Amount         int64
	IdempotencyKey string
	Note           string
	// RequestorUserID, when set, must own the source wallet.
	RequestorUserID string
}

// Initiate runs the full transfer algorithm and returns the terminal record.
// Limit rejections happen before any record is written; execution failures
// leave a failed record and the ledger untouched.
func (s *Service) Initiate(ctx context.Context, input InitiateInput) (Record, error) {
	input = normalize(input)
	if err := validate(input); err != nil {
		return Record{}, err
	}

	if input.IdempotencyKey != "" {
		prior, err := s.repo.FindByIdempotencyKey(ctx, input.IdempotencyKey)
		switch {
		case err == nil:
			if prior.Status.Terminal() {
				// Retried request: hand back the original outcome, no second debit.
				return prior, nil
			}
			return prior, ErrDuplicateTransfer
		case errors.Is(err, ErrRecordNotFound):
		default:
			return Record{}, err
		}
	}

	source, err := s.lookupWallet(ctx, input.SourceWalletID)
	if err != nil {
		return Record{}, err
	}
	if input.RequestorUserID != "" && source.OwnerID != input.RequestorUserID {
		return Record{}, ErrNotOwner
	}
	if !source.Active() {
		return Record{}, ledger.ErrWalletFrozen
	}
	if input.Kind == KindP2P {
		dest, err := s.lookupWallet(ctx, input.DestWalletID)
		if err != nil {
			return Record{}, err
		}
		if !dest.Active() {
			return Record{}, ledger.ErrWalletFrozen
		}
	}

	// Limit policy applies to externally initiated spending; bridge transfers
	// move a user's own funds between their ledgers and are exempt.
	if input.Kind == KindP2P {
		decision, err := s.enforcer.Check(ctx, source, input.Amount, string(input.Kind))
		if err != nil {
			return Record{}, err
		}
		if !decision.Allowed {
			// Rejected before any record exists: limit refusals leave no audit noise.
			return Record{}, fmt.Errorf("%w: %s (%d)", limits.ErrLimitExceeded, decision.Rule, decision.Limit)
		}
	}

	rec := Record{
		ID:             uuid.New().String(),
		Kind:           input.Kind,
		SourceWalletID: input.SourceWalletID,
		DestWalletID:   input.DestWalletID,
		SourceLedger:   input.SourceLedger,
		DestLedger:     input.DestLedger,
		Amount:         input.Amount,
		Fee:            0, // internal transfers carry no fee
		Status:         StatusPending,
		IdempotencyKey: input.IdempotencyKey,
		Note:           input.Note,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		if input.IdempotencyKey != "" {
			// Lost a race against a concurrent request holding the same key.
			if prior, findErr := s.repo.FindByIdempotencyKey(ctx, input.IdempotencyKey); findErr == nil {
				if prior.Status.Terminal() {
					return prior, nil
				}
				return prior, ErrDuplicateTransfer
			}
		}
		return Record{}, err
	}

	started, err := s.repo.Transition(ctx, rec.ID, StatusPending, StatusProcessing, nil, "")
	if err != nil {
		return Record{}, err
	}
	if !started {
		// Cancellation won the race before processing began.
		return s.repo.Get(ctx, rec.ID)
	}

	if err := s.execute(ctx, rec); err != nil {
		now := time.Now().UTC()
		if _, markErr := s.repo.Transition(ctx, rec.ID, StatusProcessing, StatusFailed, &now, err.Error()); markErr != nil {
			s.logger.Error("mark transfer failed", "transfer_id", rec.ID, "error", markErr)
		}
		failed, getErr := s.repo.Get(ctx, rec.ID)
		if getErr != nil {
			failed = rec
			failed.Status = StatusFailed
		}
		return failed, err
	}

	completed, err := s.repo.Get(ctx, rec.ID)
	if err != nil {
		return Record{}, err
	}
	if s.broker != nil {
		s.broker.Publish(completed)
	}
	return completed, nil
}

// execute applies debit, credit and the completion flip inside one atomic
// scope. A transient storage fault is retried exactly once before surfacing.
func (s *Service) execute(ctx context.Context, rec Record) error {
	attempt := func() error {
		return s.store.Atomically(ctx, func(ctx context.Context) error {
			for _, leg := range orderedLegs(rec) {
				if _, err := s.store.ApplyDelta(ctx, leg.walletID, leg.kind, leg.delta); err != nil {
					return err
				}
			}
			now := time.Now().UTC()
			done, err := s.repo.Transition(ctx, rec.ID, StatusProcessing, StatusCompleted, &now, "")
			if err != nil {
				return err
			}
			if !done {
				return fmt.Errorf("%w: transfer %s left processing state", ledger.ErrTransactionFailure, rec.ID)
			}
			return nil
		})
	}

	err := attempt()
	if errors.Is(err, ledger.ErrTransactionFailure) {
		s.logger.Warn("transient storage fault, retrying transfer", "transfer_id", rec.ID, "error", err)
		err = attempt()
	}
	return err
}

type leg struct {
	walletID string
	kind     ledger.Kind
	delta    int64
}

// orderedLegs returns the debit and credit sorted by the global lock order
// (ledger kind rank, then wallet id) so concurrent opposite-direction
// transfers acquire row locks in the same sequence.
func orderedLegs(rec Record) []leg {
	legs := []leg{
		{walletID: rec.SourceWalletID, kind: rec.SourceLedger, delta: -rec.Amount},
		{walletID: rec.DestWalletID, kind: rec.DestLedger, delta: rec.Amount},
	}
	sort.Slice(legs, func(i, j int) bool {
		if legs[i].kind.Rank() != legs[j].kind.Rank() {
			return legs[i].kind.Rank() < legs[j].kind.Rank()
		}
		return legs[i].walletID < legs[j].walletID
	})
	return legs
}

// Get returns the transfer record.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	return s.repo.Get(ctx, id)
}

// Cancel stops a transfer that has not begun processing. Once execution has
// started the request is rejected.
func (s *Service) Cancel(ctx context.Context, id string) (Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if rec.Status != StatusPending {
		if rec.Status == StatusProcessing {
			return rec, fmt.Errorf("%w: transfer is already processing", ErrNotCancellable)
		}
		return rec, fmt.Errorf("%w: transfer is %s", ErrNotCancellable, rec.Status)
	}

	now := time.Now().UTC()
	done, err := s.repo.Transition(ctx, id, StatusPending, StatusCancelled, &now, "user cancelled")
	if err != nil {
		return Record{}, err
	}
	if !done {
		rec, _ = s.repo.Get(ctx, id)
		return rec, fmt.Errorf("%w: transfer is %s", ErrNotCancellable, rec.Status)
	}
	return s.repo.Get(ctx, id)
}

// History lists transfers touching the wallet, newest first.
func (s *Service) History(ctx context.Context, walletID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return s.repo.History(ctx, walletID, limit)
}

func (s *Service) lookupWallet(ctx context.Context, id string) (wallet.Wallet, error) {
	w, err := s.wallets.Get(ctx, id)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return wallet.Wallet{}, ledger.ErrWalletNotFound
		}
		return wallet.Wallet{}, err
	}
	return w, nil
}

func normalize(input InitiateInput) InitiateInput {
	if input.Kind == "" {
		input.Kind = KindP2P
	}
	switch input.Kind {
	case KindP2P:
		if input.SourceLedger == "" {
			input.SourceLedger = ledger.KindPrimary
		}
		if input.DestLedger == "" {
			input.DestLedger = input.SourceLedger
		}
	case KindBridge:
		if input.DestWalletID == "" {
			input.DestWalletID = input.SourceWalletID
		}
	}
	return input
}

func validate(input InitiateInput) error {
	if input.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if input.SourceWalletID == "" {
		return fmt.Errorf("%w: source wallet is required", ErrValidation)
	}
	switch input.Kind {
	case KindP2P:
		if input.DestWalletID == "" {
			return fmt.Errorf("%w: destination wallet is required", ErrValidation)
		}
		if input.SourceWalletID == input.DestWalletID {
			return fmt.Errorf("%w: cannot transfer to the same wallet", ErrValidation)
		}
		if input.SourceLedger != input.DestLedger {
			return fmt.Errorf("%w: p2p transfers stay on one ledger", ErrValidation)
		}
	case KindBridge:
		if input.SourceWalletID != input.DestWalletID {
			return fmt.Errorf("%w: bridge transfers stay within one wallet", ErrValidation)
		}
		if !input.SourceLedger.Valid() || !input.DestLedger.Valid() {
			return fmt.Errorf("%w: invalid bridge direction", ErrValidation)
		}
		if input.SourceLedger == input.DestLedger {
			return fmt.Errorf("%w: bridge transfers must cross ledgers", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown transfer kind %q", ErrValidation, input.Kind)
	}
	if !input.SourceLedger.Valid() || !input.DestLedger.Valid() {
		return fmt.Errorf("%w: unknown ledger kind", ErrValidation)
	}
	return nil
}
