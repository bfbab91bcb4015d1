package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/orbit-pay/orbit_pay/internal/ledger"
	"github.com/orbit-pay/orbit_pay/internal/transfer"
)

// ErrInvalidDirection is returned for an unknown bridge direction label.
var ErrInvalidDirection = errors.New("invalid bridge direction")

// Both directions settle on the internal ledgers, so bridging is free and
// effectively instant.
const (
	bridgeFee         = 0
	bridgeTimeSeconds = 2
)

// Estimate describes the expected cost and timing of a bridge transfer plus
// whether the source ledger currently covers the amount.
type Estimate struct {
	Direction           string
	Amount              int64
	Fee                 int64
	TimeSeconds         int64
	Instant             bool
	SourceBalance       int64
	SufficientBalance   bool
	EstimatedCompletion time.Time
}

// Estimator produces bridge estimates from live ledger balances. It never
// mutates state.
type Estimator struct {
	store ledger.Store
	now   func() time.Time
}

// NewEstimator builds an estimator over the ledger store.
func NewEstimator(store ledger.Store) *Estimator {
	return &Estimator{store: store, now: time.Now}
}

// Estimate prices a prospective bridge transfer without reserving funds.
func (e *Estimator) Estimate(ctx context.Context, walletID string, amount int64, direction string) (Estimate, error) {
	source, _, err := ledgersFor(direction)
	if err != nil {
		return Estimate{}, err
	}

	balance, err := e.store.Balance(ctx, walletID, source)
	if err != nil {
		return Estimate{}, err
	}

	return Estimate{
		Direction:           direction,
		Amount:              amount,
		Fee:                 bridgeFee,
		TimeSeconds:         bridgeTimeSeconds,
		Instant:             true,
		SourceBalance:       balance,
		SufficientBalance:   balance >= amount,
		EstimatedCompletion: e.now().UTC().Add(bridgeTimeSeconds * time.Second),
	}, nil
}

func ledgersFor(direction string) (source, dest ledger.Kind, err error) {
	switch direction {
	case transfer.DirectionPrimaryToCustodial:
		return ledger.KindPrimary, ledger.KindCustodial, nil
	case transfer.DirectionCustodialToPrimary:
		return ledger.KindCustodial, ledger.KindPrimary, nil
	default:
		return "", "", ErrInvalidDirection
	}
}
