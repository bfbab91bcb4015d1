package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/orbit-pay/orbit_pay/internal/ledger"
	"github.com/orbit-pay/orbit_pay/internal/transfer"
)

const (
	sweepLockKey = "bridge:auto:sweep"
	sweepLockTTL = 30 * time.Second
)

// Result reports the outcome of one auto-bridge evaluation. When no transfer
// was triggered, Reason explains why and the observed balances are included.
type Result struct {
	WalletID   string
	Triggered  bool
	TransferID string
	Direction  string
	Amount     int64
	Primary    int64
	Custodial  int64
	Reason     string
}

// Monitor rebalances wallets toward their preferred ledger. It runs on a cron
// schedule, reacts to completed-transfer events, and can be invoked directly
// through CheckWallet. Concurrent checks for the same wallet are coalesced so
// a cron tick racing an event trigger cannot double-bridge.
type Monitor struct {
	prefs     PreferenceRepository
	store     ledger.Store
	transfers *transfer.Service
	broker    *transfer.Broker
	cache     *redis.Client
	logger    *slog.Logger

	group singleflight.Group
	cron  *cron.Cron
	done  chan struct{}
}

// NewMonitor builds the monitor. cache may be nil when no Redis is configured;
// the sweep then runs without the cross-instance lock.
func NewMonitor(prefs PreferenceRepository, store ledger.Store, transfers *transfer.Service, broker *transfer.Broker, cache *redis.Client, logger *slog.Logger) *Monitor {
	return &Monitor{
		prefs:     prefs,
		store:     store,
		transfers: transfers,
		broker:    broker,
		cache:     cache,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start schedules the periodic sweep and begins consuming transfer events.
func (m *Monitor) Start(schedule string) error {
	m.cron = cron.New()
	if _, err := m.cron.AddFunc(schedule, m.sweep); err != nil {
		return fmt.Errorf("invalid auto-bridge schedule %q: %w", schedule, err)
	}
	m.cron.Start()

	if m.broker != nil {
		go m.consumeEvents(m.broker.Subscribe())
	}
	return nil
}

// Stop halts the sweep schedule and the event consumer.
func (m *Monitor) Stop() {
	if m.cron != nil {
		m.cron.Stop()
	}
	close(m.done)
}

// CheckWallet evaluates the wallet's auto-bridge preference against its
// current balances and triggers a bridge transfer when the non-preferred
// ledger has climbed past the threshold. The moved amount drains the
// non-preferred ledger down to half the threshold, clamped to the wallet's
// configured bounds.
func (m *Monitor) CheckWallet(ctx context.Context, walletID string) (Result, error) {
	v, err, _ := m.group.Do(walletID, func() (any, error) {
		return m.check(ctx, walletID)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (m *Monitor) check(ctx context.Context, walletID string) (Result, error) {
	pref, err := m.prefs.Get(ctx, walletID)
	if err != nil {
		return Result{}, err
	}

	balances, err := m.store.Balances(ctx, walletID)
	if err != nil {
		return Result{}, err
	}
	result := Result{
		WalletID:  walletID,
		Primary:   balances[ledger.KindPrimary],
		Custodial: balances[ledger.KindCustodial],
	}

	if !pref.AutoBridge {
		result.Reason = "auto-bridge not enabled"
		return result, nil
	}
	if !pref.PreferredLedger.Valid() {
		result.Reason = "no preferred ledger configured"
		return result, nil
	}

	source := pref.PreferredLedger.Other()
	sourceBalance := balances[source]
	if sourceBalance <= pref.Threshold {
		result.Reason = "balance within threshold"
		return result, nil
	}

	// Drain down to half the threshold so small fluctuations do not retrigger.
	amount := sourceBalance - pref.Threshold/2
	if pref.MaxBridgeAmount > 0 && amount > pref.MaxBridgeAmount {
		amount = pref.MaxBridgeAmount
	}
	if amount < pref.MinBridgeAmount {
		result.Reason = "amount below minimum bridge size"
		return result, nil
	}

	rec, err := m.transfers.Initiate(ctx, transfer.InitiateInput{
		Kind:           transfer.KindBridge,
		SourceWalletID: walletID,
		SourceLedger:   source,
		DestLedger:     pref.PreferredLedger,
		Amount:         amount,
		Note:           "auto-bridge rebalance",
	})
	if err != nil {
		return Result{}, fmt.Errorf("auto-bridge transfer: %w", err)
	}

	result.Triggered = true
	result.TransferID = rec.ID
	result.Direction = directionLabel(source)
	result.Amount = amount
	result.Primary, result.Custodial = m.postBalances(ctx, walletID, result)
	return result, nil
}

// postBalances refreshes the reported balances after a triggered bridge; a
// read failure falls back to the pre-transfer snapshot.
func (m *Monitor) postBalances(ctx context.Context, walletID string, prior Result) (int64, int64) {
	balances, err := m.store.Balances(ctx, walletID)
	if err != nil {
		return prior.Primary, prior.Custodial
	}
	return balances[ledger.KindPrimary], balances[ledger.KindCustodial]
}

// sweep evaluates every wallet with auto-bridge enabled. A Redis lock keeps
// multiple instances from sweeping simultaneously.
func (m *Monitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepLockTTL)
	defer cancel()

	if m.cache != nil {
		ok, err := m.cache.SetNX(ctx, sweepLockKey, "1", sweepLockTTL).Result()
		if err != nil {
			m.logger.Warn("auto-bridge sweep lock unavailable", "error", err)
		} else if !ok {
			return
		}
	}

	prefs, err := m.prefs.ListEnabled(ctx)
	if err != nil {
		m.logger.Error("auto-bridge sweep list failed", "error", err)
		return
	}
	for _, pref := range prefs {
		res, err := m.CheckWallet(ctx, pref.WalletID)
		if err != nil {
			m.logger.Error("auto-bridge check failed", "wallet_id", pref.WalletID, "error", err)
			continue
		}
		if res.Triggered {
			m.logger.Info("auto-bridge triggered",
				"wallet_id", pref.WalletID,
				"transfer_id", res.TransferID,
				"direction", res.Direction,
				"amount", res.Amount)
		}
	}
}

// consumeEvents re-checks a wallet whenever one of its transfers completes,
// so rebalancing reacts to activity instead of waiting for the next sweep.
func (m *Monitor) consumeEvents(events <-chan transfer.Record) {
	for {
		select {
		case <-m.done:
			return
		case rec, ok := <-events:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			m.checkAfterEvent(ctx, rec.SourceWalletID)
			if rec.DestWalletID != rec.SourceWalletID {
				m.checkAfterEvent(ctx, rec.DestWalletID)
			}
			cancel()
		}
	}
}

func (m *Monitor) checkAfterEvent(ctx context.Context, walletID string) {
	if _, err := m.CheckWallet(ctx, walletID); err != nil && !errors.Is(err, ErrPreferenceNotFound) {
		m.logger.Warn("event-driven auto-bridge check failed", "wallet_id", walletID, "error", err)
	}
}

func directionLabel(source ledger.Kind) string {
	if source == ledger.KindPrimary {
		return transfer.DirectionPrimaryToCustodial
	}
	return transfer.DirectionCustodialToPrimary
}
