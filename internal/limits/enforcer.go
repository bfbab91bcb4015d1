package limits

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/orbit-pay/orbit_pay/internal/wallet"
)

// ErrLimitExceeded is returned when a proposed transfer violates a policy rule.
var ErrLimitExceeded = errors.New("limit exceeded")

// Rule names surfaced to callers; the most specific rule is reported first.
const (
	RulePerTransaction  = "per_transaction_limit"
	RuleDailySpending   = "daily_spending_limit"
	RuleDailyP2P        = "daily_p2p_limit"
	RuleMonthlySpending = "monthly_spending_limit"
	RuleMonthlyP2P      = "monthly_p2p_limit"
)

const kindP2P = "p2p"

// UsageSource reports how much a wallet has spent in completed transfers
// since a window boundary. Implemented by the transfer repository.
type UsageSource interface {
	SpentSince(ctx context.Context, walletID string, p2pOnly bool, since time.Time) (int64, error)
}

// Decision is the outcome of a policy check. When not allowed, Rule names the
// first violated limit.
type Decision struct {
	Allowed bool
	Rule    string
	Limit   int64
}

// Enforcer evaluates proposed transfers against tier policies using rolling
// UTC day and month windows. It never mutates state, so speculative checks
// (UI previews) are safe.
type Enforcer struct {
	usage UsageSource

	mu        sync.RWMutex
	tiers     map[string]Policy
	overrides map[string]Policy

	now func() time.Time
}

// NewEnforcer builds an enforcer over the default tier policy table.
func NewEnforcer(usage UsageSource) *Enforcer {
	return &Enforcer{
		usage:     usage,
		tiers:     DefaultPolicies(),
		overrides: make(map[string]Policy),
		now:       time.Now,
	}
}

// SetOverride installs a per-wallet policy taking precedence over the tier.
func (e *Enforcer) SetOverride(walletID string, p Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.overrides[walletID] = p
}

// PolicyFor resolves the policy applying to the wallet: override first, then
// tier, falling back to the standard tier for unknown tiers.
func (e *Enforcer) PolicyFor(w wallet.Wallet) Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if p, ok := e.overrides[w.ID]; ok {
		return p
	}
	if p, ok := e.tiers[w.Tier]; ok {
		return p
	}
	return e.tiers[TierStandard]
}

// Check evaluates the proposed amount against the wallet's policy. The
// per-transaction rule is checked before any aggregate so the caller gets the
// most specific reason; aggregates attribute completed transfers to the UTC
// window containing their completion timestamp.
func (e *Enforcer) Check(ctx context.Context, w wallet.Wallet, amount int64, transferKind string) (Decision, error) {
	policy := e.PolicyFor(w)
	nowUTC := e.now().UTC()
	dayStart := time.Date(nowUTC.Year(), nowUTC.Month(), nowUTC.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(nowUTC.Year(), nowUTC.Month(), 1, 0, 0, 0, 0, time.UTC)

	if policy.PerTransaction > 0 && amount > policy.PerTransaction {
		return Decision{Rule: RulePerTransaction, Limit: policy.PerTransaction}, nil
	}

	if policy.DailySpending > 0 {
		spent, err := e.usage.SpentSince(ctx, w.ID, false, dayStart)
		if err != nil {
			return Decision{}, err
		}
		if spent+amount > policy.DailySpending {
			return Decision{Rule: RuleDailySpending, Limit: policy.DailySpending}, nil
		}
	}

	if transferKind == kindP2P && policy.DailyP2P > 0 {
		spent, err := e.usage.SpentSince(ctx, w.ID, true, dayStart)
		if err != nil {
			return Decision{}, err
		}
		if spent+amount > policy.DailyP2P {
			return Decision{Rule: RuleDailyP2P, Limit: policy.DailyP2P}, nil
		}
	}

	if policy.MonthlySpending > 0 {
		spent, err := e.usage.SpentSince(ctx, w.ID, false, monthStart)
		if err != nil {
			return Decision{}, err
		}
		if spent+amount > policy.MonthlySpending {
			return Decision{Rule: RuleMonthlySpending, Limit: policy.MonthlySpending}, nil
		}
	}

	if transferKind == kindP2P && policy.MonthlyP2P > 0 {
		spent, err := e.usage.SpentSince(ctx, w.ID, true, monthStart)
		if err != nil {
			return Decision{}, err
		}
		if spent+amount > policy.MonthlyP2P {
			return Decision{Rule: RuleMonthlyP2P, Limit: policy.MonthlyP2P}, nil
		}
	}

	return Decision{Allowed: true}, nil
}
