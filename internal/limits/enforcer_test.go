package limits

import (
	"context"
	"testing"
	"time"

	"github.com/orbit-pay/orbit_pay/internal/wallet"
)

// stubUsage serves canned aggregates keyed by window start and p2p flag.
type stubUsage struct {
	all map[time.Time]int64
	p2p map[time.Time]int64
}

func (s *stubUsage) SpentSince(_ context.Context, _ string, p2pOnly bool, since time.Time) (int64, error) {
	if p2pOnly {
		return s.p2p[since], nil
	}
	return s.all[since], nil
}

func fixedNow() time.Time {
	return time.Date(2025, time.March, 15, 12, 30, 0, 0, time.UTC)
}

func newTestEnforcer(usage *stubUsage) *Enforcer {
	e := NewEnforcer(usage)
	e.now = fixedNow
	return e
}

func standardWallet() wallet.Wallet {
	return wallet.Wallet{ID: "w1", Tier: TierStandard, Status: wallet.StatusActive}
}

func TestCheckAllowsWithinLimits(t *testing.T) {
	e := newTestEnforcer(&stubUsage{all: map[time.Time]int64{}, p2p: map[time.Time]int64{}})

	decision, err := e.Check(context.Background(), standardWallet(), 100_00, "p2p")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allowed, got rule %s", decision.Rule)
	}
}

func TestCheckPerTransactionRuleWinsFirst(t *testing.T) {
	// The amount breaks every rule; the per-transaction one must be reported.
	e := newTestEnforcer(&stubUsage{all: map[time.Time]int64{}, p2p: map[time.Time]int64{}})

	decision, err := e.Check(context.Background(), standardWallet(), 100_000_00, "p2p")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if decision.Allowed || decision.Rule != RulePerTransaction {
		t.Fatalf("expected per-transaction rule, got %+v", decision)
	}
}

func TestCheckDailyP2PAggregate(t *testing.T) {
	dayStart := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	e := newTestEnforcer(&stubUsage{
		all: map[time.Time]int64{dayStart: 2_000_00},
		p2p: map[time.Time]int64{dayStart: 2_000_00},
	})

	// 2000 spent + 600 requested > 2500 daily P2P limit.
	decision, err := e.Check(context.Background(), standardWallet(), 600_00, "p2p")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if decision.Allowed || decision.Rule != RuleDailyP2P {
		t.Fatalf("expected daily p2p rule, got %+v", decision)
	}
}

func TestCheckBridgeSkipsP2PRules(t *testing.T) {
	dayStart := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	e := newTestEnforcer(&stubUsage{
		all: map[time.Time]int64{dayStart: 2_000_00},
		p2p: map[time.Time]int64{dayStart: 2_000_00},
	})

	// Same aggregates as the P2P case, but a bridge transfer only hits the
	// spending rules, and 2000+600 stays under the 10000 daily ceiling.
	decision, err := e.Check(context.Background(), standardWallet(), 600_00, "bridge")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allowed, got %+v", decision)
	}
}

func TestCheckMonthlyAggregate(t *testing.T) {
	monthStart := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	e := newTestEnforcer(&stubUsage{
		all: map[time.Time]int64{monthStart: 99_800_00},
		p2p: map[time.Time]int64{},
	})

	decision, err := e.Check(context.Background(), standardWallet(), 300_00, "bridge")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if decision.Allowed || decision.Rule != RuleMonthlySpending {
		t.Fatalf("expected monthly spending rule, got %+v", decision)
	}
}

func TestPolicyOverrideBeatsTier(t *testing.T) {
	e := newTestEnforcer(&stubUsage{all: map[time.Time]int64{}, p2p: map[time.Time]int64{}})
	e.SetOverride("w1", Policy{PerTransaction: 50_00})

	decision, err := e.Check(context.Background(), standardWallet(), 100_00, "p2p")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if decision.Allowed || decision.Rule != RulePerTransaction || decision.Limit != 50_00 {
		t.Fatalf("expected override per-transaction limit, got %+v", decision)
	}
}

func TestUnknownTierFallsBackToStandard(t *testing.T) {
	e := newTestEnforcer(&stubUsage{all: map[time.Time]int64{}, p2p: map[time.Time]int64{}})
	w := wallet.Wallet{ID: "w2", Tier: "vip"}

	decision, err := e.Check(context.Background(), w, 6_000_00, "p2p")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if decision.Allowed || decision.Rule != RulePerTransaction {
		t.Fatalf("expected standard per-transaction limit, got %+v", decision)
	}
}
