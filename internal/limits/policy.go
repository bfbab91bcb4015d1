package limits

// Policy holds the spending ceilings applied to a wallet tier, in integer
// minor units. A zero value means the rule is not enforced.
type Policy struct {
	PerTransaction  int64
	DailySpending   int64
	DailyP2P        int64
	MonthlySpending int64
	MonthlyP2P      int64
}

// Wallet tiers known to the default policy table.
const (
	TierStandard = "standard"
	TierPremium  = "premium"
	TierBusiness = "business"
)

// DefaultPolicies returns the built-in tier policy table. Values follow the
// production defaults: $5,000 per transaction and $10,000/day for standard
// accounts, with tighter P2P sub-limits.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		TierStandard: {
			PerTransaction:  5_000_00,
			DailySpending:   10_000_00,
			DailyP2P:        2_500_00,
			MonthlySpending: 100_000_00,
			MonthlyP2P:      25_000_00,
		},
		TierPremium: {
			PerTransaction:  25_000_00,
			DailySpending:   50_000_00,
			DailyP2P:        10_000_00,
			MonthlySpending: 500_000_00,
			MonthlyP2P:      100_000_00,
		},
		TierBusiness: {
			PerTransaction:  100_000_00,
			DailySpending:   250_000_00,
			DailyP2P:        50_000_00,
			MonthlySpending: 2_000_000_00,
			MonthlyP2P:      500_000_00,
		},
	}
}
