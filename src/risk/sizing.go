package risk

import (
	"agentengine/src/model"

	"github.com/shopspring/decimal"
)

// Category is the balance bracket that selects a position size range.
type Category string

const (
	CategorySmall  Category = "small"
	CategoryMedium Category = "medium"
	CategoryLarge  Category = "large"

	// solDecimals is the lamport precision buys are rounded down to.
	solDecimals = 9
)

// RandFunc returns a pseudo random value in [0, 1).
type RandFunc func() float64

// CategoryFor returns the size bracket for balance. The caller checks the minimum threshold.
func CategoryFor(balance decimal.Decimal, t model.BalanceThresholds) Category {
	switch {
	case balance.LessThan(decimal.NewFromFloat(t.Medium)):
		return CategorySmall
	case balance.LessThan(decimal.NewFromFloat(t.Large)):
		return CategoryMedium
	default:
		return CategoryLarge
	}
}

func rangeFor(c Category, sizes model.PositionSizes) model.SizeRange {
	switch c {
	case CategoryMedium:
		return sizes.Medium
	case CategoryLarge:
		return sizes.Large
	default:
		return sizes.Small
	}
}

// CalculatePositionSize returns the SOL amount to spend on a buy given the agent's SOL balance.
// rnd may be nil when randomization is disabled.
func CalculatePositionSize(balanceSol decimal.Decimal, cfg model.AgentTradingConfig, rnd RandFunc) (decimal.Decimal, error) {
	calc := cfg.PositionCalculator
	limits := cfg.PurchaseLimits

	if balanceSol.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInsufficientBalance(balanceSol)
	}
	if balanceSol.LessThan(decimal.NewFromFloat(calc.Thresholds.Minimum)) {
		return decimal.Zero, ErrBelowMinimumThreshold(balanceSol, calc.Thresholds.Minimum)
	}

	r := rangeFor(CategoryFor(balanceSol, calc.Thresholds), calc.Sizes)
	size := decimal.NewFromFloat(r.Max)
	if calc.Randomization && rnd != nil && r.Max > r.Min {
		size = decimal.NewFromFloat(r.Min + rnd()*(r.Max-r.Min))
	}

	maxPerToken := decimal.NewFromFloat(limits.MaxPurchasePerToken)
	if limits.MaxPurchasePerToken > 0 && size.GreaterThan(maxPerToken) {
		size = maxPerToken
	}

	minBalance := decimal.NewFromFloat(limits.MinimumAgentBalance)
	if minBalance.IsNegative() {
		minBalance = decimal.Zero
	}
	if balanceSol.Sub(size).LessThan(minBalance) {
		size = balanceSol.Sub(minBalance)
		if limits.MaxPurchasePerToken > 0 && size.GreaterThan(maxPerToken) {
			size = maxPerToken
		}
	}

	size = size.RoundFloor(solDecimals)
	if size.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInsufficientBalanceForMinimum(balanceSol, limits.MinimumAgentBalance)
	}
	return size, nil
}
