package risk

import (
	"fmt"
	"sort"
	"time"

	"agentengine/src/model"
	"agentengine/src/tp_sl"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DCAInput is the position state needed to decide on an averaging-down buy.
type DCAInput struct {
	CurrentPrice     decimal.Decimal
	AveragePrice     decimal.Decimal
	TotalInvestedSol decimal.Decimal
	DCACount         int
	LastDCATime      *time.Time
	Now              time.Time
	Config           model.DCAConfig
}

// DCAInputFor builds the input from a stored position.
func DCAInputFor(p *model.Position, price decimal.Decimal, now time.Time, cfg model.DCAConfig) DCAInput {
	invested := p.TotalInvestedSol
	if invested.IsZero() {
		invested = p.PurchasePrice.Mul(p.PurchaseAmount)
	}
	return DCAInput{
		CurrentPrice:     price,
		AveragePrice:     p.PurchasePrice,
		TotalInvestedSol: invested,
		DCACount:         p.DCACount,
		LastDCATime:      p.LastDCATime,
		Now:              now,
		Config:           cfg,
	}
}

// DCADecision is the outcome of EvaluateDCA. BuySol is only set when Trigger is true.
type DCADecision struct {
	Trigger     bool
	LevelIndex  int
	Level       model.DCALevel
	DropPercent float64
	BuySol      decimal.Decimal
	Reason      string
}

// EvaluateDCA checks whether the next unfired ladder level is reached.
// Levels fire in order of increasing drop, one per call.
func EvaluateDCA(in DCAInput) DCADecision {
	out := DCADecision{BuySol: decimal.Zero}
	if !in.Config.Enabled {
		out.Reason = "dca disabled"
		return out
	}
	if in.AveragePrice.LessThanOrEqual(decimal.Zero) {
		out.Reason = "no average price"
		return out
	}

	levels := sortedDCALevels(in.Config.Levels)
	maxCount := in.Config.MaxDCACount
	if maxCount <= 0 || maxCount > len(levels) {
		maxCount = len(levels)
	}
	if in.DCACount >= maxCount {
		out.Reason = fmt.Sprintf("dca count %d reached max %d", in.DCACount, maxCount)
		return out
	}

	if in.LastDCATime != nil && in.Config.CooldownSeconds > 0 {
		ready := in.LastDCATime.Add(time.Duration(in.Config.CooldownSeconds) * time.Second)
		if in.Now.Before(ready) {
			out.Reason = fmt.Sprintf("cooldown until %s", ready.UTC().Format(time.RFC3339))
			return out
		}
	}

	drop, _ := in.CurrentPrice.Sub(in.AveragePrice).Div(in.AveragePrice).Mul(hundred).Float64()
	level := levels[in.DCACount]
	out.DropPercent = drop
	out.LevelIndex = in.DCACount
	out.Level = level
	if drop > level.DropPercent {
		out.Reason = fmt.Sprintf("drop %.2f%% above level %.2f%%", drop, level.DropPercent)
		return out
	}

	out.BuySol = in.TotalInvestedSol.Mul(decimal.NewFromFloat(level.BuyPercent)).Div(hundred).RoundFloor(solDecimals)
	if out.BuySol.LessThanOrEqual(decimal.Zero) {
		out.Reason = "dca buy amount is zero"
		return out
	}
	out.Trigger = true
	return out
}

// sortedDCALevels orders levels from the smallest drop to the largest.
func sortedDCALevels(levels []model.DCALevel) []model.DCALevel {
	out := make([]model.DCALevel, len(levels))
	copy(out, levels)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DropPercent > out[j].DropPercent })
	return out
}

// ApplyDCA folds a filled DCA buy into p: the entry becomes the weighted average of the
// held tokens and the bought ones, and a fresh take-profit batch of tpLevels is appended.
// PurchaseAmount grows by tokensBought, which re-bases later take-profit sells and a moon
// bag not yet activated. An activated moon bag keeps its amount.
func ApplyDCA(p *model.Position, tokensBought, solSpent decimal.Decimal, tpLevels int, at time.Time) {
	remaining := p.Remaining()
	held := p.PurchasePrice.Mul(remaining)
	total := remaining.Add(tokensBought)
	if total.IsPositive() {
		p.PurchasePrice = held.Add(solSpent).Div(total)
	}

	p.PurchaseAmount = p.PurchaseAmount.Add(tokensBought)
	p.SetRemaining(total)
	if p.TotalInvestedSol.IsZero() {
		p.TotalInvestedSol = held
	}
	p.TotalInvestedSol = p.TotalInvestedSol.Add(solSpent)
	p.DCACount++
	t := at
	p.LastDCATime = &t

	tp_sl.BatchOf(p, tpLevels).Append(p.TakeProfitLevelsHit, tpLevels).Apply(p)
}
