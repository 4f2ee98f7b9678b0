package tp_sl

import (
	"sort"

	"agentengine/src/apperrors"
	"agentengine/src/model"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TakeProfitInput is the position state needed to evaluate take-profit levels.
type TakeProfitInput struct {
	CurrentPrice     decimal.Decimal
	PurchasePrice    decimal.Decimal
	OriginalAmount   decimal.Decimal
	RemainingAmount  decimal.Decimal
	LevelsHit        int
	Batch            LevelBatch
	MoonBagActivated bool
	MoonBagAmount    decimal.Decimal
	Config           model.TakeProfitConfig
}

// TakeProfitInputFor builds the input from a stored position.
func TakeProfitInputFor(p *model.Position, price decimal.Decimal, cfg model.TakeProfitConfig) TakeProfitInput {
	return TakeProfitInput{
		CurrentPrice:     price,
		PurchasePrice:    p.PurchasePrice,
		OriginalAmount:   p.PurchaseAmount,
		RemainingAmount:  p.Remaining(),
		LevelsHit:        p.TakeProfitLevelsHit,
		Batch:            BatchOf(p, len(cfg.Levels)),
		MoonBagActivated: p.MoonBagActivated,
		MoonBagAmount:    p.MoonBagAmount,
		Config:           cfg,
	}
}

// TakeProfitResult describes what to sell and the resulting position state.
type TakeProfitResult struct {
	GainPercent          float64
	TriggeredLevels      []model.TakeProfitLevel
	NewLevelsHit         int
	SellAmount           decimal.Decimal
	NewRemainingAmount   decimal.Decimal
	MoonBagActivated     bool
	MoonBagAmount        decimal.Decimal
	MoonBagJustActivated bool
	// NoOp is set when nothing is to be sold, including when only the moon bag is left.
	NoOp bool
}

// Changed reports whether the position must be persisted.
func (r TakeProfitResult) Changed() bool {
	return len(r.TriggeredLevels) > 0 || r.MoonBagJustActivated
}

// CalculateTakeProfit evaluates the active batch of levels in ascending order and stops
// at the first level not reached, so a gap is never skipped.
func CalculateTakeProfit(in TakeProfitInput) (TakeProfitResult, error) {
	if in.PurchasePrice.LessThanOrEqual(decimal.Zero) {
		return TakeProfitResult{}, apperrors.Validation("purchase price must be positive")
	}
	if in.RemainingAmount.IsNegative() || in.RemainingAmount.GreaterThan(in.OriginalAmount) {
		return TakeProfitResult{}, apperrors.Validation("remaining amount must be within [0, original amount]")
	}

	res := TakeProfitResult{
		GainPercent:        percentChange(in.PurchasePrice, in.CurrentPrice),
		NewLevelsHit:       in.LevelsHit,
		SellAmount:         decimal.Zero,
		NewRemainingAmount: in.RemainingAmount,
		MoonBagActivated:   in.MoonBagActivated,
		MoonBagAmount:      in.MoonBagAmount,
		NoOp:               true,
	}
	if !in.Config.Enabled {
		return res, nil
	}

	levels := make([]model.TakeProfitLevel, len(in.Config.Levels))
	copy(levels, in.Config.Levels)
	sort.SliceStable(levels, func(i, j int) bool { return levels[i].TargetPercent < levels[j].TargetPercent })

	sellPercent := decimal.Zero
	idx := in.Batch.Index(in.LevelsHit)
	for idx < len(levels) && res.NewLevelsHit < in.Batch.Ceiling {
		level := levels[idx]
		if level.TargetPercent > res.GainPercent {
			break
		}
		res.TriggeredLevels = append(res.TriggeredLevels, level)
		sellPercent = sellPercent.Add(decimal.NewFromFloat(level.SellPercent))
		idx++
		res.NewLevelsHit++
	}
	exhausted := idx >= len(levels) || res.NewLevelsHit >= in.Batch.Ceiling

	moon := in.Config.MoonBag
	if moon.Enabled && !in.MoonBagActivated {
		if res.GainPercent >= moon.TriggerPercent || (len(res.TriggeredLevels) > 0 && exhausted) {
			res.MoonBagActivated = true
			res.MoonBagJustActivated = true
			res.MoonBagAmount = in.OriginalAmount.Mul(decimal.NewFromFloat(moon.RetainPercent)).Div(hundred)
		}
	}

	reserve := decimal.Zero
	if res.MoonBagActivated {
		reserve = decimal.Min(res.MoonBagAmount, in.RemainingAmount)
	}

	requested := in.OriginalAmount.Mul(sellPercent).Div(hundred)
	sellable := in.RemainingAmount.Sub(reserve)
	sell := decimal.Min(requested, sellable)
	if sell.IsNegative() {
		sell = decimal.Zero
	}

	res.SellAmount = sell
	res.NewRemainingAmount = in.RemainingAmount.Sub(sell)
	res.NoOp = sell.IsZero()
	return res, nil
}
