package tp_sl

import (
	"math"
	"sort"

	"agentengine/src/model"

	"github.com/shopspring/decimal"
)

const (
	// TrailingActivationPercent is the gain below which non-custom modes keep the default stop.
	TrailingActivationPercent = 20.0
	fixedTrailingGap          = 10.0

	exponentialGrowthScale = 100 / 3.2
	dipCenter              = 55.0
	dipDepth               = 0.15
	dipWidth               = 12.0
	postDipStart           = 65.0
	postDipSlope           = 0.001
	postDipMaxBoost        = 0.05
	maxKeepFraction        = 0.90
)

// CalculateStopLoss returns the stop-loss threshold, as percent from purchase price,
// for a position currently up priceChangePercent.
//
// A negative result is a loss floor (the default), a positive one is the part of the
// gain the trailing stop keeps. The default is returned whenever the computed value
// is not positive so a stop can never sit at or above a zero gain by accident.
func CalculateStopLoss(priceChangePercent float64, cfg model.StopLossConfig) float64 {
	def := cfg.DefaultPercentage
	if priceChangePercent < 0 || math.IsNaN(priceChangePercent) {
		return def
	}

	var value float64
	switch cfg.Mode {
	case model.StopLossModeCustom:
		v, ok := customStopLoss(priceChangePercent, cfg.TrailingLevels)
		if !ok {
			return def
		}
		value = v
	case model.StopLossModeExponential:
		if priceChangePercent < TrailingActivationPercent {
			return def
		}
		value = priceChangePercent * exponentialKeepFraction(priceChangePercent-TrailingActivationPercent)
	case model.StopLossModeZones:
		if priceChangePercent < TrailingActivationPercent {
			return def
		}
		value = priceChangePercent * zoneKeepFraction(priceChangePercent)
	default:
		if priceChangePercent < TrailingActivationPercent {
			return def
		}
		value = math.Max(0, priceChangePercent-fixedTrailingGap)
	}

	if value <= 0 {
		return def
	}
	return value
}

// exponentialKeepFraction models a keep ratio that grows quickly after activation,
// dips around x=55 to tolerate the usual pullback zone and accelerates again past x=65.
// The post-dip boost is added after the clamp and is not clamped again.
func exponentialKeepFraction(x float64) float64 {
	base := 1 - math.Exp(-x/exponentialGrowthScale)
	dip := dipDepth * math.Exp(-math.Pow(x-dipCenter, 2)/(2*dipWidth*dipWidth))

	keep := base*maxKeepFraction - dip
	if keep < 0 {
		keep = 0
	}
	if keep > maxKeepFraction {
		keep = maxKeepFraction
	}

	if x > postDipStart {
		keep += math.Min((x-postDipStart)*postDipSlope, postDipMaxBoost)
	}
	return keep
}

func zoneKeepFraction(p float64) float64 {
	switch {
	case p <= 25:
		return 0.50
	case p <= 50:
		return 0.60
	case p <= 100:
		return 0.70
	case p <= 200:
		return 0.80
	default:
		return 0.85
	}
}

// customStopLoss picks the level with the greatest change not above p.
func customStopLoss(p float64, levels []model.TrailingLevel) (float64, bool) {
	if len(levels) == 0 {
		return 0, false
	}
	sorted := make([]model.TrailingLevel, len(levels))
	copy(sorted, levels)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Change > sorted[j].Change })

	for _, l := range sorted {
		if l.Change <= p {
			return l.StopLoss, true
		}
	}
	return 0, false
}

// TrailingStop is the outcome of evaluating a trailing stop on a price tick.
type TrailingStop struct {
	PeakPrice          decimal.Decimal
	PeakGainPercent    float64
	CurrentGainPercent float64
	StopLossPercent    float64
	Triggered          bool
}

// EvaluateTrailingStop raises the peak if needed, derives the stop from the peak gain
// and reports whether the current gain has fallen to or below it.
func EvaluateTrailingStop(purchasePrice, peakPrice, currentPrice decimal.Decimal, cfg model.StopLossConfig) TrailingStop {
	peak := peakPrice
	if currentPrice.GreaterThan(peak) {
		peak = currentPrice
	}

	out := TrailingStop{
		PeakPrice:          peak,
		PeakGainPercent:    percentChange(purchasePrice, peak),
		CurrentGainPercent: percentChange(purchasePrice, currentPrice),
	}
	out.StopLossPercent = CalculateStopLoss(out.PeakGainPercent, cfg)
	out.Triggered = cfg.Enabled && out.CurrentGainPercent <= out.StopLossPercent
	return out
}

func percentChange(from, to decimal.Decimal) float64 {
	if from.IsZero() {
		return 0
	}
	pct, _ := to.Sub(from).Div(from).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}
