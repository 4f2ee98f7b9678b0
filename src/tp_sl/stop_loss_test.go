package tp_sl

import (
	"math"
	"testing"

	"agentengine/src/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slConfig(mode string) model.StopLossConfig {
	return model.StopLossConfig{
		Enabled:           true,
		Mode:              mode,
		DefaultPercentage: -10,
		TrailingLevels: []model.TrailingLevel{
			{Change: 50, StopLoss: 30},
			{Change: 20, StopLoss: 5},
			{Change: 100, StopLoss: 70},
		},
	}
}

func TestCalculateStopLoss_BelowActivationReturnsDefault(t *testing.T) {
	for _, mode := range []string{model.StopLossModeFixed, model.StopLossModeExponential, model.StopLossModeZones} {
		cfg := slConfig(mode)
		for _, p := range []float64{-80, -10, -0.01, 0, 5, 12.5, 19.999} {
			got := CalculateStopLoss(p, cfg)
			if got != cfg.DefaultPercentage {
				t.Fatalf("mode=%s p=%v: got %v want default %v", mode, p, got, cfg.DefaultPercentage)
			}
		}
	}
}

func TestCalculateStopLoss_Fixed(t *testing.T) {
	cfg := slConfig(model.StopLossModeFixed)

	tests := []struct {
		name string
		p    float64
		want float64
	}{
		{name: "activation edge", p: 20, want: 10},
		{name: "25 percent gain keeps 15", p: 25, want: 15},
		{name: "large gain", p: 310, want: 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CalculateStopLoss(tt.p, cfg), 1e-9)
		})
	}
}

func TestCalculateStopLoss_Zones(t *testing.T) {
	cfg := slConfig(model.StopLossModeZones)

	tests := []struct {
		p    float64
		want float64
	}{
		{p: 20, want: 10},
		{p: 25, want: 12.5},
		{p: 40, want: 24},
		{p: 100, want: 70},
		{p: 150, want: 120},
		{p: 400, want: 340},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, CalculateStopLoss(tt.p, cfg), 1e-9, "p=%v", tt.p)
	}
}

func TestCalculateStopLoss_ExponentialActivationEdgeFallsBackToDefault(t *testing.T) {
	cfg := slConfig(model.StopLossModeExponential)

	// x = 0 gives a zero keep fraction, which must not become a zero stop.
	assert.Equal(t, cfg.DefaultPercentage, CalculateStopLoss(20, cfg))
}

func TestCalculateStopLoss_ExponentialKeepsAFractionOfTheGain(t *testing.T) {
	cfg := slConfig(model.StopLossModeExponential)

	for _, p := range []float64{21, 30, 60, 75, 90, 150, 500} {
		got := CalculateStopLoss(p, cfg)
		require.Greater(t, got, 0.0, "p=%v", p)
		require.Less(t, got, p, "p=%v", p)
	}
}

func TestCalculateStopLoss_ExponentialDipAroundPullbackZone(t *testing.T) {
	atDip := exponentialKeepFraction(dipCenter)
	undipped := (1 - math.Exp(-dipCenter/exponentialGrowthScale)) * maxKeepFraction

	assert.InDelta(t, undipped-dipDepth, atDip, 1e-9)
	assert.Greater(t, exponentialKeepFraction(80), atDip, "keep fraction recovers after the dip")
}

func TestCalculateStopLoss_ExponentialBoostIsNotReclamped(t *testing.T) {
	keep := exponentialKeepFraction(400)

	assert.Greater(t, keep, maxKeepFraction)
	assert.InDelta(t, maxKeepFraction+postDipMaxBoost, keep, 1e-5)
}

func TestCalculateStopLoss_Custom(t *testing.T) {
	cfg := slConfig(model.StopLossModeCustom)

	tests := []struct {
		name string
		p    float64
		want float64
	}{
		{name: "no level reached", p: 10, want: -10},
		{name: "exact level", p: 20, want: 5},
		{name: "between levels picks greatest change below", p: 75, want: 30},
		{name: "above all levels", p: 1000, want: 70},
		{name: "negative change short circuits", p: -5, want: -10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateStopLoss(tt.p, cfg))
		})
	}
}

func TestCalculateStopLoss_NonPositiveComputedValueUsesDefault(t *testing.T) {
	cfg := model.StopLossConfig{
		Mode:              model.StopLossModeCustom,
		DefaultPercentage: -15,
		TrailingLevels:    []model.TrailingLevel{{Change: 10, StopLoss: 0}, {Change: 30, StopLoss: -2}},
	}

	assert.Equal(t, -15.0, CalculateStopLoss(12, cfg))
	assert.Equal(t, -15.0, CalculateStopLoss(35, cfg))
}

func TestCalculateStopLoss_UnknownModeBehavesAsFixed(t *testing.T) {
	cfg := slConfig("something-else")

	assert.Equal(t, 15.0, CalculateStopLoss(25, cfg))
}

func TestEvaluateTrailingStop(t *testing.T) {
	cfg := slConfig(model.StopLossModeFixed)
	purchase := decimal.RequireFromString("1")

	t.Run("raises peak and does not trigger on new high", func(t *testing.T) {
		res := EvaluateTrailingStop(purchase, decimal.RequireFromString("1.2"), decimal.RequireFromString("1.5"), cfg)

		assert.True(t, res.PeakPrice.Equal(decimal.RequireFromString("1.5")))
		assert.InDelta(t, 50, res.PeakGainPercent, 1e-9)
		assert.InDelta(t, 40, res.StopLossPercent, 1e-9)
		assert.False(t, res.Triggered)
	})

	t.Run("triggers when price falls back under the trailed stop", func(t *testing.T) {
		res := EvaluateTrailingStop(purchase, decimal.RequireFromString("1.5"), decimal.RequireFromString("1.35"), cfg)

		assert.InDelta(t, 35, res.CurrentGainPercent, 1e-9)
		assert.True(t, res.Triggered)
	})

	t.Run("loss floor before activation", func(t *testing.T) {
		res := EvaluateTrailingStop(purchase, purchase, decimal.RequireFromString("0.89"), cfg)

		assert.Equal(t, -10.0, res.StopLossPercent)
		assert.True(t, res.Triggered)
	})

	t.Run("disabled never triggers", func(t *testing.T) {
		disabled := cfg
		disabled.Enabled = false
		res := EvaluateTrailingStop(purchase, purchase, decimal.RequireFromString("0.1"), disabled)

		assert.False(t, res.Triggered)
	})
}
