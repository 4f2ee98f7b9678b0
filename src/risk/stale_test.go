package risk

import (
	"testing"
	"time"

	"agentengine/src/model"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateStaleTrade(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	cfg := model.StaleTradeConfig{Enabled: true, MaxHoldMinutes: 60, MinGainPercent: 5}
	recentDCA := now.Add(-10 * time.Minute)

	tests := []struct {
		name string
		pos  model.Position
		gain float64
		cfg  model.StaleTradeConfig
		want bool
	}{
		{name: "old and flat", pos: model.Position{CreatedAt: now.Add(-2 * time.Hour)}, gain: 1, cfg: cfg, want: true},
		{name: "old but winning", pos: model.Position{CreatedAt: now.Add(-2 * time.Hour)}, gain: 8, cfg: cfg, want: false},
		{name: "young", pos: model.Position{CreatedAt: now.Add(-30 * time.Minute)}, gain: -3, cfg: cfg, want: false},
		{name: "recent dca resets hold time", pos: model.Position{CreatedAt: now.Add(-2 * time.Hour), LastDCATime: &recentDCA}, gain: 0, cfg: cfg, want: false},
		{name: "disabled", pos: model.Position{CreatedAt: now.Add(-48 * time.Hour)}, gain: -50, cfg: model.StaleTradeConfig{MaxHoldMinutes: 60}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateStaleTrade(&tt.pos, tt.gain, now, tt.cfg)
			assert.Equal(t, tt.want, got.Stale)
		})
	}
}
