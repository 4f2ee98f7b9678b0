package risk

import (
	"time"

	"agentengine/src/model"
)

// StaleDecision reports whether a position has been held too long for too little gain.
type StaleDecision struct {
	Stale       bool
	HeldFor     time.Duration
	GainPercent float64
}

// EvaluateStaleTrade flags positions older than maxHoldMinutes whose gain is still below
// minGainPercent. The hold time is measured from the last DCA buy when there was one.
func EvaluateStaleTrade(p *model.Position, gainPercent float64, now time.Time, cfg model.StaleTradeConfig) StaleDecision {
	since := p.CreatedAt
	if p.LastDCATime != nil && p.LastDCATime.After(since) {
		since = *p.LastDCATime
	}
	out := StaleDecision{HeldFor: now.Sub(since), GainPercent: gainPercent}
	if !cfg.Enabled || cfg.MaxHoldMinutes <= 0 {
		return out
	}
	out.Stale = out.HeldFor >= time.Duration(cfg.MaxHoldMinutes)*time.Minute && gainPercent < cfg.MinGainPercent
	return out
}
