package eligibility

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"agentengine/src/externalmodel"
	"agentengine/src/model"

	"github.com/sirupsen/logrus"
)

type AgentDirectory interface {
	AgentsByUser(ctx context.Context, userID uint) ([]model.Agent, error)
}

type ConfigSource interface {
	Get(ctx context.Context, agentID uint) (*model.AgentTradingConfig, error)
}

// Result lists eligible agent ids in ascending order and every reason a candidate was rejected.
type Result struct {
	Eligible   []uint
	Rejections map[uint][]string
}

// Filter decides which agents may act on a signal.
type Filter struct {
	agents  AgentDirectory
	configs ConfigSource
	log     *logrus.Entry
}

func NewFilter(agents AgentDirectory, configs ConfigSource, log *logrus.Entry) *Filter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Filter{agents: agents, configs: configs, log: log.WithField("component", "EligibilityFilter")}
}

// GetEligibleAgents evaluates every active agent owned by the signal's user. metrics and
// metricsErr are fetched once per signal by the caller; a failed fetch only rejects agents
// that configured a metric bound.
func (f *Filter) GetEligibleAgents(ctx context.Context, signal externalmodel.TradingSignal, activeAgentIDs []uint, metrics *model.TokenMetrics, metricsErr error) (Result, error) {
	res := Result{Eligible: []uint{}, Rejections: map[uint][]string{}}
	if signal.UserID == nil {
		f.log.WithField("signal_id", signal.ID).Warn("Signal has no owner, no agent may act on it")
		return res, nil
	}

	owned, err := f.agents.AgentsByUser(ctx, *signal.UserID)
	if err != nil {
		return res, err
	}
	active := make(map[uint]bool, len(activeAgentIDs))
	for _, id := range activeAgentIDs {
		active[id] = true
	}

	for _, agent := range owned {
		if !active[agent.ID] {
			continue
		}
		reasons := f.evaluate(ctx, agent, signal, metrics, metricsErr)
		if len(reasons) == 0 {
			res.Eligible = append(res.Eligible, agent.ID)
			continue
		}
		res.Rejections[agent.ID] = reasons
		f.log.WithFields(logrus.Fields{
			"signal_id": signal.ID,
			"agent_id":  agent.ID,
			"token":     signal.TokenAddress,
			"reasons":   strings.Join(reasons, "; "),
		}).Info("Agent not eligible for signal")
	}
	return res, nil
}

func (f *Filter) evaluate(ctx context.Context, agent model.Agent, signal externalmodel.TradingSignal, metrics *model.TokenMetrics, metricsErr error) []string {
	if agent.User != nil && agent.User.TradingPaused(agent.TradingMode) {
		return []string{fmt.Sprintf("automated %s trading is paused", agent.TradingMode)}
	}

	cfg, err := f.configs.Get(ctx, agent.ID)
	if err != nil {
		f.log.WithError(err).WithField("agent_id", agent.ID).Warn("Failed to load agent config")
		return []string{"trading configuration unavailable"}
	}
	if cfg == nil {
		return []string{"no trading configuration"}
	}

	return Check(cfg.Signals, signal, metrics, metricsErr)
}

// Check returns every unmet condition of filter, not just the first.
func Check(filter model.SignalFilterConfig, signal externalmodel.TradingSignal, metrics *model.TokenMetrics, metricsErr error) []string {
	var reasons []string

	if signal.Strength < filter.MinScore {
		reasons = append(reasons, fmt.Sprintf("signal strength %.2f below minimum score %.2f", signal.Strength, filter.MinScore))
	}
	if len(filter.AllowedSignalTypes) > 0 && !containsFold(filter.AllowedSignalTypes, signal.SignalType) {
		reasons = append(reasons, fmt.Sprintf("signal type %s not allowed", signal.SignalType))
	}

	switch filter.TokenFilterMode {
	case model.TokenFilterBlacklist:
		if slices.Contains(filter.Blacklist, signal.TokenAddress) {
			reasons = append(reasons, fmt.Sprintf("token %s is blacklisted", signal.TokenAddress))
		}
	case model.TokenFilterWhitelist:
		if !slices.Contains(filter.Whitelist, signal.TokenAddress) {
			reasons = append(reasons, fmt.Sprintf("token %s is not whitelisted", signal.TokenAddress))
		}
	}

	if !filter.HasMetricBounds() {
		return reasons
	}
	if metricsErr != nil || metrics == nil {
		return append(reasons, "token metrics unavailable while metric bounds are configured")
	}

	if filter.MinMarketCap != nil || filter.MaxMarketCap != nil {
		switch mc := metrics.MarketCapUSD; {
		case mc == nil:
			reasons = append(reasons, "market cap unknown")
		case filter.MinMarketCap != nil && *mc < *filter.MinMarketCap:
			reasons = append(reasons, fmt.Sprintf("market cap %.0f below minimum %.0f", *mc, *filter.MinMarketCap))
		case filter.MaxMarketCap != nil && *mc > *filter.MaxMarketCap:
			reasons = append(reasons, fmt.Sprintf("market cap %.0f above maximum %.0f", *mc, *filter.MaxMarketCap))
		}
	}
	if filter.MinLiquidity != nil {
		switch l := metrics.LiquidityUSD; {
		case l == nil:
			reasons = append(reasons, "liquidity unknown")
		case *l < *filter.MinLiquidity:
			reasons = append(reasons, fmt.Sprintf("liquidity %.0f below minimum %.0f", *l, *filter.MinLiquidity))
		}
	}
	if filter.MinHolders != nil {
		switch h := metrics.Holders; {
		case h == nil:
			reasons = append(reasons, "holder count unknown")
		case *h < *filter.MinHolders:
			reasons = append(reasons, fmt.Sprintf("holders %d below minimum %d", *h, *filter.MinHolders))
		}
	}
	return reasons
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(candidate, v) {
			return true
		}
	}
	return false
}
