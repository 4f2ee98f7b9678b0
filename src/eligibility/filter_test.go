package eligibility

import (
	"context"
	"errors"
	"testing"

	"agentengine/src/externalmodel"
	"agentengine/src/model"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgents struct {
	byUser map[uint][]model.Agent
	err    error
	calls  int
}

func (f *fakeAgents) AgentsByUser(_ context.Context, userID uint) ([]model.Agent, error) {
	f.calls++
	return f.byUser[userID], f.err
}

type fakeConfigs map[uint]*model.AgentTradingConfig

func (f fakeConfigs) Get(_ context.Context, agentID uint) (*model.AgentTradingConfig, error) {
	return f[agentID], nil
}

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64 { return &v }
func uptr(v uint) *uint { return &v }

func signal() externalmodel.TradingSignal {
	return externalmodel.TradingSignal{
		ID:           100,
		UserID:       uptr(1),
		TokenAddress: "Mint111",
		SignalType:   externalmodel.SignalTypeBuy,
		Strength:     75,
	}
}

func newFilter(agents *fakeAgents, configs fakeConfigs) (*Filter, *test.Hook) {
	log, hook := test.NewNullLogger()
	return NewFilter(agents, configs, logrus.NewEntry(log)), hook
}

func TestGetEligibleAgents_NilOwnerRejectsEverything(t *testing.T) {
	agents := &fakeAgents{}
	f, _ := newFilter(agents, fakeConfigs{})
	s := signal()
	s.UserID = nil

	res, err := f.GetEligibleAgents(context.Background(), s, []uint{1, 2, 3}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint{}, res.Eligible)
	assert.Zero(t, agents.calls)
}

func TestGetEligibleAgents_IntersectsWithActive(t *testing.T) {
	agents := &fakeAgents{byUser: map[uint][]model.Agent{1: {{ID: 1}, {ID: 2}, {ID: 3}}}}
	configs := fakeConfigs{1: {}, 2: {}, 3: {}}
	f, _ := newFilter(agents, configs)

	res, err := f.GetEligibleAgents(context.Background(), signal(), []uint{3, 1, 99}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 3}, res.Eligible)
	assert.Empty(t, res.Rejections)
}

func TestGetEligibleAgents_PausedShortCircuits(t *testing.T) {
	user := &model.User{ID: 1, LiveTradingPaused: true}
	agents := &fakeAgents{byUser: map[uint][]model.Agent{1: {
		{ID: 1, TradingMode: model.TradingModeLive, User: user},
		{ID: 2, TradingMode: model.TradingModePaper, User: user},
	}}}
	// agent 1 has no config at all, the pause must be reported alone
	f, _ := newFilter(agents, fakeConfigs{2: {}})

	res, err := f.GetEligibleAgents(context.Background(), signal(), []uint{1, 2}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint{2}, res.Eligible)
	assert.Equal(t, []string{"automated live trading is paused"}, res.Rejections[1])
}

func TestGetEligibleAgents_MissingConfigFails(t *testing.T) {
	agents := &fakeAgents{byUser: map[uint][]model.Agent{1: {{ID: 4}}}}
	f, _ := newFilter(agents, fakeConfigs{})

	res, err := f.GetEligibleAgents(context.Background(), signal(), []uint{4}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Eligible)
	assert.Equal(t, []string{"no trading configuration"}, res.Rejections[4])
}

func TestGetEligibleAgents_AccumulatesAndLogsEveryReason(t *testing.T) {
	agents := &fakeAgents{byUser: map[uint][]model.Agent{1: {{ID: 1}}}}
	configs := fakeConfigs{1: {Signals: model.SignalFilterConfig{
		MinScore:           80,
		AllowedSignalTypes: []string{"sell"},
		TokenFilterMode:    model.TokenFilterBlacklist,
		Blacklist:          []string{"Mint111"},
	}}}
	f, hook := newFilter(agents, configs)

	res, err := f.GetEligibleAgents(context.Background(), signal(), []uint{1}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Eligible)
	assert.Equal(t, []string{
		"signal strength 75.00 below minimum score 80.00",
		"signal type BUY not allowed",
		"token Mint111 is blacklisted",
	}, res.Rejections[1])

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Contains(t, entry.Data["reasons"], "blacklisted")
	assert.Contains(t, entry.Data["reasons"], "below minimum score")
}

func TestGetEligibleAgents_DirectoryErrorSurfaces(t *testing.T) {
	agents := &fakeAgents{err: errors.New("db down")}
	f, _ := newFilter(agents, fakeConfigs{})

	_, err := f.GetEligibleAgents(context.Background(), signal(), []uint{1}, nil, nil)
	assert.Error(t, err)
}

func TestCheck_Whitelist(t *testing.T) {
	filter := model.SignalFilterConfig{TokenFilterMode: model.TokenFilterWhitelist, Whitelist: []string{"Other"}}
	assert.Equal(t, []string{"token Mint111 is not whitelisted"}, Check(filter, signal(), nil, nil))

	filter.Whitelist = []string{"Mint111"}
	assert.Empty(t, Check(filter, signal(), nil, nil))

	filter.Whitelist = []string{"mint111"}
	assert.NotEmpty(t, Check(filter, signal(), nil, nil), "addresses are case sensitive")
}

func TestCheck_MetricBounds(t *testing.T) {
	metrics := &model.TokenMetrics{MarketCapUSD: f64(50_000), LiquidityUSD: f64(5_000), Holders: i64(40)}

	cases := []struct {
		name    string
		filter  model.SignalFilterConfig
		metrics *model.TokenMetrics
		err     error
		want    []string
	}{
		{"no bounds ignore missing metrics", model.SignalFilterConfig{}, nil, errors.New("down"), nil},
		{"all bounds met", model.SignalFilterConfig{MinMarketCap: f64(10_000), MaxMarketCap: f64(1e6), MinLiquidity: f64(1_000), MinHolders: i64(10)}, metrics, nil, nil},
		{"fetch failure with bound", model.SignalFilterConfig{MinHolders: i64(10)}, nil, errors.New("down"),
			[]string{"token metrics unavailable while metric bounds are configured"}},
		{"every bound unmet", model.SignalFilterConfig{MinMarketCap: f64(100_000), MinLiquidity: f64(10_000), MinHolders: i64(100)}, metrics, nil,
			[]string{"market cap 50000 below minimum 100000", "liquidity 5000 below minimum 10000", "holders 40 below minimum 100"}},
		{"above max cap", model.SignalFilterConfig{MaxMarketCap: f64(20_000)}, metrics, nil,
			[]string{"market cap 50000 above maximum 20000"}},
		{"unknown field", model.SignalFilterConfig{MinLiquidity: f64(1)}, &model.TokenMetrics{}, nil,
			[]string{"liquidity unknown"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Check(tc.filter, signal(), tc.metrics, tc.err))
		})
	}
}
