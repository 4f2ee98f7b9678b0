package store

import (
	"context"
	"testing"

	"agentengine/src/cache"
	"agentengine/src/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentConfigStore_ReadThroughAndInvalidate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cfg, err := f.configs.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	require.NoError(t, f.configs.Save(ctx, 7, model.AgentTradingConfig{Signals: model.SignalFilterConfig{MinScore: 60}}))
	cfg, err = f.configs.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 60.0, cfg.Signals.MinScore)
	assert.True(t, cached(t, f.cache, cache.AgentConfigKey(7)))

	require.NoError(t, f.configs.Save(ctx, 7, model.AgentTradingConfig{Signals: model.SignalFilterConfig{MinScore: 80}}))
	assert.False(t, cached(t, f.cache, cache.AgentConfigKey(7)), "writer invalidates instead of updating")

	cfg, err = f.configs.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 80.0, cfg.Signals.MinScore)
}

func TestAgentConfigStore_DegradesWhenCacheIsDown(t *testing.T) {
	f := newFixture(t, failingCache{})
	ctx := context.Background()

	require.NoError(t, f.configs.Save(ctx, 3, model.AgentTradingConfig{StaleTrade: model.StaleTradeConfig{Enabled: true, MaxHoldMinutes: 30}}))
	cfg, err := f.configs.Get(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 30, cfg.StaleTrade.MaxHoldMinutes)
}
