package bootstrap

import (
	"context"
	"testing"
	"time"

	"agentengine/src/cache"
	"agentengine/src/database/dbtest"
	"agentengine/src/model"
	"agentengine/src/scheduler"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStack(t *testing.T) *Stack {
	t.Helper()
	s, err := New(dbtest.NewSQLite(t), cache.Config{
		Backend:        cache.BackendBadger,
		EntryTTL:       time.Minute,
		AgentConfigTTL: time.Minute,
	}, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStackRecordsThroughCachedStores(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	_, err := s.Recorder.RecordDeposit(ctx, 1, "wallet-a", model.NativeSOLMint, "SOL", decimal.NewFromInt(3))
	require.NoError(t, err)

	amount, err := s.Balances.Amount(ctx, "wallet-a", model.NativeSOLMint)
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(3)))

	written, err := scheduler.NewSnapshotter(s.BalanceRepo, s.LedgerRepo, nil).TakeSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), written)
}

func TestStackRejectsUnknownCacheBackend(t *testing.T) {
	_, err := New(dbtest.NewSQLite(t), cache.Config{Backend: "memcached"}, logrus.NewEntry(logrus.New()))
	assert.Error(t, err)
}
