package scheduler

import (
	"context"
	"testing"
	"time"

	"agentengine/src/database/dbtest"
	"agentengine/src/model"
	"agentengine/src/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeSnapshotWritesOneRowPerBalancePerHour(t *testing.T) {
	db := dbtest.NewSQLite(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 10, 42, 0, 0, time.UTC)
	for _, b := range []model.Balance{
		{AgentID: 1, WalletAddress: "wallet-a", TokenAddress: model.NativeSOLMint, TokenSymbol: "SOL", Balance: decimal.NewFromInt(5), LastUpdated: now},
		{AgentID: 1, WalletAddress: "wallet-a", TokenAddress: "token-1", TokenSymbol: "TKN", Balance: decimal.NewFromInt(700), LastUpdated: now},
	} {
		require.NoError(t, db.Create(&b).Error)
	}

	s := NewSnapshotter(new(repository.GormBalanceRepository).WithDB(db), new(repository.GormLedgerRepository).WithDB(db), nil)
	s.now = func() time.Time { return now }

	n, err := s.TakeSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// same hour, nothing new
	s.now = func() time.Time { return now.Add(10 * time.Minute) }
	n, err = s.TakeSnapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	s.now = func() time.Time { return now.Add(time.Hour) }
	n, err = s.TakeSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var snaps []model.BalanceSnapshot
	require.NoError(t, db.Order("snapshot_at ASC, token_address ASC").Find(&snaps).Error)
	require.Len(t, snaps, 4)
	assert.True(t, snaps[0].SnapshotAt.Equal(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)))
	assert.True(t, snaps[3].SnapshotAt.Equal(time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)))
}

func TestManualSnapshotJobThroughScheduler(t *testing.T) {
	db := dbtest.NewSQLite(t)
	require.NoError(t, db.Create(&model.Balance{
		AgentID: 1, WalletAddress: "wallet-a", TokenAddress: model.NativeSOLMint, Balance: decimal.NewFromInt(1), LastUpdated: time.Now(),
	}).Error)

	s := New(Config{JobTimeout: time.Second}, nil)
	defer s.Stop()
	snap := NewSnapshotter(new(repository.GormBalanceRepository).WithDB(db), new(repository.GormLedgerRepository).WithDB(db), nil)

	added, err := s.Schedule(ManualSnapshotJob(snap))
	require.NoError(t, err)
	require.True(t, added)
	require.Eventually(t, func() bool { return len(s.Status()) == 0 }, time.Second, 5*time.Millisecond)

	var n int64
	require.NoError(t, db.Model(&model.BalanceSnapshot{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	job := HourlySnapshotJob(snap, time.Hour)
	assert.Equal(t, HourlySnapshotJobID, job.ID)
	assert.Equal(t, time.Hour, job.Delay)
}
