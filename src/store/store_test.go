package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"agentengine/src/cache"
	"agentengine/src/database/dbtest"
	"agentengine/src/model"
	"agentengine/src/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var errCacheDown = errors.New("cache down")

// failingCache rejects every call.
type failingCache struct{}

func (failingCache) Get(context.Context, string) (string, bool, error) { return "", false, errCacheDown }
func (failingCache) Set(context.Context, string, string, time.Duration) error {
	return errCacheDown
}
func (failingCache) Del(context.Context, ...string) (int, error) { return 0, errCacheDown }
func (failingCache) SAdd(context.Context, string, ...string) error { return errCacheDown }
func (failingCache) SMembers(context.Context, string) ([]string, error) { return nil, errCacheDown }
func (failingCache) SRem(context.Context, string, ...string) error { return errCacheDown }
func (failingCache) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errCacheDown
}
func (failingCache) DelIfEquals(context.Context, string, string) (bool, error) {
	return false, errCacheDown
}
func (failingCache) ExpireIfEquals(context.Context, string, string, time.Duration) (bool, error) {
	return false, errCacheDown
}
func (failingCache) Close() error { return nil }

type fixture struct {
	db        *gorm.DB
	cache     cache.Cache
	tx        *Transactor
	positions *PositionStore
	balances  *BalanceStore
	configs   *AgentConfigStore
	posRepo   *repository.GormPositionRepository
}

func newFixture(t *testing.T, c cache.Cache) *fixture {
	t.Helper()
	db := dbtest.NewSQLite(t)
	if c == nil {
		bc, err := cache.NewBadgerCache("")
		require.NoError(t, err)
		t.Cleanup(func() { _ = bc.Close() })
		c = bc
	}
	posRepo := new(repository.GormPositionRepository).WithDB(db)
	return &fixture{
		db:        db,
		cache:     c,
		tx:        NewTransactor(db, nil),
		positions: NewPositionStore(posRepo, c, time.Minute, nil),
		balances:  NewBalanceStore(new(repository.GormBalanceRepository).WithDB(db), c, time.Minute, nil),
		configs:   NewAgentConfigStore(new(repository.GormAgentConfigRepository).WithDB(db), c, time.Minute, nil),
		posRepo:   posRepo,
	}
}

func newPosition(agentID uint, wallet, token string) *model.Position {
	return &model.Position{
		AgentID:          agentID,
		WalletAddress:    wallet,
		TokenAddress:     token,
		TokenSymbol:      "TKN",
		PurchasePrice:    decimal.NewFromInt(2),
		PurchaseAmount:   decimal.NewFromInt(100),
		PeakPrice:        decimal.NewFromInt(2),
		TotalInvestedSol: decimal.NewFromInt(200),
	}
}

func cached(t *testing.T, c cache.Cache, key string) bool {
	t.Helper()
	_, ok, err := c.Get(context.Background(), key)
	require.NoError(t, err)
	return ok
}
