package walletreset

import (
	"context"
	"errors"
	"testing"
	"time"

	"agentengine/src/apperrors"
	"agentengine/src/cache"
	"agentengine/src/database/dbtest"
	"agentengine/src/events"
	"agentengine/src/ledger"
	"agentengine/src/lock"
	"agentengine/src/model"
	"agentengine/src/repository"
	"agentengine/src/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	walletA = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	walletB = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	token   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	token2  = "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"
)

// brokenLedger fails the transaction delete so the reset transaction rolls back midway.
type brokenLedger struct {
	*repository.GormLedgerRepository
}

func (brokenLedger) DeleteTransactionsByWallet(context.Context, string) (int64, error) {
	return 0, errors.New("connection reset by peer")
}

type suite struct {
	db        *gorm.DB
	cache     cache.Cache
	positions *store.PositionStore
	balances  *store.BalanceStore
	recorder  *ledger.Recorder
	bus       *events.Bus
	deps      Deps
	user      model.User
	positionA *model.Position
}

func newSuite(t *testing.T) *suite {
	t.Helper()
	ctx := context.Background()
	db := dbtest.NewSQLite(t)
	c, err := cache.NewBadgerCache("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	user := model.User{UserName: "owner"}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Create(&model.Wallet{UserID: user.ID, Address: walletA}).Error)
	require.NoError(t, db.Create(&model.Wallet{UserID: user.ID, Address: walletB}).Error)

	posRepo := new(repository.GormPositionRepository).WithDB(db)
	balRepo := new(repository.GormBalanceRepository).WithDB(db)
	ledgerRepo := new(repository.GormLedgerRepository).WithDB(db)
	positions := store.NewPositionStore(posRepo, c, time.Minute, nil)
	balances := store.NewBalanceStore(balRepo, c, time.Minute, nil)
	tx := store.NewTransactor(db, nil)
	recorder := ledger.NewRecorder(tx, positions, balances, ledgerRepo, nil, ledger.Config{TxTimeout: 5 * time.Second}, nil)

	for i, wallet := range []string{walletA, walletB} {
		_, err := recorder.RecordDeposit(ctx, uint(i+1), wallet, model.NativeSOLMint, "SOL", decimal.NewFromInt(10))
		require.NoError(t, err)
	}
	var positionA *model.Position
	for i, wallet := range []string{walletA, walletB} {
		p, err := recorder.RecordPurchase(ctx, ledger.Purchase{
			AgentID:       uint(i + 1),
			WalletAddress: wallet,
			TokenAddress:  token,
			TokenSymbol:   "USDC",
			Fill:          ledger.Fill{Signature: "sig", TokenAmount: decimal.NewFromInt(100), SolAmount: decimal.NewFromInt(1)},
		})
		require.NoError(t, err)
		if wallet == walletA {
			positionA = p
		}
	}
	_, err = ledgerRepo.CreateSnapshots(ctx, []model.BalanceSnapshot{{
		AgentID:       1,
		WalletAddress: walletA,
		TokenAddress:  model.NativeSOLMint,
		Balance:       decimal.NewFromInt(9),
		SnapshotAt:    time.Now().UTC().Truncate(time.Hour),
	}})
	require.NoError(t, err)

	bus := events.NewBus(16, nil)
	return &suite{
		db:        db,
		cache:     c,
		positions: positions,
		balances:  balances,
		recorder:  recorder,
		bus:       bus,
		user:      user,
		positionA: positionA,
		deps: Deps{
			Owners:        new(repository.GormUserRepository).WithDB(db),
			Positions:     posRepo,
			Balances:      balRepo,
			Ledger:        ledgerRepo,
			PositionCache: positions,
			BalanceCache:  balances,
			Transactor:    tx,
			Events:        bus,
		},
	}
}

// warm fills every cache key the reset is expected to clear.
func (s *suite) warm(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := s.positions.ListByWallet(ctx, walletA)
	require.NoError(t, err)
	_, err = s.positions.ListByToken(ctx, token)
	require.NoError(t, err)
	_, err = s.balances.ListByWallet(ctx, walletA)
	require.NoError(t, err)
}

func (s *suite) count(t *testing.T, m interface{}, wallet string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.db.Model(m).Where("wallet_address = ?", wallet).Count(&n).Error)
	return n
}

func (s *suite) cached(t *testing.T, key string) bool {
	t.Helper()
	_, ok, err := s.cache.Get(context.Background(), key)
	require.NoError(t, err)
	return ok
}

func testConfig() Config {
	return Config{TxTimeout: 5 * time.Second, LockTimeout: 200 * time.Millisecond}
}

func TestResetWallet(t *testing.T) {
	s := newSuite(t)
	s.warm(t)
	sub, cancel := s.bus.Subscribe("price-tracker")
	defer cancel()

	res, err := New(s.deps, testConfig(), nil).ResetWallet(context.Background(), s.user.ID, walletA)
	require.NoError(t, err)

	assert.Equal(t, ResetResult{
		WalletAddress:       walletA,
		PositionsDeleted:    1,
		SwapsDeleted:        1,
		BalancesDeleted:     2,
		TransactionsDeleted: 2,
		SnapshotsDeleted:    1,
		PositionKeysCleared: 3,
		BalanceKeysCleared:  3,
		EventsPublished:     1,
	}, res)

	select {
	case ev := <-sub:
		assert.Equal(t, model.PositionClosed, ev.Type)
		assert.Equal(t, s.positionA.ID, ev.PositionID)
		assert.Equal(t, "wallet_reset", ev.Reason)
	case <-time.After(time.Second):
		t.Fatal("no position closed event")
	}

	for _, m := range []interface{}{&model.Position{}, &model.Swap{}, &model.Balance{}, &model.Transaction{}, &model.BalanceSnapshot{}} {
		assert.Zero(t, s.count(t, m, walletA))
	}
	assert.False(t, s.cached(t, cache.PositionKey(s.positionA.ID)))
	assert.False(t, s.cached(t, cache.BalanceKey(walletA, model.NativeSOLMint)))

	// the other wallet is untouched
	assert.Equal(t, int64(1), s.count(t, &model.Position{}, walletB))
	assert.Equal(t, int64(2), s.count(t, &model.Balance{}, walletB))
	assert.Equal(t, int64(2), s.count(t, &model.Transaction{}, walletB))
}

func TestResetWalletIsIdempotentOnceDone(t *testing.T) {
	s := newSuite(t)
	c := New(s.deps, testConfig(), nil)

	_, err := c.ResetWallet(context.Background(), s.user.ID, walletA)
	require.NoError(t, err)
	res, err := c.ResetWallet(context.Background(), s.user.ID, walletA)
	require.NoError(t, err)
	assert.Equal(t, ResetResult{WalletAddress: walletA}, res)
}

func TestResetWalletRequiresOwnership(t *testing.T) {
	s := newSuite(t)

	_, err := New(s.deps, testConfig(), nil).ResetWallet(context.Background(), s.user.ID+1, walletA)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeWalletNotFound, apperrors.CodeOf(err))
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	assert.Equal(t, int64(1), s.count(t, &model.Position{}, walletA))
}

func TestResetWalletRejectsMalformedAddress(t *testing.T) {
	s := newSuite(t)
	_, err := New(s.deps, testConfig(), nil).ResetWallet(context.Background(), s.user.ID, "wallet-a")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestResetWalletRollbackLeavesCacheBehindDurableStore(t *testing.T) {
	s := newSuite(t)
	s.warm(t)
	ctx := context.Background()

	broken := s.deps
	broken.Ledger = brokenLedger{s.deps.Ledger.(*repository.GormLedgerRepository)}
	res, err := New(broken, testConfig(), nil).ResetWallet(ctx, s.user.ID, walletA)
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, apperrors.CodeTransactionFailed, apperrors.CodeOf(err))
	assert.Zero(t, res.PositionsDeleted)
	assert.Equal(t, 3, res.PositionKeysCleared)

	// durable state rolled back entirely while the cache was already cleared
	assert.Equal(t, int64(1), s.count(t, &model.Position{}, walletA))
	assert.Equal(t, int64(1), s.count(t, &model.Swap{}, walletA))
	assert.Equal(t, int64(2), s.count(t, &model.Balance{}, walletA))
	assert.False(t, s.cached(t, cache.PositionKey(s.positionA.ID)))
	assert.False(t, s.cached(t, cache.PositionsByWalletKey(walletA)))

	// reads fall through to the durable rows and repopulate the cache
	listed, err := s.positions.ListByWallet(ctx, walletA)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, s.cached(t, cache.PositionKey(s.positionA.ID)))

	// a retry converges
	res, err = New(s.deps, testConfig(), nil).ResetWallet(ctx, s.user.ID, walletA)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.PositionsDeleted)
	assert.Zero(t, s.count(t, &model.Position{}, walletA))
}

func TestResetWalletWaitsForWalletLock(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()
	locks := lock.NewDistributedLock(s.cache, lock.Config{TTL: time.Minute, RetryDelay: 10 * time.Millisecond, MaxRetryDelay: 20 * time.Millisecond}, nil)

	lease, ok, err := locks.TryAcquire(ctx, lock.WalletResource(walletA), 0)
	require.NoError(t, err)
	require.True(t, ok)

	deps := s.deps
	deps.Locks = locks
	_, err = New(deps, testConfig(), nil).ResetWallet(ctx, s.user.ID, walletA)
	assert.Equal(t, apperrors.CodeLockNotAcquired, apperrors.CodeOf(err))
	assert.Equal(t, int64(1), s.count(t, &model.Position{}, walletA))

	_, err = locks.Release(ctx, lease)
	require.NoError(t, err)
	res, err := New(deps, testConfig(), nil).ResetWallet(ctx, s.user.ID, walletA)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.PositionsDeleted)
}

// withLocks puts the trade guards and the reset under the same lease backend.
func (s *suite) withLocks() Deps {
	locks := lock.NewDistributedLock(s.cache, lock.Config{TTL: time.Minute, RetryDelay: 5 * time.Millisecond, MaxRetryDelay: 10 * time.Millisecond}, nil)
	s.balances.WithLocks(locks)
	deps := s.deps
	deps.Locks = locks
	return deps
}

func TestResetWalletWaitsForTradeInFlight(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()
	deps := s.withLocks()

	entered := make(chan struct{})
	release := make(chan struct{})
	trade := make(chan error, 1)
	go func() {
		trade <- s.balances.Guard(ctx, walletA, []string{model.NativeSOLMint, token2}, func(ctx context.Context) error {
			close(entered)
			<-release
			return s.db.Create(&model.Balance{AgentID: 1, WalletAddress: walletA, TokenAddress: token2, TokenSymbol: "BONK", Balance: decimal.NewFromInt(50)}).Error
		})
	}()
	<-entered

	reset := make(chan error, 1)
	go func() {
		_, err := New(deps, Config{TxTimeout: 5 * time.Second, LockTimeout: 5 * time.Second}, nil).ResetWallet(ctx, s.user.ID, walletA)
		reset <- err
	}()

	select {
	case err := <-reset:
		t.Fatalf("reset finished while a trade held the wallet: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-trade)
	require.NoError(t, <-reset)

	for _, m := range []interface{}{&model.Position{}, &model.Swap{}, &model.Balance{}, &model.Transaction{}} {
		assert.Zero(t, s.count(t, m, walletA))
	}
}

func TestResetWalletWithConcurrentPurchaseLeavesNothing(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()
	deps := s.withLocks()

	start := make(chan struct{})
	purchase := make(chan error, 1)
	go func() {
		<-start
		_, err := s.recorder.RecordPurchase(ctx, ledger.Purchase{
			AgentID:       1,
			WalletAddress: walletA,
			TokenAddress:  token2,
			TokenSymbol:   "BONK",
			Fill:          ledger.Fill{Signature: "sig-2", TokenAmount: decimal.NewFromInt(500), SolAmount: decimal.NewFromInt(1)},
		})
		purchase <- err
	}()
	reset := make(chan error, 1)
	go func() {
		<-start
		_, err := New(deps, Config{TxTimeout: 5 * time.Second, LockTimeout: 5 * time.Second}, nil).ResetWallet(ctx, s.user.ID, walletA)
		reset <- err
	}()
	close(start)

	require.NoError(t, <-reset)
	// Whichever side won the wallet lease, the purchase either landed before the reset
	// or found no SOL left to spend.
	<-purchase

	for _, m := range []interface{}{&model.Position{}, &model.Swap{}, &model.Balance{}, &model.Transaction{}} {
		assert.Zero(t, s.count(t, m, walletA))
	}
	assert.Equal(t, int64(1), s.count(t, &model.Position{}, walletB))
}
