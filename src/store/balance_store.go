package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"agentengine/src/apperrors"
	"agentengine/src/cache"
	"agentengine/src/lock"
	"agentengine/src/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BalanceRepository is the durable side of BalanceStore.
type BalanceRepository interface {
	Find(ctx context.Context, walletAddress, tokenAddress string) (*model.Balance, error)
	LockRow(ctx context.Context, walletAddress, tokenAddress string) (*model.Balance, error)
	FindByWallet(ctx context.Context, walletAddress string) ([]model.Balance, error)
	Create(ctx context.Context, b *model.Balance) error
	Save(ctx context.Context, b *model.Balance) error
}

// BalanceStore is the write-through cache over balance rows. Every read-modify-write
// goes through LockRow inside a durable transaction.
type BalanceStore struct {
	repo  BalanceRepository
	cache cache.Cache
	ttl   time.Duration
	log   *logrus.Entry
	locks *lock.DistributedLock
	now   func() time.Time
}

func NewBalanceStore(repo BalanceRepository, c cache.Cache, ttl time.Duration, log *logrus.Entry) *BalanceStore {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &BalanceStore{
		repo:  repo,
		cache: c,
		ttl:   ttl,
		log:   log.WithField("component", "BalanceStore"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the balance or a BALANCE_NOT_FOUND error.
func (s *BalanceStore) Get(ctx context.Context, walletAddress, tokenAddress string) (*model.Balance, error) {
	key := cache.BalanceKey(walletAddress, tokenAddress)
	if !inTx(ctx) {
		var b model.Balance
		ok, err := cache.GetJSON(ctx, s.cache, key, &b)
		if err != nil {
			s.log.WithError(err).WithField("key", key).Warn("Cache unavailable, reading durable store")
		} else if ok {
			return &b, nil
		}
	}

	b, err := s.repo.Find(ctx, walletAddress, tokenAddress)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, balanceNotFound(walletAddress, tokenAddress)
	}
	s.remember(ctx, b)
	return b, nil
}

// Amount returns the balance quantity, zero when no row exists.
func (s *BalanceStore) Amount(ctx context.Context, walletAddress, tokenAddress string) (decimal.Decimal, error) {
	b, err := s.Get(ctx, walletAddress, tokenAddress)
	if apperrors.IsKind(err, apperrors.KindNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return b.Balance, nil
}

// ListByWallet reads through the wallet's token index set.
func (s *BalanceStore) ListByWallet(ctx context.Context, walletAddress string) ([]model.Balance, error) {
	indexKey := cache.BalancesByWalletKey(walletAddress)
	if !inTx(ctx) {
		if balances, ok := s.listFromCache(ctx, walletAddress, indexKey); ok {
			return balances, nil
		}
	}

	balances, err := s.repo.FindByWallet(ctx, walletAddress)
	if err != nil {
		return nil, err
	}
	snapshot := append([]model.Balance(nil), balances...)
	AfterCommit(ctx, s.log, "balance.index", func(ctx context.Context) error {
		if _, err := s.cache.Del(ctx, indexKey); err != nil {
			return err
		}
		if len(snapshot) == 0 {
			return nil
		}
		tokens := make([]string, 0, len(snapshot))
		for _, b := range snapshot {
			if err := cache.SetJSON(ctx, s.cache, cache.BalanceKey(b.WalletAddress, b.TokenAddress), b, s.ttl); err != nil {
				return err
			}
			tokens = append(tokens, b.TokenAddress)
		}
		return s.cache.SAdd(ctx, indexKey, tokens...)
	})
	return balances, nil
}

func (s *BalanceStore) listFromCache(ctx context.Context, walletAddress, indexKey string) ([]model.Balance, bool) {
	tokens, err := s.cache.SMembers(ctx, indexKey)
	if err != nil {
		s.log.WithError(err).WithField("key", indexKey).Warn("Cache unavailable, reading durable store")
		return nil, false
	}
	if len(tokens) == 0 {
		return nil, false
	}
	balances := make([]model.Balance, 0, len(tokens))
	for _, token := range tokens {
		var b model.Balance
		ok, err := cache.GetJSON(ctx, s.cache, cache.BalanceKey(walletAddress, token), &b)
		if err != nil || !ok {
			return nil, false
		}
		balances = append(balances, b)
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].TokenAddress < balances[j].TokenAddress })
	return balances, true
}

// Create inserts a new balance row. A row already present for the pair is a
// BALANCE_ALREADY_EXISTS conflict.
func (s *BalanceStore) Create(ctx context.Context, b *model.Balance) error {
	if b.LastUpdated.IsZero() {
		b.LastUpdated = s.now()
	}
	if err := s.repo.Create(ctx, b); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Conflict(apperrors.CodeBalanceExists,
				"balance for "+b.WalletAddress+"/"+b.TokenAddress+" already exists")
		}
		return err
	}
	s.remember(ctx, b)
	s.dropIndex(ctx, b.WalletAddress)
	return nil
}

// LockRow reads the row with a row level lock held until the transaction in ctx ends.
// It returns (nil, nil) when no row exists.
func (s *BalanceStore) LockRow(ctx context.Context, walletAddress, tokenAddress string) (*model.Balance, error) {
	return s.repo.LockRow(ctx, walletAddress, tokenAddress)
}

// ApplyDelta locks the (wallet, token) row, adds delta and writes it back. A missing row
// is created when delta is positive. The result may not go negative.
func (s *BalanceStore) ApplyDelta(ctx context.Context, agentID uint, walletAddress, tokenAddress, tokenSymbol string, delta decimal.Decimal) (*model.Balance, error) {
	if !inTx(ctx) {
		return nil, apperrors.New(apperrors.KindInternal, apperrors.CodeTransactionFailed, "balance mutation outside of a transaction")
	}

	b, err := s.repo.LockRow(ctx, walletAddress, tokenAddress)
	if err != nil {
		return nil, err
	}

	if b == nil {
		if delta.IsNegative() {
			return nil, apperrors.InsufficientResource(apperrors.CodeInsufficientBalance,
				"no "+tokenAddress+" balance to debit for "+walletAddress)
		}
		b = &model.Balance{
			AgentID:       agentID,
			WalletAddress: walletAddress,
			TokenAddress:  tokenAddress,
			TokenSymbol:   tokenSymbol,
			Balance:       delta,
			LastUpdated:   s.now(),
		}
		if err := s.Create(ctx, b); err != nil {
			return nil, err
		}
		return b, nil
	}

	next := b.Balance.Add(delta)
	if next.IsNegative() {
		return nil, apperrors.InsufficientResource(apperrors.CodeInsufficientBalance,
			"balance "+b.Balance.String()+" of "+tokenAddress+" cannot cover "+delta.Neg().String())
	}
	b.Balance = next
	b.LastUpdated = s.now()
	if tokenSymbol != "" {
		b.TokenSymbol = tokenSymbol
	}
	if err := s.repo.Save(ctx, b); err != nil {
		return nil, err
	}
	s.remember(ctx, b)
	return b, nil
}

// Evict removes every cached balance of the wallet and its index set and returns how many
// keys existed.
func (s *BalanceStore) Evict(ctx context.Context, walletAddress string, balances []model.Balance) (int, error) {
	keys := []string{cache.BalancesByWalletKey(walletAddress)}
	for _, b := range balances {
		keys = append(keys, cache.BalanceKey(walletAddress, b.TokenAddress))
	}
	return s.cache.Del(ctx, keys...)
}

func (s *BalanceStore) remember(ctx context.Context, b *model.Balance) {
	snapshot := *b
	AfterCommit(ctx, s.log, "balance.cache", func(ctx context.Context) error {
		return cache.SetJSON(ctx, s.cache, cache.BalanceKey(snapshot.WalletAddress, snapshot.TokenAddress), snapshot, s.ttl)
	})
}

func (s *BalanceStore) dropIndex(ctx context.Context, walletAddress string) {
	AfterCommit(ctx, s.log, "balance.index", func(ctx context.Context) error {
		_, err := s.cache.Del(ctx, cache.BalancesByWalletKey(walletAddress))
		return err
	})
}

// WithLocks makes Guard take cross-process leases in addition to the durable row locks.
func (s *BalanceStore) WithLocks(l *lock.DistributedLock) *BalanceStore {
	s.locks = l
	return s
}

// Guard runs fn holding the wallet lease and a distributed lease on every (wallet, token)
// pair named. The wallet lease comes first and balance leases follow in token order, so
// two guards over overlapping pairs cannot deadlock and a wallet reset waits for trades in
// flight. Without a configured lock it only runs fn.
func (s *BalanceStore) Guard(ctx context.Context, walletAddress string, tokens []string, fn func(ctx context.Context) error) error {
	if s.locks == nil {
		return fn(ctx)
	}
	resources := []string{lock.WalletResource(walletAddress)}
	for _, token := range uniqueSorted(tokens) {
		resources = append(resources, lock.BalanceResource(walletAddress, token))
	}
	var run func(ctx context.Context, i int) error
	run = func(ctx context.Context, i int) error {
		if i == len(resources) {
			return fn(ctx)
		}
		return s.locks.WithLock(ctx, resources[i], 0, func(ctx context.Context) error {
			return run(ctx, i+1)
		})
	}
	return run(ctx, 0)
}

func uniqueSorted(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func balanceNotFound(walletAddress, tokenAddress string) error {
	return apperrors.NotFound(apperrors.CodeBalanceNotFound, "no "+tokenAddress+" balance for "+walletAddress)
}
