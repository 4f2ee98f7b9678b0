package store

import (
	"context"
	"sort"
	"strconv"
	"time"

	"agentengine/src/apperrors"
	"agentengine/src/cache"
	"agentengine/src/model"
	"agentengine/src/repository"

	"github.com/sirupsen/logrus"
)

// PositionRepository is the durable side of PositionStore.
type PositionRepository interface {
	FindByID(ctx context.Context, id uint) (*model.Position, error)
	FindByAgentAndToken(ctx context.Context, agentID uint, tokenAddress string) (*model.Position, error)
	FindByWallet(ctx context.Context, walletAddress string) ([]model.Position, error)
	FindByToken(ctx context.Context, tokenAddress string) ([]model.Position, error)
	Create(ctx context.Context, p *model.Position) error
	Save(ctx context.Context, p *model.Position) error
	Delete(ctx context.Context, id uint) error
}

// PositionStore is a write-through cache over the position repository. Durable writes
// always land first; the cache follows once the write (or its transaction) committed.
type PositionStore struct {
	repo  PositionRepository
	cache cache.Cache
	ttl   time.Duration
	log   *logrus.Entry
}

func NewPositionStore(repo PositionRepository, c cache.Cache, ttl time.Duration, log *logrus.Entry) *PositionStore {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &PositionStore{repo: repo, cache: c, ttl: ttl, log: log.WithField("component", "PositionStore")}
}

// Get returns the position or a POSITION_NOT_FOUND error. Inside a transaction it reads
// the durable row and leaves the cache to whatever write follows.
func (s *PositionStore) Get(ctx context.Context, id uint) (*model.Position, error) {
	if !inTx(ctx) {
		var p model.Position
		ok, err := cache.GetJSON(ctx, s.cache, cache.PositionKey(id), &p)
		if err != nil {
			s.cacheDegraded(err, "Get", logrus.Fields{"id": id})
		} else if ok {
			return &p, nil
		}
	}

	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperrors.NotFound(apperrors.CodePositionNotFound, "position "+strconv.FormatUint(uint64(id), 10)+" not found")
	}
	if !inTx(ctx) {
		s.remember(ctx, p)
	}
	return p, nil
}

// FindOpen returns the open position of agent in token, or (nil, nil).
func (s *PositionStore) FindOpen(ctx context.Context, agentID uint, tokenAddress string) (*model.Position, error) {
	p, err := s.repo.FindByAgentAndToken(ctx, agentID, tokenAddress)
	if err != nil || p == nil {
		return nil, err
	}
	s.remember(ctx, p)
	return p, nil
}

func (s *PositionStore) ListByWallet(ctx context.Context, walletAddress string) ([]model.Position, error) {
	return s.list(ctx, cache.PositionsByWalletKey(walletAddress), func() ([]model.Position, error) {
		return s.repo.FindByWallet(ctx, walletAddress)
	})
}

// ListByToken serves the token index set, falling back to the durable store when any
// member is missing from the cache.
func (s *PositionStore) ListByToken(ctx context.Context, tokenAddress string) ([]model.Position, error) {
	return s.list(ctx, cache.PositionsByTokenKey(tokenAddress), func() ([]model.Position, error) {
		return s.repo.FindByToken(ctx, tokenAddress)
	})
}

func (s *PositionStore) list(ctx context.Context, indexKey string, load func() ([]model.Position, error)) ([]model.Position, error) {
	if !inTx(ctx) {
		if positions, ok := s.listFromCache(ctx, indexKey); ok {
			return positions, nil
		}
	}

	positions, err := load()
	if err != nil {
		return nil, err
	}
	s.rebuildIndex(ctx, indexKey, positions)
	return positions, nil
}

func (s *PositionStore) listFromCache(ctx context.Context, indexKey string) ([]model.Position, bool) {
	ids, err := s.cache.SMembers(ctx, indexKey)
	if err != nil {
		s.cacheDegraded(err, "SMembers", logrus.Fields{"key": indexKey})
		return nil, false
	}
	if len(ids) == 0 {
		return nil, false
	}

	positions := make([]model.Position, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, false
		}
		var p model.Position
		ok, err := cache.GetJSON(ctx, s.cache, cache.PositionKey(uint(id)), &p)
		if err != nil || !ok {
			return nil, false
		}
		positions = append(positions, p)
	}
	sortPositions(positions)
	return positions, true
}

func (s *PositionStore) Create(ctx context.Context, p *model.Position) error {
	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	s.remember(ctx, p)
	s.dropIndexes(ctx, p.WalletAddress, p.TokenAddress)
	return nil
}

// Update writes every column of p.
func (s *PositionStore) Update(ctx context.Context, p *model.Position) error {
	if err := s.repo.Save(ctx, p); err != nil {
		return err
	}
	s.remember(ctx, p)
	return nil
}

// Rewrite writes every column of p and drops the cached copy after commit instead of
// replacing it. A late drop can only cost a cache miss, so writers that do not own the
// position lifecycle use it.
func (s *PositionStore) Rewrite(ctx context.Context, p *model.Position) error {
	if err := s.repo.Save(ctx, p); err != nil {
		return err
	}
	id := p.ID
	AfterCommit(ctx, s.log, "position.invalidate", func(ctx context.Context) error {
		_, err := s.cache.Del(ctx, cache.PositionKey(id))
		return err
	})
	return nil
}

// Delete hard deletes p and drops it from the cache together with the index sets naming it.
func (s *PositionStore) Delete(ctx context.Context, p *model.Position) error {
	if err := s.repo.Delete(ctx, p.ID); err != nil {
		return err
	}
	snapshot := *p
	AfterCommit(ctx, s.log, "position.evict", func(ctx context.Context) error {
		_, err := s.Evict(ctx, snapshot.WalletAddress, []model.Position{snapshot})
		return err
	})
	return nil
}

// Evict removes the cached positions, the wallet index and the token index of each
// position, and returns how many keys existed. Missing keys are not an error.
func (s *PositionStore) Evict(ctx context.Context, walletAddress string, positions []model.Position) (int, error) {
	keys := []string{cache.PositionsByWalletKey(walletAddress)}
	seen := map[string]bool{}
	for _, p := range positions {
		keys = append(keys, cache.PositionKey(p.ID))
		if !seen[p.TokenAddress] {
			seen[p.TokenAddress] = true
			keys = append(keys, cache.PositionsByTokenKey(p.TokenAddress))
		}
	}
	return s.cache.Del(ctx, keys...)
}

// remember caches p once the durable state holding it committed.
func (s *PositionStore) remember(ctx context.Context, p *model.Position) {
	snapshot := *p
	AfterCommit(ctx, s.log, "position.cache", func(ctx context.Context) error {
		return cache.SetJSON(ctx, s.cache, cache.PositionKey(snapshot.ID), snapshot, s.ttl)
	})
}

// dropIndexes invalidates index sets whose membership changed. Index sets are only ever
// rebuilt whole from a durable listing, so a cached set is complete or absent.
func (s *PositionStore) dropIndexes(ctx context.Context, walletAddress, tokenAddress string) {
	AfterCommit(ctx, s.log, "position.index", func(ctx context.Context) error {
		_, err := s.cache.Del(ctx, cache.PositionsByWalletKey(walletAddress), cache.PositionsByTokenKey(tokenAddress))
		return err
	})
}

func (s *PositionStore) rebuildIndex(ctx context.Context, indexKey string, positions []model.Position) {
	snapshot := append([]model.Position(nil), positions...)
	AfterCommit(ctx, s.log, "position.index", func(ctx context.Context) error {
		if _, err := s.cache.Del(ctx, indexKey); err != nil {
			return err
		}
		if len(snapshot) == 0 {
			return nil
		}
		ids := make([]string, 0, len(snapshot))
		for _, p := range snapshot {
			if err := cache.SetJSON(ctx, s.cache, cache.PositionKey(p.ID), p, s.ttl); err != nil {
				return err
			}
			ids = append(ids, strconv.FormatUint(uint64(p.ID), 10))
		}
		return s.cache.SAdd(ctx, indexKey, ids...)
	})
}

func (s *PositionStore) cacheDegraded(err error, op string, fields logrus.Fields) {
	s.log.WithError(err).WithFields(fields).WithField("op", op).Warn("Cache unavailable, reading durable store")
}

func inTx(ctx context.Context) bool {
	_, ok := repository.TxFromContext(ctx)
	return ok
}

func sortPositions(positions []model.Position) {
	sort.Slice(positions, func(i, j int) bool { return positions[i].ID < positions[j].ID })
}
