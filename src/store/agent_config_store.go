package store

import (
	"context"
	"time"

	"agentengine/src/cache"
	"agentengine/src/model"

	"github.com/sirupsen/logrus"
)

type AgentConfigRepository interface {
	Find(ctx context.Context, agentID uint) (*model.AgentTradingConfig, error)
	Upsert(ctx context.Context, agentID uint, cfg model.AgentTradingConfig) error
}

// AgentConfigStore is a read-through cache of agent configuration. Readers never write
// the durable row; the single writer is Save, which invalidates instead of updating.
type AgentConfigStore struct {
	repo  AgentConfigRepository
	cache cache.Cache
	ttl   time.Duration
	log   *logrus.Entry
}

func NewAgentConfigStore(repo AgentConfigRepository, c cache.Cache, ttl time.Duration, log *logrus.Entry) *AgentConfigStore {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &AgentConfigStore{repo: repo, cache: c, ttl: ttl, log: log.WithField("component", "AgentConfigStore")}
}

// Get returns (nil, nil) when the agent has no configuration.
func (s *AgentConfigStore) Get(ctx context.Context, agentID uint) (*model.AgentTradingConfig, error) {
	key := cache.AgentConfigKey(agentID)
	var cfg model.AgentTradingConfig
	ok, err := cache.GetJSON(ctx, s.cache, key, &cfg)
	if err != nil {
		s.log.WithError(err).WithField("agent_id", agentID).Warn("Cache unavailable, reading durable store")
	} else if ok {
		return &cfg, nil
	}

	found, err := s.repo.Find(ctx, agentID)
	if err != nil || found == nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, s.cache, key, found, s.ttl); err != nil {
		s.log.WithError(err).WithField("agent_id", agentID).Warn("Failed to cache agent config")
	}
	return found, nil
}

// Save writes cfg durably and invalidates the cached copy.
func (s *AgentConfigStore) Save(ctx context.Context, agentID uint, cfg model.AgentTradingConfig) error {
	if err := s.repo.Upsert(ctx, agentID, cfg); err != nil {
		return err
	}
	AfterCommit(ctx, s.log, "agent_config.invalidate", func(ctx context.Context) error {
		return s.Invalidate(ctx, agentID)
	})
	return nil
}

// Invalidate drops the cached configuration so the next Get reads it durably.
func (s *AgentConfigStore) Invalidate(ctx context.Context, agentID uint) error {
	_, err := s.cache.Del(ctx, cache.AgentConfigKey(agentID))
	return err
}
