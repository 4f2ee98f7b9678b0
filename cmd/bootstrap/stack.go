package bootstrap

import (
	"agentengine/src/cache"
	"agentengine/src/database"
	"agentengine/src/events"
	"agentengine/src/ledger"
	"agentengine/src/lock"
	"agentengine/src/repository"
	"agentengine/src/store"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Stack is the write side shared by every command: the main database, the cache tier,
// the stores in front of them and the ledger recorder.
type Stack struct {
	DB    *gorm.DB
	Cache cache.Cache
	Locks *lock.DistributedLock
	Bus   *events.Bus

	Users        *repository.GormUserRepository
	PositionRepo *repository.GormPositionRepository
	BalanceRepo  *repository.GormBalanceRepository
	LedgerRepo   *repository.GormLedgerRepository
	ConfigRepo   *repository.GormAgentConfigRepository
	Executions   *repository.GormExecutionRepository
	Exceptions   *repository.ExceptionRepository

	Transactor *store.Transactor
	Positions  *store.PositionStore
	Balances   *store.BalanceStore
	Configs    *store.AgentConfigStore
	Recorder   *ledger.Recorder
}

// Open connects the main database, runs migrations and builds the stack. Close releases
// the cache backend.
func Open(log *logrus.Entry) (*Stack, error) {
	if err := database.InitMainDB(); err != nil {
		return nil, err
	}
	return New(database.MainDB, cache.GetConfig(), log)
}

// New builds the stack on an already migrated database.
func New(db *gorm.DB, cacheConfig cache.Config, log *logrus.Entry) (*Stack, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c, err := cache.New(cacheConfig)
	if err != nil {
		return nil, err
	}
	log.WithField("backend", cacheConfig.Backend).Info("Cache ready")

	s := &Stack{
		DB:           db,
		Cache:        c,
		Locks:        lock.NewDistributedLock(c, lock.GetConfig(), log),
		Bus:          events.NewBus(0, log),
		Users:        new(repository.GormUserRepository).WithDB(db),
		PositionRepo: new(repository.GormPositionRepository).WithDB(db),
		BalanceRepo:  new(repository.GormBalanceRepository).WithDB(db),
		LedgerRepo:   new(repository.GormLedgerRepository).WithDB(db),
		ConfigRepo:   new(repository.GormAgentConfigRepository).WithDB(db),
		Executions:   new(repository.GormExecutionRepository).WithDB(db),
		Exceptions:   new(repository.ExceptionRepository).WithDB(db),
		Transactor:   store.NewTransactor(db, log),
	}
	s.Positions = store.NewPositionStore(s.PositionRepo, c, cacheConfig.EntryTTL, log)
	s.Balances = store.NewBalanceStore(s.BalanceRepo, c, cacheConfig.EntryTTL, log).WithLocks(s.Locks)
	s.Configs = store.NewAgentConfigStore(s.ConfigRepo, c, cacheConfig.AgentConfigTTL, log)
	s.Recorder = ledger.NewRecorder(s.Transactor, s.Positions, s.Balances, s.LedgerRepo, s.Bus, ledger.GetConfig(), log)
	return s, nil
}

func (s *Stack) Close() error {
	return s.Cache.Close()
}
