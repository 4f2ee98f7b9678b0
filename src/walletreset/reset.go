package walletreset

import (
	"context"
	"fmt"

	"agentengine/src/apperrors"
	"agentengine/src/events"
	"agentengine/src/lock"
	"agentengine/src/model"
	"agentengine/src/store"
	"agentengine/src/utils"

	"github.com/sirupsen/logrus"
)

type Owners interface {
	WalletOfUser(ctx context.Context, userID uint, address string) (*model.Wallet, error)
}

type PositionRepository interface {
	FindByWallet(ctx context.Context, walletAddress string) ([]model.Position, error)
	DeleteByWallet(ctx context.Context, walletAddress string) (int64, error)
}

type BalanceRepository interface {
	FindByWallet(ctx context.Context, walletAddress string) ([]model.Balance, error)
	DeleteByWallet(ctx context.Context, walletAddress string) (int64, error)
}

type LedgerRepository interface {
	DeleteSwapsByWallet(ctx context.Context, walletAddress string) (int64, error)
	DeleteTransactionsByWallet(ctx context.Context, walletAddress string) (int64, error)
	DeleteSnapshotsByWallet(ctx context.Context, walletAddress string) (int64, error)
}

// Deps are the collaborators of a Coordinator. Locks and Events are optional.
type Deps struct {
	Owners        Owners
	Positions     PositionRepository
	Balances      BalanceRepository
	Ledger        LedgerRepository
	PositionCache *store.PositionStore
	BalanceCache  *store.BalanceStore
	Transactor    *store.Transactor
	Locks         *lock.DistributedLock
	Events        events.Publisher
}

// ResetResult is the audit record of one reset.
type ResetResult struct {
	WalletAddress       string `json:"wallet_address"`
	PositionsDeleted    int64  `json:"positions_deleted"`
	SwapsDeleted        int64  `json:"swaps_deleted"`
	BalancesDeleted     int64  `json:"balances_deleted"`
	TransactionsDeleted int64  `json:"transactions_deleted"`
	SnapshotsDeleted    int64  `json:"snapshots_deleted"`
	PositionKeysCleared int    `json:"position_keys_cleared"`
	BalanceKeysCleared  int    `json:"balance_keys_cleared"`
	EventsPublished     int    `json:"events_published"`
}

// Coordinator detaches a wallet: its cached and durable trading state is removed.
type Coordinator struct {
	deps   Deps
	config Config
	log    *logrus.Entry
}

func New(deps Deps, config Config, log *logrus.Entry) *Coordinator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	return &Coordinator{deps: deps, config: config, log: log.WithField("component", "WalletReset")}
}

// VerifyWalletOwnership fails with WALLET_NOT_FOUND unless walletAddress belongs to userID.
func (c *Coordinator) VerifyWalletOwnership(ctx context.Context, userID uint, walletAddress string) error {
	w, err := c.deps.Owners.WalletOfUser(ctx, userID, walletAddress)
	if err != nil {
		return err
	}
	if w == nil {
		return apperrors.NotFound(apperrors.CodeWalletNotFound, fmt.Sprintf("wallet %s not found for user %d", walletAddress, userID))
	}
	return nil
}

// ResetWallet clears the cache first, announces every position as closed and then deletes
// positions, swaps, balances, transactions and snapshots in one transaction. A failed
// transaction rolls back entirely and returns a retryable error; the cache stays cleared
// and is repopulated from the durable store by the next read.
func (c *Coordinator) ResetWallet(ctx context.Context, userID uint, walletAddress string) (ResetResult, error) {
	result := ResetResult{WalletAddress: walletAddress}
	if err := utils.ValidateAddress(walletAddress); err != nil {
		return result, err
	}
	if err := c.VerifyWalletOwnership(ctx, userID, walletAddress); err != nil {
		return result, err
	}

	if c.deps.Locks != nil {
		lockCtx := ctx
		if c.config.LockTimeout > 0 {
			var cancel context.CancelFunc
			lockCtx, cancel = context.WithTimeout(ctx, c.config.LockTimeout)
			defer cancel()
		}
		lease, err := c.deps.Locks.Acquire(lockCtx, lock.WalletResource(walletAddress), 0)
		if err != nil {
			return result, err
		}
		defer func() {
			if _, err := c.deps.Locks.Release(context.WithoutCancel(ctx), lease); err != nil {
				c.log.WithError(err).WithField("wallet", walletAddress).Warn("Failed to release wallet lock")
			}
		}()
	}

	log := c.log.WithFields(logrus.Fields{"user_id": userID, "wallet": walletAddress})

	positions, err := c.deps.Positions.FindByWallet(ctx, walletAddress)
	if err != nil {
		return result, err
	}
	balances, err := c.deps.Balances.FindByWallet(ctx, walletAddress)
	if err != nil {
		return result, err
	}

	// the cache is cleared before the durable delete
	if n, err := c.deps.PositionCache.Evict(ctx, walletAddress, positions); err != nil {
		log.WithError(err).Warn("Failed to clear cached positions")
	} else {
		result.PositionKeysCleared = n
	}
	if n, err := c.deps.BalanceCache.Evict(ctx, walletAddress, balances); err != nil {
		log.WithError(err).Warn("Failed to clear cached balances")
	} else {
		result.BalanceKeysCleared = n
	}

	for i := range positions {
		c.deps.Events.Publish(model.NewPositionEvent(model.PositionClosed, &positions[i], "wallet_reset"))
		result.EventsPublished++
	}

	err = c.deps.Transactor.WithinTx(ctx, c.config.TxTimeout, func(ctx context.Context) error {
		var err error
		if result.PositionsDeleted, err = c.deps.Positions.DeleteByWallet(ctx, walletAddress); err != nil {
			return err
		}
		if result.SwapsDeleted, err = c.deps.Ledger.DeleteSwapsByWallet(ctx, walletAddress); err != nil {
			return err
		}
		if result.BalancesDeleted, err = c.deps.Balances.DeleteByWallet(ctx, walletAddress); err != nil {
			return err
		}
		if result.TransactionsDeleted, err = c.deps.Ledger.DeleteTransactionsByWallet(ctx, walletAddress); err != nil {
			return err
		}
		result.SnapshotsDeleted, err = c.deps.Ledger.DeleteSnapshotsByWallet(ctx, walletAddress)
		return err
	})
	if err != nil {
		log.WithError(err).Error("Wallet reset rolled back, cache and durable store diverge until retried")
		failed := ResetResult{
			WalletAddress:       walletAddress,
			PositionKeysCleared: result.PositionKeysCleared,
			BalanceKeysCleared:  result.BalanceKeysCleared,
			EventsPublished:     result.EventsPublished,
		}
		if !apperrors.IsRetryable(err) {
			err = apperrors.Retryable(err, apperrors.CodeTransactionFailed, "wallet reset failed")
		}
		return failed, err
	}

	log.WithFields(logrus.Fields{
		"positions":     result.PositionsDeleted,
		"swaps":         result.SwapsDeleted,
		"balances":      result.BalancesDeleted,
		"transactions":  result.TransactionsDeleted,
		"snapshots":     result.SnapshotsDeleted,
		"position_keys": result.PositionKeysCleared,
		"balance_keys":  result.BalanceKeysCleared,
		"events":        result.EventsPublished,
	}).Info("Wallet reset")
	return result, nil
}
