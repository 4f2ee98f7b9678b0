package resetwallet

import (
	"context"

	"agentengine/cmd/bootstrap"
	"agentengine/src/walletreset"

	"github.com/sirupsen/logrus"
)

type ResetWallet struct {
	Log    *logrus.Entry
	UserID uint
	Wallet string
}

// Start detaches the wallet from its owner's trading state.
func (r *ResetWallet) Start(ctx context.Context) (walletreset.ResetResult, error) {
	stack, err := bootstrap.Open(r.Log)
	if err != nil {
		return walletreset.ResetResult{}, err
	}
	defer stack.Close()

	reset := walletreset.New(walletreset.Deps{
		Owners:        stack.Users,
		Positions:     stack.PositionRepo,
		Balances:      stack.BalanceRepo,
		Ledger:        stack.LedgerRepo,
		PositionCache: stack.Positions,
		BalanceCache:  stack.Balances,
		Transactor:    stack.Transactor,
		Locks:         stack.Locks,
		Events:        stack.Bus,
	}, walletreset.GetConfig(), r.Log)

	result, err := reset.ResetWallet(ctx, r.UserID, r.Wallet)
	if err != nil {
		return result, err
	}
	r.Log.WithFields(logrus.Fields{
		"wallet":    result.WalletAddress,
		"positions": result.PositionsDeleted,
		"balances":  result.BalancesDeleted,
		"swaps":     result.SwapsDeleted,
		"txs":       result.TransactionsDeleted,
		"snapshots": result.SnapshotsDeleted,
	}).Info("Wallet reset")
	return result, nil
}
