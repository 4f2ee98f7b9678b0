package repository

import (
	"context"

	"agentengine/src/database"
	"agentengine/src/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedgerRepository persists transactions, swaps and balance snapshots.
type GormLedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository() *GormLedgerRepository {
	return &GormLedgerRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *GormLedgerRepository) WithDB(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

func (r *GormLedgerRepository) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	return conn(ctx, r.db).Create(tx).Error
}

func (r *GormLedgerRepository) CreateSwap(ctx context.Context, s *model.Swap) error {
	return conn(ctx, r.db).Create(s).Error
}

func (r *GormLedgerRepository) TransactionsByWallet(ctx context.Context, walletAddress string) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := conn(ctx, r.db).
		Where("wallet_address = ?", walletAddress).
		Order("id ASC").
		Find(&txs).Error
	return txs, err
}

// CreateSnapshots inserts snapshots, skipping rows already written for the same bucket.
func (r *GormLedgerRepository) CreateSnapshots(ctx context.Context, snapshots []model.BalanceSnapshot) (int64, error) {
	if len(snapshots) == 0 {
		return 0, nil
	}
	res := conn(ctx, r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&snapshots)
	return res.RowsAffected, res.Error
}

func (r *GormLedgerRepository) DeleteSwapsByWallet(ctx context.Context, walletAddress string) (int64, error) {
	res := conn(ctx, r.db).Where("wallet_address = ?", walletAddress).Delete(&model.Swap{})
	return res.RowsAffected, res.Error
}

func (r *GormLedgerRepository) DeleteTransactionsByWallet(ctx context.Context, walletAddress string) (int64, error) {
	res := conn(ctx, r.db).Where("wallet_address = ?", walletAddress).Delete(&model.Transaction{})
	return res.RowsAffected, res.Error
}

func (r *GormLedgerRepository) DeleteSnapshotsByWallet(ctx context.Context, walletAddress string) (int64, error) {
	res := conn(ctx, r.db).Where("wallet_address = ?", walletAddress).Delete(&model.BalanceSnapshot{})
	return res.RowsAffected, res.Error
}
