package repository

import (
	"context"
	"errors"

	"agentengine/src/database"
	"agentengine/src/model"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormBalanceRepository persists balance rows keyed by (wallet, token).
type GormBalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository() *GormBalanceRepository {
	return &GormBalanceRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *GormBalanceRepository) WithDB(db *gorm.DB) *GormBalanceRepository {
	return &GormBalanceRepository{db: db}
}

// Find returns (nil, nil) when the wallet holds no row for token.
func (r *GormBalanceRepository) Find(ctx context.Context, walletAddress, tokenAddress string) (*model.Balance, error) {
	var b model.Balance
	err := conn(ctx, r.db).
		Where("wallet_address = ? AND token_address = ?", walletAddress, tokenAddress).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &b, err
}

// LockRow reads the balance with SELECT ... FOR UPDATE. It must run inside a transaction
// carried by ctx, otherwise the row lock is released as soon as the statement ends.
func (r *GormBalanceRepository) LockRow(ctx context.Context, walletAddress, tokenAddress string) (*model.Balance, error) {
	if _, ok := TxFromContext(ctx); !ok {
		logger.WithFields(map[string]interface{}{
			"repo":   "BalanceRepository",
			"op":     "LockRow",
			"wallet": walletAddress,
			"token":  tokenAddress,
		}).Warn("LockRow called outside of a transaction")
	}

	var b model.Balance
	err := conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("wallet_address = ? AND token_address = ?", walletAddress, tokenAddress).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &b, err
}

func (r *GormBalanceRepository) FindByWallet(ctx context.Context, walletAddress string) ([]model.Balance, error) {
	var balances []model.Balance
	err := conn(ctx, r.db).
		Where("wallet_address = ?", walletAddress).
		Order("token_address ASC").
		Find(&balances).Error
	return balances, err
}

// FindAll lists all balance rows for snapshotting.
func (r *GormBalanceRepository) FindAll(ctx context.Context) ([]model.Balance, error) {
	var balances []model.Balance
	err := conn(ctx, r.db).Order("id ASC").Find(&balances).Error
	return balances, err
}

// Create inserts b. A row already present for (wallet, token) returns gorm.ErrDuplicatedKey.
func (r *GormBalanceRepository) Create(ctx context.Context, b *model.Balance) error {
	return conn(ctx, r.db).Create(b).Error
}

func (r *GormBalanceRepository) Save(ctx context.Context, b *model.Balance) error {
	return conn(ctx, r.db).Save(b).Error
}

// DeleteByWallet removes every balance row of the wallet.
func (r *GormBalanceRepository) DeleteByWallet(ctx context.Context, walletAddress string) (int64, error) {
	res := conn(ctx, r.db).Where("wallet_address = ?", walletAddress).Delete(&model.Balance{})
	return res.RowsAffected, res.Error
}
