package repository

import (
	"context"
	"errors"

	"agentengine/src/database"
	"agentengine/src/model"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GormPositionRepository persists positions in the main database.
type GormPositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository() *GormPositionRepository {
	return &GormPositionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *GormPositionRepository) WithDB(db *gorm.DB) *GormPositionRepository {
	return &GormPositionRepository{db: db}
}

// FindByID returns (nil, nil) when the position does not exist.
func (r *GormPositionRepository) FindByID(ctx context.Context, id uint) (*model.Position, error) {
	var p model.Position
	err := conn(ctx, r.db).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch position")
		return nil, err
	}
	return &p, nil
}

// FindByAgentAndToken returns the open position of agent in token, or (nil, nil).
func (r *GormPositionRepository) FindByAgentAndToken(ctx context.Context, agentID uint, tokenAddress string) (*model.Position, error) {
	var p model.Position
	err := conn(ctx, r.db).
		Where("agent_id = ? AND token_address = ?", agentID, tokenAddress).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}

func (r *GormPositionRepository) FindByWallet(ctx context.Context, walletAddress string) ([]model.Position, error) {
	var positions []model.Position
	err := conn(ctx, r.db).
		Where("wallet_address = ?", walletAddress).
		Order("id ASC").
		Find(&positions).Error
	return positions, err
}

func (r *GormPositionRepository) FindByToken(ctx context.Context, tokenAddress string) ([]model.Position, error) {
	var positions []model.Position
	err := conn(ctx, r.db).
		Where("token_address = ?", tokenAddress).
		Order("id ASC").
		Find(&positions).Error
	return positions, err
}

// FindAll lists every open position, oldest first.
func (r *GormPositionRepository) FindAll(ctx context.Context) ([]model.Position, error) {
	var positions []model.Position
	err := conn(ctx, r.db).Order("id ASC").Find(&positions).Error
	return positions, err
}

func (r *GormPositionRepository) Create(ctx context.Context, p *model.Position) error {
	return conn(ctx, r.db).Create(p).Error
}

// Save writes every column of p.
func (r *GormPositionRepository) Save(ctx context.Context, p *model.Position) error {
	return conn(ctx, r.db).Save(p).Error
}

// Delete removes the row. Deleting a missing row is not an error.
func (r *GormPositionRepository) Delete(ctx context.Context, id uint) error {
	return conn(ctx, r.db).Where("id = ?", id).Delete(&model.Position{}).Error
}

// DeleteByWallet removes every position of the wallet and returns how many were removed.
func (r *GormPositionRepository) DeleteByWallet(ctx context.Context, walletAddress string) (int64, error) {
	res := conn(ctx, r.db).Where("wallet_address = ?", walletAddress).Delete(&model.Position{})
	return res.RowsAffected, res.Error
}
