package repository

import (
	"context"
	"errors"

	"agentengine/src/database"
	"agentengine/src/model"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GormUserRepository reads users, agents and wallets.
type GormUserRepository struct {
	db *gorm.DB
}

func NewUserRepository() *GormUserRepository {
	logger.WithField("component", "GormUserRepository").
		Debug("Creating new GormUserRepository with MainDB")

	return &GormUserRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *GormUserRepository) WithDB(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) GetUserByUserName(ctx context.Context, userName string) (*model.User, error) {
	var u model.User
	err := conn(ctx, r.db).
		Where("user_name = ?", userName).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ActiveAgentIDs lists the ids of every active agent.
func (r *GormUserRepository) ActiveAgentIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := conn(ctx, r.db).
		Model(&model.Agent{}).
		Where("active = ?", true).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// AgentsByUser returns the user's agents with the owning user preloaded.
func (r *GormUserRepository) AgentsByUser(ctx context.Context, userID uint) ([]model.Agent, error) {
	var agents []model.Agent
	err := conn(ctx, r.db).
		Preload("User").
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&agents).Error
	return agents, err
}

// AgentByID returns (nil, nil) when the agent does not exist.
func (r *GormUserRepository) AgentByID(ctx context.Context, id uint) (*model.Agent, error) {
	var a model.Agent
	err := conn(ctx, r.db).Preload("User").Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &a, err
}

// WalletOfUser returns the wallet if it belongs to userID, or (nil, nil).
func (r *GormUserRepository) WalletOfUser(ctx context.Context, userID uint, address string) (*model.Wallet, error) {
	var w model.Wallet
	err := conn(ctx, r.db).
		Where("user_id = ? AND address = ?", userID, address).
		First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &w, err
}
