package repository

import (
	"context"
	"encoding/json"
	"errors"

	"agentengine/src/database"
	"agentengine/src/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAgentConfigRepository stores agent trading configuration as a JSON document.
type GormAgentConfigRepository struct {
	db *gorm.DB
}

func NewAgentConfigRepository() *GormAgentConfigRepository {
	return &GormAgentConfigRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *GormAgentConfigRepository) WithDB(db *gorm.DB) *GormAgentConfigRepository {
	return &GormAgentConfigRepository{db: db}
}

// Find returns (nil, nil) when the agent has no configuration.
func (r *GormAgentConfigRepository) Find(ctx context.Context, agentID uint) (*model.AgentTradingConfig, error) {
	var row model.AgentTradingConfigRow
	err := conn(ctx, r.db).Where("agent_id = ?", agentID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg model.AgentTradingConfig
	if err := json.Unmarshal(row.Config, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Upsert writes cfg and bumps the row version.
func (r *GormAgentConfigRepository) Upsert(ctx context.Context, agentID uint, cfg model.AgentTradingConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	row := model.AgentTradingConfigRow{AgentID: agentID, Config: datatypes.JSON(raw), Version: 1}
	return conn(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "agent_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"config":     row.Config,
				"version":    gorm.Expr("agent_trading_configs.version + 1"),
				"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
			}),
		}).
		Create(&row).Error
}
