package repository

import (
	"context"
	"errors"

	"agentengine/src/database"
	"agentengine/src/externalmodel"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TradingSignalRepository handles read-only operations
// for external trading signals stored in the read-only database.
type TradingSignalRepository struct {
	db *gorm.DB
}

// NewTradingSignalRepository creates a new repository instance.
// It uses the ReadOnlyDB connection by default.
func NewTradingSignalRepository() *TradingSignalRepository {
	logger.WithField("component", "TradingSignalRepository").
		Info("Creating new TradingSignalRepository with ReadOnlyDB")

	return &TradingSignalRepository{
		db: database.ReadOnlyDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *TradingSignalRepository) WithDB(db *gorm.DB) *TradingSignalRepository {
	return &TradingSignalRepository{db: db}
}

// FindByID fetches a single trading signal by its primary ID.
// Returns (nil, nil) if not found.
func (r *TradingSignalRepository) FindByID(ctx context.Context, id uint) (*externalmodel.TradingSignal, error) {
	var signal externalmodel.TradingSignal

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&signal).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "TradingSignalRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Trading signal not found")
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "TradingSignalRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch trading signal by ID")

		return nil, err
	}

	return &signal, nil
}

// FindAfterID fetches trading signals with ID greater than lastID,
// ordered from oldest to newest (ascending by ID).
// This is ideal for incremental polling every N seconds.
func (r *TradingSignalRepository) FindAfterID(ctx context.Context, lastID uint, limit int) ([]externalmodel.TradingSignal, error) {
	if limit <= 0 {
		limit = 100 // default safety limit
	}

	var signals []externalmodel.TradingSignal

	err := r.db.WithContext(ctx).
		Where("id > ?", lastID).
		Order("id ASC").
		Limit(limit).
		Find(&signals).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TradingSignalRepository",
			"op":     "FindAfterID",
			"lastID": lastID,
			"limit":  limit,
		}).WithError(err).Error("Failed to fetch trading signals after ID")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "TradingSignalRepository",
		"op":          "FindAfterID",
		"lastID":      lastID,
		"rows_return": len(signals),
	}).Debug("Trading signals after ID fetched")

	return signals, nil
}

// LatestID returns the highest signal id, or 0 for an empty table.
// The executor loop starts from it so history is not replayed on boot.
func (r *TradingSignalRepository) LatestID(ctx context.Context) (uint, error) {
	var id *uint
	err := r.db.WithContext(ctx).
		Model(&externalmodel.TradingSignal{}).
		Select("MAX(id)").
		Scan(&id).Error
	if err != nil || id == nil {
		return 0, err
	}
	return *id, nil
}

// CountNewAfterID returns how many new records exist with ID greater than lastID.
func (r *TradingSignalRepository) CountNewAfterID(ctx context.Context, lastID uint) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&externalmodel.TradingSignal{}).
		Where("id > ?", lastID).
		Count(&count).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TradingSignalRepository",
			"op":     "CountNewAfterID",
			"lastID": lastID,
		}).WithError(err).Error("Failed to count new trading signals after ID")

		return 0, err
	}

	return count, nil
}
