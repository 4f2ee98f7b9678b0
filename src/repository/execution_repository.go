package repository

import (
	"context"
	"errors"
	"time"

	"agentengine/src/database"
	"agentengine/src/model"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormExecutionRepository stores execution records. Deduplication relies on the partial
// unique index ux_execution_active, never on client side locking.
type GormExecutionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository() *GormExecutionRepository {
	return &GormExecutionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *GormExecutionRepository) WithDB(db *gorm.DB) *GormExecutionRepository {
	return &GormExecutionRepository{db: db}
}

// InsertPending inserts rec unless a non-failed record exists for the same pair.
// It reports false, with no error, when the insert was skipped.
func (r *GormExecutionRepository) InsertPending(ctx context.Context, rec *model.ExecutionRecord) (bool, error) {
	rec.State = model.ExecutionStatePending
	res := conn(ctx, r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "ExecutionRepository",
			"op":       "InsertPending",
			"signalID": rec.SignalID,
			"agentID":  rec.AgentID,
		}).WithError(res.Error).Error("Failed to insert execution record")
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindActive returns the non-failed record of the pair, or (nil, nil).
func (r *GormExecutionRepository) FindActive(ctx context.Context, signalID, agentID uint) (*model.ExecutionRecord, error) {
	var rec model.ExecutionRecord
	err := conn(ctx, r.db).
		Where("signal_id = ? AND agent_id = ? AND state <> ?", signalID, agentID, model.ExecutionStateFailed).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &rec, err
}

func (r *GormExecutionRepository) FindByID(ctx context.Context, id uint) (*model.ExecutionRecord, error) {
	var rec model.ExecutionRecord
	err := conn(ctx, r.db).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &rec, err
}

// MarkSuccess moves a PENDING record to SUCCESS. It reports false when the record was not PENDING.
func (r *GormExecutionRepository) MarkSuccess(ctx context.Context, id uint, transactionID string, at time.Time) (bool, error) {
	res := conn(ctx, r.db).
		Model(&model.ExecutionRecord{}).
		Where("id = ? AND state = ?", id, model.ExecutionStatePending).
		Updates(map[string]interface{}{
			"state":          model.ExecutionStateSuccess,
			"transaction_id": transactionID,
			"completed_at":   at,
		})
	return res.RowsAffected == 1, res.Error
}

// MarkFailed moves a PENDING record to FAILED. It reports false when the record was not PENDING.
func (r *GormExecutionRepository) MarkFailed(ctx context.Context, id uint, code, message string, at time.Time) (bool, error) {
	res := conn(ctx, r.db).
		Model(&model.ExecutionRecord{}).
		Where("id = ? AND state = ?", id, model.ExecutionStatePending).
		Updates(map[string]interface{}{
			"state":         model.ExecutionStateFailed,
			"error_code":    code,
			"error_message": message,
			"completed_at":  at,
		})
	return res.RowsAffected == 1, res.Error
}

// FindPendingBefore lists PENDING records started before cutoff.
func (r *GormExecutionRepository) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var recs []model.ExecutionRecord
	err := conn(ctx, r.db).
		Where("state = ? AND started_at < ?", model.ExecutionStatePending, cutoff).
		Order("started_at ASC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}
