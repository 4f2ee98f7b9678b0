package execution

import (
	"context"
	"fmt"
	"time"

	"agentengine/src/apperrors"
	"agentengine/src/model"

	"github.com/sirupsen/logrus"
)

// Repository is the durable side of Tracker. InsertPending must rely on the partial
// unique index over (signal_id, agent_id) WHERE state <> 'FAILED'.
type Repository interface {
	InsertPending(ctx context.Context, rec *model.ExecutionRecord) (bool, error)
	FindActive(ctx context.Context, signalID, agentID uint) (*model.ExecutionRecord, error)
	MarkSuccess(ctx context.Context, id uint, transactionID string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uint, code, message string, at time.Time) (bool, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.ExecutionRecord, error)
}

// Tracker owns the PENDING -> SUCCESS | FAILED lifecycle of one (signal, agent) attempt.
type Tracker struct {
	repo Repository
	log  *logrus.Entry
	now  func() time.Time
}

func NewTracker(repo Repository, log *logrus.Entry) *Tracker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Tracker{
		repo: repo,
		log:  log.WithField("component", "ExecutionTracker"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Begin creates the PENDING record for the pair. started is false, with the record that
// already claimed the pair when it can still be found, if another attempt got there first.
func (t *Tracker) Begin(ctx context.Context, signalID, agentID uint) (*model.ExecutionRecord, bool, error) {
	rec := &model.ExecutionRecord{
		SignalID:  signalID,
		AgentID:   agentID,
		StartedAt: t.now(),
	}
	inserted, err := t.repo.InsertPending(ctx, rec)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return rec, true, nil
	}

	existing, err := t.repo.FindActive(ctx, signalID, agentID)
	if err != nil {
		t.log.WithError(err).WithFields(logrus.Fields{
			"signal_id": signalID,
			"agent_id":  agentID,
		}).Warn("Duplicate execution skipped, existing record not readable")
		return nil, false, nil
	}
	fields := logrus.Fields{"signal_id": signalID, "agent_id": agentID}
	if existing != nil {
		fields["execution_id"] = existing.ID
		fields["state"] = existing.State
	}
	t.log.WithFields(fields).Info("Duplicate execution skipped")
	return existing, false, nil
}

// Complete moves a PENDING record to SUCCESS.
func (t *Tracker) Complete(ctx context.Context, id uint, transactionID string) error {
	ok, err := t.repo.MarkSuccess(ctx, id, transactionID, t.now())
	if err != nil {
		return err
	}
	if !ok {
		return notPending(id)
	}
	t.log.WithFields(logrus.Fields{
		"execution_id":   id,
		"transaction_id": transactionID,
	}).Info("Execution succeeded")
	return nil
}

// Fail moves a PENDING record to FAILED with the code carried by cause. Insufficient
// balance outcomes are logged as warnings, anything else as an error.
func (t *Tracker) Fail(ctx context.Context, id uint, cause error) error {
	code := apperrors.CodeOf(cause)
	if code == "" {
		code = apperrors.CodeInternal
	}
	message := "unknown failure"
	if cause != nil {
		message = cause.Error()
	}

	ok, err := t.repo.MarkFailed(ctx, id, code, message, t.now())
	if err != nil {
		return err
	}
	if !ok {
		return notPending(id)
	}

	entry := t.log.WithFields(logrus.Fields{"execution_id": id, "code": code}).WithError(cause)
	if apperrors.IsBusinessOutcome(cause) {
		entry.Warn("Execution skipped")
	} else {
		entry.Error("Execution failed")
	}
	return nil
}

// StalePending reports PENDING records older than olderThan. They are logged as an
// operational alert and never retried automatically.
func (t *Tracker) StalePending(ctx context.Context, olderThan time.Duration, limit int) ([]model.ExecutionRecord, error) {
	recs, err := t.repo.FindPendingBefore(ctx, t.now().Add(-olderThan), limit)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		t.log.WithFields(logrus.Fields{
			"execution_id": r.ID,
			"signal_id":    r.SignalID,
			"agent_id":     r.AgentID,
			"started_at":   r.StartedAt,
		}).Error("Execution stuck in PENDING")
	}
	return recs, nil
}

func notPending(id uint) error {
	return apperrors.Conflict(apperrors.CodeExecutionNotPending, fmt.Sprintf("execution %d is not pending", id))
}
