package executors

import (
	"context"
	"errors"
	"time"

	"agentengine/src/apperrors"
	"agentengine/src/coordinator"
	"agentengine/src/externalmodel"
	"agentengine/src/model"

	logger "github.com/sirupsen/logrus"
)

type SignalSource interface {
	LatestID(ctx context.Context) (uint, error)
	FindAfterID(ctx context.Context, lastID uint, limit int) ([]externalmodel.TradingSignal, error)
}

type SignalProcessor interface {
	ProcessSignal(ctx context.Context, signal externalmodel.TradingSignal) (coordinator.Summary, error)
}

type StaleReporter interface {
	StalePending(ctx context.Context, olderThan time.Duration, limit int) ([]model.ExecutionRecord, error)
}

type Deps struct {
	Signals   SignalSource
	Processor SignalProcessor
	Stale     StaleReporter
}

// StartLoop polls for new signals every LoopPeriod and hands each one to the processor
// in id order. It starts after the latest signal unless ReplayFrom is set.
func StartLoop(ctx context.Context, deps Deps, config Config) error {
	if deps.Signals == nil || deps.Processor == nil {
		return errors.New("signal source and processor are required")
	}

	lastID := config.ReplayFrom
	if lastID == 0 {
		latest, err := deps.Signals.LatestID(ctx)
		if err != nil {
			logger.WithError(err).Error("Failed to read latest signal id")
			return err
		}
		lastID = latest
	}
	logger.WithField("last_id", lastID).Info("executor loop started")

	ticker := time.NewTicker(config.LoopPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Println("loop stopped")
			return nil

		case <-ticker.C:
			next, err := PollOnce(ctx, deps, lastID, config)
			if err != nil {
				logger.WithError(err).WithField("last_id", next).Warn("poll interrupted, resuming next tick")
			}
			lastID = next
			reportStale(ctx, deps.Stale, config)
		}
	}
}

// PollOnce processes the signals after lastID and returns the id to resume from. A
// malformed signal is skipped. Any other failure stops the batch before that signal so
// the next poll retries it; executions already claimed are deduplicated downstream.
func PollOnce(ctx context.Context, deps Deps, lastID uint, config Config) (uint, error) {
	signals, err := deps.Signals.FindAfterID(ctx, lastID, config.BatchSize)
	if err != nil {
		return lastID, err
	}

	for _, signal := range signals {
		if ctx.Err() != nil {
			return lastID, ctx.Err()
		}
		summary, err := deps.Processor.ProcessSignal(ctx, signal)
		if err != nil {
			if !apperrors.IsKind(err, apperrors.KindValidation) {
				return lastID, err
			}
			logger.WithError(err).WithField("signal_id", signal.ID).Warn("Skipping malformed signal")
		} else {
			logger.WithFields(logger.Fields{
				"signal_id": signal.ID,
				"outcomes":  len(summary.Outcomes),
				"duration":  summary.Duration.String(),
			}).Debug("signal handled")
		}
		lastID = signal.ID
	}
	return lastID, nil
}

func reportStale(ctx context.Context, stale StaleReporter, config Config) {
	if stale == nil || config.StaleAfter <= 0 {
		return
	}
	recs, err := stale.StalePending(ctx, config.StaleAfter, config.StaleLimit)
	if err != nil {
		logger.WithError(err).Warn("Failed to check stale executions")
		return
	}
	if len(recs) > 0 {
		logger.WithField("count", len(recs)).Error("executions stuck in PENDING")
	}
}
