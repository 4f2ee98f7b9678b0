package scheduler

import (
	"context"
	"time"

	"agentengine/src/model"
	"agentengine/src/utils"

	"github.com/sirupsen/logrus"
)

// Fixed ids of the balance snapshot jobs.
const (
	HourlySnapshotJobID = "balance-snapshot-hourly"
	ManualSnapshotJobID = "balance-snapshot-manual"
)

type BalanceSource interface {
	FindAll(ctx context.Context) ([]model.Balance, error)
}

type SnapshotWriter interface {
	CreateSnapshots(ctx context.Context, snapshots []model.BalanceSnapshot) (int64, error)
}

// Snapshotter copies every balance row into the snapshot table under the current hour.
// Rows already written for the hour are kept, so repeated runs in one hour are harmless.
type Snapshotter struct {
	balances BalanceSource
	writer   SnapshotWriter
	log      *logrus.Entry
	now      func() time.Time
}

func NewSnapshotter(balances BalanceSource, writer SnapshotWriter, log *logrus.Entry) *Snapshotter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Snapshotter{
		balances: balances,
		writer:   writer,
		log:      log.WithField("component", "BalanceSnapshotter"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// TakeSnapshot returns the number of rows written.
func (s *Snapshotter) TakeSnapshot(ctx context.Context) (int64, error) {
	bucket := utils.ResetTime(s.now(), "hour")
	balances, err := s.balances.FindAll(ctx)
	if err != nil {
		return 0, err
	}

	rows := make([]model.BalanceSnapshot, 0, len(balances))
	for _, b := range balances {
		rows = append(rows, model.BalanceSnapshot{
			AgentID:       b.AgentID,
			WalletAddress: b.WalletAddress,
			TokenAddress:  b.TokenAddress,
			TokenSymbol:   b.TokenSymbol,
			Balance:       b.Balance,
			SnapshotAt:    bucket,
		})
	}
	n, err := s.writer.CreateSnapshots(ctx, rows)
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{
		"bucket":   bucket.Format(time.RFC3339),
		"balances": len(balances),
		"written":  n,
	}).Info("Balance snapshot taken")
	return n, nil
}

// HourlySnapshotJob runs the snapshot every interval, starting one interval from now.
func HourlySnapshotJob(s *Snapshotter, every time.Duration) Job {
	return Job{ID: HourlySnapshotJobID, Delay: every, Every: every, Run: s.run}
}

// ManualSnapshotJob runs the snapshot once, right away.
func ManualSnapshotJob(s *Snapshotter) Job {
	return Job{ID: ManualSnapshotJobID, Run: s.run}
}

func (s *Snapshotter) run(ctx context.Context) error {
	_, err := s.TakeSnapshot(ctx)
	return err
}
