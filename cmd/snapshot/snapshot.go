package snapshot

import (
	"context"

	"agentengine/cmd/bootstrap"
	"agentengine/src/scheduler"

	"github.com/sirupsen/logrus"
)

type Snapshot struct {
	Log *logrus.Entry
}

// Start writes one balance snapshot for the current hour and exits.
func (s *Snapshot) Start(ctx context.Context) error {
	stack, err := bootstrap.Open(s.Log)
	if err != nil {
		return err
	}
	defer stack.Close()

	written, err := scheduler.NewSnapshotter(stack.BalanceRepo, stack.LedgerRepo, s.Log).TakeSnapshot(ctx)
	if err != nil {
		return err
	}
	s.Log.WithField("written", written).Info("Snapshot done")
	return nil
}
