package executor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"agentengine/cmd/bootstrap"
	"agentengine/src/connectors"
	"agentengine/src/coordinator"
	"agentengine/src/database"
	"agentengine/src/eligibility"
	"agentengine/src/events"
	"agentengine/src/execution"
	"agentengine/src/executors"
	"agentengine/src/monitor"
	"agentengine/src/repository"
	"agentengine/src/risk"
	"agentengine/src/scheduler"
	"agentengine/src/server"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Executor struct {
	Log *logrus.Entry
}

// Start runs the signal loop, the position monitor, the snapshot scheduler and the ops
// server until SIGINT or SIGTERM.
func (t *Executor) Start() error {
	config := GetConfig()
	log := t.Log
	if log == nil {
		log = logrus.WithField("cmd", "executor")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	// Initialize main (read/write) database and the cache tier
	stack, err := bootstrap.Open(log)
	if err != nil {
		log.WithError(err).Error("Failed to open main database")
		return err
	}
	defer func() {
		if err := stack.Close(); err != nil {
			log.WithError(err).Warn("Failed to close cache")
		}
	}()

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		log.WithError(err).Error("Failed to connect to read-only database")
		return err
	}

	presets, err := risk.LoadPresets(risk.GetConfig().PresetsFile)
	if err != nil {
		log.WithError(err).Error("Failed to load risk presets")
		return err
	}

	connectorConfig := connectors.GetConfig()
	oracle := connectors.NewHTTPPriceOracle(connectorConfig)
	tradeExecutor := connectors.NewHTTPTradeExecutor(connectorConfig)
	tracker := execution.NewTracker(stack.Executions, log)

	signalCoordinator := coordinator.New(coordinator.Deps{
		Agents:      stack.Users,
		Eligibility: eligibility.NewFilter(stack.Users, stack.Configs, log),
		Tracker:     tracker,
		Configs:     stack.Configs,
		Balances:    stack.Balances,
		Positions:   stack.Positions,
		Metrics:     connectors.NewHTTPTokenMetricsProvider(connectorConfig),
		Executor:    tradeExecutor,
		Ledger:      stack.Recorder,
		Presets:     presets,
		Exceptions:  stack.Exceptions,
	}, coordinator.GetConfig(), log)

	g, ctx := errgroup.WithContext(ctx)

	hub := events.NewHub(stack.Bus, log)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})

	if config.MonitorOn {
		positionMonitor := monitor.New(monitor.Deps{
			Seed:       stack.PositionRepo,
			Positions:  stack.Positions,
			Configs:    stack.Configs,
			Balances:   stack.Balances,
			Oracle:     oracle,
			Executor:   tradeExecutor,
			Ledger:     stack.Recorder,
			Presets:    presets,
			Exceptions: stack.Exceptions,
		}, monitor.GetConfig(), log)

		positionEvents, unsubscribe := stack.Bus.Subscribe("position-monitor")
		g.Go(func() error {
			defer unsubscribe()
			positionMonitor.Consume(ctx, positionEvents)
			return nil
		})
		g.Go(func() error { return positionMonitor.Run(ctx) })
	}

	schedulerConfig := scheduler.GetConfig()
	jobs := scheduler.New(schedulerConfig, log)
	defer jobs.Stop()
	snapshotter := scheduler.NewSnapshotter(stack.BalanceRepo, stack.LedgerRepo, log)
	if config.SnapshotsOn {
		if _, err := jobs.Schedule(scheduler.HourlySnapshotJob(snapshotter, schedulerConfig.SnapshotInterval)); err != nil {
			log.WithError(err).Error("Failed to schedule balance snapshots")
			return err
		}
	}

	if config.ServeOps {
		manual := scheduler.ManualSnapshotJob(snapshotter)
		router := server.NewRouter(server.Deps{
			Positions:      hub.ServeWS,
			Jobs:           jobs,
			ManualSnapshot: &manual,
		})
		serverConfig := server.GetConfig()
		g.Go(func() error { return server.StartServer(ctx, serverConfig, router) })
	}

	g.Go(func() error {
		return executors.StartLoop(ctx, executors.Deps{
			Signals:   new(repository.TradingSignalRepository).WithDB(database.ReadOnlyDB),
			Processor: signalCoordinator,
			Stale:     tracker,
		}, executors.GetConfig())
	})

	log.Info("Executor started")
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Executor stopped with error")
		return err
	}
	return nil
}
