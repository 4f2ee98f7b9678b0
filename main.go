package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentengine/src/controller"
	"agentengine/src/database"
	"agentengine/src/logging"
	"agentengine/src/repository"
	"agentengine/src/scheduler"
	"agentengine/src/server"

	"github.com/joho/godotenv"
	logger "github.com/sirupsen/logrus"
)

// main serves the ops routes alone: health, metrics, job status and the manual balance
// snapshot trigger. The trading loops run under `cmd executor`.
func main() {
	_ = godotenv.Load()
	closer := logging.Setup(logging.GetConfig())
	defer closer.Close()
	defer handlePanic()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs := scheduler.New(scheduler.GetConfig(), nil)
	defer jobs.Stop()
	snapshotter := scheduler.NewSnapshotter(
		new(repository.GormBalanceRepository).WithDB(database.MainDB),
		new(repository.GormLedgerRepository).WithDB(database.MainDB),
		nil,
	)
	manual := scheduler.ManualSnapshotJob(snapshotter)

	router := server.NewRouter(server.Deps{Jobs: jobs, ManualSnapshot: &manual})
	if err := server.StartServer(ctx, server.GetConfig(), router); err != nil {
		logger.WithError(err).Error("Server stopped")
	}
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", controller.ServiceName()))
		//nolint
		time.Sleep(time.Second * 5)
	}
}
