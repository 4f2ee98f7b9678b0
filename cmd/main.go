package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"agentengine/cmd/executor"
	"agentengine/cmd/resetwallet"
	"agentengine/cmd/snapshot"
	"agentengine/src/logging"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		_, _ = fmt.Fprintln(os.Stderr, "failed to load .env:", err)
	}
	closer := logging.Setup(logging.GetConfig())
	defer closer.Close()

	app := cli.NewApp()
	app.Name = "Agent engine CMD"
	app.Usage = "The agent trading engine command line interface"
	app.Version = Version

	app.Commands = []cli.Command{
		executorCMD,
		snapshotCMD,
		resetWalletCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	executorCMD = cli.Command{
		Name:        "executor",
		Usage:       "run Executor",
		Action:      executorAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the signal loop, position monitor, snapshot scheduler and ops server`,
	}
	snapshotCMD = cli.Command{
		Name:        "snapshot",
		Usage:       "take a balance snapshot",
		Action:      snapshotAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Write one balance snapshot for the current hour`,
	}
	resetWalletCMD = cli.Command{
		Name:      "reset-wallet",
		Usage:     "detach a wallet from its trading state",
		Action:    resetWalletAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.UintFlag{Name: "user", Usage: "owner user id"},
			cli.StringFlag{Name: "wallet", Usage: "wallet address"},
		},
		Description: `Delete positions, balances, swaps, transactions and snapshots of a wallet`,
	}
)

func executorAction(_ *cli.Context) error {

	logrus.Info("Starting executor CMD")

	executorStrategy := &executor.Executor{Log: logrus.WithField("cmd", "executor")}
	err := executorStrategy.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func snapshotAction(_ *cli.Context) error {

	logrus.Info("Starting snapshot CMD")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := &snapshot.Snapshot{Log: logrus.WithField("cmd", "snapshot")}
	if err := s.Start(ctx); err != nil {
		logrus.WithError(err).Error("Snapshot cmd")
		return err
	}

	return nil
}

func resetWalletAction(c *cli.Context) error {
	userID := c.Uint("user")
	wallet := c.String("wallet")
	if userID == 0 || wallet == "" {
		return cli.NewExitError("--user and --wallet are required", 2)
	}

	logrus.WithFields(logrus.Fields{"user": userID, "wallet": wallet}).Info("Starting reset-wallet CMD")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &resetwallet.ResetWallet{Log: logrus.WithField("cmd", "reset-wallet"), UserID: userID, Wallet: wallet}
	result, err := r.Start(ctx)
	if err != nil {
		logrus.WithError(err).Error("Reset wallet cmd")
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
