// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/capstanfi/capstan/admin"
	"github.com/capstanfi/capstan/api"
	"github.com/capstanfi/capstan/co"
	"github.com/capstanfi/capstan/event"
	"github.com/capstanfi/capstan/eventdb"
	"github.com/capstanfi/capstan/genesis"
	"github.com/capstanfi/capstan/health"
	"github.com/capstanfi/capstan/log"
	"github.com/capstanfi/capstan/lvldb"
	"github.com/capstanfi/capstan/metrics"
	"github.com/capstanfi/capstan/solo"
)

// devnetLaunchTime keeps the devnet genesis ID stable across restarts.
const devnetLaunchTime = uint64(1735689600) // 2025-01-01 00:00:00 UTC

var (
	version   string
	gitCommit string
	gitTag    string

	logLevel = &slog.LevelVar{}
	logger   = log.WithContext("pkg", "main")
)

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", version, gitCommit, versionMeta)
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "Capstan",
		Usage:     "Incentive settlement service",
		Copyright: "2025 The Capstan developers",
		Flags: []cli.Flag{
			genesisFlag,
			dataDirFlag,
			persistFlag,
			cacheFlag,
			apiAddrFlag,
			apiCorsFlag,
			apiTimeoutFlag,
			apiEventsLimitFlag,
			enableAPILogsFlag,
			enableTransactFlag,
			verbosityFlag,
			jsonLogsFlag,
			onDemandFlag,
			intervalFlag,
			pprofFlag,
			enableMetricsFlag,
			metricsAddrFlag,
			enableAdminFlag,
			adminAddrFlag,
		},
		Action: runAction,
		Commands: []cli.Command{
			{
				Name:  "verify-events",
				Usage: "verify the event database against the settlement ledger",
				Flags: []cli.Flag{
					genesisFlag,
					dataDirFlag,
					verbosityFlag,
					jsonLogsFlag,
				},
				Action: verifyEventsAction,
			},
			{
				Name:  "gen-genesis",
				Usage: "print a devnet genesis file as a starting point for a custom network",
				Flags: []cli.Flag{
					launchTimeFlag,
				},
				Action: genGenesisAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAction(ctx *cli.Context) error {
	defer func() { logger.Info("exited") }()

	initLogger(ctx)
	gene := selectGenesis(ctx)

	var (
		mainDB      *lvldb.LevelDB
		eventDB     *eventdb.EventDB
		instanceDir string
	)
	if ctx.Bool(persistFlag.Name) {
		instanceDir = makeInstanceDir(ctx, gene)
		mainDB = openMainDB(ctx, instanceDir)
		eventDB = openEventDB(instanceDir)
	} else {
		instanceDir = "Memory"
		mainDB = openMemMainDB()
		eventDB = openMemEventDB()
	}
	defer func() { logger.Info("closing main database..."); mainDB.Close() }()
	defer func() { logger.Info("closing event database..."); eventDB.Close() }()

	eng := initEngine(gene, mainDB, []event.Sink{eventDB})

	apiHandler, subs, apiCloser := api.New(eng, eventDB, api.Options{
		AllowedOrigins:  ctx.String(apiCorsFlag.Name),
		EventsLimit:     ctx.Uint64(apiEventsLimitFlag.Name),
		PprofOn:         ctx.Bool(pprofFlag.Name),
		EnableReqLogger: ctx.Bool(enableAPILogsFlag.Name),
		EnableMetrics:   ctx.Bool(enableMetricsFlag.Name),
		SoloAPI:         ctx.Bool(enableTransactFlag.Name),
	})
	defer func() { logger.Info("closing API..."); apiCloser() }()
	eng.AddSink(subs)

	apiURL, srvCloser := startAPIServer(ctx, apiHandler, gene.ID())
	defer func() { logger.Info("stopping API server..."); srvCloser() }()

	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
		url, closeFunc := startMetricsServer(ctx.String(metricsAddrFlag.Name))
		logger.Info("metrics server started", "url", url)
		defer closeFunc()
	}

	if ctx.Bool(enableAdminFlag.Name) {
		url, closeFunc, err := admin.StartServer(
			ctx.String(adminAddrFlag.Name),
			logLevel,
			health.New(eng, health.DefaultGracePeriod),
		)
		if err != nil {
			return err
		}
		logger.Info("admin server started", "url", url)
		defer closeFunc()
	}

	printStartupMessage(gene, eng, instanceDir, apiURL)

	exitCtx := handleExitSignal()

	var goes co.Goes
	goes.Go(func() { houseKeeping(exitCtx) })
	defer goes.Wait()

	return solo.New(eng, solo.Options{
		OnDemand: ctx.Bool(onDemandFlag.Name),
		Interval: ctx.Uint64(intervalFlag.Name),
	}).Run(exitCtx)
}

func houseKeeping(ctx context.Context) {
	clockSyncTicker := time.NewTicker(10 * time.Minute)
	defer clockSyncTicker.Stop()

	go checkClockOffset()
	for {
		select {
		case <-ctx.Done():
			return
		case <-clockSyncTicker.C:
			go checkClockOffset()
		}
	}
}

func genGenesisAction(ctx *cli.Context) error {
	launchTime := ctx.Uint64(launchTimeFlag.Name)
	if launchTime == 0 {
		launchTime = uint64(time.Now().Unix())
	}
	gene := genesis.NewDevnet(launchTime)
	data, err := json.MarshalIndent(gene.Config(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
