// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"github.com/kelseyhightower/envconfig"
	cli "gopkg.in/urfave/cli.v1"
)

// envDefaults lets the environment override flag defaults, e.g.
// CAPSTAN_API_ADDR=0.0.0.0:8669 capstan
type envDefaults struct {
	DataDir     string `envconfig:"data_dir"`
	APIAddr     string `envconfig:"api_addr" default:"localhost:8669"`
	MetricsAddr string `envconfig:"metrics_addr" default:"localhost:2112"`
	AdminAddr   string `envconfig:"admin_addr" default:"localhost:2113"`
}

func loadEnvDefaults() envDefaults {
	var d envDefaults
	if err := envconfig.Process("capstan", &d); err != nil {
		fatal(err)
	}
	if d.DataDir == "" {
		d.DataDir = defaultDataDir()
	}
	return d
}

var env = loadEnvDefaults()

var (
	genesisFlag = cli.StringFlag{
		Name:  "genesis",
		Usage: "path to genesis file, if not set, the devnet genesis will be used",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "data-dir",
		Value: env.DataDir,
		Usage: "directory for ledger databases",
	}
	persistFlag = cli.BoolFlag{
		Name:  "persist",
		Usage: "ledger data storage option, if set data will be saved to disk",
	}
	cacheFlag = cli.Uint64Flag{
		Name:  "cache",
		Value: 1024,
		Usage: "megabytes of ram allocated to the ledger database cache",
	}
	apiAddrFlag = cli.StringFlag{
		Name:  "api-addr",
		Value: env.APIAddr,
		Usage: "API service listening address",
	}
	apiCorsFlag = cli.StringFlag{
		Name:  "api-cors",
		Value: "",
		Usage: "comma separated list of domains from which to accept cross origin requests to API",
	}
	apiTimeoutFlag = cli.Uint64Flag{
		Name:  "api-timeout",
		Value: 10000,
		Usage: "API request timeout value in milliseconds",
	}
	apiEventsLimitFlag = cli.Uint64Flag{
		Name:  "api-events-limit",
		Value: 1000,
		Usage: "limit the number of rows returned by /events API",
	}
	enableAPILogsFlag = cli.BoolFlag{
		Name:  "enable-api-logs",
		Usage: "enables API requests logging",
	}
	enableTransactFlag = cli.BoolFlag{
		Name:  "enable-transact",
		Usage: "enable unauthenticated /transact API endpoints",
	}
	verbosityFlag = cli.Uint64Flag{
		Name:  "verbosity",
		Value: 3,
		Usage: "log verbosity (0-9)",
	}
	jsonLogsFlag = cli.BoolFlag{
		Name:  "json-logs",
		Usage: "output logs in JSON format",
	}
	onDemandFlag = cli.BoolFlag{
		Name:  "on-demand",
		Usage: "drive settlement stages only via the settlement API",
	}
	intervalFlag = cli.Uint64Flag{
		Name:  "interval",
		Value: 1,
		Usage: "settlement poll interval in seconds",
	}
	pprofFlag = cli.BoolFlag{
		Name:  "pprof",
		Usage: "turn on go-pprof",
	}
	enableMetricsFlag = cli.BoolFlag{
		Name:  "enable-metrics",
		Usage: "enables metrics collection",
	}
	metricsAddrFlag = cli.StringFlag{
		Name:  "metrics-addr",
		Value: env.MetricsAddr,
		Usage: "metrics service listening address",
	}
	enableAdminFlag = cli.BoolFlag{
		Name:  "enable-admin",
		Usage: "enables admin server",
	}
	adminAddrFlag = cli.StringFlag{
		Name:  "admin-addr",
		Value: env.AdminAddr,
		Usage: "admin service listening address",
	}
	launchTimeFlag = cli.Uint64Flag{
		Name:  "launch-time",
		Usage: "launch time for generated genesis (unix timestamp, defaults to now)",
	}
)
