// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/beevik/ntp"
	"github.com/elastic/gosigar"
	"github.com/ethereum/go-ethereum/common/fdlimit"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/mattn/go-isatty"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/co"
	"github.com/capstanfi/capstan/engine"
	"github.com/capstanfi/capstan/event"
	"github.com/capstanfi/capstan/eventdb"
	"github.com/capstanfi/capstan/genesis"
	"github.com/capstanfi/capstan/kv"
	"github.com/capstanfi/capstan/log"
	"github.com/capstanfi/capstan/lvldb"
	"github.com/capstanfi/capstan/metrics"
	"github.com/capstanfi/capstan/solo"
	"github.com/capstanfi/capstan/state"
)

// daemon properties live in their own key space, away from ledger state
var (
	propsBucket  = kv.Bucket("capstan-props-")
	genesisIDKey = []byte("genesis-id")
)

func fatal(args ...interface{}) {
	var w io.Writer
	if runtime.GOOS == "windows" {
		// The SameFile check below doesn't work on Windows.
		// stdout is unlikely to get redirected though, so just print there.
		w = os.Stdout
	} else {
		outf, _ := os.Stdout.Stat()
		errf, _ := os.Stderr.Stat()
		if outf != nil && errf != nil && os.SameFile(outf, errf) {
			w = os.Stderr
		} else {
			w = io.MultiWriter(os.Stdout, os.Stderr)
		}
	}
	fmt.Fprint(w, "Fatal: ")
	fmt.Fprintln(w, args...)
	os.Exit(1)
}

func initLogger(ctx *cli.Context) {
	logLevel.Set(log.FromLegacyLevel(int(ctx.Uint64(verbosityFlag.Name))))

	var handler slog.Handler
	if ctx.Bool(jsonLogsFlag.Name) {
		handler = log.JSONHandlerWithLevel(os.Stdout, logLevel)
	} else {
		useColor := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
		handler = log.NewTerminalHandlerWithLevel(os.Stdout, logLevel, useColor)
	}
	log.SetDefault(log.NewLogger(handler))
}

func selectGenesis(ctx *cli.Context) *genesis.Genesis {
	path := ctx.String(genesisFlag.Name)
	if path == "" {
		return genesis.NewDevnet(devnetLaunchTime)
	}

	file, err := os.Open(path)
	if err != nil {
		fatal(fmt.Sprintf("open genesis file: %v", err))
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()

	var gen genesis.CustomGenesis
	if err := decoder.Decode(&gen); err != nil {
		fatal(fmt.Sprintf("decode genesis file: %v", err))
	}

	customGen, err := genesis.NewCustomNet(&gen)
	if err != nil {
		fatal(fmt.Sprintf("build genesis: %v", err))
	}
	return customGen
}

func makeInstanceDir(ctx *cli.Context, gene *genesis.Genesis) string {
	dataDir := ctx.String(dataDirFlag.Name)
	if dataDir == "" {
		fatal(fmt.Sprintf("unable to infer default data dir, use -%s to specify", dataDirFlag.Name))
	}

	instanceDir := filepath.Join(dataDir, fmt.Sprintf("instance-%x", gene.ID().Bytes()[24:]))
	if err := os.MkdirAll(instanceDir, 0700); err != nil {
		fatal(fmt.Sprintf("create instance dir [%v]: %v", instanceDir, err))
	}
	return instanceDir
}

func openMainDB(ctx *cli.Context, instanceDir string) *lvldb.LevelDB {
	cacheMB := normalizeCacheSize(int(ctx.Uint64(cacheFlag.Name)))
	logger.Debug("cache size(MB)", "size", cacheMB)

	fdCache := suggestFDCache()
	logger.Debug("fd cache", "n", fdCache)

	dir := filepath.Join(instanceDir, "main.db")
	db, err := lvldb.New(dir, lvldb.Options{
		CacheSize:              cacheMB,
		OpenFilesCacheCapacity: fdCache,
	})
	if err != nil {
		fatal(fmt.Sprintf("open main database [%v]: %v", dir, err))
	}
	return db
}

func normalizeCacheSize(sizeMB int) int {
	if sizeMB < 128 {
		sizeMB = 128
	}

	var mem gosigar.Mem
	if err := mem.Get(); err != nil {
		logger.Warn("failed to get total mem:", "err", err)
	} else {
		// limit to 1/2 os physical ram
		limitMB := int(mem.Total / 1024 / 1024 / 2)
		if sizeMB > limitMB {
			sizeMB = limitMB
			logger.Warn("cache size(MB) limited", "limit", limitMB)
		}
	}
	return sizeMB
}

func suggestFDCache() int {
	limit, err := fdlimit.Current()
	if err != nil {
		fatal("failed to get fd limit:", err)
	}
	if limit <= 1024 {
		logger.Warn("low fd limit, increase it if possible", "limit", limit)
	}

	n := limit / 2
	if n > 5120 {
		return 5120
	}
	return n
}

func openEventDB(instanceDir string) *eventdb.EventDB {
	dir := filepath.Join(instanceDir, "events.db")
	db, err := eventdb.New(dir)
	if err != nil {
		fatal(fmt.Sprintf("open event database [%v]: %v", dir, err))
	}
	return db
}

func openMemMainDB() *lvldb.LevelDB {
	db, err := lvldb.NewMem()
	if err != nil {
		fatal(fmt.Sprintf("open main database: %v", err))
	}
	return db
}

func openMemEventDB() *eventdb.EventDB {
	db, err := eventdb.NewMem()
	if err != nil {
		fatal(fmt.Sprintf("open event database: %v", err))
	}
	return db
}

// initEngine builds the genesis state on a fresh database, or verifies
// that an existing one was initialized from the same genesis.
func initEngine(gene *genesis.Genesis, mainDB *lvldb.LevelDB, sinks []event.Sink) *engine.Engine {
	st := state.New(mainDB)
	props := propsBucket.NewStore(mainDB)

	stored, err := props.Get(genesisIDKey)
	if err != nil {
		if !props.IsNotFound(err) {
			fatal("read genesis id:", err)
		}
		if err := gene.Build(st); err != nil {
			fatal("build genesis state:", err)
		}
		if err := props.Put(genesisIDKey, gene.ID().Bytes()); err != nil {
			fatal("write genesis id:", err)
		}
	} else if capstan.BytesToBytes32(stored) != gene.ID() {
		fatal(fmt.Sprintf("genesis mismatch: database initialized with %v, want %v",
			capstan.BytesToBytes32(stored), gene.ID()))
	}

	src := solo.NewSource(gene.Config().Voters)
	return engine.New(engine.Config{
		State:    st,
		Resolver: src,
		Power:    src,
		Sinks:    sinks,
	})
}

func startAPIServer(ctx *cli.Context, handler http.Handler, genesisID capstan.Bytes32) (string, func()) {
	addr := ctx.String(apiAddrFlag.Name)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fatal(fmt.Sprintf("listen API addr [%v]: %v", addr, err))
	}
	if timeout := ctx.Uint64(apiTimeoutFlag.Name); timeout > 0 {
		handler = handleAPITimeout(handler, time.Duration(timeout)*time.Millisecond)
	}
	handler = handleXGenesisID(handler, genesisID)
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: time.Second}
	var goes co.Goes
	goes.Go(func() {
		srv.Serve(listener)
	})
	return "http://" + listener.Addr().String() + "/", func() {
		srv.Close()
		goes.Wait()
	}
}

// handleXGenesisID adds the x-genesis-id header to responses, and
// rejects requests that carry a mismatched one.
func handleXGenesisID(h http.Handler, genesisID capstan.Bytes32) http.Handler {
	idStr := genesisID.String()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-genesis-id", idStr)
		if reqID := r.Header.Get("x-genesis-id"); reqID != "" && reqID != idStr {
			io.Copy(io.Discard, r.Body)
			http.Error(w, "genesis id mismatch", http.StatusForbidden)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func handleAPITimeout(h http.Handler, timeout time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// websocket subscriptions hold the connection open
		if r.URL.Path == "/subscriptions/events" {
			h.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

func startMetricsServer(addr string) (string, func()) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fatal(fmt.Sprintf("listen metrics addr [%v]: %v", addr, err))
	}

	router := mux.NewRouter()
	router.PathPrefix("/metrics").Handler(metrics.HTTPHandler())
	handler := handlers.CompressHandler(router)

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: time.Second, ReadTimeout: 5 * time.Second}
	var goes co.Goes
	goes.Go(func() {
		srv.Serve(listener)
	})
	return "http://" + listener.Addr().String() + "/metrics", func() {
		srv.Close()
		goes.Wait()
	}
}

// handleExitSignal returns a context canceled on SIGINT or SIGTERM.
func handleExitSignal() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		exitSignalCh := make(chan os.Signal, 1)
		signal.Notify(exitSignalCh, os.Interrupt, syscall.SIGTERM)

		sig := <-exitSignalCh
		logger.Info("exit signal received", "signal", sig)
		cancel()
	}()
	return ctx
}

func checkClockOffset() {
	resp, err := ntp.Query("pool.ntp.org")
	if err != nil {
		logger.Debug("failed to access NTP", "err", err)
		return
	}
	if resp.ClockOffset > 2*time.Second {
		logger.Warn("clock offset detected", "offset", resp.ClockOffset)
	}
}

func printStartupMessage(gene *genesis.Genesis, eng *engine.Engine, instanceDir, apiURL string) {
	status, err := eng.Status()
	if err != nil {
		fatal("read engine status:", err)
	}

	info := fmt.Sprintf(`Starting Capstan %v
    Network      [ %v %v ]
    Epoch length [ %v ]
    Epoch start  [ %v ]
    Instance dir [ %v ]
    API portal   [ %v ]`,
		fullVersion(),
		gene.ID(), gene.Name(),
		status.EpochLength,
		time.Unix(int64(status.EpochStart), 0),
		instanceDir,
		apiURL)

	if voters := gene.Config().Voters; len(voters) > 0 {
		info += "\n    Voters:"
		for _, v := range voters {
			info += fmt.Sprintf("\n        %v [ power %v ]", v.Address, (*big.Int)(v.Power))
		}
	}
	fmt.Println(info)
}

// copy from go-ethereum
func defaultDataDir() string {
	// Try to place the data folder in the user's home dir
	if home := homeDir(); home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "org.capstanfi.capstan")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "org.capstanfi.capstan")
		} else {
			return filepath.Join(home, ".org.capstanfi.capstan")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}
