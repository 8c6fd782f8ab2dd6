// Package main is the entry point for kvsd, the node hosting the fee-gated
// key-value contract. It opens the ledger database, serves the ABCI
// application to Tendermint over a socket and exposes the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"kvstore.contract/kvs/internal/abci"
	"kvstore.contract/kvs/internal/api"
	"kvstore.contract/kvs/internal/config"
	"kvstore.contract/kvs/internal/docs"
	"kvstore.contract/kvs/internal/identity"
	kvslog "kvstore.contract/kvs/internal/logger"
	"kvstore.contract/kvs/internal/metrics"
	"kvstore.contract/kvs/internal/ratelimit"
	"kvstore.contract/kvs/internal/storage"
	"kvstore.contract/kvs/internal/tendermint"
	"kvstore.contract/kvs/internal/types"
)

func main() {
	cfg, cfgErr := config.LoadConfig(config.Path())

	ring := kvslog.New(500)
	logger := kvslog.NewProcessLogger(os.Stderr, ring, cfg.LogLevel)
	if cfgErr != nil {
		level.Warn(logger).Log("msg", "config not loaded, using defaults", "err", cfgErr)
	}
	level.Info(logger).Log("msg", "kvsd starting", "version", types.Version, "chain_id", cfg.ChainID)

	if err := run(cfg, logger, ring); err != nil {
		level.Error(logger).Log("msg", "kvsd exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger log.Logger, ring *kvslog.Logger) error {
	if err := os.MkdirAll(cfg.Home, 0o755); err != nil {
		return fmt.Errorf("create home: %w", err)
	}

	operator, err := identity.LoadOrCreateIdentity(inHome(cfg.Home, cfg.KeyFile))
	if err != nil {
		return fmt.Errorf("load node key: %w", err)
	}
	level.Info(logger).Log("msg", "node key loaded", "address", operator.Address())

	store, err := storage.NewStore(inHome(cfg.Home, cfg.DBFile))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	var defaultFee *types.Coin
	if cfg.DefaultBaseFee != "" {
		fee, err := types.ParseCoin(cfg.DefaultBaseFee)
		if err != nil {
			return fmt.Errorf("default_base_fee: %w", err)
		}
		defaultFee = &fee
	}

	m := metrics.New()
	hub := api.NewHub(logger)
	app, err := abci.NewApplication(store, abci.Options{
		Logger:         logger,
		Metrics:        m,
		Events:         hub,
		BackupInterval: cfg.BackupInterval,
		MaxBackups:     cfg.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	status := app.Status()
	level.Info(logger).Log("msg", "ledger loaded", "height", status.Height, "app_hash", status.AppHash)

	abciServer, err := tendermint.NewABCIServer(app, &tendermint.Config{
		TendermintHome: cfg.TendermintHome,
		SocketAddress:  cfg.ABCIAddress,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	if err := abciServer.Start(); err != nil {
		return err
	}
	defer abciServer.Stop()
	level.Info(logger).Log("msg", "ABCI server listening", "addr", abciServer.SocketPath())

	var tmCmd *exec.Cmd
	if cfg.RunTendermint {
		if tmCmd, err = startTendermint(cfg, operator, defaultFee, logger); err != nil {
			return err
		}
		defer func() {
			if tmCmd.Process != nil {
				tmCmd.Process.Signal(syscall.SIGTERM)
				tmCmd.Wait()
			}
		}()
	}

	port := resolvePort(cfg.APIPort, logger)
	if err := ensurePortAvailable(port); err != nil {
		return fmt.Errorf("port %d unavailable: %w", port, err)
	}

	service := api.NewService(app, api.Options{
		Logger:  logger,
		Ring:    ring,
		Docs:    docs.NewService(cfg.DocsDir),
		Metrics: m,
		Hub:     hub,
		Backups: store,
		Limiter: ratelimit.New(cfg.APIRateLimit, cfg.APIRateBurst, 0),
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           service.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.ListenAndServe()
	}()
	level.Info(logger).Log("msg", "API available", "url", fmt.Sprintf("http://localhost:%d/api/health", port))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		level.Info(logger).Log("msg", "shutting down", "signal", sig.String())
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// startTendermint initializes the Tendermint home on first run, seeds its
// genesis app_state and launches `tendermint node` against our socket.
func startTendermint(cfg *config.Config, operator *identity.Identity, defaultFee *types.Coin, logger log.Logger) (*exec.Cmd, error) {
	tmHome := cfg.TendermintHome
	if tmHome == "" {
		tmHome = tendermint.TendermintHome()
	}
	_, statErr := os.Stat(filepath.Join(tmHome, "config", "genesis.json"))
	fresh := os.IsNotExist(statErr)

	if err := tendermint.InitTendermint(tmHome); err != nil {
		return nil, err
	}
	if fresh {
		state, err := genesisState(cfg, operator, defaultFee)
		if err != nil {
			return nil, err
		}
		if err := tendermint.SetAppState(tmHome, state); err != nil {
			return nil, err
		}
		level.Info(logger).Log("msg", "initialized tendermint home", "home", tmHome)
	}

	cmd := tendermint.GetTendermintCommand(tmHome, cfg.ABCIAddress)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start tendermint: %w", err)
	}
	level.Info(logger).Log("msg", "tendermint started", "pid", cmd.Process.Pid)
	return cmd, nil
}

// genesisState builds the app_state written into a fresh genesis file. The
// configured default base fee is applied here and never during block
// execution, so every validator replays the same genesis.
func genesisState(cfg *config.Config, operator *identity.Identity, defaultFee *types.Coin) (abci.Genesis, error) {
	gen := abci.Genesis{}
	if cfg.GenesisState != "" {
		raw, err := os.ReadFile(cfg.GenesisState)
		if err != nil {
			return gen, fmt.Errorf("read genesis state: %w", err)
		}
		if gen, err = abci.DecodeGenesis(raw); err != nil {
			return gen, err
		}
	} else if defaultFee != nil {
		gen.Instantiate = &abci.GenesisInstantiate{Owner: operator.Address()}
	}

	if gen.Instantiate != nil && gen.Instantiate.BaseFee == nil && defaultFee != nil {
		fee := *defaultFee
		gen.Instantiate.BaseFee = &fee
	}
	return gen, nil
}

func inHome(home, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(home, p)
}

func resolvePort(defaultPort int, logger log.Logger) int {
	portStr := os.Getenv("PORT")
	if portStr == "" {
		return defaultPort
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		level.Warn(logger).Log("msg", "invalid PORT value", "value", portStr, "using", defaultPort)
		return defaultPort
	}

	return port
}

func ensurePortAvailable(port int) error {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return listener.Close()
}
