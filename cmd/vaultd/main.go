package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lendvault/config"
	nativecommon "lendvault/native/common"
	"lendvault/native/oracle"
	"lendvault/native/positions"
	"lendvault/native/vault"
	"lendvault/observability"
	"lendvault/observability/logging"
	"lendvault/rpc"
	"lendvault/state"
	"lendvault/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "vaultd.toml", "path to vaultd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("LENDVAULT_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup("vaultd", env)

	var db storage.Database
	if cfg.InMemoryState {
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			log.Fatalf("open state database at %s: %v", cfg.DataDir, err)
		}
		defer leveldb.Close()
		db = leveldb
	}

	registry := positions.NewRegistry()
	clock := func() uint64 { return uint64(time.Now().Unix()) }
	valuer := oracle.NewValuer(oracle.Config{
		MaxAgeSeconds:   cfg.Oracle.MaxQuoteAgeSeconds,
		MaxDeviationX64: vault.FractionFromBps(cfg.Oracle.MaxDeviationBps),
	}, cfg.Base(), registry, clock)

	engine := vault.NewEngine(cfg.Module(), cfg.Admin(), cfg.RiskParameters())
	engine.SetState(state.NewManager(db))
	engine.SetRateModel(cfg.RateModel())
	engine.SetOracle(valuer)
	engine.SetPositionManager(registry)
	switches := nativecommon.NewSwitches()
	engine.SetPauses(switches)
	engine.SetEmitter(observability.NewEventSink(logger))
	if err := engine.SetDailyLimits(cfg.Admin(),
		big.NewInt(cfg.Risk.DailyLendMin), big.NewInt(cfg.Risk.DailyDebtMin), true); err != nil {
		log.Fatalf("seed daily limits: %v", err)
	}

	opts := []rpc.Option{rpc.WithValuer(valuer), rpc.WithPauses(switches)}
	if cfg.RequestsPerMin > 0 {
		opts = append(opts, rpc.WithRateLimit(cfg.RequestsPerMin, cfg.RequestBurst))
	}
	if cfg.DevPositions {
		if !strings.EqualFold(env, "dev") {
			log.Fatalf("dev position minting is restricted to the dev environment")
		}
		opts = append(opts, rpc.WithDevPositions(registry))
	}
	server := rpc.NewServer(engine, logger, opts...)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("vaultd listening", "address", cfg.ListenAddress, "env", env)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}
}
