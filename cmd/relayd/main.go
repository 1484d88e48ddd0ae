package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tokligence/tokligence-relay/internal/chat"
	"github.com/tokligence/tokligence-relay/internal/config"
	"github.com/tokligence/tokligence-relay/internal/executor"
	"github.com/tokligence/tokligence-relay/internal/health"
	"github.com/tokligence/tokligence-relay/internal/httpserver"
	"github.com/tokligence/tokligence-relay/internal/instance"
	"github.com/tokligence/tokligence-relay/internal/ledger"
	ledgerasync "github.com/tokligence/tokligence-relay/internal/ledger/async"
	ledgerpg "github.com/tokligence/tokligence-relay/internal/ledger/postgres"
	ledgersql "github.com/tokligence/tokligence-relay/internal/ledger/sqlite"
	"github.com/tokligence/tokligence-relay/internal/logging"
	"github.com/tokligence/tokligence-relay/internal/metrics"
	"github.com/tokligence/tokligence-relay/internal/ratelimit"
	settingssql "github.com/tokligence/tokligence-relay/internal/settings/sqlite"
	"github.com/tokligence/tokligence-relay/internal/version"
)

func main() {
	cfg, err := config.LoadRelayConfig(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	logger, closeLogs, err := logging.New(logging.Options{
		Name:  "relayd",
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer closeLogs()

	if err := run(cfg, logger); err != nil {
		logger.Error("relayd stopped", zap.Error(err))
		_ = closeLogs()
		os.Exit(1)
	}
}

func run(cfg config.RelayConfig, logger *zap.Logger) error {
	instanceID, err := instance.GetOrCreateID(filepath.Dir(cfg.SettingsPath))
	if err != nil {
		logger.Warn("instance id unavailable", zap.Error(err))
	}
	logger.Info("starting relayd",
		zap.String("version", version.FullInfo()),
		zap.String("environment", cfg.Environment),
		zap.String("instance", instanceID))

	store, ledgerDB, err := openLedger(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	settingsStore, err := settingssql.New(cfg.SettingsPath)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	defer settingsStore.Close()

	collector := metrics.NewCollector()
	exec := executor.New(executor.Config{
		HTTPClient:     &http.Client{Timeout: cfg.UpstreamTimeout},
		Logger:         logger,
		Metrics:        collector,
		Ledger:         store,
		ReadBufferSize: cfg.ReadBufferBytes,
	})

	checker := health.New(health.Config{
		Databases: map[string]health.Pinger{"ledger_db": ledgerDB, "settings_db": settingsStore},
		Endpoints: providerEndpoints(cfg, logger),
	})

	httpSrv := httpserver.New(httpserver.Config{
		Executor:   exec,
		Settings:   settingsStore,
		Ledger:     store,
		Health:     checker,
		Metrics:    collector,
		Logger:     logger,
		InstanceID: instanceID,
		RateLimit: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		}),
	})

	// No write timeout: streaming ports and unary relays last as long as
	// the upstream call.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpSrv.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay server listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigs:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	httpSrv.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	// ports run on hijacked conns; let them record before the stores close
	if err := exec.Wait(shutdownCtx); err != nil {
		logger.Warn("streams still running at shutdown", zap.Error(err))
	}
	return nil
}

type pingStore interface {
	ledger.Store
	health.Pinger
}

// openLedger picks PostgreSQL when ledger_dsn is a postgres DSN and SQLite
// otherwise, optionally behind the async batch writer. The returned pinger
// is the underlying database.
func openLedger(cfg config.RelayConfig, logger *zap.Logger) (ledger.Store, health.Pinger, error) {
	var base pingStore
	if ledgerpg.IsDSN(cfg.LedgerDSN) {
		pg, err := ledgerpg.New(cfg.LedgerDSN, ledgerpg.PoolConfig{})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres ledger: %w", err)
		}
		logger.Info("ledger backend", zap.String("driver", "postgres"))
		base = pg
	} else {
		if cfg.LedgerDSN != "" {
			logger.Warn("ignoring ledger_dsn that is not a postgres url")
		}
		lite, err := ledgersql.New(cfg.LedgerPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open ledger: %w", err)
		}
		logger.Info("ledger backend", zap.String("driver", "sqlite"), zap.String("path", cfg.LedgerPath))
		base = lite
	}
	if !cfg.LedgerAsync {
		return base, base, nil
	}
	return ledgerasync.New(base, ledgerasync.Config{Logger: logger}), base, nil
}

// providerEndpoints lists catalog base URLs for the health checker when
// health_probe_providers is on.
func providerEndpoints(cfg config.RelayConfig, logger *zap.Logger) []health.Endpoint {
	if !cfg.HealthProbeProviders {
		return nil
	}
	catalog, err := chat.LoadCatalog(cfg.ProvidersFile)
	if err != nil {
		logger.Warn("provider catalog unavailable for health probes", zap.Error(err))
		return nil
	}
	var out []health.Endpoint
	for _, p := range catalog.Providers() {
		base := p.BaseURL
		if base == "" {
			base = p.DefaultBaseURL
		}
		if base == "" {
			continue
		}
		out = append(out, health.Endpoint{Name: "provider:" + p.Name, URL: base + "/models"})
	}
	return out
}
