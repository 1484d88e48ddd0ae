package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tokligence/tokligence-relay/internal/client"
	"github.com/tokligence/tokligence-relay/internal/config"
	"github.com/tokligence/tokligence-relay/internal/executor"
	"github.com/tokligence/tokligence-relay/internal/ledger"
	ledgersql "github.com/tokligence/tokligence-relay/internal/ledger/sqlite"
	"github.com/tokligence/tokligence-relay/internal/logging"
	"github.com/tokligence/tokligence-relay/internal/requester"
	"github.com/tokligence/tokligence-relay/internal/settings"
	settingssql "github.com/tokligence/tokligence-relay/internal/settings/sqlite"
)

type settingsAPI interface {
	Settings(ctx context.Context) (settings.Settings, error)
	SaveSettings(ctx context.Context, s settings.Settings) (settings.Settings, error)
}

type ledgerAPI interface {
	Ledger(ctx context.Context, limit int) (ledger.Report, error)
}

// session is everything one CLI invocation talks to, remote or local.
type session struct {
	cfg      config.RelayConfig
	logger   *zap.Logger
	client   *requester.Client
	settings settingsAPI
	ledger   ledgerAPI
	closers  []func() error
}

func openSession(cmd *cobra.Command, opts *globalOptions) (*session, error) {
	cfg, err := config.LoadRelayConfig(opts.root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := opts.logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	logger, closeLogs, err := logging.New(logging.Options{
		Name:    "relay",
		Level:   level,
		File:    cfg.LogFileCLI,
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logger: logger, closers: []func() error{closeLogs}}

	if opts.local {
		if err := s.openLocal(); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	}

	endpoint := strings.TrimSpace(opts.endpoint)
	if endpoint == "" {
		endpoint = cfg.Endpoint
	}
	rc, err := client.NewRelayClient(endpoint, nil, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	logger.Debug("using relayd", zap.String("endpoint", endpoint))
	s.client = requester.New(rc, requester.Options{Logger: logger})
	s.settings = rc
	s.ledger = rc
	return s, nil
}

// openLocal runs the executor in this process over the local stores.
func (s *session) openLocal() error {
	ledgerStore, err := ledgersql.New(s.cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	s.closers = append(s.closers, ledgerStore.Close)
	settingsStore, err := settingssql.New(s.cfg.SettingsPath)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	s.closers = append(s.closers, settingsStore.Close)

	exec := executor.New(executor.Config{
		HTTPClient:     &http.Client{Timeout: s.cfg.UpstreamTimeout},
		Logger:         s.logger,
		Ledger:         ledgerStore,
		ReadBufferSize: s.cfg.ReadBufferBytes,
	})
	// closers run in reverse, so this drains streams before the stores close
	s.closers = append(s.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return exec.Wait(ctx)
	})
	s.logger.Debug("using in-process executor")
	s.client = requester.New(exec, requester.Options{Logger: s.logger})
	s.settings = localSettings{store: settingsStore}
	s.ledger = localLedger{store: ledgerStore}
	return nil
}

// Close releases stores and flushes logs, in reverse order of opening.
func (s *session) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type localSettings struct {
	store settings.Store
}

func (l localSettings) Settings(ctx context.Context) (settings.Settings, error) {
	current, err := l.store.Get(ctx)
	if errors.Is(err, settings.ErrNotFound) {
		return settings.Settings{}, nil
	}
	return current, err
}

func (l localSettings) SaveSettings(ctx context.Context, next settings.Settings) (settings.Settings, error) {
	saved, err := l.store.Save(ctx, next)
	if err != nil {
		return settings.Settings{}, err
	}
	return saved.Redacted(), nil
}

type localLedger struct {
	store ledger.Store
}

func (l localLedger) Ledger(ctx context.Context, limit int) (ledger.Report, error) {
	summary, err := l.store.Summary(ctx)
	if err != nil {
		return ledger.Report{}, err
	}
	entries, err := l.store.ListRecent(ctx, limit)
	if err != nil {
		return ledger.Report{}, err
	}
	return ledger.Report{Summary: summary, Entries: entries}, nil
}
