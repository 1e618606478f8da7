package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"netpresence/internal/config"
	"netpresence/internal/gateway"
	"netpresence/internal/logger"
	"netpresence/internal/observability/metrics"
	"netpresence/internal/presence/application"
	presence "netpresence/internal/presence/domain"
	"netpresence/internal/presence/infrastructure/memory"
	"netpresence/internal/presence/infrastructure/sqlstore"
	"netpresence/internal/snapshot"
)

const driverMemory = "memory"

// app holds the wired service graph for one command invocation.
type app struct {
	cfg        config.Config
	logger     zerolog.Logger
	uow        presence.UnitOfWork
	db         *sql.DB
	closeStore func() error
	poller     *application.Poller
	scheduler  *application.Scheduler
	aggregator *application.Aggregator
}

func loadConfig(opts *RootOptions) (config.Config, error) {
	if opts.ConfigPath != "" {
		return config.LoadFile(opts.ConfigPath)
	}
	return config.Load()
}

// newApp loads config, opens and migrates storage and builds the services.
func newApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		cfg.Logging.Debug = true
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	a := &app{cfg: cfg, logger: log}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	metrics.Init(a.db, logger.WithComponent(log, "metrics"))

	if err := a.wire(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	if strings.EqualFold(a.cfg.Database.Driver, driverMemory) {
		a.uow = memory.NewStore()
		a.closeStore = func() error { return nil }
		a.logger.Warn().Msg("using in-memory store, history is lost on exit")
		return nil
	}
	driver, err := sqlstore.ParseDriver(a.cfg.Database.Driver)
	if err != nil {
		return err
	}
	store, err := sqlstore.Open(ctx, driver, a.cfg.Database.DSN)
	if err != nil {
		return err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return err
	}
	a.uow = store
	a.db = store.DB()
	a.closeStore = store.Close
	a.logger.Info().Str("driver", string(driver)).Msg("store ready")
	return nil
}

func (a *app) wire() error {
	format, err := snapshot.ParseFormat(a.cfg.Gateway.Format)
	if err != nil {
		return err
	}
	fetcher, target, err := a.newFetcher(format)
	if err != nil {
		return err
	}

	parser := snapshot.NewParser(logger.WithComponent(a.logger, "parser"), snapshot.WithConstructor(a.cfg.Gateway.Constructor))
	reconciler, err := application.NewReconciler(a.uow, logger.WithComponent(a.logger, "reconciler"))
	if err != nil {
		return err
	}
	a.poller, err = application.NewPoller(fetcher, parser, reconciler, application.PollerConfig{
		Credentials: gateway.Credentials{
			Username: a.cfg.Gateway.Username,
			Password: a.cfg.Gateway.Password,
		},
		DevicesURL:   target,
		FetchTimeout: a.cfg.Poll.FetchTimeout,
	}, logger.WithComponent(a.logger, "poller"))
	if err != nil {
		return err
	}
	a.scheduler = application.NewScheduler(a.poller, a.cfg.Poll.Interval, logger.WithComponent(a.logger, "scheduler"))

	a.aggregator, err = application.NewAggregator(a.uow.Directory(), a.uow.History(), a.cfg.Location())
	return err
}

func (a *app) newFetcher(format snapshot.Format) (gateway.FetchCollaborator, string, error) {
	if path := a.cfg.Gateway.SnapshotFile; path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, "", fmt.Errorf("snapshot file: %w", err)
		}
		fetcher, err := gateway.NewFileFetcher(format)
		return fetcher, path, err
	}
	fetcher, err := gateway.NewHTTPClient(a.cfg.Gateway.BaseURL, format,
		gateway.WithLoginPath(a.cfg.Gateway.LoginPath),
		gateway.WithFormFields(a.cfg.Gateway.UsernameField, a.cfg.Gateway.PasswordField),
		gateway.WithTimeout(a.cfg.Poll.FetchTimeout),
	)
	return fetcher, a.cfg.Gateway.DevicesURL, err
}

// Close releases the store.
func (a *app) Close() error {
	if a == nil || a.closeStore == nil {
		return nil
	}
	return a.closeStore()
}
