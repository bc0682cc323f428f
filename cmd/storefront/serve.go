package main

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/vango-dev/storefront/internal/config"
	"github.com/vango-dev/storefront/internal/errors"
	"github.com/vango-dev/storefront/pkg/server"
	"github.com/vango-dev/storefront/pkg/session"
	"github.com/vango-dev/storefront/pkg/storefront"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	_ "modernc.org/sqlite"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		host       string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the storefront server",
		Long: `Run the storefront HTTP server with live search.

Configuration is read from storefront.json in the current directory when
present (or from --config), then STOREFRONT_* environment variables, then
flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"), os.Getenv)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if logFormat != "" {
				cfg.Log.Format = logFormat
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.srv.Run(cmd.Context()); err != nil {
				return errors.New("S200").WithSource(cfg.Address()).Wrap(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.ConfigFileName, "Path to storefront.json")
	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides config)")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "Listen port (overrides config)")

	return cmd
}

// loadConfig reads the config file and applies environment overrides. A
// missing file is an error only when the path was given explicitly.
func loadConfig(path string, explicit bool, getenv func(string) string) (*config.Config, error) {
	var cfg *config.Config
	if _, err := os.Stat(path); err != nil && !explicit {
		cfg = config.New()
	} else {
		cfg, err = config.LoadFile(path)
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app holds the running server and everything it must release on exit.
type app struct {
	srv      *server.Server
	router   http.Handler
	registry *prometheus.Registry
	closers  []func() error
	logger   *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	catalog, err := a.openCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.MetricsEnabled() {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	sc := server.DefaultSessionConfig()
	sc.SearchPath = cfg.Search.Path
	sc.QuietPeriod = cfg.QuietPeriod()
	sc.SkipMountNavigation = cfg.Search.SkipMountNavigation
	sc.MaxMessageSize = cfg.Session.MaxMessageSize
	sc.ResumeWindow = cfg.ResumeWindow()

	srvCfg := server.DefaultServerConfig().
		WithAddress(cfg.Address()).
		WithSessionConfig(sc).
		WithMaxSessions(cfg.Session.MaxSessions).
		WithStore(store)
	srvCfg.MetricsNamespace = cfg.Telemetry.Namespace
	srvCfg.Logger = logger
	if a.registry != nil {
		srvCfg.Registerer = a.registry
	}
	a.srv = server.New(srvCfg)

	routerCfg := storefront.Config{
		Title:            cfg.Name,
		SearchPath:       cfg.Search.Path,
		PageSize:         cfg.Search.PageSize,
		Catalog:          catalog,
		Live:             a.srv.WebSocketHandler(),
		Sessions:         a.srv.Sessions().Count,
		Registry:         a.registry,
		MetricsNamespace: cfg.Telemetry.Namespace,
		Logger:           logger,
	}
	if cfg.Telemetry.Tracing {
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(newLogExporter(logger)))
		a.closers = append(a.closers, func() error { return tp.Shutdown(context.Background()) })
		routerCfg.TracerProvider = tp
	}
	a.router = storefront.NewRouter(routerCfg)
	a.srv.SetHandler(a.router)

	ok = true
	logger.Info("storefront configured",
		"address", cfg.Address(),
		"session_store", cfg.Session.Store,
		"catalog", cfg.Catalog.Store,
		"metrics", a.registry != nil,
		"tracing", cfg.Telemetry.Tracing)
	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch cfg.Session.Store {
	case config.StoreSQLite:
		db, err := a.openDB(cfg.Session.DSN)
		if err != nil {
			return nil, errors.New("S300").WithSource(cfg.Session.DSN).Wrap(err)
		}
		store := session.NewSQLStore(db,
			session.WithSQLDialect(session.DialectSQLite),
			session.WithSQLLogger(a.logger))
		a.closers = append(a.closers, store.Close)
		if err := store.CreateTable(ctx); err != nil {
			return nil, errors.New("S300").WithSource(cfg.Session.DSN).Wrap(err)
		}
		return store, nil
	default:
		store := session.NewMemoryStore()
		a.closers = append(a.closers, store.Close)
		return store, nil
	}
}

func (a *app) openCatalog(ctx context.Context, cfg *config.Config) (storefront.Catalog, error) {
	if cfg.Catalog.Store != config.StoreSQLite {
		return storefront.NewMemoryCatalog(storefront.DefaultProducts()...), nil
	}
	db, err := a.openDB(cfg.Catalog.DSN)
	if err != nil {
		return nil, errors.New("S301").WithSource(cfg.Catalog.DSN).Wrap(err)
	}
	catalog := storefront.NewSQLCatalog(db, "")
	if err := catalog.CreateTable(ctx); err != nil {
		return nil, errors.New("S301").WithSource(cfg.Catalog.DSN).Wrap(err)
	}
	if cfg.Catalog.Seed {
		if err := catalog.Insert(ctx, storefront.DefaultProducts()...); err != nil {
			return nil, errors.New("S301").WithSource(cfg.Catalog.DSN).Wrap(err)
		}
	}
	return catalog, nil
}

// openDB opens and pings an SQLite database.
func (a *app) openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", dsn, err)
	}
	return db, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := stderrors.Join(errs...); err != nil {
		a.logger.Warn("shutdown cleanup", "error", err)
	}
}
