package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pitabwire/opsdesk/internal/config"
	"github.com/pitabwire/opsdesk/internal/datasource"
	"github.com/pitabwire/opsdesk/internal/definition"
	"github.com/pitabwire/opsdesk/internal/observability"
	"github.com/pitabwire/opsdesk/internal/session"
	"github.com/pitabwire/opsdesk/internal/transport"
	"github.com/pitabwire/opsdesk/model"
)

func newServeCmd() *cobra.Command {
	var seedPostgres bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, seedPostgres)
		},
	}
	cmd.Flags().BoolVar(&seedPostgres, "seed-postgres", false,
		"create the records table and load seed files for postgres screens")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, seedPostgres bool) error {
	if parent == nil {
		parent = context.Background()
	}

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "opsdesk", version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	defs, err := loadDefinitions(cfg.Definitions)
	if err != nil {
		return err
	}
	registry := definition.NewRegistry(defs)
	metrics.SetScreensLoaded(len(registry.AllScreens()))

	builderOpts := []datasource.BuilderOption{
		datasource.WithMetrics(metrics),
		datasource.WithLogger(logger),
	}
	readiness := observability.ReadinessChecks{
		ScreensLoaded: func() bool { return len(registry.AllScreens()) > 0 },
	}

	pool, err := openPostgres(ctx, cfg.DataSource.Postgres, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
		builderOpts = append(builderOpts, datasource.WithPostgres(pool))
		readiness.Postgres = observability.HealthCheckFunc(pool.Ping)
	}

	cache, err := openRedis(ctx, cfg.DataSource.Redis, logger)
	if err != nil {
		return err
	}
	if cache != nil {
		defer func() { _ = cache.Close() }()
		builderOpts = append(builderOpts, datasource.WithCache(cache))
		readiness.Cache = observability.HealthCheckFunc(func(ctx context.Context) error {
			return cache.Ping(ctx).Err()
		})
	}

	builder := datasource.NewBuilder(cfg.DataSource, builderOpts...)

	if seedPostgres {
		if pool == nil {
			return errors.New("--seed-postgres needs a postgres connection; set " + cfg.DataSource.Postgres.DSNEnv)
		}
		if err := seedPostgresScreens(ctx, pool, cfg.DataSource.Postgres.Table, registry.AllScreens(), logger); err != nil {
			return err
		}
	}

	sessions := session.NewManager(session.NewMemoryStore(), registry, builder, cfg.Session,
		session.WithMetrics(metrics),
		session.WithLogger(logger),
	)

	var limiter *transport.RateLimiter
	if cfg.Server.RateLimit.Enabled {
		limiter = transport.NewRateLimiter(cfg.Server.RateLimit, metrics)
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:      cfg,
		Screens:     registry,
		Sessions:    sessions,
		Metrics:     metrics,
		Gatherer:    prometheus.DefaultGatherer,
		Readiness:   readiness,
		RateLimiter: limiter,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	go sessions.Run(bgCtx, cfg.Session.SweepInterval)
	if limiter != nil {
		go limiter.Run(bgCtx)
	}
	if cfg.Definitions.HotReload {
		go watchReload(bgCtx, cfg.Definitions, registry, builder, metrics, logger)
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("screens", len(registry.AllScreens())),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	bgCancel()
	sessions.Shutdown(shutdownCtx)

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

// openPostgres connects when the DSN environment variable is set. It returns
// a nil pool when postgres is not configured.
func openPostgres(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	if cfg.DSNEnv == "" {
		return nil, nil
	}
	dsn := os.Getenv(cfg.DSNEnv)
	if dsn == "" {
		logger.Info("postgres not configured", zap.String("env", cfg.DSNEnv))
		return nil, nil
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	logger.Info("postgres connected")
	return pool, nil
}

// openRedis connects when the address environment variable is set. It
// returns a nil client when the cache is not configured.
func openRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	if cfg.AddrEnv == "" {
		return nil, nil
	}
	addr := os.Getenv(cfg.AddrEnv)
	if addr == "" {
		logger.Info("redis cache not configured", zap.String("env", cfg.AddrEnv))
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	logger.Info("redis cache connected", zap.String("addr", addr))
	return client, nil
}

// seedPostgresScreens loads each postgres screen's seed file into the
// records table, replacing rows already there for that screen.
func seedPostgresScreens(ctx context.Context, pool *pgxpool.Pool, table string, screens []model.ScreenDefinition, logger *zap.Logger) error {
	for _, def := range screens {
		if def.DataSource.Type != model.DataSourcePostgres || def.DataSource.SeedFile == "" {
			continue
		}
		seed, err := datasource.LoadStaticSource(def.DataSource.SeedFile)
		if err != nil {
			return fmt.Errorf("seeding %s: %w", def.ID, err)
		}
		records, err := seed.Fetch(ctx, model.FetchRequest{})
		if err != nil {
			return fmt.Errorf("seeding %s: %w", def.ID, err)
		}

		src := datasource.NewPostgresSource(pool, table, def)
		if err := src.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("seeding %s: %w", def.ID, err)
		}
		if err := src.Seed(ctx, records.Records); err != nil {
			return fmt.Errorf("seeding %s: %w", def.ID, err)
		}
		logger.Info("postgres screen seeded", zap.String("screen_id", def.ID), zap.Int("records", len(records.Records)))
	}
	return nil
}

// watchReload reloads definitions on SIGHUP. An invalid set is rejected and
// the registry keeps serving the previous one. Open sessions keep the
// definition they were opened with.
func watchReload(ctx context.Context, cfg config.DefinitionsConfig, registry *definition.Registry, builder *datasource.Builder, metrics *observability.Metrics, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := reloadDefinitions(ctx, cfg, registry, builder, metrics, logger); err != nil {
				logger.Error("definition reload failed", zap.Error(err))
			}
		}
	}
}

func reloadDefinitions(ctx context.Context, cfg config.DefinitionsConfig, registry *definition.Registry, builder *datasource.Builder, metrics *observability.Metrics, logger *zap.Logger) error {
	defs, err := loadDefinitions(cfg)
	if err != nil {
		metrics.RecordDefinitionReload("error")
		return err
	}

	previous := registry.Checksum()
	registry.Replace(defs)
	if registry.Checksum() == previous {
		metrics.RecordDefinitionReload("unchanged")
		return nil
	}

	for _, def := range registry.AllScreens() {
		if err := builder.InvalidateCache(ctx, def); err != nil {
			logger.Warn("cache invalidation failed", zap.String("screen_id", def.ID), zap.Error(err))
		}
	}
	metrics.RecordDefinitionReload("ok")
	metrics.SetScreensLoaded(len(registry.AllScreens()))
	logger.Info("definitions reloaded", zap.Int("screens", len(registry.AllScreens())))
	return nil
}
