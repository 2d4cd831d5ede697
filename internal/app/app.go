// Package app initializes and runs the intake service. It wires storage
// backends, runs database migrations, handles graceful shutdown, and
// starts the HTTP server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/karsell/intake/internal/config"
	"github.com/karsell/intake/internal/draft"
	"github.com/karsell/intake/internal/httpapi"
	"github.com/karsell/intake/internal/logging"
	"github.com/karsell/intake/internal/metrics"
	"github.com/karsell/intake/internal/session"
	"github.com/karsell/intake/internal/storage/blob"
	"github.com/karsell/intake/internal/storage/listings"
	"github.com/karsell/intake/internal/storage/migrations"
	"github.com/karsell/intake/internal/storage/snapshotcache"
	"github.com/karsell/intake/internal/storage/valuationstash"
	"github.com/karsell/intake/internal/submit"
	"github.com/karsell/intake/internal/telemetry"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	cacheDB  *sql.DB
	registry *session.Registry
	sweeper  *session.Sweeper
	sink     telemetry.Sink
	handler  http.Handler
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	ctx := context.Background()

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}
	repo := listings.NewPostgresRepository(db)

	cache, cacheDB, err := snapshotcache.Open(c.CacheDSN)
	if err != nil {
		return nil, fmt.Errorf("snapshot cache init error: %w", err)
	}

	stash, err := valuationstash.NewRedis(c.RedisURL, c.ValuationTTL)
	if err != nil {
		return nil, fmt.Errorf("valuation stash init error: %w", err)
	}

	store, err := blob.New(ctx, blob.Config{
		Bucket:          c.S3Bucket,
		Region:          c.S3Region,
		Endpoint:        c.S3BaseEndpoint,
		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: c.S3SecretAccessKey,
		PublicBaseURL:   c.S3PublicBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	var sink telemetry.Sink
	if c.KafkaBrokers != "" {
		sink, err = telemetry.NewKafkaSink(strings.Split(c.KafkaBrokers, ","), c.KafkaTopic, logger)
		if err != nil {
			return nil, fmt.Errorf("telemetry sink init error: %w", err)
		}
	} else {
		sink = telemetry.LogSink{Log: logger}
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	deps := draft.Deps{
		Remote: repo,
		Cache:  cache,
		Online: func(ctx context.Context) bool {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return db.PingContext(pingCtx) == nil
		},
		Sink:    sink,
		Metrics: m,
		Log:     logger,
	}
	engineCfg := draft.Config{
		Debounce:          c.SaveDebounce,
		InsuranceInterval: c.InsuranceInterval,
		MinSaveInterval:   c.MinSaveInterval,
		CacheTTL:          c.SnapshotCacheTTL,
	}

	registry := session.NewRegistry(repo, deps, engineCfg, c.SessionIdleTTL, m, logger)
	sweeper := session.NewSweeper(registry, cache, logger)

	reconciler := submit.New(repo, listings.NewSchemaCache(repo, 5*time.Minute),
		stash, cache, sink, m, logger, c.SubmitTimeout)

	handler := httpapi.NewHandler(registry, reconciler, stash, store, logger)
	router := httpapi.NewRouter(handler, []byte(c.SecretKey), promReg)

	return &App{
		config:   c,
		logger:   logger,
		db:       db,
		cacheDB:  cacheDB,
		registry: registry,
		sweeper:  sweeper,
		sink:     sink,
		handler:  router,
	}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	return goose.UpContext(ctx, db, ".")
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "addr", app.config.EndpointAddrHTTP)

	app.initSignalHandler(cancelFunc)

	if err := app.sweeper.Start(ctx, app.config.SweepCron); err != nil {
		app.logger.Error(ctx, err.Error())
		return
	}

	server := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: app.handler,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	<-ctx.Done()
	app.logger.Info(ctx, "Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Warn(shutdownCtx, "http shutdown error", "error", err)
	}
	app.sweeper.Stop()
	// open sessions flush their drafts before the stores close
	app.registry.Shutdown(shutdownCtx)

	if closer, ok := app.sink.(interface{ Close() }); ok {
		closer.Close()
	}
	if err := app.cacheDB.Close(); err != nil {
		app.logger.Warn(shutdownCtx, "cache close error", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(shutdownCtx, "db close error", "error", err)
	}
}
