package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/phrazzld/medscry/internal/config"
	"github.com/phrazzld/medscry/internal/events"
	"github.com/phrazzld/medscry/internal/platform/postgres"
	"github.com/phrazzld/medscry/internal/platform/redislock"
	"github.com/phrazzld/medscry/internal/redact"
	"github.com/phrazzld/medscry/internal/service/progression"
	"github.com/phrazzld/medscry/internal/store"
	"github.com/redis/go-redis/v9"
)

// dbHandle is the database connection used by the one-shot commands.
type dbHandle struct {
	db *sql.DB
}

// withDatabase opens the configured database for fn and closes it afterwards.
func withDatabase(ctx context.Context, cfg *config.Config, fn func(context.Context, *dbHandle) error) error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required for this command")
	}
	db, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return fn(ctx, &dbHandle{db: db})
}

// application holds the shared dependencies and closes them on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	db    *sql.DB
	redis *redis.Client

	profiles store.ProfileStore
	catalog  store.ContentCatalog
	locker   store.Locker
	emitter  *events.InMemoryEventEmitter
	service  progression.Service
}

// newApplication wires stores, the learner lock and the progression service.
// Without database.url the engine runs on in-memory stores; without
// redis.addr learners are serialized in-process.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{config: cfg, logger: logger}

	if err := app.setupStores(ctx); err != nil {
		app.cleanup()
		return nil, err
	}
	if err := app.setupLocker(ctx); err != nil {
		app.cleanup()
		return nil, err
	}

	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.emitter.RegisterHandler(events.LogHandler{Logger: logger})

	engine, err := progression.NewEngine(cfg.Engine)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to configure progression engine: %w", err)
	}
	app.service = progression.NewService(
		app.profiles,
		app.catalog,
		app.locker,
		engine,
		app.emitter,
		progression.OptionsFromConfig(cfg.Engine.Persistence),
		logger,
	)

	logger.Info("Application initialized successfully",
		slog.String("start_band", string(engine.StartBand)))
	return app, nil
}

func (app *application) setupStores(ctx context.Context) error {
	if app.config.Database.URL != "" {
		db, err := postgres.Open(ctx, app.config.Database.URL, app.config.Database.MaxOpenConns)
		if err != nil {
			return err
		}
		app.db = db
		app.profiles = postgres.NewPostgresProfileStore(db)
		app.catalog = postgres.NewPostgresCatalog(db)
		app.logger.Info("Database connection established")
		return nil
	}

	app.profiles = store.NewMemoryProfileStore()
	catalog, err := loadSeedCatalog(app.config.Content.SeedFile)
	if err != nil {
		return err
	}
	app.catalog = catalog
	app.logger.Warn("database.url not set, progress is kept in memory only")
	return nil
}

func loadSeedCatalog(path string) (*store.MemoryCatalog, error) {
	if path == "" {
		return store.NewMemoryCatalog(store.CatalogSeed{})
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open content seed: %w", err)
	}
	defer func() { _ = f.Close() }()
	return store.LoadMemoryCatalog(f)
}

func (app *application) setupLocker(ctx context.Context) error {
	if app.config.Redis.Addr == "" {
		app.locker = store.NewKeyedLocker()
		return nil
	}
	client, err := redislock.Dial(ctx, app.config.Redis.Addr, app.config.Redis.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.redis = client
	app.locker = redislock.New(client, redislock.Options{TTL: app.config.Redis.LockTTL})
	app.logger.Info("Redis learner lock enabled")
	return nil
}

// Run serves HTTP until ctx is done.
func (app *application) Run(ctx context.Context) error {
	defer app.cleanup()
	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup closes the database and redis connections.
func (app *application) cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", redact.ErrorAttr(err))
		}
		app.db = nil
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("Error closing redis connection", redact.ErrorAttr(err))
		}
		app.redis = nil
	}
}
