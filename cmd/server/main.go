// Package main implements the medscry progression server: it schedules
// review cards, adapts each learner's difficulty band, gates domain
// completion and builds the daily content mix.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/api/middleware"
	"github.com/phrazzld/medscry/internal/config"
	"github.com/phrazzld/medscry/internal/platform/logger"
	"github.com/phrazzld/medscry/internal/platform/postgres"
	"github.com/phrazzld/medscry/internal/store"
)

func main() {
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, status, version) and exit")
	importFile := flag.String("import-content", "", "import a catalog seed JSON file into Postgres and exit")
	tokenFor := flag.String("issue-token", "", "print a development token for the given learner id and exit")
	tokenRole := flag.String("role", "", "role claim for -issue-token")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the token printed by -issue-token")
	flag.Parse()

	cfg, err := loadAppConfig()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, appLogger)

	switch {
	case *tokenFor != "":
		err = issueToken(cfg, *tokenFor, *tokenRole, *tokenTTL)
	case *migrateCmd != "":
		err = withDatabase(ctx, cfg, func(ctx context.Context, app *dbHandle) error {
			return postgres.Migrate(ctx, app.db, *migrateCmd)
		})
	case *importFile != "":
		err = withDatabase(ctx, cfg, func(ctx context.Context, app *dbHandle) error {
			return importContent(ctx, app, *importFile)
		})
	default:
		err = serve(ctx, cfg, appLogger)
	}
	if err != nil {
		appLogger.Error("medscry exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// loadAppConfig loads and validates the configuration.
func loadAppConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("Server configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.Bool("database", cfg.Database.URL != ""),
		slog.Bool("redis", cfg.Redis.Addr != ""))

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}

func issueToken(cfg *config.Config, learner, role string, ttl time.Duration) error {
	learnerID, err := uuid.Parse(learner)
	if err != nil {
		return fmt.Errorf("invalid learner id: %w", err)
	}
	token, err := middleware.SignToken(cfg.Auth.JWTSecret, learnerID, role, time.Now(), ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func importContent(ctx context.Context, app *dbHandle, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer func() { _ = f.Close() }()

	seed, err := store.DecodeCatalogSeed(f)
	if err != nil {
		return err
	}
	if err := postgres.Import(ctx, app.db, seed); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("content imported",
		slog.Int("items", len(seed.Items)),
		slog.Int("rubrics", len(seed.Rubrics)))
	return nil
}
