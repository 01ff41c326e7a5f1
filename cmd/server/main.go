package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/deesatzed/tuhs-abx-steward/internal/api"
	"github.com/deesatzed/tuhs-abx-steward/internal/audit"
	"github.com/deesatzed/tuhs-abx-steward/internal/config"
	"github.com/deesatzed/tuhs-abx-steward/internal/database"
	"github.com/deesatzed/tuhs-abx-steward/internal/domain"
	"github.com/deesatzed/tuhs-abx-steward/internal/evidence"
	"github.com/deesatzed/tuhs-abx-steward/internal/feedback"
	"github.com/deesatzed/tuhs-abx-steward/internal/guideline"
	"github.com/deesatzed/tuhs-abx-steward/internal/service"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := newLogger(cfg.Logging)

	store, err := guideline.NewStore(cfg.Guidelines.Dir, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load guideline corpus")
	}
	if violations := store.Snapshot().Violations(); len(violations) > 0 {
		if cfg.Guidelines.FailOnViolations {
			logger.WithField("violations", violations).Fatal("Guideline corpus failed cross-reference validation")
		}
		logger.WithField("count", len(violations)).Warn("Guideline corpus has cross-reference violations")
	}

	// Evidence coordination is optional; the engine runs without it.
	var searcher service.EvidenceSearcher
	if cfg.Evidence.Enabled {
		cache, err := evidence.NewCache(cfg.Cache, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create evidence cache")
		}
		searcher = evidence.NewCoordinator(cfg.Evidence, cache, logger)
	}

	engine := service.NewEngine(
		store,
		service.NewSelector(logger),
		service.NewCalculator(cfg.Dosing.WeightBasedDrugs, logger),
		cfg.Evidence.Confidence,
		searcher,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fbStore, dbPool := newFeedbackStore(ctx, cfg, configManager, logger)
	if fbStore != nil {
		defer fbStore.Close()
	}
	if dbPool != nil {
		defer dbPool.Close()
	}

	auditor, err := audit.NewLogger(cfg.Audit.Dir, cfg.Audit.Enabled, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create audit logger")
	}

	server := api.NewServer(cfg, engine, fbStore, auditor, dbPool, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"host":              cfg.Server.Host,
		"port":              cfg.Server.Port,
		"guideline_version": store.Snapshot().Version(),
	}).Info("Starting antibiotic steward server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

// newLogger builds the process logger from configuration.
func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}

// newFeedbackStore opens the configured feedback backend. Failures disable
// feedback routes instead of aborting startup; the core pipeline does not
// depend on the store.
func newFeedbackStore(ctx context.Context, cfg *domain.Config, manager *config.Manager, logger *logrus.Logger) (feedback.Store, *database.DB) {
	switch cfg.Feedback.Backend {
	case "postgres":
		pool, err := database.NewConnection(ctx, cfg.Database, logger)
		if err != nil {
			logger.WithError(err).Warn("Postgres unavailable, feedback routes disabled")
			return nil, nil
		}

		dbURL := postgresURL(cfg.Database)
		runner, err := database.NewMigrationRunner(dbURL, cfg.Database.MigrationsPath, logger)
		if err != nil {
			logger.WithError(err).Warn("Migration setup failed, feedback routes disabled")
			pool.Close()
			return nil, nil
		}
		if err := runner.Up(); err != nil {
			logger.WithError(err).Warn("Migrations failed, feedback routes disabled")
			runner.Close()
			pool.Close()
			return nil, nil
		}
		runner.Close()

		store, err := feedback.NewPostgresStoreFromURL(manager.GetDatabaseConnectionString())
		if err != nil {
			logger.WithError(err).Warn("Postgres feedback store failed, feedback routes disabled")
			pool.Close()
			return nil, nil
		}
		return store, pool

	default:
		store, err := feedback.NewSQLiteStore(cfg.Feedback.SQLitePath)
		if err != nil {
			logger.WithError(err).Warn("SQLite feedback store failed, feedback routes disabled")
			return nil, nil
		}
		return store, nil
	}
}

// postgresURL renders the URL form golang-migrate expects.
func postgresURL(db domain.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(db.Username), url.QueryEscape(db.Password),
		db.Host, db.Port, db.Database, db.SSLMode)
}
