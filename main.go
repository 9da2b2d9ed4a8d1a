package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nijaru/reelflow/config"
	"github.com/nijaru/reelflow/handlers/api"
	"github.com/nijaru/reelflow/logger"
	"github.com/nijaru/reelflow/repository/sqlstore"
	"github.com/nijaru/reelflow/scripts"
	"github.com/nijaru/reelflow/services/ai"
	"github.com/nijaru/reelflow/services/composer"
	"github.com/nijaru/reelflow/services/metadata"
	"github.com/nijaru/reelflow/services/pipeline"
	"github.com/nijaru/reelflow/services/publisher"
	"github.com/nijaru/reelflow/services/scheduler"
	"github.com/nijaru/reelflow/services/scorer"
	"github.com/nijaru/reelflow/services/scraper"
	"github.com/nijaru/reelflow/services/settings"
	"github.com/nijaru/reelflow/storage"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx := context.Background()

	store, err := sqlstore.Open(ctx, cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()

	assets, err := storage.New(ctx, cfg.Assets)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize asset store")
	}

	completer, err := ai.NewCompleter(ctx, cfg.AI, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize AI provider")
	}

	runner := scripts.NewScriptRunner(scripts.Config{WorkDir: cfg.StagingDir}, appLogger)
	metaGen := metadata.NewGenerator(completer, cfg.AI, appLogger)
	youtube := publisher.NewYouTube(cfg.YouTube, store, appLogger)
	settingsStore := settings.NewFileStore(cfg.SettingsPath, appLogger)

	orch, err := pipeline.New(pipeline.Deps{
		Store:     store,
		Scraper:   scraper.NewInstagram(cfg.Scraper, appLogger),
		Scorer:    scorer.New(completer, cfg.AI, appLogger),
		Composer:  composer.New(runner, assets, metaGen, cfg, appLogger),
		Metadata:  metaGen,
		Publisher: youtube,
		Settings:  settingsStore,
	}, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize pipeline")
	}

	if err := orch.RecoverStale(ctx); err != nil {
		appLogger.WithError(err).Error("Failed to recover interrupted work")
	}
	orch.Start()

	opts := []api.ServerOption{
		api.WithLogger(appLogger),
		api.WithPipeline(orch, store),
		api.WithSettings(settingsStore, assets, store),
		api.WithChannels(store, youtube),
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(cfg.Scheduler, orch, appLogger)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize scheduler")
		}
		sched.Start()
		opts = append(opts, api.WithSchedule(sched.NextRuns))
	}

	server := api.NewServer(cfg, opts...)

	// Graceful shutdown setup
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-shutdownChan
		appLogger.Info("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			appLogger.WithError(err).Error("Server shutdown error")
		}
		if sched != nil {
			if err := sched.Stop(ctx); err != nil {
				appLogger.WithError(err).Error("Scheduler shutdown error")
			}
		}
		if err := orch.Stop(ctx); err != nil {
			appLogger.WithError(err).Error("Pipeline shutdown error")
		}
	}()

	appLogger.WithField("port", cfg.ServerPort).Info("Server starting")
	if err := server.Start(); err != nil && err != http.ErrServerClosed {
		appLogger.WithError(err).Fatal("Server error")
	}
	<-done
}
