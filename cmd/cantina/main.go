package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cantina/internal/collection"
	"cantina/internal/config"
	"cantina/internal/lock"
	"cantina/internal/playback"
	"cantina/internal/queue"
	"cantina/internal/server"
	"cantina/internal/store"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load .env if present; real env vars win
	_ = godotenv.Load()

	configPath := os.Getenv("CANTINA_CONFIG")
	if configPath == "" {
		configPath = "./config.toml"
	}

	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}
	applyLogging(logger, cfg)

	if dbPath := os.Getenv("CANTINA_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	// Initialize store
	st, err := store.NewStore(cfg.Database.Path, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing store")
	}
	defer st.Close()

	// One keyed lock shared by all engines so operations on a collection
	// serialize across ordering, queue and playback.
	locks := lock.NewKeyed()
	collections := collection.NewEngine(st, locks, logger)
	queues := queue.NewManager(st, locks, logger)
	machine := playback.NewMachine(st, queues, locks, logger)

	srv := server.NewServer(cfg, st, collections, queues, machine, logger)

	// Reload the log level when the config file changes
	watcher, err := config.StartWatcher(configPath, logger)
	if err != nil {
		logger.WithError(err).Warn("Could not start config watcher")
	} else {
		defer watcher.Stop()
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	<-c
	logger.Info("Received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}

// applyLogging configures the logger from the loaded config.
func applyLogging(logger *logrus.Logger, cfg *config.Config) {
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger.WithError(err).Warn("Could not open log file, using stderr")
			return
		}
		logger.SetOutput(file)
	}
}
