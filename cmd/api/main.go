package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tomlord1122/tasklist/internal/config"
	"github.com/Tomlord1122/tasklist/internal/database"
	"github.com/Tomlord1122/tasklist/internal/logger"
	"github.com/Tomlord1122/tasklist/internal/metrics"
	"github.com/Tomlord1122/tasklist/internal/repository"
	"github.com/Tomlord1122/tasklist/internal/server"
	"github.com/Tomlord1122/tasklist/internal/service"
)

func gracefulShutdown(
	apiServer *http.Server,
	dbService database.Service,
	timeout time.Duration,
	log logger.Logger,
	done chan bool,
) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	ctxTimeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := apiServer.Shutdown(ctxTimeout); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if dbService != nil {
		log.Info("Closing database connection pool")
		if err := dbService.Close(); err != nil {
			log.Error("Error closing database connection pool", "error", err)
		} else {
			log.Info("Database connection pool closed")
		}
	}

	log.Info("Server exiting")
	done <- true
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.GetDefault().Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.Init(&logger.Config{
		Level:      logger.LogLevel(cfg.Log.Level),
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
		TimeFormat: time.RFC3339,
	})
	ctx := logger.ContextWithLogger(context.Background(), log)

	log.Info("Connecting to database", "dsn", cfg.Database.Redacted())
	dbService, err := database.Establish(ctx, database.Config{
		DSN:             cfg.Database.DSN(),
		MaxAttempts:     cfg.Database.MaxAttempts,
		InitialBackoff:  cfg.Database.InitialBackoff,
		MaxBackoff:      cfg.Database.MaxBackoff,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		PingTimeout:     cfg.Database.PingTimeout,
	})
	if err != nil {
		log.Error("Could not connect to database", "error", err)
		os.Exit(1)
	}

	gormDB := dbService.GetDB()
	if cfg.Database.ResetOnStart {
		err = database.Initialize(ctx, gormDB)
	} else {
		err = database.Ensure(ctx, gormDB)
	}
	if err != nil {
		log.Error("Failed to prepare schema", "error", err)
		_ = dbService.Close()
		os.Exit(1)
	}

	todoRepo := repository.NewGormTodoRepository(gormDB)
	appMetrics := metrics.New(true)
	todoService := service.NewTodoService(todoRepo,
		service.WithDefaultPriority(cfg.Todo.DefaultPriority),
		service.WithObserver(appMetrics),
	)

	apiServer := server.NewServer(cfg.Server, todoService, dbService, appMetrics, log)

	done := make(chan bool, 1)
	go gracefulShutdown(apiServer, dbService, cfg.Server.ShutdownTimeout, log, done)

	log.Info("Starting server", "addr", apiServer.Addr)
	err = apiServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("HTTP server ListenAndServe error", "error", err)
		os.Exit(1)
	}

	<-done
	log.Info("Graceful shutdown complete")
}
