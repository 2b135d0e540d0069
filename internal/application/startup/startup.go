// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/application/container"
	"github.com/AtRiskMedia/tinysteps-go/internal/domain/offline"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/manifest"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/tinysteps-go/internal/presentation/http/server"
	"github.com/AtRiskMedia/tinysteps-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// Initialize performs the complete startup sequence and blocks until a
// shutdown signal arrives.
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("\033[32m" + `
  tiny steps
` + "\033[97m" + `  made by At Risk Media
` + "\033[0m")

	// Step 1: Channeled logger
	log.Println("Initializing logger...")
	logger, err := NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	// Step 2: Database connection and schema
	logger.Startup().Info("Connecting to database...", "driver", config.DBDriver)
	db, err := OpenDatabase(ctx, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// Step 3: Dependency injection container
	logger.Startup().Info("Initializing dependency injection container...")
	appContainer, err := container.NewContainer(db, logger, container.Options{})
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	defer appContainer.EngagementService.Close()

	// Step 4: Install and activate the offline gateway
	base := offline.DefaultManifest(config.CacheVersion, appContainer.Origin.String())
	current, err := manifest.Load(config.ManifestPath, base)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	deployStart := time.Now()
	if err := appContainer.GatewayService.Deploy(ctx, current); err != nil {
		// The server still proxies to the origin; the watcher retries on the next manifest change.
		logger.Startup().Error("Gateway install failed", "version", current.Version, "error", err.Error(), "duration", time.Since(deployStart))
	} else {
		logger.Startup().Info("Gateway active", "version", current.Version, "duration", time.Since(deployStart))
	}

	// Step 5: Background workers
	logger.Startup().Info("Starting background workers...")
	go appContainer.EngagementService.RunSweeper(ctx, config.PageSweepInterval)
	go appContainer.SyncWorker.Start(ctx)

	watcher := manifest.NewWatcher(config.ManifestPath, base, current.Version, appContainer.GatewayService.Deploy, logger)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Startup().Warn("Manifest watcher disabled", "path", config.ManifestPath, "error", err.Error())
		}
	}()

	// Step 6: Start HTTP server
	startServerTime := time.Now()
	httpServer := server.New(config.Port, appContainer)
	logger.Startup().Info("HTTP server initialized", "port", config.Port, "duration", time.Since(startServerTime))

	// Step 7: Setup graceful shutdown
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+config.Port)
		serverErr <- httpServer.Start()
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"origin", appContainer.Origin.String(),
		"port", config.Port)

	select {
	case <-gracefulShutdown:
		logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")
	case err := <-serverErr:
		if err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
			return err
		}
	}

	shutdownStart := time.Now()

	// Cancel background tasks
	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	logger.Shutdown().Info("Waiting for background cache writes...")
	appContainer.GatewayService.Host().Wait()

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return nil
}

// Migrate creates the schema and exits.
func Migrate() error {
	logger, err := NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	db, err := OpenDatabase(context.Background(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Startup().Info("Schema is up to date", "driver", db.Driver)
	return nil
}

// NewLogger builds the channeled logger from pkg/config.
func NewLogger() (*logging.ChanneledLogger, error) {
	cfg := logging.DefaultLoggerConfig()
	cfg.JSONFormat = config.LogJSON
	cfg.OutputToFile = config.LogToFile
	cfg.LogDirectory = config.LogDirectory
	cfg.DefaultLevel = logging.ParseLevel(config.LogLevel)
	return logging.NewChanneledLogger(cfg)
}

// OpenDatabase connects with the configured driver and creates the schema.
func OpenDatabase(ctx context.Context, logger *logging.ChanneledLogger) (*database.DB, error) {
	db, err := database.NewConnectionWithLogger(ctx, database.OptionsFromConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.CheckConnectionWithLogger(ctx, db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database health check failed: %w", err)
	}
	if err := database.CreateSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
