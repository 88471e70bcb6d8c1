// Package startup prepares the sync engine and its diagnostics server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kadunajudiciary/courtsync-go/internal/application/container"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/caching/cleanup"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/realtime"
	"github.com/kadunajudiciary/courtsync-go/internal/presentation/http/server"
	"github.com/kadunajudiciary/courtsync-go/pkg/config"
)

// Initialize performs the complete startup sequence and blocks until
// shutdown.
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("Initializing...")

	logger, err := logging.NewChanneledLogger(nil)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	appContainer, err := container.NewContainer(logger)
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}
	logger.Startup().Info("Dependency injection container created")

	// Seed local state before touching the network: the engine must be
	// usable on whatever the mirror holds.
	active := appContainer.SessionService.LoadFromMirror()
	appContainer.CaseService.SeedFromMirror()

	// Inbound push events route through the dispatcher; every reconnect
	// kicks a full resync to cover the gap the channel was down.
	appContainer.Channel.OnEvent(appContainer.Dispatcher.Dispatch)
	appContainer.Channel.OnStateChange(func(state realtime.State) {
		if state == realtime.StateConnected {
			appContainer.Scheduler.Kick(ctx)
		}
	})

	if active {
		if err := appContainer.Channel.Connect(); err != nil {
			logger.Startup().Warn("Initial channel connect failed", "error", err.Error())
		}
	} else {
		logger.Startup().Info("No active session, channel stays down until login")
	}

	logger.Startup().Info("Starting background workers...")
	cleanupWorker := cleanup.NewWorker(appContainer.Store, cleanup.NewConfig(), logger)
	go cleanupWorker.Start(ctx)
	go appContainer.Scheduler.Start(ctx)

	logger.Startup().Info("Starting diagnostics server...")
	port := os.Getenv("PORT")
	if port == "" {
		port = config.DiagnosticsPort
	}
	httpServer := server.New(port, appContainer)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("Starting diagnostics server", "address", ":"+port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("Diagnostics server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Startup complete",
		"totalDuration", time.Since(start),
		"sessionActive", active,
		"port", port)

	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

	shutdownStart := time.Now()
	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping diagnostics server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	}

	logger.Shutdown().Info("Closing channel and mirror...")
	if err := appContainer.Close(); err != nil {
		logger.Shutdown().Error("Error closing container", "error", err.Error())
	}

	logger.Shutdown().Info("Shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return nil
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
