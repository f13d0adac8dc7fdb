package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"debuglens/internal/cache"
	"debuglens/internal/config"
	entries_cleanup "debuglens/internal/features/entries/cleanup"
	entries_controllers "debuglens/internal/features/entries/controllers"
	entries_core "debuglens/internal/features/entries/core"
	system_healthcheck "debuglens/internal/features/system/healthcheck"
	cache_utils "debuglens/internal/util/cache"
	env_utils "debuglens/internal/util/env"
	"debuglens/internal/util/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

func main() {
	log := logger.GetLogger()
	config.StartListeningForShutdownSignal()

	testCacheConnection(log)
	testOpenSearchConnection(log)
	ensureEntriesIndex(log)

	gin.SetMode(gin.ReleaseMode)
	ginApp := gin.Default()

	ginApp.Use(gzip.Gzip(gzip.DefaultCompression))

	enableCors(ginApp)
	setUpRoutes(ginApp)
	runBackgroundTasks(log)

	startServerWithGracefulShutdown(log, ginApp)
}

func startServerWithGracefulShutdown(log *slog.Logger, app *gin.Engine) {
	host := ""
	if config.GetEnv().EnvMode == env_utils.EnvModeDevelopment {
		// for dev we use localhost to avoid firewall
		// requests on each run for Windows
		host = "127.0.0.1"
	}

	srv := &http.Server{
		Addr:    host + ":" + config.GetEnv().HTTPPort,
		Handler: app,
	}

	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen:", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("Shutdown signal received")

	entries_cleanup.GetEntryCleanupBackgroundService().StopWorkers()

	// The context is used to inform the server it has 10 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown:", "error", err)
	}

	log.Info("Server gracefully stopped")
}

func setUpRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")

	system_healthcheck.GetHealthcheckController().RegisterRoutes(v1)
	entries_controllers.GetEntryController().RegisterRoutes(v1)
}

func runBackgroundTasks(log *slog.Logger) {
	log.Info("Preparing to run background tasks...")

	entries_cleanup.GetEntryCleanupBackgroundService().StartWorkers()

	log.Info("Background tasks started successfully")
}

func testCacheConnection(log *slog.Logger) {
	if !config.GetEnv().FamilyLockEnabled {
		return
	}

	log.Info("Testing Valkey connection...")

	valkeyClient, err := cache.GetCache()
	if err == nil {
		err = cache_utils.TestCacheConnection(valkeyClient)
	}
	if err != nil {
		log.Error("Failed to connect to Valkey", "error", err)
		os.Exit(1)
	}

	log.Info("Valkey connection test successful")
}

func testOpenSearchConnection(log *slog.Logger) {
	log.Info("Testing OpenSearch connection...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := entries_core.GetOpenSearchClient().Ping(ctx); err != nil {
		log.Error("Failed to connect to OpenSearch", "error", err)
		os.Exit(1)
	}

	log.Info("OpenSearch connection test successful")
}

func ensureEntriesIndex(log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	index := entries_core.GetEntryIndex()
	index.EnsureExists(ctx)

	log.Info("Entries index ready", "index", index.WriteIndex(), "readPattern", index.ReadIndex())
}

func enableCors(ginApp *gin.Engine) {
	if config.GetEnv().EnvMode == env_utils.EnvModeDevelopment {
		ginApp.Use(cors.New(cors.Config{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowHeaders: []string{
				"Origin",
				"Content-Length",
				"Content-Type",
				"Accept",
				"Accept-Encoding",
				"Content-Encoding",
			},
		}))
	}
}
