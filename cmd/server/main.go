/*
main.go - HTTP server entry point

PURPOSE:
  Initializes and starts the LIC reserving API server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, LIC_* environment, optional YAML file)
  2. Initialize logger
  3. Initialize SQLite store
  4. Create API handler with policy and thresholds
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML configuration file (optional)
  -port    HTTP server port, overrides LIC_SERVER_PORT
  -db      SQLite database path, overrides LIC_DB_SQLITE_PATH
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (LIC_SERVER_SHUTDOWN_TIMEOUT)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/lic.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run from a config file
  ./server -config=lic.yaml

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration keys
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/warp/reserving-engine/api"
	"github.com/warp/reserving-engine/config"
	"github.com/warp/reserving-engine/logger"
	"github.com/warp/reserving-engine/store/sqlite"
)

func main() {
	// Flags
	configFile := flag.String("config", "", "YAML configuration file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configFile, ".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logger.SetLogger(logger.New(cfg.LoggerOptions()))
	log := logger.GetLogger().WithComponent("server")

	policy, err := cfg.Policy()
	if err != nil {
		log.WithError(err).Fatal("Invalid reserving policy")
	}
	thresholds, err := cfg.Thresholds()
	if err != nil {
		log.WithError(err).Fatal("Invalid validation thresholds")
	}

	// Initialize store
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			log.WithError(err).Fatal("Failed to create database directory")
		}
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, policy, thresholds)
	handler.MaxBodyBytes = cfg.Server.MaxBodyBytes

	// Create router
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  2 * cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.WithFields(logger.Fields{
			"addr":     server.Addr,
			"database": cfg.Database.Path,
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
		return
	}

	log.Info("Server stopped")
}
