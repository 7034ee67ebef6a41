/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the cashbook server.
  Handles configuration, dependency injection, scheduled tasks, and
  graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (file, .env, CASHBOOK_* environment)
  3. Initialize SQLite store
  4. Create ledger with metrics observer
  5. Recalculate once so stored values match the current rules
  6. Start backup scheduler (if enabled)
  7. Configure HTTP router and start server

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (optional)
  -port    HTTP server port (overrides server.port)
  -db      SQLite database path (overrides database.path)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the backup scheduler
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/cashbook.db"

  # Run with a config file and hourly backups from the environment
  CASHBOOK_BACKUP_ENABLED=true CASHBOOK_BACKUP_INTERVAL=1h ./server -config=config.yaml

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gemiprint/ledger-engine/api"
	"github.com/gemiprint/ledger-engine/cashbook"
	"github.com/gemiprint/ledger-engine/config"
	"github.com/gemiprint/ledger-engine/metrics"
	"github.com/gemiprint/ledger-engine/store/sqlite"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "Path to YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize ledger
	collector := metrics.New(prometheus.DefaultRegisterer)
	ledger := cashbook.NewLedger(store)
	ledger.Timeout = cfg.Ledger.MutationTimeout
	ledger.Observer = collector

	result, err := ledger.Recalculate(context.Background())
	if err != nil {
		log.Fatalf("Initial recalculation failed: %v", err)
	}
	log.Printf("[Cashbook] %d active entries, %d corrected on startup", len(result.Entries), len(result.Changed))

	// Backups
	backups := api.NewBackupScheduler(store, cfg.Backup.Path)
	backups.Observer = collector
	backups.Configure(cfg.Backup.Enabled, cfg.Backup.Interval)
	backups.Start()
	defer backups.Stop()

	// Create router
	handler := api.NewHandler(ledger, backups)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.CorsAllowedOrigins,
		Metrics:        collector.Middleware,
	})

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Ledger.MutationTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", cfg.Server.Port)
		log.Printf("API available at http://localhost:%d/api/cashbook", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
