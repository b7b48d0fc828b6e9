/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the commission engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Load the compensation plan (custom JSON file or built-in default)
  4. Create the engine and API handler
  5. Configure HTTP router
  6. Start server with graceful shutdown

CONFIGURATION:
  Flags override environment variables; environment variables override
  defaults. An optional .env file in the working directory is loaded
  first.

  -port / PORT           HTTP server port (default: 8080)
  -db / DATABASE_PATH    SQLite database path (default: commission.db)
                         Use ":memory:" for in-memory database
  -plan / PLAN_PATH      Compensation plan JSON file (default: built-in)
  -bonus-interval        Auto bonus recalculation interval (default: 1h,
                         0 disables the background scheduler)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/commission.db"

  # Run with a custom rate schedule
  ./server -plan="./config/plan.json"

  # Run on different port
  ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
  - factory/plan.go: Plan JSON loading
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/commission-engine/api"
	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/factory"
	"github.com/warp/commission-engine/store/sqlite"
)

func main() {
	// .env is optional; flags still win over anything it sets.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DATABASE_PATH", "commission.db"), "SQLite database path")
	planPath := flag.String("plan", envStr("PLAN_PATH", ""), "compensation plan JSON file (empty = built-in default)")
	bonusInterval := flag.Duration("bonus-interval", time.Hour, "auto bonus recalculation interval (0 disables)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Load the compensation plan
	plan, err := factory.LoadPlan(*planPath)
	if err != nil {
		log.Fatalf("Failed to load compensation plan: %v", err)
	}

	// Initialize engine and handler
	eng := engine.New(store, plan)
	handler := api.NewHandler(eng, store)

	// Background bonus recalculation
	scheduler := api.NewBonusScheduler(handler)
	if *bonusInterval > 0 {
		scheduler.CheckInterval = *bonusInterval
		scheduler.Start()
		defer scheduler.Stop()
	}

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
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
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
