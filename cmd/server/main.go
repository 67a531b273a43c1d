/*
main.go - Application entry point

STARTUP SEQUENCE:
  1. Load .env (if present) and parse flags
  2. Open the SQLite store
  3. Optionally seed the demo fixture accounts
  4. Wire fee policy, event publisher, ledger service, router
  5. Start the server with graceful shutdown

CONFIGURATION:
  Flags take their defaults from the environment, so either works:
    -port / PORT              HTTP port (default 8080)
    -db   / DB_PATH           SQLite path (default chainledger.db, ":memory:" ok)
    -seed                     Create demo accounts on startup
    KAFKA_BROKERS             Comma-separated brokers; empty disables events

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, drain active requests
  (30s timeout), close the store, exit.
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
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/chainledger/api"
	"github.com/warp/chainledger/events"
	"github.com/warp/chainledger/events/kafka"
	"github.com/warp/chainledger/ledger"
	"github.com/warp/chainledger/seed"
	"github.com/warp/chainledger/store/sqlite"
)

func main() {
	// .env is optional; environment wins over it either way.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "chainledger.db"), "SQLite database path")
	doSeed := flag.Bool("seed", false, "create demo fixture accounts on startup")
	flag.Parse()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	var pub events.Publisher = events.Noop{}
	if brokers := envStr("KAFKA_BROKERS", ""); brokers != "" {
		kp := kafka.NewPublisher(strings.Split(brokers, ","))
		defer kp.Close()
		pub = kp
		log.Printf("Publishing ledger events to %s", brokers)
	}

	svc := ledger.NewService(store, ledger.NewDefaultFeePolicy(), pub)

	if *doSeed {
		if err := seed.Apply(context.Background(), store); err != nil {
			log.Fatalf("Failed to seed accounts: %v", err)
		}
		log.Printf("Seeded %d fixture accounts", len(seed.Fixtures))
	}

	router := api.NewRouter(api.NewHandler(svc))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Ledger server starting on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

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

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
