package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/rawblock/empi-engine/internal/api"
	"github.com/rawblock/empi-engine/internal/db"
	"github.com/rawblock/empi-engine/internal/idgen"
	"github.com/rawblock/empi-engine/internal/processor"
	"github.com/rawblock/empi-engine/internal/worker"
)

func main() {
	log.Println("Starting EMPI identity resolution engine...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values.
	// ────────────────────────────────────────────────────────────────────

	dbURL := requireEnv("DATABASE_URL")

	ctx := context.Background()
	store, err := db.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("FATAL: failed to connect to PostgreSQL: %v", err)
	}
	defer store.Close()
	if err := store.InitSchema(ctx); err != nil {
		log.Fatalf("FATAL: schema init failed: %v", err)
	}

	minter := idgen.New(store, "empi-engine")

	wsHub := api.NewHub()
	go wsHub.Run()

	proc := processor.New(store, wsHub)

	poolSize := envInt("EMPI_WORKER_POOL_SIZE", 8)
	queueCapacity := envInt("EMPI_WORKER_QUEUE_CAPACITY", 256)
	pool := worker.NewPool(poolSize, queueCapacity)

	r := api.SetupRouter(proc, store, minter, pool, wsHub)

	port := getEnvOrDefault("EMPI_PORT", "5400")
	log.Printf("Engine running on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// requireEnv reads a required environment variable and exits if it is not
// set — this prevents the binary from starting with missing critical
// configuration.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: required environment variable %s is not set", key)
	}
	return val
}

func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using default %d", key, val, fallback)
		return fallback
	}
	return n
}
