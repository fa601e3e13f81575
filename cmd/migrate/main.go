// Command migrate applies every pending Postgres migration for the
// relational store, then exits. A thin CLI wrapper around
// internal/relational.Client.Migrate, grounded on the teacher's pattern of
// a dedicated one-shot binary per infra concern rather than running
// migrations inline from the worker process.
package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/thornxyz/revera/internal/relational"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("construct logger: %v", err)
	}
	defer logger.Sync()

	client, err := relational.New(relational.Config{
		Host:            getEnvOrDefault("POSTGRES_HOST", "localhost"),
		Port:            getEnvOrDefaultInt("POSTGRES_PORT", 5432),
		User:            getEnvOrDefault("POSTGRES_USER", "revera"),
		Password:        getEnvOrDefault("POSTGRES_PASSWORD", ""),
		Database:        getEnvOrDefault("POSTGRES_DB", "revera"),
		SSLMode:         getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		MaxConnections:  5,
		IdleConnections: 2,
		MaxLifetime:     5 * time.Minute,
	}, logger)
	if err != nil {
		logger.Fatal("construct relational client", zap.Error(err))
	}
	defer client.Close()

	if err := client.Migrate(); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	logger.Info("migrations applied")
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
