// Package config collects the process's environment-variable settings in
// one place with flat os.Getenv lookups, no config-file layer.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// IndexImpl selects which Index implementation the server runs. The
// choice is made once at process startup, not switched at runtime.
type IndexImpl string

const (
	IndexBucketed IndexImpl = "bucketed"
	IndexSnapshot IndexImpl = "snapshot"
)

// Config is the full set of environment-driven settings for the server.
type Config struct {
	RedisURL    string
	RedisHost   string
	DatabaseURL string
	PostgresHost string
	Port        string
	Env         string

	IndexImpl           IndexImpl
	SnapshotTimeSliceMS int
}

// Load reads Config from the process environment, falling back to
// localhost Redis/Postgres and port 8080 when unset.
func Load() Config {
	cfg := Config{
		RedisURL:     os.Getenv("REDIS_URL"),
		RedisHost:    getenvDefault("REDIS_HOST", "localhost"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		PostgresHost: getenvDefault("POSTGRES_HOST", "localhost"),
		Port:         getenvDefault("PORT", "8080"),
		Env:          getenvDefault("ENV", "production"),

		IndexImpl:           IndexImpl(getenvDefault("INDEX_IMPL", string(IndexBucketed))),
		SnapshotTimeSliceMS: getenvIntDefault("SNAPSHOT_TIME_SLICE_MS", 100),
	}
	if cfg.IndexImpl != IndexBucketed && cfg.IndexImpl != IndexSnapshot {
		cfg.IndexImpl = IndexBucketed
	}
	return cfg
}

func (c Config) PostgresConnString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://admin:password@%s:5432/leaderboard?sslmode=disable", c.PostgresHost)
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
