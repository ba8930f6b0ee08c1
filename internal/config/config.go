package config

import (
	"log"
	"os"

	"github.com/spf13/cast"
)

// Config holds everything loaded from the environment at startup.
type Config struct {
	DatabaseURL string
	RedisAddr   string
	DataDir     string

	ScanWorkers       int
	FastHashAlgorithm string
	FastHashBytes     int
	FastHashRateLimit float64 // reads/sec against one prober; 0 disables throttling

	CronScanSchedule string // empty disables the periodic rescan scheduler
	Debug            bool
}

func Load() *Config {
	return &Config{
		DatabaseURL:       env("DATABASE_URL", "postgres://reelbox:reelbox@db:5432/reelbox?sslmode=disable"),
		RedisAddr:         env("REDIS_ADDR", "localhost:6379"),
		DataDir:           env("DATA_DIR", "/data"),
		ScanWorkers:       envInt("SCAN_WORKERS", 8),
		FastHashAlgorithm: env("FAST_HASH_ALGORITHM", "sha1"),
		FastHashBytes:     envInt("FAST_HASH_BYTES", 8*1024),
		FastHashRateLimit: envFloat("FAST_HASH_RATE_LIMIT", 0),
		CronScanSchedule:  env("CRON_SCAN_SCHEDULE", ""),
		Debug:             envBool("DEBUG", false),
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := cast.ToIntE(v); err == nil {
			return i
		}
		log.Printf("config: invalid int for %s=%q, using default %d", key, v, fallback)
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := cast.ToFloat64E(v); err == nil {
			return f
		}
		log.Printf("config: invalid float for %s=%q, using default %v", key, v, fallback)
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := cast.ToBoolE(v); err == nil {
			return b
		}
		log.Printf("config: invalid bool for %s=%q, using default %v", key, v, fallback)
	}
	return fallback
}
