package config

import (
	"os"
	"runtime"
	"strconv"
	"time"
)

const (
	// Worker pool bounds: fewer than 2 workers starves the base layer
	// behind target-layer fetches on slow links; more than 6 storms the
	// tile origin on many-core machines.
	MinWorkers = 2
	MaxWorkers = 6
)

type Config struct {
	WorkerPoolSize    int
	WorkerCooldown    time.Duration
	GracePeriod       time.Duration
	FadeDuration      time.Duration
	LowBandwidth      bool
	MemoryConstrained bool
	RetryEnabled      bool
	Decoder           string
	TileURLTemplate   string
	LogLevel          string
	LogEncoding       string
}

func Load() *Config {
	memConstrained := getEnvBool("MEMORY_CONSTRAINED", false)

	cfg := &Config{
		WorkerPoolSize:    getEnvInt("WORKER_POOL_SIZE", 0),
		WorkerCooldown:    time.Duration(getEnvInt("WORKER_COOLDOWN_MS", 5)) * time.Millisecond,
		FadeDuration:      time.Duration(getEnvInt("FADE_DURATION_MS", 250)) * time.Millisecond,
		LowBandwidth:      getEnvBool("LOW_BANDWIDTH", false),
		MemoryConstrained: memConstrained,
		RetryEnabled:      getEnvBool("RETRY_ENABLED", false),
		Decoder:           getEnv("DECODER", "std"),
		TileURLTemplate:   getEnv("TILE_URL_TEMPLATE", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogEncoding:       getEnv("LOG_ENCODING", "json"),
	}

	graceDefault := 20.0
	if memConstrained {
		graceDefault = 3.0
	}
	cfg.GracePeriod = time.Duration(getEnvFloat("GRACE_PERIOD_SECONDS", graceDefault) * float64(time.Second))

	cfg.WorkerPoolSize = ClampWorkers(cfg.WorkerPoolSize)

	return cfg
}

// ClampWorkers resolves a requested pool size to the allowed range.
// Zero means "derive from hardware concurrency".
func ClampWorkers(n int) int {
	if n == 0 {
		n = runtime.NumCPU() / 2
	}
	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
