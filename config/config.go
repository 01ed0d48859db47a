package config

import (
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	NATSURL       string
	ClickHouseURL string
	ClickHouseDB  string
	RedisURL      string
	MetricsAddr   string

	// Candle aggregation
	CandleIntervalsMS   string // comma-separated interval widths in ms, e.g. "1000,5000,60000"
	CandleMaxLateMS     int64
	CandleCacheLimit    int
	CandleDeliverPolicy string // one of: new, all, last, last_per_subject
	CandleConsumerReset bool

	// Ingest
	IngestAdapter  string // adapter selection: "synthetic" or "wsfeed"
	IngestSymbols  string // comma-separated symbols for the synthetic adapter
	FeedURL        string // wsfeed adapter endpoint
	EmitIntervalMS int    // synthetic adapter period

	// Testing throttle
	TestingMode       bool
	TestingThrottleMS int64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		NATSURL:       getEnv("NATS_URL", "nats://localhost:4222"),
		ClickHouseURL: getEnv("CLICKHOUSE_URL", "http://localhost:8123"),
		ClickHouseDB:  getEnv("CLICKHOUSE_DB", "default"),
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		CandleIntervalsMS:   getEnv("CANDLE_INTERVALS_MS", "1000,5000,60000"),
		CandleMaxLateMS:     getEnvInt64("CANDLE_MAX_LATE_MS", 0),
		CandleCacheLimit:    int(getEnvInt64("CANDLE_CACHE_LIMIT", 2000)),
		CandleDeliverPolicy: getEnv("CANDLE_DELIVER_POLICY", "new"),
		CandleConsumerReset: getEnvBool("CANDLE_CONSUMER_RESET", false),

		IngestAdapter:  getEnv("INGEST_ADAPTER", "synthetic"),
		IngestSymbols:  getEnv("INGEST_SYMBOLS", "AAPL,MSFT,SPY"),
		FeedURL:        getEnv("FEED_URL", "ws://localhost:9001/ws"),
		EmitIntervalMS: int(getEnvInt64("EMIT_INTERVAL_MS", 1000)),

		TestingMode:       getEnvBool("TESTING_MODE", false),
		TestingThrottleMS: getEnvInt64("TESTING_THROTTLE_MS", 200),
	}
}

// ParseIntervals parses CandleIntervalsMS into a deduplicated ascending slice
// of interval widths in milliseconds. Invalid or non-positive entries are
// skipped with a log line.
func (c *Config) ParseIntervals() []int64 {
	parts := strings.Split(c.CandleIntervalsMS, ",")
	seen := make(map[int64]bool, len(parts))
	intervals := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n <= 0 {
			log.Printf("[config] skipping invalid interval value: %q", p)
			continue
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		intervals = append(intervals, n)
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i] < intervals[j] })
	return intervals
}

// ParseSymbols parses IngestSymbols into an uppercased symbol list.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.IngestSymbols, ",")
	syms := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		syms = append(syms, p)
	}
	return syms
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true") || v == "1"
}
