/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L4
Logic:       Full service configuration: server, spool, circuit
             breaker thresholds, batching knobs, per-role budget
             defaults, contract catalog path, dashboard stage
             root, and query tag identity.
Context:     Every component reads its knobs from here rather
             than touching os.Getenv directly.
Suitability: L4 — config shape affects every downstream package.
──────────────────────────────────────────────────────────────
*/

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration values.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration

	// Identity, used in every query tag (spec.md §6.6)
	ServiceName string
	GitSHA      string

	// Data model — the single writable base table (I1: Two-Table Law)
	LandingTable string

	// Execution Engine Adapter session context (spec.md §4.1)
	EngineRole      string
	EngineWarehouse string
	EngineDatabase  string
	EngineSchema    string

	// Execution Engine Adapter transport
	EngineBaseURL   string
	EngineAccount   string
	EngineToken     string
	EngineStageBase string
	EnginePoolSize  int

	// Redis (permission/budget cache, session correlation)
	RedisURL string

	// API auth
	APIKeyHeader string

	// Rate limiting
	RateLimitEnabled bool
	RateLimitRPM     int
	RateLimitBurst   int

	// Timeouts
	DefaultTimeout time.Duration

	// Body limits
	MaxBodyBytes int64

	// Logging
	LogLevel string

	// Event Log Client (C2)
	SpoolDir                string
	EventMaxBytes           int
	BatchSize               int
	FlushInterval           time.Duration
	AutoBatchThresholdPerMin int
	BufferCapacityEvents    int
	CircuitWindow           time.Duration
	CircuitThreshold        uint32
	GlobalBreakerFailRate   float64
	CompressWindow          time.Duration
	CompressMinOccurrences  int

	// Guarded Executor (C4) default VIEWER budgets
	DefaultMaxRows     int
	DefaultMaxRuntime  time.Duration
	DefaultMaxBytes    int64

	// Query planner (C3) — source/template whitelist
	SourceCatalogPath string
	MaxRows           int // MAX_ROWS hard ceiling

	// Dashboard Factory (C5)
	DashStageRoot    string
	CreateTimeout    time.Duration

	// Contract Sentinel (C6) — warehouse table/view shape catalog
	ContractCatalogPath string
	SentinelInterval    time.Duration
	StrictContract      bool

	// Two-Table Invariant Gate (C7)
	StrictInvariant bool

	// Alerting
	PagerDutyRoutingKey string
}

// Load reads configuration from environment variables and an optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("SERVICE_GRACEFUL_TIMEOUT_SEC", 15)
	defaultTimeoutSec := getEnvInt("SERVICE_DEFAULT_TIMEOUT_SEC", 120)

	cfg := &Config{
		Addr:            getEnv("SERVICE_ADDR", ":8080"),
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(gracefulSec) * time.Second,
		ServiceName:     getEnv("SERVICE_NAME", "eventcore"),
		GitSHA:          getEnv("GIT_SHA", "unknown"),
		RedisURL:        getEnv("REDIS_URL", "redis://redis:6379"),
		APIKeyHeader:    getEnv("API_KEY_HEADER", "Authorization"),

		LandingTable: getEnv("LANDING_TABLE", "CLAUDE_BI.ACTIVITY.EVENTS"),

		EngineRole:      getEnv("ENGINE_ROLE", "EVENTCORE_SERVICE"),
		EngineWarehouse: getEnv("ENGINE_WAREHOUSE", "EVENTCORE_WH"),
		EngineDatabase:  getEnv("ENGINE_DATABASE", "CLAUDE_BI"),
		EngineSchema:    getEnv("ENGINE_SCHEMA", "ACTIVITY"),

		EngineBaseURL:   getEnv("ENGINE_BASE_URL", "https://warehouse.internal"),
		EngineAccount:   getEnv("ENGINE_ACCOUNT", ""),
		EngineToken:     getEnv("ENGINE_TOKEN", ""),
		EngineStageBase: getEnv("ENGINE_STAGE_BASE", "/api/v2/stages"),
		EnginePoolSize:  getEnvInt("ENGINE_POOL_SIZE", 8),

		RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:     getEnvInt("RATE_LIMIT_RPM", 600),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 50),

		DefaultTimeout: time.Duration(defaultTimeoutSec) * time.Second,
		MaxBodyBytes:   int64(getEnvInt("SERVICE_MAX_BODY_BYTES", 1*1024*1024)),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		SpoolDir:                 getEnv("EVENTLOG_SPOOL_DIR", "./data/spool"),
		EventMaxBytes:            getEnvInt("EVENTLOG_MAX_EVENT_BYTES", 100*1024),
		BatchSize:                getEnvInt("EVENTLOG_BATCH_SIZE", 500),
		FlushInterval:            time.Duration(getEnvInt("EVENTLOG_FLUSH_INTERVAL_SEC", 5)) * time.Second,
		AutoBatchThresholdPerMin: getEnvInt("EVENTLOG_AUTOBATCH_PER_MIN", 5),
		BufferCapacityEvents:     getEnvInt("EVENTLOG_BUFFER_EVENTS", 2000), // 500 * 4
		CircuitWindow:            time.Duration(getEnvInt("EVENTLOG_CIRCUIT_WINDOW_SEC", 60)) * time.Second,
		CircuitThreshold:         uint32(getEnvInt("EVENTLOG_CIRCUIT_THRESHOLD", 1000)),
		GlobalBreakerFailRate:    getEnvFloat("EVENTLOG_GLOBAL_BREAKER_FAIL_RATE", 0.5),
		CompressWindow:           time.Duration(getEnvInt("EVENTLOG_COMPRESS_WINDOW_SEC", 10)) * time.Second,
		CompressMinOccurrences:   getEnvInt("EVENTLOG_COMPRESS_MIN_OCCURRENCES", 10),

		DefaultMaxRows:    getEnvInt("EXECUTOR_VIEWER_MAX_ROWS", 1000),
		DefaultMaxRuntime: time.Duration(getEnvInt("EXECUTOR_VIEWER_MAX_RUNTIME_SEC", 1800)) * time.Second,
		DefaultMaxBytes:   int64(getEnvInt("EXECUTOR_VIEWER_MAX_BYTES_MB", 256)) * 1024 * 1024,

		SourceCatalogPath: getEnv("PLANNER_SOURCE_CATALOG_PATH", "./planner/catalog.yaml"),
		MaxRows:           getEnvInt("PLANNER_MAX_ROWS", 10000),

		DashStageRoot: getEnv("DASHBOARD_STAGE_ROOT", "@DASH_APPS"),
		CreateTimeout: time.Duration(getEnvInt("DASHBOARD_CREATE_TIMEOUT_SEC", 300)) * time.Second,

		ContractCatalogPath: getEnv("CONTRACT_CATALOG_PATH", "./contract/catalog.yaml"),
		SentinelInterval:    time.Duration(getEnvInt("SENTINEL_INTERVAL_HOURS", 24)) * time.Hour,
		StrictContract:      getEnvBool("SENTINEL_STRICT", false),

		StrictInvariant: getEnvBool("INVARIANT_GATE_STRICT", true),

		PagerDutyRoutingKey: getEnv("PAGERDUTY_ROUTING_KEY", ""),
	}
	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
