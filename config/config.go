package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/home-dashboard/httping/internal/database"
)

// Config holds the application configuration
type Config struct {
	Database  DatabaseConfig
	NATS      NATSConfig
	HTTP      HTTPConfig
	Tracing   TracingConfig
	Logging   LoggingConfig
	Engine    EngineConfig
	Gate      GateConfig
	WebSocket WebSocketConfig
	Auth      AuthConfig
	Cleanup   CleanupConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	// Enabled=false keeps all state in memory.
	Enabled  bool
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnectionConfig converts the settings into a pool configuration.
func (c DatabaseConfig) ConnectionConfig() *database.ConnectionConfig {
	conn := database.DefaultConnectionConfig()
	conn.URL = c.URL
	conn.Host = c.Host
	conn.Port = c.Port
	conn.User = c.User
	conn.Password = c.Password
	conn.Database = c.Database
	conn.SSLMode = c.SSLMode
	return conn
}

// NATSConfig holds NATS connection settings
type NATSConfig struct {
	Enabled         bool
	URL             string
	StreamRetention time.Duration
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TLSCertFile  string
	TLSKeyFile   string
	CORSOrigins  []string
}

// TracingConfig holds tracing settings
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	SampleRatio float64
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level       string
	Development bool
}

// EngineConfig holds rollup engine settings
type EngineConfig struct {
	TargetsFile       string
	PublishInterval   time.Duration
	SnapshotValidity  time.Duration
	RecomputeSchedule string // cron spec with seconds; empty disables
	RecomputeOnStart  bool
}

// GateConfig holds connectivity gate settings
type GateConfig struct {
	Enabled   bool
	Address   string // host:port dialed by the local prober
	Interval  time.Duration
	Window    time.Duration
	MinCount  int
	Threshold time.Duration
}

// WebSocketConfig holds push settings
type WebSocketConfig struct {
	Token string
}

// AuthConfig guards operator endpoints. Both fields must be set to enable it.
type AuthConfig struct {
	Secret       string
	PasswordHash string // bcrypt
	TokenTTL     time.Duration
}

// CleanupConfig holds raw sample pruning settings
type CleanupConfig struct {
	// SampleRetention of zero disables pruning.
	SampleRetention time.Duration
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			Enabled:  getEnvBool("DB_ENABLED", true),
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "httping"),
			Password: getEnv("DB_PASSWORD", "httping"),
			Database: getEnv("DB_NAME", "httping"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		NATS: NATSConfig{
			Enabled:         getEnvBool("NATS_ENABLED", false),
			URL:             getEnv("NATS_URL", "nats://localhost:4222"),
			StreamRetention: getEnvDuration("NATS_STREAM_RETENTION", time.Hour),
		},
		HTTP: HTTPConfig{
			Port:         getEnvInt("HTTP_PORT", 8080),
			ReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			TLSCertFile:  getEnv("TLS_CERT_FILE", ""),
			TLSKeyFile:   getEnv("TLS_KEY_FILE", ""),
			CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"*"}),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			ServiceName: getEnv("SERVICE_NAME", "httpingd"),
			Endpoint:    getEnv("OTLP_ENDPOINT", "localhost:4318"),
			SampleRatio: getEnvFloat("TRACING_SAMPLE_RATIO", 0.1),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvBool("LOG_DEVELOPMENT", false),
		},
		Engine: EngineConfig{
			TargetsFile:       getEnv("TARGETS_FILE", "targets.yaml"),
			PublishInterval:   getEnvDuration("PUBLISH_INTERVAL", 5*time.Second),
			SnapshotValidity:  getEnvDuration("SNAPSHOT_VALIDITY", 0),
			RecomputeSchedule: getEnv("RECOMPUTE_SCHEDULE", "0 30 3 * * *"),
			RecomputeOnStart:  getEnvBool("RECOMPUTE_ON_START", false),
		},
		Gate: GateConfig{
			Enabled:   getEnvBool("GATE_ENABLED", true),
			Address:   getEnv("GATE_ADDRESS", "192.168.1.1:80"),
			Interval:  getEnvDuration("GATE_INTERVAL", 5*time.Second),
			Window:    getEnvDuration("GATE_WINDOW", 30*time.Second),
			MinCount:  getEnvInt("GATE_MIN_SAMPLES", 4),
			Threshold: getEnvDuration("GATE_THRESHOLD", 35*time.Millisecond),
		},
		WebSocket: WebSocketConfig{
			Token: getEnv("WS_TOKEN", ""),
		},
		Auth: AuthConfig{
			Secret:       getEnv("AUTH_SECRET", ""),
			PasswordHash: getEnv("AUTH_PASSWORD_HASH", ""),
			TokenTTL:     getEnvDuration("AUTH_TOKEN_TTL", time.Hour),
		},
		Cleanup: CleanupConfig{
			SampleRetention: getEnvDuration("SAMPLE_RETENTION", 0),
		},
	}
}

// Helper functions for environment variable parsing
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
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
