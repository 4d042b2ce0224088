package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Canvas    CanvasConfig
	Discovery DiscoveryConfig
	Worker    WorkerConfig
	Auth      AuthConfig
	JWT       JWTConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

// CanvasConfig holds the Canvas LMS API configuration
type CanvasConfig struct {
	// APIURL is the versioned API base, e.g. https://canvas.example.com/api/v1
	APIURL string
	// APIToken is a static bearer token; leave empty to use per-user OAuth
	APIToken string
	// OAuth application credentials
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// RequestTimeout bounds every outbound Canvas call
	RequestTimeout time.Duration
	// RequestsPerSecond limits outbound Canvas traffic; 0 disables the limiter
	RequestsPerSecond float64
}

// DiscoveryConfig holds account-tree discovery configuration
type DiscoveryConfig struct {
	MaxDepth    int
	Concurrency int
}

// WorkerConfig holds batch runner configuration
type WorkerConfig struct {
	// QueueSize is the capacity of the in-process batch queue
	QueueSize int
	// BatchConcurrency is how many batches may run at once
	BatchConcurrency int
	// ShellConcurrency is how many create calls may be in flight per batch
	ShellConcurrency int
	// MaxAttempts bounds create attempts per shell (1 = no retries)
	MaxAttempts int
	// RetryBackoff is the base backoff between attempts, doubled each retry
	RetryBackoff time.Duration
}

// AuthConfig holds the built-in login credentials
type AuthConfig struct {
	AdminUsername     string
	AdminPasswordHash string
	SessionTTL        time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	SigningKey     string
	ExpirationTime time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics-related configuration
type MetricsConfig struct {
	Prefix string
}

// Load loads the application configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Name:            getEnv("DB_NAME", "course_shells"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnv("DB_LOG_LEVEL", "info"),
		},
		Canvas: CanvasConfig{
			APIURL:            getEnv("CANVAS_API_URL", "https://canvas.instructure.com/api/v1"),
			APIToken:          getEnv("CANVAS_API_TOKEN", ""),
			ClientID:          getEnv("CANVAS_CLIENT_ID", ""),
			ClientSecret:      getEnv("CANVAS_CLIENT_SECRET", ""),
			RedirectURI:       getEnv("CANVAS_REDIRECT_URI", "http://localhost:8080/api/canvas/oauth/callback"),
			RequestTimeout:    getEnvAsDuration("CANVAS_REQUEST_TIMEOUT", 10*time.Second),
			RequestsPerSecond: getEnvAsFloat("CANVAS_REQUESTS_PER_SECOND", 10),
		},
		Discovery: DiscoveryConfig{
			MaxDepth:    getEnvAsInt("DISCOVERY_MAX_DEPTH", 5),
			Concurrency: getEnvAsInt("DISCOVERY_CONCURRENCY", 4),
		},
		Worker: WorkerConfig{
			QueueSize:        getEnvAsInt("WORKER_QUEUE_SIZE", 64),
			BatchConcurrency: getEnvAsInt("WORKER_BATCH_CONCURRENCY", 2),
			ShellConcurrency: getEnvAsInt("WORKER_SHELL_CONCURRENCY", 1),
			MaxAttempts:      getEnvAsInt("WORKER_MAX_ATTEMPTS", 3),
			RetryBackoff:     getEnvAsDuration("WORKER_RETRY_BACKOFF", 500*time.Millisecond),
		},
		Auth: AuthConfig{
			AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			SessionTTL:        getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		},
		JWT: JWTConfig{
			SigningKey:     getEnv("JWT_SIGNING_KEY", "courseshellsecretkey"),
			ExpirationTime: getEnvAsDuration("JWT_EXPIRATION_HOURS", 24*time.Hour),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", "course_shells"),
		},
	}, nil
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
