// Package config provides application configuration management.
package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	ServerPort     string
	LogRoutePrefix string
	APIToken       string
	Debug          bool

	// Job log persistence
	StatePath       string
	DataStoreDriver string
	DataStoreDSN    string
	JobLogTTL       time.Duration
	PruneInterval   time.Duration

	// Redis / events configuration
	RedisAddr        string
	RedisUsername    string
	RedisPassword    string
	RedisDB          int
	RedisTLSEnabled  bool
	RedisTLSInsecure bool
	EventsChannel    string
	RedisJobStream   string
	RedisJobGroup    string
	QueueEnabled     bool

	// Demo job
	DemoSteps        int
	DemoStepInterval time.Duration
}

// Load loads configuration from environment variables with defaults.
// Values from .env files fill in variables that are not already set.
func Load() *Config {
	loadEnvFiles()

	statePath := getEnv("STATE_PATH", "/app/state")
	dataStoreDriver := strings.ToLower(getEnv("DATASTORE_DRIVER", "memory"))
	dataStoreDSN := getEnv("DATASTORE_DSN", "")
	if dataStoreDSN == "" && dataStoreDriver == "sqlite" {
		dataStoreDSN = filepath.Join(statePath, "logstream.db")
	}
	return &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		LogRoutePrefix:   getEnv("LOG_ROUTE_PREFIX", "/log"),
		APIToken:         os.Getenv("LOGSTREAM_API_TOKEN"),
		Debug:            getEnvBool("LOGSTREAM_DEBUG", false),
		StatePath:        statePath,
		DataStoreDriver:  dataStoreDriver,
		DataStoreDSN:     dataStoreDSN,
		JobLogTTL:        getEnvDuration("JOB_LOG_TTL", 7*24*time.Hour),
		PruneInterval:    getEnvDuration("JOB_LOG_PRUNE_INTERVAL", time.Hour),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisUsername:    getEnv("REDIS_USERNAME", ""),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		RedisTLSEnabled:  getEnvBool("REDIS_TLS_ENABLED", false),
		RedisTLSInsecure: getEnvBool("REDIS_TLS_INSECURE_SKIP_VERIFY", false),
		EventsChannel:    getEnv("EVENTS_CHANNEL", "logstream-events"),
		RedisJobStream:   getEnv("REDIS_JOB_STREAM", "logstream:jobs"),
		RedisJobGroup:    getEnv("REDIS_JOB_GROUP", "logstream-workers"),
		QueueEnabled:     getEnvBool("QUEUE_ENABLED", false),
		DemoSteps:        getEnvInt("DEMO_STEPS", 5),
		DemoStepInterval: getEnvDuration("DEMO_STEP_INTERVAL", time.Second),
	}
}

func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid duration for %s: %s, using default %s", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		log.Printf("Invalid int for %s: %s, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "y":
			return true
		case "0", "false", "no", "n":
			return false
		default:
			log.Printf("Invalid bool for %s: %s, using default %t", key, value, defaultValue)
		}
	}
	return defaultValue
}
