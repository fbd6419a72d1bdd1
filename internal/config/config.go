package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	DatabaseURL string
	RedisURL    string
	Env         string
	Port        string

	SessionSecret string
	EncryptionKey string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	// AI annotation service (summary + priority scoring)
	AnnotatorURL      string
	AnnotatorSecret   string
	AnnotatorStubMode bool

	// Firebase Cloud Messaging for native push delivery
	FirebaseCredentialsFile string
	PushRatePerSecond       int

	// Platform connector manifests
	ConnectorDir string

	// Scheduler
	DigestSchedule string
	DigestTimezone string

	// Offline cache gateway. Empty GatewayPort disables the gateway;
	// CacheBackend selects "memory" or "redis" storage.
	GatewayPort  string
	CacheBackend string

	LogLevel  string
	LogFormat string

	SeedDevData bool
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnvWithDefault("REDIS_URL", "redis://localhost:6379/0"),
		Env:         getEnvWithDefault("ENV", "development"),
		Port:        getEnvWithDefault("PORT", "8080"),

		SessionSecret: os.Getenv("SESSION_SECRET"),
		EncryptionKey: os.Getenv("TOKEN_ENCRYPTION_KEY"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleCallbackURL:  os.Getenv("GOOGLE_CALLBACK_URL"),

		AnnotatorURL:      os.Getenv("ANNOTATOR_URL"),
		AnnotatorSecret:   os.Getenv("ANNOTATOR_SECRET"),
		AnnotatorStubMode: getBoolWithDefault("ANNOTATOR_STUB_MODE", true),

		FirebaseCredentialsFile: os.Getenv("FIREBASE_CREDENTIALS_FILE"),
		PushRatePerSecond:       getIntWithDefault("PUSH_RATE_PER_SECOND", 50),

		ConnectorDir: getEnvWithDefault("CONNECTOR_DIR", "./connectors"),

		DigestSchedule: getEnvWithDefault("DIGEST_SCHEDULE", "0 6 * * *"),
		DigestTimezone: getEnvWithDefault("DIGEST_TIMEZONE", "UTC"),

		GatewayPort:  os.Getenv("GATEWAY_PORT"),
		CacheBackend: getEnvWithDefault("CACHE_BACKEND", "memory"),

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		SeedDevData: getBoolWithDefault("SEED_DEV_DATA", false),
	}

	// Warn if using default session secret (insecure for production)
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = "dev-secret-change-in-production-use-openssl-rand-hex-32"
		log.Println("WARNING: Using default SESSION_SECRET. Generate a secure secret with: openssl rand -hex 32")
	}

	return cfg
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("WARNING: invalid boolean for %s: %q (using default %v)", key, value, defaultValue)
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("WARNING: invalid integer for %s: %q (using default %d)", key, value, defaultValue)
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}
