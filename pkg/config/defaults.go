// Package config provides centralized default values for tinysteps
package config

import (
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var envLoaded sync.Once

// loadEnvFile applies .env overrides without clobbering real environment variables.
func loadEnvFile() {
	envLoaded.Do(func() {
		if _, err := os.Stat(".env"); err != nil {
			return
		}
		log.Println("Loading configuration overrides from .env file...")
		if err := godotenv.Load(); err != nil {
			log.Printf("Failed to load .env file: %v", err)
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseFloat(valStr, 64); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%g (default: %g)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

// getEnvSecret reads a value without echoing it to the log.
func getEnvSecret(key string) string {
	val := os.Getenv(key)
	if val != "" {
		log.Printf("Config override: %s=<redacted>", key)
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	ShutdownTimeout    time.Duration
	AllowedOrigins     string

	// Database
	DBDriver           string
	DBDSN              string
	DBAuthToken        string
	DBMaxOpenConns     int
	DBMaxIdleConns     int
	SlowQueryThreshold time.Duration

	// Logging
	LogLevel     string
	LogJSON      bool
	LogToFile    bool
	LogDirectory string

	// Engagement prompt
	PromptHomeDelay          time.Duration
	PromptContentDelay       time.Duration
	PromptScrollThreshold    float64
	PromptScrollGrace        time.Duration
	PromptExitIntentDwell    time.Duration
	PromptReturningDelay     time.Duration
	PromptPageVisitThreshold int
	PromptCooldown           time.Duration
	VisitorSessionTimeout    time.Duration
	PromptDebugReset         bool
	PromptDebugResetDelay    time.Duration
	HomePath                 string
	ContactPath              string
	PageIdleTimeout          time.Duration
	PageSweepInterval        time.Duration

	// Offline gateway
	OriginURL       string
	ManifestPath    string
	CacheVersion    string
	FormEndpointURL string
	SyncInterval    time.Duration
	UpstreamTimeout time.Duration

	// Email
	ResendAPIKey  string
	EmailFrom     string
	EmailFromName string
	StaffEmail    string

	// Admin
	AdminPasswordHash string
	JWTSecret         string
	AdminTokenTTL     time.Duration
)

func init() {
	Load()
}

// Load (re)reads every setting from the environment.
func Load() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	// Zero keeps SSE streams open.
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 0)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	AllowedOrigins = getEnvString("ALLOWED_ORIGINS", "http://localhost:4321,http://127.0.0.1:4321,http://localhost:3000")

	// Database
	DBDriver = getEnvString("DB_DRIVER", "sqlite3")
	DBDSN = getEnvString("DB_DSN", "file:tinysteps.db?_busy_timeout=5000&_journal_mode=WAL")
	DBAuthToken = getEnvSecret("DB_AUTH_TOKEN")
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 200*time.Millisecond)

	// Logging
	LogLevel = getEnvString("LOG_LEVEL", "info")
	LogJSON = getEnvBool("LOG_JSON", true)
	LogToFile = getEnvBool("LOG_TO_FILE", false)
	LogDirectory = getEnvString("LOG_DIRECTORY", "logs")

	// Engagement prompt
	PromptHomeDelay = getEnvDuration("PROMPT_HOME_DELAY", 15*time.Second)
	PromptContentDelay = getEnvDuration("PROMPT_CONTENT_DELAY", 30*time.Second)
	PromptScrollThreshold = getEnvFloat("PROMPT_SCROLL_THRESHOLD", 50)
	PromptScrollGrace = getEnvDuration("PROMPT_SCROLL_GRACE", 2*time.Second)
	PromptExitIntentDwell = getEnvDuration("PROMPT_EXIT_INTENT_DWELL", 5*time.Second)
	PromptReturningDelay = getEnvDuration("PROMPT_RETURNING_DELAY", 3*time.Second)
	PromptPageVisitThreshold = getEnvInt("PROMPT_PAGE_VISIT_THRESHOLD", 3)
	PromptCooldown = getEnvDuration("PROMPT_COOLDOWN", 7*24*time.Hour)
	VisitorSessionTimeout = getEnvDuration("SESSION_TIMEOUT", 30*time.Minute)
	PromptDebugReset = getEnvBool("PROMPT_DEBUG_RESET", false)
	PromptDebugResetDelay = getEnvDuration("PROMPT_DEBUG_RESET_DELAY", 5*time.Second)
	HomePath = getEnvString("HOME_PATH", "/")
	ContactPath = getEnvString("CONTACT_PATH", "/contact")
	PageIdleTimeout = getEnvDuration("PAGE_IDLE_TIMEOUT", 30*time.Minute)
	PageSweepInterval = getEnvDuration("PAGE_SWEEP_INTERVAL", 5*time.Minute)

	// Offline gateway
	OriginURL = getEnvString("ORIGIN_URL", "http://localhost:4321")
	ManifestPath = getEnvString("MANIFEST_PATH", "manifest.yaml")
	CacheVersion = getEnvString("CACHE_VERSION", "tinysteps-v1")
	FormEndpointURL = getEnvString("FORM_ENDPOINT_URL", "http://localhost:"+Port+"/api/v1/forms")
	SyncInterval = getEnvDuration("SYNC_INTERVAL", time.Minute)
	UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second)

	// Email
	ResendAPIKey = getEnvSecret("RESEND_API_KEY")
	EmailFrom = getEnvString("EMAIL_FROM", "hello@tinysteps.example")
	EmailFromName = getEnvString("EMAIL_FROM_NAME", "Tiny Steps Childcare")
	StaffEmail = getEnvString("STAFF_EMAIL", "")

	// Admin
	AdminPasswordHash = getEnvSecret("ADMIN_PASSWORD_HASH")
	JWTSecret = getEnvSecret("JWT_SECRET")
	AdminTokenTTL = getEnvDuration("ADMIN_TOKEN_TTL", 12*time.Hour)
}
