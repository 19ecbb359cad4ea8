package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Backend selection
	DataBackend  string
	SQLiteDBPath string

	// AMQP (optional; ingest runs inline when empty)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Gemini gateway
	GeminiAPIKey         string
	GeminiModel          string
	GeminiReasoningModel string
	GatewayTimeout       time.Duration
	BillsCacheTTL        time.Duration
	ChatSessionTTL       time.Duration

	// Sessions
	JWTSecret string
	TokenTTL  time.Duration

	// Receipt archive: bucket wins over dir
	ReceiptsBucket string
	ReceiptsDir    string

	// Google Sheets tax export (optional)
	GoogleSpreadsheetID      string
	GoogleTaxSheetName       string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Worker
	IngestMaxAttempts   int
	PendingScanInterval time.Duration

	LogLevel string
	LogJSON  bool
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/r2r.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "r2r"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ingest_jobs"),

		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiReasoningModel: getEnv("GEMINI_REASONING_MODEL", "gemini-2.5-pro"),
		GatewayTimeout:       getEnvDuration("GATEWAY_TIMEOUT", 60*time.Second),
		BillsCacheTTL:        getEnvDuration("BILLS_CACHE_TTL", 30*time.Minute),
		ChatSessionTTL:       getEnvDuration("CHAT_SESSION_TTL", 2*time.Hour),

		JWTSecret: getEnv("JWT_SECRET", ""),
		TokenTTL:  getEnvDuration("TOKEN_TTL", 7*24*time.Hour),

		ReceiptsBucket: getEnv("RECEIPTS_BUCKET", ""),
		ReceiptsDir:    getEnv("RECEIPTS_DIR", "./data/receipts"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleTaxSheetName:       getEnv("GOOGLE_TAX_SHEET_NAME", "Tax"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		IngestMaxAttempts:   getEnvInt("INGEST_MAX_ATTEMPTS", 3),
		PendingScanInterval: getEnvDuration("PENDING_SCAN_INTERVAL", 5*time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getEnvBool("LOG_JSON", false),
	}

	return cfg
}

// AMQPEnabled reports whether ingest should be queued instead of run inline.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// SheetsEnabled reports whether the tax export to Google Sheets is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite"}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
		if c.DataBackend == "memory" {
			errors = append(errors, "AMQP ingest requires a shared backend: use sqlite with AMQP_URL")
		}
	}

	if c.JWTSecret == "" {
		errors = append(errors, "JWT_SECRET is required")
	} else if len(c.JWTSecret) < 16 {
		errors = append(errors, "JWT_SECRET must be at least 16 characters")
	}
	if c.TokenTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid token TTL %v: must be at least 1 minute", c.TokenTTL))
	}

	if c.GatewayTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid gateway timeout %v: must be at least 1 second", c.GatewayTimeout))
	} else if c.GatewayTimeout > 10*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid gateway timeout %v: must be at most 10 minutes", c.GatewayTimeout))
	}
	if c.BillsCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid bills cache TTL %v: must not be negative", c.BillsCacheTTL))
	}

	if c.ChatSessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid chat session TTL %v: must be at least 1 minute", c.ChatSessionTTL))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	if c.IngestMaxAttempts < 1 {
		errors = append(errors, fmt.Sprintf("invalid ingest max attempts %d: must be at least 1", c.IngestMaxAttempts))
	}
	if c.PendingScanInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid pending scan interval %v: must be at least 1 second", c.PendingScanInterval))
	}

	if c.ReceiptsBucket == "" && c.ReceiptsDir == "" {
		errors = append(errors, "either RECEIPTS_BUCKET or RECEIPTS_DIR must be provided")
	}

	if c.SheetsEnabled() {
		if c.GoogleTaxSheetName == "" {
			errors = append(errors, "Google tax sheet name is required when GOOGLE_SPREADSHEET_ID is set")
		}
		if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets export")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
