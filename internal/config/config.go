package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port        string
	Environment string
	CORSOrigins []string
	RateLimit   int // requests per minute per client
	// TrustedProxies are CIDRs whose X-Forwarded-For header is believed.
	TrustedProxies []string

	// Logging
	LogLevel  string
	LogFormat string

	// Database
	DBDriver     string
	SQLiteDBPath string
	MySQLDSN     string
	DBHost       string
	DBPort       string
	DBUser       string
	DBPass       string
	DBName       string

	// Auth
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTTTL      time.Duration
	BcryptCost  int

	// Uploaded statements
	FileStore      string
	UploadDir      string
	GCSBucket      string
	MaxUploadBytes int64

	// AMQP
	AMQPURL         string
	AMQPExchange    string
	AMQPImportQueue string
	AMQPSyncQueue   string

	// Google Sheets mirror
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Worker
	SyncBatchSize int
	SyncInterval  time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:4200"}),
		RateLimit:   getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		TrustedProxies: getEnvList("TRUSTED_PROXIES", nil),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DBDriver:     getEnv("DB_DRIVER", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/finanzen.db"),
		MySQLDSN:     getEnv("MYSQL_DSN", ""),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "3306"),
		DBUser:       getEnv("DB_USER", "finanzen"),
		DBPass:       getEnv("DB_PASS", ""),
		DBName:       getEnv("DB_NAME", "finanzen"),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", "finanzen"),
		JWTAudience: getEnv("JWT_AUDIENCE", "finanzen-app"),
		JWTTTL:      getEnvDuration("JWT_TTL", 24*time.Hour),
		BcryptCost:  getEnvInt("BCRYPT_COST", 12),

		FileStore:      getEnv("FILE_STORE", "local"),
		UploadDir:      getEnv("UPLOAD_DIR", "./data/uploads"),
		GCSBucket:      getEnv("GCS_BUCKET", ""),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),

		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "finanzen"),
		AMQPImportQueue: getEnv("AMQP_IMPORT_QUEUE", "statement_import"),
		AMQPSyncQueue:   getEnv("AMQP_SYNC_QUEUE", "transaction_sync"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Buchungen"),

		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 10),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 30*time.Second),
	}

	return cfg
}

// IsProduction reports whether ENVIRONMENT is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// HasAMQP reports whether a broker is configured.
func (c *Config) HasAMQP() bool { return c.AMQPURL != "" }

// HasSheets reports whether the spreadsheet mirror is configured.
func (c *Config) HasSheets() bool { return c.GoogleSpreadsheetID != "" }

// DSN returns the data source name for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == "mysql" {
		if c.MySQLDSN != "" {
			return c.MySQLDSN
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true&charset=utf8mb4",
			c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
	}
	return c.SQLiteDBPath
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Validate database driver
	switch c.DBDriver {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite driver")
		} else if c.SQLiteDBPath != ":memory:" {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "mysql":
		if c.MySQLDSN == "" && (c.DBHost == "" || c.DBName == "" || c.DBUser == "") {
			errors = append(errors, "MYSQL_DSN or DB_HOST, DB_USER and DB_NAME are required when using mysql driver")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid database driver '%s': must be one of [sqlite mysql]", c.DBDriver))
	}

	// Validate auth
	if len(c.JWTSecret) < 32 {
		errors = append(errors, "JWT secret must be at least 32 characters")
	}
	if c.JWTTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid JWT TTL %v: must be at least 1 minute", c.JWTTTL))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errors = append(errors, fmt.Sprintf("invalid bcrypt cost %d: must be between 4 and 31", c.BcryptCost))
	}

	if c.RateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimit))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	// Validate file store
	switch c.FileStore {
	case "local":
		if c.UploadDir == "" {
			errors = append(errors, "upload directory cannot be empty when using local file store")
		}
	case "gcs":
		if c.GCSBucket == "" {
			errors = append(errors, "GCS bucket is required when using gcs file store")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid file store '%s': must be one of [local gcs]", c.FileStore))
	}
	if c.MaxUploadBytes < 1024 {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d: must be at least 1024 bytes", c.MaxUploadBytes))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPImportQueue == "" || c.AMQPSyncQueue == "" {
			errors = append(errors, "AMQP queue names cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required when a spreadsheet is configured")
	}

	// Validate worker configuration
	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	// Return combined errors
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

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
