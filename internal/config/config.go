package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
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
	// TrustedProxies are CIDRs, beyond loopback and private ranges, whose
	// forwarding headers name the real client.
	TrustedProxies []string

	// Backend selection
	DataBackend string

	// Storage
	SQLiteDBPath  string
	DatabaseURL   string
	MemoryDataDir string
	StoreTimeout  time.Duration

	// User lookup cache
	UserCacheSize int
	UserCacheTTL  time.Duration

	// AMQP (optional; empty URL disables event publishing)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets journal (optional)
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleOAuthClientJSON    string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenFile     string
	OAuthRedirectPort        string

	// Logging
	LogLevel  string
	LogFormat string
}

var (
	validBackends   = []string{"memory", "postgres", "sqlite"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),

		DataBackend: getEnv("DATA_BACKEND", "sqlite"),

		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/ledger.db"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		MemoryDataDir: getEnv("MEMORY_DATA_DIR", "data"),
		StoreTimeout:  getEnvDuration("STORE_TIMEOUT", 5*time.Second),

		UserCacheSize: getEnvInt("USER_CACHE_SIZE", 256),
		UserCacheTTL:  getEnvDuration("USER_CACHE_TTL", 10*time.Minute),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "ledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Journal"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleOAuthClientJSON:    getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthClientFile:    getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:     getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		OAuthRedirectPort:        getEnv("OAUTH_REDIRECT_PORT", "8085"),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	return cfg
}

// Validate reports every problem in c at once, one per line.
func (c *Config) Validate() error {
	var p problems
	c.checkServer(&p)
	c.checkStorage(&p)
	c.checkEvents(&p)
	c.checkJournal(&p)
	c.checkLogging(&p)
	if len(p) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(p, "\n- "))
	}
	return nil
}

type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (c *Config) checkServer(p *problems) {
	if port, err := strconv.Atoi(c.Port); err != nil {
		p.addf("invalid port '%s': must be a number", c.Port)
	} else if port < 1 || port > 65535 {
		p.addf("invalid port %d: must be between 1 and 65535", port)
	}
	if c.RateLimitPerMinute < 0 {
		p.addf("invalid rate limit %d: must not be negative", c.RateLimitPerMinute)
	}
	for _, cidr := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			p.addf("invalid trusted proxy '%s': %v", cidr, err)
		}
	}
}

func (c *Config) checkStorage(p *problems) {
	switch c.DataBackend {
	case "memory":
	case "sqlite":
		if c.SQLiteDBPath == "" {
			p.addf("SQLite database path cannot be empty when using sqlite backend")
			break
		}
		// The store opens the file itself; only its directory must exist.
		if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				p.addf("cannot create SQLite database directory '%s': %v", dir, err)
			}
		}
	case "postgres":
		if c.DatabaseURL == "" {
			p.addf("DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil {
			p.addf("invalid DATABASE_URL: %v", err)
		} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			p.addf("invalid DATABASE_URL scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme)
		}
	default:
		p.addf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends)
	}

	if c.StoreTimeout <= 0 {
		p.addf("invalid store timeout %v: must be positive", c.StoreTimeout)
	}
	if c.UserCacheSize < 1 {
		p.addf("invalid user cache size %d: must be at least 1", c.UserCacheSize)
	}
}

// checkEvents validates the broker settings; an empty AMQP_URL turns events off.
func (c *Config) checkEvents(p *problems) {
	if c.AMQPURL == "" {
		return
	}
	if u, err := url.Parse(c.AMQPURL); err != nil {
		p.addf("invalid AMQP URL '%s': %v", c.AMQPURL, err)
	} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
		p.addf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme)
	}
	if c.AMQPExchange == "" {
		p.addf("AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		p.addf("AMQP queue name cannot be empty when AMQP URL is provided")
	}
}

func (c *Config) checkJournal(p *problems) {
	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); errors.Is(err, fs.ErrNotExist) {
			p.addf("Google service account file does not exist: %s", c.GoogleServiceAccountFile)
		}
	}
	if c.OAuthRedirectPort != "" {
		if port, err := strconv.Atoi(c.OAuthRedirectPort); err != nil || port < 1 || port > 65535 {
			p.addf("invalid OAuth redirect port '%s'", c.OAuthRedirectPort)
		}
	}
}

func (c *Config) checkLogging(p *problems) {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		p.addf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels)
	}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		p.addf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats)
	}
}

// JournalEnabled reports whether a spreadsheet is configured for the journal.
func (c *Config) JournalEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
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
