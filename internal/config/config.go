// Package config provides centralized configuration management for the
// application. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Source   SourceConfig
	Store    StoreConfig
	Registry RegistryConfig
	Query    QueryConfig
	Detect   DetectConfig
	Fuzzy    FuzzyConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// SourceConfig holds spreadsheet source settings.
type SourceConfig struct {
	// WorkbookPath is the path of the .xlsx workbook to serve (required)
	// Supports both SOURCE_WORKBOOK and WORKBOOK_PATH env vars.
	WorkbookPath string `env:"SOURCE_WORKBOOK" envAlt:"WORKBOOK_PATH" required:"true"`

	// RefreshInterval is how often the source is re-fetched in the
	// background; 0 disables periodic refresh (default: 0s)
	RefreshInterval time.Duration `env:"SOURCE_REFRESH_INTERVAL" default:"0s"`
}

// StoreConfig holds embedded store settings.
type StoreConfig struct {
	// Path is the SQLite database file; empty keeps the store in memory
	Path string `env:"STORE_PATH"`
}

// RegistryConfig holds change-registry persistence settings.
type RegistryConfig struct {
	// Path is the JSON file recording committed sheet hashes (default: gridquery-registry.json)
	Path string `env:"REGISTRY_PATH" default:"gridquery-registry.json"`
}

// QueryConfig holds query execution settings.
type QueryConfig struct {
	// MaxLimit caps row-returning queries regardless of the requested limit (default: 1000)
	MaxLimit int `env:"QUERY_MAX_LIMIT" default:"1000"`

	// Timeout is the execution time budget per query (default: 10s)
	Timeout time.Duration `env:"QUERY_TIMEOUT" default:"10s"`

	// TopK is how many candidate tables schema retrieval feeds the
	// validator; 0 disables narrowing (default: 5)
	TopK int `env:"QUERY_TOP_K" default:"5"`

	// MaxConcurrentRebuilds caps parallel per-sheet rebuilds (default: 4)
	MaxConcurrentRebuilds int `env:"QUERY_MAX_CONCURRENT_REBUILDS" default:"4"`
}

// DetectConfig holds table detection heuristics.
type DetectConfig struct {
	// MinRegionRows is the smallest region height treated as a table (default: 2)
	MinRegionRows int `env:"DETECT_MIN_REGION_ROWS" default:"2"`

	// MinRegionCols is the smallest region width treated as a table (default: 2)
	MinRegionCols int `env:"DETECT_MIN_REGION_COLS" default:"2"`

	// HeaderScanRows is how many leading rows may form a header, 1 or 2 (default: 2)
	HeaderScanRows int `env:"DETECT_HEADER_SCAN_ROWS" default:"2"`

	// TypeSampleSize is how many values per column type inference samples; 0 means all (default: 200)
	TypeSampleSize int `env:"DETECT_TYPE_SAMPLE_SIZE" default:"200"`
}

// FuzzyConfig holds name-matching expansion settings.
type FuzzyConfig struct {
	// Substitutions is a comma-separated list of bidirectional phonetic
	// pairs, each "a:b" (e.g. "sh:ch,ksh:kch"). Empty uses the built-in table.
	Substitutions []string `env:"FUZZY_SUBSTITUTIONS"`

	// MaxVariants caps how many spelling variants one literal expands to (default: 8)
	MaxVariants int `env:"FUZZY_MAX_VARIANTS" default:"8"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
