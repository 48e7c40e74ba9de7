// Package config provides centralized configuration for the transfer and verify commands.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/movies-etl/internal/core"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	Source   SourceConfig
	Transfer TransferConfig
	Check    CheckConfig
	Status   StatusConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds destination connection settings.
type DatabaseConfig struct {
	// Name is the destination database (required)
	Name string `env:"DB_NAME" envAlt:"POSTGRES_DB" required:"true"`

	// User is the destination role (required)
	User string `env:"DB_USER" envAlt:"POSTGRES_USER" required:"true"`

	Password string `env:"DB_PASSWORD" envAlt:"POSTGRES_PASSWORD"`

	// Host is the destination host (default: 127.0.0.1)
	Host string `env:"DB_HOST" default:"127.0.0.1"`

	// Port is the destination port (default: 5432)
	Port int `env:"DB_PORT" default:"5432"`

	// Schema is the namespace holding the movies tables (default: content)
	Schema string `env:"DB_SCHEMA" default:"content"`

	// SSLMode is passed through as libpq sslmode (default: disable)
	SSLMode string `env:"DB_SSLMODE" default:"disable"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// SourceConfig holds the SQLite source settings.
type SourceConfig struct {
	// Path is the SQLite file to read (required)
	Path string `env:"FILE_PATH" envAlt:"SQLITE_PATH" required:"true"`
}

// TransferConfig holds batch processing settings.
type TransferConfig struct {
	// BatchSize is the number of rows per read and write batch (default: 100)
	BatchSize int `env:"BATCH_SIZE" default:"100"`

	// Timeout bounds the whole run; 0 disables it (default: 0s)
	Timeout time.Duration `env:"TRANSFER_TIMEOUT" default:"0s"`

	// ConflictKeys overrides per-table ON CONFLICT columns, as ';'-separated
	// table=column,column entries, e.g. "person_film_work=film_work_id,person_id"
	ConflictKeys string `env:"CONFLICT_KEYS"`
}

// CheckConfig holds consistency check settings.
type CheckConfig struct {
	// SampleBatches limits the row comparison to the first N source batches; 0 checks all (default: 0)
	SampleBatches int `env:"CHECK_SAMPLE_BATCHES" default:"0"`
}

// StatusConfig holds the optional status server settings.
type StatusConfig struct {
	// Addr enables the status server when set, e.g. ":9090"
	Addr string `env:"STATUS_ADDR"`

	// ShutdownTimeout is the maximum duration to wait for the server to stop (default: 5s)
	ShutdownTimeout time.Duration `env:"STATUS_SHUTDOWN_TIMEOUT" default:"5s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// ConnString returns a postgres:// URL for the destination.
func (c *DatabaseConfig) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	if c.Password == "" {
		u.User = url.User(c.User)
	}
	return u.String()
}

// Enabled reports whether the status server should run.
func (c *StatusConfig) Enabled() bool {
	return c.Addr != ""
}

// ConflictTargets parses ConflictKeys into conflict columns by table.
// Tables must be registered and columns must belong to the table.
func (c *TransferConfig) ConflictTargets() (map[string][]string, error) {
	targets := map[string][]string{}

	for _, entry := range strings.Split(c.ConflictKeys, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		table, list, ok := strings.Cut(entry, "=")
		table = strings.TrimSpace(table)
		if !ok || table == "" {
			return nil, fmt.Errorf("CONFLICT_KEYS entry %q must be table=column[,column]", entry)
		}
		def, found := core.Get(table)
		if !found {
			return nil, fmt.Errorf("CONFLICT_KEYS names unregistered table %q", table)
		}
		if _, dup := targets[table]; dup {
			return nil, fmt.Errorf("CONFLICT_KEYS lists %s twice", table)
		}

		var columns []string
		for _, col := range strings.Split(list, ",") {
			col = strings.TrimSpace(col)
			if col == "" {
				continue
			}
			if !def.HasColumn(col) {
				return nil, fmt.Errorf("CONFLICT_KEYS: %s has no column %q", table, col)
			}
			columns = append(columns, col)
		}
		if len(columns) == 0 {
			return nil, fmt.Errorf("CONFLICT_KEYS entry for %s has no columns", table)
		}
		targets[table] = columns
	}

	return targets, nil
}
