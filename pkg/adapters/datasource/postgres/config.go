package postgres

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/config"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-full"
	MinConns int32
	MaxConns int32
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// FromConnectionConfig maps the generic connection config onto pgx options.
func FromConnectionConfig(cfg datasource.ConnectionConfig) (*Config, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database is required")
	}

	sslMode, err := sslModeFor(cfg.SSL)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = DefaultPort()
	}

	return &Config{
		Host:     cfg.Host,
		Port:     port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		SSLMode:  sslMode,
		MinConns: cfg.MinPoolSize,
		MaxConns: cfg.MaxPoolSize,
	}, nil
}

func sslModeFor(ssl string) (string, error) {
	switch ssl {
	case "", datasource.SSLNone:
		return "disable", nil
	case datasource.SSLBasic:
		return "require", nil
	case datasource.SSLPeer:
		return "verify-full", nil
	default:
		return "", fmt.Errorf("unsupported ssl mode: %s", ssl)
	}
}

// buildConnectionString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are URL-escaped so passwords containing @, /, # or ?
// do not break URL parsing. localhost resolves to host.docker.internal in Docker.
func buildConnectionString(cfg *Config) string {
	host := config.ResolveHostForDocker(cfg.Host)

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		host,
		cfg.Port,
		url.QueryEscape(cfg.Database),
		cfg.SSLMode,
	)
}
