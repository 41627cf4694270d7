package mssql

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/config"
)

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// encryptionFor maps a federation SSL mode to the driver's encrypt and
// TrustServerCertificate settings.
func encryptionFor(ssl string) (encrypt string, trustServerCert bool, err error) {
	switch ssl {
	case "", datasource.SSLNone:
		return "disable", false, nil
	case datasource.SSLBasic:
		return "true", true, nil
	case datasource.SSLPeer:
		return "true", false, nil
	default:
		return "", false, fmt.Errorf("unsupported ssl mode: %s", ssl)
	}
}

// buildConnectionString builds a sqlserver:// URL. User and password are
// URL-escaped so special characters survive parsing.
func buildConnectionString(cfg datasource.ConnectionConfig) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("host is required")
	}
	if cfg.Database == "" {
		return "", fmt.Errorf("database is required")
	}

	encrypt, trust, err := encryptionFor(cfg.SSL)
	if err != nil {
		return "", err
	}

	port := cfg.Port
	if port == 0 {
		port = DefaultPort()
	}

	query := url.Values{}
	query.Add("database", cfg.Database)
	query.Add("encrypt", encrypt)
	if trust {
		query.Add("TrustServerCertificate", "true")
	}
	query.Add("connection timeout", strconv.Itoa(DefaultConnectionTimeout()))

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", config.ResolveHostForDocker(cfg.Host), port),
		RawQuery: query.Encode(),
	}
	return u.String(), nil
}
