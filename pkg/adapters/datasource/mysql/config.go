package mysql

import (
	"fmt"
	"net"
	"strconv"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/config"
)

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// tlsFor maps a federation SSL mode to the driver's tls parameter.
func tlsFor(ssl string) (string, error) {
	switch ssl {
	case "", datasource.SSLNone:
		return "false", nil
	case datasource.SSLBasic:
		return "skip-verify", nil
	case datasource.SSLPeer:
		return "true", nil
	default:
		return "", fmt.Errorf("unsupported ssl mode: %s", ssl)
	}
}

// buildDSN renders the driver DSN: user:password@tcp(host:port)/database?params
func buildDSN(cfg datasource.ConnectionConfig) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("host is required")
	}
	if cfg.Database == "" {
		return "", fmt.Errorf("database name is required")
	}

	tls, err := tlsFor(cfg.SSL)
	if err != nil {
		return "", err
	}

	port := cfg.Port
	if port == 0 {
		port = DefaultPort()
	}

	mc := driver.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(config.ResolveHostForDocker(cfg.Host), strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Timeout = 10 * time.Second
	mc.ReadTimeout = 30 * time.Second
	mc.WriteTimeout = 30 * time.Second
	mc.MultiStatements = false
	mc.TLSConfig = tls

	return mc.FormatDSN(), nil
}
