package mysql

import (
	"strings"
	"testing"

	driver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
)

func TestBuildDSN_RoundTrips(t *testing.T) {
	dsn, err := buildDSN(datasource.ConnectionConfig{
		Host:     "gaian1.example.com",
		Port:     3307,
		Database: "gaiandb",
		User:     "gaiandb",
		Password: "p@ss:w/rd",
		SSL:      datasource.SSLPeer,
	})
	require.NoError(t, err)

	parsed, err := driver.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "gaiandb", parsed.User)
	assert.Equal(t, "p@ss:w/rd", parsed.Passwd)
	assert.Equal(t, "gaian1.example.com:3307", parsed.Addr)
	assert.Equal(t, "gaiandb", parsed.DBName)
	assert.Equal(t, "true", parsed.TLSConfig)
	assert.True(t, parsed.ParseTime)
	assert.False(t, parsed.MultiStatements)
}

func TestBuildDSN_DefaultPort(t *testing.T) {
	dsn, err := buildDSN(datasource.ConnectionConfig{Host: "db", Database: "gaiandb"})
	require.NoError(t, err)
	assert.True(t, strings.Contains(dsn, "@tcp(db:3306)/gaiandb"), dsn)
}

func TestBuildDSN_SSLModes(t *testing.T) {
	tests := []struct {
		ssl  string
		want string
	}{
		{"", "false"},
		{datasource.SSLNone, "false"},
		{datasource.SSLBasic, "skip-verify"},
		{datasource.SSLPeer, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.ssl, func(t *testing.T) {
			got, err := tlsFor(tt.ssl)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := tlsFor("mutual")
	assert.Error(t, err)
}

func TestBuildDSN_RequiresHostAndDatabase(t *testing.T) {
	_, err := buildDSN(datasource.ConnectionConfig{Database: "gaiandb"})
	assert.Error(t, err)

	_, err = buildDSN(datasource.ConnectionConfig{Host: "db"})
	assert.Error(t, err)
}

func TestRegistered(t *testing.T) {
	info, ok := datasource.GetAdapterInfo("mysql")
	require.True(t, ok)
	assert.Equal(t, 3306, info.DefaultPort)
	assert.NotNil(t, datasource.GetPoolFactory("mysql"))
}
