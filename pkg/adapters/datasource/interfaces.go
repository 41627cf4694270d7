package datasource

import (
	"context"
	"errors"
)

// ErrAlreadyReleased is returned when a connection is released a second time.
var ErrAlreadyReleased = errors.New("connection already released")

// Pool is the connection pool capability consumed by the execution engine.
// Implementations are safe for concurrent use; the pool alone bounds how many
// connections may be reserved at once and blocks further reservations until
// one is released.
type Pool interface {
	// Reserve blocks until a connection is available or ctx is done.
	Reserve(ctx context.Context) (Connection, error)

	// Release returns a reserved connection to the pool.
	// Each successful Reserve must be paired with exactly one Release.
	Release(conn Connection) error

	// Purge discards every connection held by the pool. Connections that are
	// reserved while Purge runs stay usable and are discarded on release.
	Purge() error

	// Close tears the pool down. The pool is unusable afterwards.
	Close() error

	// Type returns the adapter type for logging/stats.
	Type() string
}

// Connection is an opaque handle reserved from a Pool.
type Connection interface {
	// CreateStatement creates a statement context bound to this connection.
	// A failure here means the connection could not talk to the database at all.
	CreateStatement(ctx context.Context) (Statement, error)
}

// Statement executes a single query or update on its connection.
// A Statement is never reused across executions.
type Statement interface {
	// ExecuteQuery runs sql and returns every row, in order.
	ExecuteQuery(ctx context.Context, sql string) (*ResultSet, error)

	// ExecuteUpdate runs a mutating statement and returns the affected-row count.
	ExecuteUpdate(ctx context.Context, sql string) (int64, error)

	// Close releases statement resources. It does not release the connection.
	Close() error
}

// ResultSet holds the rows produced by a query.
type ResultSet struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// SSL modes understood by the network client.
const (
	SSLNone  = "none"
	SSLBasic = "basic" // encrypted, server certificate not verified
	SSLPeer  = "peer"  // encrypted, server certificate verified
)

// ConnectionConfig describes how to reach one federated database.
type ConnectionConfig struct {
	Type        string
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	SSL         string
	MinPoolSize int32
	MaxPoolSize int32
}
