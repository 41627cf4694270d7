// Package sqldb adapts database/sql drivers (go-mssqldb, go-sql-driver/mysql)
// to the datasource.Pool capability.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/logging"
)

// Opener opens a new *sql.DB. Purge calls it to replace the current handle.
type Opener func() (*sql.DB, error)

// Options tunes the underlying *sql.DB.
type Options struct {
	Type            string
	MinIdle         int
	MaxOpen         int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Pool wraps a *sql.DB. Purge swaps in a freshly opened handle and closes the
// old one; database/sql keeps checked-out connections usable until they are
// returned and closes them then.
type Pool struct {
	mu     sync.RWMutex
	db     *sql.DB
	open   Opener
	opts   Options
	logger *zap.Logger
}

// NewPool opens the first handle with open and applies opts to it.
func NewPool(open Opener, opts Options, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ConnMaxLifetime == 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	if opts.ConnMaxIdleTime == 0 {
		opts.ConnMaxIdleTime = time.Minute
	}

	p := &Pool{open: open, opts: opts, logger: logger}
	db, err := p.openDB()
	if err != nil {
		return nil, err
	}
	p.db = db
	return p, nil
}

func (p *Pool) openDB() (*sql.DB, error) {
	db, err := p.open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", p.opts.Type, err)
	}
	if p.opts.MaxOpen > 0 {
		db.SetMaxOpenConns(p.opts.MaxOpen)
	}
	if p.opts.MinIdle > 0 {
		db.SetMaxIdleConns(p.opts.MinIdle)
	}
	db.SetConnMaxLifetime(p.opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(p.opts.ConnMaxIdleTime)
	return db, nil
}

// Reserve checks out a dedicated connection. It blocks while MaxOpen
// connections are in use. A caller queued on a handle that Purge swaps out
// is moved to the replacement instead of failing.
func (p *Pool) Reserve(ctx context.Context) (datasource.Connection, error) {
	for {
		p.mu.RLock()
		db := p.db
		p.mu.RUnlock()

		if db == nil {
			return nil, fmt.Errorf("%s pool is closed", p.opts.Type)
		}

		conn, err := db.Conn(ctx)
		if err == nil {
			return &connection{conn: conn, pool: p}, nil
		}
		if isClosedDB(err) && p.swapped(db) {
			p.logger.Debug("handle purged while waiting, retrying on replacement",
				zap.String("type", p.opts.Type))
			continue
		}
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
}

// swapped reports whether db is no longer the live handle and a replacement
// exists. It is false after Close.
func (p *Pool) swapped(db *sql.DB) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.db != nil && p.db != db
}

// isClosedDB matches the unexported error database/sql returns from a closed *sql.DB.
func isClosedDB(err error) bool {
	return errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "sql: database is closed")
}

// Release returns the connection to the *sql.DB it came from.
func (p *Pool) Release(c datasource.Connection) error {
	conn, ok := c.(*connection)
	if !ok || conn.pool != p {
		return fmt.Errorf("connection %T does not belong to this %s pool", c, p.opts.Type)
	}
	if !conn.released.CompareAndSwap(false, true) {
		return datasource.ErrAlreadyReleased
	}
	if err := conn.conn.Close(); err != nil && err != sql.ErrConnDone {
		return fmt.Errorf("release connection: %w", err)
	}
	return nil
}

// Purge replaces the handle so every idle connection is closed and every
// reserved one is closed on release.
func (p *Pool) Purge() error {
	fresh, err := p.openDB()
	if err != nil {
		return err
	}

	p.mu.Lock()
	old := p.db
	p.db = fresh
	p.mu.Unlock()

	if old != nil {
		// Reserved connections are closed as they are released.
		go func() {
			if err := old.Close(); err != nil {
				p.logger.Warn("failed to close purged handle",
					zap.String("type", p.opts.Type),
					zap.String("error", logging.SanitizeError(err)))
			}
		}()
	}
	p.logger.Info("purged connection pool", zap.String("type", p.opts.Type))
	return nil
}

// Close closes the current handle.
func (p *Pool) Close() error {
	p.mu.Lock()
	db := p.db
	p.db = nil
	p.mu.Unlock()

	if db == nil {
		return nil
	}
	return db.Close()
}

// Type returns the database type
func (p *Pool) Type() string {
	return p.opts.Type
}

type connection struct {
	conn     *sql.Conn
	pool     *Pool
	released atomic.Bool
}

// CreateStatement pings the dedicated connection.
func (c *connection) CreateStatement(ctx context.Context) (datasource.Statement, error) {
	if c.released.Load() {
		return nil, datasource.ErrAlreadyReleased
	}
	if err := c.conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("create statement: %w", err)
	}
	return &statement{conn: c.conn}, nil
}

type statement struct {
	conn *sql.Conn
}

// ExecuteQuery runs a SQL query and returns every row.
func (s *statement) ExecuteQuery(ctx context.Context, query string) (*datasource.ResultSet, error) {
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// ExecuteUpdate runs a DML statement and returns the affected-row count.
func (s *statement) ExecuteUpdate(ctx context.Context, query string) (int64, error) {
	result, err := s.conn.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to execute update: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

func (s *statement) Close() error {
	return nil
}

// scanRows reads every row into a column-keyed map. []byte values are
// converted to strings so results encode as JSON text.
func scanRows(rows *sql.Rows) (*datasource.ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				rowMap[col] = string(b)
			} else {
				rowMap[col] = values[i]
			}
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &datasource.ResultSet{
		Columns: columns,
		Rows:    resultRows,
	}, nil
}

var _ datasource.Pool = (*Pool)(nil)
