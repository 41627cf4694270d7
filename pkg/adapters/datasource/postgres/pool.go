package postgres

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
)

// Pool adapts *pgxpool.Pool to the datasource.Pool capability.
type Pool struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPool opens a pgx pool. Connections are dialed lazily by pgxpool, so an
// unreachable database surfaces on Reserve rather than here.
func NewPool(ctx context.Context, cfg *Config, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	poolConfig, err := pgxpool.ParseConfig(buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &Pool{pool: pool, logger: logger}, nil
}

// WrapPool adapts an existing pgx pool (tests, shared pools).
func WrapPool(pool *pgxpool.Pool, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{pool: pool, logger: logger}
}

// Reserve acquires a connection, blocking while the pool is at MaxConns.
func (p *Pool) Reserve(ctx context.Context) (datasource.Connection, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &connection{conn: conn}, nil
}

// Release returns the connection to pgxpool.
func (p *Pool) Release(c datasource.Connection) error {
	conn, ok := c.(*connection)
	if !ok {
		return fmt.Errorf("connection %T does not belong to a postgres pool", c)
	}
	if !conn.released.CompareAndSwap(false, true) {
		return datasource.ErrAlreadyReleased
	}
	conn.conn.Release()
	return nil
}

// Purge closes every idle connection and marks checked-out ones to be closed
// when they are released.
func (p *Pool) Purge() error {
	p.pool.Reset()
	p.logger.Info("purged postgres pool")
	return nil
}

// Close closes the pool.
func (p *Pool) Close() error {
	p.pool.Close()
	return nil
}

// Type returns the database type
func (p *Pool) Type() string {
	return "postgres"
}

type connection struct {
	conn     *pgxpool.Conn
	released atomic.Bool
}

// CreateStatement verifies the reserved session is still alive.
func (c *connection) CreateStatement(ctx context.Context) (datasource.Statement, error) {
	if c.released.Load() {
		return nil, datasource.ErrAlreadyReleased
	}
	if err := c.conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("create statement: %w", err)
	}
	return &statement{conn: c.conn}, nil
}

type statement struct {
	conn *pgxpool.Conn
}

// ExecuteQuery runs a SQL query and returns every row.
func (s *statement) ExecuteQuery(ctx context.Context, sql string) (*datasource.ResultSet, error) {
	rows, err := s.conn.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return collectRows(rows)
}

// ExecuteUpdate runs a DML statement and returns the affected-row count.
func (s *statement) ExecuteUpdate(ctx context.Context, sql string) (int64, error) {
	tag, err := s.conn.Exec(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("failed to execute update: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *statement) Close() error {
	return nil
}

func collectRows(rows pgx.Rows) (*datasource.ResultSet, error) {
	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = values[i]
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

// Ensure Pool implements datasource.Pool at compile time.
var _ datasource.Pool = (*Pool)(nil)
