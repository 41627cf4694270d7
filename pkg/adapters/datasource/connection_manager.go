package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/logging"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/retry"
)

const (
	DefaultPoolMinSize = 10
	DefaultPoolMaxSize = 100
)

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	// Retry controls pool creation retries. Nil uses retry.DefaultConfig().
	Retry *retry.Config
}

// ConnectionManager owns one pool per database config node.
// Pools are created at startup and torn down by Close (or Remove).
type ConnectionManager struct {
	mu      sync.RWMutex
	pools   map[string]*ManagedPool // key: database config node ID
	retry   *retry.Config
	stopped bool
	logger  *zap.Logger
}

// ManagedPool wraps a Pool with usage counters. It implements Pool itself so
// callers never need the underlying adapter.
type ManagedPool struct {
	Pool

	id       string
	reserved atomic.Int64
	released atomic.Int64
	purged   atomic.Int64
	lastUsed atomic.Int64 // unix nanos
}

// NewConnectionManager creates a connection manager with the given configuration.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultConfig()
	}
	return &ConnectionManager{
		pools:  make(map[string]*ManagedPool),
		retry:  cfg.Retry,
		logger: logger,
	}
}

// GetOrCreatePool returns the pool registered under id, creating it from cfg
// the first time. Pool creation is retried for transient failures.
func (m *ConnectionManager) GetOrCreatePool(ctx context.Context, id string, cfg ConnectionConfig) (*ManagedPool, error) {
	// Fast path
	m.mu.RLock()
	managed, exists := m.pools[id]
	stopped := m.stopped
	m.mu.RUnlock()

	if stopped {
		return nil, fmt.Errorf("connection manager is closed")
	}
	if exists {
		return managed, nil
	}

	factory := GetPoolFactory(cfg.Type)
	if factory == nil {
		return nil, fmt.Errorf("unsupported datasource type: %s", cfg.Type)
	}

	if cfg.MinPoolSize <= 0 {
		cfg.MinPoolSize = DefaultPoolMinSize
	}
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = DefaultPoolMaxSize
	}
	if cfg.MinPoolSize > cfg.MaxPoolSize {
		cfg.MinPoolSize = cfg.MaxPoolSize
	}

	// Create the pool outside the lock; opening may dial the database.
	pool, err := retry.DoWithResult(ctx, m.retry, func() (Pool, error) {
		return factory(ctx, cfg, m.logger.With(zap.String("database", id)))
	})
	if err != nil {
		m.logger.Error("failed to create pool after retries",
			zap.String("database", id),
			zap.String("type", cfg.Type),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("failed to create pool for %s after retries: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine may have created it)
	if existing, ok := m.pools[id]; ok {
		_ = pool.Close()
		return existing, nil
	}
	if m.stopped {
		_ = pool.Close()
		return nil, fmt.Errorf("connection manager is closed")
	}

	managed = &ManagedPool{Pool: pool, id: id}
	managed.touch()
	m.pools[id] = managed

	m.logger.Info("created connection pool",
		zap.String("database", id),
		zap.String("type", cfg.Type),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.Int32("min_pool_size", cfg.MinPoolSize),
		zap.Int32("max_pool_size", cfg.MaxPoolSize),
	)

	return managed, nil
}

// Get returns the pool registered under id.
func (m *ConnectionManager) Get(id string) (*ManagedPool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	managed, ok := m.pools[id]
	if !ok {
		return nil, fmt.Errorf("pool %q: %w", id, apperrors.ErrNotFound)
	}
	return managed, nil
}

// Remove closes and forgets the pool registered under id.
func (m *ConnectionManager) Remove(id string) {
	m.mu.Lock()
	managed, exists := m.pools[id]
	delete(m.pools, id)
	m.mu.Unlock()

	if !exists {
		return
	}
	if err := managed.Close(); err != nil {
		m.logger.Warn("failed to close pool",
			zap.String("database", id),
			zap.String("error", logging.SanitizeError(err)),
		)
	}
	m.logger.Debug("removed pool", zap.String("database", id))
}

// Close closes all pools in the manager.
// This method is idempotent and safe to call multiple times.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	pools := m.pools
	m.pools = make(map[string]*ManagedPool)
	m.mu.Unlock()

	for id, managed := range pools {
		if err := managed.Close(); err != nil {
			m.logger.Warn("failed to close pool",
				zap.String("database", id),
				zap.String("error", logging.SanitizeError(err)),
			)
		}
	}

	m.logger.Info("connection manager closed")
	return nil
}

// GetStats returns statistics about the connection manager.
// Safe to call concurrently.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	stats := ConnectionStats{
		TotalPools: len(m.pools),
		Pools:      make([]PoolStats, 0, len(m.pools)),
	}
	for id, managed := range m.pools {
		reserved := managed.reserved.Load()
		released := managed.released.Load()
		stats.Pools = append(stats.Pools, PoolStats{
			Database:    id,
			Type:        managed.Type(),
			Reserved:    reserved,
			Released:    released,
			InUse:       reserved - released,
			Purges:      managed.purged.Load(),
			IdleSeconds: int(now.Sub(time.Unix(0, managed.lastUsed.Load())).Seconds()),
		})
	}
	sort.Slice(stats.Pools, func(i, j int) bool { return stats.Pools[i].Database < stats.Pools[j].Database })
	return stats
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalPools int         `json:"total_pools"`
	Pools      []PoolStats `json:"pools"`
}

// PoolStats contains per-pool usage counters.
type PoolStats struct {
	Database    string `json:"database"`
	Type        string `json:"type"`
	Reserved    int64  `json:"reserved"`
	Released    int64  `json:"released"`
	InUse       int64  `json:"in_use"`
	Purges      int64  `json:"purges"`
	IdleSeconds int    `json:"idle_seconds"`
}

// ID returns the database config node ID this pool belongs to.
func (p *ManagedPool) ID() string {
	return p.id
}

// Reserve reserves a connection from the underlying pool.
func (p *ManagedPool) Reserve(ctx context.Context) (Connection, error) {
	conn, err := p.Pool.Reserve(ctx)
	if err != nil {
		return nil, err
	}
	p.reserved.Add(1)
	p.touch()
	return conn, nil
}

// Release returns a connection to the underlying pool.
func (p *ManagedPool) Release(conn Connection) error {
	err := p.Pool.Release(conn)
	if err == nil {
		p.released.Add(1)
	}
	p.touch()
	return err
}

// Purge discards every connection held by the underlying pool.
func (p *ManagedPool) Purge() error {
	p.purged.Add(1)
	return p.Pool.Purge()
}

func (p *ManagedPool) touch() {
	p.lastUsed.Store(time.Now().UnixNano())
}

// Ensure ManagedPool implements Pool at compile time.
var _ Pool = (*ManagedPool)(nil)
