package handlers

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/config"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/engine"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/models"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/nodes"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/retry"
)

// mockCatalogService records the config node IDs it was asked about.
type mockCatalogService struct {
	logical  []string
	physical []string
	asked    []string
}

func (m *mockCatalogService) ListLogicalTables(ctx context.Context, configNodeID string) []string {
	m.asked = append(m.asked, configNodeID)
	return m.logical
}

func (m *mockCatalogService) ListPhysicalTables(ctx context.Context, configNodeID string) []string {
	m.asked = append(m.asked, configNodeID)
	return m.physical
}

type dispatchCall struct {
	nodeID string
	msg    models.Message
}

// mockNodeRegistry serves a fixed snapshot and records dispatches.
type mockNodeRegistry struct {
	infos       []nodes.Info
	dispatchErr error

	mu    sync.Mutex
	calls []dispatchCall
}

func (m *mockNodeRegistry) Nodes() []nodes.Info { return m.infos }

func (m *mockNodeRegistry) Dispatch(ctx context.Context, nodeID string, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dispatchErr != nil {
		return m.dispatchErr
	}
	m.calls = append(m.calls, dispatchCall{nodeID: nodeID, msg: msg})
	return nil
}

// mockDatabaseRegistry holds config nodes by ID.
type mockDatabaseRegistry struct {
	configs []*nodes.GaianConfig
}

func (m *mockDatabaseRegistry) Configs() []*nodes.GaianConfig { return m.configs }

func (m *mockDatabaseRegistry) Config(id string) (*nodes.GaianConfig, error) {
	for _, g := range m.configs {
		if g.ID() == id {
			return g, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// fakePool hands out connections whose statements succeed unless createErr is set.
type fakePool struct {
	createErr error
}

type fakeConn struct{ pool *fakePool }

type fakeStatement struct{}

func (p *fakePool) Reserve(ctx context.Context) (datasource.Connection, error) {
	return &fakeConn{pool: p}, nil
}
func (p *fakePool) Release(datasource.Connection) error { return nil }
func (p *fakePool) Purge() error                        { return nil }
func (p *fakePool) Close() error                        { return nil }
func (p *fakePool) Type() string                        { return "fake" }

func (c *fakeConn) CreateStatement(ctx context.Context) (datasource.Statement, error) {
	if c.pool.createErr != nil {
		return nil, c.pool.createErr
	}
	return fakeStatement{}, nil
}

func (fakeStatement) ExecuteQuery(ctx context.Context, sql string) (*datasource.ResultSet, error) {
	return &datasource.ResultSet{Rows: []map[string]any{}}, nil
}
func (fakeStatement) ExecuteUpdate(ctx context.Context, sql string) (int64, error) { return 0, nil }
func (fakeStatement) Close() error                                                  { return nil }

var errConnectionRefused = errors.New("Error connecting to server gaian1 on port 6414;user=gaiandb;password=passw0rd: connection refused")

func newConfigNode(cfg config.DatabaseConfig, pool datasource.Pool) *nodes.GaianConfig {
	logger := zap.NewNop()
	return nodes.NewGaianConfig(cfg, pool, engine.NewOrchestrator(logger, nil), retry.NoRetry(), logger)
}
