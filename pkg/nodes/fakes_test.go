package nodes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/config"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/engine"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/models"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/retry"
)

var errGaianDown = errors.New("java.net.ConnectException: Error connecting to server gaian1 on port 6414: connection refused")

// scriptedPool answers queries from rs/count and records every statement.
type scriptedPool struct {
	mu         sync.Mutex
	reserveErr error
	createErr  error
	execErr    error
	rs         *datasource.ResultSet
	count      int64

	reserves int
	releases int
	purges   int
	executed []string
}

type scriptedConn struct {
	pool *scriptedPool
}

type scriptedStatement struct {
	pool *scriptedPool
}

func (p *scriptedPool) Reserve(ctx context.Context) (datasource.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reserveErr != nil {
		return nil, p.reserveErr
	}
	p.reserves++
	return &scriptedConn{pool: p}, nil
}

func (p *scriptedPool) Release(datasource.Connection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releases++
	return nil
}

func (p *scriptedPool) Purge() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purges++
	return nil
}

func (p *scriptedPool) Close() error { return nil }
func (p *scriptedPool) Type() string { return "scripted" }

func (p *scriptedPool) setCreateErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createErr = err
}

func (p *scriptedPool) statements() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.executed...)
}

func (p *scriptedPool) counts() (reserves, releases, purges int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserves, p.releases, p.purges
}

func (c *scriptedConn) CreateStatement(ctx context.Context) (datasource.Statement, error) {
	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	if c.pool.createErr != nil {
		return nil, c.pool.createErr
	}
	return &scriptedStatement{pool: c.pool}, nil
}

func (s *scriptedStatement) ExecuteQuery(ctx context.Context, sql string) (*datasource.ResultSet, error) {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	s.pool.executed = append(s.pool.executed, sql)
	if s.pool.execErr != nil {
		return nil, s.pool.execErr
	}
	if s.pool.rs == nil {
		return &datasource.ResultSet{Rows: []map[string]any{}}, nil
	}
	return s.pool.rs, nil
}

func (s *scriptedStatement) ExecuteUpdate(ctx context.Context, sql string) (int64, error) {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	s.pool.executed = append(s.pool.executed, sql)
	if s.pool.execErr != nil {
		return 0, s.pool.execErr
	}
	return s.pool.count, nil
}

func (s *scriptedStatement) Close() error { return nil }

// captureOutput records everything sent to it, per channel.
type captureOutput struct {
	mu      sync.Mutex
	sent    map[string][]models.Message
	sendErr error
	notify  chan struct{}
}

func newCaptureOutput() *captureOutput {
	return &captureOutput{sent: make(map[string][]models.Message), notify: make(chan struct{}, 16)}
}

func (o *captureOutput) Send(ctx context.Context, channel string, msgs []models.Message) error {
	o.mu.Lock()
	o.sent[channel] = append(o.sent[channel], msgs...)
	o.mu.Unlock()
	select {
	case o.notify <- struct{}{}:
	default:
	}
	return o.sendErr
}

func (o *captureOutput) messages(channel string) []models.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.Message(nil), o.sent[channel]...)
}

func (o *captureOutput) wait(t *testing.T) {
	t.Helper()
	select {
	case <-o.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for output")
	}
}

func sensorRows() *datasource.ResultSet {
	return &datasource.ResultSet{
		Columns: []string{"ID", "NAME"},
		Rows: []map[string]any{
			{"ID": 5, "NAME": "sensor-a"},
			{"ID": 5, "NAME": "sensor-b"},
		},
	}
}

// newTestConfigNode wraps pool in a connected config node.
func newTestConfigNode(t *testing.T, pool datasource.Pool) *GaianConfig {
	t.Helper()
	logger := zaptest.NewLogger(t)
	g := NewGaianConfig(
		config.DatabaseConfig{ID: "gaian1", Name: "Gaian 1", Host: "gaian1", Port: 6414},
		pool,
		engine.NewOrchestrator(logger, nil),
		retry.NoRetry(),
		logger,
	)
	g.connected.Store(true)
	return g
}

func testOptions(t *testing.T, out Output) Options {
	return Options{Output: out, Logger: zaptest.NewLogger(t)}
}
