package datasource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// fakePool is an in-memory Pool used by this package's tests.
type fakePool struct {
	mu       sync.Mutex
	closed   bool
	purges   int
	reserved int
}

type fakeConn struct {
	released atomic.Bool
}

func (c *fakeConn) CreateStatement(ctx context.Context) (Statement, error) {
	return nil, errors.New("not implemented")
}

func (p *fakePool) Reserve(ctx context.Context) (Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("pool closed")
	}
	p.reserved++
	return &fakeConn{}, nil
}

func (p *fakePool) Release(c Connection) error {
	conn := c.(*fakeConn)
	if !conn.released.CompareAndSwap(false, true) {
		return ErrAlreadyReleased
	}
	return nil
}

func (p *fakePool) Purge() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purges++
	return nil
}

func (p *fakePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePool) Type() string { return "fake" }

func (p *fakePool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeFactory records every pool it creates and can fail a number of times first.
type fakeFactory struct {
	mu       sync.Mutex
	failures int
	failWith error
	calls    int
	created  []*fakePool
	configs  []ConnectionConfig
}

func (f *fakeFactory) create(ctx context.Context, cfg ConnectionConfig, logger *zap.Logger) (Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.configs = append(f.configs, cfg)
	if f.failures > 0 {
		f.failures--
		return nil, f.failWith
	}
	p := &fakePool{}
	f.created = append(f.created, p)
	return p, nil
}

func registerFake(typ string, f *fakeFactory) {
	Register(DatasourceAdapterRegistration{
		Info:        DatasourceAdapterInfo{Type: typ, DisplayName: "Fake " + typ, DefaultPort: 6414},
		PoolFactory: f.create,
	})
}
