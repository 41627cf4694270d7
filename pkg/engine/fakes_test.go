package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
)

// fakePool counts every capability call and hands out fakeConns.
type fakePool struct {
	mu         sync.Mutex
	reserveErr error
	releaseErr error
	purgeErr   error
	conn       *fakeConn

	reserves int
	releases map[*fakeConn]int
	purges   int
}

func newFakePool(conn *fakeConn) *fakePool {
	return &fakePool{conn: conn, releases: make(map[*fakeConn]int)}
}

func (p *fakePool) Reserve(ctx context.Context) (datasource.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reserveErr != nil {
		return nil, p.reserveErr
	}
	p.reserves++
	return p.conn, nil
}

func (p *fakePool) Release(c datasource.Connection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releases[c.(*fakeConn)]++
	return p.releaseErr
}

func (p *fakePool) Purge() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purges++
	return p.purgeErr
}

func (p *fakePool) Close() error { return nil }
func (p *fakePool) Type() string { return "fake" }

func (p *fakePool) releaseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.releases {
		n += c
	}
	return n
}

func (p *fakePool) purgeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.purges
}

// fakeConn returns a fakeStatement unless createErr is set.
type fakeConn struct {
	createErr error
	rs        *datasource.ResultSet
	count     int64
	execErr   error

	mu       sync.Mutex
	executed []string
	closed   int
}

func (c *fakeConn) CreateStatement(ctx context.Context) (datasource.Statement, error) {
	if c.createErr != nil {
		return nil, c.createErr
	}
	return &fakeStatement{conn: c}, nil
}

type fakeStatement struct {
	conn *fakeConn
}

func (s *fakeStatement) ExecuteQuery(ctx context.Context, sql string) (*datasource.ResultSet, error) {
	s.conn.record(sql)
	if s.conn.execErr != nil {
		return nil, s.conn.execErr
	}
	return s.conn.rs, nil
}

func (s *fakeStatement) ExecuteUpdate(ctx context.Context, sql string) (int64, error) {
	s.conn.record(sql)
	if s.conn.execErr != nil {
		return 0, s.conn.execErr
	}
	return s.conn.count, nil
}

func (s *fakeStatement) Close() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	s.conn.closed++
	return nil
}

func (c *fakeConn) record(sql string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executed = append(c.executed, sql)
}

// recordingReporter keeps every status and error it is given.
type recordingReporter struct {
	mu       sync.Mutex
	statuses []Status
	errs     []error
}

func (r *recordingReporter) ReportStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recordingReporter) ReportError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingReporter) last() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return Status{}
	}
	return r.statuses[len(r.statuses)-1]
}

var errDatabaseDown = errors.New("java.net.ConnectException: Error connecting to server gaian1 on port 6414")
