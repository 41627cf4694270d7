// Package nodes hosts the flow nodes: database config nodes that own pools,
// and the query, mutation and freeform SQL nodes that turn messages into runs.
package nodes

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/engine"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/logging"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/models"
	sqlguard "github.com/ekaya-inc/ekaya-gaiandb/pkg/sql"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/template"
)

// Node kinds.
const (
	KindIn  = "in"
	KindOut = "out"
	KindSQL = "sql"
)

// Output delivers a node's outbound messages to a channel.
type Output interface {
	Send(ctx context.Context, channel string, msgs []models.Message) error
}

// Node handles inbound messages.
type Node interface {
	ID() string
	Kind() string
	Input() string
	Handle(ctx context.Context, msg models.Message) error
	Info() Info
}

// Info is a snapshot of a node for the admin API.
type Info struct {
	ID        string        `json:"id"`
	Name      string        `json:"name,omitempty"`
	Kind      string        `json:"kind"`
	Database  string        `json:"database,omitempty"`
	Input     string        `json:"input,omitempty"`
	Output    string        `json:"output,omitempty"`
	Status    engine.Status `json:"status"`
	LastError string        `json:"last_error,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Options are the collaborators shared by every flow node.
type Options struct {
	Renderer *template.Renderer
	Guard    *sqlguard.Guard
	Output   Output
	Logger   *zap.Logger
}

// base carries identity, status and output handling for every node kind.
// It is the engine.Reporter handed to the orchestrator.
type base struct {
	id       string
	name     string
	kind     string
	input    string
	output   string
	db       *GaianConfig
	renderer *template.Renderer
	guard    *sqlguard.Guard
	out      Output
	logger   *zap.Logger

	mu        sync.RWMutex
	status    engine.Status
	lastError string
	updatedAt time.Time
}

// init sets up a node embedded in its concrete type.
func (b *base) init(id, name, kind, input, output string, db *GaianConfig, opts Options) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = template.NewRenderer()
	}

	b.id = id
	b.name = name
	b.kind = kind
	b.input = input
	b.output = output
	b.db = db
	b.renderer = renderer
	b.guard = opts.Guard
	b.out = opts.Output
	b.logger = logger.With(zap.String("node", id), zap.String("kind", kind))

	switch {
	case db == nil:
		b.setStatus(engine.NewStatus(engine.StatusDisconnected))
		b.setError(apperrors.ErrNoConnection)
		b.logger.Error("node has no database config", zap.Error(apperrors.ErrNoConnection))
	case db.Connected():
		b.setStatus(engine.NewStatus(engine.StatusConnected))
	default:
		b.setStatus(engine.NewStatus(engine.StatusDisconnected))
	}
}

func (b *base) ID() string    { return b.id }
func (b *base) Kind() string  { return b.kind }
func (b *base) Input() string { return b.input }

// Info returns the node's current status.
func (b *base) Info() Info {
	b.mu.RLock()
	defer b.mu.RUnlock()

	info := Info{
		ID:        b.id,
		Name:      b.name,
		Kind:      b.kind,
		Input:     b.input,
		Output:    b.output,
		Status:    b.status,
		LastError: b.lastError,
		UpdatedAt: b.updatedAt,
	}
	if b.db != nil {
		info.Database = b.db.ID()
	}
	return info
}

// ReportStatus records a status transition.
func (b *base) ReportStatus(s engine.Status) {
	if prev := b.setStatus(s); prev.State != s.State {
		b.logger.Info("node status changed",
			zap.String("from", string(prev.State)),
			zap.String("to", string(s.State)))
	}
}

// ReportError records and logs a run error.
func (b *base) ReportError(err error) {
	b.setError(err)
	b.logger.Error("node run failed", zap.String("error", logging.SanitizeError(err)))
}

// warn logs a problem with the inbound message. Status is left alone.
func (b *base) warn(err error) {
	b.setError(err)
	b.logger.Warn("message ignored", zap.String("reason", logging.SanitizeError(err)))
}

func (b *base) setStatus(s engine.Status) engine.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.status
	b.status = s
	b.updatedAt = time.Now()
	return prev
}

func (b *base) setError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastError = logging.SanitizeError(err)
	b.updatedAt = time.Now()
}

// send forwards msgs to the node's output channel.
func (b *base) send(ctx context.Context, msgs []models.Message) {
	if len(msgs) == 0 {
		return
	}
	if b.output == "" || b.out == nil {
		b.logger.Debug("no output channel, dropping messages", zap.Int("count", len(msgs)))
		return
	}
	if err := b.out.Send(ctx, b.output, msgs); err != nil {
		b.logger.Error("failed to send output",
			zap.String("channel", b.output),
			zap.Int("count", len(msgs)),
			zap.String("error", logging.SanitizeError(err)))
	}
}

// render resolves mustache tags in tpl. A template that cannot be rendered
// is used as written.
func (b *base) render(tpl string, msg models.Message) string {
	out, err := b.renderer.Render(tpl, msg)
	if err != nil {
		b.logger.Debug("template not rendered", zap.String("template", tpl), zap.Error(err))
	}
	return out
}

// renderOnce is render for templates taken from the message itself. They are
// not cached.
func (b *base) renderOnce(tpl string, msg models.Message) string {
	out, err := b.renderer.RenderOnce(tpl, msg)
	if err != nil {
		b.logger.Debug("template not rendered", zap.String("template", logging.SanitizeQuery(tpl)), zap.Error(err))
	}
	return out
}

// run executes req and sends the projected results.
func (b *base) run(ctx context.Context, req engine.Request, mode engine.FanOutMode) error {
	outcome := b.db.Run(ctx, req, func(o engine.Outcome) {
		b.send(ctx, engine.Project(o, mode))
	}, b)
	if failure, ok := outcome.(*engine.Failure); ok {
		return failure
	}
	return nil
}

// precheck rejects messages for nodes without a database or that fail the guard.
func (b *base) precheck(msg models.Message) error {
	if b.db == nil {
		return apperrors.ErrNoConnection
	}
	if err := b.guard.Check(msg); err != nil {
		b.warn(err)
		return err
	}
	return nil
}
