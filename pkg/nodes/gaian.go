package nodes

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/config"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/engine"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/logging"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/retry"
)

// GaianConfig is a database config node. It owns the pool its flow nodes
// share and remembers whether the last connectivity test succeeded.
type GaianConfig struct {
	cfg          config.DatabaseConfig
	pool         datasource.Pool
	orchestrator *engine.Orchestrator
	retry        *retry.Config
	logger       *zap.Logger

	connected atomic.Bool
}

// NewGaianConfig wraps pool for the database described by cfg.
func NewGaianConfig(cfg config.DatabaseConfig, pool datasource.Pool, orchestrator *engine.Orchestrator, retryCfg *retry.Config, logger *zap.Logger) *GaianConfig {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &GaianConfig{
		cfg:          cfg,
		pool:         pool,
		orchestrator: orchestrator,
		retry:        retryCfg,
		logger:       logger.With(zap.String("database", cfg.ID)),
	}
}

func (g *GaianConfig) ID() string                    { return g.cfg.ID }
func (g *GaianConfig) Name() string                  { return g.cfg.Name }
func (g *GaianConfig) Config() config.DatabaseConfig { return g.cfg }
func (g *GaianConfig) Pool() datasource.Pool         { return g.pool }

// Connected reports the result of the most recent connectivity test.
func (g *GaianConfig) Connected() bool {
	return g.connected.Load()
}

// Run executes req on this database's pool.
func (g *GaianConfig) Run(ctx context.Context, req engine.Request, onSuccess func(engine.Outcome), reporter engine.Reporter) engine.Outcome {
	return g.orchestrator.Run(ctx, g.pool, req, onSuccess, reporter)
}

// Connect tests connectivity, retrying transient failures, and records the result.
func (g *GaianConfig) Connect(ctx context.Context) engine.StatusState {
	err := retry.Do(ctx, g.retry, func() error {
		_, err := g.TestConnection(ctx)
		return err
	})
	if err != nil {
		g.logger.Warn("gaiandb is not reachable",
			zap.String("address", g.cfg.Address()),
			zap.String("error", logging.SanitizeError(err)))
		return engine.StatusDisconnected
	}
	g.logger.Info("gaiandb connection established", zap.String("address", g.cfg.Address()))
	return engine.StatusConnected
}

// TestConnection runs a single connectivity test and records the result.
// The returned error is the reason the database is disconnected.
func (g *GaianConfig) TestConnection(ctx context.Context) (engine.StatusState, error) {
	rec := &lastErrorReporter{}
	state := g.orchestrator.TestConnectivity(ctx, g.pool, rec)
	g.connected.Store(state == engine.StatusConnected)
	if state == engine.StatusConnected {
		return state, nil
	}
	if err := rec.lastError(); err != nil {
		return state, err
	}
	return state, apperrors.ErrNoConnection
}

// lastErrorReporter keeps the error from a connectivity test.
type lastErrorReporter struct {
	mu  sync.Mutex
	err error
}

func (r *lastErrorReporter) ReportStatus(engine.Status) {}

func (r *lastErrorReporter) ReportError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *lastErrorReporter) lastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
