package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/logging"
)

// Orchestrator runs requests against a pool: reserve, execute, report,
// release, and purge the pool when a statement cannot be created.
//
// It holds no locks. The pool bounds how many runs hold a connection at once.
type Orchestrator struct {
	logger  *zap.Logger
	metrics *Metrics
}

// NewOrchestrator creates an orchestrator. metrics may be nil.
func NewOrchestrator(logger *zap.Logger, metrics *Metrics) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		logger:  logger.Named("orchestrator"),
		metrics: metrics,
	}
}

// Run executes req on a connection reserved from pool.
//
// A reservation failure reports disconnected. A create_statement failure
// reports disconnected and purges the pool after the connection is released.
// An execute failure reports failed. Success reports connected and calls
// onSuccess. A reserved connection is released exactly once, even if
// onSuccess or the reporter panics; release and purge errors are logged and
// never returned.
func (o *Orchestrator) Run(ctx context.Context, pool datasource.Pool, req Request, onSuccess func(Outcome), reporter Reporter) (outcome Outcome) {
	if reporter == nil {
		reporter = NopReporter
	}
	start := time.Now()

	conn, err := pool.Reserve(ctx)
	if err != nil {
		failure := &Failure{Stage: StageReserve, Cause: err}
		o.metrics.observeRun(req.Kind, failure, time.Since(start))
		reporter.ReportStatus(NewStatus(StatusDisconnected))
		reporter.ReportError(failure)
		return failure
	}

	purge := false
	defer func() {
		o.release(pool, conn)
		if purge {
			o.purge(pool)
		}
		o.metrics.observeRun(req.Kind, outcome, time.Since(start))
	}()

	outcome = Execute(ctx, conn, req)

	if failure, ok := outcome.(*Failure); ok {
		if failure.Stage == StageCreateStatement {
			purge = true
			reporter.ReportStatus(NewStatus(StatusDisconnected))
		} else {
			reporter.ReportStatus(NewStatus(StatusFailed))
		}
		o.logger.Debug("run failed",
			zap.String("stage", string(failure.Stage)),
			zap.String("sql", logging.SanitizeQuery(req.SQL)),
			zap.String("error", logging.SanitizeError(failure.Cause)))
		reporter.ReportError(failure)
		return outcome
	}

	reporter.ReportStatus(NewStatus(StatusConnected))
	if onSuccess != nil {
		onSuccess(outcome)
	}
	return outcome
}

// TestConnectivity reserves a connection and creates a statement on it,
// without executing anything. It never purges.
func (o *Orchestrator) TestConnectivity(ctx context.Context, pool datasource.Pool, reporter Reporter) StatusState {
	if reporter == nil {
		reporter = NopReporter
	}

	conn, err := pool.Reserve(ctx)
	if err != nil {
		reporter.ReportStatus(NewStatus(StatusDisconnected))
		reporter.ReportError(&Failure{Stage: StageReserve, Cause: err})
		return StatusDisconnected
	}
	defer o.release(pool, conn)

	stmt, err := conn.CreateStatement(ctx)
	if err != nil {
		reporter.ReportStatus(NewStatus(StatusDisconnected))
		reporter.ReportError(&Failure{Stage: StageCreateStatement, Cause: err})
		return StatusDisconnected
	}
	if err := stmt.Close(); err != nil {
		o.logger.Debug("failed to close connectivity statement", zap.String("error", logging.SanitizeError(err)))
	}

	reporter.ReportStatus(NewStatus(StatusConnected))
	return StatusConnected
}

func (o *Orchestrator) release(pool datasource.Pool, conn datasource.Connection) {
	if err := pool.Release(conn); err != nil {
		o.metrics.incReleaseErrors()
		o.logger.Error("failed to release connection",
			zap.String("type", pool.Type()),
			zap.String("error", logging.SanitizeError(fmt.Errorf("%w: %w", ErrRelease, err))))
	}
}

func (o *Orchestrator) purge(pool datasource.Pool) {
	o.metrics.incPurges()
	if err := pool.Purge(); err != nil {
		o.logger.Error("failed to purge pool",
			zap.String("type", pool.Type()),
			zap.String("error", logging.SanitizeError(err)))
		return
	}
	o.logger.Warn("purged pool after statement creation failure", zap.String("type", pool.Type()))
}
