package nodes

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/config"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/engine"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/logging"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/retry"
	sqlguard "github.com/ekaya-inc/ekaya-gaiandb/pkg/sql"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/template"
)

// Deps are the services Build wires into the flow.
type Deps struct {
	Manager      *datasource.ConnectionManager
	Orchestrator *engine.Orchestrator
	Renderer     *template.Renderer
	Guard        *sqlguard.Guard
	Output       Output
	Retry        *retry.Config
	Logger       *zap.Logger
}

// Build creates a pool and config node per database, tests each one, and
// then creates the flow nodes. A database that cannot be opened is logged and
// left out; nodes that reference it start disconnected.
func Build(ctx context.Context, dbs []config.DatabaseConfig, nodeCfgs []config.NodeConfig, deps Deps) (*Flow, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Manager == nil || deps.Orchestrator == nil {
		return nil, fmt.Errorf("build flow: connection manager and orchestrator are required")
	}

	flow := NewFlow(logger)

	for _, db := range dbs {
		if db.User == "" || db.Password == "" {
			logger.Warn("please provide gaiandb logon credentials",
				zap.String("database", db.ID),
				zap.String("password_env", db.PasswordEnv))
			continue
		}

		pool, err := deps.Manager.GetOrCreatePool(ctx, db.ID, db.ConnectionConfig())
		if err != nil {
			logger.Error("failed to open gaiandb pool",
				zap.String("database", db.ID),
				zap.String("type", db.Type),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}

		g := NewGaianConfig(db, pool, deps.Orchestrator, deps.Retry, logger)
		if err := flow.AddConfig(g); err != nil {
			return nil, err
		}
		g.Connect(ctx)
	}

	opts := Options{
		Renderer: deps.Renderer,
		Guard:    deps.Guard,
		Output:   deps.Output,
		Logger:   logger,
	}

	for _, nc := range nodeCfgs {
		var db *GaianConfig
		if nc.Database != "" {
			db, _ = flow.Config(nc.Database)
		}

		var n Node
		switch nc.Kind {
		case KindIn:
			if nc.Operation != "" && !engine.IsQueryOperation(engine.Operation(nc.Operation)) {
				logger.Warn("operation is not handled by query nodes",
					zap.String("node", nc.ID), zap.String("operation", nc.Operation))
			}
			n = NewInNode(InNodeConfig{
				ID: nc.ID, Name: nc.Name, Table: nc.Table, Operation: nc.Operation,
				Multi: nc.Multi, Input: nc.Input, Output: nc.Output,
			}, db, opts)
		case KindOut:
			if !engine.IsMutationOperation(engine.Operation(nc.Operation)) {
				logger.Warn("operation is not handled by mutation nodes",
					zap.String("node", nc.ID), zap.String("operation", nc.Operation))
			}
			n = NewOutNode(OutNodeConfig{
				ID: nc.ID, Name: nc.Name, Table: nc.Table, Operation: nc.Operation,
				Input: nc.Input, Output: nc.Output,
			}, db, opts)
		case KindSQL:
			n = NewSQLNode(SQLNodeConfig{
				ID: nc.ID, Name: nc.Name, Query: nc.Query,
				Multi: nc.Multi, Input: nc.Input, Output: nc.Output,
			}, db, opts)
		default:
			return nil, fmt.Errorf("node %q: unknown kind %q", nc.ID, nc.Kind)
		}

		if err := flow.AddNode(n); err != nil {
			return nil, err
		}
	}

	logger.Info("flow built",
		zap.Int("databases", len(flow.configs)),
		zap.Int("nodes", len(nodeCfgs)))
	return flow, nil
}
