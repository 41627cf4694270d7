package nodes

import (
	"context"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/engine"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/models"
)

// SQLNode runs a freeform query. The configured query wins over msg.payload.
type SQLNode struct {
	base
	query string
	multi engine.FanOutMode
}

// SQLNodeConfig configures a SQLNode. Query may contain mustache tags.
type SQLNodeConfig struct {
	ID, Name      string
	Query         string
	Multi         string
	Input, Output string
}

// NewSQLNode creates a freeform SQL node. db may be nil when its config node is missing.
func NewSQLNode(cfg SQLNodeConfig, db *GaianConfig, opts Options) *SQLNode {
	n := &SQLNode{
		query: cfg.Query,
		multi: engine.ParseFanOutMode(cfg.Multi),
	}
	n.init(cfg.ID, cfg.Name, KindSQL, cfg.Input, cfg.Output, db, opts)
	return n
}

// Handle renders the query against msg and runs it.
func (n *SQLNode) Handle(ctx context.Context, msg models.Message) error {
	if err := n.precheck(msg); err != nil {
		return err
	}

	var query string
	if n.query != "" {
		query = n.render(n.query, msg)
	} else if payload, _ := msg.Payload().(string); payload != "" {
		// Only a string payload can stand in for the query.
		query = n.renderOnce(payload, msg)
	}
	if query == "" {
		n.warn(engine.ErrNoQuery)
		return engine.ErrNoQuery
	}

	req, err := engine.BuildSQL(query)
	if err != nil {
		n.warn(err)
		return err
	}
	return n.run(ctx, req, n.multi)
}
