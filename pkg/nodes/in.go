package nodes

import (
	"context"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/engine"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/models"
)

// InNode runs select and count queries against a logical table.
type InNode struct {
	base
	table     string
	operation engine.Operation
	multi     engine.FanOutMode
}

// InNodeConfig configures an InNode. Table may contain mustache tags.
type InNodeConfig struct {
	ID, Name      string
	Table         string
	Operation     string
	Multi         string
	Input, Output string
}

// NewInNode creates a query node. db may be nil when its config node is missing.
func NewInNode(cfg InNodeConfig, db *GaianConfig, opts Options) *InNode {
	op := engine.Operation(cfg.Operation)
	if op == "" {
		op = engine.OpSelect
	}
	n := &InNode{
		table:     cfg.Table,
		operation: op,
		multi:     engine.ParseFanOutMode(cfg.Multi),
	}
	n.init(cfg.ID, cfg.Name, KindIn, cfg.Input, cfg.Output, db, opts)
	return n
}

// Handle builds the query for msg and runs it.
func (n *InNode) Handle(ctx context.Context, msg models.Message) error {
	if err := n.precheck(msg); err != nil {
		return err
	}

	var table string
	if n.table != "" {
		table = n.render(n.table, msg)
	}

	req, err := engine.BuildQuery(n.operation, table, msg)
	if err != nil {
		n.warn(err)
		return err
	}
	return n.run(ctx, req, n.multi)
}
