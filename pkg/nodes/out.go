package nodes

import (
	"context"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/engine"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/models"
)

// OutNode runs insert, update and delete statements and emits the
// affected-row count.
type OutNode struct {
	base
	table     string
	operation engine.Operation
}

// OutNodeConfig configures an OutNode. Table may contain mustache tags.
type OutNodeConfig struct {
	ID, Name      string
	Table         string
	Operation     string
	Input, Output string
}

// NewOutNode creates a mutation node. db may be nil when its config node is missing.
func NewOutNode(cfg OutNodeConfig, db *GaianConfig, opts Options) *OutNode {
	n := &OutNode{
		table:     cfg.Table,
		operation: engine.Operation(cfg.Operation),
	}
	n.init(cfg.ID, cfg.Name, KindOut, cfg.Input, cfg.Output, db, opts)
	return n
}

// Handle builds the mutation for msg and runs it.
func (n *OutNode) Handle(ctx context.Context, msg models.Message) error {
	if err := n.precheck(msg); err != nil {
		return err
	}

	var table string
	if n.table != "" {
		table = n.render(n.table, msg)
	}

	req, err := engine.BuildMutation(n.operation, table, msg)
	if err != nil {
		n.warn(err)
		return err
	}
	return n.run(ctx, req, engine.FanOutIndividual)
}
