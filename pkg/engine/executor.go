package engine

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
)

// Execute runs req on a reserved connection. It never touches the pool and
// never retries: a statement that cannot be created is reported as a
// create_statement failure, anything that goes wrong after that as an
// execute failure.
func Execute(ctx context.Context, conn datasource.Connection, req Request) Outcome {
	stmt, err := conn.CreateStatement(ctx)
	if err != nil {
		return &Failure{Stage: StageCreateStatement, Cause: err}
	}
	defer stmt.Close()

	switch req.Kind {
	case KindQuery:
		rs, err := stmt.ExecuteQuery(ctx, req.SQL)
		if err != nil {
			return &Failure{Stage: StageExecute, Cause: err}
		}
		return newQueryResult(rs)

	case KindUpdate:
		n, err := stmt.ExecuteUpdate(ctx, req.SQL)
		if err != nil {
			return &Failure{Stage: StageExecute, Cause: err}
		}
		return &UpdateResult{Count: n}

	default:
		return &Failure{Stage: StageExecute, Cause: fmt.Errorf("unknown request kind %s", req.Kind)}
	}
}
