package engine

import (
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
)

// Kind selects how a request's SQL is executed.
type Kind int

const (
	KindQuery Kind = iota + 1
	KindUpdate
)

func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindUpdate:
		return "update"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Request is a fully rendered SQL statement and how to run it.
type Request struct {
	Kind Kind
	SQL  string
}

// Stage names the step of a run at which a failure happened.
type Stage string

const (
	StageReserve         Stage = "reserve"
	StageCreateStatement Stage = "create_statement"
	StageExecute         Stage = "execute"
	StageRelease         Stage = "release"
)

var (
	ErrReservation       = errors.New("connection reservation failed")
	ErrStatementCreation = errors.New("statement creation failed")
	ErrExecution         = errors.New("statement execution failed")
	ErrRelease           = errors.New("connection release failed")
)

func (s Stage) sentinel() error {
	switch s {
	case StageReserve:
		return ErrReservation
	case StageCreateStatement:
		return ErrStatementCreation
	case StageRelease:
		return ErrRelease
	default:
		return ErrExecution
	}
}

// Outcome is the result of executing a Request: *QueryResult, *UpdateResult
// or *Failure.
type Outcome interface {
	outcome()
}

// QueryResult holds the rows returned by a query, in order.
type QueryResult struct {
	Columns []string
	Rows    []map[string]any
}

// UpdateResult holds the affected-row count of an update.
type UpdateResult struct {
	Count int64
}

// Failure records the stage that failed and why. It matches the stage's
// sentinel with errors.Is and unwraps to Cause.
type Failure struct {
	Stage Stage
	Cause error
}

func (*QueryResult) outcome()  {}
func (*UpdateResult) outcome() {}
func (*Failure) outcome()      {}

func (f *Failure) Error() string {
	if f.Cause == nil {
		return f.Stage.sentinel().Error()
	}
	return fmt.Sprintf("%s: %v", f.Stage.sentinel(), f.Cause)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

func (f *Failure) Is(target error) bool {
	return target == f.Stage.sentinel()
}

func newQueryResult(rs *datasource.ResultSet) *QueryResult {
	if rs == nil {
		return &QueryResult{Rows: []map[string]any{}}
	}
	rows := rs.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	return &QueryResult{Columns: rs.Columns, Rows: rows}
}
