package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/models"
)

// Operation is the statement a query or mutation node builds.
type Operation string

const (
	OpSelect Operation = "select"
	OpCount  Operation = "count"
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Builder errors. Nodes log these as warnings; no request is run.
var (
	ErrNoTable               = errors.New("no table specified")
	ErrUnrecognisedOperation = errors.New("unrecognised operation")
	ErrNoFilter              = errors.New("no msg.filter specified")
	ErrNoQuery               = errors.New("no query defined")
	ErrInvalidPayload        = errors.New("msg.payload cannot be used as SQL")
)

// IsQueryOperation reports whether op is handled by a query node.
func IsQueryOperation(op Operation) bool {
	return op == OpSelect || op == OpCount
}

// IsMutationOperation reports whether op is handled by a mutation node.
func IsMutationOperation(op Operation) bool {
	return op == OpInsert || op == OpUpdate || op == OpDelete
}

// BuildQuery builds a select or count over table. A missing or falsy filter
// (null, false, zero, NaN or "") adds no WHERE clause; a projection defaults to *.
func BuildQuery(op Operation, table string, msg models.Message) (Request, error) {
	if table == "" {
		return Request{}, ErrNoTable
	}

	selector := ""
	if !isFalsy(msg[models.FieldFilter]) {
		filter, _ := msg.String(models.FieldFilter)
		selector = "where " + filter
	}

	switch op {
	case OpSelect:
		projection, ok := msg.String(models.FieldProjection)
		if !ok || projection == "" {
			projection = "*"
		}
		return Request{Kind: KindQuery, SQL: "SELECT " + projection + " FROM " + table + " " + selector}, nil
	case OpCount:
		return Request{Kind: KindQuery, SQL: "SELECT count(*) FROM " + table + " " + selector}, nil
	default:
		return Request{}, ErrUnrecognisedOperation
	}
}

// isFalsy reports whether a decoded JSON value counts as unset.
func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == ""
	case float64:
		return t == 0 || math.IsNaN(t)
	case float32:
		return t == 0 || math.IsNaN(float64(t))
	case int:
		return t == 0
	case int64:
		return t == 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	}
	return false
}

// BuildMutation builds an insert, update or delete on table.
//
// Update and delete require msg.filter to be present. An empty filter is
// allowed and yields no WHERE clause; an absent (or null) one is rejected
// with ErrNoFilter.
func BuildMutation(op Operation, table string, msg models.Message) (Request, error) {
	if table == "" {
		return Request{}, ErrNoTable
	}

	if op == OpInsert {
		values, err := formatValues(msg.Payload())
		if err != nil {
			return Request{}, err
		}
		return Request{Kind: KindUpdate, SQL: "INSERT INTO " + table + " VALUES " + values}, nil
	}

	filter, ok := msg.String(models.FieldFilter)
	if !ok {
		return Request{}, ErrNoFilter
	}
	selector := ""
	if filter != "" {
		selector = "where " + filter
	}

	switch op {
	case OpUpdate:
		set, err := formatAssignments(msg.Payload())
		if err != nil {
			return Request{}, err
		}
		return Request{Kind: KindUpdate, SQL: "UPDATE " + table + " SET " + set + " " + selector}, nil
	case OpDelete:
		return Request{Kind: KindUpdate, SQL: "DELETE FROM " + table + " " + selector}, nil
	default:
		return Request{}, ErrUnrecognisedOperation
	}
}

// BuildSQL wraps rendered freeform SQL as a query.
func BuildSQL(sql string) (Request, error) {
	if strings.TrimSpace(sql) == "" {
		return Request{}, ErrNoQuery
	}
	return Request{Kind: KindQuery, SQL: sql}, nil
}

// formatValues renders an insert payload. A string is used verbatim, a list
// becomes (v1, v2) and a list of lists becomes (..), (..).
func formatValues(payload any) (string, error) {
	switch p := payload.(type) {
	case nil:
		return "", fmt.Errorf("%w: no payload", ErrInvalidPayload)
	case string:
		return p, nil
	case []any:
		if len(p) == 0 {
			return "", fmt.Errorf("%w: empty list", ErrInvalidPayload)
		}
		if _, nested := p[0].([]any); nested {
			tuples := make([]string, len(p))
			for i, row := range p {
				r, ok := row.([]any)
				if !ok {
					return "", fmt.Errorf("%w: mixed rows and values", ErrInvalidPayload)
				}
				t, err := formatTuple(r)
				if err != nil {
					return "", err
				}
				tuples[i] = t
			}
			return strings.Join(tuples, ", "), nil
		}
		return formatTuple(p)
	case map[string]any:
		return "", fmt.Errorf("%w: insert needs a list of values", ErrInvalidPayload)
	default:
		lit, err := FormatLiteral(p)
		if err != nil {
			return "", err
		}
		return "(" + lit + ")", nil
	}
}

func formatTuple(values []any) (string, error) {
	parts := make([]string, len(values))
	for i, v := range values {
		lit, err := FormatLiteral(v)
		if err != nil {
			return "", err
		}
		parts[i] = lit
	}
	return "(" + strings.Join(parts, ", ") + ")", nil
}

// formatAssignments renders an update payload. A string is used verbatim and
// an object becomes "k1 = v1, k2 = v2" in key order.
func formatAssignments(payload any) (string, error) {
	switch p := payload.(type) {
	case nil:
		return "", fmt.Errorf("%w: no payload", ErrInvalidPayload)
	case string:
		return p, nil
	case map[string]any:
		if len(p) == 0 {
			return "", fmt.Errorf("%w: empty object", ErrInvalidPayload)
		}
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, len(keys))
		for i, k := range keys {
			lit, err := FormatLiteral(p[k])
			if err != nil {
				return "", err
			}
			parts[i] = k + " = " + lit
		}
		return strings.Join(parts, ", "), nil
	default:
		return "", fmt.Errorf("%w: update needs a string or an object", ErrInvalidPayload)
	}
}

// FormatLiteral renders a JSON-compatible scalar as a SQL literal.
func FormatLiteral(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case json.Number:
		return x.String(), nil
	case time.Time:
		return "'" + x.UTC().Format("2006-01-02 15:04:05.000") + "'", nil
	default:
		return "", fmt.Errorf("%w: unsupported value %T", ErrInvalidPayload, v)
	}
}
