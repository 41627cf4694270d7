package sql

import (
	"errors"
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/models"
)

// ErrInjectionDetected is matched by every InjectionCheckResult.
var ErrInjectionDetected = errors.New("possible SQL injection")

// InjectionCheckResult describes a message field that libinjection flagged.
type InjectionCheckResult struct {
	Field       string // message field, e.g. "filter"
	Fingerprint string // libinjection fingerprint of the detected pattern
	Value       string
}

func (r *InjectionCheckResult) Error() string {
	return fmt.Sprintf("%s in msg.%s (fingerprint %s)", ErrInjectionDetected, r.Field, r.Fingerprint)
}

func (r *InjectionCheckResult) Is(target error) bool {
	return target == ErrInjectionDetected
}

// CheckValue runs libinjection over a field value. Only strings are checked;
// numbers and booleans are rendered by the builder and cannot carry SQL.
func CheckValue(field string, value any) *InjectionCheckResult {
	s, ok := value.(string)
	if !ok || s == "" {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(s)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		Field:       field,
		Fingerprint: string(fingerprint),
		Value:       s,
	}
}

// DefaultGuardedFields are the message fields spliced verbatim into
// generated SQL.
var DefaultGuardedFields = []string{models.FieldFilter, models.FieldProjection}

// Guard rejects messages whose SQL fragments stack statements or look like
// an injection attempt.
type Guard struct {
	fields []string
}

// NewGuard creates a guard over fields, or DefaultGuardedFields when none are given.
func NewGuard(fields ...string) *Guard {
	if len(fields) == 0 {
		fields = DefaultGuardedFields
	}
	return &Guard{fields: fields}
}

// Check returns the first problem found in msg, or nil. A nil Guard accepts
// everything.
func (g *Guard) Check(msg models.Message) error {
	if g == nil {
		return nil
	}
	for _, field := range g.fields {
		v, ok := msg[field]
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			if err := CheckSingleStatement(s); err != nil {
				return fmt.Errorf("msg.%s: %w", field, err)
			}
		}
		if result := CheckValue(field, v); result != nil {
			return result
		}
	}
	return nil
}
