package sql

import (
	"errors"
	"testing"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/models"
)

func TestCheckValue(t *testing.T) {
	tests := []struct {
		name            string
		value           any
		expectInjection bool
	}{
		{"clean number string", "12345", false},
		{"clean words", "laptop computers", false},
		{"empty string", "", false},
		{"number", float64(5), false},
		{"boolean", true, false},
		{"nil", nil, false},
		{"classic OR", "' OR '1'='1", true},
		{"drop table", "'; DROP TABLE users--", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckValue("filter", tt.value)
			if tt.expectInjection {
				if result == nil {
					t.Fatalf("expected injection for %v", tt.value)
				}
				if result.Field != "filter" {
					t.Errorf("expected field 'filter', got %q", result.Field)
				}
				if result.Fingerprint == "" {
					t.Error("expected a fingerprint")
				}
				if !errors.Is(result, ErrInjectionDetected) {
					t.Error("expected result to match ErrInjectionDetected")
				}
			} else if result != nil {
				t.Errorf("expected no injection for %v, got fingerprint %s", tt.value, result.Fingerprint)
			}
		})
	}
}

func TestGuard_Check(t *testing.T) {
	g := NewGuard()

	if err := g.Check(models.Message{"payload": "'; DROP TABLE users--"}); err != nil {
		t.Errorf("payload is not guarded by default, got %v", err)
	}

	err := g.Check(models.Message{"filter": "' OR '1'='1"})
	if !errors.Is(err, ErrInjectionDetected) {
		t.Errorf("expected ErrInjectionDetected, got %v", err)
	}

	err = g.Check(models.Message{"projection": "*", "filter": "1=1; DELETE FROM Logs"})
	if !errors.Is(err, ErrMultipleStatements) {
		t.Errorf("expected ErrMultipleStatements, got %v", err)
	}

	if err := g.Check(models.Message{"filter": "laptop computers"}); err != nil {
		t.Errorf("expected clean filter to pass, got %v", err)
	}
}

func TestGuard_CustomFields(t *testing.T) {
	g := NewGuard("payload")

	if err := g.Check(models.Message{"payload": "x; DROP TABLE Sensors"}); !errors.Is(err, ErrMultipleStatements) {
		t.Errorf("expected ErrMultipleStatements, got %v", err)
	}
	if err := g.Check(models.Message{"filter": "' OR '1'='1"}); err != nil {
		t.Errorf("filter is not guarded, got %v", err)
	}
}

func TestGuard_NilAcceptsEverything(t *testing.T) {
	var g *Guard
	if err := g.Check(models.Message{"filter": "' OR '1'='1"}); err != nil {
		t.Errorf("expected nil guard to accept, got %v", err)
	}
}
