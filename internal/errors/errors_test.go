package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestStructuredErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		error    *StructuredError
		wantKind Kind
	}{
		{"bad input", NewBadInput("missing field"), KindBadInput},
		{"parse failure", NewParseFailure("no registry entry matched"), KindParseFailure},
		{"miner degraded", NewMinerDegraded(errors.New("queue closed")), KindMinerDegraded},
		{"storage unavailable", NewStorageUnavailable("insert_record", errors.New("lock timeout")), KindStorageUnavailable},
		{"cycle error", NewCycleError("volume_zscore", errors.New("insufficient buckets")), KindCycleError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.error.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", tt.error.Kind, tt.wantKind)
			}
			if tt.error.Message == "" {
				t.Error("Message should not be empty")
			}
		})
	}
}

func TestStructuredErrorWithDetails(t *testing.T) {
	err := NewBadInput("bad filter").WithDetails(map[string]interface{}{
		"field": "severity",
		"value": "nonsense",
	})

	details, ok := err.Details.(map[string]interface{})
	if !ok {
		t.Fatal("Details should be a map")
	}
	if details["field"] != "severity" {
		t.Errorf("Details[field] = %v, want 'severity'", details["field"])
	}
}

func TestStructuredErrorWithSuggestion(t *testing.T) {
	err := NewBadInput("bad filter").WithSuggestion("try again")
	if err.Suggestion != "try again" {
		t.Errorf("Suggestion = %v, want 'try again'", err.Suggestion)
	}
}

func TestStructuredErrorToJSON(t *testing.T) {
	err := NewBadInput("test message")
	got := err.ToJSON()

	if !strings.Contains(got, string(KindBadInput)) {
		t.Errorf("JSON should contain kind: %s", got)
	}
	if !strings.Contains(got, "test message") {
		t.Errorf("JSON should contain message: %s", got)
	}
}

func TestStructuredErrorUnwrap(t *testing.T) {
	cause := errors.New("lock timeout")
	err := NewStorageUnavailable("insert_record", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestStructuredErrorInterface(t *testing.T) {
	var err error = NewBadInput("test")

	errStr := err.Error()
	if !strings.Contains(errStr, string(KindBadInput)) {
		t.Errorf("Error() should contain kind: %s", errStr)
	}
}

func TestNewCycleErrorDetailsCarryStrategyName(t *testing.T) {
	err := NewCycleError("source_silence", errors.New("no sources seen"))
	details, ok := err.Details.(map[string]interface{})
	if !ok {
		t.Fatal("Details should be a map")
	}
	if details["strategy"] != "source_silence" {
		t.Errorf("Details[strategy] = %v, want 'source_silence'", details["strategy"])
	}
}
