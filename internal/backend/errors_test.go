package backend

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{"transport", fmt.Errorf("%w: connection refused", ErrTransport), ErrorNetwork, true},
		{"server", &StatusError{StatusCode: 503}, ErrorServer, true},
		{"rate limit", &StatusError{StatusCode: 429}, ErrorRateLimit, true},
		{"bad request", &StatusError{StatusCode: 400}, ErrorValidation, false},
		{"not found", &StatusError{StatusCode: 404}, ErrorServer, false},
		{"conflict", &StatusError{StatusCode: 409}, ErrorServer, false},
		{"timeout", fmt.Errorf("attempt: %w", context.DeadlineExceeded), ErrorNetwork, true},
		{"aborted", context.Canceled, ErrorNetwork, true},
		{"invalid body", fmt.Errorf("%w: empty message", ErrInvalidResponse), ErrorValidation, false},
		{"other", errors.New("boom"), ErrorUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ec := Classify(tt.err)
			if ec.Type != tt.wantType || ec.Retryable != tt.retryable {
				t.Errorf("Classify() = %s/%v, want %s/%v", ec.Type, ec.Retryable, tt.wantType, tt.retryable)
			}
			if ec.UserMessage == "" || ec.TechnicalMessage == "" {
				t.Errorf("expected both messages to be set: %+v", ec)
			}
		})
	}
}

func TestSuggestionsForReturnsCopy(t *testing.T) {
	t.Parallel()

	s := SuggestionsFor(ErrorNetwork)
	s[0] = "changed"
	if SuggestionsFor(ErrorNetwork)[0] == "changed" {
		t.Error("suggestions table was modified through returned slice")
	}
	if len(SuggestionsFor("bogus")) == 0 {
		t.Error("expected unknown suggestions for unrecognized type")
	}
}

func TestParseContract(t *testing.T) {
	t.Parallel()

	if c, err := ParseContract(""); err != nil || c != ContractFlat {
		t.Errorf("empty contract: got %q, %v", c, err)
	}
	if c, err := ParseContract(" Nested "); err != nil || c != ContractNested {
		t.Errorf("nested contract: got %q, %v", c, err)
	}
	if _, err := ParseContract("xml"); err == nil {
		t.Error("expected error for unknown contract")
	}
}
