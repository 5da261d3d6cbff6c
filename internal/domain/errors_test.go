package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"invalid term", ErrInvalidTerm, ErrValidation},
		{"invalid amount", ErrInvalidAmount, ErrValidation},
		{"loan not found", ErrLoanNotFound, ErrNotFound},
		{"already completed", ErrLoanAlreadyCompleted, ErrStateConflict},
		{"invalid transition", ErrInvalidTransition, ErrStateConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.kind) {
				t.Errorf("%v should match kind %v", tt.err, tt.kind)
			}
			wrapped := fmt.Errorf("context: %w", tt.err)
			if !errors.Is(wrapped, tt.err) || !errors.Is(wrapped, tt.kind) {
				t.Errorf("wrapped %v lost its identity", tt.err)
			}
		})
	}
}

func TestStorageError(t *testing.T) {
	cause := errors.New("connection reset")
	err := StorageError(cause)

	if !errors.Is(err, ErrStorage) {
		t.Errorf("StorageError should match ErrStorage")
	}
	if !errors.Is(err, cause) {
		t.Errorf("StorageError should keep the cause")
	}
	if StorageError(nil) != nil {
		t.Errorf("StorageError(nil) should be nil")
	}
	if got := StorageError(ErrLoanNotFound); got != ErrLoanNotFound {
		t.Errorf("domain errors should pass through, got %v", got)
	}
	if IsDomainError(cause) {
		t.Errorf("plain error should not be a domain error")
	}
}

func TestParseOverduePeriodPolicy(t *testing.T) {
	for in, want := range map[string]OverduePeriodPolicy{
		"":         OverduePolicyFixed,
		"fixed":    OverduePolicyFixed,
		"calendar": OverduePolicyCalendar,
	} {
		got, err := ParseOverduePeriodPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseOverduePeriodPolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseOverduePeriodPolicy("lunar"); err == nil {
		t.Errorf("expected error for unknown policy")
	}
}
