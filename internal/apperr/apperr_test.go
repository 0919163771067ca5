package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsKind(t *testing.T) {
	err := Newf(NotFound, "account %s not found", "acc-1")
	if !IsKind(err, NotFound) {
		t.Error("IsKind(err, NotFound) = false")
	}
	if IsKind(err, Forbidden) {
		t.Error("IsKind(err, Forbidden) = true for a NotFound error")
	}
	if got, want := err.Error(), "account acc-1 not found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestIsKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("loading account: %w", New(Validation, "amount must not be zero"))
	if !IsKind(err, Validation) {
		t.Error("wrapped error lost its kind")
	}
	if !errors.Is(err, Validation) {
		t.Error("errors.Is does not match the kind")
	}
}

func TestIsKindPlainError(t *testing.T) {
	if IsKind(errors.New("boom"), Conflict) {
		t.Error("plain error matched a kind")
	}
	if IsKind(nil, Conflict) {
		t.Error("nil error matched a kind")
	}
}
