package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	if !errors.Is(ErrInvalidRating, ErrInvalidInput) {
		t.Fatalf("ErrInvalidRating should be an invalid input error")
	}

	err := fmt.Errorf("add movie: %w", External("metadata", "timed out", context.DeadlineExceeded))
	if !errors.Is(err, ErrExternalService) {
		t.Fatalf("expected ErrExternalService in chain: %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected cause to stay reachable: %v", err)
	}
	reason, ok := ExternalReason(err)
	if !ok || reason != "timed out" {
		t.Fatalf("ExternalReason = %q, %v", reason, ok)
	}

	if _, ok := ExternalReason(InvalidInput("title is required")); ok {
		t.Fatalf("invalid input should not carry an external reason")
	}
}
