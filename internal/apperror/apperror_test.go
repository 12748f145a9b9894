package apperror

import (
	"errors"
	"strings"
	"testing"
)

func TestServiceErrorMatchesKind(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{name: "validation", err: Validation("op", "empty", "nothing selected"), target: ErrValidation, want: true},
		{name: "forbidden", err: Forbidden("op", "owner", "not yours"), target: ErrForbidden, want: true},
		{name: "not-found", err: NotFound("op", "missing", "gone"), target: ErrNotFound, want: true},
		{name: "storage", err: Storage("op", "query_failed", errors.New("disk")), target: ErrStorage, want: true},
		{name: "validation-is-not-not-found", err: Validation("op", "empty", "x"), target: ErrNotFound, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Fatalf("errors.Is = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStorageErrorHidesCause(t *testing.T) {
	cause := errors.New("database is locked")
	err := Storage("presentations.create_snapshot", "insert_failed", cause)

	if strings.Contains(err.Message(), "locked") {
		t.Fatalf("storage message leaked cause: %q", err.Message())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to remain reachable for logging")
	}
	if err.Code() != "presentations.create_snapshot.insert_failed" {
		t.Fatalf("unexpected code %q", err.Code())
	}
}

func TestErrorsAsExtractsServiceError(t *testing.T) {
	var wrapped error = Validation("profile.update_field", "invalid_field", "invalid field")
	var serviceErr *ServiceError
	if !errors.As(wrapped, &serviceErr) {
		t.Fatalf("expected ServiceError")
	}
	if serviceErr.Kind() != ErrValidation {
		t.Fatalf("unexpected kind %v", serviceErr.Kind())
	}
}
