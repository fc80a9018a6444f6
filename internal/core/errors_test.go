package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrNoPortAvailable(t *testing.T) {
	err := ErrNoPortAvailable(9001, 9010)

	if GetCategory(err) != ErrCatResource {
		t.Errorf("category = %v, want %v", GetCategory(err), ErrCatResource)
	}
	if !IsRetryable(err) {
		t.Error("port exhaustion should be retryable by the caller")
	}
	if err.Details["range_start"] != 9001 {
		t.Errorf("missing range detail: %v", err.Details)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("bind: address already in use")
	err := ErrLaunch("spawning runner").WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause to match with errors.Is")
	}

	var domErr *DomainError
	if !errors.As(err, &domErr) {
		t.Fatal("expected DomainError")
	}
	if domErr.Code != CodeLaunchFailed {
		t.Errorf("code = %v, want %v", domErr.Code, CodeLaunchFailed)
	}
}

func TestDomainErrorIs(t *testing.T) {
	a := ErrConflict(CodeRunnerActive, "workflow wf-1 already has an active runner")
	b := ErrConflict(CodeRunnerActive, "different message")

	if !errors.Is(a, b) {
		t.Error("errors with same category and code should match")
	}
	if errors.Is(a, ErrConflict(CodeStoreConflict, "x")) {
		t.Error("errors with different codes should not match")
	}
}

func TestGetCategoryUnknownError(t *testing.T) {
	if got := GetCategory(errors.New("plain")); got != ErrCatInternal {
		t.Errorf("category = %v, want %v", got, ErrCatInternal)
	}
}

func TestIsCategory(t *testing.T) {
	err := ErrNotFound("process record", "rec-1")
	if !IsCategory(err, ErrCatNotFound) {
		t.Error("expected not_found category")
	}
	if IsCategory(err, ErrCatConflict) {
		t.Error("unexpected conflict category")
	}
}
