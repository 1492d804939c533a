package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("resolve action: %w", ErrInvalidTarget.WithDetail("target Orc not in combat"))

	if !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("errors.Is(%v, ErrInvalidTarget) = false", err)
	}
	if errors.Is(err, ErrCombatInactive) {
		t.Fatalf("errors.Is matched the wrong code")
	}
	if ErrInvalidTarget.Detail != "" {
		t.Fatalf("WithDetail mutated the predefined error: %q", ErrInvalidTarget.Detail)
	}
}

func TestAsAppError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   ErrorCode
		wantStatus int
	}{
		{"wrapped oracle", fmt.Errorf("generate: %w", ErrOracleUnavailable), CodeOracleUnavailable, http.StatusServiceUnavailable},
		{"combat inactive", ErrCombatInactive, CodeCombatInactive, http.StatusConflict},
		{"plain", errors.New("boom"), CodeUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AsAppError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", got.Code, tt.wantCode)
			}
			if got.HTTPStatus != tt.wantStatus {
				t.Errorf("status = %d, want %d", got.HTTPStatus, tt.wantStatus)
			}
		})
	}
}

func TestErrorStringIncludesDetailAndCause(t *testing.T) {
	err := Wrap(errors.New("redis: nil"), CodeInternalError, "lock lost").WithDetail("campaign c-1")
	want := "[1007] lock lost (campaign c-1): redis: nil"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrInternalError) {
		t.Fatal("wrapped error should match by code")
	}
}

func TestWithErrorKeepsCause(t *testing.T) {
	cause := errors.New("narrator timed out")
	err := fmt.Errorf("generate: %w", ErrOracleUnavailable.WithError(cause))

	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should reach the wrapped cause")
	}
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatal("errors.Is should still match by code")
	}
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Unwrap() != cause {
		t.Fatalf("Unwrap() = %v, want %v", appErr.Unwrap(), cause)
	}
	if ErrOracleUnavailable.Err != nil {
		t.Fatalf("WithError mutated the predefined error: %v", ErrOracleUnavailable.Err)
	}
}
