package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeNotFound,
				Message: "report not found",
			},
			want: "report not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeProcessingFailure,
				Message: "report generation failed",
				Cause:   errors.New("disk full"),
			},
			want: "report generation failed: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := ProcessingFailure(cause, "wrapped")

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(ProcessingFailure(cause), cause) = false, want true")
	}
}

func TestInvalidArgument(t *testing.T) {
	err := InvalidArgumentf("type", "unsupported report type %q", "weather")
	if err.Code != ErrCodeInvalidArgument {
		t.Errorf("InvalidArgumentf().Code = %v, want %v", err.Code, ErrCodeInvalidArgument)
	}
	if err.Field != "type" {
		t.Errorf("InvalidArgumentf().Field = %v, want type", err.Field)
	}
	if err.Message != `unsupported report type "weather"` {
		t.Errorf("InvalidArgumentf().Message = %v", err.Message)
	}
}

func TestConnectionExhausted(t *testing.T) {
	last := errors.New("dial tcp: connection refused")
	err := ConnectionExhausted(10, last)

	if !IsConnectionExhausted(err) {
		t.Fatalf("IsConnectionExhausted() = false, want true")
	}
	if !errors.Is(err, last) {
		t.Errorf("ConnectionExhausted should wrap the last attempt error")
	}
	if err.Message != "broker connection failed after 10 attempts" {
		t.Errorf("ConnectionExhausted().Message = %v", err.Message)
	}
}

func TestPredicates(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"invalid argument", InvalidArgument("id", "bad id"), IsInvalidArgument},
		{"not found", NotFound("missing"), IsNotFound},
		{"conflict", Conflict("dup"), IsConflict},
		{"transient", TransientUnavailable(cause, "broker down"), IsTransientUnavailable},
		{"processing", ProcessingFailure(cause, "handler failed"), IsProcessingFailure},
		{"exhausted", ConnectionExhausted(3, cause), IsConnectionExhausted},
		{"internal", Internal("oops"), IsInternal},
		{"wrapped in fmt", fmt.Errorf("outer: %w", NotFoundf("report %s", "x")), IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("predicate returned false for %v", tt.err)
			}
		})
	}
}

func TestPredicates_NonAppError(t *testing.T) {
	err := errors.New("plain")
	if IsNotFound(err) || IsInvalidArgument(err) || IsTransientUnavailable(err) {
		t.Error("plain errors should not match any code")
	}
	if GetCode(err) != "" {
		t.Errorf("GetCode(plain) = %q, want empty", GetCode(err))
	}
	if GetField(err) != "" {
		t.Errorf("GetField(plain) = %q, want empty", GetField(err))
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, ErrCodeInternal, "x") != nil {
		t.Error("Wrap(nil) should return nil")
	}

	cause := errors.New("redis: connection refused")
	err := Wrapf(cause, ErrCodeTransientUnavailable, "cache %s", "get")
	if err.Message != "cache get" {
		t.Errorf("Wrapf().Message = %v, want %v", err.Message, "cache get")
	}
	if GetCode(err) != ErrCodeTransientUnavailable {
		t.Errorf("GetCode() = %v, want %v", GetCode(err), ErrCodeTransientUnavailable)
	}
}
