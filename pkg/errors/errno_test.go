package errors

import (
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"
)

func TestMakeCode(t *testing.T) {
	tests := []struct {
		service  int
		category int
		sequence int
		expected int
	}{
		{0, 0, 0, 0},
		{0, 1, 1, 1001},
		{20, 10, 1, 2010001},
		{20, 6, 1, 2006001},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d_%d", tt.service, tt.category, tt.sequence), func(t *testing.T) {
			got := MakeCode(tt.service, tt.category, tt.sequence)
			if got != tt.expected {
				t.Errorf("MakeCode(%d, %d, %d) = %d, want %d",
					tt.service, tt.category, tt.sequence, got, tt.expected)
			}
			s, c, q := ParseCode(got)
			if s != tt.service || c != tt.category || q != tt.sequence {
				t.Errorf("ParseCode(%d) = (%d, %d, %d)", got, s, c, q)
			}
		})
	}
}

func TestErrnoError(t *testing.T) {
	if got := ErrTAInvalidRequest.Error(); got != "errno 2001001: Invalid request format" {
		t.Errorf("Error() = %q", got)
	}

	cause := fmt.Errorf("index.db: no such file")
	err := ErrResourceUnavailable.WithCause(cause)
	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the cause")
	}
	if err.Code != ErrResourceUnavailable.Code {
		t.Error("WithCause should preserve the code")
	}
	if ErrResourceUnavailable.Cause() != nil {
		t.Error("WithCause must not mutate the registered errno")
	}
}

func TestErrnoWithMessage(t *testing.T) {
	err := ErrTAInvalidRequest.WithMessagef("field %s is invalid", "question")
	if err.MessageEN != "field question is invalid" {
		t.Errorf("WithMessagef should set MessageEN, got %q", err.MessageEN)
	}
	if err.Code != ErrTAInvalidRequest.Code {
		t.Error("WithMessage should preserve the code")
	}
	if got := err.Message("zh"); got != "请求格式无效" {
		t.Errorf("Message(zh) = %q", got)
	}
}

func TestErrnoStatus(t *testing.T) {
	tests := []struct {
		err  *Errno
		http int
		grpc codes.Code
	}{
		{ErrResourceUnavailable, http.StatusServiceUnavailable, codes.Unavailable},
		{ErrInferenceOverloaded, http.StatusServiceUnavailable, codes.ResourceExhausted},
		{ErrQueryTimeout, http.StatusGatewayTimeout, codes.DeadlineExceeded},
		{ErrRouteNotFound, http.StatusNotFound, codes.NotFound},
		{&Errno{Code: 42}, http.StatusInternalServerError, codes.Internal},
	}

	for _, tt := range tests {
		if got := tt.err.HTTPStatus(); got != tt.http {
			t.Errorf("%d: HTTPStatus() = %d, want %d", tt.err.Code, got, tt.http)
		}
		if got := tt.err.GRPCStatus(); got != tt.grpc {
			t.Errorf("%d: GRPCStatus() = %v, want %v", tt.err.Code, got, tt.grpc)
		}
	}
}

func TestIsAndCodeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("acquire embedder: %w", ErrResourceUnavailable.WithCause(fmt.Errorf("boom")))

	if !IsCode(wrapped, ErrResourceUnavailable.Code) {
		t.Error("IsCode should see through fmt wrapping")
	}
	if got := GetCode(wrapped); got != ErrResourceUnavailable.Code {
		t.Errorf("GetCode() = %d", got)
	}
	if got := GetCode(fmt.Errorf("plain error")); got != -1 {
		t.Errorf("GetCode() for plain error = %d, want -1", got)
	}
	if !ErrQueryTimeout.WithMessage("x").Is(ErrQueryTimeout) {
		t.Error("Is() should match on code")
	}
}

func TestFromError(t *testing.T) {
	if got := FromError(nil); got != nil {
		t.Error("FromError(nil) should return nil")
	}

	err := ErrTAInvalidRequest.WithMessage("test")
	if got := FromError(err); got != err {
		t.Error("FromError should return Errno as-is")
	}

	plainErr := fmt.Errorf("plain error")
	result := FromError(plainErr)
	if result.Code != ErrInternal.Code {
		t.Errorf("FromError(plain) should wrap as ErrInternal, got code %d", result.Code)
	}
	if result.Unwrap() != plainErr {
		t.Error("FromError should preserve the cause")
	}
}

func TestRegistry(t *testing.T) {
	if e, ok := Lookup(ErrQueryFailed.Code); !ok || e != ErrQueryFailed {
		t.Error("Lookup should find registered errno")
	}
	if _, ok := Lookup(9999999); ok {
		t.Error("Lookup should return false for non-existing code")
	}
	if e, ok := Lookup(ErrServiceUnavailable.Code); !ok || e.HTTPStatus() != http.StatusServiceUnavailable {
		t.Error("Lookup should find common errno")
	}

	defer func() {
		if recover() == nil {
			t.Error("registering a duplicate code should panic")
		}
	}()
	Register(&Errno{Code: ErrQueryFailed.Code, MessageEN: "dup"})
}
