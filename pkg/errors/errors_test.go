package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", NewTransportError("http://x", errors.New("connection refused")), true},
		{"timeout", NewTransportError("http://x", context.DeadlineExceeded), true},
		{"canceled", NewTransportError("http://x", context.Canceled), false},
		{"500", NewStatusError("http://x", 500, ""), true},
		{"503", NewStatusError("http://x", 503, "503 Service Unavailable"), true},
		{"408", NewStatusError("http://x", 408, ""), true},
		{"429", NewStatusError("http://x", 429, ""), true},
		{"404", NewStatusError("http://x", 404, ""), false},
		{"400", NewStatusError("http://x", 400, ""), false},
		{"parse", Newf(ErrParse, "bad root"), false},
		{"wrapped transport", fmt.Errorf("fetching makes: %w", NewTransportError("http://x", errors.New("dns"))), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{NewTransportError("http://x", errors.New("reset")), "transport"},
		{NewStatusError("http://x", 502, ""), "http_status"},
		{Newf(ErrParse, "x"), "parse"},
		{&StoreError{Err: ErrIntegrity, Op: "upsert vehicle type", Key: "1/7"}, "integrity"},
		{&StoreError{Err: ErrStore, Op: "upsert make", Key: "1", Cause: errors.New("conn reset")}, "store"},
		{fmt.Errorf("%w: %w", ErrRunAborted, context.Canceled), "canceled"},
		{errors.New("other"), "unknown"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := NewStatusError("http://x/makes", 404, "")
	if got, want := err.Error(), "GET http://x/makes: HTTP 404 Not Found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrHTTPStatus) {
		t.Error("status error should match ErrHTTPStatus")
	}
	if errors.Is(err, ErrTransport) {
		t.Error("status error must not match ErrTransport")
	}
}

func TestStoreErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("duplicate key")
	err := &StoreError{Err: ErrStore, Op: "upsert make", Key: "42", Cause: cause}
	if !errors.Is(err, ErrStore) || !errors.Is(err, cause) {
		t.Errorf("StoreError should unwrap to both sentinel and cause: %v", err)
	}
}
