package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrTransport     = errors.New("transport failure")
	ErrHTTPStatus    = errors.New("unexpected http status")
	ErrParse         = errors.New("malformed catalog document")
	ErrStore         = errors.New("store failure")
	ErrIntegrity     = errors.New("integrity violation")
	ErrRunInProgress = errors.New("ingestion run already in progress")
	ErrRunAborted    = errors.New("ingestion run aborted")
)

// Error pairs a sentinel with a human-readable message.
type Error struct {
	Err     error
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *Error {
	return &Error{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *Error {
	return &Error{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// FetchError describes a failed GET. Err is ErrTransport or ErrHTTPStatus.
type FetchError struct {
	Err        error
	URL        string
	StatusCode int
	Status     string
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s: HTTP %s", e.URL, e.Status)
	}
	return fmt.Sprintf("GET %s: %s: %v", e.URL, e.Err.Error(), e.Cause)
}

func (e *FetchError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NewTransportError(url string, cause error) *FetchError {
	return &FetchError{Err: ErrTransport, URL: url, Cause: cause}
}

func NewStatusError(url string, statusCode int, status string) *FetchError {
	if status == "" {
		status = fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode))
	}
	return &FetchError{Err: ErrHTTPStatus, URL: url, StatusCode: statusCode, Status: status}
}

// StoreError describes a failed upsert. Err is ErrIntegrity or ErrStore.
type StoreError struct {
	Err   error
	Op    string
	Key   string
	Cause error
}

func (e *StoreError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Key, e.Err.Error())
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Key, e.Err.Error(), e.Cause)
}

func (e *StoreError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// Retryable reports whether another attempt could plausibly succeed.
// Transport failures, 5xx, 408 and 429 are retryable; other statuses and
// everything else (parse errors included) are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	if errors.Is(fe.Err, ErrTransport) {
		return true
	}
	switch {
	case fe.StatusCode >= 500:
		return true
	case fe.StatusCode == http.StatusRequestTimeout, fe.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// Kind returns a short label for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled), errors.Is(err, ErrRunAborted):
		return "canceled"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrHTTPStatus):
		return "http_status"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrStore):
		return "store"
	default:
		return "unknown"
	}
}
