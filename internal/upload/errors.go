package upload

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code identifies why an upload was rejected.
type Code string

const (
	CodeTimeout        Code = "TIMEOUT"
	CodeServerError    Code = "SERVER_ERROR"
	CodeMiscBadRequest Code = "MISC_BAD_REQUEST"
	CodeInvalidAPIKey  Code = "INVALID_API_KEY"
	CodeEmptyFile      Code = "EMPTY_FILE"
	CodeDuplicate      Code = "DUPLICATE"
)

// NoStatus stands for "no response received" (transport failure, timeout).
const NoStatus = 0

// UploadError is the only error type produced by Send and Do.
type UploadError struct {
	Code      Code
	Retryable bool
	// Status is the HTTP status code, or NoStatus when no response arrived.
	Status       int
	ResponseText string
	Err          error
}

func (e *UploadError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Status != NoStatus {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.ResponseText != "" {
		fmt.Fprintf(&b, ", body: %s", e.ResponseText)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *UploadError) Unwrap() error { return e.Err }

// AsUploadError extracts an *UploadError from err's chain.
func AsUploadError(err error) (*UploadError, bool) {
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// IsRetryable reports whether a failed attempt with the given status may be retried.
// Statuses below 400 only reach here when the server answered with something other
// than 2xx; they are treated as transient, like no response at all.
func IsRetryable(status int) bool {
	switch {
	case status == NoStatus:
		return true
	case status < 400:
		return true
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	}
	return false
}

// Classify turns a non-2xx response into an UploadError. Retryable always comes
// from IsRetryable; the code only refines the diagnosis.
func Classify(status int, body string) *UploadError {
	return &UploadError{
		Code:         codeFor(status, body),
		Retryable:    IsRetryable(status),
		Status:       status,
		ResponseText: body,
	}
}

func codeFor(status int, body string) Code {
	switch status {
	case NoStatus, http.StatusRequestTimeout:
		return CodeTimeout
	case http.StatusUnauthorized:
		return CodeInvalidAPIKey
	case http.StatusConflict:
		return CodeDuplicate
	case http.StatusUnprocessableEntity:
		if strings.Contains(strings.ToLower(body), "empty") {
			return CodeEmptyFile
		}
		return CodeMiscBadRequest
	}
	if IsRetryable(status) {
		return CodeServerError
	}
	return CodeMiscBadRequest
}

// timeoutError wraps a transport-level failure.
func timeoutError(cause error) *UploadError {
	return &UploadError{
		Code:      CodeTimeout,
		Retryable: IsRetryable(NoStatus),
		Status:    NoStatus,
		Err:       cause,
	}
}
