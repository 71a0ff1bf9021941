package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"unicode/utf8"
)

// Server error codes carried in the {"error_code", "message"} body.
const (
	CodeUserNotFound         = 1000
	CodeWeakPassword         = 1001
	CodePasswordMismatch     = 1002
	CodeVerificationResend   = 1003
	CodeEmailTaken           = 1004
	CodeUsernameTaken        = 1005
	CodeEmailAlreadyVerified = 1006
	CodeVerificationNotFound = 1007
	CodeInvalidSession       = 1008
	CodeRecoveryExpired      = 1009
	CodeInvalidAttribute     = 1010
	CodeUserExists           = 1011
)

var codeMessages = map[int]string{
	CodeUserNotFound:         "user not found",
	CodeWeakPassword:         "password must be at least 8 characters and contain a lowercase letter, an uppercase letter and a digit",
	CodePasswordMismatch:     "passwords do not match",
	CodeVerificationResend:   "verification must be sent again",
	CodeEmailTaken:           "email is already registered",
	CodeUsernameTaken:        "username is already taken",
	CodeEmailAlreadyVerified: "email is already verified",
	CodeVerificationNotFound: "verification not found",
	CodeInvalidSession:       "invalid session",
	CodeRecoveryExpired:      "password recovery has expired",
	CodeInvalidAttribute:     "invalid attribute",
	CodeUserExists:           "user already exists",
}

// NetworkError means the request never produced an HTTP response: no route,
// timeout, connection reset or a canceled context.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// HTTPError is a non-2xx response. Code and Message are filled from the
// server's error payload when it has one.
type HTTPError struct {
	Status  int
	Code    int
	Message string
	Body    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("http %d", e.Status)
}

// UserMessage returns a human-readable description of the failure.
func (e *HTTPError) UserMessage() string {
	if msg, ok := codeMessages[e.Code]; ok {
		return msg
	}
	if e.Message != "" {
		return e.Message
	}
	if text := http.StatusText(e.Status); text != "" {
		return text
	}
	return e.Error()
}

// DecodeError means a response body could not be parsed.
type DecodeError struct {
	Err  error
	Body string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsFallbackEligible reports whether a read that failed with err may be
// served from cache instead.
func IsFallbackEligible(err error) bool {
	var ne *NetworkError
	var he *HTTPError
	return errors.As(err, &ne) || errors.As(err, &he)
}

const maxErrorBody = 4 << 10

func newHTTPError(status int, body []byte) *HTTPError {
	e := &HTTPError{Status: status, Body: truncate(string(body), maxErrorBody)}
	var payload struct {
		Code    int    `json:"error_code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		e.Code = payload.Code
		e.Message = payload.Message
	}
	return e
}

// truncate cuts s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
