package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies adapter failures.
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindRateLimit   ErrorKind = "rate_limit"
	KindBadResponse ErrorKind = "bad_response"
	KindUnavailable ErrorKind = "unavailable"
	KindInternal    ErrorKind = "internal"
)

// Error is the typed failure every adapter returns.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" && e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Errorf builds an *Error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Classify turns any error into an *Error. Existing *Error values pass
// through unchanged; context errors stay detectable through errors.Is.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindUnavailable, Message: err.Error(), Cause: err}
	}

	return &Error{Kind: kindFromMessage(err.Error()), Message: err.Error(), Cause: err}
}

// KindForStatus maps an HTTP status code to an error kind.
func KindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code >= 500:
		return KindUnavailable
	default:
		return KindBadResponse
	}
}

// kindFromMessage is the fallback for SDKs that only surface error text.
func kindFromMessage(msg string) ErrorKind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "401"), strings.Contains(lower, "403"),
		strings.Contains(lower, "unauthorized"), strings.Contains(lower, "api key"),
		strings.Contains(lower, "permission"):
		return KindAuth
	case strings.Contains(lower, "429"), strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "quota"):
		return KindRateLimit
	case strings.Contains(lower, "500"), strings.Contains(lower, "502"),
		strings.Contains(lower, "503"), strings.Contains(lower, "overloaded"),
		strings.Contains(lower, "connection refused"), strings.Contains(lower, "no such host"):
		return KindUnavailable
	default:
		return KindBadResponse
	}
}
