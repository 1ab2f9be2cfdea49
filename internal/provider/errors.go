package provider

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a call to an external service failed.
type FailureKind string

const (
	FailureConfig    FailureKind = "config"    // credential missing, no request sent
	FailureTransport FailureKind = "transport" // connection error
	FailureTimeout   FailureKind = "timeout"
	FailureStatus    FailureKind = "status" // non-success HTTP status
	FailureSchema    FailureKind = "schema" // response body missing expected fields
)

// CallError is returned by every service client in this package.
type CallError struct {
	Service    string
	Kind       FailureKind
	StatusCode int    // FailureStatus only
	Message    string // error message embedded in the response body, if any
	Err        error
}

func (e *CallError) Error() string {
	switch e.Kind {
	case FailureStatus:
		if e.Message != "" {
			return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, e.Message)
		}
		return fmt.Sprintf("%s: status %d", e.Service, e.StatusCode)
	case FailureConfig:
		return fmt.Sprintf("%s: %s", e.Service, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Service, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Service, e.Kind, e.Message)
}

func (e *CallError) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or "" if err is not a *CallError.
func KindOf(err error) FailureKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
