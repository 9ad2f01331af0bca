package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError rejects malformed input before any write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ReadinessError means the storage schema is missing columns the media
// pipeline writes to. Fatal at startup, recoverable with a user notice at
// runtime.
type ReadinessError struct {
	Table   string
	Missing []string
	Hint    string
}

func (e *ReadinessError) Error() string {
	return fmt.Sprintf("schema not ready: table %s is missing columns [%s]: %s",
		e.Table, strings.Join(e.Missing, ", "), e.Hint)
}

// ConnectivityError marks a transient infrastructure failure, e.g. the
// schema probe could not reach the database at all.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity: %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ExternalServiceError wraps a failed AI or transport call. The reply path
// logs it and skips the reply instead of surfacing raw detail to the user.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func External(service string, err error) *ExternalServiceError {
	return &ExternalServiceError{Service: service, Err: err}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsReadiness(err error) bool {
	var r *ReadinessError
	return errors.As(err, &r)
}

func IsConnectivity(err error) bool {
	var c *ConnectivityError
	return errors.As(err, &c)
}
