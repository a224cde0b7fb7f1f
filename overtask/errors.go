// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overtask

import (
	"errors"
	"fmt"
)

// Error taxonomy. Typed errors below match these with errors.Is.
var (
	// ErrNotFound means the record is absent locally or remotely
	ErrNotFound = errors.New("not found")
	// ErrRemoteUnavailable means the backend could not be reached or answered with 5xx
	ErrRemoteUnavailable = errors.New("remote unavailable")
	// ErrRequestFailed means the backend rejected the request
	ErrRequestFailed = errors.New("request failed")
	// ErrSchema means a persisted record violates the current local schema
	ErrSchema = errors.New("schema error")
	// ErrValidation means a required field is empty or out of its domain
	ErrValidation = errors.New("validation error")
)

// RemoteError is returned by the remote client for every failed call
type RemoteError struct {
	Kind       error  // ErrNotFound, ErrRemoteUnavailable or ErrRequestFailed
	Op         string // e.g. "GET /tasks/{id}"
	StatusCode int    // 0 for transport failures
	Message    string // server-provided error text, if any
	Err        error  // underlying transport error, if any
}

func (e *RemoteError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %v (status %d): %s", e.Op, e.Kind, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s: %v (status %d)", e.Op, e.Kind, e.StatusCode)
	}
}

func (e *RemoteError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// SchemaError reports a persisted row that cannot be decoded into the current schema
type SchemaError struct {
	Collection string
	ID         string
	Err        error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error in %s/%s: %v", e.Collection, e.ID, e.Err)
}

func (e *SchemaError) Unwrap() []error { return []error{ErrSchema, e.Err} }

// ValidationError reports a field rejected before it reached the store
type ValidationError struct {
	Field string
	Rule  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Rule)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundf wraps ErrNotFound with a formatted description
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
