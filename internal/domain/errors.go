package domain

import (
	"errors"
	"strings"
)

// Sentinel errors for the domain layer.
var (
	ErrValidation     = errors.New("domain: validation failed")
	ErrServerReported = errors.New("domain: server reported failure")
	ErrTransport      = errors.New("domain: transport failure")
	ErrDecode         = errors.New("domain: undecodable response")
)

// ValidationError lists the required fields that were missing or malformed
// when an operation was requested. No gateway call is made.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing or invalid fields: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ServerError is a failure the gateway reported itself: a decodable body
// with success=false, missing expected fields, or a non-2xx status that
// carried an error string.
type ServerError struct {
	Op      string
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return e.Op + ": server reported failure"
	}
	return e.Op + ": " + e.Message
}

func (e *ServerError) Unwrap() error { return ErrServerReported }

// TransportError is a failure to reach the gateway or to read its answer.
// The detail is kept for logs only and never shown to the operator.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }
