package rest

import "fmt"

// RequestError is a non-2xx response from the backend.
type RequestError struct {
	Status     int
	StatusText string
	// Message is the error body's message field when the backend
	// sent one, otherwise empty.
	Message string
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request failed: %d %s: %s", e.Status, e.StatusText, e.Message)
	}
	return fmt.Sprintf("request failed: %d %s", e.Status, e.StatusText)
}

// NetworkError means no response reached the client at all
// (DNS failure, timeout, connection refused, cancellation).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// PreconditionError rejects an unsafe call before any network I/O,
// such as an update or delete with no accumulated filters.
type PreconditionError struct {
	Op     string
	Table  string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s on %s rejected: %s", e.Op, e.Table, e.Reason)
}
