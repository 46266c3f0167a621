package text

import (
	"errors"
	"fmt"
	"strconv"
)

// Error types for text protocol operations.
// These errors help clients determine the appropriate error handling strategy,
// particularly regarding connection management (close vs. reuse).

// ValidationError is returned when a request is rejected client-side before
// any network I/O: malformed key, oversized value, bad argument.
//
// Connection handling: no connection was involved
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Message
}

// ShouldCloseConnection returns false - nothing was sent
func (e *ValidationError) ShouldCloseConnection() bool {
	return false
}

// ClientError represents a CLIENT_ERROR response from memcached.
// The server detected invalid client input and may have discarded part of
// the request, so the stream position is unknown.
//
// Common causes:
//   - incr/decr on a non-numeric value
//   - Size mismatch in data block
//   - Line too long
//
// Connection handling: CLOSE connection
type ClientError struct {
	Message string
}

func (e *ClientError) Error() string {
	return "CLIENT_ERROR: " + e.Message
}

// ShouldCloseConnection returns true - client errors require closing connection
func (e *ClientError) ShouldCloseConnection() bool {
	return true
}

// ServerError represents a SERVER_ERROR response from memcached.
// The protocol state is still valid, the operation failed server-side.
//
// Common causes:
//   - Out of memory
//   - Object too large for cache
//
// Connection handling: Connection can be REUSED
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "SERVER_ERROR: " + e.Message
}

// ShouldCloseConnection returns false - server errors don't corrupt protocol state
func (e *ServerError) ShouldCloseConnection() bool {
	return false
}

// GenericError represents a generic ERROR response from memcached.
// Typically indicates an unknown command.
//
// Connection handling: CLOSE connection, protocol state is uncertain
type GenericError struct {
	Message string
}

func (e *GenericError) Error() string {
	return e.Message
}

// ShouldCloseConnection returns true - generic errors indicate protocol issues
func (e *GenericError) ShouldCloseConnection() bool {
	return true
}

// ResponseError is returned when the server reply does not match the grammar
// of the command that was sent. It carries the encoded request and the raw
// reply for diagnosis.
//
// When Cause is a ClientError, ServerError or GenericError, the server
// replied with an error line and Cause decides the connection handling.
// Otherwise the reply was fully framed and the connection can be reused.
type ResponseError struct {
	Message  string
	Request  []byte
	Response []byte
	Cause    error
}

func (e *ResponseError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = e.Cause.Error()
	}
	return fmt.Sprintf("response error: %s (request=%s response=%s)",
		msg, quoteTrim(e.Request), quoteTrim(e.Response))
}

// Unwrap returns the server error reply, if any
func (e *ResponseError) Unwrap() error {
	return e.Cause
}

// ShouldCloseConnection delegates to Cause, false for framed grammar mismatches
func (e *ResponseError) ShouldCloseConnection() bool {
	var c ErrorWithConnectionState
	if errors.As(e.Cause, &c) {
		return c.ShouldCloseConnection()
	}
	return false
}

// ParseError represents a reply that cannot be framed: the client cannot
// know where the message ends.
//
// Common causes:
//   - Invalid length in VALUE header
//   - Missing data block terminator
//   - Unexpected EOF inside a data block
//
// Connection handling: CLOSE connection
type ParseError struct {
	Message string
	Err     error // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "parse error: " + e.Message + ": " + e.Err.Error()
	}
	return "parse error: " + e.Message
}

// Unwrap returns the underlying error for error chain inspection
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - parse errors indicate corrupted state
func (e *ParseError) ShouldCloseConnection() bool {
	return true
}

// ConnectionError wraps underlying I/O errors from connection operations:
// dial failure, connection reset, unexpected EOF.
//
// Connection handling: Connection is already broken, CLOSE it
type ConnectionError struct {
	Op  string // Operation that failed (dial, read, write)
	Err error  // Underlying error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - connection errors mean connection is broken
func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// TimeoutError is returned when a read or write did not complete in time.
// The stream is no longer known to be at a message boundary.
//
// Connection handling: CLOSE connection
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// Timeout implements net.Error
func (e *TimeoutError) Timeout() bool {
	return true
}

// ShouldCloseConnection returns true - stream position is unknown
func (e *TimeoutError) ShouldCloseConnection() bool {
	return true
}

// ErrorWithConnectionState is an interface for errors that indicate
// whether the connection should be closed.
// Implemented by all protocol error types.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection is a helper function to determine if an error
// requires closing the connection.
//
// Returns true for:
//   - ConnectionError, TimeoutError, ParseError
//   - ClientError, GenericError (directly or as ResponseError cause)
//
// Returns false for:
//   - ValidationError, ServerError
//   - ResponseError for a framed grammar mismatch
//   - nil
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	// Unknown error type - be conservative and close connection
	return true
}

func quoteTrim(b []byte) string {
	const max = 128
	if len(b) > max {
		return strconv.Quote(string(b[:max])) + "..."
	}
	return strconv.Quote(string(b))
}
