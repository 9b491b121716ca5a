package backup

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure. Only dump_retryable failures are
// ever retried; everything else terminates the run.
type Kind string

const (
	KindConnectionFailure Kind = "connection_failure"
	KindToolNotFound      Kind = "tool_not_found"
	KindDumpRetryable     Kind = "dump_retryable"
	KindDumpFatal         Kind = "dump_fatal"
	KindEmptyArtifact     Kind = "empty_artifact"
	KindUploadFailure     Kind = "upload_failure"
	KindTimedOut          Kind = "timed_out"
)

// Error is a classified failure from one pipeline stage. Message is safe
// to show to callers; Err carries the raw cause for diagnostics.
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt of the same stage may succeed.
func (e *Error) Retryable() bool { return e.Kind == KindDumpRetryable }

// Timeout reports whether the failure was a budget expiry.
func (e *Error) Timeout() bool { return e.Kind == KindTimedOut }

// Details returns the raw cause text, if any.
func (e *Error) Details() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// AsError extracts a classified pipeline error from an error chain.
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
