package completion

import (
	"errors"
	"fmt"

	"github.com/iishyfishyy/calais/internal/llm"
)

var (
	// ErrServiceUnavailable is matched by errors returned after every
	// attempt failed with a transient error.
	ErrServiceUnavailable = errors.New("the service is unavailable")

	// ErrCancelled is returned when the caller's context ends.
	ErrCancelled = errors.New("request cancelled")

	// ErrMaxTokens is returned when the response hit the token limit.
	ErrMaxTokens = errors.New("the response was cut off at the token limit")

	// ErrContentFiltered is returned when the service withheld the response.
	ErrContentFiltered = errors.New("the response was withheld by the content filter")

	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("stream closed")

	errStalled = errors.New("too many empty chunks")
	errIdle    = errors.New("no data received before the idle timeout")
)

// UnavailableError reports that every attempt failed with a retryable error.
type UnavailableError struct {
	Attempts int
	Err      error // last failure
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("the service is unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrServiceUnavailable }

// TerminalError reports a failure that retrying cannot fix.
type TerminalError struct {
	Kind llm.Kind
	Err  error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("request failed (%s): %v", e.Kind, e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }
