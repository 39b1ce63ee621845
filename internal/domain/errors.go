package domain

import (
	"errors"
	"fmt"
)

// Domain errors for git and search operations.
var (
	// ErrRepositoryNotFound indicates the specified path is not a valid Git repository.
	ErrRepositoryNotFound = errors.New("git repository not found at specified path")

	// ErrRefNotFound indicates the starting reference could not be resolved.
	ErrRefNotFound = errors.New("start reference not found in repository")

	// ErrEmptyHistory indicates the commit walk produced no commits.
	ErrEmptyHistory = errors.New("commit history is empty")

	// ErrStopWalk is returned by a walk callback to end the walk early.
	ErrStopWalk = errors.New("stop walk")
)

// FetchError reports a transport failure reaching the CI service for one
// commit. Retryable failures (network faults, rate limiting) are absorbed by
// the search as missing data; terminal failures (authentication, malformed
// requests) abort it.
type FetchError struct {
	// Commit is the revision the fetch was for.
	Commit string

	// Retryable marks transient failures where another attempt could succeed.
	Retryable bool

	// Err is the underlying transport error.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("fetch failed for commit %s (%s): %v", e.Commit, kind, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps err as a FetchError for the given commit.
func NewFetchError(commit string, retryable bool, err error) *FetchError {
	return &FetchError{Commit: commit, Retryable: retryable, Err: err}
}

// IsTerminalFetchError reports whether err is a non-retryable FetchError.
func IsTerminalFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && !fe.Retryable
}

// ConfigurationError reports an empty or self-contradictory criterion set.
// Searches reject it before any work is performed.
type ConfigurationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return "invalid search configuration: " + e.Reason
}

// NewConfigurationError builds a ConfigurationError from a format string.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
