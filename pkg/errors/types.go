package errors

import (
	"fmt"
)

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// BadSourceError represents a source specification that can't be used for
// the requested operation, such as caching a control-local file for
// transfer to itself. It's a caller error, not a transfer failure.
type BadSourceError struct {
	Source string
	Reason string
}

func (err BadSourceError) Error() string {
	return fmt.Sprintf("invalid source %q: %s", err.Source, err.Reason)
}

// InvalidCachedirError represents a per-call cachedir override that would
// resolve outside the managed cache tree.
type InvalidCachedirError struct {
	Override string
}

func (err InvalidCachedirError) Error() string {
	return fmt.Sprintf("cachedir override %q escapes the cache root", err.Override)
}

// UnsafeRemovalError represents a request to recursively delete a remote
// path that fails the cache containment checks. Refusing the removal is
// always correct, so this error is raised before any remote command runs.
type UnsafeRemovalError struct {
	Path   string
	Reason string
}

func (err UnsafeRemovalError) Error() string {
	return fmt.Sprintf("refusing to remove %q: %s", err.Path, err.Reason)
}

// UnresolvedConflictError represents a remote node that conflicted with a
// pending transfer and could not be cleared. It's distinct from a plain
// send failure so that callers can tell "the target rejected the write"
// apart from "the target state was inconsistent and we couldn't fix it".
type UnresolvedConflictError struct {
	Path string
}

func (err UnresolvedConflictError) Error() string {
	return fmt.Sprintf("path %q contains files which were not removed", err.Path)
}
