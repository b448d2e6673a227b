package errors

import (
	goerrors "errors"
	"fmt"
)

// New returns an error with the given message.
// It's a drop-in replacement for errors.New in the standard library so that
// callers only have to import one errors package.
func New(msg string) error {
	return goerrors.New(msg)
}

// ContextError annotates an error with the operation that produced it. The
// chained contexts read from the outermost operation inwards, e.g.
// "parse target config: read file: permission denied".
type ContextError struct {
	Context string
	Err     error
}

func (err ContextError) Error() string {
	return fmt.Sprintf("%s: %s", err.Context, err.Err)
}

// Unwrap returns the wrapped error so that stdlib errors.Is and errors.As
// see through the context chain.
func (err ContextError) Unwrap() error {
	return err.Err
}

// WithContext wraps `err` with a description of the operation that caused it.
func WithContext(err error, context string) error {
	return ContextError{Context: context, Err: err}
}

// RootCause unwraps `err` until it finds the innermost error.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(ContextError)
		if !ok {
			return err
		}
		err = ctxErr.Err
	}
}
