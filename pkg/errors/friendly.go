package errors

import "fmt"

// FriendlyError is an error whose message is meant to be read by the user
// directly, without the raw error chain attached.
type FriendlyError struct {
	Message string
}

func (err FriendlyError) Error() string {
	return err.Message
}

// FriendlyMessage returns the user-facing message.
func (err FriendlyError) FriendlyMessage() string {
	return err.Message
}

// NewFriendlyError creates an error that will be shown to the user verbatim.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{Message: fmt.Sprintf(format, args...)}
}

type friendlier interface {
	FriendlyMessage() string
}

// GetPrintableMessage returns the message that should be shown to the user
// for `err`. Friendly errors are printed verbatim, anything else gets the
// full context chain.
func GetPrintableMessage(err error) string {
	if friendly, ok := err.(friendlier); ok {
		return friendly.FriendlyMessage()
	}
	if friendly, ok := RootCause(err).(friendlier); ok {
		return friendly.FriendlyMessage()
	}
	return err.Error()
}
