package domain

import (
	"errors"
	"fmt"
)

// ErrClosed is returned for operations on a closed connection.
var ErrClosed = errors.New("bus: connection closed")

// NameResolutionError reports that a well-known name has no current owner,
// or that the ownership lookup itself failed. Subscribe and Unsubscribe
// surface it synchronously and never fall back to an unfiltered sender.
type NameResolutionError struct {
	Name string
	Err  error
}

func (e *NameResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot resolve name %q: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("name %q has no owner", e.Name)
}

func (e *NameResolutionError) Unwrap() error { return e.Err }

// InvalidFilterError reports a malformed subscription filter, such as a
// negative positional argument index or a missing handler.
type InvalidFilterError struct {
	Reason string
}

func (e *InvalidFilterError) Error() string { return "invalid filter: " + e.Reason }

// RegistrationError reports that the daemon rejected a match rule. The local
// match index is never modified when registration fails.
type RegistrationError struct {
	Rule string
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("daemon rejected match rule %q: %v", e.Rule, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }
