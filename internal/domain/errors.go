package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrRelayUnreachable   = errors.New("relay unreachable")
	ErrNegotiationFailure = errors.New("negotiation failure")
	ErrMalformedMessage   = errors.New("malformed message")
)

// OpError attaches the failing operation to one of the error kinds above.
type OpError struct {
	Op      string
	Err     error
	Details string
}

func (e *OpError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error, details string) *OpError {
	return &OpError{Op: op, Err: err, Details: details}
}

// WrapError wraps cause under kind so that errors.Is matches both.
func WrapError(op string, kind, cause error) error {
	if cause == nil {
		return nil
	}
	return &OpError{Op: op, Err: fmt.Errorf("%w: %w", kind, cause)}
}
