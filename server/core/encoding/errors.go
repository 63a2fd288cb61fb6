package encoding

import (
	"errors"
	"fmt"
	"time"
)

// EncodingFailureError reports a failed encoder invocation
type EncodingFailureError struct {
	Op  string
	Err error
}

func (e *EncodingFailureError) Error() string {
	return fmt.Sprintf("encoding failed (%s): %v", e.Op, e.Err)
}

func (e *EncodingFailureError) Unwrap() error {
	return e.Err
}

// EncodingTimeoutError reports an encoder invocation killed after exceeding its bound
type EncodingTimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *EncodingTimeoutError) Error() string {
	return fmt.Sprintf("encoding timed out (%s) after %s", e.Op, e.Timeout)
}

// IsEncodingFailure reports whether err is or wraps an encoding failure or timeout
func IsEncodingFailure(err error) bool {
	var failure *EncodingFailureError
	return errors.As(err, &failure) || IsEncodingTimeout(err)
}

func IsEncodingTimeout(err error) bool {
	var timeout *EncodingTimeoutError
	return errors.As(err, &timeout)
}

func NewEncodingFailureError(op string, err error) error {
	return &EncodingFailureError{Op: op, Err: err}
}

func NewEncodingTimeoutError(op string, timeout time.Duration) error {
	return &EncodingTimeoutError{Op: op, Timeout: timeout}
}
