package segments

import (
	"errors"
	"fmt"
)

// StorageFailure reports a filesystem create or write failure. Retained is
// set when the payload that could not be stored was kept on disk for
// inspection.
type StorageFailure struct {
	Op       string
	Path     string
	Err      error
	Retained string
}

func (e *StorageFailure) Error() string {
	return fmt.Sprintf("storage failure: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageFailure) Unwrap() error {
	return e.Err
}

// ReservedNameError is returned when a segment would shadow a merge output
type ReservedNameError struct {
	Filename string
}

func (e *ReservedNameError) Error() string {
	return fmt.Sprintf("segment name %q is reserved for merge outputs", e.Filename)
}

// InvalidDiscriminatorError is returned for a numeric discriminator that does
// not fit the padding width and would break capture ordering
type InvalidDiscriminatorError struct {
	Discriminator string
	Width         int
}

func (e *InvalidDiscriminatorError) Error() string {
	return fmt.Sprintf("numeric segment %q exceeds %d digits", e.Discriminator, e.Width)
}

func IsStorageFailure(err error) bool {
	var target *StorageFailure
	return errors.As(err, &target)
}

func IsReservedNameError(err error) bool {
	var target *ReservedNameError
	return errors.As(err, &target)
}

func IsInvalidDiscriminatorError(err error) bool {
	var target *InvalidDiscriminatorError
	return errors.As(err, &target)
}

// RetainedPayload returns where the payload of a failed store was kept, if anywhere
func RetainedPayload(err error) string {
	var target *StorageFailure
	if errors.As(err, &target) {
		return target.Retained
	}
	return ""
}

func NewStorageFailure(op, path string, err error) error {
	return &StorageFailure{Op: op, Path: path, Err: err}
}

func NewReservedNameError(filename string) error {
	return &ReservedNameError{Filename: filename}
}

func NewInvalidDiscriminatorError(discriminator string, width int) error {
	return &InvalidDiscriminatorError{Discriminator: discriminator, Width: width}
}
