package merging

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/legendsaurav/scramer/server/core/segments"
)

// NoSegmentsFoundError is returned when a merge targets an empty or absent bucket
type NoSegmentsFoundError struct {
	Bucket segments.Bucket
}

func (e *NoSegmentsFoundError) Error() string {
	return fmt.Sprintf("no segments found for %s", e.Bucket)
}

// VariantsFailedError reports speed variants that could not be generated.
// The base output and every other variant of the same merge are intact.
type VariantsFailedError struct {
	Failed map[string]error
}

func (e *VariantsFailedError) Error() string {
	labels := make([]string, 0, len(e.Failed))
	for label := range e.Failed {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		parts = append(parts, fmt.Sprintf("%s: %v", label, e.Failed[label]))
	}
	return "variant generation failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the individual variant errors to errors.Is and errors.As
func (e *VariantsFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}

func IsNoSegmentsFoundError(err error) bool {
	var target *NoSegmentsFoundError
	return errors.As(err, &target)
}

func IsVariantsFailedError(err error) bool {
	var target *VariantsFailedError
	return errors.As(err, &target)
}

func NewNoSegmentsFoundError(b segments.Bucket) error {
	return &NoSegmentsFoundError{Bucket: b}
}

func NewVariantsFailedError(failed map[string]error) error {
	return &VariantsFailedError{Failed: failed}
}
