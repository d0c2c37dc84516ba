package triage

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MinDescriptionLen is the shortest accepted description, in characters,
// after trimming surrounding whitespace.
const MinDescriptionLen = 10

// ErrDescriptionTooShort is wrapped by the ValidationError returned for
// descriptions under MinDescriptionLen.
var ErrDescriptionTooShort = errors.New("description must be at least 10 characters long")

// ValidationError reports caller input that cannot be triaged.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ValidateDescription returns a *ValidationError when description is too
// short to triage.
func ValidateDescription(description string) error {
	if utf8.RuneCountInString(strings.TrimSpace(description)) < MinDescriptionLen {
		return &ValidationError{Field: "description", Err: ErrDescriptionTooShort}
	}
	return nil
}
