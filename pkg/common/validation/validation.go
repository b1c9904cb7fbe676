package validation

import (
	geerrors "github.com/vnykmshr/goevent/pkg/common/errors"
)

// MaxIDLength is the maximum length accepted for pipeline and entry identifiers.
const MaxIDLength = 255

// ValidatePositive validates that an integer value is positive (> 0).
// Returns a ValidationError if the value is not positive.
func ValidatePositive(module, field string, value int) error {
	if value <= 0 {
		return geerrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidateNotNil validates that an interface value is not nil.
// Returns a ValidationError if the value is nil.
func ValidateNotNil(module, field string, value interface{}) error {
	if value == nil {
		return geerrors.NewValidationError(module, field, nil, "cannot be nil").
			WithHint("provide a valid " + field)
	}
	return nil
}

// ValidateNotEmpty validates that a string value is not empty.
// Returns a ValidationError if the string is empty.
func ValidateNotEmpty(module, field string, value string) error {
	if value == "" {
		return geerrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	return nil
}

// ValidateID validates a pipeline or trigger entry identifier: non-empty
// and at most MaxIDLength characters.
func ValidateID(module, field string, id string) error {
	if id == "" {
		return geerrors.NewValidationError(module, field, id, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	if len(id) > MaxIDLength {
		return geerrors.NewValidationError(module, field, id, "too long").
			WithHint("identifiers are limited to 255 characters")
	}
	return nil
}
