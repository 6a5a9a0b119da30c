package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUserNotFound      = fmt.Errorf("user %w", ErrNotFound)
	ErrBudgetNotFound    = fmt.Errorf("budget %w", ErrNotFound)
	ErrDuplicateUsername = errors.New("username already taken")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidDate       = errors.New("invalid date")
	ErrMissingField      = errors.New("missing required field")
	ErrInvalidField      = errors.New("invalid field")
)

// IsValidation reports whether err is a caller input error rather than a
// storage or lookup failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidField)
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

func tooLong(field string, max int) error {
	return fmt.Errorf("%w: %s too long (max %d characters)", ErrInvalidField, field, max)
}
