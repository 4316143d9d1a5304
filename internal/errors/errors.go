package errors

import (
	"errors"
	"fmt"
)

// Category groups errors by subsystem
type Category string

const (
	CategoryBackend  Category = "backend"
	CategoryTool     Category = "tool"
	CategoryPanel    Category = "panel"
	CategoryApproval Category = "approval"
	CategoryConfig   Category = "config"
	CategoryUsage    Category = "usage"
)

// SkillError is the structured error type for the project
type SkillError struct {
	Category  Category
	Code      string
	Message   string
	Retryable bool
	Cause     error
}

func (e *SkillError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

func (e *SkillError) Unwrap() error {
	return e.Cause
}

// Is matches on category and code so sentinel-style comparisons work with
// errors.Is(err, errors.PanelBusy(0)).
func (e *SkillError) Is(target error) bool {
	t, ok := target.(*SkillError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Category == t.Category
}

// IsRetryable checks whether an error is retryable.
// Returns false for nil errors or non-SkillError types.
func IsRetryable(err error) bool {
	var se *SkillError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetCategory extracts the error category from a SkillError.
func GetCategory(err error) Category {
	var se *SkillError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from a SkillError.
func GetCode(err error) string {
	var se *SkillError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// GetUserMessage returns a user-friendly message for the error.
// For SkillError it returns the Message field; for other errors it returns Error().
func GetUserMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *SkillError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
