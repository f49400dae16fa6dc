package app

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrRunInProgress means another caller holds the processing run for the document.
	ErrRunInProgress = errors.New("document is already being processed")
	// ErrNotConfigured is returned by AI-backed operations when no gateway key is set.
	ErrNotConfigured = errors.New("LOVABLE_API_KEY is not configured")
)

// inputError carries a caller-facing validation message and matches ErrInvalidInput.
type inputError struct{ msg string }

func (e inputError) Error() string        { return e.msg }
func (e inputError) Is(target error) bool { return target == ErrInvalidInput }

func invalidInput(format string, args ...any) error {
	return inputError{msg: fmt.Sprintf(format, args...)}
}

// ProcessError is a failed document run. FlashcardsCount reports cards already committed.
type ProcessError struct {
	Err             error
	FlashcardsCount int
}

func (e *ProcessError) Error() string { return e.Err.Error() }
func (e *ProcessError) Unwrap() error { return e.Err }
