package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Class is the failure category the ErrorHandler acts on.
type Class int

const (
	ClassNone Class = iota
	ClassTransient
	ClassValidation
	ClassFatal
	ClassCancelled
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassValidation:
		return "validation"
	case ClassFatal:
		return "fatal"
	case ClassCancelled:
		return "cancelled"
	}
	return "none"
}

// ValidationError means the step's input is malformed or incomplete.
// Retrying cannot help until something upstream changes.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "validation: " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// TransientError means a collaborator was unavailable, slow or rate limited.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError is an internal contract violation. It aborts the session.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

func Validation(err error) error { return &ValidationError{Err: err} }
func Transient(err error) error  { return &TransientError{Err: err} }
func Fatal(err error) error      { return &FatalError{Err: err} }

func Validationf(format string, args ...any) error {
	return &ValidationError{Err: fmt.Errorf(format, args...)}
}

func Transientf(format string, args ...any) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

func Fatalf(format string, args ...any) error {
	return &FatalError{Err: fmt.Errorf(format, args...)}
}

// Classify maps an error onto a Class. Errors that carry no class are fatal
// for critical steps and transient for everything else.
func Classify(err error, critical bool) Class {
	if err == nil {
		return ClassNone
	}

	var fatal *FatalError
	var validation *ValidationError
	var transient *TransientError

	switch {
	case errors.As(err, &fatal):
		return ClassFatal
	case errors.As(err, &validation):
		return ClassValidation
	case errors.As(err, &transient):
		return ClassTransient
	case errors.Is(err, context.Canceled):
		return ClassCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	}

	if critical {
		return ClassFatal
	}
	return ClassTransient
}
