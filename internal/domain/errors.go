package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Class categorizes pipeline errors and drives both retry decisions
// and the HTTP status reported to callers.
type Class string

const (
	// ClassValidation covers bad caller input (no file, not a PDF, bad params).
	ClassValidation Class = "validation"
	// ClassRender covers undecodable, encrypted, or corrupt documents and
	// page rasterization failures.
	ClassRender Class = "render"
	// ClassUnavailable covers failures fetching the source document.
	ClassUnavailable Class = "unavailable"
	// ClassTransient covers retryable upstream failures (429, 5xx, resets).
	ClassTransient Class = "transient"
	// ClassTimeout covers per-call deadline expiry. Retryable, but tracked
	// separately from ClassTransient.
	ClassTimeout Class = "timeout"
	// ClassFatal covers upstream rejections that no retry can fix.
	ClassFatal Class = "fatal"
	// ClassIncomplete signals assembly before all batches completed.
	// Surfacing this to a caller means the orchestrator has a bug.
	ClassIncomplete Class = "incomplete"
	// ClassInternal covers everything else.
	ClassInternal Class = "internal"
)

// Error is the classified error type used throughout the pipeline.
type Error struct {
	Class   Class
	Message string
	Status  int // optional HTTP status override
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Class, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error to the status code reported by the API layer.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Class {
	case ClassValidation:
		return http.StatusBadRequest
	case ClassRender:
		return http.StatusUnprocessableEntity
	case ClassUnavailable:
		return http.StatusBadRequest
	case ClassTransient:
		return http.StatusTooManyRequests
	case ClassTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a classified error wrapping an optional cause.
func NewError(class Class, message string, err error) *Error {
	return &Error{Class: class, Message: message, Err: err}
}

func ValidationError(message string, err error) *Error {
	return NewError(ClassValidation, message, err)
}

func RenderError(message string, err error) *Error {
	return NewError(ClassRender, message, err)
}

func UnavailableError(message string, err error) *Error {
	return NewError(ClassUnavailable, message, err)
}

func TransientError(message string, err error) *Error {
	return NewError(ClassTransient, message, err)
}

func TimeoutError(message string, err error) *Error {
	return NewError(ClassTimeout, message, err)
}

func FatalError(message string, err error) *Error {
	return NewError(ClassFatal, message, err)
}

func IncompleteRunError(message string) *Error {
	return NewError(ClassIncomplete, message, nil)
}

func InternalError(message string, err error) *Error {
	return NewError(ClassInternal, message, err)
}

// ClassOf returns the class of err, or ClassInternal for unclassified errors.
func ClassOf(err error) Class {
	var de *Error
	if errors.As(err, &de) {
		return de.Class
	}
	return ClassInternal
}

// Retryable reports whether the retry policy may re-attempt after err.
func Retryable(err error) bool {
	switch ClassOf(err) {
	case ClassTransient, ClassTimeout:
		return true
	}
	return false
}
