// Package problem defines the error kinds raised across LifeMonitor and their
// rendering as problem-details documents.
package problem

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindNotFound                  Kind = "NotFound"
	KindNotAuthorized             Kind = "NotAuthorized"
	KindForbidden                 Kind = "Forbidden"
	KindBadRequest                Kind = "BadRequest"
	KindSpecificationNotValid     Kind = "SpecificationNotValid"
	KindSpecificationNotSupported Kind = "SpecificationNotSupported"
	KindNotValidROCrate           Kind = "NotValidROCrate"
	KindRegistryNotSupported      Kind = "RegistryNotSupported"
	KindConflict                  Kind = "WorkflowVersionConflict"
	KindTestingService            Kind = "TestingServiceException"
	KindInternal                  Kind = "InternalError"
	KindNotImplemented            Kind = "NotImplemented"
)

var statuses = map[Kind]int{
	KindNotFound:                  http.StatusNotFound,
	KindNotAuthorized:             http.StatusUnauthorized,
	KindForbidden:                 http.StatusForbidden,
	KindBadRequest:                http.StatusBadRequest,
	KindSpecificationNotValid:     http.StatusBadRequest,
	KindSpecificationNotSupported: http.StatusBadRequest,
	KindNotValidROCrate:           http.StatusBadRequest,
	KindRegistryNotSupported:      http.StatusBadRequest,
	KindConflict:                  http.StatusBadRequest,
	KindTestingService:            http.StatusInternalServerError,
	KindInternal:                  http.StatusInternalServerError,
	KindNotImplemented:            http.StatusNotImplemented,
}

var titles = map[Kind]string{
	KindNotFound:                  "Resource not found",
	KindNotAuthorized:             "Unauthorized",
	KindForbidden:                 "Forbidden",
	KindBadRequest:                "Bad request",
	KindSpecificationNotValid:     "Specification not valid",
	KindSpecificationNotSupported: "Specification not supported",
	KindNotValidROCrate:           "RO-Crate not valid",
	KindRegistryNotSupported:      "Registry type not supported",
	KindConflict:                  "Workflow version conflict",
	KindTestingService:            "Testing service error",
	KindInternal:                  "Internal error",
	KindNotImplemented:            "Not implemented",
}

type Error struct {
	Kind         Kind
	Detail       string
	ResourceType string
	ResourceID   string
	cause        error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.cause.Error())
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Cause() error {
	return e.cause
}

func (e *Error) Status() int {
	if s, ok := statuses[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func (e *Error) Title() string {
	return titles[e.Kind]
}

func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and detail to cause, keeping its stack for logs.
func Wrap(kind Kind, cause error, detail string) *Error {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &Error{Kind: kind, Detail: detail, cause: cause}
}

func NotFound(resourceType, resourceID string) *Error {
	return &Error{
		Kind:         KindNotFound,
		Detail:       fmt.Sprintf("%s %s not found", resourceType, resourceID),
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

func SpecificationNotValid(format string, args ...interface{}) *Error {
	return Newf(KindSpecificationNotValid, format, args...)
}

func SpecificationNotSupported(format string, args ...interface{}) *Error {
	return Newf(KindSpecificationNotSupported, format, args...)
}

func NotValidROCrate(format string, args ...interface{}) *Error {
	return Newf(KindNotValidROCrate, format, args...)
}

func TestingServiceException(cause error, format string, args ...interface{}) *Error {
	return Wrap(KindTestingService, cause, fmt.Sprintf(format, args...))
}

func NotImplemented(operation string) *Error {
	return Newf(KindNotImplemented, "%s not implemented", operation)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func Is(err error, kind Kind) bool {
	if pe, ok := As(err); ok {
		return pe.Kind == kind
	}
	return false
}

func StatusOf(err error) int {
	if pe, ok := As(err); ok {
		return pe.Status()
	}
	return http.StatusInternalServerError
}
