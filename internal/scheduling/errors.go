package scheduling

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error so the API layer can pick an HTTP
// status without string matching.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindForbidden
	KindValidation
	KindConflict
)

// Conflict codes let the UI explain why a booking was rejected.
const (
	CodeAppointmentOverlap = "appointment_overlap"
	CodeDisruptionBlocked  = "disruption_blocked"
	CodePTOBlocked         = "pto_blocked"
)

// Error is the typed error returned by every service operation.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbiddenf(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(code, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

func kindIs(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func IsNotFound(err error) bool   { return kindIs(err, KindNotFound) }
func IsForbidden(err error) bool  { return kindIs(err, KindForbidden) }
func IsValidation(err error) bool { return kindIs(err, KindValidation) }
func IsConflict(err error) bool   { return kindIs(err, KindConflict) }

// ConflictCode extracts the machine code of a conflict error, if any.
func ConflictCode(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindConflict {
		return e.Code
	}
	return ""
}
