package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest    = "BAD_REQUEST"
	ErrUnauthorized  = "UNAUTHORIZED"
	ErrForbidden     = "FORBIDDEN"
	ErrNotFound      = "NOT_FOUND"
	ErrConflict      = "CONFLICT"
	ErrInternalError = "INTERNAL_ERROR"
)

// Engine-specific error codes.
const (
	ErrPreconditionNotMet     = "PRECONDITION_NOT_MET"
	ErrInvalidTransition      = "INVALID_TRANSITION"
	ErrHandlerNotFound        = "HANDLER_NOT_FOUND"
	ErrHandlerExecutionFailed = "HANDLER_EXECUTION_FAILED"
	ErrNotificationFailed     = "NOTIFICATION_FAILED"
	ErrCatalogInvalid         = "CATALOG_INVALID"
)

// ErrorEnvelope is the standard error response envelope returned by the
// engine and its HTTP surface. It implements the error interface.
type ErrorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewPreconditionNotMetError returns a PRECONDITION_NOT_MET error. The
// caller may re-check the dependency state and retry later.
func NewPreconditionNotMetError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrPreconditionNotMet, Message: msg}
}

// NewInvalidTransitionError returns an INVALID_TRANSITION error. The
// requested status is not reachable from the current status; retrying the
// same call will not succeed.
func NewInvalidTransitionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidTransition, Message: msg}
}

// NewHandlerNotFoundError returns a HANDLER_NOT_FOUND error. No handler is
// registered for the requested phase and activity kind; this is a
// configuration error, not a business-rule failure.
func NewHandlerNotFoundError(phase, kind string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrHandlerNotFound,
		Message: fmt.Sprintf("no handler registered for phase %q kind %q", phase, kind),
	}
}

// NewHandlerExecutionFailedError returns a HANDLER_EXECUTION_FAILED error
// wrapping the underlying execution failure. The activity remains
// IN_PROGRESS and may be re-executed by the caller.
func NewHandlerExecutionFailedError(cause error) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrHandlerExecutionFailed,
		Message: cause.Error(),
	}
}

// NewNotificationFailedError returns a NOTIFICATION_FAILED error for a
// single recipient. It never aborts the escalation as a whole.
func NewNotificationFailedError(recipientID string, cause error) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrNotificationFailed,
		Message: fmt.Sprintf("notify %s: %v", recipientID, cause),
	}
}

// NewCatalogInvalidError returns a CATALOG_INVALID error. Raised at
// catalog-load time; the engine refuses to start with a bad catalog.
func NewCatalogInvalidError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrCatalogInvalid, Message: msg}
}
