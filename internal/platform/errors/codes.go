// Package errors provides structured, code-matched errors shared by the
// document services and their transports.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeInvalidArgument reports malformed caller input.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	// CodeNotFound reports a missing holder, document or type.
	CodeNotFound Code = "NOT_FOUND"
	// CodeConflict reports a concurrent modification detected by the
	// optimistic version check.
	CodeConflict Code = "CONFLICT"
	// CodePreconditionUnmet reports a lifecycle transition attempted from a
	// state that does not allow it.
	CodePreconditionUnmet Code = "PRECONDITION_UNMET"
	// CodeDeliveryFailure reports that the outbound channel did not accept a
	// reminder.
	CodeDeliveryFailure Code = "DELIVERY_FAILURE"
	// CodePersistenceFailure reports a storage read or write failure.
	CodePersistenceFailure Code = "PERSISTENCE_FAILURE"
	// CodeUnauthenticated reports a missing or invalid admin credential.
	CodeUnauthenticated Code = "UNAUTHENTICATED"
)

// HTTPStatus maps codes to admin API response statuses.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodePreconditionUnmet:
		return http.StatusUnprocessableEntity
	case CodeDeliveryFailure:
		return http.StatusBadGateway
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
