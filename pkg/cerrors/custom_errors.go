package cerrors

import "github.com/palantir/stacktrace"

type ErrorType string

const (
	ErrorTypeNonUserFriendly ErrorType = "NON_USER_FRIENDLY_ERROR"
	ErrorTypeGeneric         ErrorType = "GENERIC_ERROR"
	ErrorTypeTimeout         ErrorType = "TIMEOUT"
	ErrorTypeContract        ErrorType = "CONTRACT_ERROR"
	ErrorTypeResultCRUD      ErrorType = "RESULT_CRUD_ERROR"

	// injected fault kinds, delivered to the system under test on purpose
	ErrorTypeConnectionFault ErrorType = "CONNECTION_FAULT"
	ErrorTypeResetFault      ErrorType = "RESET_FAULT"
	ErrorTypeResolutionFault ErrorType = "RESOLUTION_FAULT"
	ErrorTypeNotFoundFault   ErrorType = "NOT_FOUND_FAULT"
	ErrorTypePermissionFault ErrorType = "PERMISSION_FAULT"
	ErrorTypeLockFault       ErrorType = "LOCK_FAULT"
	ErrorTypeOutOfSpaceFault ErrorType = "OUT_OF_SPACE_FAULT"

	// raised when a stress operation cannot proceed safely; aborts the
	// remaining steps of the enclosing campaign
	ErrorTypeResourceExhaustion ErrorType = "RESOURCE_EXHAUSTION"
)

type userFriendly interface {
	UserFriendly() bool
	ErrorType() ErrorType
}

// IsUserFriendly returns true if err is marked as safe to surface in a result record
func IsUserFriendly(err error) bool {
	ufe, ok := err.(userFriendly)
	return ok && ufe.UserFriendly()
}

// GetErrorType returns the type of error if the error is user-friendly
func GetErrorType(err error) ErrorType {
	if ufe, ok := err.(userFriendly); ok {
		return ufe.ErrorType()
	}
	return ErrorTypeNonUserFriendly
}

func GetRootCauseAndErrorCode(err error) (string, ErrorType) {
	rootCause := stacktrace.RootCause(err)
	errorType := GetErrorType(rootCause)
	if !IsUserFriendly(rootCause) {
		return err.Error(), errorType
	}
	return rootCause.Error(), errorType
}

// IsInjectedFault reports whether err is one of the fault kinds the harness
// delivers on purpose. Control loops catch these at the call site that
// invoked the injected operation; they must never escape the harness itself.
func IsInjectedFault(err error) bool {
	switch GetErrorType(stacktrace.RootCause(err)) {
	case ErrorTypeConnectionFault, ErrorTypeResetFault, ErrorTypeResolutionFault,
		ErrorTypeNotFoundFault, ErrorTypePermissionFault, ErrorTypeLockFault,
		ErrorTypeOutOfSpaceFault:
		return true
	}
	return false
}

// IsCritical reports whether err belongs to the resource-exhaustion class,
// which aborts the remaining steps of a campaign.
func IsCritical(err error) bool {
	return GetErrorType(stacktrace.RootCause(err)) == ErrorTypeResourceExhaustion
}
