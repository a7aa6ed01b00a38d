package signing

import "fmt"

// Error codes, mapped to HTTP statuses at the handler boundary
const (
	CodeNotFound             = "not_found"             // 404
	CodeForbidden            = "forbidden"             // 403
	CodeInvalidState         = "invalid_state"         // 400
	CodeSessionInconsistency = "session_inconsistency" // 400, support-contact error
	CodeConflict             = "conflict"              // 409, lost a concurrent write, safe to retry
	CodeStoreFailure         = "store_error"           // 500, details logged not leaked
)

// Error is a signing-engine error carrying a machine code and a caller-facing
// message. The message for invalid-state denials names the party expected to
// act first so the UI can render "waiting on X" rather than "not authorized".
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func notFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

func forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

func invalidState(msg string) *Error {
	return &Error{Code: CodeInvalidState, Message: msg}
}

func sessionInconsistency(msg string) *Error {
	return &Error{Code: CodeSessionInconsistency, Message: msg}
}

func conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

func storeFailure(msg string) *Error {
	return &Error{Code: CodeStoreFailure, Message: msg}
}

// CodeOf returns the engine error code for err, or store_error for anything else
func CodeOf(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return CodeStoreFailure
}
