package apperr

import (
	"errors"
	"fmt"
)

// Machine-readable codes for internal failures.
const (
	CodeMessageTooLarge   = "MESSAGE_TOO_LARGE"
	CodeAgentNotFound     = "AGENT_NOT_FOUND"
	CodeChecklistNotFound = "CHECKLIST_NOT_FOUND"
	CodeDocumentNotFound  = "DOCUMENT_CACHE_NOT_FOUND"
	CodeRunNotFound       = "RUN_NOT_FOUND"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeUnsupportedFile   = "UNSUPPORTED_FILE"
	CodeUnexpected        = "UNEXPECTED"
)

// genericMessage is shown in place of messages that are not exposed.
const genericMessage = "an internal error occurred"

// Error is an internal error tagged with a code. Expose controls whether
// Message may be shown to the end user.
type Error struct {
	Code    string
	Message string
	Expose  bool
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error with the given code and message.
func New(code, message string, expose bool) *Error {
	return &Error{Code: code, Message: message, Expose: expose}
}

// Wrap attaches a code and message to err.
func Wrap(err error, code, message string, expose bool) *Error {
	return &Error{Code: code, Message: message, Expose: expose, Err: err}
}

// Code returns the code of the first *Error in err's chain, or "".
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return err != nil && Code(err) == code
}

// UserMessage renders err for display. Unexposed internal errors are
// replaced by a generic message; other errors are shown as-is.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Expose {
			return e.Message
		}
		return genericMessage
	}
	return err.Error()
}
