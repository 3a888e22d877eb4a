// ABOUTME: Error codes and the protocol-level error type
// ABOUTME: Codes are stable wire values; handlers reply with error frames, never close

package protocol

import "fmt"

// ErrorCode identifies a protocol-level failure on an error frame.
type ErrorCode string

// Wire error codes. These are part of the protocol contract; renaming
// one breaks deployed widgets and dashboards.
const (
	CodeInvalidJSON           ErrorCode = "INVALID_JSON"
	CodeUnknownMessageType    ErrorCode = "UNKNOWN_MESSAGE_TYPE"
	CodeInternalError         ErrorCode = "INTERNAL_ERROR"
	CodeMissingWebsiteID      ErrorCode = "MISSING_WEBSITE_ID"
	CodeInvalidWebsiteID      ErrorCode = "INVALID_WEBSITE_ID"
	CodeNotIdentified         ErrorCode = "NOT_IDENTIFIED"
	CodeEmptyMessage          ErrorCode = "EMPTY_MESSAGE"
	CodeConversationNotFound  ErrorCode = "CONVERSATION_NOT_FOUND"
	CodeMissingConversationID ErrorCode = "MISSING_CONVERSATION_ID"
	CodeAccessDenied          ErrorCode = "ACCESS_DENIED"
)

// Error is a recoverable protocol failure. It is reported to the
// offending connection as an error frame; the connection stays open.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a protocol error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}
