package core

// Kind classifies a core failure for upstream mapping (HTTP status, retry
// decisions). Store failures never expose driver detail to callers.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindExhausted  Kind = "exhausted"
	KindStore      Kind = "store"
)

// Error is the discriminated failure type returned by all core operations.
type Error struct {
	Kind    Kind
	Code    string // stable machine-readable reason, e.g. "self_send"
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

// Unwrap exposes the underlying store error for logging; it is never
// serialized to clients.
func (e *Error) Unwrap() error { return e.cause }

var (
	ErrAllocationExhausted = &Error{Kind: KindExhausted, Code: "allocation_exhausted", Message: "could not allocate a free code, try again later"}
	ErrInvalidFormat       = &Error{Kind: KindValidation, Code: "invalid_format", Message: "code must be exactly 6 digits"}
	ErrCodeTaken           = &Error{Kind: KindConflict, Code: "code_taken", Message: "code is already taken"}
	ErrInvalidSenderID     = &Error{Kind: KindValidation, Code: "invalid_sender_id", Message: "sender id must be exactly 6 digits"}
	ErrInvalidRecipientID  = &Error{Kind: KindValidation, Code: "invalid_recipient_id", Message: "recipient id must be exactly 6 digits"}
	ErrSelfSend            = &Error{Kind: KindValidation, Code: "self_send", Message: "cannot send a message to yourself"}
	ErrSenderNotFound      = &Error{Kind: KindNotFound, Code: "sender_not_found", Message: "sender identity not found"}
	ErrRecipientNotFound   = &Error{Kind: KindNotFound, Code: "recipient_not_found", Message: "recipient identity not found"}
	ErrUserNotFound        = &Error{Kind: KindNotFound, Code: "user_not_found", Message: "identity not found"}
)

// invalidMessage builds a content validation error with a specific reason.
func invalidMessage(reason string) *Error {
	return &Error{Kind: KindValidation, Code: "invalid_message", Message: reason}
}

// storeFailure wraps an underlying persistence error.
func storeFailure(op string, err error) *Error {
	return &Error{Kind: KindStore, Code: "store_error", Message: op + " failed", cause: err}
}
