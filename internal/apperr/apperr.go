// Package apperr defines the closed set of domain error kinds surfaced to
// API clients. Error identity is the Kind; display text is looked up by the
// Kind's message key in the i18n package.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	InvalidConversationID
	UserExists
	UserNotFound
	InvalidCredentials
	InactiveUser
	NotVerified
	AlreadyVerified
	InvalidCode
	WeakPassword
	PasswordMismatch
	IncorrectPassword
	InvalidToken
	TokenRevoked
	Unauthorized
	Forbidden
	ConversationNotFound
	PromptNotFound
	OffTopicOpening
	ProfileOutOfRange
	ProfileExists
	ProfileNotFound
	DocumentNotFound
	UnsupportedFile
	MessageNotFound
	RateLimited
)

type kindInfo struct {
	key    string
	status int
}

var kinds = map[Kind]kindInfo{
	Internal:              {"internal_error", http.StatusInternalServerError},
	Validation:            {"validation_error", http.StatusUnprocessableEntity},
	InvalidConversationID: {"invalid_conversation_id", http.StatusUnprocessableEntity},
	UserExists:            {"user_already_exists", http.StatusBadRequest},
	UserNotFound:          {"user_not_found", http.StatusNotFound},
	InvalidCredentials:    {"invalid_credentials", http.StatusUnauthorized},
	InactiveUser:          {"inactive_user", http.StatusForbidden},
	NotVerified:           {"user_not_verified", http.StatusForbidden},
	AlreadyVerified:       {"user_already_verified", http.StatusBadRequest},
	InvalidCode:           {"invalid_or_expired_code", http.StatusBadRequest},
	WeakPassword:          {"weak_password", http.StatusUnprocessableEntity},
	PasswordMismatch:      {"passwords_do_not_match", http.StatusUnprocessableEntity},
	IncorrectPassword:     {"incorrect_current_password", http.StatusBadRequest},
	InvalidToken:          {"invalid_token", http.StatusUnauthorized},
	TokenRevoked:          {"token_revoked", http.StatusUnauthorized},
	Unauthorized:          {"not_authenticated", http.StatusUnauthorized},
	Forbidden:             {"permission_denied", http.StatusForbidden},
	ConversationNotFound:  {"conversation_not_found", http.StatusNotFound},
	PromptNotFound:        {"prompt_not_found", http.StatusBadRequest},
	OffTopicOpening:       {"off_topic_opening", http.StatusBadRequest},
	ProfileOutOfRange:     {"profile_value_out_of_range", http.StatusUnprocessableEntity},
	ProfileExists:         {"profile_already_exists", http.StatusBadRequest},
	ProfileNotFound:       {"profile_not_found", http.StatusNotFound},
	DocumentNotFound:      {"document_not_found", http.StatusNotFound},
	UnsupportedFile:       {"unsupported_file", http.StatusBadRequest},
	MessageNotFound:       {"message_not_found", http.StatusNotFound},
	RateLimited:           {"too_many_requests", http.StatusTooManyRequests},
}

// Key returns the translation key for the kind.
func (k Kind) Key() string {
	if info, ok := kinds[k]; ok {
		return info.key
	}
	return kinds[Internal].key
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	if info, ok := kinds[k]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

func (k Kind) String() string { return k.Key() }

// Kinds lists every defined kind.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	return out
}

// Error is a domain error carrying its kind and optional client-facing payload.
type Error struct {
	Kind Kind
	// Fields holds per-field validation messages keyed by JSON field name.
	Fields map[string]string
	// Data is echoed to the client in the envelope's data member.
	Data any
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind.Key(), e.Err)
	}
	return e.Kind.Key()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Err == nil && t.Fields == nil && t.Data == nil
}

func New(kind Kind) *Error { return &Error{Kind: kind} }

func Wrap(kind Kind, err error) *Error { return &Error{Kind: kind, Err: err} }

func WithData(kind Kind, data any) *Error { return &Error{Kind: kind, Data: data} }

// Invalid builds a Validation error from per-field messages.
func Invalid(fields map[string]string) *Error {
	return &Error{Kind: Validation, Fields: fields}
}

// KindOf returns the kind of err, or Internal when err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}
