// Package errors defines the JSON error body returned by the HTTP services.
//
// The body always carries the "error" field; the remaining fields are omitted
// when empty so that persistence failures surface as {"error": <message>}.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error represents the standardized error schema shared across services.
type Error struct {
	Message   string `json:"error"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Option mutates an Error during construction.
type Option func(*Error)

// New constructs a new shared Error with the provided code and message.
func New(code, message string, opts ...Option) *Error {
	err := &Error{
		Message: message,
		Code:    code,
	}
	for _, opt := range opts {
		opt(err)
	}
	return err
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// WithDetail attaches a detail string.
func WithDetail(detail string) Option {
	return func(e *Error) {
		e.Detail = detail
	}
}

// WithRequestID attaches a request ID.
func WithRequestID(id string) Option {
	return func(e *Error) {
		e.RequestID = id
	}
}

// From coerces any error into a shared Error. Errors that are not already
// shared Errors keep their message verbatim and carry no code.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var shared *Error
	if errors.As(err, &shared) {
		return shared
	}
	return &Error{Message: err.Error()}
}

// Marshal converts an error into a JSON byte slice following the shared schema.
func Marshal(err error) ([]byte, error) {
	return json.Marshal(From(err))
}

// Write encodes err as the JSON body of a response with the given status.
func Write(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(From(err))
}
