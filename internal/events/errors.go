package events

import "fmt"

// ProtocolError reports a malformed or unrecognized envelope or payload.
// The offending message is dropped; the channel it arrived on stays usable.
type ProtocolError struct {
	Reason     string
	Type       string
	Suggestion string
	Err        error
}

var _ error = &ProtocolError{}

// NewProtocolError creates a ProtocolError with the given reason.
func NewProtocolError(reason string, err error) *ProtocolError {
	return &ProtocolError{Reason: reason, Err: err}
}

// NewUnknownTypeError creates a ProtocolError for an unrecognized discriminant.
func NewUnknownTypeError(t string, suggestion string) *ProtocolError {
	return &ProtocolError{Reason: "unknown payload type", Type: t, Suggestion: suggestion}
}

func (e *ProtocolError) Error() string {
	msg := "protocol error: " + e.Reason
	if e.Type != "" {
		msg += fmt.Sprintf(" %q", e.Type)
	}
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestion)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
