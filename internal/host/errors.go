package host

import (
	"errors"
	"fmt"

	"github.com/dorcha-inc/hookhost/internal/events"
)

var (
	// ErrNoStore is returned for plugin lookups when no Store is configured.
	ErrNoStore = errors.New("no model store configured")
	// ErrNoSender is returned for send and render requests when no HTTPSender is configured.
	ErrNoSender = errors.New("no http sender configured")
	// ErrNothingImported is returned when no importer understood the content.
	ErrNothingImported = errors.New("no plugin could import the content")
)

// UnsupportedRequestError is returned for payloads the receiving side does not serve
type UnsupportedRequestError struct {
	Type events.PayloadType `json:"type"`
	From string             `json:"from"`
}

// NewUnsupportedRequestError creates a new UnsupportedRequestError
func NewUnsupportedRequestError(t events.PayloadType, from string) *UnsupportedRequestError {
	return &UnsupportedRequestError{Type: t, From: from}
}

func (e *UnsupportedRequestError) Error() string {
	return fmt.Sprintf("%s cannot be sent by %s", e.Type, e.From)
}

// Interface guard for UnsupportedRequestError
var _ error = &UnsupportedRequestError{}
