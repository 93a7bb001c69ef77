package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// EventEnvelope wraps every message crossing the host boundary. A reply
// carries CallbackID and exactly one of Payload or Error.
type EventEnvelope struct {
	ID          string
	CallbackID  *string
	PluginRefID string
	Payload     Payload
	Error       *string
}

type wireEnvelope struct {
	ID          string          `json:"id"`
	CallbackID  *string         `json:"callbackId,omitempty"`
	PluginRefID string          `json:"pluginRefId,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Error       *string         `json:"error,omitempty"`
}

// NewEnvelope creates a request envelope with a fresh id.
func NewEnvelope(p Payload) *EventEnvelope {
	return &EventEnvelope{ID: uuid.NewString(), Payload: p}
}

// NewReply creates a successful reply to req.
func NewReply(req *EventEnvelope, p Payload) *EventEnvelope {
	callbackID := req.ID
	return &EventEnvelope{
		ID:          uuid.NewString(),
		CallbackID:  &callbackID,
		PluginRefID: req.PluginRefID,
		Payload:     p,
	}
}

// NewErrorReply creates a failed reply to req carrying msg.
func NewErrorReply(req *EventEnvelope, msg string) *EventEnvelope {
	callbackID := req.ID
	return &EventEnvelope{
		ID:          uuid.NewString(),
		CallbackID:  &callbackID,
		PluginRefID: req.PluginRefID,
		Error:       &msg,
	}
}

// IsReply reports whether the envelope answers an earlier request.
func (e *EventEnvelope) IsReply() bool {
	return e.CallbackID != nil
}

// Type returns the payload discriminant, or "" for error replies.
func (e *EventEnvelope) Type() PayloadType {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.PayloadType()
}

// Validate checks the envelope invariants.
func (e *EventEnvelope) Validate() error {
	if e.ID == "" {
		return NewProtocolError("envelope is missing an id", nil)
	}
	switch {
	case e.Payload != nil && e.Error != nil:
		return NewProtocolError("envelope carries both payload and error", nil)
	case e.Payload == nil && e.Error == nil:
		return NewProtocolError("envelope carries neither payload nor error", nil)
	case e.Error != nil && e.CallbackID == nil:
		return NewProtocolError("error envelope is not a reply", nil)
	case e.CallbackID != nil && *e.CallbackID == "":
		return NewProtocolError("envelope has an empty callbackId", nil)
	}
	return nil
}

func (e *EventEnvelope) MarshalJSON() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	wire := wireEnvelope{
		ID:          e.ID,
		CallbackID:  e.CallbackID,
		PluginRefID: e.PluginRefID,
		Error:       e.Error,
	}
	if e.Payload != nil {
		payload, err := EncodePayload(e.Payload)
		if err != nil {
			return nil, err
		}
		wire.Payload = payload
	}
	return json.Marshal(wire)
}

func (e *EventEnvelope) UnmarshalJSON(data []byte) error {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return NewProtocolError("malformed envelope", err)
	}

	decoded := EventEnvelope{
		ID:          wire.ID,
		CallbackID:  wire.CallbackID,
		PluginRefID: wire.PluginRefID,
		Error:       wire.Error,
	}
	if len(wire.Payload) > 0 && string(wire.Payload) != "null" {
		p, err := DecodePayload(wire.Payload)
		if err != nil {
			return err
		}
		decoded.Payload = p
	}
	if err := decoded.Validate(); err != nil {
		return err
	}

	*e = decoded
	return nil
}

// Encode serializes an envelope after checking its invariants.
func Encode(e *EventEnvelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses an envelope. Every malformed input yields a *ProtocolError.
func Decode(data []byte) (*EventEnvelope, error) {
	var e EventEnvelope
	if err := json.Unmarshal(data, &e); err != nil {
		var protoErr *ProtocolError
		if errors.As(err, &protoErr) {
			return nil, protoErr
		}
		return nil, NewProtocolError("malformed envelope", err)
	}
	return &e, nil
}
