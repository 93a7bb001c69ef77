package worker

import (
	"encoding/json"
	"fmt"

	"github.com/dorcha-inc/hookhost/internal/events"
)

// Unsolicited message names.
const (
	MessageHello = "hello"
	MessageLog   = "log"
	MessageEvent = "event"
)

// Message is one newline-delimited JSON frame on a plugin channel.
// Requests carry Name and CallbackID; replies carry CallbackID and exactly
// one of Payload or Error; unsolicited messages carry Name only.
type Message struct {
	Name       string          `json:"name,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Error      string          `json:"error,omitempty"`
	CallbackID string          `json:"callbackId,omitempty"`
}

// IsReply reports whether the message answers a request.
func (m Message) IsReply() bool {
	return m.CallbackID != "" && m.Name == ""
}

func (m Message) validateInbound() error {
	switch {
	case m.CallbackID == "" && m.Name == "":
		return events.NewProtocolError("message has neither name nor callbackId", nil)
	case m.IsReply() && len(m.Payload) > 0 && m.Error != "":
		return events.NewProtocolError("reply carries both payload and error", nil)
	}
	return nil
}

// Hello is the handshake a plugin sends once it is ready.
type Hello struct {
	Name       string   `json:"name,omitempty"`
	Version    string   `json:"version,omitempty"`
	Exports    []string `json:"exports"`
	Concurrent bool     `json:"concurrent,omitempty"`
}

// LogRecord is a log line pushed by a plugin.
type LogRecord struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// NewEventMessage wraps an envelope for delivery to or from a plugin.
func NewEventMessage(env *events.EventEnvelope) (Message, error) {
	data, err := events.Encode(env)
	if err != nil {
		return Message{}, err
	}
	return Message{Name: MessageEvent, Payload: data}, nil
}

// DecodeEvent extracts the envelope carried by an event message.
func DecodeEvent(msg Message) (*events.EventEnvelope, error) {
	if msg.Name != MessageEvent {
		return nil, fmt.Errorf("message %q is not an event", msg.Name)
	}
	return events.Decode(msg.Payload)
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}
