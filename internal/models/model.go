package models

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Model is a kind-tagged domain model kept in its raw JSON form. The runtime
// routes models without interpreting them; As decodes into a typed struct
// when a component needs the fields.
type Model struct {
	raw json.RawMessage
}

// FromValue wraps a typed model. The "model" tag is forced to the value's kind.
func FromValue(v Modeler) (Model, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Model{}, fmt.Errorf("failed to marshal %s model: %w", v.ModelKind(), err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Model{}, fmt.Errorf("failed to inspect %s model: %w", v.ModelKind(), err)
	}
	kind, err := json.Marshal(v.ModelKind())
	if err != nil {
		return Model{}, err
	}
	fields["model"] = kind

	data, err = json.Marshal(fields)
	if err != nil {
		return Model{}, fmt.Errorf("failed to marshal %s model: %w", v.ModelKind(), err)
	}
	return Model{raw: data}, nil
}

// MustFromValue is FromValue for values that are known to marshal, such as test fixtures.
func MustFromValue(v Modeler) Model {
	m, err := FromValue(v)
	if err != nil {
		panic(err)
	}
	return m
}

// Kind returns the model discriminant, or "" when absent.
func (m Model) Kind() Kind {
	return Kind(gjson.GetBytes(m.raw, "model").String())
}

// Known reports whether the model kind is one the runtime understands.
func (m Model) Known() bool {
	return IsKnownKind(m.Kind())
}

func (m Model) ID() string {
	return gjson.GetBytes(m.raw, "id").String()
}

func (m Model) WorkspaceID() string {
	return gjson.GetBytes(m.raw, "workspaceId").String()
}

// Namespace returns the key/value namespace; it is empty for every other kind.
func (m Model) Namespace() string {
	if m.Kind() != KindKeyValue {
		return ""
	}
	return gjson.GetBytes(m.raw, "namespace").String()
}

// IsZero reports whether the model carries no data.
func (m Model) IsZero() bool {
	return len(m.raw) == 0
}

// As decodes the model into target, which must match the model kind.
func (m Model) As(target Modeler) error {
	if got, want := m.Kind(), target.ModelKind(); got != want {
		return fmt.Errorf("model kind mismatch: have %s, want %s", got, want)
	}
	return json.Unmarshal(m.raw, target)
}

func (m Model) MarshalJSON() ([]byte, error) {
	if len(m.raw) == 0 {
		return []byte("null"), nil
	}
	return m.raw, nil
}

func (m *Model) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		m.raw = nil
		return nil
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return fmt.Errorf("model must be a JSON object")
	}
	if !gjson.GetBytes(data, "model").Exists() {
		return fmt.Errorf("model is missing the \"model\" discriminant")
	}
	m.raw = append(m.raw[:0], data...)
	return nil
}

// ChangeType names a model lifecycle notification.
type ChangeType string

const (
	ChangeUpserted ChangeType = "upserted_model"
	ChangeDeleted  ChangeType = "deleted_model"
)

// ChangeEvent is a model lifecycle notification broadcast to subscribers and
// to plugins observing model events.
type ChangeEvent struct {
	Change      ChangeType `json:"change"`
	Model       Model      `json:"model"`
	WindowLabel string     `json:"windowLabel"`
}
