package events

import (
	"encoding/json"
	"fmt"

	"github.com/dorcha-inc/hookhost/internal/core"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const typeField = "type"

// EncodePayload marshals a body and injects its "type" discriminant.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, NewProtocolError("payload is nil", nil)
	}
	t := p.PayloadType()
	if !Known(t) {
		return nil, NewUnknownTypeError(string(t), suggestType(string(t)))
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	if !gjson.ParseBytes(body).IsObject() {
		return nil, NewProtocolError(fmt.Sprintf("%s payload must marshal to an object", t), nil)
	}

	data, err := sjson.SetBytes(body, typeField, string(t))
	if err != nil {
		return nil, fmt.Errorf("failed to tag %s payload: %w", t, err)
	}
	return data, nil
}

// DecodePayload dispatches on the "type" discriminant and unmarshals the
// remaining fields into the matching body.
func DecodePayload(data []byte) (Payload, error) {
	if !gjson.ValidBytes(data) {
		return nil, NewProtocolError("payload is not valid JSON", nil)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, NewProtocolError("payload must be an object", nil)
	}

	tag := root.Get(typeField)
	if !tag.Exists() || tag.Type != gjson.String {
		return nil, NewProtocolError("payload is missing the type discriminant", nil)
	}

	p, ok := New(PayloadType(tag.Str))
	if !ok {
		return nil, NewUnknownTypeError(tag.Str, suggestType(tag.Str))
	}

	body, err := sjson.DeleteBytes(data, typeField)
	if err != nil {
		return nil, NewProtocolError("failed to strip the type discriminant", err)
	}
	if err := json.Unmarshal(body, p); err != nil {
		return nil, NewProtocolError(fmt.Sprintf("malformed %s body", tag.Str), err)
	}
	return p, nil
}

// PeekType returns the discriminant of an encoded payload without decoding the body.
func PeekType(data []byte) (PayloadType, bool) {
	tag := gjson.GetBytes(data, typeField)
	if tag.Type != gjson.String {
		return "", false
	}
	return PayloadType(tag.Str), true
}

func suggestType(t string) string {
	types := AllTypes()
	candidates := make([]string, len(types))
	for i, known := range types {
		candidates[i] = string(known)
	}
	return core.SuggestSimilarName(candidates, t)
}
