package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestModel_UnmarshalKnownKind tests that accessors read the raw fields
func TestModel_UnmarshalKnownKind(t *testing.T) {
	var m Model
	err := json.Unmarshal([]byte(`{"model":"http_request","id":"rq_1","workspaceId":"wk_1","name":"Get users"}`), &m)
	require.NoError(t, err)

	assert.Equal(t, KindHTTPRequest, m.Kind())
	assert.True(t, m.Known())
	assert.Equal(t, "rq_1", m.ID())
	assert.Equal(t, "wk_1", m.WorkspaceID())
	assert.Empty(t, m.Namespace(), "namespace only applies to key_value models")

	var req HTTPRequest
	require.NoError(t, m.As(&req))
	assert.Equal(t, "Get users", req.Name)
}

// TestModel_UnmarshalUnknownKind tests that unknown kinds decode but are not known
func TestModel_UnmarshalUnknownKind(t *testing.T) {
	var m Model
	require.NoError(t, json.Unmarshal([]byte(`{"model":"plugin_setting","id":"x"}`), &m))

	assert.Equal(t, Kind("plugin_setting"), m.Kind())
	assert.False(t, m.Known())
}

// TestModel_UnmarshalRejectsMalformed tests rejection of non-objects and missing tags
func TestModel_UnmarshalRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "array", input: `[1,2]`},
		{name: "string", input: `"http_request"`},
		{name: "missing discriminant", input: `{"id":"rq_1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Model
			assert.Error(t, json.Unmarshal([]byte(tt.input), &m))
		})
	}
}

// TestModel_NullRoundTrip tests that a zero model marshals as null
func TestModel_NullRoundTrip(t *testing.T) {
	var m Model
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	require.NoError(t, json.Unmarshal([]byte("null"), &m))
	assert.True(t, m.IsZero())
}

// TestFromValue_ForcesKind tests that FromValue sets the discriminant from the type
func TestFromValue_ForcesKind(t *testing.T) {
	m, err := FromValue(KeyValue{ID: "kv_1", Namespace: NamespaceNoSync, Key: "sidebar", Value: "open"})
	require.NoError(t, err)

	assert.Equal(t, KindKeyValue, m.Kind())
	assert.Equal(t, NamespaceNoSync, m.Namespace())

	var kv KeyValue
	require.NoError(t, m.As(&kv))
	assert.Equal(t, KindKeyValue, kv.Model)
	assert.Equal(t, "open", kv.Value)
}

// TestModel_AsKindMismatch tests that decoding into the wrong type fails
func TestModel_AsKindMismatch(t *testing.T) {
	m := MustFromValue(Folder{ID: "fl_1", WorkspaceID: "wk_1"})

	var ws Workspace
	err := m.As(&ws)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model kind mismatch")
}

// TestChangeEvent_JSON tests the notification wire shape
func TestChangeEvent_JSON(t *testing.T) {
	ev := ChangeEvent{
		Change:      ChangeDeleted,
		Model:       MustFromValue(Settings{ID: "st_1", Appearance: "dark"}),
		WindowLabel: "main_0",
	}

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded ChangeEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ChangeDeleted, decoded.Change)
	assert.Equal(t, "main_0", decoded.WindowLabel)
	assert.Equal(t, KindSettings, decoded.Model.Kind())
	assert.Equal(t, "st_1", decoded.Model.ID())
}

// TestIsKnownKind tests the known kind set
func TestIsKnownKind(t *testing.T) {
	for _, k := range []Kind{
		KindHTTPRequest, KindHTTPResponse, KindGRPCConnection, KindGRPCEvent, KindGRPCRequest,
		KindFolder, KindWorkspace, KindEnvironment, KindCookieJar, KindKeyValue, KindSettings,
	} {
		assert.True(t, IsKnownKind(k), "kind %s", k)
	}
	assert.False(t, IsKnownKind(""))
	assert.False(t, IsKnownKind("websocket_request"))
}
