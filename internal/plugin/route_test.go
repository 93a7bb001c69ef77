package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorcha-inc/hookhost/internal/events"
	"github.com/dorcha-inc/hookhost/internal/models"
	"github.com/dorcha-inc/hookhost/internal/worker"
)

func nonEmptyImport(data json.RawMessage) bool {
	var resp *events.ImportResponse
	if err := json.Unmarshal(data, &resp); err != nil || resp == nil {
		return false
	}
	return !resp.Resources.Empty()
}

// TestFirstAccepted_SkipsEmptyAndFailingImporters tests import routing across plugins
func TestFirstAccepted_SkipsEmptyAndFailingImporters(t *testing.T) {
	env := newTestEnv(t)
	env.discover(t,
		env.add(t, "a-empty", &importerModule{}),
		env.add(t, "b-failing", &importerModule{err: errors.New("not my format")}),
		env.add(t, "c-postman", &importerModule{workspace: "Postman"}),
		env.add(t, "d-insomnia", &importerModule{workspace: "Insomnia"}),
	)

	reply, err := env.manager.FirstAccepted(context.Background(), worker.CapabilityImport, &events.ImportRequest{Content: "{}"}, nonEmptyImport)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "c-postman", reply.PluginID)

	var resp events.ImportResponse
	require.NoError(t, json.Unmarshal(reply.Payload, &resp))
	assert.Equal(t, []models.Workspace{{ID: "wk_1", Model: models.KindWorkspace, Name: "Postman", Description: "{}"}}, resp.Resources.Workspaces)
}

// TestFirstAccepted_NothingAccepted tests that empty results are not an error
func TestFirstAccepted_NothingAccepted(t *testing.T) {
	env := newTestEnv(t)
	env.discover(t, env.add(t, "empty", &importerModule{}))

	reply, err := env.manager.FirstAccepted(context.Background(), worker.CapabilityImport, &events.ImportRequest{}, nonEmptyImport)
	require.NoError(t, err)
	assert.Nil(t, reply)
}

// TestFirstAccepted_AllFailing tests that errors are joined when every plugin failed
func TestFirstAccepted_AllFailing(t *testing.T) {
	env := newTestEnv(t)
	env.discover(t,
		env.add(t, "one", &importerModule{err: errors.New("first failure")}),
		env.add(t, "two", &importerModule{err: errors.New("second failure")}),
	)

	reply, err := env.manager.FirstAccepted(context.Background(), worker.CapabilityImport, &events.ImportRequest{}, nonEmptyImport)
	assert.Nil(t, reply)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failure")
	assert.Contains(t, err.Error(), "second failure")
}

// TestFirstAccepted_NoCapablePlugin tests routing with no importer at all
func TestFirstAccepted_NoCapablePlugin(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.FirstAccepted(context.Background(), worker.CapabilityImport, nil, nonEmptyImport)
	var noCapable *NoCapablePluginError
	require.True(t, errors.As(err, &noCapable))
	assert.Equal(t, worker.CapabilityImport, noCapable.Capability)
}

// TestCallFirst tests default and explicit plugin selection for filters and exporters
func TestCallFirst(t *testing.T) {
	env := newTestEnv(t)
	env.discover(t,
		env.add(t, "curl", &exporterModule{prefix: "curl"}),
		env.add(t, "httpie", &exporterModule{prefix: "http"}),
	)
	req := &events.ExportHTTPRequestRequest{HTTPRequest: models.HTTPRequest{URL: "https://example.com"}}

	reply, err := env.manager.CallFirst(context.Background(), worker.CapabilityExport, "", req)
	require.NoError(t, err)
	assert.Equal(t, "curl", reply.PluginID)
	assert.JSONEq(t, `{"content":"curl https://example.com"}`, string(reply.Payload))

	reply, err = env.manager.CallFirst(context.Background(), worker.CapabilityExport, "httpie", req)
	require.NoError(t, err)
	assert.Equal(t, "httpie", reply.PluginID)
	assert.JSONEq(t, `{"content":"http https://example.com"}`, string(reply.Payload))

	_, err = env.manager.CallFirst(context.Background(), worker.CapabilityFilter, "", &events.FilterRequest{})
	var noCapable *NoCapablePluginError
	assert.True(t, errors.As(err, &noCapable))
}
