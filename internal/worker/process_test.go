package worker

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/dorcha-inc/hookhost/internal/manifest"
	hhtesting "github.com/dorcha-inc/hookhost/internal/testing"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell plugin fixtures require a POSIX shell")
	}
	if _, err := exec.LookPath("sed"); err != nil {
		t.Skip("sed is not available")
	}
}

// TestProcessLauncher_EchoPlugin tests a real child process end to end
func TestProcessLauncher_EchoPlugin(t *testing.T) {
	requireShell(t)

	dir := hhtesting.WritePluginDir(t, t.TempDir(), hhtesting.PluginFixture{
		Name:    "echo",
		Version: "0.2.0",
		Exports: []string{"pluginHookImport", "pluginHookExport"},
	})

	h := NewHandle(dir, WithBootTimeout(5*time.Second))
	info, err := h.Boot(context.Background())
	require.NoError(t, err)
	defer func() { assert.NoError(t, h.Shutdown()) }()

	assert.Equal(t, []string{"export", "import"}, info.CapabilityNames())
	assert.Equal(t, "0.2.0", info.Version)

	for _, hook := range []string{RequestImport, RequestExport} {
		result, err := h.Invoke(context.Background(), hook, map[string]string{"content": "x"}, 5*time.Second)
		require.NoError(t, err)
		assert.JSONEq(t, `{"hook":"`+hook+`"}`, string(result))
	}
}

// TestProcessLauncher_SilentPluginTimesOut tests the real-clock boot deadline
func TestProcessLauncher_SilentPluginTimesOut(t *testing.T) {
	requireShell(t)

	dir := hhtesting.WritePluginDir(t, t.TempDir(), hhtesting.PluginFixture{Name: "silent", Script: hhtesting.SilentScript()})

	h := NewHandle(dir, WithBootTimeout(200*time.Millisecond))
	_, err := h.Boot(context.Background())
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Contains(t, err.Error(), "handshake timeout")
}

// TestProcessLauncher_CrashRejectsPending tests that a dying process fails its calls
func TestProcessLauncher_CrashRejectsPending(t *testing.T) {
	requireShell(t)
	logs := hhtesting.ObserveLogs(t, zapcore.DebugLevel)

	dir := hhtesting.WritePluginDir(t, t.TempDir(), hhtesting.PluginFixture{
		Name:   "crasher",
		Script: hhtesting.CrashScript([]string{"pluginHookImport"}),
	})

	exited := make(chan error, 1)
	h := NewHandle(dir, OnExit(func(_ *Handle, err error) { exited <- err }))
	_, err := h.Boot(context.Background())
	require.NoError(t, err)

	_, err = h.Invoke(context.Background(), RequestImport, map[string]string{}, 5*time.Second)
	assert.ErrorIs(t, err, ErrWorkerTerminated)

	select {
	case err := <-exited:
		assert.Contains(t, err.Error(), "plugin process exited")
	case <-time.After(5 * time.Second):
		t.Fatal("OnExit never fired")
	}
	assert.Equal(t, StateCrashed, h.GetState())
	assert.NotEmpty(t, hhtesting.MessagesContaining(logs, "Plugin worker exited"))
	assert.NoError(t, h.Shutdown())
}

// TestProcessLauncher_StderrIsLogged tests stderr forwarding
func TestProcessLauncher_StderrIsLogged(t *testing.T) {
	requireShell(t)
	logs := hhtesting.ObserveLogs(t, zapcore.DebugLevel)

	script := "#!/bin/sh\necho 'warming up' >&2\nprintf '%s\\n' '" + hhtesting.HelloLine(nil) + "'\nwhile IFS= read -r line; do :; done\n"
	dir := hhtesting.WritePluginDir(t, t.TempDir(), hhtesting.PluginFixture{Name: "noisy", Script: script})

	h := NewHandle(dir)
	_, err := h.Boot(context.Background())
	require.NoError(t, err)
	defer func() { assert.NoError(t, h.Shutdown()) }()

	assert.Eventually(t, func() bool {
		for _, entry := range logs.FilterMessage("Plugin stderr").All() {
			if entry.ContextMap()["line"] == "warming up" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

// TestProcessLauncher_Environment tests manifest env and working directory
func TestProcessLauncher_Environment(t *testing.T) {
	requireShell(t)

	dir := hhtesting.WritePluginDir(t, t.TempDir(), hhtesting.PluginFixture{
		Name:     "env",
		Manifest: "name: env\nenv:\n  PLUGIN_GREETING: hi\n",
		Script: "#!/bin/sh\n" +
			`printf '{"name":"hello","payload":{"exports":[],"name":"%s"}}\n' "$PLUGIN_GREETING-$(basename "$PWD")"` +
			"\nwhile IFS= read -r line; do :; done\n",
	})

	m, err := manifest.LoadAndValidate(dir)
	require.NoError(t, err)

	ch, err := NewProcessLauncher().Launch(context.Background(), m)
	require.NoError(t, err)
	defer func() { assert.NoError(t, ch.Close()) }()

	select {
	case msg := <-ch.Receive():
		assert.Equal(t, MessageHello, msg.Name)
		assert.JSONEq(t, `{"exports":[],"name":"hi-env"}`, string(msg.Payload))
	case <-time.After(5 * time.Second):
		t.Fatal("no hello from plugin")
	}
}
