// Package testing provides fixtures and utilities for testing hookhost.
package testing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"
)

// PluginFixture describes a plugin directory written for a test.
type PluginFixture struct {
	Name    string
	Version string
	// Exports are advertised in the hello handshake of the generated script.
	Exports []string
	// Script replaces the generated entrypoint when set.
	Script string
	// Manifest replaces the generated plugin.yaml when set.
	Manifest string
}

// WritePluginDir writes a plugin directory under root and returns its path.
// The generated entrypoint is a POSIX shell script that sends hello and
// answers every request with {"hook": "<request name>"}.
func WritePluginDir(t testing.TB, root string, fixture PluginFixture) string {
	t.Helper()

	dirName := fixture.Name
	if dirName == "" {
		dirName = "unnamed"
	}
	dir := filepath.Join(root, dirName)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0700))

	manifest := fixture.Manifest
	if manifest == "" {
		data, err := yaml.Marshal(map[string]string{"name": fixture.Name, "version": fixture.Version})
		require.NoError(t, err)
		manifest = string(data)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(manifest), 0600))

	script := fixture.Script
	if script == "" {
		script = EchoScript(fixture.Exports)
	}
	// #nosec G306 -- test plugin entrypoints must be executable
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin", "plugin"), []byte(script), 0755))

	return dir
}

// HelloLine returns the hello frame advertising exports.
func HelloLine(exports []string) string {
	if exports == nil {
		exports = []string{}
	}
	data, err := json.Marshal(map[string]any{
		"name":    "hello",
		"payload": map[string]any{"exports": exports},
	})
	if err != nil {
		panic(err)
	}
	return string(data)
}

// EchoScript returns a shell plugin that replies to every request with the request name.
func EchoScript(exports []string) string {
	return fmt.Sprintf(`#!/bin/sh
printf '%%s\n' '%s'
while IFS= read -r line; do
  id=$(printf '%%s' "$line" | sed -n 's/.*"callbackId":"\([^"]*\)".*/\1/p')
  name=$(printf '%%s' "$line" | sed -n 's/^{"name":"\([^"]*\)".*/\1/p')
  [ -z "$id" ] && continue
  printf '{"callbackId":"%%s","payload":{"hook":"%%s"}}\n' "$id" "$name"
done
`, HelloLine(exports))
}

// SilentScript returns a shell plugin that never sends hello.
func SilentScript() string {
	return "#!/bin/sh\nwhile IFS= read -r line; do :; done\n"
}

// CrashScript returns a shell plugin that sends hello and exits on its first request.
func CrashScript(exports []string) string {
	return fmt.Sprintf("#!/bin/sh\nprintf '%%s\\n' '%s'\nIFS= read -r line\nexit 3\n", HelloLine(exports))
}

// ObserveLogs replaces the global zap logger with an observer for the test.
func ObserveLogs(t testing.TB, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

// MessagesContaining returns the logged messages that contain substr.
func MessagesContaining(logs *observer.ObservedLogs, substr string) []string {
	var out []string
	for _, entry := range logs.All() {
		if strings.Contains(entry.Message, substr) {
			out = append(out, entry.Message)
		}
	}
	return out
}
