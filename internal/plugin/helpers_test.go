package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dorcha-inc/hookhost/internal/events"
	"github.com/dorcha-inc/hookhost/internal/manifest"
	"github.com/dorcha-inc/hookhost/internal/models"
	hhtesting "github.com/dorcha-inc/hookhost/internal/testing"
	"github.com/dorcha-inc/hookhost/internal/worker"
	"github.com/dorcha-inc/hookhost/pkg/pluginsdk"
)

type importerModule struct {
	workspace string
	err       error
}

func (m *importerModule) Import(_ *pluginsdk.Context, req *pluginsdk.ImportRequest) (*pluginsdk.ImportResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.workspace == "" {
		return nil, nil
	}
	return &pluginsdk.ImportResponse{Resources: events.ImportResources{
		Workspaces: []models.Workspace{{ID: "wk_1", Model: models.KindWorkspace, Name: m.workspace, Description: req.Content}},
	}}, nil
}

type exporterModule struct {
	prefix string
}

func (m *exporterModule) Export(_ *pluginsdk.Context, req *pluginsdk.ExportHTTPRequestRequest) (*pluginsdk.ExportHTTPRequestResponse, error) {
	return &pluginsdk.ExportHTTPRequestResponse{Content: m.prefix + " " + req.HTTPRequest.URL}, nil
}

type filterModule struct {
	name string
}

func (m *filterModule) Filter(_ *pluginsdk.Context, req *pluginsdk.FilterRequest) (*pluginsdk.FilterResponse, error) {
	return &pluginsdk.FilterResponse{Content: m.name + ":" + req.Filter}, nil
}

type observerModule struct {
	seen chan models.ChangeEvent
}

func newObserverModule() *observerModule {
	return &observerModule{seen: make(chan models.ChangeEvent, 8)}
}

func (m *observerModule) ModelChanged(_ *pluginsdk.Context, ev pluginsdk.ChangeEvent) {
	m.seen <- ev
}

type blockingModule struct {
	release chan struct{}
}

func (m *blockingModule) Import(ctx *pluginsdk.Context, _ *pluginsdk.ImportRequest) (*pluginsdk.ImportResponse, error) {
	select {
	case <-m.release:
		return nil, nil
	case <-ctx.Done():
		return nil, errors.New("cancelled")
	}
}

// toasterModule pushes a toast before answering.
type toasterModule struct{}

func (toasterModule) Filter(ctx *pluginsdk.Context, req *pluginsdk.FilterRequest) (*pluginsdk.FilterResponse, error) {
	if err := ctx.ShowToast("filtering "+req.Filter, events.ToastInfo); err != nil {
		return nil, err
	}
	return &pluginsdk.FilterResponse{Content: req.Content}, nil
}

// gatedLauncher holds the next launch of selected plugins until released.
type gatedLauncher struct {
	*pluginsdk.Launcher

	mu    sync.Mutex
	gates map[string]chan struct{}
}

func (l *gatedLauncher) hold(name string) (release func()) {
	gate := make(chan struct{})
	l.mu.Lock()
	l.gates[name] = gate
	l.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (l *gatedLauncher) Launch(ctx context.Context, m *manifest.Manifest) (worker.Channel, error) {
	l.mu.Lock()
	gate := l.gates[m.Name]
	delete(l.gates, m.Name)
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return l.Launcher.Launch(ctx, m)
}

type testEnv struct {
	root     string
	launcher *gatedLauncher
	manager  *Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	launcher := &gatedLauncher{Launcher: pluginsdk.NewLauncher(), gates: make(map[string]chan struct{})}
	m := NewManager(Options{
		PluginsDir:  root,
		BootTimeout: 2 * time.Second,
		CallTimeout: 2 * time.Second,
		Launcher:    launcher,
	})
	t.Cleanup(func() { _ = m.Shutdown() })
	return &testEnv{root: root, launcher: launcher, manager: m}
}

// add writes a plugin directory named after the plugin and registers module for it.
func (e *testEnv) add(t *testing.T, name string, module any) string {
	t.Helper()
	e.launcher.Register(name, module)
	return hhtesting.WritePluginDir(t, e.root, hhtesting.PluginFixture{Name: name, Version: "1.0.0"})
}

func (e *testEnv) discover(t *testing.T, dirs ...string) []*Descriptor {
	t.Helper()
	descriptors, err := e.manager.Discover(context.Background(), dirs)
	require.NoError(t, err)
	return descriptors
}

func setVersion(t *testing.T, dir string, name string, version string) {
	t.Helper()
	manifest := "name: " + name + "\nversion: " + version + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(manifest), 0600))
}

func ids(descriptors []*Descriptor) []string {
	out := []string{}
	for _, d := range descriptors {
		out = append(out, d.ID)
	}
	return out
}

// logCount counts entries with message msg logged for plugin.
func logCount(logs *observer.ObservedLogs, msg string, plugin string) int {
	return logs.FilterMessage(msg).FilterField(zap.String("plugin", plugin)).Len()
}

func waitTermination(t *testing.T, m *Manager) string {
	t.Helper()
	select {
	case id := <-m.Terminations():
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("plugin termination was never reported")
		return ""
	}
}
