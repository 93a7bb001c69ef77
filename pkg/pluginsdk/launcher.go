package pluginsdk

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dorcha-inc/hookhost/internal/manifest"
	"github.com/dorcha-inc/hookhost/internal/worker"
)

// Launcher runs registered modules in-process instead of spawning the
// manifest entrypoint. Modules are looked up by manifest name.
type Launcher struct {
	mu      sync.Mutex
	modules map[string]any
	cancels map[string]context.CancelFunc
}

var _ worker.Launcher = &Launcher{}

// NewLauncher creates an empty in-process launcher.
func NewLauncher() *Launcher {
	return &Launcher{
		modules: make(map[string]any),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Register makes module available under the plugin name.
func (l *Launcher) Register(name string, module any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.modules[name] = module
}

// Unregister removes a module; later launches of name fail.
func (l *Launcher) Unregister(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.modules, name)
}

// Kill stops the most recent instance of name as if its process died.
func (l *Launcher) Kill(name string) bool {
	l.mu.Lock()
	cancel, ok := l.cancels[name]
	delete(l.cancels, name)
	l.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (l *Launcher) Launch(ctx context.Context, m *manifest.Manifest) (worker.Channel, error) {
	l.mu.Lock()
	module, ok := l.modules[m.Name]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("no in-process module registered for %s", m.Name)
	}
	serveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancels[m.Name] = cancel
	l.mu.Unlock()

	ch, pluginIn, pluginOut := worker.NewPipe(m.Name)
	go func() {
		defer cancel()
		err := Serve(serveCtx, module, pluginIn, pluginOut)
		zap.L().Debug("In-process plugin stopped", zap.String("plugin", m.Name), zap.Error(err))
		_ = pluginOut.Close()
		_ = pluginIn.Close()
	}()
	return ch, nil
}
