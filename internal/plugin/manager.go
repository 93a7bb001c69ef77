// Package plugin implements the process-wide plugin registry: discovery,
// capability routing, reload and supervision of worker handles.
package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dorcha-inc/hookhost/internal/core"
	"github.com/dorcha-inc/hookhost/internal/worker"
)

const DefaultMaxParallelBoots = 4

// Options configures a Manager.
type Options struct {
	// PluginsDir is rescanned by ReloadAll.
	PluginsDir       string
	BootTimeout      time.Duration
	CallTimeout      time.Duration
	MaxParallelBoots int
	Clock            clockwork.Clock
	Launcher         worker.Launcher
}

// MessageHandler receives unsolicited messages pushed by a plugin.
type MessageHandler func(pluginID string, msg worker.Message)

// Manager is the single authority mapping capabilities to plugins and
// plugin ids to worker handles.
type Manager struct {
	opts Options

	// mu serializes registry writes; reads go through records without locking.
	mu      sync.Mutex
	records *xsync.MapOf[string, *record]
	order   []string

	// booting holds handles between the start of discovery and registration.
	booting *xsync.MapOf[*worker.Handle, struct{}]

	onMessage  atomic.Pointer[MessageHandler]
	terminated chan string
}

// NewManager creates an empty registry.
func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Launcher == nil {
		opts.Launcher = worker.NewProcessLauncher()
	}
	if opts.MaxParallelBoots <= 0 {
		opts.MaxParallelBoots = DefaultMaxParallelBoots
	}
	return &Manager{
		opts:       opts,
		records:    xsync.NewMapOf[string, *record](),
		booting:    xsync.NewMapOf[*worker.Handle, struct{}](),
		terminated: make(chan string, 16),
	}
}

// SetMessageHandler installs the receiver of unsolicited plugin messages.
func (m *Manager) SetMessageHandler(fn MessageHandler) {
	m.onMessage.Store(&fn)
}

// Terminations yields ids of plugins removed after a crash. Sends never block;
// notifications are dropped when nobody drains the channel.
func (m *Manager) Terminations() <-chan string {
	return m.terminated
}

// ScanPluginDirs lists the plugin directories under root in a stable order.
// A missing root yields no plugins.
func ScanPluginDirs(root string) ([]string, error) {
	dirs, err := core.ListSubdirectories(root)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Warn("Plugins directory does not exist", zap.String("dir", root))
		return nil, nil
	}
	return dirs, err
}

func (m *Manager) newHandle(dir string) *worker.Handle {
	return worker.NewHandle(dir,
		worker.WithClock(m.opts.Clock),
		worker.WithLauncher(m.opts.Launcher),
		worker.WithBootTimeout(m.opts.BootTimeout),
		worker.WithCallTimeout(m.opts.CallTimeout),
		worker.OnMessage(m.handleMessage),
		worker.OnExit(m.handleExit),
	)
}

type bootResult struct {
	handle *worker.Handle
	info   *worker.PluginInfo
	err    error
}

func (m *Manager) bootAll(ctx context.Context, dirs []string) []bootResult {
	results := make([]bootResult, len(dirs))

	var g errgroup.Group
	g.SetLimit(m.opts.MaxParallelBoots)
	for i, dir := range dirs {
		g.Go(func() error {
			h := m.newHandle(dir)
			m.booting.Store(h, struct{}{})
			zap.L().Debug("Plugin state changed",
				zap.String("dir", dir),
				zap.String("new_state", string(StateDiscovering)))
			info, err := h.Boot(ctx)
			results[i] = bootResult{handle: h, info: info, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Discover boots a worker per directory. A plugin that fails to load is
// logged and omitted; its error is part of the joined error returned
// alongside the descriptors that did register, in input order.
func (m *Manager) Discover(ctx context.Context, dirs []string) ([]*Descriptor, error) {
	results := m.bootAll(ctx, dirs)

	var descriptors []*Descriptor
	var errs []error
	for _, res := range results {
		d, err := m.admit(res)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		descriptors = append(descriptors, d)
	}

	zap.L().Info("Plugin discovery finished",
		zap.Int("requested", len(dirs)),
		zap.Int("loaded", len(descriptors)),
		zap.Int("failed", len(errs)))
	return descriptors, errors.Join(errs...)
}

// admit registers a booted worker and retires it from the booting set.
func (m *Manager) admit(res bootResult) (*Descriptor, error) {
	defer m.booting.Delete(res.handle)

	dir := res.handle.Dir()
	if res.err != nil {
		zap.L().Warn("Failed to load plugin", zap.String("dir", dir), zap.Error(res.err))
		return nil, res.err
	}

	d, err := m.register(res.handle, res.info)
	if err != nil {
		zap.L().Warn("Failed to register plugin", zap.String("dir", dir), zap.Error(err))
		core.LogDeferredError(res.handle.Shutdown)
		return nil, err
	}
	return d, nil
}

// Boot discovers a single plugin directory.
func (m *Manager) Boot(ctx context.Context, dir string) (*Descriptor, error) {
	descriptors, err := m.Discover(ctx, []string{dir})
	if len(descriptors) == 0 {
		return nil, err
	}
	return descriptors[0], nil
}

func (m *Manager) register(h *worker.Handle, info *worker.PluginInfo) (*Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// OnExit for a worker that died before this point removed nothing.
	if terminated(h) {
		return nil, worker.NewLoadError(info.Dir, info.Name,
			fmt.Errorf("plugin exited after handshake: %w", ErrWorkerTerminated))
	}
	if existing, ok := m.records.Load(info.Name); ok {
		return nil, worker.NewLoadError(info.Dir, info.Name,
			fmt.Errorf("plugin %s is already registered from %s", info.Name, existing.descriptor.Dir))
	}

	d := newDescriptor(info, m.opts.Clock.Now())
	rec := &record{descriptor: d, handle: h, state: StateBooted}
	m.records.Store(d.ID, rec)
	m.order = append(m.order, d.ID)
	m.logTransition(d.ID, "", StateBooted)

	m.records.Store(d.ID, rec.withState(StateActive))
	m.logTransition(d.ID, StateBooted, StateActive)
	return d, nil
}

func terminated(h *worker.Handle) bool {
	select {
	case <-h.Terminated():
		return true
	default:
		return false
	}
}

func (m *Manager) logTransition(id string, from, to State) {
	zap.L().Debug("Plugin state changed",
		zap.String("plugin", id),
		zap.String("old_state", string(from)),
		zap.String("new_state", string(to)))
}

// Reload boots a fresh worker from the plugin's directory and swaps it in.
// On failure the previous descriptor stays active and a *ReloadError is returned.
func (m *Manager) Reload(ctx context.Context, id string) (*Descriptor, error) {
	m.mu.Lock()
	rec, ok := m.records.Load(id)
	if !ok {
		m.mu.Unlock()
		return nil, m.notFound(id)
	}
	if rec.state == StateReloading {
		m.mu.Unlock()
		return nil, NewReloadError(id, errors.New("reload already in progress"))
	}
	m.records.Store(id, rec.withState(StateReloading))
	m.logTransition(id, rec.state, StateReloading)
	m.mu.Unlock()

	fresh := m.newHandle(rec.descriptor.Dir)
	info, err := fresh.Boot(ctx)
	if err == nil && info.Name != id {
		core.LogDeferredError(fresh.Shutdown)
		err = fmt.Errorf("plugin in %s now identifies as %s", rec.descriptor.Dir, info.Name)
	}
	if err != nil {
		m.restoreActive(id, rec.handle)
		zap.L().Warn("Plugin reload failed, keeping previous version", zap.String("plugin", id), zap.Error(err))
		return nil, NewReloadError(id, err)
	}

	m.mu.Lock()
	current, ok := m.records.Load(id)
	if !ok || current.handle != rec.handle {
		// The old worker crashed and was removed while we were booting
		m.mu.Unlock()
		core.LogDeferredError(fresh.Shutdown)
		return nil, NewReloadError(id, ErrWorkerTerminated)
	}
	if terminated(fresh) {
		m.records.Store(id, current.withState(StateActive))
		m.logTransition(id, StateReloading, StateActive)
		m.mu.Unlock()
		zap.L().Warn("Reloaded plugin exited before activation, keeping previous version", zap.String("plugin", id))
		return nil, NewReloadError(id, fmt.Errorf("plugin exited after handshake: %w", ErrWorkerTerminated))
	}
	d := newDescriptor(info, m.opts.Clock.Now())
	m.records.Store(id, &record{descriptor: d, handle: fresh, state: StateActive})
	m.logTransition(id, StateReloading, StateActive)
	m.mu.Unlock()

	if err := rec.handle.Shutdown(); err != nil {
		zap.L().Debug("Failed to shut down replaced plugin worker", zap.String("plugin", id), zap.Error(err))
	}

	zap.L().Info("Plugin reloaded",
		zap.String("plugin", id),
		zap.String("version", d.Version),
		zap.Strings("capabilities", d.CapabilityNames()))
	return d, nil
}

func (m *Manager) restoreActive(id string, h *worker.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.records.Load(id); ok && current.handle == h {
		m.records.Store(id, current.withState(StateActive))
		m.logTransition(id, StateReloading, StateActive)
	}
}

// ReloadAll rescans the plugins directory: known plugins are reloaded, new
// directories discovered and vanished ones unloaded.
func (m *Manager) ReloadAll(ctx context.Context) error {
	dirs, err := ScanPluginDirs(m.opts.PluginsDir)
	if err != nil {
		return fmt.Errorf("failed to scan plugins directory: %w", err)
	}

	byDir := make(map[string]string)
	for _, snap := range m.List() {
		byDir[snap.Descriptor.Dir] = snap.Descriptor.ID
	}

	var errs []error
	var fresh []string
	for _, dir := range dirs {
		id, known := byDir[dir]
		if !known {
			fresh = append(fresh, dir)
			continue
		}
		delete(byDir, dir)
		if _, err := m.Reload(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}

	for _, id := range byDir {
		if err := m.Unload(id); err != nil {
			errs = append(errs, err)
		}
	}

	if len(fresh) > 0 {
		if _, err := m.Discover(ctx, fresh); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Get returns the active descriptor for id.
func (m *Manager) Get(id string) (*Descriptor, bool) {
	rec, ok := m.records.Load(id)
	if !ok {
		return nil, false
	}
	return rec.descriptor, true
}

// State returns the lifecycle state of id. A plugin whose manifest is loaded
// but which is not registered yet reports Discovering; unknown ids report
// Terminated.
func (m *Manager) State(id string) State {
	if rec, ok := m.records.Load(id); ok {
		return rec.state
	}

	state := StateTerminated
	m.booting.Range(func(h *worker.Handle, _ struct{}) bool {
		if h.Name() == id && !terminated(h) {
			state = StateDiscovering
			return false
		}
		return true
	})
	return state
}

func (m *Manager) orderSnapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.order)
}

// List returns every registered plugin in discovery order.
func (m *Manager) List() []Snapshot {
	var out []Snapshot
	for _, id := range m.orderSnapshot() {
		rec, ok := m.records.Load(id)
		if !ok {
			continue
		}
		out = append(out, Snapshot{Descriptor: rec.descriptor, State: rec.state, Pending: rec.handle.PendingCount()})
	}
	return out
}

// IDs returns the registered plugin ids in discovery order.
func (m *Manager) IDs() []string {
	return m.orderSnapshot()
}

// FindByCapability returns the plugins exporting the hook for c, first
// discovered first.
func (m *Manager) FindByCapability(c worker.Capability) []*Descriptor {
	out := []*Descriptor{}
	for _, id := range m.orderSnapshot() {
		rec, ok := m.records.Load(id)
		if !ok || rec.state == StateTerminated {
			continue
		}
		if rec.descriptor.Has(c) {
			out = append(out, rec.descriptor)
		}
	}
	return out
}

func (m *Manager) notFound(id string) error {
	return NewPluginNotFoundError(id, core.SuggestSimilarName(m.orderSnapshot(), id))
}

// CallOption adjusts a single call.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the default call deadline.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// Call sends a raw request to plugin id and waits for the reply.
func (m *Manager) Call(ctx context.Context, id string, request string, payload any, opts ...CallOption) (json.RawMessage, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	rec, ok := m.records.Load(id)
	if !ok {
		return nil, m.notFound(id)
	}
	return rec.handle.Invoke(ctx, request, payload, o.timeout)
}

// CallCapability invokes the hook for c on plugin id.
func (m *Manager) CallCapability(ctx context.Context, id string, c worker.Capability, payload any, opts ...CallOption) (json.RawMessage, error) {
	hook, ok := worker.HookByCapability(c)
	if !ok {
		return nil, fmt.Errorf("unknown capability %q", c)
	}
	d, ok := m.Get(id)
	if !ok {
		return nil, m.notFound(id)
	}
	if !d.Has(c) {
		return nil, NewCapabilityNotSupportedError(id, c)
	}
	return m.Call(ctx, id, hook.Request, payload, opts...)
}

// Post sends an unsolicited message to plugin id.
func (m *Manager) Post(id string, msg worker.Message) error {
	rec, ok := m.records.Load(id)
	if !ok {
		return m.notFound(id)
	}
	return rec.handle.Post(msg)
}

// Unload terminates plugin id and removes it from every index.
func (m *Manager) Unload(id string) error {
	rec, ok := m.remove(id, nil)
	if !ok {
		return m.notFound(id)
	}
	zap.L().Info("Plugin unloaded", zap.String("plugin", id))
	return rec.handle.Shutdown()
}

// remove deletes id from the registry. When h is non-nil the record is only
// removed if it still belongs to h.
func (m *Manager) remove(id string, h *worker.Handle) (*record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records.Load(id)
	if !ok || (h != nil && rec.handle != h) {
		return nil, false
	}
	m.records.Delete(id)
	m.order = slices.DeleteFunc(m.order, func(other string) bool { return other == id })
	m.logTransition(id, rec.state, StateTerminated)
	return rec, true
}

// Shutdown terminates every plugin.
func (m *Manager) Shutdown() error {
	var errs []error
	for _, id := range m.orderSnapshot() {
		if err := m.Unload(id); err != nil {
			var notFound *PluginNotFoundError
			if !errors.As(err, &notFound) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) handleExit(h *worker.Handle, err error) {
	id := h.Name()
	if _, ok := m.remove(id, h); !ok {
		return
	}
	zap.L().Warn("Plugin terminated", zap.String("plugin", id), zap.Error(err))
	select {
	case m.terminated <- id:
	default:
	}
	core.LogDeferredError(h.Shutdown)
}

func (m *Manager) handleMessage(h *worker.Handle, msg worker.Message) {
	fn := m.onMessage.Load()
	if fn == nil {
		zap.L().Debug("Dropping plugin message without handler", zap.String("plugin", h.Name()), zap.String("name", msg.Name))
		return
	}
	(*fn)(h.Name(), msg)
}
