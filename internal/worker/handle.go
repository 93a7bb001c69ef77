package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hookhost/internal/core"
	"github.com/dorcha-inc/hookhost/internal/manifest"
)

const (
	DefaultBootTimeout = 5 * time.Second
	DefaultCallTimeout = 30 * time.Second
)

// State represents the lifecycle state of a worker handle
type State string

const (
	StateCreated    State = "CREATED"
	StateBooting    State = "BOOTING"
	StateReady      State = "READY"
	StateCrashed    State = "CRASHED"
	StateTerminated State = "TERMINATED"
)

// Option configures a Handle.
type Option func(*Handle)

// WithClock sets the clock used for boot and call deadlines.
func WithClock(clock clockwork.Clock) Option {
	return func(h *Handle) { h.clock = clock }
}

// WithLauncher sets how the plugin process is started.
func WithLauncher(l Launcher) Option {
	return func(h *Handle) { h.launcher = l }
}

func WithBootTimeout(d time.Duration) Option {
	return func(h *Handle) {
		if d > 0 {
			h.bootTimeout = d
		}
	}
}

func WithCallTimeout(d time.Duration) Option {
	return func(h *Handle) {
		if d > 0 {
			h.callTimeout = d
		}
	}
}

// OnMessage registers the receiver of unsolicited plugin messages other than
// hello and log.
func OnMessage(fn func(*Handle, Message)) Option {
	return func(h *Handle) { h.onMessage = fn }
}

// OnExit registers a callback fired once when the channel ends without Shutdown.
func OnExit(fn func(*Handle, error)) Option {
	return func(h *Handle) { h.onExit = fn }
}

// Handle owns one plugin execution context and its message channel.
type Handle struct {
	dir         string
	launcher    Launcher
	clock       clockwork.Clock
	bootTimeout time.Duration
	callTimeout time.Duration
	onMessage   func(*Handle, Message)
	onExit      func(*Handle, error)

	stateMu  sync.RWMutex
	state    State
	manifest *manifest.Manifest
	info     *PluginInfo
	channel  Channel

	pending    *pendingTable
	sem        chan struct{}
	hello      chan Hello
	helloOnce  sync.Once
	terminated chan struct{}
	endOnce    sync.Once
}

// NewHandle creates a handle for the plugin in dir. Nothing runs until Boot.
func NewHandle(dir string, opts ...Option) *Handle {
	h := &Handle{
		dir:         dir,
		launcher:    NewProcessLauncher(),
		clock:       clockwork.NewRealClock(),
		bootTimeout: DefaultBootTimeout,
		callTimeout: DefaultCallTimeout,
		state:       StateCreated,
		pending:     newPendingTable(),
		hello:       make(chan Hello, 1),
		terminated:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Dir returns the plugin directory the handle boots from.
func (h *Handle) Dir() string {
	return h.dir
}

// Name returns the manifest name once loaded, otherwise the directory.
func (h *Handle) Name() string {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	if h.manifest != nil {
		return h.manifest.Name
	}
	return h.dir
}

// Info returns the booted plugin info, or nil before a successful boot.
func (h *Handle) Info() *PluginInfo {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.info
}

// GetState returns the current state of the handle
func (h *Handle) GetState() State {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.state
}

// setState sets the handle state (assumes lock is NOT held)
func (h *Handle) setState(newState State) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	h.setStateLocked(newState)
}

// setStateLocked sets the handle state (assumes lock IS held)
func (h *Handle) setStateLocked(newState State) {
	oldState := h.state
	h.state = newState
	if oldState != newState {
		zap.L().Debug("Plugin state changed",
			zap.String("dir", h.dir),
			zap.String("old_state", string(oldState)),
			zap.String("new_state", string(newState)))
	}
}

// PendingCount returns the number of outstanding calls.
func (h *Handle) PendingCount() int {
	return h.pending.size()
}

// Boot loads the manifest, starts the plugin and waits for its hello
// handshake. Every failure is a *LoadError.
func (h *Handle) Boot(ctx context.Context) (*PluginInfo, error) {
	h.stateMu.Lock()
	if h.state != StateCreated {
		state := h.state
		h.stateMu.Unlock()
		return nil, NewLoadError(h.dir, "", fmt.Errorf("cannot boot plugin in state %s", state))
	}
	h.setStateLocked(StateBooting)
	h.stateMu.Unlock()

	m, err := manifest.LoadAndValidate(h.dir)
	if err != nil {
		h.setState(StateCrashed)
		return nil, NewLoadError(h.dir, "", err)
	}

	timer := h.clock.NewTimer(h.bootTimeout)
	defer timer.Stop()

	ch, err := h.launcher.Launch(ctx, m)
	if err != nil {
		h.setState(StateCrashed)
		return nil, NewLoadError(h.dir, m.Name, err)
	}

	h.stateMu.Lock()
	h.manifest = m
	h.channel = ch
	h.stateMu.Unlock()

	go h.dispatch(ch)

	var hello Hello
	select {
	case hello = <-h.hello:
	case <-timer.Chan():
		h.abortBoot(ch)
		return nil, NewLoadError(h.dir, m.Name, fmt.Errorf("handshake timeout after %v", h.bootTimeout))
	case <-ctx.Done():
		h.abortBoot(ch)
		return nil, NewLoadError(h.dir, m.Name, ctx.Err())
	case <-h.terminated:
		return nil, NewLoadError(h.dir, m.Name, fmt.Errorf("plugin exited before handshake: %w", errOrTerminated(ch.Err())))
	}

	caps, unknown := ProbeCapabilities(hello.Exports)
	if len(unknown) > 0 {
		zap.L().Debug("Ignoring unknown plugin exports",
			zap.String("plugin", m.Name),
			zap.Strings("exports", unknown))
	}

	version := m.Version
	if version == "" {
		version = hello.Version
	}
	info := &PluginInfo{
		Name:         m.Name,
		Version:      version,
		Dir:          m.Dir,
		Capabilities: caps,
		Concurrent:   hello.Concurrent,
	}

	h.stateMu.Lock()
	if h.state != StateBooting {
		state := h.state
		h.stateMu.Unlock()
		return nil, NewLoadError(h.dir, m.Name, fmt.Errorf("plugin left boot in state %s", state))
	}
	h.info = info
	if !hello.Concurrent {
		h.sem = make(chan struct{}, 1)
	}
	h.setStateLocked(StateReady)
	h.stateMu.Unlock()

	zap.L().Info("Plugin booted",
		zap.String("plugin", info.Name),
		zap.String("version", info.Version),
		zap.Strings("capabilities", info.CapabilityNames()),
		zap.Bool("concurrent", info.Concurrent))
	return info, nil
}

func (h *Handle) abortBoot(ch Channel) {
	h.endOnce.Do(func() {
		h.setState(StateCrashed)
		close(h.terminated)
	})
	if err := ch.Close(); err != nil {
		zap.L().Debug("Failed to close plugin channel after aborted boot", zap.String("dir", h.dir), zap.Error(err))
	}
}

func errOrTerminated(err error) error {
	if err == nil {
		return ErrWorkerTerminated
	}
	return err
}

// dispatch routes inbound frames until the channel ends.
func (h *Handle) dispatch(ch Channel) {
	for msg := range ch.Receive() {
		if err := msg.validateInbound(); err != nil {
			zap.L().Warn("Dropping plugin message", zap.String("plugin", h.Name()), zap.Error(err))
			continue
		}

		if msg.IsReply() {
			if !h.pending.resolve(msg) {
				zap.L().Debug("Dropping reply with no pending call",
					zap.String("plugin", h.Name()),
					zap.String("callback_id", msg.CallbackID))
			}
			continue
		}

		switch msg.Name {
		case MessageHello:
			h.handleHello(msg)
		case MessageLog:
			h.handleLog(msg)
		default:
			h.deliver(msg)
		}
	}

	<-ch.Done()
	h.handleChannelEnd(ch.Err())
}

func (h *Handle) handleHello(msg Message) {
	var hello Hello
	if err := json.Unmarshal(msg.Payload, &hello); err != nil {
		zap.L().Warn("Dropping malformed hello", zap.String("plugin", h.Name()), zap.Error(err))
		return
	}
	handled := false
	h.helloOnce.Do(func() {
		h.hello <- hello
		handled = true
	})
	if !handled {
		zap.L().Debug("Ignoring repeated hello", zap.String("plugin", h.Name()))
	}
}

func (h *Handle) handleLog(msg Message) {
	var record LogRecord
	if err := json.Unmarshal(msg.Payload, &record); err != nil {
		zap.L().Warn("Dropping malformed plugin log", zap.String("plugin", h.Name()), zap.Error(err))
		return
	}

	fields := []zap.Field{zap.String("plugin", h.Name()), zap.String("message", record.Message)}
	switch record.Level {
	case "debug":
		zap.L().Debug("Plugin log", fields...)
	case "warn", "warning":
		zap.L().Warn("Plugin log", fields...)
	case "error":
		zap.L().Error("Plugin log", fields...)
	default:
		zap.L().Info("Plugin log", fields...)
	}
}

func (h *Handle) deliver(msg Message) {
	if h.onMessage == nil {
		zap.L().Debug("No receiver for plugin message", zap.String("plugin", h.Name()), zap.String("name", msg.Name))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			core.LogPanicRecovery("worker.OnMessage", r)
		}
	}()
	h.onMessage(h, msg)
}

func (h *Handle) handleChannelEnd(err error) {
	crashed := false
	h.endOnce.Do(func() {
		crashed = true
		h.setState(StateCrashed)
		close(h.terminated)
	})

	rejected := h.pending.rejectAll(ErrWorkerTerminated)
	if !crashed {
		return
	}

	zap.L().Warn("Plugin worker exited",
		zap.String("plugin", h.Name()),
		zap.Int("rejected_calls", rejected),
		zap.Error(err))
	if h.onExit != nil {
		h.onExit(h, errOrTerminated(err))
	}
}

// Invoke sends a request and waits for its correlated reply. A timeout of
// zero uses the handle default. Unless the plugin declared itself concurrent,
// calls are serialized and time spent queued counts against the deadline.
func (h *Handle) Invoke(ctx context.Context, hook string, payload any, timeout time.Duration) (json.RawMessage, error) {
	start := h.clock.Now()
	result, err := h.invoke(ctx, hook, payload, timeout)
	core.LogHookCall(h.Name(), hook, h.clock.Since(start).Seconds(), err)
	return result, err
}

func (h *Handle) invoke(ctx context.Context, hook string, payload any, timeout time.Duration) (json.RawMessage, error) {
	h.stateMu.RLock()
	state, ch, sem, name := h.state, h.channel, h.sem, ""
	if h.manifest != nil {
		name = h.manifest.Name
	}
	h.stateMu.RUnlock()

	switch state {
	case StateReady:
	case StateCrashed, StateTerminated:
		return nil, ErrWorkerTerminated
	default:
		return nil, fmt.Errorf("plugin %s is not ready (state: %s)", h.Name(), state)
	}

	data, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = h.callTimeout
	}
	timer := h.clock.NewTimer(timeout)
	defer timer.Stop()

	if sem != nil {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-timer.Chan():
			return nil, NewTimeoutError(name, hook, "", timeout)
		case <-ctx.Done():
			return nil, fmt.Errorf("%s call to plugin %s abandoned: %w", hook, name, ctx.Err())
		case <-h.terminated:
			return nil, ErrWorkerTerminated
		}
	}

	call := h.pending.register(hook, h.clock.Now())
	defer h.pending.remove(call.CallbackID)

	if err := ch.Send(Message{Name: hook, Payload: data, CallbackID: call.CallbackID}); err != nil {
		if errors.Is(err, ErrWorkerTerminated) {
			return nil, ErrWorkerTerminated
		}
		return nil, err
	}

	select {
	case res := <-call.result:
		if res.err != nil {
			return nil, res.err
		}
		if res.msg.Error != "" {
			return nil, NewInvocationError(name, hook, res.msg.Error)
		}
		return res.msg.Payload, nil
	case <-timer.Chan():
		zap.L().Warn("Hook call timed out",
			zap.String("plugin", name),
			zap.String("hook", hook),
			zap.String("callback_id", call.CallbackID),
			zap.Duration("timeout", timeout))
		return nil, NewTimeoutError(name, hook, call.CallbackID, timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%s call to plugin %s abandoned: %w", hook, name, ctx.Err())
	case <-h.terminated:
		// A reply may have raced with termination
		select {
		case res := <-call.result:
			if res.err == nil && res.msg.Error == "" {
				return res.msg.Payload, nil
			}
		default:
		}
		return nil, ErrWorkerTerminated
	}
}

// Post sends an unsolicited message that expects no reply.
func (h *Handle) Post(msg Message) error {
	h.stateMu.RLock()
	state, ch := h.state, h.channel
	h.stateMu.RUnlock()

	if state != StateReady {
		return ErrWorkerTerminated
	}
	return ch.Send(msg)
}

// Shutdown terminates the plugin and rejects outstanding calls with
// ErrWorkerTerminated. It is idempotent and does not fire OnExit.
func (h *Handle) Shutdown() error {
	var ch Channel
	first := false
	h.endOnce.Do(func() {
		first = true
		h.stateMu.Lock()
		ch = h.channel
		h.setStateLocked(StateTerminated)
		h.stateMu.Unlock()
		close(h.terminated)
	})
	if !first {
		h.stateMu.Lock()
		if h.state == StateCrashed {
			h.setStateLocked(StateTerminated)
		}
		ch = h.channel
		h.stateMu.Unlock()
	}

	h.pending.rejectAll(ErrWorkerTerminated)

	if ch == nil {
		return nil
	}
	if err := ch.Close(); err != nil {
		return fmt.Errorf("failed to close plugin channel: %w", err)
	}
	return nil
}

// Terminated is closed once the handle has crashed or been shut down.
func (h *Handle) Terminated() <-chan struct{} {
	return h.terminated
}

// HasCapability reports whether the booted plugin exports the hook granting c.
func (h *Handle) HasCapability(c Capability) bool {
	info := h.Info()
	return info != nil && info.Has(c)
}

// Capabilities returns the booted capability names, sorted.
func (h *Handle) Capabilities() []string {
	info := h.Info()
	if info == nil {
		return nil
	}
	return slices.Clone(info.CapabilityNames())
}

// QueryInfo asks the running plugin to describe itself.
func (h *Handle) QueryInfo(ctx context.Context) (*PluginInfo, error) {
	data, err := h.Invoke(ctx, RequestInfo, struct{}{}, 0)
	if err != nil {
		return nil, err
	}
	var info PluginInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to decode info from plugin %s: %w", h.Name(), err)
	}
	return &info, nil
}
