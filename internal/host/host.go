// Package host serves InternalEventPayload requests from the GUI and from
// plugins, routing them to plugin hooks or to the host's collaborators.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dorcha-inc/hookhost/internal/core"
	"github.com/dorcha-inc/hookhost/internal/events"
	"github.com/dorcha-inc/hookhost/internal/models"
	"github.com/dorcha-inc/hookhost/internal/plugin"
	"github.com/dorcha-inc/hookhost/internal/worker"
)

// Plugins is the part of *plugin.Manager the host drives.
type Plugins interface {
	Boot(ctx context.Context, dir string) (*plugin.Descriptor, error)
	ReloadAll(ctx context.Context) error
	FirstAccepted(ctx context.Context, c worker.Capability, payload any, accept func(json.RawMessage) bool, opts ...plugin.CallOption) (*plugin.Reply, error)
	CallFirst(ctx context.Context, c worker.Capability, pluginID string, payload any, opts ...plugin.CallOption) (*plugin.Reply, error)
	Post(id string, msg worker.Message) error
	SetMessageHandler(fn plugin.MessageHandler)
	Terminations() <-chan string
}

// ModelPublisher receives model changes reported by the GUI. *bridge.Bridge implements it.
type ModelPublisher interface {
	Publish(ev models.ChangeEvent) int
}

// Options configures a Host. Only Plugins is required.
type Options struct {
	Plugins Plugins
	Store   Store
	Sender  HTTPSender
	Toaster Toaster
	Models  ModelPublisher
}

// Host answers envelopes from the GUI and from plugins.
type Host struct {
	opts Options

	// base bounds work started on behalf of plugins.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	emitMu sync.RWMutex
	emit   func(*events.EventEnvelope) error
}

// New creates a host and registers it as the receiver of plugin messages.
func New(opts Options) *Host {
	base, cancel := context.WithCancel(context.Background())
	h := &Host{opts: opts, base: base, cancel: cancel}
	opts.Plugins.SetMessageHandler(h.HandlePluginMessage)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.watchTerminations(opts.Plugins.Terminations())
	}()
	return h
}

// watchTerminations reports plugins that died on their own until the host closes.
func (h *Host) watchTerminations(ids <-chan string) {
	for {
		select {
		case <-h.base.Done():
			return
		case id := <-ids:
			h.reportTermination(id)
		}
	}
}

func (h *Host) reportTermination(pluginID string) {
	toast := &events.ShowToastRequest{
		Message: fmt.Sprintf("Plugin %s stopped unexpectedly and was unloaded", pluginID),
		Variant: events.ToastDanger,
	}
	if h.opts.Toaster != nil {
		h.opts.Toaster.ShowToast(pluginID, toast)
	}

	env := events.NewEnvelope(toast)
	env.PluginRefID = pluginID
	if err := h.forward(env); err != nil {
		zap.L().Debug("Plugin termination not forwarded to GUI", zap.String("plugin", pluginID), zap.Error(err))
	}
}

// Close cancels in-flight plugin requests and waits for them to finish.
func (h *Host) Close() {
	h.cancel()
	h.wg.Wait()
}

// SetEmitter installs the outbound path to the GUI. Toasts and clipboard
// requests raised by plugins are forwarded through it.
func (h *Host) SetEmitter(fn func(*events.EventEnvelope) error) {
	h.emitMu.Lock()
	defer h.emitMu.Unlock()
	h.emit = fn
}

func (h *Host) forward(env *events.EventEnvelope) error {
	h.emitMu.RLock()
	emit := h.emit
	h.emitMu.RUnlock()
	if emit == nil {
		return errors.New("no GUI attached")
	}
	return emit(env)
}

// Handle answers a GUI request. The returned envelope is always a reply to env.
func (h *Host) Handle(ctx context.Context, env *events.EventEnvelope) *events.EventEnvelope {
	start := time.Now()
	payload, err := h.handleGUIRequest(ctx, env)
	core.LogHostRequest(string(env.Type()), time.Since(start).Seconds(), err)

	if err != nil {
		return events.NewErrorReply(env, err.Error())
	}
	return events.NewReply(env, payload)
}

func (h *Host) handleGUIRequest(ctx context.Context, env *events.EventEnvelope) (events.Payload, error) {
	switch p := env.Payload.(type) {
	case *events.BootRequest:
		d, err := h.opts.Plugins.Boot(ctx, p.Dir)
		if err != nil {
			return nil, err
		}
		return &events.BootResponse{Name: d.Name, Version: d.Version, Capabilities: d.CapabilityNames()}, nil

	case *events.ReloadRequest:
		if err := h.opts.Plugins.ReloadAll(ctx); err != nil {
			return nil, err
		}
		return &events.ReloadResponse{}, nil

	case *events.ImportRequest:
		return h.importContent(ctx, p)

	case *events.FilterRequest:
		var resp events.FilterResponse
		if err := h.callFirst(ctx, worker.CapabilityFilter, env.PluginRefID, p, &resp); err != nil {
			return nil, err
		}
		return &resp, nil

	case *events.ExportHTTPRequestRequest:
		var resp events.ExportHTTPRequestResponse
		if err := h.callFirst(ctx, worker.CapabilityExport, env.PluginRefID, p, &resp); err != nil {
			return nil, err
		}
		return &resp, nil

	case *events.GetHTTPRequestActionsRequest:
		return &events.GetHTTPRequestActionsResponse{Actions: []events.HTTPRequestAction{}, PluginRefID: env.PluginRefID}, nil

	case *events.CallHTTPRequestActionRequest:
		return nil, fmt.Errorf("no plugin provides http request action %q", p.Key)

	case *events.GetTemplateFunctionsRequest:
		return &events.GetTemplateFunctionsResponse{Functions: []events.TemplateFunction{}, PluginRefID: env.PluginRefID}, nil

	case *events.CallTemplateFunctionRequest:
		return &events.CallTemplateFunctionResponse{Value: nil}, nil
	}

	return nil, NewUnsupportedRequestError(env.Type(), "the GUI")
}

func (h *Host) importContent(ctx context.Context, req *events.ImportRequest) (events.Payload, error) {
	reply, err := h.opts.Plugins.FirstAccepted(ctx, worker.CapabilityImport, req, acceptImport)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, ErrNothingImported
	}

	var resp events.ImportResponse
	if err := json.Unmarshal(reply.Payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode import from plugin %s: %w", reply.PluginID, err)
	}
	zap.L().Info("Content imported",
		zap.String("plugin", reply.PluginID),
		zap.Int("workspaces", len(resp.Resources.Workspaces)),
		zap.Int("http_requests", len(resp.Resources.HTTPRequests)))
	return &resp, nil
}

// acceptImport accepts replies carrying at least one resource.
func acceptImport(data json.RawMessage) bool {
	var resp *events.ImportResponse
	if err := json.Unmarshal(data, &resp); err != nil || resp == nil {
		return false
	}
	return !resp.Resources.Empty()
}

func (h *Host) callFirst(ctx context.Context, c worker.Capability, pluginID string, req any, target any) error {
	reply, err := h.opts.Plugins.CallFirst(ctx, c, pluginID, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(reply.Payload, target); err != nil {
		return fmt.Errorf("failed to decode %s reply from plugin %s: %w", c, reply.PluginID, err)
	}
	return nil
}

// HandlePluginMessage serves event messages pushed by plugin pluginID.
// Requests are answered asynchronously with an event reply.
func (h *Host) HandlePluginMessage(pluginID string, msg worker.Message) {
	if msg.Name != worker.MessageEvent {
		zap.L().Debug("Ignoring plugin message", zap.String("plugin", pluginID), zap.String("name", msg.Name))
		return
	}

	env, err := worker.DecodeEvent(msg)
	if err != nil {
		zap.L().Warn("Dropping malformed plugin event", zap.String("plugin", pluginID), zap.Error(err))
		return
	}
	if env.IsReply() {
		zap.L().Debug("Dropping unexpected reply from plugin", zap.String("plugin", pluginID), zap.String("callback_id", *env.CallbackID))
		return
	}
	env.PluginRefID = pluginID

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.answerPlugin(pluginID, env)
	}()
}

func (h *Host) answerPlugin(pluginID string, env *events.EventEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			core.LogPanicRecovery("host.plugin."+pluginID, r)
		}
	}()

	start := time.Now()
	payload, err := h.handlePluginRequest(h.base, pluginID, env)
	core.LogHostRequest(string(env.Type()), time.Since(start).Seconds(), err)

	reply := events.NewReply(env, payload)
	if err != nil {
		reply = events.NewErrorReply(env, err.Error())
	}
	msg, err := worker.NewEventMessage(reply)
	if err != nil {
		zap.L().Error("Failed to encode reply to plugin", zap.String("plugin", pluginID), zap.Error(err))
		return
	}
	if err := h.opts.Plugins.Post(pluginID, msg); err != nil {
		zap.L().Debug("Failed to deliver reply to plugin", zap.String("plugin", pluginID), zap.Error(err))
	}
}

func (h *Host) handlePluginRequest(ctx context.Context, pluginID string, env *events.EventEnvelope) (events.Payload, error) {
	switch p := env.Payload.(type) {
	case *events.ShowToastRequest:
		if h.opts.Toaster != nil {
			h.opts.Toaster.ShowToast(pluginID, p)
		}
		if err := h.forward(env); err != nil {
			zap.L().Debug("Toast not forwarded to GUI", zap.String("plugin", pluginID), zap.Error(err))
		}
		return &events.EmptyResponse{}, nil

	case *events.CopyTextRequest:
		if err := h.forward(env); err != nil {
			return nil, fmt.Errorf("failed to copy text: %w", err)
		}
		return &events.EmptyResponse{}, nil

	case *events.SendHTTPRequestRequest:
		if h.opts.Sender == nil {
			return nil, ErrNoSender
		}
		resp, err := h.opts.Sender.SendHTTPRequest(ctx, p.HTTPRequest)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return &events.EmptyResponse{}, nil
		}
		return &events.SendHTTPRequestResponse{HTTPResponse: *resp}, nil

	case *events.RenderHTTPRequestRequest:
		if h.opts.Sender == nil {
			return nil, ErrNoSender
		}
		rendered, err := h.opts.Sender.RenderHTTPRequest(ctx, p.HTTPRequest, p.Purpose)
		if err != nil {
			return nil, err
		}
		if rendered == nil {
			return &events.EmptyResponse{}, nil
		}
		return &events.RenderHTTPRequestResponse{HTTPRequest: *rendered}, nil

	case *events.GetHTTPRequestByIDRequest:
		if h.opts.Store == nil {
			return nil, ErrNoStore
		}
		req, err := h.opts.Store.GetHTTPRequestByID(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return &events.GetHTTPRequestByIDResponse{HTTPRequest: req}, nil

	case *events.FindHTTPResponsesRequest:
		if h.opts.Store == nil {
			return nil, ErrNoStore
		}
		limit := 0
		if p.Limit != nil {
			limit = *p.Limit
		}
		responses, err := h.opts.Store.FindHTTPResponses(ctx, p.RequestID, limit)
		if err != nil {
			return nil, err
		}
		if responses == nil {
			responses = []models.HTTPResponse{}
		}
		return &events.FindHTTPResponsesResponse{HTTPResponses: responses}, nil
	}

	return nil, NewUnsupportedRequestError(env.Type(), "plugin "+pluginID)
}
