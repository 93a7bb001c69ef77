package plugin

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/dorcha-inc/hookhost/internal/models"
	"github.com/dorcha-inc/hookhost/internal/worker"
)

// Reply is a hook result along with the plugin that produced it.
type Reply struct {
	PluginID string
	Payload  json.RawMessage
}

// CallFirst invokes the hook for c on pluginID, or on the first plugin
// exporting it when pluginID is empty.
func (m *Manager) CallFirst(ctx context.Context, c worker.Capability, pluginID string, payload any, opts ...CallOption) (*Reply, error) {
	if pluginID == "" {
		capable := m.FindByCapability(c)
		if len(capable) == 0 {
			return nil, NewNoCapablePluginError(c)
		}
		pluginID = capable[0].ID
	}

	data, err := m.CallCapability(ctx, pluginID, c, payload, opts...)
	if err != nil {
		return nil, err
	}
	return &Reply{PluginID: pluginID, Payload: data}, nil
}

// FirstAccepted invokes the hook for c on each capable plugin in discovery
// order and returns the first reply accept approves. Plugin failures are
// logged and skipped; a nil reply means nobody produced an accepted result.
func (m *Manager) FirstAccepted(ctx context.Context, c worker.Capability, payload any, accept func(json.RawMessage) bool, opts ...CallOption) (*Reply, error) {
	capable := m.FindByCapability(c)
	if len(capable) == 0 {
		return nil, NewNoCapablePluginError(c)
	}

	var errs []error
	for _, d := range capable {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := m.CallCapability(ctx, d.ID, c, payload, opts...)
		if err != nil {
			zap.L().Warn("Plugin hook failed, trying next plugin",
				zap.String("plugin", d.ID),
				zap.String("capability", string(c)),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if accept(data) {
			return &Reply{PluginID: d.ID, Payload: data}, nil
		}
	}

	if len(errs) == len(capable) {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}

// NotifyModelChange posts ev to every plugin observing model changes.
// Delivery is fire and forget.
func (m *Manager) NotifyModelChange(ev models.ChangeEvent) {
	observers := m.FindByCapability(worker.CapabilityModelEvents)
	if len(observers) == 0 {
		return
	}

	hook, _ := worker.HookByCapability(worker.CapabilityModelEvents)
	data, err := json.Marshal(ev)
	if err != nil {
		zap.L().Error("Failed to encode model change", zap.Error(err))
		return
	}

	for _, d := range observers {
		if err := m.Post(d.ID, worker.Message{Name: hook.Request, Payload: data}); err != nil {
			zap.L().Debug("Failed to notify plugin of model change",
				zap.String("plugin", d.ID),
				zap.Error(err))
		}
	}
}
