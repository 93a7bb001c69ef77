package plugin

import (
	"fmt"

	"github.com/dorcha-inc/hookhost/internal/events"
	"github.com/dorcha-inc/hookhost/internal/worker"
)

// The unified error taxonomy seen by callers of the Manager.
type (
	LoadError       = worker.LoadError
	InvocationError = worker.InvocationError
	TimeoutError    = worker.TimeoutError
	ProtocolError   = events.ProtocolError
)

// ErrWorkerTerminated is returned for calls on a plugin that has ended.
var ErrWorkerTerminated = worker.ErrWorkerTerminated

// PluginNotFoundError is returned when no active plugin has the given id
type PluginNotFoundError struct {
	ID         string `json:"id"`
	Suggestion string `json:"suggestion,omitempty"`
}

// NewPluginNotFoundError creates a new PluginNotFoundError
func NewPluginNotFoundError(id string, suggestion string) *PluginNotFoundError {
	return &PluginNotFoundError{ID: id, Suggestion: suggestion}
}

func (e *PluginNotFoundError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("plugin %s not found (did you mean %s?)", e.ID, e.Suggestion)
	}
	return fmt.Sprintf("plugin %s not found", e.ID)
}

// Interface guard for PluginNotFoundError
var _ error = &PluginNotFoundError{}

// ReloadError reports a failed reload. The previous descriptor stays active.
type ReloadError struct {
	ID  string `json:"id"`
	Err error  `json:"-"`
}

// NewReloadError creates a new ReloadError
func NewReloadError(id string, err error) *ReloadError {
	return &ReloadError{ID: id, Err: err}
}

func (e *ReloadError) Error() string {
	return fmt.Sprintf("failed to reload plugin %s: %v", e.ID, e.Err)
}

func (e *ReloadError) Unwrap() error {
	return e.Err
}

// Interface guard for ReloadError
var _ error = &ReloadError{}

// NoCapablePluginError is returned when no active plugin exports the hook for a capability
type NoCapablePluginError struct {
	Capability worker.Capability `json:"capability"`
}

// NewNoCapablePluginError creates a new NoCapablePluginError
func NewNoCapablePluginError(c worker.Capability) *NoCapablePluginError {
	return &NoCapablePluginError{Capability: c}
}

func (e *NoCapablePluginError) Error() string {
	return fmt.Sprintf("no plugin provides %s", e.Capability)
}

// Interface guard for NoCapablePluginError
var _ error = &NoCapablePluginError{}

// CapabilityNotSupportedError is returned when a named plugin lacks a capability
type CapabilityNotSupportedError struct {
	ID         string            `json:"id"`
	Capability worker.Capability `json:"capability"`
}

// NewCapabilityNotSupportedError creates a new CapabilityNotSupportedError
func NewCapabilityNotSupportedError(id string, c worker.Capability) *CapabilityNotSupportedError {
	return &CapabilityNotSupportedError{ID: id, Capability: c}
}

func (e *CapabilityNotSupportedError) Error() string {
	return fmt.Sprintf("plugin %s does not support %s", e.ID, e.Capability)
}

// Interface guard for CapabilityNotSupportedError
var _ error = &CapabilityNotSupportedError{}
