// Package worker owns the isolated execution context of a single plugin and
// the request/reply protocol spoken over its message channel.
package worker

import (
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// Capability is an invocable plugin hook as seen by the host.
type Capability string

const (
	CapabilityImport      Capability = "import"
	CapabilityExport      Capability = "export"
	CapabilityFilter      Capability = "filter"
	CapabilityModelEvents Capability = "model_events"
)

// Request names sent to plugins.
const (
	RequestImport       = "run-import"
	RequestExport       = "run-export"
	RequestFilter       = "run-filter"
	RequestModelChanged = "run-model-changed"
	RequestInfo         = "info"
)

// Hook ties an exported plugin entry point to the capability it grants and
// the request name that invokes it.
type Hook struct {
	Export     string
	Capability Capability
	Request    string
}

// Hooks are additive: new entries must not change existing ones.
var hooks = []Hook{
	{Export: "pluginHookImport", Capability: CapabilityImport, Request: RequestImport},
	{Export: "pluginHookExport", Capability: CapabilityExport, Request: RequestExport},
	{Export: "pluginHookResponseFilter", Capability: CapabilityFilter, Request: RequestFilter},
	{Export: "pluginHookModelChanged", Capability: CapabilityModelEvents, Request: RequestModelChanged},
}

// Hooks returns the known hooks in registry order.
func Hooks() []Hook {
	return slices.Clone(hooks)
}

// HookByExport looks a hook up by its exported entry point name.
func HookByExport(export string) (Hook, bool) {
	i := slices.IndexFunc(hooks, func(h Hook) bool { return h.Export == export })
	if i < 0 {
		return Hook{}, false
	}
	return hooks[i], true
}

// HookByCapability looks a hook up by the capability it grants.
func HookByCapability(c Capability) (Hook, bool) {
	i := slices.IndexFunc(hooks, func(h Hook) bool { return h.Capability == c })
	if i < 0 {
		return Hook{}, false
	}
	return hooks[i], true
}

// ParseCapability validates a capability name.
func ParseCapability(s string) (Capability, error) {
	if _, ok := HookByCapability(Capability(s)); !ok {
		return "", fmt.Errorf("unknown capability %q", s)
	}
	return Capability(s), nil
}

// ProbeCapabilities resolves advertised exports against the hook registry.
// Exports that match no hook are returned separately.
func ProbeCapabilities(exports []string) (mapset.Set[Capability], []string) {
	caps := mapset.NewSet[Capability]()
	var unknown []string
	for _, export := range exports {
		hook, ok := HookByExport(export)
		if !ok {
			unknown = append(unknown, export)
			continue
		}
		caps.Add(hook.Capability)
	}
	return caps, unknown
}
