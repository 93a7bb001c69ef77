package plugin

import (
	"encoding/json"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/dorcha-inc/hookhost/internal/worker"
)

// State represents the lifecycle state of a registered plugin
type State string

const (
	StateDiscovering State = "DISCOVERING"
	StateBooted      State = "BOOTED"
	StateActive      State = "ACTIVE"
	StateReloading   State = "RELOADING"
	StateTerminated  State = "TERMINATED"
)

// Descriptor identifies an installed plugin. It is immutable once created and
// replaced wholesale on reload.
type Descriptor struct {
	ID           string
	Name         string
	Version      string
	Dir          string
	Capabilities mapset.Set[worker.Capability]
	BootedAt     time.Time
}

func newDescriptor(info *worker.PluginInfo, bootedAt time.Time) *Descriptor {
	return &Descriptor{
		ID:           info.Name,
		Name:         info.Name,
		Version:      info.Version,
		Dir:          info.Dir,
		Capabilities: info.Capabilities.Clone(),
		BootedAt:     bootedAt,
	}
}

// Has reports whether the plugin exports the hook granting c.
func (d *Descriptor) Has(c worker.Capability) bool {
	return d.Capabilities.Contains(c)
}

// CapabilityNames returns the capabilities sorted by name.
func (d *Descriptor) CapabilityNames() []string {
	info := worker.PluginInfo{Capabilities: d.Capabilities}
	return info.CapabilityNames()
}

// record is the registry entry for one plugin; it is replaced, never mutated.
type record struct {
	descriptor *Descriptor
	handle     *worker.Handle
	state      State
}

func (r *record) withState(s State) *record {
	return &record{descriptor: r.descriptor, handle: r.handle, state: s}
}

// Snapshot is a point-in-time view of a registered plugin.
type Snapshot struct {
	Descriptor *Descriptor
	State      State
	Pending    int
}

type snapshotJSON struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Dir          string   `json:"dir"`
	Capabilities []string `json:"capabilities"`
	State        State    `json:"state"`
	Pending      int      `json:"pending"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		ID:           s.Descriptor.ID,
		Name:         s.Descriptor.Name,
		Version:      s.Descriptor.Version,
		Dir:          s.Descriptor.Dir,
		Capabilities: s.Descriptor.CapabilityNames(),
		State:        s.State,
		Pending:      s.Pending,
	})
}
