package worker

import (
	"encoding/json"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// PluginInfo is what a successful boot learns about a plugin.
type PluginInfo struct {
	Name         string
	Version      string
	Dir          string
	Capabilities mapset.Set[Capability]
	Concurrent   bool
}

// Has reports whether the plugin exports the hook granting c.
func (i *PluginInfo) Has(c Capability) bool {
	return i.Capabilities != nil && i.Capabilities.Contains(c)
}

// CapabilityNames returns the capabilities sorted by name.
func (i *PluginInfo) CapabilityNames() []string {
	if i.Capabilities == nil {
		return []string{}
	}
	names := make([]string, 0, i.Capabilities.Cardinality())
	for c := range i.Capabilities.Iter() {
		names = append(names, string(c))
	}
	slices.Sort(names)
	return names
}

type pluginInfoJSON struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Dir          string   `json:"dir"`
	Capabilities []string `json:"capabilities"`
	Concurrent   bool     `json:"concurrent"`
}

func (i *PluginInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(pluginInfoJSON{
		Name:         i.Name,
		Version:      i.Version,
		Dir:          i.Dir,
		Capabilities: i.CapabilityNames(),
		Concurrent:   i.Concurrent,
	})
}

func (i *PluginInfo) UnmarshalJSON(data []byte) error {
	var raw pluginInfoJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	caps := mapset.NewSet[Capability]()
	for _, name := range raw.Capabilities {
		caps.Add(Capability(name))
	}
	*i = PluginInfo{
		Name:         raw.Name,
		Version:      raw.Version,
		Dir:          raw.Dir,
		Capabilities: caps,
		Concurrent:   raw.Concurrent,
	}
	return nil
}
