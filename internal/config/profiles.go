package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is one named workshop image/port pair selectable at login time.
type Profile struct {
	Image string `yaml:"image"`
	Port  int32  `yaml:"port"`
}

// ProfileCatalog is the optional profiles.yaml workshop catalog.
type ProfileCatalog struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// LoadProfiles reads the catalog at path. A missing file is not an error —
// it yields an empty catalog, meaning only the default WORKSHOP_IMAGE/
// WORKSHOP_PORT pair is available (spec.md §6 expansion).
func LoadProfiles(path string) (*ProfileCatalog, error) {
	catalog := &ProfileCatalog{Profiles: map[string]Profile{}}
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return catalog, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, catalog); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if catalog.Profiles == nil {
		catalog.Profiles = map[string]Profile{}
	}
	return catalog, nil
}

// Resolve returns the image/port for the named profile, falling back to
// the hub's default workshop image/port when name is empty or unknown.
func (c *ProfileCatalog) Resolve(name string, defaultImage string, defaultPort int32) (image string, port int32) {
	if name == "" {
		return defaultImage, defaultPort
	}
	p, ok := c.Profiles[name]
	if !ok {
		return defaultImage, defaultPort
	}
	return p.Image, p.Port
}
