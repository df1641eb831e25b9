package memory

import (
	"fmt"
	"os"
	"strings"

	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/internal/plugins"
	"gopkg.in/yaml.v3"
)

// Fixture is the YAML document a library is seeded from. Entity paths are
// relative to the mem:/// prefix.
type Fixture struct {
	Entities      map[string]FixtureEntity `yaml:"entities"`
	Relationships []FixtureRelationship    `yaml:"relationships"`
	Defaults      []FixtureDefault         `yaml:"defaults"`
}

// FixtureEntity lists versions oldest first
type FixtureEntity struct {
	Restricted bool             `yaml:"restricted"`
	Versions   []FixtureVersion `yaml:"versions"`
}

type FixtureVersion struct {
	Traits map[string]map[string]any `yaml:"traits"`
}

type FixtureRelationship struct {
	Source       string                    `yaml:"source"`
	Target       string                    `yaml:"target"`
	Relationship map[string]map[string]any `yaml:"relationship"`
}

type FixtureDefault struct {
	Traits []string `yaml:"traits"`
	Access string   `yaml:"access"`
	Entity string   `yaml:"entity"`
}

// LoadFixture reads and parses a fixture file
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}
	fixture, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	return fixture, nil
}

// ParseFixture parses fixture YAML
func ParseFixture(data []byte) (*Fixture, error) {
	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, err
	}
	return &fixture, nil
}

// library is the in-memory state a fixture expands into.
type library struct {
	entities map[string]*entity
	edges    []edge
	defaults map[string]string
}

type entity struct {
	restricted bool
	versions   []*assetio.TraitsData
}

func (e *entity) latest() *assetio.TraitsData {
	return e.versions[len(e.versions)-1]
}

type edge struct {
	source       string
	target       string
	relationship *assetio.TraitsData
}

func newLibrary() *library {
	return &library{
		entities: make(map[string]*entity),
		defaults: make(map[string]string),
	}
}

func (f *Fixture) build() (*library, error) {
	lib := newLibrary()
	for path, fe := range f.Entities {
		path = strings.Trim(path, "/")
		if len(fe.Versions) == 0 {
			return nil, fmt.Errorf("entity %s has no versions", path)
		}
		e := &entity{restricted: fe.Restricted}
		for i, v := range fe.Versions {
			data, err := assetio.TraitsDataFromMap(v.Traits)
			if err != nil {
				return nil, fmt.Errorf("entity %s version %d: %w", path, i+1, err)
			}
			e.versions = append(e.versions, data)
		}
		lib.entities[path] = e
	}

	for i, r := range f.Relationships {
		source, target := strings.Trim(r.Source, "/"), strings.Trim(r.Target, "/")
		if _, ok := lib.entities[source]; !ok {
			return nil, fmt.Errorf("relationship %d: unknown source %s", i, r.Source)
		}
		if _, ok := lib.entities[target]; !ok {
			return nil, fmt.Errorf("relationship %d: unknown target %s", i, r.Target)
		}
		data, err := assetio.TraitsDataFromMap(r.Relationship)
		if err != nil {
			return nil, fmt.Errorf("relationship %d: %w", i, err)
		}
		lib.edges = append(lib.edges, edge{source: source, target: target, relationship: data})
	}

	for i, d := range f.Defaults {
		access, err := assetio.ParseAccess(d.Access)
		if err != nil {
			return nil, fmt.Errorf("default %d: %w", i, err)
		}
		lib.defaults[plugins.DefaultKey(assetio.NewTraitSet(d.Traits...), access)] = strings.Trim(d.Entity, "/")
	}
	return lib, nil
}
