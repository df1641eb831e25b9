// Package memory implements an in-process asset library seeded from YAML
// fixtures. It backs tests, demos and the default server configuration.
package memory

import (
	"context"
	"fmt"
	"maps"
	"path"
	"sync"

	"github.com/google/uuid"
	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/internal/plugins"
	"go.uber.org/zap"
)

const (
	Identifier  = "org.assetio.memory"
	DisplayName = "In-Memory Asset Library"
	Scheme      = "mem"
)

// Settings are accepted by Initialize and reported by Settings.
type Settings struct {
	FixturePath   string            `mapstructure:"fixture_path"`
	ManagedTraits []string          `mapstructure:"managed_traits"`
	Capabilities  []string          `mapstructure:"capabilities"`
	Terminology   map[string]string `mapstructure:"terminology"`
}

// State is the manager state carried by contexts created against the plugin
type State struct {
	ID     string
	Parent string
}

// Option configures a Plugin
type Option func(*Plugin)

// WithSchemaRegistry validates published traits data
func WithSchemaRegistry(registry assetio.TraitSchemaRegistry) Option {
	return func(p *Plugin) {
		p.schemas = registry
	}
}

// WithFixture seeds the library directly, bypassing fixture_path
func WithFixture(fixture *Fixture) Option {
	return func(p *Plugin) {
		p.fixture = fixture
	}
}

// Plugin is the in-memory ManagerInterface
type Plugin struct {
	assetio.UnimplementedManagerInterface

	codec   plugins.RefCodec
	schemas assetio.TraitSchemaRegistry
	fixture *Fixture

	mu       sync.RWMutex
	settings Settings
	caps     plugins.CapabilitySet
	managed  assetio.TraitSet
	lib      *library
}

// New creates an empty library. Fixtures are loaded by Initialize.
func New(settings Settings, opts ...Option) *Plugin {
	p := &Plugin{
		codec:    plugins.RefCodec{Scheme: Scheme},
		settings: settings,
		caps:     plugins.NewCapabilitySet(assetio.AllCapabilities()...),
		managed:  assetio.NewTraitSet(settings.ManagedTraits...),
		lib:      newLibrary(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Plugin) Identifier() string  { return Identifier }
func (p *Plugin) DisplayName() string { return DisplayName }

func (p *Plugin) Info() assetio.InfoDictionary {
	return assetio.InfoDictionary{
		assetio.InfoKeyEntityReferencesMatchPrefix: p.codec.Prefix(),
	}
}

func (p *Plugin) HasCapability(c assetio.Capability) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.caps.Has(c)
}

func (p *Plugin) Settings(context.Context, *assetio.HostSession) (map[string]any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return plugins.SettingsMap(p.settings)
}

// Initialize applies settings over the current ones and (re)loads the
// library from the fixture.
func (p *Plugin) Initialize(_ context.Context, _ *assetio.HostSession, settings map[string]any) error {
	p.mu.RLock()
	next := p.settings
	p.mu.RUnlock()
	next.Terminology = maps.Clone(next.Terminology)

	if err := plugins.DecodeSettings(settings, &next); err != nil {
		return err
	}
	caps, err := plugins.ParseCapabilities(next.Capabilities)
	if err != nil {
		return err
	}

	fixture := p.fixture
	if next.FixturePath != "" {
		if fixture, err = LoadFixture(next.FixturePath); err != nil {
			return assetio.NewConfigurationError(assetio.ErrCodeInvalidSettings, err.Error()).WithCause(err)
		}
	}
	lib := newLibrary()
	if fixture != nil {
		if lib, err = fixture.build(); err != nil {
			return assetio.NewConfigurationError(assetio.ErrCodeInvalidSettings, err.Error()).WithCause(err)
		}
	}

	p.mu.Lock()
	p.settings = next
	p.caps = caps
	p.managed = assetio.NewTraitSet(next.ManagedTraits...)
	p.lib = lib
	p.mu.Unlock()

	zap.S().Infow("memory library initialized",
		"entities", len(lib.entities), "relationships", len(lib.edges), "capabilities", caps.Names())
	return nil
}

func (p *Plugin) FlushCaches(context.Context, *assetio.HostSession) error {
	return nil
}

// UpdateTerminology substitutes any term the library has configured a
// replacement for.
func (p *Plugin) UpdateTerminology(_ context.Context, _ *assetio.HostSession, terms map[string]string) (map[string]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(terms))
	for k, v := range terms {
		if replacement, ok := p.settings.Terminology[k]; ok {
			v = replacement
		}
		out[k] = v
	}
	return out, nil
}

func (p *Plugin) CreateState(context.Context, *assetio.HostSession) (any, error) {
	return &State{ID: uuid.NewString()}, nil
}

func (p *Plugin) CreateChildState(_ context.Context, _ *assetio.HostSession, parent any) (any, error) {
	ps, ok := parent.(*State)
	if !ok {
		return nil, fmt.Errorf("unexpected parent state type %T", parent)
	}
	return &State{ID: uuid.NewString(), Parent: ps.ID}, nil
}

func (p *Plugin) IsEntityReferenceString(_ context.Context, _ *assetio.HostSession, s string) (bool, error) {
	return p.codec.IsReference(s), nil
}

func (p *Plugin) ManagementPolicy(_ context.Context, _ *assetio.HostSession, traitSets []assetio.TraitSet, _ assetio.Access, _ *assetio.Context) ([]*assetio.TraitsData, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return plugins.ManagementPolicy(p.managed, traitSets), nil
}

// lookup finds an entity under the read lock
func (p *Plugin) lookup(ref assetio.EntityReference) (plugins.Locator, *entity, *assetio.BatchElementError) {
	loc, berr := p.codec.Parse(ref)
	if berr != nil {
		return loc, nil, berr
	}
	p.mu.RLock()
	e := p.lib.entities[loc.Path]
	p.mu.RUnlock()
	if e == nil {
		return loc, nil, assetio.NewBatchElementErrorf(assetio.KindEntityNotFound, "entity %s not found", ref)
	}
	return loc, e, nil
}

func (p *Plugin) ResolveEntity(_ context.Context, _ *assetio.HostSession, ref assetio.EntityReference, traitSet assetio.TraitSet, access assetio.Access, _ *assetio.Context) (*assetio.TraitsData, error) {
	if access != assetio.AccessRead && access != assetio.AccessManagerDriven {
		return nil, assetio.NewBatchElementErrorf(assetio.KindEntityAccessError,
			"entity %s cannot be resolved for %s access", ref, access)
	}
	loc, e, berr := p.lookup(ref)
	if berr != nil {
		return nil, berr
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if e.restricted {
		return nil, assetio.NewBatchElementErrorf(assetio.KindEntityAccessError, "access to %s is restricted", ref)
	}
	data := e.latest()
	if loc.Version > 0 {
		if loc.Version > len(e.versions) {
			return nil, assetio.NewBatchElementErrorf(assetio.KindEntityResolutionError,
				"version %d of %s does not exist", loc.Version, loc.Path)
		}
		data = e.versions[loc.Version-1]
	}
	return data.Filter(traitSet), nil
}

func (p *Plugin) EntityExists(_ context.Context, _ *assetio.HostSession, ref assetio.EntityReference, _ *assetio.Context) (bool, error) {
	_, _, berr := p.lookup(ref)
	if berr == nil {
		return true, nil
	}
	if berr.Kind == assetio.KindEntityNotFound {
		return false, nil
	}
	return false, berr
}

// EntityTraits reports the stored traits for Read access. For Write access
// an unknown entity has no trait constraints.
func (p *Plugin) EntityTraits(_ context.Context, _ *assetio.HostSession, ref assetio.EntityReference, access assetio.Access, _ *assetio.Context) (assetio.TraitSet, error) {
	_, e, berr := p.lookup(ref)
	if berr != nil {
		if access == assetio.AccessWrite && berr.Kind == assetio.KindEntityNotFound {
			return assetio.NewTraitSet(), nil
		}
		return nil, berr
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return e.latest().TraitSet(), nil
}

func (p *Plugin) RelatedEntities(_ context.Context, _ *assetio.HostSession, ref assetio.EntityReference, relationship *assetio.TraitsData, resultTraitSet assetio.TraitSet, pageSize int, access assetio.Access, _ *assetio.Context) (assetio.EntityReferencePager, error) {
	if access != assetio.AccessRead {
		return nil, assetio.NewBatchElementErrorf(assetio.KindEntityAccessError,
			"relationships of %s cannot be queried for %s access", ref, access)
	}
	loc, _, berr := p.lookup(ref)
	if berr != nil {
		return nil, berr
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	var refs []assetio.EntityReference
	for _, edge := range p.lib.edges {
		if edge.source != loc.Path || !edge.relationship.Contains(relationship) {
			continue
		}
		target := p.lib.entities[edge.target]
		if len(resultTraitSet) > 0 && !resultTraitSet.IsSubsetOf(target.latest().TraitSet()) {
			continue
		}
		refs = append(refs, p.codec.Format(edge.target, 0))
	}
	return plugins.NewSlicePager(refs, pageSize), nil
}

func (p *Plugin) validate(data *assetio.TraitsData) error {
	if p.schemas == nil {
		return nil
	}
	return p.schemas.Validate(data)
}

// target works out which path a publish call writes to. CreateRelated
// access mints a child of the given entity.
func (p *Plugin) target(ref assetio.EntityReference, access assetio.Access) (string, *assetio.BatchElementError) {
	loc, berr := p.codec.Parse(ref)
	if berr != nil {
		return "", berr
	}
	p.mu.RLock()
	e := p.lib.entities[loc.Path]
	p.mu.RUnlock()
	if e != nil && e.restricted {
		return "", assetio.NewBatchElementErrorf(assetio.KindEntityAccessError, "access to %s is restricted", ref)
	}
	if access == assetio.AccessCreateRelated {
		if e == nil {
			return "", assetio.NewBatchElementErrorf(assetio.KindEntityNotFound, "entity %s not found", ref)
		}
		return path.Join(loc.Path, uuid.NewString()), nil
	}
	return loc.Path, nil
}

func (p *Plugin) PreflightEntity(_ context.Context, _ *assetio.HostSession, ref assetio.EntityReference, hint *assetio.TraitsData, access assetio.Access, _ *assetio.Context) (assetio.EntityReference, error) {
	if err := p.validate(hint); err != nil {
		return assetio.EntityReference{}, assetio.NewBatchElementError(assetio.KindInvalidPreflightHint, err.Error())
	}
	target, berr := p.target(ref, access)
	if berr != nil {
		return assetio.EntityReference{}, berr
	}
	return p.codec.Format(target, 0), nil
}

func (p *Plugin) RegisterEntity(_ context.Context, _ *assetio.HostSession, ref assetio.EntityReference, data *assetio.TraitsData, access assetio.Access, _ *assetio.Context) (assetio.EntityReference, error) {
	if err := p.validate(data); err != nil {
		return assetio.EntityReference{}, assetio.NewBatchElementError(assetio.KindInvalidTraitSet, err.Error())
	}
	target, berr := p.target(ref, access)
	if berr != nil {
		return assetio.EntityReference{}, berr
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.lib.entities[target]
	if e == nil {
		e = &entity{}
		p.lib.entities[target] = e
	}
	e.versions = append(e.versions, data.Clone())
	zap.S().Debugw("registered entity", "path", target, "version", len(e.versions))
	return p.codec.Format(target, len(e.versions)), nil
}

func (p *Plugin) DefaultEntityReference(_ context.Context, _ *assetio.HostSession, traitSet assetio.TraitSet, access assetio.Access, _ *assetio.Context) (*assetio.EntityReference, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	target, ok := p.lib.defaults[plugins.DefaultKey(traitSet, access)]
	if !ok {
		return nil, nil
	}
	ref := p.codec.Format(target, 0)
	return &ref, nil
}
