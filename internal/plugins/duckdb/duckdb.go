// Package duckdb implements a read-only manager plugin over a DuckDB
// catalogue file. Entries are unversioned and the plugin does not publish.
package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/internal/plugins"
)

const (
	Identifier  = "org.assetio.duckdb"
	DisplayName = "DuckDB Asset Catalogue"
	Scheme      = "duck"
)

var supportedCapabilities = []assetio.Capability{
	assetio.CapabilityEntityReferenceIdentification,
	assetio.CapabilityManagementPolicyQueries,
	assetio.CapabilityResolution,
	assetio.CapabilityExistenceQueries,
	assetio.CapabilityEntityTraitIntrospection,
	assetio.CapabilityRelationshipQueries,
}

const (
	selectEntry    = `SELECT traits, restricted FROM catalog WHERE path = ?`
	selectExists   = `SELECT COUNT(*) FROM catalog WHERE path = ?`
	selectRelation = `SELECT r.target_path, r.relationship, c.traits FROM relations r
		JOIN catalog c ON c.path = r.target_path
		WHERE r.source_path = ?
		ORDER BY r.position, r.target_path`
)

// Settings are accepted by Initialize and reported by Settings.
type Settings struct {
	ManagedTraits []string `mapstructure:"managed_traits"`
}

type Plugin struct {
	assetio.UnimplementedManagerInterface

	db    *sql.DB
	codec plugins.RefCodec
	caps  plugins.CapabilitySet

	mu       sync.RWMutex
	settings Settings
	managed  assetio.TraitSet
}

func New(db *sql.DB, settings Settings) *Plugin {
	return &Plugin{
		db:       db,
		codec:    plugins.RefCodec{Scheme: Scheme},
		caps:     plugins.NewCapabilitySet(supportedCapabilities...),
		settings: settings,
		managed:  assetio.NewTraitSet(settings.ManagedTraits...),
	}
}

func (p *Plugin) Identifier() string  { return Identifier }
func (p *Plugin) DisplayName() string { return DisplayName }

func (p *Plugin) Info() assetio.InfoDictionary {
	return assetio.InfoDictionary{
		assetio.InfoKeyEntityReferencesMatchPrefix: p.codec.Prefix(),
	}
}

func (p *Plugin) HasCapability(c assetio.Capability) bool {
	return p.caps.Has(c)
}

func (p *Plugin) Settings(context.Context, *assetio.HostSession) (map[string]any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return plugins.SettingsMap(p.settings)
}

// Initialize checks the catalogue is reachable and applies settings
func (p *Plugin) Initialize(ctx context.Context, _ *assetio.HostSession, settings map[string]any) error {
	if err := HealthCheck(ctx, p.db); err != nil {
		return assetio.NewConfigurationError(assetio.ErrCodeInvalidConfig, err.Error()).WithCause(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.settings
	if err := plugins.DecodeSettings(settings, &next); err != nil {
		return err
	}
	p.settings = next
	p.managed = assetio.NewTraitSet(next.ManagedTraits...)
	return nil
}

func (p *Plugin) FlushCaches(context.Context, *assetio.HostSession) error {
	return nil
}

func (p *Plugin) IsEntityReferenceString(_ context.Context, _ *assetio.HostSession, s string) (bool, error) {
	return p.codec.IsReference(s), nil
}

func (p *Plugin) ManagementPolicy(_ context.Context, _ *assetio.HostSession, traitSets []assetio.TraitSet, _ assetio.Access, _ *assetio.Context) ([]*assetio.TraitsData, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return plugins.ManagementPolicy(p.managed, traitSets), nil
}

func decodeTraits(raw string) (*assetio.TraitsData, error) {
	data := assetio.NewTraitsData(nil)
	if err := json.Unmarshal([]byte(raw), data); err != nil {
		return nil, fmt.Errorf("failed to decode catalogue traits: %w", err)
	}
	return data, nil
}

// catalogEntry is one row of the catalogue for a parsed reference
type catalogEntry struct {
	loc        plugins.Locator
	traits     *assetio.TraitsData
	restricted bool
}

// entry loads a catalogue row. Only version 1 of an entry exists.
func (p *Plugin) entry(ctx context.Context, ref assetio.EntityReference) (catalogEntry, error) {
	loc, berr := p.codec.Parse(ref)
	if berr != nil {
		return catalogEntry{}, berr
	}
	var (
		raw          string
		isRestricted bool
	)
	err := p.db.QueryRowContext(ctx, selectEntry, loc.Path).Scan(&raw, &isRestricted)
	if errors.Is(err, sql.ErrNoRows) {
		return catalogEntry{}, assetio.NewBatchElementErrorf(assetio.KindEntityNotFound, "entity %s not found", ref)
	}
	if err != nil {
		return catalogEntry{}, fmt.Errorf("failed to read catalogue entry %s: %w", loc.Path, err)
	}
	if loc.Version > 1 {
		return catalogEntry{}, assetio.NewBatchElementErrorf(assetio.KindEntityResolutionError,
			"catalogue entry %s has no version %d", loc.Path, loc.Version)
	}
	data, err := decodeTraits(raw)
	if err != nil {
		return catalogEntry{}, err
	}
	return catalogEntry{loc: loc, traits: data, restricted: isRestricted}, nil
}

func (p *Plugin) ResolveEntity(ctx context.Context, _ *assetio.HostSession, ref assetio.EntityReference, traitSet assetio.TraitSet, access assetio.Access, _ *assetio.Context) (*assetio.TraitsData, error) {
	if access != assetio.AccessRead && access != assetio.AccessManagerDriven {
		return nil, assetio.NewBatchElementErrorf(assetio.KindEntityAccessError,
			"catalogue entry %s is read-only", ref)
	}
	e, err := p.entry(ctx, ref)
	if err != nil {
		return nil, err
	}
	if e.restricted {
		return nil, assetio.NewBatchElementErrorf(assetio.KindEntityAccessError, "access to %s is restricted", ref)
	}
	return e.traits.Filter(traitSet), nil
}

func (p *Plugin) EntityExists(ctx context.Context, _ *assetio.HostSession, ref assetio.EntityReference, _ *assetio.Context) (bool, error) {
	loc, berr := p.codec.Parse(ref)
	if berr != nil {
		return false, berr
	}
	var n int
	if err := p.db.QueryRowContext(ctx, selectExists, loc.Path).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check catalogue entry %s: %w", loc.Path, err)
	}
	return n > 0, nil
}

func (p *Plugin) EntityTraits(ctx context.Context, _ *assetio.HostSession, ref assetio.EntityReference, access assetio.Access, _ *assetio.Context) (assetio.TraitSet, error) {
	if access != assetio.AccessRead {
		return nil, assetio.NewBatchElementErrorf(assetio.KindEntityAccessError,
			"catalogue entry %s is read-only", ref)
	}
	e, err := p.entry(ctx, ref)
	if err != nil {
		return nil, err
	}
	return e.traits.TraitSet(), nil
}

func (p *Plugin) RelatedEntities(ctx context.Context, _ *assetio.HostSession, ref assetio.EntityReference, relationship *assetio.TraitsData, resultTraitSet assetio.TraitSet, pageSize int, access assetio.Access, _ *assetio.Context) (assetio.EntityReferencePager, error) {
	if access != assetio.AccessRead {
		return nil, assetio.NewBatchElementErrorf(assetio.KindEntityAccessError,
			"catalogue entry %s is read-only", ref)
	}
	e, err := p.entry(ctx, ref)
	if err != nil {
		return nil, err
	}
	loc := e.loc

	rows, err := p.db.QueryContext(ctx, selectRelation, loc.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations of %s: %w", loc.Path, err)
	}
	defer rows.Close()

	var refs []assetio.EntityReference
	for rows.Next() {
		var target, rawRel, rawTraits string
		if err := rows.Scan(&target, &rawRel, &rawTraits); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		rel, err := decodeTraits(rawRel)
		if err != nil {
			return nil, err
		}
		if !rel.Contains(relationship) {
			continue
		}
		if len(resultTraitSet) > 0 {
			traits, err := decodeTraits(rawTraits)
			if err != nil {
				return nil, err
			}
			if !resultTraitSet.IsSubsetOf(traits.TraitSet()) {
				continue
			}
		}
		refs = append(refs, p.codec.Format(target, 0))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relations: %w", err)
	}
	return plugins.NewSlicePager(refs, pageSize), nil
}
