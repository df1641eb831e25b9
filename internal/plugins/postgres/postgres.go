// Package postgres implements a manager plugin over PostgreSQL. Every
// registration is kept as a new row so pinned references stay resolvable.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/internal/plugins"
	"go.uber.org/zap"
)

const (
	Identifier  = "org.assetio.postgres"
	DisplayName = "PostgreSQL Asset Library"
	Scheme      = "pg"
)

// Pool is the subset of pgxpool.Pool the plugin uses
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Settings are accepted by Initialize and reported by Settings.
type Settings struct {
	ManagedTraits []string `mapstructure:"managed_traits"`
	Capabilities  []string `mapstructure:"capabilities"`
	CreateTables  bool     `mapstructure:"create_tables"`
}

// defaultCapabilities leaves out stateful contexts and custom terminology,
// which the database has nothing to offer for.
var defaultCapabilities = []string{
	"entityReferenceIdentification",
	"managementPolicyQueries",
	"resolution",
	"publishing",
	"relationshipQueries",
	"existenceQueries",
	"defaultEntityReferences",
	"entityTraitIntrospection",
}

type Plugin struct {
	assetio.UnimplementedManagerInterface

	pool    Pool
	sql     *statements
	codec   plugins.RefCodec
	schemas assetio.TraitSchemaRegistry

	mu       sync.RWMutex
	settings Settings
	caps     plugins.CapabilitySet
	managed  assetio.TraitSet
}

// New creates the plugin. schemas may be nil to skip trait validation.
func New(pool Pool, tables assetio.PostgresTableNames, settings Settings, schemas assetio.TraitSchemaRegistry) (*Plugin, error) {
	stmts, err := newStatements(tables)
	if err != nil {
		return nil, err
	}
	if len(settings.Capabilities) == 0 {
		settings.Capabilities = defaultCapabilities
	}
	caps, err := plugins.ParseCapabilities(settings.Capabilities)
	if err != nil {
		return nil, err
	}
	return &Plugin{
		pool:     pool,
		sql:      stmts,
		codec:    plugins.RefCodec{Scheme: Scheme},
		schemas:  schemas,
		settings: settings,
		caps:     caps,
		managed:  assetio.NewTraitSet(settings.ManagedTraits...),
	}, nil
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

func (p *Plugin) Initialize(ctx context.Context, _ *assetio.HostSession, settings map[string]any) error {
	p.mu.RLock()
	next := p.settings
	p.mu.RUnlock()
	if err := plugins.DecodeSettings(settings, &next); err != nil {
		return err
	}
	caps, err := plugins.ParseCapabilities(next.Capabilities)
	if err != nil {
		return err
	}
	if next.CreateTables {
		if err := p.EnsureTables(ctx); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.settings = next
	p.caps = caps
	p.managed = assetio.NewTraitSet(next.ManagedTraits...)
	p.mu.Unlock()
	return nil
}

// EnsureTables creates the plugin tables when they do not exist
func (p *Plugin) EnsureTables(ctx context.Context) error {
	for _, stmt := range []string{p.sql.createEntities, p.sql.createRelationships, p.sql.createDefaults} {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	zap.S().Infow("postgres asset tables ready")
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

func notFound(ref assetio.EntityReference) *assetio.BatchElementError {
	return assetio.NewBatchElementErrorf(assetio.KindEntityNotFound, "entity %s not found", ref)
}

func restricted(ref assetio.EntityReference) *assetio.BatchElementError {
	return assetio.NewBatchElementErrorf(assetio.KindEntityAccessError, "access to %s is restricted", ref)
}

func decodeTraits(raw []byte) (*assetio.TraitsData, error) {
	data := assetio.NewTraitsData(nil)
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("failed to decode stored traits: %w", err)
	}
	return data, nil
}

func (p *Plugin) ResolveEntity(ctx context.Context, _ *assetio.HostSession, ref assetio.EntityReference, traitSet assetio.TraitSet, access assetio.Access, _ *assetio.Context) (*assetio.TraitsData, error) {
	if access != assetio.AccessRead && access != assetio.AccessManagerDriven {
		return nil, assetio.NewBatchElementErrorf(assetio.KindEntityAccessError,
			"entity %s cannot be resolved for %s access", ref, access)
	}
	loc, berr := p.codec.Parse(ref)
	if berr != nil {
		return nil, berr
	}

	var (
		version      int
		raw          []byte
		isRestricted bool
	)
	err := p.pool.QueryRow(ctx, p.sql.resolve, loc.Path, loc.Version).Scan(&version, &raw, &isRestricted)
	if errors.Is(err, pgx.ErrNoRows) {
		if loc.Version == 0 {
			return nil, notFound(ref)
		}
		exists, err := p.exists(ctx, loc.Path)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, notFound(ref)
		}
		return nil, assetio.NewBatchElementErrorf(assetio.KindEntityResolutionError,
			"version %d of %s does not exist", loc.Version, loc.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", ref, err)
	}
	if isRestricted {
		return nil, restricted(ref)
	}
	data, err := decodeTraits(raw)
	if err != nil {
		return nil, err
	}
	return data.Filter(traitSet), nil
}

func (p *Plugin) exists(ctx context.Context, path string) (bool, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, p.sql.exists, path).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check existence of %s: %w", path, err)
	}
	return exists, nil
}

func (p *Plugin) EntityExists(ctx context.Context, _ *assetio.HostSession, ref assetio.EntityReference, _ *assetio.Context) (bool, error) {
	loc, berr := p.codec.Parse(ref)
	if berr != nil {
		return false, berr
	}
	return p.exists(ctx, loc.Path)
}

func (p *Plugin) EntityTraits(ctx context.Context, _ *assetio.HostSession, ref assetio.EntityReference, access assetio.Access, _ *assetio.Context) (assetio.TraitSet, error) {
	loc, berr := p.codec.Parse(ref)
	if berr != nil {
		return nil, berr
	}
	var raw []byte
	err := p.pool.QueryRow(ctx, p.sql.latestTraits, loc.Path).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		if access == assetio.AccessWrite {
			return assetio.NewTraitSet(), nil
		}
		return nil, notFound(ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read traits of %s: %w", ref, err)
	}
	data, err := decodeTraits(raw)
	if err != nil {
		return nil, err
	}
	return data.TraitSet(), nil
}

func (p *Plugin) RelatedEntities(ctx context.Context, _ *assetio.HostSession, ref assetio.EntityReference, relationship *assetio.TraitsData, resultTraitSet assetio.TraitSet, pageSize int, access assetio.Access, _ *assetio.Context) (assetio.EntityReferencePager, error) {
	if access != assetio.AccessRead {
		return nil, assetio.NewBatchElementErrorf(assetio.KindEntityAccessError,
			"relationships of %s cannot be queried for %s access", ref, access)
	}
	loc, berr := p.codec.Parse(ref)
	if berr != nil {
		return nil, berr
	}
	exists, err := p.exists(ctx, loc.Path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, notFound(ref)
	}

	query, err := json.Marshal(relationship)
	if err != nil {
		return nil, fmt.Errorf("failed to encode relationship: %w", err)
	}
	rows, err := p.pool.Query(ctx, p.sql.related, loc.Path, string(query))
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships of %s: %w", ref, err)
	}
	defer rows.Close()

	var refs []assetio.EntityReference
	for rows.Next() {
		var (
			target string
			raw    []byte
		)
		if err := rows.Scan(&target, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		if len(resultTraitSet) > 0 {
			traits, err := decodeTraits(raw)
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
		return nil, fmt.Errorf("error iterating relationships: %w", err)
	}
	return plugins.NewSlicePager(refs, pageSize), nil
}

type entityState struct {
	exists     bool
	restricted bool
	version    int
}

func (p *Plugin) entityState(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, path string) (entityState, error) {
	var st entityState
	if err := q.QueryRow(ctx, p.sql.state, path).Scan(&st.exists, &st.restricted, &st.version); err != nil {
		return st, fmt.Errorf("failed to read state of %s: %w", path, err)
	}
	return st, nil
}

func (p *Plugin) validate(data *assetio.TraitsData) error {
	if p.schemas == nil {
		return nil
	}
	return p.schemas.Validate(data)
}

func (p *Plugin) PreflightEntity(ctx context.Context, _ *assetio.HostSession, ref assetio.EntityReference, hint *assetio.TraitsData, access assetio.Access, _ *assetio.Context) (assetio.EntityReference, error) {
	if err := p.validate(hint); err != nil {
		return assetio.EntityReference{}, assetio.NewBatchElementError(assetio.KindInvalidPreflightHint, err.Error())
	}
	loc, berr := p.codec.Parse(ref)
	if berr != nil {
		return assetio.EntityReference{}, berr
	}
	st, err := p.entityState(ctx, p.pool, loc.Path)
	if err != nil {
		return assetio.EntityReference{}, err
	}
	if st.restricted {
		return assetio.EntityReference{}, restricted(ref)
	}
	if access == assetio.AccessCreateRelated {
		if !st.exists {
			return assetio.EntityReference{}, notFound(ref)
		}
		return p.codec.Format(path.Join(loc.Path, uuid.NewString()), 0), nil
	}
	return p.codec.Format(loc.Path, 0), nil
}

// RegisterEntity appends a version under a transaction-scoped advisory lock
// on the entity path. CreateRelated access mints a child of an existing
// entity at version 1.
func (p *Plugin) RegisterEntity(ctx context.Context, _ *assetio.HostSession, ref assetio.EntityReference, data *assetio.TraitsData, access assetio.Access, _ *assetio.Context) (assetio.EntityReference, error) {
	if err := p.validate(data); err != nil {
		return assetio.EntityReference{}, assetio.NewBatchElementError(assetio.KindInvalidTraitSet, err.Error())
	}
	loc, berr := p.codec.Parse(ref)
	if berr != nil {
		return assetio.EntityReference{}, berr
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return assetio.EntityReference{}, fmt.Errorf("failed to encode traits: %w", err)
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return assetio.EntityReference{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// A CreateRelated child is a fresh path, so the lock is always on the
	// given one.
	if _, err := tx.Exec(ctx, p.sql.lock, loc.Path); err != nil {
		return assetio.EntityReference{}, fmt.Errorf("failed to lock %s: %w", loc.Path, err)
	}
	st, err := p.entityState(ctx, tx, loc.Path)
	if err != nil {
		return assetio.EntityReference{}, err
	}
	if st.restricted {
		return assetio.EntityReference{}, restricted(ref)
	}
	target, version := loc.Path, st.version+1
	if access == assetio.AccessCreateRelated {
		if !st.exists {
			return assetio.EntityReference{}, notFound(ref)
		}
		target, version = path.Join(loc.Path, uuid.NewString()), 1
	}
	if _, err := tx.Exec(ctx, p.sql.insert, target, version, string(payload)); err != nil {
		return assetio.EntityReference{}, fmt.Errorf("failed to insert %s: %w", target, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return assetio.EntityReference{}, fmt.Errorf("failed to commit registration: %w", err)
	}

	zap.S().Debugw("registered entity", "path", target, "version", version)
	return p.codec.Format(target, version), nil
}

func (p *Plugin) DefaultEntityReference(ctx context.Context, _ *assetio.HostSession, traitSet assetio.TraitSet, access assetio.Access, _ *assetio.Context) (*assetio.EntityReference, error) {
	var target string
	err := p.pool.QueryRow(ctx, p.sql.defaultRef, traitSet.Key(), access.String()).Scan(&target)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read default reference: %w", err)
	}
	ref := p.codec.Format(target, 0)
	return &ref, nil
}
