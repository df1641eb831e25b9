package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/internal/plugins"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	traitEntity    = "openassetio-mediacreation:usage.Entity"
	traitLocatable = "openassetio-mediacreation:content.LocatableContent"
	traitVersion   = "openassetio-mediacreation:lifecycle.Version"
	traitDependsOn = "openassetio-mediacreation:relationship.DependsOn"
)

// locationSchema requires a non-empty location on LocatableContent
type locationSchema struct{}

func (locationSchema) Validate(data *assetio.TraitsData) error {
	if !data.HasTrait(traitLocatable) {
		return nil
	}
	loc, ok := data.GetTraitProperty(traitLocatable, "location")
	if s, isString := loc.(string); !ok || !isString || s == "" {
		return assert.AnError
	}
	return nil
}

func (locationSchema) HasSchema(id string) bool { return id == traitLocatable }
func (locationSchema) TraitIDs() []string      { return []string{traitLocatable} }

func newTestPlugin(t *testing.T, settings map[string]any, opts ...Option) *Plugin {
	t.Helper()
	p := New(Settings{FixturePath: "testdata/library.yaml"}, opts...)
	require.NoError(t, p.Initialize(context.Background(), nil, settings))
	return p
}

func ref(s string) assetio.EntityReference { return assetio.NewEntityReference(s) }

func TestPlugin_Identity(t *testing.T) {
	p := New(Settings{})
	assert.Equal(t, "org.assetio.memory", p.Identifier())
	assert.Equal(t, "In-Memory Asset Library", p.DisplayName())
	assert.Equal(t, "mem:///", p.Info()[assetio.InfoKeyEntityReferencesMatchPrefix])
	for _, c := range assetio.AllCapabilities() {
		assert.True(t, p.HasCapability(c), c.String())
	}
}

func TestPlugin_InitializeSettings(t *testing.T) {
	ctx := context.Background()
	p := newTestPlugin(t, map[string]any{
		"managed_traits": []string{traitLocatable},
		"capabilities":   []string{"entityReferenceIdentification", "managementPolicyQueries", "entityTraitIntrospection", "resolution"},
	})

	assert.True(t, p.HasCapability(assetio.CapabilityResolution))
	assert.False(t, p.HasCapability(assetio.CapabilityPublishing))

	settings, err := p.Settings(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "testdata/library.yaml", settings["fixture_path"])
	assert.Equal(t, []string{traitLocatable}, settings["managed_traits"])

	err = p.Initialize(ctx, nil, map[string]any{"unknown_key": true})
	assert.True(t, assetio.IsErrorType(err, assetio.ErrorTypeConfiguration))

	err = p.Initialize(ctx, nil, map[string]any{"capabilities": []string{"teleportation"}})
	assert.True(t, assetio.IsErrorType(err, assetio.ErrorTypeConfiguration))

	err = p.Initialize(ctx, nil, map[string]any{"fixture_path": "testdata/missing.yaml"})
	assert.True(t, assetio.IsErrorType(err, assetio.ErrorTypeConfiguration))
}

func TestPlugin_ResolveEntity(t *testing.T) {
	ctx := context.Background()
	p := newTestPlugin(t, nil)
	locatable := assetio.NewTraitSet(traitLocatable)

	data, err := p.ResolveEntity(ctx, nil, ref("mem:///shots/sh010/plate"), locatable, assetio.AccessRead, nil)
	require.NoError(t, err)
	loc, _ := data.GetTraitProperty(traitLocatable, "location")
	assert.Equal(t, "file:///mnt/shots/sh010/plate.v002.exr", loc)
	assert.False(t, data.HasTrait(traitVersion))

	data, err = p.ResolveEntity(ctx, nil, ref("mem:///shots/sh010/plate?v=1"), locatable, assetio.AccessRead, nil)
	require.NoError(t, err)
	loc, _ = data.GetTraitProperty(traitLocatable, "location")
	assert.Equal(t, "file:///mnt/shots/sh010/plate.v001.exr", loc)

	data, err = p.ResolveEntity(ctx, nil, ref("mem:///shots/sh010/notes"), locatable, assetio.AccessRead, nil)
	require.NoError(t, err)
	assert.Empty(t, data.TraitSet())

	tests := []struct {
		name   string
		ref    string
		access assetio.Access
		kind   assetio.BatchElementErrorKind
	}{
		{"unknown entity", "mem:///shots/sh999/plate", assetio.AccessRead, assetio.KindEntityNotFound},
		{"wrong scheme", "file:///shots/sh010/plate", assetio.AccessRead, assetio.KindMalformedEntityReference},
		{"empty path", "mem:///", assetio.AccessRead, assetio.KindInvalidEntityReference},
		{"bad version", "mem:///shots/sh010/plate?v=x", assetio.AccessRead, assetio.KindMalformedEntityReference},
		{"missing version", "mem:///shots/sh010/plate?v=9", assetio.AccessRead, assetio.KindEntityResolutionError},
		{"restricted", "mem:///shots/sh020/plate", assetio.AccessRead, assetio.KindEntityAccessError},
		{"write access", "mem:///shots/sh010/plate", assetio.AccessWrite, assetio.KindEntityAccessError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ResolveEntity(ctx, nil, ref(tt.ref), locatable, tt.access, nil)
			berr, ok := assetio.AsBatchElementError(err)
			require.True(t, ok, "expected element error, got %v", err)
			assert.Equal(t, tt.kind, berr.Kind)
		})
	}
}

func TestPlugin_EntityExistsAndTraits(t *testing.T) {
	ctx := context.Background()
	p := newTestPlugin(t, nil)

	exists, err := p.EntityExists(ctx, nil, ref("mem:///shots/sh010/comp"), nil)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = p.EntityExists(ctx, nil, ref("mem:///shots/sh999/comp"), nil)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = p.EntityExists(ctx, nil, ref("s3://bucket/key"), nil)
	assert.Error(t, err)

	traits, err := p.EntityTraits(ctx, nil, ref("mem:///shots/sh010/plate"), assetio.AccessRead, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{traitLocatable, traitVersion, traitEntity}, traits.Sorted())

	_, err = p.EntityTraits(ctx, nil, ref("mem:///shots/new"), assetio.AccessRead, nil)
	berr, ok := assetio.AsBatchElementError(err)
	require.True(t, ok)
	assert.Equal(t, assetio.KindEntityNotFound, berr.Kind)

	traits, err = p.EntityTraits(ctx, nil, ref("mem:///shots/new"), assetio.AccessWrite, nil)
	require.NoError(t, err)
	assert.Empty(t, traits)
}

func TestPlugin_RelatedEntities(t *testing.T) {
	ctx := context.Background()
	p := newTestPlugin(t, nil)
	comp := ref("mem:///shots/sh010/comp")

	dependsOn := assetio.NewTraitsData(assetio.NewTraitSet(traitDependsOn))
	pager, err := p.RelatedEntities(ctx, nil, comp, dependsOn, nil, 1, assetio.AccessRead, nil)
	require.NoError(t, err)

	first, err := pager.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []assetio.EntityReference{ref("mem:///shots/sh010/plate")}, first)
	more, err := pager.HasNext(ctx)
	require.NoError(t, err)
	assert.True(t, more)
	require.NoError(t, pager.Next(ctx))
	second, err := pager.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []assetio.EntityReference{ref("mem:///shots/sh010/notes")}, second)
	more, err = pager.HasNext(ctx)
	require.NoError(t, err)
	assert.False(t, more)
	require.NoError(t, pager.Close())
	_, err = pager.Get(ctx)
	assert.Error(t, err)

	background := assetio.NewTraitsData(nil)
	require.NoError(t, background.SetTraitProperty(traitDependsOn, "role", "background"))
	pager, err = p.RelatedEntities(ctx, nil, comp, background, nil, 10, assetio.AccessRead, nil)
	require.NoError(t, err)
	refs, err := plugins.CollectPages(ctx, pager)
	require.NoError(t, err)
	assert.Equal(t, []assetio.EntityReference{ref("mem:///shots/sh010/plate")}, refs)

	pager, err = p.RelatedEntities(ctx, nil, comp, dependsOn, assetio.NewTraitSet(traitLocatable), 10, assetio.AccessRead, nil)
	require.NoError(t, err)
	refs, err = plugins.CollectPages(ctx, pager)
	require.NoError(t, err)
	assert.Equal(t, []assetio.EntityReference{ref("mem:///shots/sh010/plate")}, refs)

	_, err = p.RelatedEntities(ctx, nil, ref("mem:///shots/none"), dependsOn, nil, 10, assetio.AccessRead, nil)
	berr, ok := assetio.AsBatchElementError(err)
	require.True(t, ok)
	assert.Equal(t, assetio.KindEntityNotFound, berr.Kind)
}

func TestPlugin_Publishing(t *testing.T) {
	ctx := context.Background()
	p := newTestPlugin(t, nil, WithSchemaRegistry(locationSchema{}))

	valid := assetio.NewTraitsData(assetio.NewTraitSet(traitEntity))
	require.NoError(t, valid.SetTraitProperty(traitLocatable, "location", "file:///mnt/shots/sh010/plate.v003.exr"))
	invalid := assetio.NewTraitsData(assetio.NewTraitSet(traitLocatable))

	working, err := p.PreflightEntity(ctx, nil, ref("mem:///shots/sh010/plate"), valid, assetio.AccessWrite, nil)
	require.NoError(t, err)
	assert.Equal(t, "mem:///shots/sh010/plate", working.String())

	_, err = p.PreflightEntity(ctx, nil, ref("mem:///shots/sh010/plate"), invalid, assetio.AccessWrite, nil)
	berr, ok := assetio.AsBatchElementError(err)
	require.True(t, ok)
	assert.Equal(t, assetio.KindInvalidPreflightHint, berr.Kind)

	child, err := p.PreflightEntity(ctx, nil, ref("mem:///shots/sh010"), valid, assetio.AccessCreateRelated, nil)
	berr, ok = assetio.AsBatchElementError(err)
	require.True(t, ok, "parent must exist for createRelated, got %v", child)
	assert.Equal(t, assetio.KindEntityNotFound, berr.Kind)

	child, err = p.PreflightEntity(ctx, nil, ref("mem:///shots/sh010/plate"), valid, assetio.AccessCreateRelated, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(child.String(), "mem:///shots/sh010/plate/"))

	registered, err := p.RegisterEntity(ctx, nil, working, valid, assetio.AccessWrite, nil)
	require.NoError(t, err)
	assert.Equal(t, "mem:///shots/sh010/plate?v=3", registered.String())

	resolved, err := p.ResolveEntity(ctx, nil, ref("mem:///shots/sh010/plate"), assetio.NewTraitSet(traitLocatable), assetio.AccessRead, nil)
	require.NoError(t, err)
	loc, _ := resolved.GetTraitProperty(traitLocatable, "location")
	assert.Equal(t, "file:///mnt/shots/sh010/plate.v003.exr", loc)

	registered, err = p.RegisterEntity(ctx, nil, child, valid, assetio.AccessWrite, nil)
	require.NoError(t, err)
	assert.Equal(t, child.String()+"?v=1", registered.String())

	_, err = p.RegisterEntity(ctx, nil, working, invalid, assetio.AccessWrite, nil)
	berr, ok = assetio.AsBatchElementError(err)
	require.True(t, ok)
	assert.Equal(t, assetio.KindInvalidTraitSet, berr.Kind)

	_, err = p.RegisterEntity(ctx, nil, ref("mem:///shots/sh020/plate"), valid, assetio.AccessWrite, nil)
	berr, ok = assetio.AsBatchElementError(err)
	require.True(t, ok)
	assert.Equal(t, assetio.KindEntityAccessError, berr.Kind)
}

func TestPlugin_RegisterDoesNotAlias(t *testing.T) {
	ctx := context.Background()
	p := newTestPlugin(t, nil)

	data := assetio.NewTraitsData(nil)
	require.NoError(t, data.SetTraitProperty(traitLocatable, "location", "file:///a"))
	_, err := p.RegisterEntity(ctx, nil, ref("mem:///fresh"), data, assetio.AccessWrite, nil)
	require.NoError(t, err)
	require.NoError(t, data.SetTraitProperty(traitLocatable, "location", "file:///b"))

	resolved, err := p.ResolveEntity(ctx, nil, ref("mem:///fresh"), assetio.NewTraitSet(traitLocatable), assetio.AccessRead, nil)
	require.NoError(t, err)
	loc, _ := resolved.GetTraitProperty(traitLocatable, "location")
	assert.Equal(t, "file:///a", loc)
}

func TestPlugin_DefaultsAndPolicy(t *testing.T) {
	ctx := context.Background()
	p := newTestPlugin(t, map[string]any{"managed_traits": []string{traitLocatable}})
	locatable := assetio.NewTraitSet(traitLocatable)

	def, err := p.DefaultEntityReference(ctx, nil, locatable, assetio.AccessRead, nil)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "mem:///shots/sh010/plate", def.String())

	def, err = p.DefaultEntityReference(ctx, nil, locatable, assetio.AccessWrite, nil)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "mem:///shots/sh010/comp", def.String())

	def, err = p.DefaultEntityReference(ctx, nil, assetio.NewTraitSet(traitVersion), assetio.AccessRead, nil)
	require.NoError(t, err)
	assert.Nil(t, def)

	policies, err := p.ManagementPolicy(ctx, nil,
		[]assetio.TraitSet{locatable, assetio.NewTraitSet(traitVersion)}, assetio.AccessRead, nil)
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.True(t, policies[0].HasTrait(plugins.TraitManaged))
	assert.False(t, policies[1].HasTrait(plugins.TraitManaged))
}

func TestPlugin_StateAndTerminology(t *testing.T) {
	ctx := context.Background()
	p := newTestPlugin(t, map[string]any{"terminology": map[string]any{"asset": "shot"}})

	parent, err := p.CreateState(ctx, nil)
	require.NoError(t, err)
	child, err := p.CreateChildState(ctx, nil, parent)
	require.NoError(t, err)
	assert.Equal(t, parent.(*State).ID, child.(*State).Parent)
	assert.NotEqual(t, parent.(*State).ID, child.(*State).ID)

	_, err = p.CreateChildState(ctx, nil, "not a state")
	assert.Error(t, err)

	terms, err := p.UpdateTerminology(ctx, nil, map[string]string{"asset": "asset", "publish": "publish"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"asset": "shot", "publish": "publish"}, terms)

	isRef, err := p.IsEntityReferenceString(ctx, nil, "mem:///x")
	require.NoError(t, err)
	assert.True(t, isRef)
	isRef, err = p.IsEntityReferenceString(ctx, nil, "/mnt/x")
	require.NoError(t, err)
	assert.False(t, isRef)
}

func TestParseFixture_Errors(t *testing.T) {
	_, err := ParseFixture([]byte("entities: [unclosed"))
	assert.Error(t, err)

	fixture, err := ParseFixture([]byte(`
entities:
  a:
    versions:
      - traits: {t: {}}
relationships:
  - source: a
    target: b
`))
	require.NoError(t, err)
	_, err = fixture.build()
	assert.ErrorContains(t, err, "unknown target")

	fixture, err = ParseFixture([]byte(`
entities:
  a: {}
`))
	require.NoError(t, err)
	_, err = fixture.build()
	assert.ErrorContains(t, err, "no versions")

	fixture, err = ParseFixture([]byte(`
entities:
  a:
    versions:
      - traits: {t: {}}
defaults:
  - traits: [t]
    access: sideways
    entity: a
`))
	require.NoError(t, err)
	_, err = fixture.build()
	assert.Error(t, err)
}
