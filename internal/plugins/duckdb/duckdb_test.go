package duckdb

import (
	"context"
	"database/sql"
	"testing"

	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/internal/plugins"
)

const (
	traitLocatable = "openassetio-mediacreation:content.LocatableContent"
	traitEntity    = "openassetio-mediacreation:usage.Entity"
	traitDependsOn = "openassetio-mediacreation:relationship.DependsOn"
)

func openCatalog(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, assetio.DuckDBConfig{Path: ":memory:", MemoryLimitMB: 128, Threads: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := CreateCatalog(ctx, db); err != nil {
		t.Fatalf("CreateCatalog error: %v", err)
	}

	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO catalog (path, traits, restricted) VALUES (?, ?, ?)`, []any{"plate",
			`{"traits":{"openassetio-mediacreation:usage.Entity":{},"openassetio-mediacreation:content.LocatableContent":{"location":"file:///plate.exr"}}}`, false}},
		{`INSERT INTO catalog (path, traits, restricted) VALUES (?, ?, ?)`, []any{"notes",
			`{"traits":{"openassetio-mediacreation:usage.Entity":{}}}`, false}},
		{`INSERT INTO catalog (path, traits, restricted) VALUES (?, ?, ?)`, []any{"comp",
			`{"traits":{"openassetio-mediacreation:usage.Entity":{}}}`, false}},
		{`INSERT INTO catalog (path, traits, restricted) VALUES (?, ?, ?)`, []any{"secret",
			`{"traits":{"openassetio-mediacreation:usage.Entity":{}}}`, true}},
		{`INSERT INTO relations VALUES (?, ?, ?, ?)`, []any{"comp", "plate",
			`{"traits":{"openassetio-mediacreation:relationship.DependsOn":{"role":"background"}}}`, 1}},
		{`INSERT INTO relations VALUES (?, ?, ?, ?)`, []any{"comp", "notes",
			`{"traits":{"openassetio-mediacreation:relationship.DependsOn":{"role":"reference"}}}`, 2}},
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s.sql, s.args...); err != nil {
			t.Fatalf("seed error: %v", err)
		}
	}
	return db
}

func newTestPlugin(t *testing.T) *Plugin {
	t.Helper()
	p := New(openCatalog(t), Settings{})
	if err := p.Initialize(context.Background(), nil, map[string]any{"managed_traits": []string{traitLocatable}}); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	return p
}

func elementKind(t *testing.T, err error) assetio.BatchElementErrorKind {
	t.Helper()
	berr, ok := assetio.AsBatchElementError(err)
	if !ok {
		t.Fatalf("expected batch element error, got %v", err)
	}
	return berr.Kind
}

func TestPlugin_DoesNotPublish(t *testing.T) {
	p := New(nil, Settings{})
	if p.HasCapability(assetio.CapabilityPublishing) {
		t.Fatalf("catalogue must not advertise publishing")
	}
	if p.HasCapability(assetio.CapabilityDefaultEntityReferences) {
		t.Fatalf("catalogue must not advertise default references")
	}
	if !p.HasCapability(assetio.CapabilityRelationshipQueries) {
		t.Fatalf("catalogue should advertise relationship queries")
	}
}

func TestPlugin_InitializeWithoutDatabase(t *testing.T) {
	p := New(nil, Settings{})
	err := p.Initialize(context.Background(), nil, nil)
	if !assetio.IsErrorType(err, assetio.ErrorTypeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestPlugin_ResolveEntity(t *testing.T) {
	ctx := context.Background()
	p := newTestPlugin(t)
	locatable := assetio.NewTraitSet(traitLocatable)

	data, err := p.ResolveEntity(ctx, nil, assetio.NewEntityReference("duck:///plate"), locatable, assetio.AccessRead, nil)
	if err != nil {
		t.Fatalf("ResolveEntity error: %v", err)
	}
	if loc, _ := data.GetTraitProperty(traitLocatable, "location"); loc != "file:///plate.exr" {
		t.Fatalf("unexpected location: %v", loc)
	}
	if data.HasTrait(traitEntity) {
		t.Fatalf("result should be filtered to the requested traits")
	}

	cases := map[string]assetio.BatchElementErrorKind{
		"duck:///missing":   assetio.KindEntityNotFound,
		"duck:///secret":    assetio.KindEntityAccessError,
		"duck:///plate?v=2": assetio.KindEntityResolutionError,
		"mem:///plate":      assetio.KindMalformedEntityReference,
	}
	for ref, want := range cases {
		_, err := p.ResolveEntity(ctx, nil, assetio.NewEntityReference(ref), locatable, assetio.AccessRead, nil)
		if got := elementKind(t, err); got != want {
			t.Fatalf("%s: got kind %s want %s", ref, got, want)
		}
	}
}

func TestPlugin_ExistsAndTraits(t *testing.T) {
	ctx := context.Background()
	p := newTestPlugin(t)

	exists, err := p.EntityExists(ctx, nil, assetio.NewEntityReference("duck:///notes"), nil)
	if err != nil || !exists {
		t.Fatalf("expected notes to exist, got %v %v", exists, err)
	}
	exists, err = p.EntityExists(ctx, nil, assetio.NewEntityReference("duck:///nothing"), nil)
	if err != nil || exists {
		t.Fatalf("expected nothing to be absent, got %v %v", exists, err)
	}

	traits, err := p.EntityTraits(ctx, nil, assetio.NewEntityReference("duck:///plate"), assetio.AccessRead, nil)
	if err != nil {
		t.Fatalf("EntityTraits error: %v", err)
	}
	if len(traits) != 2 || !traits.Has(traitLocatable) || !traits.Has(traitEntity) {
		t.Fatalf("unexpected traits: %v", traits.Sorted())
	}

	_, err = p.EntityTraits(ctx, nil, assetio.NewEntityReference("duck:///plate"), assetio.AccessWrite, nil)
	if got := elementKind(t, err); got != assetio.KindEntityAccessError {
		t.Fatalf("unexpected kind for write access: %s", got)
	}
}

func TestPlugin_RelatedEntities(t *testing.T) {
	ctx := context.Background()
	p := newTestPlugin(t)
	comp := assetio.NewEntityReference("duck:///comp")

	dependsOn := assetio.NewTraitsData(assetio.NewTraitSet(traitDependsOn))
	pager, err := p.RelatedEntities(ctx, nil, comp, dependsOn, nil, 1, assetio.AccessRead, nil)
	if err != nil {
		t.Fatalf("RelatedEntities error: %v", err)
	}
	refs, err := plugins.CollectPages(ctx, pager)
	if err != nil {
		t.Fatalf("CollectPages error: %v", err)
	}
	if len(refs) != 2 || refs[0].String() != "duck:///plate" || refs[1].String() != "duck:///notes" {
		t.Fatalf("unexpected related refs: %v", refs)
	}

	pager, err = p.RelatedEntities(ctx, nil, comp, dependsOn, assetio.NewTraitSet(traitLocatable), 10, assetio.AccessRead, nil)
	if err != nil {
		t.Fatalf("RelatedEntities error: %v", err)
	}
	refs, err = plugins.CollectPages(ctx, pager)
	if err != nil {
		t.Fatalf("CollectPages error: %v", err)
	}
	if len(refs) != 1 || refs[0].String() != "duck:///plate" {
		t.Fatalf("unexpected filtered refs: %v", refs)
	}

	reference := assetio.NewTraitsData(nil)
	if err := reference.SetTraitProperty(traitDependsOn, "role", "reference"); err != nil {
		t.Fatal(err)
	}
	pager, err = p.RelatedEntities(ctx, nil, comp, reference, nil, 10, assetio.AccessRead, nil)
	if err != nil {
		t.Fatalf("RelatedEntities error: %v", err)
	}
	refs, err = plugins.CollectPages(ctx, pager)
	if err != nil {
		t.Fatalf("CollectPages error: %v", err)
	}
	if len(refs) != 1 || refs[0].String() != "duck:///notes" {
		t.Fatalf("unexpected refs for role=reference: %v", refs)
	}
}

func TestPlugin_ManagementPolicy(t *testing.T) {
	p := newTestPlugin(t)
	policies, err := p.ManagementPolicy(context.Background(), nil,
		[]assetio.TraitSet{assetio.NewTraitSet(traitLocatable), assetio.NewTraitSet(traitEntity)}, assetio.AccessRead, nil)
	if err != nil {
		t.Fatalf("ManagementPolicy error: %v", err)
	}
	if !policies[0].HasTrait(plugins.TraitManaged) || policies[1].HasTrait(plugins.TraitManaged) {
		t.Fatalf("unexpected policies: %v %v", policies[0], policies[1])
	}
}
