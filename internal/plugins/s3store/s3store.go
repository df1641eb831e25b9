// Package s3store implements a manager plugin that keeps each entity as a JSON
// document in an S3 bucket. It has no relationship or default reference
// support.
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/internal/plugins"
	"go.uber.org/zap"
)

const (
	Identifier  = "org.assetio.s3"
	DisplayName = "S3 Asset Library"
	Scheme      = "s3"
)

var supportedCapabilities = []assetio.Capability{
	assetio.CapabilityEntityReferenceIdentification,
	assetio.CapabilityManagementPolicyQueries,
	assetio.CapabilityResolution,
	assetio.CapabilityPublishing,
	assetio.CapabilityExistenceQueries,
	assetio.CapabilityEntityTraitIntrospection,
}

// Settings are accepted by Initialize and reported by Settings.
type Settings struct {
	ManagedTraits []string `mapstructure:"managed_traits"`
}

// document is the stored form of an entity. Versions are oldest first.
type document struct {
	Restricted bool                  `json:"restricted,omitempty"`
	Versions   []*assetio.TraitsData `json:"versions"`
}

type Plugin struct {
	assetio.UnimplementedManagerInterface

	client   Client
	uploader Uploader
	bucket   string
	prefix   string
	codec    plugins.RefCodec
	caps     plugins.CapabilitySet
	schemas  assetio.TraitSchemaRegistry

	mu       sync.RWMutex
	settings Settings
	managed  assetio.TraitSet
	// writes serialises read-modify-write cycles within this process
	writes sync.Mutex
}

// New creates the plugin over bucket. Keys are <prefix>/<path>.json.
func New(client Client, uploader Uploader, cfg assetio.S3Config, settings Settings, schemas assetio.TraitSchemaRegistry) *Plugin {
	return &Plugin{
		client:   client,
		uploader: uploader,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		codec:    plugins.RefCodec{Scheme: Scheme},
		caps:     plugins.NewCapabilitySet(supportedCapabilities...),
		schemas:  schemas,
		settings: settings,
		managed:  assetio.NewTraitSet(settings.ManagedTraits...),
	}
}

func (p *Plugin) Identifier() string  { return Identifier }
func (p *Plugin) DisplayName() string { return DisplayName }

func (p *Plugin) Info() assetio.InfoDictionary {
	return assetio.InfoDictionary{
		assetio.InfoKeyEntityReferencesMatchPrefix: p.codec.Prefix(),
		"bucket": p.bucket,
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

func (p *Plugin) Initialize(_ context.Context, _ *assetio.HostSession, settings map[string]any) error {
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

func (p *Plugin) key(entityPath string) string {
	return path.Join(p.prefix, entityPath) + ".json"
}

// load fetches the document for entityPath; a missing key returns nil.
func (p *Plugin) load(ctx context.Context, entityPath string) (*document, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key(entityPath)),
	})
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", p.key(entityPath), err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", p.key(entityPath), err)
	}
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode object %s: %w", p.key(entityPath), err)
	}
	if len(doc.Versions) == 0 {
		return nil, fmt.Errorf("object %s has no versions", p.key(entityPath))
	}
	return &doc, nil
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
	doc, err := p.load(ctx, loc.Path)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, assetio.NewBatchElementErrorf(assetio.KindEntityNotFound, "entity %s not found", ref)
	}
	if doc.Restricted {
		return nil, assetio.NewBatchElementErrorf(assetio.KindEntityAccessError, "access to %s is restricted", ref)
	}
	data := doc.Versions[len(doc.Versions)-1]
	if loc.Version > 0 {
		if loc.Version > len(doc.Versions) {
			return nil, assetio.NewBatchElementErrorf(assetio.KindEntityResolutionError,
				"version %d of %s does not exist", loc.Version, loc.Path)
		}
		data = doc.Versions[loc.Version-1]
	}
	return data.Filter(traitSet), nil
}

func (p *Plugin) EntityExists(ctx context.Context, _ *assetio.HostSession, ref assetio.EntityReference, _ *assetio.Context) (bool, error) {
	loc, berr := p.codec.Parse(ref)
	if berr != nil {
		return false, berr
	}
	_, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key(loc.Path)),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("head object %s: %w", p.key(loc.Path), err)
	}
	return true, nil
}

func (p *Plugin) EntityTraits(ctx context.Context, _ *assetio.HostSession, ref assetio.EntityReference, access assetio.Access, _ *assetio.Context) (assetio.TraitSet, error) {
	loc, berr := p.codec.Parse(ref)
	if berr != nil {
		return nil, berr
	}
	doc, err := p.load(ctx, loc.Path)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		if access == assetio.AccessWrite {
			return assetio.NewTraitSet(), nil
		}
		return nil, assetio.NewBatchElementErrorf(assetio.KindEntityNotFound, "entity %s not found", ref)
	}
	return doc.Versions[len(doc.Versions)-1].TraitSet(), nil
}

func (p *Plugin) validate(data *assetio.TraitsData) error {
	if p.schemas == nil {
		return nil
	}
	return p.schemas.Validate(data)
}

// target works out which path a publish call writes to, returning the
// document stored at the given reference. CreateRelated access mints a child
// of an existing entity.
func (p *Plugin) target(ctx context.Context, ref assetio.EntityReference, access assetio.Access) (string, *document, error) {
	loc, berr := p.codec.Parse(ref)
	if berr != nil {
		return "", nil, berr
	}
	doc, err := p.load(ctx, loc.Path)
	if err != nil {
		return "", nil, err
	}
	if doc != nil && doc.Restricted {
		return "", nil, assetio.NewBatchElementErrorf(assetio.KindEntityAccessError, "access to %s is restricted", ref)
	}
	if access == assetio.AccessCreateRelated {
		if doc == nil {
			return "", nil, assetio.NewBatchElementErrorf(assetio.KindEntityNotFound, "entity %s not found", ref)
		}
		return path.Join(loc.Path, uuid.NewString()), nil, nil
	}
	return loc.Path, doc, nil
}

func (p *Plugin) PreflightEntity(ctx context.Context, _ *assetio.HostSession, ref assetio.EntityReference, hint *assetio.TraitsData, access assetio.Access, _ *assetio.Context) (assetio.EntityReference, error) {
	if err := p.validate(hint); err != nil {
		return assetio.EntityReference{}, assetio.NewBatchElementError(assetio.KindInvalidPreflightHint, err.Error())
	}
	target, _, err := p.target(ctx, ref, access)
	if err != nil {
		return assetio.EntityReference{}, err
	}
	return p.codec.Format(target, 0), nil
}

// RegisterEntity rewrites the entity document with the new version appended.
// Concurrent writers in other processes can lose updates; S3 offers no
// compare-and-swap through the upload manager.
func (p *Plugin) RegisterEntity(ctx context.Context, _ *assetio.HostSession, ref assetio.EntityReference, data *assetio.TraitsData, access assetio.Access, _ *assetio.Context) (assetio.EntityReference, error) {
	if err := p.validate(data); err != nil {
		return assetio.EntityReference{}, assetio.NewBatchElementError(assetio.KindInvalidTraitSet, err.Error())
	}

	p.writes.Lock()
	defer p.writes.Unlock()

	target, doc, err := p.target(ctx, ref, access)
	if err != nil {
		return assetio.EntityReference{}, err
	}
	if doc == nil {
		doc = &document{}
	}
	doc.Versions = append(doc.Versions, data.Clone())

	body, err := json.Marshal(doc)
	if err != nil {
		return assetio.EntityReference{}, fmt.Errorf("encode entity %s: %w", target, err)
	}
	if _, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(p.key(target)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return assetio.EntityReference{}, fmt.Errorf("s3 upload: %w", err)
	}

	zap.S().Debugw("registered entity", "bucket", p.bucket, "key", p.key(target), "version", len(doc.Versions))
	return p.codec.Format(target, len(doc.Versions)), nil
}
