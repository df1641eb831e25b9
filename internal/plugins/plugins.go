// Package plugins holds the helpers shared by the bundled manager plugins:
// entity reference parsing, settings decoding, capability sets, management
// policy and slice-backed paging.
package plugins

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/lychee-technology/assetio"
	"github.com/mitchellh/mapstructure"
)

// TraitManaged marks a trait set as managed in a management policy.
const TraitManaged = "assetio:managementPolicy.Managed"

// Locator is a parsed entity reference. Version zero means latest.
type Locator struct {
	Path    string
	Version int
}

// RefCodec parses and formats references of the form
// <scheme>:///<path>[?v=<n>].
type RefCodec struct {
	Scheme string
}

// Prefix is the fixed start of every reference the codec produces
func (c RefCodec) Prefix() string {
	return c.Scheme + ":///"
}

// IsReference reports whether s carries the codec's prefix
func (c RefCodec) IsReference(s string) bool {
	return strings.HasPrefix(s, c.Prefix())
}

// Parse converts a reference into a Locator. Failures are element errors.
func (c RefCodec) Parse(ref assetio.EntityReference) (Locator, *assetio.BatchElementError) {
	s := ref.String()
	if !c.IsReference(s) {
		return Locator{}, assetio.NewBatchElementErrorf(assetio.KindMalformedEntityReference,
			"%q is not a %s reference", s, c.Scheme)
	}
	u, err := url.Parse(s)
	if err != nil {
		return Locator{}, assetio.NewBatchElementErrorf(assetio.KindMalformedEntityReference,
			"%q could not be parsed: %v", s, err)
	}
	raw := strings.Trim(u.Path, "/")
	if slices.Contains(strings.Split(raw, "/"), "..") {
		return Locator{}, assetio.NewBatchElementErrorf(assetio.KindMalformedEntityReference,
			"%q contains a parent path segment", s)
	}
	clean := path.Clean(raw)
	if clean == "" || clean == "." {
		return Locator{}, assetio.NewBatchElementErrorf(assetio.KindInvalidEntityReference,
			"%q does not name an entity", s)
	}
	loc := Locator{Path: clean}
	if v := u.Query().Get("v"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Locator{}, assetio.NewBatchElementErrorf(assetio.KindMalformedEntityReference,
				"%q has an invalid version %q", s, v)
		}
		loc.Version = n
	}
	return loc, nil
}

// Format builds a reference. A zero version leaves the reference unpinned.
func (c RefCodec) Format(entityPath string, version int) assetio.EntityReference {
	s := c.Prefix() + strings.Trim(entityPath, "/")
	if version > 0 {
		s += "?v=" + strconv.Itoa(version)
	}
	return assetio.NewEntityReference(s)
}

// DecodeSettings decodes Initialize settings onto out, leaving fields absent
// from settings untouched.
func DecodeSettings(settings map[string]any, out any) error {
	if len(settings) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(settings); err != nil {
		return assetio.NewConfigurationError(assetio.ErrCodeInvalidSettings, err.Error()).WithCause(err)
	}
	return nil
}

// SettingsMap is the inverse of DecodeSettings, used to answer Settings().
func SettingsMap(in any) (map[string]any, error) {
	out := make(map[string]any)
	if err := mapstructure.Decode(in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CapabilitySet is the set of capabilities a plugin advertises.
type CapabilitySet map[assetio.Capability]bool

// NewCapabilitySet builds a set from capability values
func NewCapabilitySet(caps ...assetio.Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return set
}

// ParseCapabilities builds a set from capability names. No names means all.
func ParseCapabilities(names []string) (CapabilitySet, error) {
	if len(names) == 0 {
		return NewCapabilitySet(assetio.AllCapabilities()...), nil
	}
	set := make(CapabilitySet, len(names))
	for _, name := range names {
		c, err := assetio.ParseCapability(name)
		if err != nil {
			return nil, assetio.NewConfigurationError(assetio.ErrCodeInvalidSettings, err.Error())
		}
		set[c] = true
	}
	return set, nil
}

func (s CapabilitySet) Has(c assetio.Capability) bool {
	return s[c]
}

// Names lists the capabilities in declaration order
func (s CapabilitySet) Names() []string {
	var names []string
	for _, c := range assetio.AllCapabilities() {
		if s[c] {
			names = append(names, c.String())
		}
	}
	return names
}

// ManagementPolicy marks each trait set that mentions a managed trait.
// Unmanaged sets get empty policies so the host handles them itself.
func ManagementPolicy(managed assetio.TraitSet, traitSets []assetio.TraitSet) []*assetio.TraitsData {
	policies := make([]*assetio.TraitsData, len(traitSets))
	for i, ts := range traitSets {
		policy := assetio.NewTraitsData(nil)
		for id := range ts {
			if managed.Has(id) {
				policy.AddTrait(TraitManaged)
				break
			}
		}
		policies[i] = policy
	}
	return policies
}

// DefaultKey identifies a default entity reference slot
func DefaultKey(traitSet assetio.TraitSet, access assetio.Access) string {
	return traitSet.Key() + "|" + access.String()
}

// slicePager pages over a fixed list of references.
type slicePager struct {
	refs     []assetio.EntityReference
	pageSize int
	offset   int
	closed   bool
}

// NewSlicePager pages over refs, pageSize at a time
func NewSlicePager(refs []assetio.EntityReference, pageSize int) assetio.EntityReferencePager {
	if pageSize <= 0 {
		pageSize = 1
	}
	return &slicePager{refs: refs, pageSize: pageSize}
}

func (p *slicePager) HasNext(context.Context) (bool, error) {
	if p.closed {
		return false, fmt.Errorf("pager is closed")
	}
	return p.offset+p.pageSize < len(p.refs), nil
}

func (p *slicePager) Get(context.Context) ([]assetio.EntityReference, error) {
	if p.closed {
		return nil, fmt.Errorf("pager is closed")
	}
	if p.offset >= len(p.refs) {
		return []assetio.EntityReference{}, nil
	}
	end := min(p.offset+p.pageSize, len(p.refs))
	page := make([]assetio.EntityReference, end-p.offset)
	copy(page, p.refs[p.offset:end])
	return page, nil
}

func (p *slicePager) Next(context.Context) error {
	if p.closed {
		return fmt.Errorf("pager is closed")
	}
	p.offset += p.pageSize
	return nil
}

func (p *slicePager) Close() error {
	p.closed = true
	return nil
}

// CollectPages drains a pager. Used by binaries and tests.
func CollectPages(ctx context.Context, pager assetio.EntityReferencePager) ([]assetio.EntityReference, error) {
	defer pager.Close()
	var all []assetio.EntityReference
	for {
		page, err := pager.Get(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		more, err := pager.HasNext(ctx)
		if err != nil {
			return nil, err
		}
		if !more {
			return all, nil
		}
		if err := pager.Next(ctx); err != nil {
			return nil, err
		}
	}
}
