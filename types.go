package assetio

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// EntityReference identifies one entity known to a manager. It is opaque to
// the host; equality is by string value.
type EntityReference struct {
	str string
}

// NewEntityReference wraps s without validating it against any manager.
// Hosts should prefer Manager.CreateEntityReference.
func NewEntityReference(s string) EntityReference {
	return EntityReference{str: s}
}

func (r EntityReference) String() string { return r.str }

func (r EntityReference) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.str)
}

func (r *EntityReference) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &r.str)
}

// EntityReferences builds references from raw strings
func EntityReferences(strs ...string) []EntityReference {
	refs := make([]EntityReference, len(strs))
	for i, s := range strs {
		refs[i] = NewEntityReference(s)
	}
	return refs
}

// Access describes the intent of a call.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
	AccessCreateRelated
	AccessRequired
	AccessManagerDriven
)

var accessNames = map[Access]string{
	AccessRead:          "read",
	AccessWrite:         "write",
	AccessCreateRelated: "createRelated",
	AccessRequired:      "required",
	AccessManagerDriven: "managerDriven",
}

func (a Access) String() string {
	if name, ok := accessNames[a]; ok {
		return name
	}
	return fmt.Sprintf("access(%d)", int(a))
}

// ParseAccess converts an access name back to its value
func ParseAccess(s string) (Access, error) {
	for a, name := range accessNames {
		if strings.EqualFold(name, s) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown access mode %q", s)
}

func (a Access) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Access) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAccess(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Capability is a feature a manager may advertise.
type Capability int

const (
	CapabilityEntityReferenceIdentification Capability = iota
	CapabilityManagementPolicyQueries
	CapabilityStatefulContexts
	CapabilityCustomTerminology
	CapabilityResolution
	CapabilityPublishing
	CapabilityRelationshipQueries
	CapabilityExistenceQueries
	CapabilityDefaultEntityReferences
	CapabilityEntityTraitIntrospection
)

var capabilityNames = []string{
	"entityReferenceIdentification",
	"managementPolicyQueries",
	"statefulContexts",
	"customTerminology",
	"resolution",
	"publishing",
	"relationshipQueries",
	"existenceQueries",
	"defaultEntityReferences",
	"entityTraitIntrospection",
}

func (c Capability) String() string {
	if int(c) >= 0 && int(c) < len(capabilityNames) {
		return capabilityNames[c]
	}
	return fmt.Sprintf("capability(%d)", int(c))
}

// AllCapabilities lists every capability in declaration order
func AllCapabilities() []Capability {
	caps := make([]Capability, len(capabilityNames))
	for i := range capabilityNames {
		caps[i] = Capability(i)
	}
	return caps
}

// ParseCapability converts a capability name back to its value
func ParseCapability(s string) (Capability, error) {
	for i, name := range capabilityNames {
		if strings.EqualFold(name, s) {
			return Capability(i), nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", s)
}

// Context carries the caller's locale and any manager state across calls.
// The dispatch engine only reads it.
type Context struct {
	Locale       *TraitsData `json:"locale,omitempty"`
	ManagerState any         `json:"-"`
}

// InfoDictionary is free-form identifying data from a host or manager.
type InfoDictionary map[string]any

// InfoKeyEntityReferencesMatchPrefix is the Info key a manager uses to
// advertise that all of its references start with a fixed string.
const InfoKeyEntityReferencesMatchPrefix = "entityReferencesMatchPrefix"

// EntityReferencePager walks pages of related entity references. Cursor
// state lives in the backend.
type EntityReferencePager interface {
	HasNext(ctx context.Context) (bool, error)
	Get(ctx context.Context) ([]EntityReference, error)
	Next(ctx context.Context) error
	Close() error
}

// sortedKeys is a helper shared by TraitSet and TraitsData.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
