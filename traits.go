package assetio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// TraitSet is an unordered set of trait identifiers.
type TraitSet map[string]struct{}

// NewTraitSet creates a TraitSet holding ids
func NewTraitSet(ids ...string) TraitSet {
	ts := make(TraitSet, len(ids))
	for _, id := range ids {
		ts[id] = struct{}{}
	}
	return ts
}

// Add inserts id into the set
func (ts TraitSet) Add(id string) {
	ts[id] = struct{}{}
}

// Has reports whether id is in the set
func (ts TraitSet) Has(id string) bool {
	_, ok := ts[id]
	return ok
}

// Sorted returns the identifiers in lexical order
func (ts TraitSet) Sorted() []string {
	return sortedKeys(ts)
}

// IsSubsetOf reports whether every id in ts is also in other
func (ts TraitSet) IsSubsetOf(other TraitSet) bool {
	for id := range ts {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Union returns a new set with the members of both sets
func (ts TraitSet) Union(other TraitSet) TraitSet {
	out := make(TraitSet, len(ts)+len(other))
	for id := range ts {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Key returns a stable string for use as a map or cache key
func (ts TraitSet) Key() string {
	return strings.Join(ts.Sorted(), ",")
}

func (ts TraitSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.Sorted())
}

func (ts *TraitSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*ts = NewTraitSet(ids...)
	return nil
}

// TraitsData holds property values for a set of traits on one entity.
// Property values are bool, int64, float64 or string.
type TraitsData struct {
	traits map[string]map[string]any
}

// NewTraitsData creates a TraitsData with the given traits and no properties
func NewTraitsData(traitSet TraitSet) *TraitsData {
	d := &TraitsData{traits: make(map[string]map[string]any, len(traitSet))}
	for id := range traitSet {
		d.traits[id] = map[string]any{}
	}
	return d
}

// AddTrait imbues the data with a trait, keeping existing properties
func (d *TraitsData) AddTrait(id string) {
	if d.traits == nil {
		d.traits = make(map[string]map[string]any)
	}
	if _, ok := d.traits[id]; !ok {
		d.traits[id] = map[string]any{}
	}
}

// AddTraits imbues the data with every trait in ts
func (d *TraitsData) AddTraits(ts TraitSet) {
	for id := range ts {
		d.AddTrait(id)
	}
}

// HasTrait reports whether the data carries trait id
func (d *TraitsData) HasTrait(id string) bool {
	if d == nil {
		return false
	}
	_, ok := d.traits[id]
	return ok
}

// TraitSet returns the set of traits the data carries
func (d *TraitsData) TraitSet() TraitSet {
	ts := make(TraitSet)
	if d == nil {
		return ts
	}
	for id := range d.traits {
		ts[id] = struct{}{}
	}
	return ts
}

// SetTraitProperty sets a property, adding the trait if required
func (d *TraitsData) SetTraitProperty(traitID, key string, value any) error {
	normalized, err := normalizePropertyValue(value)
	if err != nil {
		return fmt.Errorf("trait %s property %s: %w", traitID, key, err)
	}
	d.AddTrait(traitID)
	d.traits[traitID][key] = normalized
	return nil
}

// GetTraitProperty returns a property value, if set
func (d *TraitsData) GetTraitProperty(traitID, key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	props, ok := d.traits[traitID]
	if !ok {
		return nil, false
	}
	v, ok := props[key]
	return v, ok
}

// TraitPropertyKeys lists the properties set for a trait, sorted
func (d *TraitsData) TraitPropertyKeys(traitID string) []string {
	if d == nil {
		return nil
	}
	return sortedKeys(d.traits[traitID])
}

// TraitProperties returns a copy of the properties set for a trait
func (d *TraitsData) TraitProperties(traitID string) map[string]any {
	if d == nil {
		return nil
	}
	return maps.Clone(d.traits[traitID])
}

// Filter returns a copy holding only the traits in ts
func (d *TraitsData) Filter(ts TraitSet) *TraitsData {
	out := &TraitsData{traits: make(map[string]map[string]any)}
	if d == nil {
		return out
	}
	for id, props := range d.traits {
		if ts.Has(id) {
			out.traits[id] = maps.Clone(props)
		}
	}
	return out
}

// Clone returns a deep copy
func (d *TraitsData) Clone() *TraitsData {
	if d == nil {
		return nil
	}
	out := &TraitsData{traits: make(map[string]map[string]any, len(d.traits))}
	for id, props := range d.traits {
		out.traits[id] = maps.Clone(props)
	}
	return out
}

// Equal reports whether both hold the same traits and property values
func (d *TraitsData) Equal(other *TraitsData) bool {
	if d == nil || other == nil {
		return d == other
	}
	if len(d.traits) != len(other.traits) {
		return false
	}
	for id, props := range d.traits {
		otherProps, ok := other.traits[id]
		if !ok || !maps.Equal(props, otherProps) {
			return false
		}
	}
	return true
}

// Contains reports whether every trait and property in sub is present in d
// with the same value.
func (d *TraitsData) Contains(sub *TraitsData) bool {
	if sub == nil {
		return true
	}
	if d == nil {
		return len(sub.traits) == 0
	}
	for id, props := range sub.traits {
		have, ok := d.traits[id]
		if !ok {
			return false
		}
		for k, v := range props {
			if hv, ok := have[k]; !ok || hv != v {
				return false
			}
		}
	}
	return true
}

func (d *TraitsData) String() string {
	if d == nil {
		return "<nil>"
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf("<invalid traits data: %v>", err)
	}
	return string(data)
}

type traitsDataJSON struct {
	Traits map[string]map[string]any `json:"traits"`
}

func (d *TraitsData) MarshalJSON() ([]byte, error) {
	traits := d.traits
	if traits == nil {
		traits = map[string]map[string]any{}
	}
	return json.Marshal(traitsDataJSON{Traits: traits})
}

// UnmarshalJSON keeps integral numbers as int64.
func (d *TraitsData) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw traitsDataJSON
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	d.traits = make(map[string]map[string]any, len(raw.Traits))
	for id, props := range raw.Traits {
		d.traits[id] = make(map[string]any, len(props))
		for k, v := range props {
			normalized, err := normalizePropertyValue(v)
			if err != nil {
				return fmt.Errorf("trait %s property %s: %w", id, k, err)
			}
			d.traits[id][k] = normalized
		}
	}
	return nil
}

// AsMap returns the data as plain nested maps, for schema validation and
// serialisation by plugins.
func (d *TraitsData) AsMap() map[string]map[string]any {
	if d == nil {
		return nil
	}
	out := make(map[string]map[string]any, len(d.traits))
	for id, props := range d.traits {
		out[id] = maps.Clone(props)
	}
	return out
}

// TraitsDataFromMap builds TraitsData from nested maps such as those decoded
// from YAML fixtures. A nil property map adds the trait alone.
func TraitsDataFromMap(m map[string]map[string]any) (*TraitsData, error) {
	d := NewTraitsData(nil)
	for id, props := range m {
		d.AddTrait(id)
		for k, v := range props {
			if err := d.SetTraitProperty(id, k, v); err != nil {
				return nil, err
			}
		}
	}
	return d, nil
}

func normalizePropertyValue(value any) (any, error) {
	switch v := value.(type) {
	case bool, int64, float64, string:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case float32:
		return float64(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", v)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported property value type %T", value)
	}
}
