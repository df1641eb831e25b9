package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/assetio"
	"go.uber.org/zap"
)

// traitSchemaRegistry validates trait properties against JSON schemas, one
// schema per trait. The schema's title names the trait it applies to.
type traitSchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Resolved
}

// NewFileTraitSchemaRegistry loads every *.json file in dir as a trait
// schema. A schema without a title is registered under its file name.
func NewFileTraitSchemaRegistry(dir string) (assetio.TraitSchemaRegistry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read trait schema directory %s: %w", dir, err)
	}

	raw := make(map[string][]byte)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read trait schema %s: %w", path, err)
		}
		var header struct {
			Title string `json:"title"`
		}
		if err := json.Unmarshal(data, &header); err != nil {
			return nil, fmt.Errorf("failed to parse trait schema %s: %w", path, err)
		}
		traitID := header.Title
		if traitID == "" {
			traitID = strings.TrimSuffix(entry.Name(), ".json")
		}
		if _, dup := raw[traitID]; dup {
			return nil, fmt.Errorf("duplicate schema for trait %s in %s", traitID, path)
		}
		raw[traitID] = data
	}

	registry, err := NewTraitSchemaRegistry(raw)
	if err != nil {
		return nil, err
	}
	zap.S().Infow("loaded trait schemas", "directory", dir, "count", len(raw))
	return registry, nil
}

// NewTraitSchemaRegistry builds a registry from raw JSON schema documents
// keyed by trait identifier.
func NewTraitSchemaRegistry(schemas map[string][]byte) (assetio.TraitSchemaRegistry, error) {
	r := &traitSchemaRegistry{schemas: make(map[string]*jsonschema.Resolved, len(schemas))}
	for traitID, data := range schemas {
		var schema jsonschema.Schema
		if err := json.Unmarshal(data, &schema); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schema for trait %s: %w", traitID, err)
		}
		resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve schema for trait %s: %w", traitID, err)
		}
		r.schemas[traitID] = resolved
	}
	return r, nil
}

func (r *traitSchemaRegistry) HasSchema(traitID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.schemas[traitID]
	return ok
}

func (r *traitSchemaRegistry) TraitIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.schemas))
	for id := range r.schemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks traits in sorted order and reports the first violation.
func (r *traitSchemaRegistry) Validate(data *assetio.TraitsData) error {
	if data == nil {
		return fmt.Errorf("traits data cannot be nil")
	}
	for _, traitID := range data.TraitSet().Sorted() {
		r.mu.RLock()
		schema, ok := r.schemas[traitID]
		r.mu.RUnlock()
		if !ok {
			continue
		}

		instance, err := toJSONValue(data.TraitProperties(traitID))
		if err != nil {
			return fmt.Errorf("trait %s: %w", traitID, err)
		}
		if err := schema.Validate(instance); err != nil {
			return fmt.Errorf("trait %s: %w", traitID, err)
		}
	}
	return nil
}

// toJSONValue converts property maps into the generic form produced by
// encoding/json, which is what the validator expects.
func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal properties: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal properties: %w", err)
	}
	return out, nil
}
