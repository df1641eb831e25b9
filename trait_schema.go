package assetio

// TraitSchemaRegistry validates trait property values against registered
// JSON schemas. Plugins use it to check preflight hints and registered data.
type TraitSchemaRegistry interface {
	// Validate checks every trait in data that has a registered schema.
	// Traits without a schema are accepted as-is.
	Validate(data *TraitsData) error
	// HasSchema reports whether a schema is registered for traitID
	HasSchema(traitID string) bool
	// TraitIDs lists the registered trait identifiers in sorted order
	TraitIDs() []string
}
