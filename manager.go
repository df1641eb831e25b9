package assetio

import (
	"context"
)

// SuccessCallback receives the value of one successful batch element.
type SuccessCallback[T any] func(index int, value T)

// BatchElementErrorCallback receives the error of one failed batch element.
type BatchElementErrorCallback func(index int, err *BatchElementError)

// Manager is the host-facing façade over a manager plugin.
//
// Every per-entity operation comes in five forms that differ only in how
// element failures are delivered:
//
//	Op               all values, or the lowest-index element error
//	OpResults        one Outcome per input element, in input order
//	OpWithCallbacks  onSuccess/onError once per element, in input order
//	OpOne            single element, value or error
//	OpOneResult      single element, as an Outcome
//
// The error return of each form is reserved for call-level failures (input
// validation, missing capability, uninitialized manager, backend abort),
// except in the Op and OpOne forms where it also carries the element error.
type Manager interface {
	// Identity and lifecycle
	Identifier() string
	DisplayName() string
	Info() InfoDictionary
	Settings(ctx context.Context) (map[string]any, error)
	Initialize(ctx context.Context, settings map[string]any) error
	FlushCaches(ctx context.Context) error
	HasCapability(capability Capability) bool
	UpdateTerminology(ctx context.Context, terms map[string]string) (map[string]string, error)

	// Contexts
	CreateContext(ctx context.Context) (*Context, error)
	CreateChildContext(ctx context.Context, parent *Context) (*Context, error)

	// Entity references
	IsEntityReferenceString(ctx context.Context, s string) (bool, error)
	CreateEntityReference(ctx context.Context, s string) (EntityReference, error)
	CreateEntityReferenceIfValid(ctx context.Context, s string) (*EntityReference, error)

	// Policy
	ManagementPolicy(ctx context.Context, traitSets []TraitSet, access Access, actx *Context) ([]*TraitsData, error)

	// Resolution
	Resolve(ctx context.Context, refs []EntityReference, traitSet TraitSet, access Access, actx *Context) ([]*TraitsData, error)
	ResolveResults(ctx context.Context, refs []EntityReference, traitSet TraitSet, access Access, actx *Context) ([]Outcome[*TraitsData], error)
	ResolveWithCallbacks(ctx context.Context, refs []EntityReference, traitSet TraitSet, access Access, actx *Context,
		onSuccess SuccessCallback[*TraitsData], onError BatchElementErrorCallback) error
	ResolveOne(ctx context.Context, ref EntityReference, traitSet TraitSet, access Access, actx *Context) (*TraitsData, error)
	ResolveOneResult(ctx context.Context, ref EntityReference, traitSet TraitSet, access Access, actx *Context) (Outcome[*TraitsData], error)

	// Existence
	EntityExists(ctx context.Context, refs []EntityReference, actx *Context) ([]bool, error)
	EntityExistsResults(ctx context.Context, refs []EntityReference, actx *Context) ([]Outcome[bool], error)
	EntityExistsWithCallbacks(ctx context.Context, refs []EntityReference, actx *Context,
		onSuccess SuccessCallback[bool], onError BatchElementErrorCallback) error
	EntityExistsOne(ctx context.Context, ref EntityReference, actx *Context) (bool, error)
	EntityExistsOneResult(ctx context.Context, ref EntityReference, actx *Context) (Outcome[bool], error)

	// Trait introspection
	EntityTraits(ctx context.Context, refs []EntityReference, access Access, actx *Context) ([]TraitSet, error)
	EntityTraitsResults(ctx context.Context, refs []EntityReference, access Access, actx *Context) ([]Outcome[TraitSet], error)
	EntityTraitsWithCallbacks(ctx context.Context, refs []EntityReference, access Access, actx *Context,
		onSuccess SuccessCallback[TraitSet], onError BatchElementErrorCallback) error
	EntityTraitsOne(ctx context.Context, ref EntityReference, access Access, actx *Context) (TraitSet, error)
	EntityTraitsOneResult(ctx context.Context, ref EntityReference, access Access, actx *Context) (Outcome[TraitSet], error)

	// Relationships. resultTraitSet may be nil.
	GetWithRelationship(ctx context.Context, refs []EntityReference, relationship *TraitsData, resultTraitSet TraitSet,
		pageSize int, access Access, actx *Context) ([]EntityReferencePager, error)
	GetWithRelationshipResults(ctx context.Context, refs []EntityReference, relationship *TraitsData, resultTraitSet TraitSet,
		pageSize int, access Access, actx *Context) ([]Outcome[EntityReferencePager], error)
	GetWithRelationshipWithCallbacks(ctx context.Context, refs []EntityReference, relationship *TraitsData, resultTraitSet TraitSet,
		pageSize int, access Access, actx *Context,
		onSuccess SuccessCallback[EntityReferencePager], onError BatchElementErrorCallback) error
	GetWithRelationshipOne(ctx context.Context, ref EntityReference, relationship *TraitsData, resultTraitSet TraitSet,
		pageSize int, access Access, actx *Context) (EntityReferencePager, error)
	GetWithRelationshipOneResult(ctx context.Context, ref EntityReference, relationship *TraitsData, resultTraitSet TraitSet,
		pageSize int, access Access, actx *Context) (Outcome[EntityReferencePager], error)

	GetWithRelationships(ctx context.Context, ref EntityReference, relationships []*TraitsData, resultTraitSet TraitSet,
		pageSize int, access Access, actx *Context) ([]EntityReferencePager, error)
	GetWithRelationshipsResults(ctx context.Context, ref EntityReference, relationships []*TraitsData, resultTraitSet TraitSet,
		pageSize int, access Access, actx *Context) ([]Outcome[EntityReferencePager], error)
	GetWithRelationshipsWithCallbacks(ctx context.Context, ref EntityReference, relationships []*TraitsData, resultTraitSet TraitSet,
		pageSize int, access Access, actx *Context,
		onSuccess SuccessCallback[EntityReferencePager], onError BatchElementErrorCallback) error

	// Publishing
	Preflight(ctx context.Context, refs []EntityReference, hints []*TraitsData, access Access, actx *Context) ([]EntityReference, error)
	PreflightResults(ctx context.Context, refs []EntityReference, hints []*TraitsData, access Access, actx *Context) ([]Outcome[EntityReference], error)
	PreflightWithCallbacks(ctx context.Context, refs []EntityReference, hints []*TraitsData, access Access, actx *Context,
		onSuccess SuccessCallback[EntityReference], onError BatchElementErrorCallback) error
	PreflightOne(ctx context.Context, ref EntityReference, hint *TraitsData, access Access, actx *Context) (EntityReference, error)
	PreflightOneResult(ctx context.Context, ref EntityReference, hint *TraitsData, access Access, actx *Context) (Outcome[EntityReference], error)

	Register(ctx context.Context, refs []EntityReference, data []*TraitsData, access Access, actx *Context) ([]EntityReference, error)
	RegisterResults(ctx context.Context, refs []EntityReference, data []*TraitsData, access Access, actx *Context) ([]Outcome[EntityReference], error)
	RegisterWithCallbacks(ctx context.Context, refs []EntityReference, data []*TraitsData, access Access, actx *Context,
		onSuccess SuccessCallback[EntityReference], onError BatchElementErrorCallback) error
	RegisterOne(ctx context.Context, ref EntityReference, data *TraitsData, access Access, actx *Context) (EntityReference, error)
	RegisterOneResult(ctx context.Context, ref EntityReference, data *TraitsData, access Access, actx *Context) (Outcome[EntityReference], error)

	// Defaults. A nil *EntityReference means the manager has no default.
	DefaultEntityReference(ctx context.Context, traitSets []TraitSet, access Access, actx *Context) ([]*EntityReference, error)
	DefaultEntityReferenceResults(ctx context.Context, traitSets []TraitSet, access Access, actx *Context) ([]Outcome[*EntityReference], error)
	DefaultEntityReferenceWithCallbacks(ctx context.Context, traitSets []TraitSet, access Access, actx *Context,
		onSuccess SuccessCallback[*EntityReference], onError BatchElementErrorCallback) error
	DefaultEntityReferenceOne(ctx context.Context, traitSet TraitSet, access Access, actx *Context) (*EntityReference, error)
	DefaultEntityReferenceOneResult(ctx context.Context, traitSet TraitSet, access Access, actx *Context) (Outcome[*EntityReference], error)
}
