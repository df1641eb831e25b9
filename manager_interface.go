package assetio

import (
	"context"
)

// ManagerInterface is the contract a manager plugin implements. The Manager
// façade calls the per-entity methods once per batch element; a returned
// *BatchElementError fails only that element, any other error aborts the
// whole call.
//
// Implementations must be safe for concurrent use: one plugin instance may
// back several Manager instances.
type ManagerInterface interface {
	Identifier() string
	DisplayName() string
	Info() InfoDictionary
	HasCapability(capability Capability) bool

	Settings(ctx context.Context, session *HostSession) (map[string]any, error)
	Initialize(ctx context.Context, session *HostSession, settings map[string]any) error
	FlushCaches(ctx context.Context, session *HostSession) error
	UpdateTerminology(ctx context.Context, session *HostSession, terms map[string]string) (map[string]string, error)

	CreateState(ctx context.Context, session *HostSession) (any, error)
	CreateChildState(ctx context.Context, session *HostSession, parentState any) (any, error)

	IsEntityReferenceString(ctx context.Context, session *HostSession, s string) (bool, error)
	ManagementPolicy(ctx context.Context, session *HostSession, traitSets []TraitSet, access Access, actx *Context) ([]*TraitsData, error)

	ResolveEntity(ctx context.Context, session *HostSession, ref EntityReference, traitSet TraitSet, access Access, actx *Context) (*TraitsData, error)
	EntityExists(ctx context.Context, session *HostSession, ref EntityReference, actx *Context) (bool, error)
	EntityTraits(ctx context.Context, session *HostSession, ref EntityReference, access Access, actx *Context) (TraitSet, error)
	RelatedEntities(ctx context.Context, session *HostSession, ref EntityReference, relationship *TraitsData,
		resultTraitSet TraitSet, pageSize int, access Access, actx *Context) (EntityReferencePager, error)
	PreflightEntity(ctx context.Context, session *HostSession, ref EntityReference, hint *TraitsData, access Access, actx *Context) (EntityReference, error)
	RegisterEntity(ctx context.Context, session *HostSession, ref EntityReference, data *TraitsData, access Access, actx *Context) (EntityReference, error)
	DefaultEntityReference(ctx context.Context, session *HostSession, traitSet TraitSet, access Access, actx *Context) (*EntityReference, error)
}

// UnimplementedManagerInterface can be embedded by plugins that only support
// part of the contract. Identifier, DisplayName and HasCapability must still
// be provided by the embedding type.
type UnimplementedManagerInterface struct{}

func (UnimplementedManagerInterface) Info() InfoDictionary {
	return InfoDictionary{}
}

func (UnimplementedManagerInterface) Settings(context.Context, *HostSession) (map[string]any, error) {
	return map[string]any{}, nil
}

func (UnimplementedManagerInterface) Initialize(context.Context, *HostSession, map[string]any) error {
	return nil
}

func (UnimplementedManagerInterface) FlushCaches(context.Context, *HostSession) error {
	return nil
}

func (UnimplementedManagerInterface) UpdateTerminology(_ context.Context, _ *HostSession, terms map[string]string) (map[string]string, error) {
	return terms, nil
}

func (UnimplementedManagerInterface) CreateState(context.Context, *HostSession) (any, error) {
	return nil, NewNotImplementedError("CreateState")
}

func (UnimplementedManagerInterface) CreateChildState(context.Context, *HostSession, any) (any, error) {
	return nil, NewNotImplementedError("CreateChildState")
}

func (UnimplementedManagerInterface) IsEntityReferenceString(context.Context, *HostSession, string) (bool, error) {
	return false, NewNotImplementedError("IsEntityReferenceString")
}

func (UnimplementedManagerInterface) ManagementPolicy(context.Context, *HostSession, []TraitSet, Access, *Context) ([]*TraitsData, error) {
	return nil, NewNotImplementedError("ManagementPolicy")
}

func (UnimplementedManagerInterface) ResolveEntity(context.Context, *HostSession, EntityReference, TraitSet, Access, *Context) (*TraitsData, error) {
	return nil, NewNotImplementedError("ResolveEntity")
}

func (UnimplementedManagerInterface) EntityExists(context.Context, *HostSession, EntityReference, *Context) (bool, error) {
	return false, NewNotImplementedError("EntityExists")
}

func (UnimplementedManagerInterface) EntityTraits(context.Context, *HostSession, EntityReference, Access, *Context) (TraitSet, error) {
	return nil, NewNotImplementedError("EntityTraits")
}

func (UnimplementedManagerInterface) RelatedEntities(context.Context, *HostSession, EntityReference, *TraitsData, TraitSet, int, Access, *Context) (EntityReferencePager, error) {
	return nil, NewNotImplementedError("RelatedEntities")
}

func (UnimplementedManagerInterface) PreflightEntity(context.Context, *HostSession, EntityReference, *TraitsData, Access, *Context) (EntityReference, error) {
	return EntityReference{}, NewNotImplementedError("PreflightEntity")
}

func (UnimplementedManagerInterface) RegisterEntity(context.Context, *HostSession, EntityReference, *TraitsData, Access, *Context) (EntityReference, error) {
	return EntityReference{}, NewNotImplementedError("RegisterEntity")
}

func (UnimplementedManagerInterface) DefaultEntityReference(context.Context, *HostSession, TraitSet, Access, *Context) (*EntityReference, error) {
	return nil, NewNotImplementedError("DefaultEntityReference")
}
