package internal

import (
	"context"

	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/internal/dispatch"
)

// Each operation is bound to the engine by one call builder. The five
// delivery forms of an operation differ only in the dispatch function used.

// ============================================================================
// resolve
// ============================================================================

func (m *manager) resolveCall(refs []assetio.EntityReference, traitSet assetio.TraitSet, access assetio.Access, actx *assetio.Context) dispatch.Call[*assetio.TraitsData] {
	op := dispatch.OpResolve
	return dispatch.Call[*assetio.TraitsData]{
		Operation:  op,
		Capability: assetio.CapabilityResolution,
		Size:       len(refs),
		Validate: func() error {
			return dispatch.FirstError(
				dispatch.CheckContext(op, actx),
				dispatch.CheckAccess(op, access),
			)
		},
		Invoke: func(ctx context.Context, i int) (*assetio.TraitsData, error) {
			return m.backend.ResolveEntity(ctx, m.session, refs[i], traitSet, access, actx)
		},
	}
}

func (m *manager) Resolve(ctx context.Context, refs []assetio.EntityReference, traitSet assetio.TraitSet, access assetio.Access, actx *assetio.Context) ([]*assetio.TraitsData, error) {
	return dispatch.Throw(ctx, m.engine, m.resolveCall(refs, traitSet, access, actx))
}

func (m *manager) ResolveResults(ctx context.Context, refs []assetio.EntityReference, traitSet assetio.TraitSet, access assetio.Access, actx *assetio.Context) ([]assetio.Outcome[*assetio.TraitsData], error) {
	return dispatch.Collect(ctx, m.engine, m.resolveCall(refs, traitSet, access, actx))
}

func (m *manager) ResolveWithCallbacks(ctx context.Context, refs []assetio.EntityReference, traitSet assetio.TraitSet, access assetio.Access, actx *assetio.Context,
	onSuccess assetio.SuccessCallback[*assetio.TraitsData], onError assetio.BatchElementErrorCallback) error {
	return dispatch.Stream(ctx, m.engine, m.resolveCall(refs, traitSet, access, actx), onSuccess, onError)
}

func (m *manager) ResolveOne(ctx context.Context, ref assetio.EntityReference, traitSet assetio.TraitSet, access assetio.Access, actx *assetio.Context) (*assetio.TraitsData, error) {
	return dispatch.One(ctx, m.engine, m.resolveCall([]assetio.EntityReference{ref}, traitSet, access, actx))
}

func (m *manager) ResolveOneResult(ctx context.Context, ref assetio.EntityReference, traitSet assetio.TraitSet, access assetio.Access, actx *assetio.Context) (assetio.Outcome[*assetio.TraitsData], error) {
	return dispatch.OneResult(ctx, m.engine, m.resolveCall([]assetio.EntityReference{ref}, traitSet, access, actx))
}

// ============================================================================
// entityExists
// ============================================================================

func (m *manager) existsCall(refs []assetio.EntityReference, actx *assetio.Context) dispatch.Call[bool] {
	op := dispatch.OpEntityExists
	return dispatch.Call[bool]{
		Operation:  op,
		Capability: assetio.CapabilityExistenceQueries,
		Size:       len(refs),
		Validate: func() error {
			return dispatch.CheckContext(op, actx)
		},
		Invoke: func(ctx context.Context, i int) (bool, error) {
			return m.backend.EntityExists(ctx, m.session, refs[i], actx)
		},
	}
}

func (m *manager) EntityExists(ctx context.Context, refs []assetio.EntityReference, actx *assetio.Context) ([]bool, error) {
	return dispatch.Throw(ctx, m.engine, m.existsCall(refs, actx))
}

func (m *manager) EntityExistsResults(ctx context.Context, refs []assetio.EntityReference, actx *assetio.Context) ([]assetio.Outcome[bool], error) {
	return dispatch.Collect(ctx, m.engine, m.existsCall(refs, actx))
}

func (m *manager) EntityExistsWithCallbacks(ctx context.Context, refs []assetio.EntityReference, actx *assetio.Context,
	onSuccess assetio.SuccessCallback[bool], onError assetio.BatchElementErrorCallback) error {
	return dispatch.Stream(ctx, m.engine, m.existsCall(refs, actx), onSuccess, onError)
}

func (m *manager) EntityExistsOne(ctx context.Context, ref assetio.EntityReference, actx *assetio.Context) (bool, error) {
	return dispatch.One(ctx, m.engine, m.existsCall([]assetio.EntityReference{ref}, actx))
}

func (m *manager) EntityExistsOneResult(ctx context.Context, ref assetio.EntityReference, actx *assetio.Context) (assetio.Outcome[bool], error) {
	return dispatch.OneResult(ctx, m.engine, m.existsCall([]assetio.EntityReference{ref}, actx))
}

// ============================================================================
// entityTraits
// ============================================================================

func (m *manager) traitsCall(refs []assetio.EntityReference, access assetio.Access, actx *assetio.Context) dispatch.Call[assetio.TraitSet] {
	op := dispatch.OpEntityTraits
	return dispatch.Call[assetio.TraitSet]{
		Operation:  op,
		Capability: assetio.CapabilityEntityTraitIntrospection,
		Size:       len(refs),
		Validate: func() error {
			return dispatch.FirstError(
				dispatch.CheckContext(op, actx),
				dispatch.CheckAccess(op, access),
			)
		},
		Invoke: func(ctx context.Context, i int) (assetio.TraitSet, error) {
			return m.backend.EntityTraits(ctx, m.session, refs[i], access, actx)
		},
	}
}

func (m *manager) EntityTraits(ctx context.Context, refs []assetio.EntityReference, access assetio.Access, actx *assetio.Context) ([]assetio.TraitSet, error) {
	return dispatch.Throw(ctx, m.engine, m.traitsCall(refs, access, actx))
}

func (m *manager) EntityTraitsResults(ctx context.Context, refs []assetio.EntityReference, access assetio.Access, actx *assetio.Context) ([]assetio.Outcome[assetio.TraitSet], error) {
	return dispatch.Collect(ctx, m.engine, m.traitsCall(refs, access, actx))
}

func (m *manager) EntityTraitsWithCallbacks(ctx context.Context, refs []assetio.EntityReference, access assetio.Access, actx *assetio.Context,
	onSuccess assetio.SuccessCallback[assetio.TraitSet], onError assetio.BatchElementErrorCallback) error {
	return dispatch.Stream(ctx, m.engine, m.traitsCall(refs, access, actx), onSuccess, onError)
}

func (m *manager) EntityTraitsOne(ctx context.Context, ref assetio.EntityReference, access assetio.Access, actx *assetio.Context) (assetio.TraitSet, error) {
	return dispatch.One(ctx, m.engine, m.traitsCall([]assetio.EntityReference{ref}, access, actx))
}

func (m *manager) EntityTraitsOneResult(ctx context.Context, ref assetio.EntityReference, access assetio.Access, actx *assetio.Context) (assetio.Outcome[assetio.TraitSet], error) {
	return dispatch.OneResult(ctx, m.engine, m.traitsCall([]assetio.EntityReference{ref}, access, actx))
}

// ============================================================================
// getWithRelationship(s)
// ============================================================================

// relationshipCall queries one relationship for each of refs.
func (m *manager) relationshipCall(refs []assetio.EntityReference, relationship *assetio.TraitsData, resultTraitSet assetio.TraitSet,
	pageSize int, access assetio.Access, actx *assetio.Context) dispatch.Call[assetio.EntityReferencePager] {
	op := dispatch.OpGetWithRelationship
	return dispatch.Call[assetio.EntityReferencePager]{
		Operation:  op,
		Capability: assetio.CapabilityRelationshipQueries,
		Size:       len(refs),
		Validate: func() error {
			return dispatch.FirstError(
				dispatch.CheckContext(op, actx),
				dispatch.CheckAccess(op, access),
				dispatch.CheckTraitsData(op, []*assetio.TraitsData{relationship}),
				dispatch.CheckPageSize(op, pageSize),
			)
		},
		Invoke: func(ctx context.Context, i int) (assetio.EntityReferencePager, error) {
			return m.backend.RelatedEntities(ctx, m.session, refs[i], relationship, resultTraitSet, pageSize, access, actx)
		},
	}
}

// relationshipsCall queries each of relationships for one ref.
func (m *manager) relationshipsCall(ref assetio.EntityReference, relationships []*assetio.TraitsData, resultTraitSet assetio.TraitSet,
	pageSize int, access assetio.Access, actx *assetio.Context) dispatch.Call[assetio.EntityReferencePager] {
	op := dispatch.OpGetWithRelationships
	return dispatch.Call[assetio.EntityReferencePager]{
		Operation:  op,
		Capability: assetio.CapabilityRelationshipQueries,
		Size:       len(relationships),
		Validate: func() error {
			return dispatch.FirstError(
				dispatch.CheckContext(op, actx),
				dispatch.CheckAccess(op, access),
				dispatch.CheckTraitsData(op, relationships),
				dispatch.CheckPageSize(op, pageSize),
			)
		},
		Invoke: func(ctx context.Context, i int) (assetio.EntityReferencePager, error) {
			return m.backend.RelatedEntities(ctx, m.session, ref, relationships[i], resultTraitSet, pageSize, access, actx)
		},
	}
}

func (m *manager) GetWithRelationship(ctx context.Context, refs []assetio.EntityReference, relationship *assetio.TraitsData, resultTraitSet assetio.TraitSet,
	pageSize int, access assetio.Access, actx *assetio.Context) ([]assetio.EntityReferencePager, error) {
	return dispatch.Throw(ctx, m.engine, m.relationshipCall(refs, relationship, resultTraitSet, pageSize, access, actx))
}

func (m *manager) GetWithRelationshipResults(ctx context.Context, refs []assetio.EntityReference, relationship *assetio.TraitsData, resultTraitSet assetio.TraitSet,
	pageSize int, access assetio.Access, actx *assetio.Context) ([]assetio.Outcome[assetio.EntityReferencePager], error) {
	return dispatch.Collect(ctx, m.engine, m.relationshipCall(refs, relationship, resultTraitSet, pageSize, access, actx))
}

func (m *manager) GetWithRelationshipWithCallbacks(ctx context.Context, refs []assetio.EntityReference, relationship *assetio.TraitsData, resultTraitSet assetio.TraitSet,
	pageSize int, access assetio.Access, actx *assetio.Context,
	onSuccess assetio.SuccessCallback[assetio.EntityReferencePager], onError assetio.BatchElementErrorCallback) error {
	return dispatch.Stream(ctx, m.engine, m.relationshipCall(refs, relationship, resultTraitSet, pageSize, access, actx), onSuccess, onError)
}

func (m *manager) GetWithRelationshipOne(ctx context.Context, ref assetio.EntityReference, relationship *assetio.TraitsData, resultTraitSet assetio.TraitSet,
	pageSize int, access assetio.Access, actx *assetio.Context) (assetio.EntityReferencePager, error) {
	return dispatch.One(ctx, m.engine, m.relationshipCall([]assetio.EntityReference{ref}, relationship, resultTraitSet, pageSize, access, actx))
}

func (m *manager) GetWithRelationshipOneResult(ctx context.Context, ref assetio.EntityReference, relationship *assetio.TraitsData, resultTraitSet assetio.TraitSet,
	pageSize int, access assetio.Access, actx *assetio.Context) (assetio.Outcome[assetio.EntityReferencePager], error) {
	return dispatch.OneResult(ctx, m.engine, m.relationshipCall([]assetio.EntityReference{ref}, relationship, resultTraitSet, pageSize, access, actx))
}

func (m *manager) GetWithRelationships(ctx context.Context, ref assetio.EntityReference, relationships []*assetio.TraitsData, resultTraitSet assetio.TraitSet,
	pageSize int, access assetio.Access, actx *assetio.Context) ([]assetio.EntityReferencePager, error) {
	return dispatch.Throw(ctx, m.engine, m.relationshipsCall(ref, relationships, resultTraitSet, pageSize, access, actx))
}

func (m *manager) GetWithRelationshipsResults(ctx context.Context, ref assetio.EntityReference, relationships []*assetio.TraitsData, resultTraitSet assetio.TraitSet,
	pageSize int, access assetio.Access, actx *assetio.Context) ([]assetio.Outcome[assetio.EntityReferencePager], error) {
	return dispatch.Collect(ctx, m.engine, m.relationshipsCall(ref, relationships, resultTraitSet, pageSize, access, actx))
}

func (m *manager) GetWithRelationshipsWithCallbacks(ctx context.Context, ref assetio.EntityReference, relationships []*assetio.TraitsData, resultTraitSet assetio.TraitSet,
	pageSize int, access assetio.Access, actx *assetio.Context,
	onSuccess assetio.SuccessCallback[assetio.EntityReferencePager], onError assetio.BatchElementErrorCallback) error {
	return dispatch.Stream(ctx, m.engine, m.relationshipsCall(ref, relationships, resultTraitSet, pageSize, access, actx), onSuccess, onError)
}

// ============================================================================
// preflight / register
// ============================================================================

func (m *manager) publishCall(op string, refs []assetio.EntityReference, datas []*assetio.TraitsData, access assetio.Access, actx *assetio.Context,
	invoke func(ctx context.Context, ref assetio.EntityReference, data *assetio.TraitsData) (assetio.EntityReference, error)) dispatch.Call[assetio.EntityReference] {
	what := "traits data"
	if op == dispatch.OpPreflight {
		what = "hints"
	}
	return dispatch.Call[assetio.EntityReference]{
		Operation:  op,
		Capability: assetio.CapabilityPublishing,
		Size:       len(refs),
		Validate: func() error {
			return dispatch.FirstError(
				dispatch.CheckContext(op, actx),
				dispatch.CheckAccess(op, access),
				dispatch.CheckLengths(op, what, len(refs), len(datas)),
				dispatch.CheckTraitsData(op, datas),
			)
		},
		Invoke: func(ctx context.Context, i int) (assetio.EntityReference, error) {
			return invoke(ctx, refs[i], datas[i])
		},
	}
}

func (m *manager) preflightCall(refs []assetio.EntityReference, hints []*assetio.TraitsData, access assetio.Access, actx *assetio.Context) dispatch.Call[assetio.EntityReference] {
	return m.publishCall(dispatch.OpPreflight, refs, hints, access, actx,
		func(ctx context.Context, ref assetio.EntityReference, hint *assetio.TraitsData) (assetio.EntityReference, error) {
			return m.backend.PreflightEntity(ctx, m.session, ref, hint, access, actx)
		})
}

func (m *manager) registerCall(refs []assetio.EntityReference, datas []*assetio.TraitsData, access assetio.Access, actx *assetio.Context) dispatch.Call[assetio.EntityReference] {
	return m.publishCall(dispatch.OpRegister, refs, datas, access, actx,
		func(ctx context.Context, ref assetio.EntityReference, data *assetio.TraitsData) (assetio.EntityReference, error) {
			return m.backend.RegisterEntity(ctx, m.session, ref, data, access, actx)
		})
}

func (m *manager) Preflight(ctx context.Context, refs []assetio.EntityReference, hints []*assetio.TraitsData, access assetio.Access, actx *assetio.Context) ([]assetio.EntityReference, error) {
	return dispatch.Throw(ctx, m.engine, m.preflightCall(refs, hints, access, actx))
}

func (m *manager) PreflightResults(ctx context.Context, refs []assetio.EntityReference, hints []*assetio.TraitsData, access assetio.Access, actx *assetio.Context) ([]assetio.Outcome[assetio.EntityReference], error) {
	return dispatch.Collect(ctx, m.engine, m.preflightCall(refs, hints, access, actx))
}

func (m *manager) PreflightWithCallbacks(ctx context.Context, refs []assetio.EntityReference, hints []*assetio.TraitsData, access assetio.Access, actx *assetio.Context,
	onSuccess assetio.SuccessCallback[assetio.EntityReference], onError assetio.BatchElementErrorCallback) error {
	return dispatch.Stream(ctx, m.engine, m.preflightCall(refs, hints, access, actx), onSuccess, onError)
}

func (m *manager) PreflightOne(ctx context.Context, ref assetio.EntityReference, hint *assetio.TraitsData, access assetio.Access, actx *assetio.Context) (assetio.EntityReference, error) {
	return dispatch.One(ctx, m.engine, m.preflightCall([]assetio.EntityReference{ref}, []*assetio.TraitsData{hint}, access, actx))
}

func (m *manager) PreflightOneResult(ctx context.Context, ref assetio.EntityReference, hint *assetio.TraitsData, access assetio.Access, actx *assetio.Context) (assetio.Outcome[assetio.EntityReference], error) {
	return dispatch.OneResult(ctx, m.engine, m.preflightCall([]assetio.EntityReference{ref}, []*assetio.TraitsData{hint}, access, actx))
}

func (m *manager) Register(ctx context.Context, refs []assetio.EntityReference, datas []*assetio.TraitsData, access assetio.Access, actx *assetio.Context) ([]assetio.EntityReference, error) {
	return dispatch.Throw(ctx, m.engine, m.registerCall(refs, datas, access, actx))
}

func (m *manager) RegisterResults(ctx context.Context, refs []assetio.EntityReference, datas []*assetio.TraitsData, access assetio.Access, actx *assetio.Context) ([]assetio.Outcome[assetio.EntityReference], error) {
	return dispatch.Collect(ctx, m.engine, m.registerCall(refs, datas, access, actx))
}

func (m *manager) RegisterWithCallbacks(ctx context.Context, refs []assetio.EntityReference, datas []*assetio.TraitsData, access assetio.Access, actx *assetio.Context,
	onSuccess assetio.SuccessCallback[assetio.EntityReference], onError assetio.BatchElementErrorCallback) error {
	return dispatch.Stream(ctx, m.engine, m.registerCall(refs, datas, access, actx), onSuccess, onError)
}

func (m *manager) RegisterOne(ctx context.Context, ref assetio.EntityReference, data *assetio.TraitsData, access assetio.Access, actx *assetio.Context) (assetio.EntityReference, error) {
	return dispatch.One(ctx, m.engine, m.registerCall([]assetio.EntityReference{ref}, []*assetio.TraitsData{data}, access, actx))
}

func (m *manager) RegisterOneResult(ctx context.Context, ref assetio.EntityReference, data *assetio.TraitsData, access assetio.Access, actx *assetio.Context) (assetio.Outcome[assetio.EntityReference], error) {
	return dispatch.OneResult(ctx, m.engine, m.registerCall([]assetio.EntityReference{ref}, []*assetio.TraitsData{data}, access, actx))
}

// ============================================================================
// defaultEntityReference
// ============================================================================

func (m *manager) defaultRefCall(traitSets []assetio.TraitSet, access assetio.Access, actx *assetio.Context) dispatch.Call[*assetio.EntityReference] {
	op := dispatch.OpDefaultEntityReference
	return dispatch.Call[*assetio.EntityReference]{
		Operation:  op,
		Capability: assetio.CapabilityDefaultEntityReferences,
		Size:       len(traitSets),
		Validate: func() error {
			return dispatch.FirstError(
				dispatch.CheckContext(op, actx),
				dispatch.CheckAccess(op, access),
			)
		},
		Invoke: func(ctx context.Context, i int) (*assetio.EntityReference, error) {
			return m.backend.DefaultEntityReference(ctx, m.session, traitSets[i], access, actx)
		},
	}
}

func (m *manager) DefaultEntityReference(ctx context.Context, traitSets []assetio.TraitSet, access assetio.Access, actx *assetio.Context) ([]*assetio.EntityReference, error) {
	return dispatch.Throw(ctx, m.engine, m.defaultRefCall(traitSets, access, actx))
}

func (m *manager) DefaultEntityReferenceResults(ctx context.Context, traitSets []assetio.TraitSet, access assetio.Access, actx *assetio.Context) ([]assetio.Outcome[*assetio.EntityReference], error) {
	return dispatch.Collect(ctx, m.engine, m.defaultRefCall(traitSets, access, actx))
}

func (m *manager) DefaultEntityReferenceWithCallbacks(ctx context.Context, traitSets []assetio.TraitSet, access assetio.Access, actx *assetio.Context,
	onSuccess assetio.SuccessCallback[*assetio.EntityReference], onError assetio.BatchElementErrorCallback) error {
	return dispatch.Stream(ctx, m.engine, m.defaultRefCall(traitSets, access, actx), onSuccess, onError)
}

func (m *manager) DefaultEntityReferenceOne(ctx context.Context, traitSet assetio.TraitSet, access assetio.Access, actx *assetio.Context) (*assetio.EntityReference, error) {
	return dispatch.One(ctx, m.engine, m.defaultRefCall([]assetio.TraitSet{traitSet}, access, actx))
}

func (m *manager) DefaultEntityReferenceOneResult(ctx context.Context, traitSet assetio.TraitSet, access assetio.Access, actx *assetio.Context) (assetio.Outcome[*assetio.EntityReference], error) {
	return dispatch.OneResult(ctx, m.engine, m.defaultRefCall([]assetio.TraitSet{traitSet}, access, actx))
}
