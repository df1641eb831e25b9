package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/internal/dispatch"
	"github.com/lychee-technology/assetio/internal/plugins"
)

const defaultPageSize = 50

// batchRequest is the body accepted by every /api/v1 operation. Each handler
// reads the fields its operation needs.
type batchRequest struct {
	Refs           []string                    `json:"refs"`
	TraitSet       []string                    `json:"traitSet"`
	TraitSets      [][]string                  `json:"traitSets"`
	TraitsData     []map[string]map[string]any `json:"traitsData"`
	Relationship   map[string]map[string]any   `json:"relationship"`
	ResultTraitSet []string                    `json:"resultTraitSet"`
	PageSize       int                         `json:"pageSize"`
	Access         string                      `json:"access"`
	ErrorPolicy    string                      `json:"errorPolicy"`
}

// call carries the decoded parts of a request shared by all handlers
type call struct {
	req    batchRequest
	policy dispatch.Mode
	access assetio.Access
	actx   *assetio.Context
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, defaultAccess assetio.Access) (*call, bool) {
	var c call
	if err := readJSONBody(r, &c.req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return nil, false
	}
	policy, err := parseErrorPolicy(c.req.ErrorPolicy)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	access, err := parseAccess(c.req.Access, defaultAccess)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	actx, err := s.manager.CreateContext(r.Context())
	if err != nil {
		writeFailure(w, err)
		return nil, false
	}
	c.policy = policy
	c.access = access
	c.actx = actx
	return &c, true
}

// serveBatch runs one batch under the request's error policy. Throw returns
// the values or the first element failure; collect returns one entry per
// element in input order.
func serveBatch[T any](
	w http.ResponseWriter,
	policy dispatch.Mode,
	throw func() ([]T, error),
	collect func() ([]assetio.Outcome[T], error),
	encode func(T) (any, error),
) {
	if policy == dispatch.ThrowOnFirstError {
		values, err := throw()
		if err != nil {
			writeFailure(w, err)
			return
		}
		encoded := make([]any, len(values))
		for i, v := range values {
			if encoded[i], err = encode(v); err != nil {
				closeValues(values[i+1:])
				writeFailure(w, err)
				return
			}
		}
		writeSuccess(w, http.StatusOK, map[string]any{"values": encoded})
		return
	}

	outcomes, err := collect()
	if err != nil {
		writeFailure(w, err)
		return
	}
	results := make([]elementResult, len(outcomes))
	for i, o := range outcomes {
		results[i] = elementResult{Index: i, Error: o.Err}
		if o.OK() {
			if results[i].Value, err = encode(o.Value); err != nil {
				for _, rest := range outcomes[i+1:] {
					if rest.OK() {
						closeValues([]T{rest.Value})
					}
				}
				writeFailure(w, err)
				return
			}
		}
	}
	writeSuccess(w, http.StatusOK, map[string]any{"results": results})
}

func asIs[T any](v T) (any, error) {
	return v, nil
}

// handleResolve handles POST /api/v1/resolve
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	c, ok := s.decode(w, r, assetio.AccessRead)
	if !ok {
		return
	}
	ctx := r.Context()
	refs := parseRefs(c.req.Refs)
	traitSet := assetio.NewTraitSet(c.req.TraitSet...)

	serveBatch(w, c.policy,
		func() ([]*assetio.TraitsData, error) {
			return s.manager.Resolve(ctx, refs, traitSet, c.access, c.actx)
		},
		func() ([]assetio.Outcome[*assetio.TraitsData], error) {
			return s.manager.ResolveResults(ctx, refs, traitSet, c.access, c.actx)
		},
		asIs[*assetio.TraitsData])
}

// handleExists handles POST /api/v1/exists
func (s *Server) handleExists(w http.ResponseWriter, r *http.Request) {
	c, ok := s.decode(w, r, assetio.AccessRead)
	if !ok {
		return
	}
	ctx := r.Context()
	refs := parseRefs(c.req.Refs)

	serveBatch(w, c.policy,
		func() ([]bool, error) {
			return s.manager.EntityExists(ctx, refs, c.actx)
		},
		func() ([]assetio.Outcome[bool], error) {
			return s.manager.EntityExistsResults(ctx, refs, c.actx)
		},
		asIs[bool])
}

// handleTraits handles POST /api/v1/traits
func (s *Server) handleTraits(w http.ResponseWriter, r *http.Request) {
	c, ok := s.decode(w, r, assetio.AccessRead)
	if !ok {
		return
	}
	ctx := r.Context()
	refs := parseRefs(c.req.Refs)

	serveBatch(w, c.policy,
		func() ([]assetio.TraitSet, error) {
			return s.manager.EntityTraits(ctx, refs, c.access, c.actx)
		},
		func() ([]assetio.Outcome[assetio.TraitSet], error) {
			return s.manager.EntityTraitsResults(ctx, refs, c.access, c.actx)
		},
		asIs[assetio.TraitSet])
}

// handleRelationships handles POST /api/v1/relationships. Every pager is
// drained so the response lists all related references.
func (s *Server) handleRelationships(w http.ResponseWriter, r *http.Request) {
	c, ok := s.decode(w, r, assetio.AccessRead)
	if !ok {
		return
	}
	ctx := r.Context()
	refs := parseRefs(c.req.Refs)
	relationship, err := assetio.TraitsDataFromMap(c.req.Relationship)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid relationship: %v", err))
		return
	}
	var resultTraitSet assetio.TraitSet
	if len(c.req.ResultTraitSet) > 0 {
		resultTraitSet = assetio.NewTraitSet(c.req.ResultTraitSet...)
	}
	pageSize := c.req.PageSize
	if pageSize <= 0 {
		pageSize = s.pageSize
	}

	serveBatch(w, c.policy,
		func() ([]assetio.EntityReferencePager, error) {
			return s.manager.GetWithRelationship(ctx, refs, relationship, resultTraitSet, pageSize, c.access, c.actx)
		},
		func() ([]assetio.Outcome[assetio.EntityReferencePager], error) {
			return s.manager.GetWithRelationshipResults(ctx, refs, relationship, resultTraitSet, pageSize, c.access, c.actx)
		},
		func(pager assetio.EntityReferencePager) (any, error) {
			return drain(ctx, pager)
		})
}

func drain(ctx context.Context, pager assetio.EntityReferencePager) (any, error) {
	refs, err := plugins.CollectPages(ctx, pager)
	if err != nil {
		return nil, assetio.NewBackendError("getWithRelationship", err)
	}
	out := make([]string, len(refs))
	for i, ref := range refs {
		out[i] = ref.String()
	}
	return out, nil
}

// handlePreflight handles POST /api/v1/preflight
func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	c, ok := s.decode(w, r, assetio.AccessWrite)
	if !ok {
		return
	}
	ctx := r.Context()
	refs := parseRefs(c.req.Refs)
	hints, err := parseTraitsData(c.req.TraitsData)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	serveBatch(w, c.policy,
		func() ([]assetio.EntityReference, error) {
			return s.manager.Preflight(ctx, refs, hints, c.access, c.actx)
		},
		func() ([]assetio.Outcome[assetio.EntityReference], error) {
			return s.manager.PreflightResults(ctx, refs, hints, c.access, c.actx)
		},
		asIs[assetio.EntityReference])
}

// handleRegister handles POST /api/v1/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	c, ok := s.decode(w, r, assetio.AccessWrite)
	if !ok {
		return
	}
	ctx := r.Context()
	refs := parseRefs(c.req.Refs)
	data, err := parseTraitsData(c.req.TraitsData)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	serveBatch(w, c.policy,
		func() ([]assetio.EntityReference, error) {
			return s.manager.Register(ctx, refs, data, c.access, c.actx)
		},
		func() ([]assetio.Outcome[assetio.EntityReference], error) {
			return s.manager.RegisterResults(ctx, refs, data, c.access, c.actx)
		},
		asIs[assetio.EntityReference])
}

// handleDefaults handles POST /api/v1/defaults
func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	c, ok := s.decode(w, r, assetio.AccessRead)
	if !ok {
		return
	}
	ctx := r.Context()
	traitSets := parseTraitSets(c.req.TraitSets)

	serveBatch(w, c.policy,
		func() ([]*assetio.EntityReference, error) {
			return s.manager.DefaultEntityReference(ctx, traitSets, c.access, c.actx)
		},
		func() ([]assetio.Outcome[*assetio.EntityReference], error) {
			return s.manager.DefaultEntityReferenceResults(ctx, traitSets, c.access, c.actx)
		},
		asIs[*assetio.EntityReference])
}

// handlePolicy handles POST /api/v1/policy. Management policy has no
// per-element failures, so the error policy does not apply.
func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	c, ok := s.decode(w, r, assetio.AccessRead)
	if !ok {
		return
	}
	policies, err := s.manager.ManagementPolicy(r.Context(), parseTraitSets(c.req.TraitSets), c.access, c.actx)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"values": policies})
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"manager": s.manager.Identifier(),
	})
}
