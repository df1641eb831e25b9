package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/internal/dispatch"
	"go.uber.org/zap"
)

// requiredCapabilities must be advertised by every manager plugin.
var requiredCapabilities = []assetio.Capability{
	assetio.CapabilityEntityReferenceIdentification,
	assetio.CapabilityManagementPolicyQueries,
	assetio.CapabilityEntityTraitIntrospection,
}

type manager struct {
	backend assetio.ManagerInterface
	session *assetio.HostSession
	config  *assetio.Config
	engine  *dispatch.Engine

	mu          sync.RWMutex
	initialized bool
	refPrefix   string
}

// NewManager creates the host-facing Manager over a plugin. Observers receive
// every dispatch, typically DispatchMetrics and DispatchTracer.
func NewManager(
	backend assetio.ManagerInterface,
	session *assetio.HostSession,
	config *assetio.Config,
	observers ...dispatch.Observer,
) assetio.Manager {
	if config == nil {
		config = assetio.DefaultConfig()
	}
	if session == nil {
		session = assetio.NewHostSession(nil, zap.L())
	}
	m := &manager{
		backend: backend,
		session: session,
		config:  config,
	}

	var active dispatch.Observers
	for _, o := range observers {
		if o != nil {
			active = append(active, o)
		}
	}
	opts := []dispatch.Option{
		dispatch.WithMaxBatchSize(config.Dispatch.MaxBatchSize),
		dispatch.WithGate(m.ready),
	}
	if len(active) > 0 {
		opts = append(opts, dispatch.WithObserver(active))
	}
	m.engine = dispatch.NewEngine(backend, opts...)
	return m
}

func (m *manager) ready(operation string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return assetio.NewNotInitializedError(operation)
	}
	return nil
}

// backendError keeps structured errors from the plugin and wraps anything else
func backendError(operation string, err error) error {
	var aerr *assetio.Error
	if errors.As(err, &aerr) {
		return err
	}
	return assetio.NewBackendError(operation, err)
}

func (m *manager) Identifier() string {
	return m.backend.Identifier()
}

func (m *manager) DisplayName() string {
	return m.backend.DisplayName()
}

func (m *manager) Info() assetio.InfoDictionary {
	return m.backend.Info()
}

func (m *manager) HasCapability(capability assetio.Capability) bool {
	return m.backend.HasCapability(capability)
}

func (m *manager) Settings(ctx context.Context) (map[string]any, error) {
	settings, err := m.backend.Settings(ctx, m.session)
	if err != nil {
		return nil, backendError("settings", err)
	}
	return settings, nil
}

// Initialize configures the plugin and verifies it advertises the capabilities
// every manager must have. The Info prefix hint is cached for
// IsEntityReferenceString.
func (m *manager) Initialize(ctx context.Context, settings map[string]any) error {
	zap.S().Debugw("initializing manager", "identifier", m.backend.Identifier())
	if err := m.backend.Initialize(ctx, m.session, settings); err != nil {
		return backendError("initialize", err)
	}

	var missing []string
	for _, c := range requiredCapabilities {
		if !m.backend.HasCapability(c) {
			missing = append(missing, c.String())
		}
	}
	if len(missing) > 0 {
		return assetio.NewConfigurationError(assetio.ErrCodeMissingCapabilities,
			fmt.Sprintf("manager %s does not support the required capabilities: %s",
				m.backend.Identifier(), strings.Join(missing, ", "))).
			WithDetail("missing", missing)
	}

	prefix := ""
	if v, ok := m.backend.Info()[assetio.InfoKeyEntityReferencesMatchPrefix]; ok {
		s, isString := v.(string)
		if !isString {
			zap.S().Warnw("ignoring non-string entity reference prefix", "value", v)
		}
		prefix = s
	}

	m.mu.Lock()
	m.initialized = true
	m.refPrefix = prefix
	m.mu.Unlock()
	zap.S().Infow("manager initialized", "identifier", m.backend.Identifier(), "refPrefix", prefix)
	return nil
}

func (m *manager) FlushCaches(ctx context.Context) error {
	if err := m.backend.FlushCaches(ctx, m.session); err != nil {
		return backendError("flushCaches", err)
	}
	return nil
}

func (m *manager) UpdateTerminology(ctx context.Context, terms map[string]string) (map[string]string, error) {
	updated, err := m.backend.UpdateTerminology(ctx, m.session, terms)
	if err != nil {
		return nil, backendError("updateTerminology", err)
	}
	return updated, nil
}

// CreateContext returns a fresh calling context, with manager state when the
// plugin supports stateful contexts.
func (m *manager) CreateContext(ctx context.Context) (*assetio.Context, error) {
	actx := &assetio.Context{Locale: assetio.NewTraitsData(nil)}
	if m.backend.HasCapability(assetio.CapabilityStatefulContexts) {
		state, err := m.backend.CreateState(ctx, m.session)
		if err != nil {
			return nil, backendError("createContext", err)
		}
		actx.ManagerState = state
	}
	return actx, nil
}

// CreateChildContext derives a context sharing the parent's locale values and
// a child of its manager state.
func (m *manager) CreateChildContext(ctx context.Context, parent *assetio.Context) (*assetio.Context, error) {
	if parent == nil {
		return nil, assetio.NewInputValidationError(assetio.ErrCodeNilContext, "parent context cannot be nil").
			WithOperation("createChildContext")
	}
	child := &assetio.Context{Locale: parent.Locale.Clone()}
	if child.Locale == nil {
		child.Locale = assetio.NewTraitsData(nil)
	}
	if parent.ManagerState != nil && m.backend.HasCapability(assetio.CapabilityStatefulContexts) {
		state, err := m.backend.CreateChildState(ctx, m.session, parent.ManagerState)
		if err != nil {
			return nil, backendError("createChildContext", err)
		}
		child.ManagerState = state
	}
	return child, nil
}

func (m *manager) IsEntityReferenceString(ctx context.Context, s string) (bool, error) {
	m.mu.RLock()
	prefix := m.refPrefix
	m.mu.RUnlock()
	if prefix != "" {
		return strings.HasPrefix(s, prefix), nil
	}
	ok, err := m.backend.IsEntityReferenceString(ctx, m.session, s)
	if err != nil {
		return false, backendError("isEntityReferenceString", err)
	}
	return ok, nil
}

func (m *manager) CreateEntityReference(ctx context.Context, s string) (assetio.EntityReference, error) {
	ok, err := m.IsEntityReferenceString(ctx, s)
	if err != nil {
		return assetio.EntityReference{}, err
	}
	if !ok {
		return assetio.EntityReference{}, assetio.NewInputValidationError(assetio.ErrCodeInvalidEntityRef,
			fmt.Sprintf("%q is not a valid entity reference for %s", s, m.backend.Identifier()))
	}
	return assetio.NewEntityReference(s), nil
}

// CreateEntityReferenceIfValid returns nil, without error, for strings the
// manager does not recognise.
func (m *manager) CreateEntityReferenceIfValid(ctx context.Context, s string) (*assetio.EntityReference, error) {
	ok, err := m.IsEntityReferenceString(ctx, s)
	if err != nil || !ok {
		return nil, err
	}
	ref := assetio.NewEntityReference(s)
	return &ref, nil
}

func (m *manager) ManagementPolicy(ctx context.Context, traitSets []assetio.TraitSet, access assetio.Access, actx *assetio.Context) ([]*assetio.TraitsData, error) {
	op := dispatch.OpManagementPolicy
	if err := m.ready(op); err != nil {
		return nil, err
	}
	if err := dispatch.FirstError(
		dispatch.CheckContext(op, actx),
		dispatch.CheckAccess(op, access),
	); err != nil {
		return nil, err
	}

	policies, err := m.backend.ManagementPolicy(ctx, m.session, traitSets, access, actx)
	if err != nil {
		return nil, backendError(op, err)
	}
	if len(policies) != len(traitSets) {
		return nil, assetio.NewError(assetio.ErrorTypeBackend, assetio.ErrCodeInvalidBackendResults,
			fmt.Sprintf("manager returned %d policies for %d trait sets", len(policies), len(traitSets))).
			WithOperation(op)
	}
	return policies, nil
}
