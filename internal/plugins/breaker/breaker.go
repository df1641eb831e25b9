// Package breaker guards a manager plugin with a circuit breaker so that a
// failing backend aborts calls immediately instead of timing out per element.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lychee-technology/assetio"
	"go.uber.org/zap"
)

// ErrOpen is the cause of calls rejected while the breaker is open
var ErrOpen = errors.New("circuit breaker is open")

// CircuitBreaker opens after threshold failures inside window and stays
// open for openDuration. A success closes it and clears the history.
type CircuitBreaker struct {
	mu           sync.Mutex
	failures     []time.Time
	threshold    int
	window       time.Duration
	openUntil    time.Time
	openDuration time.Duration
	now          func() time.Time
}

// NewCircuitBreaker creates a configured circuit breaker.
func NewCircuitBreaker(threshold int, window, openDuration time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:    threshold,
		window:       window,
		openDuration: openDuration,
		failures:     make([]time.Time, 0, threshold),
		now:          time.Now,
	}
}

// RecordFailure records a failure and reports whether it opened the breaker.
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cutoff := now.Add(-cb.window)
	i := 0
	for ; i < len(cb.failures); i++ {
		if cb.failures[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		cb.failures = append(cb.failures[:0], cb.failures[i:]...)
	}
	cb.failures = append(cb.failures, now)

	if len(cb.failures) >= cb.threshold && !now.Before(cb.openUntil) {
		cb.openUntil = now.Add(cb.openDuration)
		return true
	}
	return false
}

// RecordSuccess resets failure history when operations succeed.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = cb.failures[:0]
	cb.openUntil = time.Time{}
}

// IsOpen returns true if the breaker is currently open.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.now().Before(cb.openUntil)
}

// Plugin forwards to the wrapped plugin while the breaker is closed. Only
// call-level errors count as failures: element errors mean the backend
// answered.
type Plugin struct {
	assetio.ManagerInterface
	cb *CircuitBreaker
}

// New wraps plugin with cb
func New(plugin assetio.ManagerInterface, cb *CircuitBreaker) *Plugin {
	return &Plugin{ManagerInterface: plugin, cb: cb}
}

// Breaker returns the breaker guarding the plugin
func (p *Plugin) Breaker() *CircuitBreaker {
	return p.cb
}

func guard[T any](ctx context.Context, p *Plugin, operation string, call func() (T, error)) (T, error) {
	if p.cb.IsOpen() {
		var zero T
		return zero, assetio.NewBackendError(operation, ErrOpen)
	}
	v, err := call()
	p.record(ctx, operation, err)
	return v, err
}

func (p *Plugin) record(ctx context.Context, operation string, err error) {
	if err == nil {
		p.cb.RecordSuccess()
		return
	}
	if _, ok := assetio.AsBatchElementError(err); ok {
		p.cb.RecordSuccess()
		return
	}
	// The caller gave up; the backend may be fine.
	if ctx.Err() != nil {
		return
	}
	if p.cb.RecordFailure() {
		zap.S().Warnw("circuit breaker opened", "plugin", p.Identifier(), "operation", operation, "error", err)
	}
}

func (p *Plugin) ResolveEntity(ctx context.Context, s *assetio.HostSession, ref assetio.EntityReference, traitSet assetio.TraitSet, access assetio.Access, actx *assetio.Context) (*assetio.TraitsData, error) {
	return guard(ctx, p, "resolve", func() (*assetio.TraitsData, error) {
		return p.ManagerInterface.ResolveEntity(ctx, s, ref, traitSet, access, actx)
	})
}

func (p *Plugin) EntityExists(ctx context.Context, s *assetio.HostSession, ref assetio.EntityReference, actx *assetio.Context) (bool, error) {
	return guard(ctx, p, "entityExists", func() (bool, error) {
		return p.ManagerInterface.EntityExists(ctx, s, ref, actx)
	})
}

func (p *Plugin) EntityTraits(ctx context.Context, s *assetio.HostSession, ref assetio.EntityReference, access assetio.Access, actx *assetio.Context) (assetio.TraitSet, error) {
	return guard(ctx, p, "entityTraits", func() (assetio.TraitSet, error) {
		return p.ManagerInterface.EntityTraits(ctx, s, ref, access, actx)
	})
}

func (p *Plugin) RelatedEntities(ctx context.Context, s *assetio.HostSession, ref assetio.EntityReference, relationship *assetio.TraitsData, resultTraitSet assetio.TraitSet, pageSize int, access assetio.Access, actx *assetio.Context) (assetio.EntityReferencePager, error) {
	return guard(ctx, p, "getWithRelationship", func() (assetio.EntityReferencePager, error) {
		return p.ManagerInterface.RelatedEntities(ctx, s, ref, relationship, resultTraitSet, pageSize, access, actx)
	})
}

func (p *Plugin) PreflightEntity(ctx context.Context, s *assetio.HostSession, ref assetio.EntityReference, hint *assetio.TraitsData, access assetio.Access, actx *assetio.Context) (assetio.EntityReference, error) {
	return guard(ctx, p, "preflight", func() (assetio.EntityReference, error) {
		return p.ManagerInterface.PreflightEntity(ctx, s, ref, hint, access, actx)
	})
}

func (p *Plugin) RegisterEntity(ctx context.Context, s *assetio.HostSession, ref assetio.EntityReference, data *assetio.TraitsData, access assetio.Access, actx *assetio.Context) (assetio.EntityReference, error) {
	return guard(ctx, p, "register", func() (assetio.EntityReference, error) {
		return p.ManagerInterface.RegisterEntity(ctx, s, ref, data, access, actx)
	})
}

func (p *Plugin) DefaultEntityReference(ctx context.Context, s *assetio.HostSession, traitSet assetio.TraitSet, access assetio.Access, actx *assetio.Context) (*assetio.EntityReference, error) {
	return guard(ctx, p, "defaultEntityReference", func() (*assetio.EntityReference, error) {
		return p.ManagerInterface.DefaultEntityReference(ctx, s, traitSet, access, actx)
	})
}
