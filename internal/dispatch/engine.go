// Package dispatch runs one manager operation over a batch of elements and
// delivers the per-element outcomes according to the caller's Mode.
package dispatch

import (
	"context"
	"io"

	"github.com/lychee-technology/assetio"
	"go.uber.org/zap"
)

// CapabilityChecker answers whether the backend advertises a capability.
type CapabilityChecker interface {
	HasCapability(capability assetio.Capability) bool
}

// Call binds one operation to the engine. Invoke is called once per element,
// in index order. It returns a *assetio.BatchElementError to fail only that
// element; any other error aborts the whole call.
type Call[T any] struct {
	Operation  string
	Capability assetio.Capability
	Size       int
	// Validate runs before any element is invoked. Optional.
	Validate func() error
	Invoke   func(ctx context.Context, index int) (T, error)
}

// Engine holds what is shared by every dispatch: the capability source,
// limits and observers. It keeps no per-call state and takes no locks, so
// one Engine may serve concurrent calls.
type Engine struct {
	caps         CapabilityChecker
	gate         func(operation string) error
	maxBatchSize int
	observer     Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxBatchSize rejects batches larger than n. Zero disables the limit.
func WithMaxBatchSize(n int) Option {
	return func(e *Engine) { e.maxBatchSize = n }
}

// WithObserver installs metrics or tracing hooks.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithGate installs a check that runs before anything else, such as
// rejecting calls to a manager that has not been initialized.
func WithGate(gate func(operation string) error) Option {
	return func(e *Engine) { e.gate = gate }
}

// NewEngine creates an Engine consulting caps once per call
func NewEngine(caps CapabilityChecker, opts ...Option) *Engine {
	e := &Engine{caps: caps, observer: NopObserver{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) log() *zap.SugaredLogger {
	return zap.S()
}

// prepare rejects a call that cannot proceed at all. Nothing is invoked on
// the backend when it fails.
func (e *Engine) prepare(operation string, capability assetio.Capability, size int, validate func() error) error {
	if e.gate != nil {
		if err := e.gate(operation); err != nil {
			return err
		}
	}
	if e.caps != nil && !e.caps.HasCapability(capability) {
		return assetio.NewUnsupportedCapabilityError(capability, operation)
	}
	if e.maxBatchSize > 0 && size > e.maxBatchSize {
		return assetio.NewBatchSizeExceededError(size, e.maxBatchSize).WithOperation(operation)
	}
	if validate != nil {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

// execute is the single element loop shared by every mode. emit receives each
// outcome as soon as it is known, in ascending index order.
func execute[T any](ctx context.Context, e *Engine, mode Mode, call Call[T], emit func(index int, outcome assetio.Outcome[T])) error {
	if err := e.prepare(call.Operation, call.Capability, call.Size, call.Validate); err != nil {
		e.observer.Rejected(call.Operation, mode, err)
		e.log().Debugw("batch rejected", "operation", call.Operation, "mode", mode.String(), "size", call.Size, "error", err)
		return err
	}

	ctx, obs := e.observer.Started(ctx, call.Operation, mode, call.Size)
	e.log().Debugw("dispatching batch", "operation", call.Operation, "mode", mode.String(), "size", call.Size)

	failed := 0
	for i := 0; i < call.Size; i++ {
		value, err := call.Invoke(ctx, i)
		if err == nil {
			emit(i, assetio.Success(value))
			continue
		}

		bee, ok := assetio.AsBatchElementError(err)
		if !ok {
			abort := assetio.NewBackendError(call.Operation, err).WithDetail("index", i)
			e.log().Warnw("batch aborted by backend", "operation", call.Operation, "index", i, "error", err)
			obs.Finished(i-failed, failed, abort)
			return abort
		}
		if bee == nil {
			// A typed nil *BatchElementError carries no failure.
			emit(i, assetio.Success(value))
			continue
		}

		// The backend may reuse error values, so the index is stamped on a copy.
		stamped := *bee
		stamped.Index = i
		failed++
		obs.ElementFailed(&stamped)
		e.log().Debugw("batch element failed", "operation", call.Operation, "index", i, "kind", stamped.Kind)
		emit(i, assetio.Failure[T](&stamped))
	}

	obs.Finished(call.Size-failed, failed, nil)
	return nil
}

// Collect computes every element and returns the index-aligned outcomes.
// Element failures never produce an error return.
func Collect[T any](ctx context.Context, e *Engine, call Call[T]) ([]assetio.Outcome[T], error) {
	return collect(ctx, e, CollectAsResults, call)
}

func collect[T any](ctx context.Context, e *Engine, mode Mode, call Call[T]) ([]assetio.Outcome[T], error) {
	outcomes := make([]assetio.Outcome[T], 0, max(call.Size, 0))
	err := execute(ctx, e, mode, call, func(_ int, o assetio.Outcome[T]) {
		outcomes = append(outcomes, o)
	})
	if err != nil {
		closeOutcomes(outcomes)
		return nil, err
	}
	return outcomes, nil
}

// closeOutcomes releases values the caller will never see, such as pagers
// returned before a later element aborted the call.
func closeOutcomes[T any](outcomes []assetio.Outcome[T]) {
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		if c, ok := any(o.Value).(io.Closer); ok && c != nil {
			if err := c.Close(); err != nil {
				zap.S().Debugw("failed to close discarded value", "error", err)
			}
		}
	}
}

// Throw computes every element, then returns either all values or the
// lowest-index element error. The whole batch is evaluated before the first
// failure is surfaced, so backend cost is the same in every mode.
func Throw[T any](ctx context.Context, e *Engine, call Call[T]) ([]T, error) {
	outcomes, err := collect(ctx, e, ThrowOnFirstError, call)
	if err != nil {
		return nil, err
	}
	values := make([]T, len(outcomes))
	for i, o := range outcomes {
		if o.Err != nil {
			closeOutcomes(outcomes)
			return nil, o.Err
		}
		values[i] = o.Value
	}
	return values, nil
}

// Stream invokes onSuccess or onError exactly once per element as each
// outcome becomes available. If the backend aborts the call, callbacks
// already made stand and the abort is returned.
func Stream[T any](ctx context.Context, e *Engine, call Call[T], onSuccess assetio.SuccessCallback[T], onError assetio.BatchElementErrorCallback) error {
	if onSuccess == nil || onError == nil {
		return assetio.NewInputValidationError(assetio.ErrCodeInvalidInput,
			"both success and error callbacks are required").WithOperation(call.Operation)
	}
	return execute(ctx, e, StreamViaCallbacks, call, func(i int, o assetio.Outcome[T]) {
		if o.Err != nil {
			onError(i, o.Err)
			return
		}
		onSuccess(i, o.Value)
	})
}

// One is ThrowOnFirstError for a single element.
func One[T any](ctx context.Context, e *Engine, call Call[T]) (T, error) {
	var zero T
	values, err := Throw(ctx, e, single(call))
	if err != nil {
		return zero, err
	}
	return values[0], nil
}

// OneResult is CollectAsResults for a single element, returning the Outcome
// directly rather than a one-element slice.
func OneResult[T any](ctx context.Context, e *Engine, call Call[T]) (assetio.Outcome[T], error) {
	outcomes, err := Collect(ctx, e, single(call))
	if err != nil {
		return assetio.Outcome[T]{}, err
	}
	return outcomes[0], nil
}

func single[T any](call Call[T]) Call[T] {
	call.Size = 1
	return call
}
