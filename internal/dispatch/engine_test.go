package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/lychee-technology/assetio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capSet map[assetio.Capability]bool

func (c capSet) HasCapability(capability assetio.Capability) bool { return c[capability] }

var allCaps = capSet{
	assetio.CapabilityResolution:       true,
	assetio.CapabilityExistenceQueries: true,
}

// scriptedBackend answers element i from results[i], recording invocations.
type scriptedBackend struct {
	mu      sync.Mutex
	results []scripted
	calls   []int
}

type scripted struct {
	value string
	err   error
}

func (b *scriptedBackend) invoke(_ context.Context, i int) (string, error) {
	b.mu.Lock()
	b.calls = append(b.calls, i)
	b.mu.Unlock()
	r := b.results[i]
	return r.value, r.err
}

func (b *scriptedBackend) call() Call[string] {
	return Call[string]{
		Operation:  OpResolve,
		Capability: assetio.CapabilityResolution,
		Size:       len(b.results),
		Invoke:     b.invoke,
	}
}

func notFound(msg string) error {
	return assetio.NewBatchElementError(assetio.KindEntityNotFound, msg)
}

func abcBackend() *scriptedBackend {
	return &scriptedBackend{results: []scripted{
		{value: "dataA"},
		{err: notFound("B is missing")},
		{value: "dataC"},
	}}
}

func TestCollect_MixedBatchKeepsOrder(t *testing.T) {
	backend := abcBackend()
	e := NewEngine(allCaps)

	got, err := Collect(context.Background(), e, backend.call())
	require.NoError(t, err)

	want := []assetio.Outcome[string]{
		assetio.Success("dataA"),
		assetio.Failure[string](&assetio.BatchElementError{Index: 1, Kind: assetio.KindEntityNotFound, Message: "B is missing"}),
		assetio.Success("dataC"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{0, 1, 2}, backend.calls)
}

func TestThrow_ReturnsLowestIndexFailureAfterFullEvaluation(t *testing.T) {
	backend := &scriptedBackend{results: []scripted{
		{value: "a"},
		{err: assetio.NewBatchElementError(assetio.KindEntityAccessError, "first")},
		{value: "c"},
		{err: assetio.NewBatchElementError(assetio.KindEntityNotFound, "second")},
	}}
	e := NewEngine(allCaps)

	values, err := Throw(context.Background(), e, backend.call())
	assert.Nil(t, values)

	bee, ok := assetio.AsBatchElementError(err)
	require.True(t, ok, "expected a batch element error, got %v", err)
	assert.Equal(t, 1, bee.Index)
	assert.Equal(t, assetio.KindEntityAccessError, bee.Kind)
	assert.Equal(t, []int{0, 1, 2, 3}, backend.calls, "every element is evaluated before throwing")
}

func TestThrow_AllSuccessful(t *testing.T) {
	backend := &scriptedBackend{results: []scripted{{value: "x"}, {value: "y"}}}

	values, err := Throw(context.Background(), NewEngine(allCaps), backend.call())
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, values)
}

func TestStream_InvokesEachIndexOnceInOrder(t *testing.T) {
	backend := abcBackend()
	var order []int
	var successes []string
	var failures []*assetio.BatchElementError

	err := Stream(context.Background(), NewEngine(allCaps), backend.call(),
		func(i int, v string) {
			order = append(order, i)
			successes = append(successes, v)
		},
		func(i int, bee *assetio.BatchElementError) {
			order = append(order, i)
			failures = append(failures, bee)
		})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Equal(t, []string{"dataA", "dataC"}, successes)
	require.Len(t, failures, 1)
	assert.Equal(t, 1, failures[0].Index)
}

func TestStream_RequiresBothCallbacks(t *testing.T) {
	backend := abcBackend()
	err := Stream(context.Background(), NewEngine(allCaps), backend.call(), func(int, string) {}, nil)
	assert.True(t, assetio.IsErrorType(err, assetio.ErrorTypeInputValidation))
	assert.Empty(t, backend.calls)
}

func TestEmptyBatch(t *testing.T) {
	backend := &scriptedBackend{}
	e := NewEngine(allCaps)
	ctx := context.Background()

	outcomes, err := Collect(ctx, e, backend.call())
	require.NoError(t, err)
	assert.NotNil(t, outcomes)
	assert.Empty(t, outcomes)

	values, err := Throw(ctx, e, backend.call())
	require.NoError(t, err)
	assert.NotNil(t, values)
	assert.Empty(t, values)

	invoked := 0
	err = Stream(ctx, e, backend.call(),
		func(int, string) { invoked++ },
		func(int, *assetio.BatchElementError) { invoked++ })
	require.NoError(t, err)
	assert.Zero(t, invoked)
}

func TestDuplicateElementsAreIndependent(t *testing.T) {
	calls := 0
	call := Call[bool]{
		Operation:  OpEntityExists,
		Capability: assetio.CapabilityExistenceQueries,
		Size:       2,
		Invoke: func(context.Context, int) (bool, error) {
			calls++
			return true, nil
		},
	}

	got, err := Collect(context.Background(), NewEngine(allCaps), call)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, calls)
}

func TestValidationRunsBeforeAnyInvocation(t *testing.T) {
	backend := abcBackend()
	call := backend.call()
	call.Validate = func() error {
		return CheckTraitsData(OpRegister, []*assetio.TraitsData{assetio.NewTraitsData(nil), nil})
	}

	for _, mode := range []Mode{ThrowOnFirstError, CollectAsResults, StreamViaCallbacks} {
		t.Run(mode.String(), func(t *testing.T) {
			var err error
			switch mode {
			case ThrowOnFirstError:
				_, err = Throw(context.Background(), NewEngine(allCaps), call)
			case CollectAsResults:
				_, err = Collect(context.Background(), NewEngine(allCaps), call)
			case StreamViaCallbacks:
				err = Stream(context.Background(), NewEngine(allCaps), call,
					func(int, string) {}, func(int, *assetio.BatchElementError) {})
			}
			assert.True(t, assetio.IsErrorType(err, assetio.ErrorTypeInputValidation), "got %v", err)
		})
	}
	assert.Empty(t, backend.calls)
}

func TestMissingCapabilityFailsFast(t *testing.T) {
	backend := abcBackend()
	_, err := Collect(context.Background(), NewEngine(capSet{}), backend.call())

	var aerr *assetio.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, assetio.ErrorTypeUnsupportedCapability, aerr.Type)
	assert.Equal(t, OpResolve, aerr.Operation)
	assert.Empty(t, backend.calls)
}

func TestMaxBatchSize(t *testing.T) {
	backend := abcBackend()
	_, err := Collect(context.Background(), NewEngine(allCaps, WithMaxBatchSize(2)), backend.call())

	var aerr *assetio.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, assetio.ErrCodeBatchSizeExceeded, aerr.Code)
	assert.Empty(t, backend.calls)
}

func TestBackendFailureAbortsCall(t *testing.T) {
	boom := errors.New("connection reset")
	backend := &scriptedBackend{results: []scripted{
		{value: "a"},
		{err: boom},
		{value: "c"},
	}}

	var streamed []int
	err := Stream(context.Background(), NewEngine(allCaps), backend.call(),
		func(i int, _ string) { streamed = append(streamed, i) },
		func(i int, _ *assetio.BatchElementError) { streamed = append(streamed, i) })

	assert.True(t, assetio.IsErrorType(err, assetio.ErrorTypeBackend))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{0}, streamed, "callbacks made before the abort stand")
	assert.Equal(t, []int{0, 1}, backend.calls)
}

func TestIndexIsStampedOnCopy(t *testing.T) {
	shared := assetio.NewBatchElementError(assetio.KindEntityNotFound, "missing")
	backend := &scriptedBackend{results: []scripted{{err: shared}, {err: shared}}}

	got, err := Collect(context.Background(), NewEngine(allCaps), backend.call())
	require.NoError(t, err)
	assert.Equal(t, 0, got[0].Err.Index)
	assert.Equal(t, 1, got[1].Err.Index)
	assert.Equal(t, 0, shared.Index, "backend error value is not mutated")
}

func TestOneForms(t *testing.T) {
	ok := &scriptedBackend{results: []scripted{{value: "only"}}}
	v, err := One(context.Background(), NewEngine(allCaps), ok.call())
	require.NoError(t, err)
	assert.Equal(t, "only", v)

	failing := &scriptedBackend{results: []scripted{{err: notFound("gone")}}}
	_, err = One(context.Background(), NewEngine(allCaps), failing.call())
	bee, isBEE := assetio.AsBatchElementError(err)
	require.True(t, isBEE)
	assert.Equal(t, 0, bee.Index)

	outcome, err := OneResult(context.Background(), NewEngine(allCaps), failing.call())
	require.NoError(t, err)
	assert.False(t, outcome.OK())
	assert.Equal(t, assetio.KindEntityNotFound, outcome.Err.Kind)
}

func TestIdempotentBackendGivesIdenticalOutcomes(t *testing.T) {
	backend := abcBackend()
	e := NewEngine(allCaps)

	first, err := Collect(context.Background(), e, backend.call())
	require.NoError(t, err)
	second, err := Collect(context.Background(), e, backend.call())
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated dispatch differs (-first +second):\n%s", diff)
	}
}

type recordingObserver struct {
	rejected  []string
	started   []string
	failed    int
	succeeded int
	abortErr  error
}

func (r *recordingObserver) Rejected(op string, _ Mode, _ error) { r.rejected = append(r.rejected, op) }

func (r *recordingObserver) Started(ctx context.Context, op string, _ Mode, _ int) (context.Context, Observation) {
	r.started = append(r.started, op)
	return ctx, r
}

func (r *recordingObserver) ElementFailed(*assetio.BatchElementError) { r.failed++ }

func (r *recordingObserver) Finished(succeeded, _ int, err error) {
	r.succeeded = succeeded
	r.abortErr = err
}

func TestObserverSeesDispatch(t *testing.T) {
	obs := &recordingObserver{}
	e := NewEngine(allCaps, WithObserver(Observers{obs, NopObserver{}}))

	_, err := Collect(context.Background(), e, abcBackend().call())
	require.NoError(t, err)
	assert.Equal(t, []string{OpResolve}, obs.started)
	assert.Equal(t, 1, obs.failed)
	assert.Equal(t, 2, obs.succeeded)
	assert.NoError(t, obs.abortErr)

	_, err = Collect(context.Background(), NewEngine(capSet{}, WithObserver(obs)), abcBackend().call())
	require.Error(t, err)
	assert.Equal(t, []string{OpResolve}, obs.rejected)
}

func TestTypedNilElementErrorIsSuccess(t *testing.T) {
	var none *assetio.BatchElementError
	backend := &scriptedBackend{results: []scripted{
		{value: "value", err: none},
		{err: notFound("missing")},
	}}

	got, err := Collect(context.Background(), NewEngine(allCaps), backend.call())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].OK())
	assert.Equal(t, "value", got[0].Value)
	assert.Equal(t, assetio.KindEntityNotFound, got[1].Err.Kind)
}

type closeRecorder struct {
	name   string
	closed *[]string
}

func (c *closeRecorder) Close() error {
	*c.closed = append(*c.closed, c.name)
	return nil
}

func closingCall(closed *[]string, errs ...error) Call[*closeRecorder] {
	return Call[*closeRecorder]{
		Operation:  OpGetWithRelationship,
		Capability: assetio.CapabilityResolution,
		Size:       len(errs),
		Invoke: func(_ context.Context, i int) (*closeRecorder, error) {
			if errs[i] != nil {
				return nil, errs[i]
			}
			return &closeRecorder{name: string(rune('a' + i)), closed: closed}, nil
		},
	}
}

func TestThrowClosesDiscardedValues(t *testing.T) {
	var closed []string
	_, err := Throw(context.Background(), NewEngine(allCaps),
		closingCall(&closed, nil, notFound("missing"), nil))

	_, ok := assetio.AsBatchElementError(err)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "c"}, closed)
}

func TestAbortClosesDeliveredValues(t *testing.T) {
	var closed []string
	_, err := Collect(context.Background(), NewEngine(allCaps),
		closingCall(&closed, nil, errors.New("connection reset"), nil))

	assert.True(t, assetio.IsErrorType(err, assetio.ErrorTypeBackend))
	assert.Equal(t, []string{"a"}, closed)
}

func TestThrowKeepsValuesOpenOnSuccess(t *testing.T) {
	var closed []string
	values, err := Throw(context.Background(), NewEngine(allCaps), closingCall(&closed, nil, nil))
	require.NoError(t, err)
	assert.Len(t, values, 2)
	assert.Empty(t, closed)
}
