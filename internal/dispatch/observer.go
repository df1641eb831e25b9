package dispatch

import (
	"context"

	"github.com/lychee-technology/assetio"
)

// Observer is notified about every dispatch. Implementations record metrics
// and spans; they must not call back into the engine.
type Observer interface {
	// Rejected is called when validation or capability checks fail.
	Rejected(operation string, mode Mode, err error)
	// Started is called before the first element is invoked.
	Started(ctx context.Context, operation string, mode Mode, size int) (context.Context, Observation)
}

// Observation follows one accepted dispatch.
type Observation interface {
	ElementFailed(err *assetio.BatchElementError)
	// Finished is called once. err is non-nil when the backend aborted.
	Finished(succeeded, failed int, err error)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) Rejected(string, Mode, error) {}

func (NopObserver) Started(ctx context.Context, _ string, _ Mode, _ int) (context.Context, Observation) {
	return ctx, nopObservation{}
}

type nopObservation struct{}

func (nopObservation) ElementFailed(*assetio.BatchElementError) {}
func (nopObservation) Finished(int, int, error)                 {}

// Observers fans out to several observers in order.
type Observers []Observer

func (os Observers) Rejected(operation string, mode Mode, err error) {
	for _, o := range os {
		o.Rejected(operation, mode, err)
	}
}

func (os Observers) Started(ctx context.Context, operation string, mode Mode, size int) (context.Context, Observation) {
	observations := make(multiObservation, 0, len(os))
	for _, o := range os {
		var obs Observation
		ctx, obs = o.Started(ctx, operation, mode, size)
		observations = append(observations, obs)
	}
	return ctx, observations
}

type multiObservation []Observation

func (m multiObservation) ElementFailed(err *assetio.BatchElementError) {
	for _, o := range m {
		o.ElementFailed(err)
	}
}

func (m multiObservation) Finished(succeeded, failed int, err error) {
	for _, o := range m {
		o.Finished(succeeded, failed, err)
	}
}
