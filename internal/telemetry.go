package internal

import (
	"context"

	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/internal/dispatch"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies spans emitted by the dispatch layer.
const tracerName = "github.com/lychee-technology/assetio"

// DispatchTracer opens one span per dispatched batch, named assetio.<operation>.
// It uses the global tracer provider, which is a no-op unless
// telemetry.Setup installed an exporter.
type DispatchTracer struct {
	tracer trace.Tracer
}

// NewDispatchTracer creates a tracer observer. A nil provider means the
// global one.
func NewDispatchTracer(provider trace.TracerProvider) *DispatchTracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &DispatchTracer{tracer: provider.Tracer(tracerName)}
}

func spanName(operation string) string {
	return "assetio." + operation
}

func (t *DispatchTracer) Rejected(operation string, mode dispatch.Mode, err error) {
	_, span := t.tracer.Start(context.Background(), spanName(operation),
		trace.WithAttributes(
			attribute.String("assetio.operation", operation),
			attribute.String("assetio.mode", mode.String()),
		))
	span.RecordError(err)
	span.SetStatus(codes.Error, "rejected")
	span.End()
}

func (t *DispatchTracer) Started(ctx context.Context, operation string, mode dispatch.Mode, size int) (context.Context, dispatch.Observation) {
	ctx, span := t.tracer.Start(ctx, spanName(operation),
		trace.WithAttributes(
			attribute.String("assetio.operation", operation),
			attribute.String("assetio.mode", mode.String()),
			attribute.Int("assetio.batch_size", size),
		))
	return ctx, &spanObservation{span: span}
}

type spanObservation struct {
	span trace.Span
}

func (o *spanObservation) ElementFailed(err *assetio.BatchElementError) {
	o.span.AddEvent("element_failed", trace.WithAttributes(
		attribute.Int("assetio.index", err.Index),
		attribute.String("assetio.kind", string(err.Kind)),
	))
}

func (o *spanObservation) Finished(succeeded, failed int, err error) {
	o.span.SetAttributes(
		attribute.Int("assetio.succeeded", succeeded),
		attribute.Int("assetio.failed", failed),
	)
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, "aborted")
	}
	o.span.End()
}
