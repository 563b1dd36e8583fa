package ampyobs

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// W3C trace context header names.
const (
	HeaderTraceParent = "traceparent"
	HeaderTraceState  = "tracestate"
)

// InjectTrace writes the trace of ctx into a flat key/value carrier, such as
// the metadata of a queued graph run.
func InjectTrace(ctx context.Context, headers map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
}

// ExtractTrace returns parent joined to the remote trace found in headers.
func ExtractTrace(parent context.Context, headers map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(parent, propagation.MapCarrier(headers))
}

// InjectHTTP writes the trace of ctx onto an outgoing request, so a node that
// calls another graph service keeps one trace across the hop.
func InjectHTTP(ctx context.Context, h http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
}

// ExtractHTTP is ExtractTrace for request headers.
func ExtractHTTP(parent context.Context, h http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(parent, propagation.HeaderCarrier(h))
}
