package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/promptum/promptum/internal/metrics"
	"github.com/promptum/promptum/internal/provider"
)

// StartRunSpan opens the root span covering a whole benchmark run.
func StartRunSpan(ctx context.Context, tracer trace.Tracer, suite string, caseCount int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "bench.run")
	span.SetAttributes(
		attribute.String("promptum.suite", suite),
		attribute.Int("promptum.cases", caseCount),
	)
	return ctx, span
}

// StartGenerateSpan opens a client span for one generate call.
func StartGenerateSpan(ctx context.Context, tracer trace.Tracer, model string) (context.Context, trace.Span) {
	name := "generate"
	if model != "" {
		name = "generate " + model
	}
	ctx, span := tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	if model != "" {
		span.SetAttributes(attribute.String("gen_ai.request.model", model))
	}
	return ctx, span
}

// EndSpan closes a span, stamping extra attributes and the final status.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders stamps W3C trace context from ctx onto outgoing headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// WrapProvider returns a provider whose Generate calls each run inside a
// client span carrying the model, retry count, and reported token usage.
func WrapProvider(inner provider.Provider, tracer trace.Tracer) provider.Provider {
	return &tracedProvider{inner: inner, tracer: tracer}
}

type tracedProvider struct {
	inner  provider.Provider
	tracer trace.Tracer
}

func (t *tracedProvider) Generate(ctx context.Context, req provider.Request) (string, *metrics.Metrics, error) {
	ctx, span := StartGenerateSpan(ctx, t.tracer, req.Model)
	text, m, err := t.inner.Generate(ctx, req)

	var attrs []attribute.KeyValue
	if m != nil {
		attrs = append(attrs, attribute.Int("promptum.retries", m.Retries()))
		if m.PromptTokens != nil {
			attrs = append(attrs, attribute.Int("gen_ai.usage.input_tokens", *m.PromptTokens))
		}
		if m.CompletionTokens != nil {
			attrs = append(attrs, attribute.Int("gen_ai.usage.output_tokens", *m.CompletionTokens))
		}
	}
	EndSpan(span, err, attrs...)
	return text, m, err
}
