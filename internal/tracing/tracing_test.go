package tracing_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/promptum/promptum/internal/config"
	"github.com/promptum/promptum/internal/metrics"
	"github.com/promptum/promptum/internal/provider"
	"github.com/promptum/promptum/internal/tracing"
)

// newRecordingTracer installs an in-memory exporter so tests can inspect
// finished spans without an OTLP endpoint.
func newRecordingTracer(t *testing.T) (*tracetest.InMemoryExporter, trace.Tracer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter, tp.Tracer("test")
}

func spanAttr(s tracetest.SpanStub, key string) (string, bool) {
	for _, attr := range s.Attributes {
		if string(attr.Key) == key {
			return attr.Value.Emit(), true
		}
	}
	return "", false
}

func TestInitDisabledByDefault(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	p, err := tracing.Init(context.Background(), config.TracingConfig{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	if p.ShouldPropagate() {
		t.Error("ShouldPropagate = true, want false when tracing disabled")
	}

	// The no-op tracer must still hand out usable spans.
	_, span := p.Tracer().Start(context.Background(), "noop")
	span.End()
}

func TestInitProtocols(t *testing.T) {
	// Exporter construction is lazy, so no collector needs to listen on
	// these endpoints.
	tests := []struct {
		name string
		cfg  config.TracingConfig
	}{
		{"grpc", config.TracingConfig{Endpoint: "localhost:4317", Protocol: "grpc", ServiceName: "bench-test", SampleRate: 1.0, Insecure: true}},
		{"grpc by default", config.TracingConfig{Endpoint: "localhost:4317", SampleRate: 1.0, Insecure: true}},
		{"http", config.TracingConfig{Endpoint: "localhost:4318", Protocol: "http", SampleRate: 0.5, Insecure: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tracing.Init(context.Background(), tt.cfg)
			if err != nil {
				t.Fatalf("Init: %v", err)
			}
			t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

			if !p.ShouldPropagate() {
				t.Error("ShouldPropagate = false, want true when tracing enabled")
			}
		})
	}
}

func TestInitRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TracingConfig
	}{
		{"unsupported protocol", config.TracingConfig{Endpoint: "localhost:4317", Protocol: "thrift", Insecure: true}},
		{"negative sample rate", config.TracingConfig{Endpoint: "localhost:4317", SampleRate: -0.5, Insecure: true}},
		{"sample rate above one", config.TracingConfig{Endpoint: "localhost:4317", SampleRate: 1.5, Insecure: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tracing.Init(context.Background(), tt.cfg); err == nil {
				t.Fatal("Init: want error")
			}
		})
	}
}

func TestShouldPropagateOverride(t *testing.T) {
	off := false
	p, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint:   "localhost:4317",
		SampleRate: 1.0,
		Insecure:   true,
		Propagate:  &off,
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	if p.ShouldPropagate() {
		t.Error("ShouldPropagate = true, want false when explicitly disabled")
	}
}

func TestNilProviderIsNoop(t *testing.T) {
	var p *tracing.Provider
	if p.ShouldPropagate() {
		t.Error("nil provider ShouldPropagate = true")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("nil provider Shutdown: %v", err)
	}
	_, span := p.Tracer().Start(context.Background(), "noop")
	span.End()
}

func TestStartRunSpan(t *testing.T) {
	exporter, tracer := newRecordingTracer(t)

	_, span := tracing.StartRunSpan(context.Background(), tracer, "smoke", 12)
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "bench.run" {
		t.Errorf("span name = %q, want bench.run", spans[0].Name)
	}
	if val, ok := spanAttr(spans[0], "promptum.suite"); !ok || val != "smoke" {
		t.Errorf("promptum.suite = %q (present=%v), want smoke", val, ok)
	}
	if val, ok := spanAttr(spans[0], "promptum.cases"); !ok || val != "12" {
		t.Errorf("promptum.cases = %q (present=%v), want 12", val, ok)
	}
}

func TestStartGenerateSpan(t *testing.T) {
	exporter, tracer := newRecordingTracer(t)

	tests := []struct {
		name     string
		model    string
		wantName string
	}{
		{"with model", "openai/gpt-4o-mini", "generate openai/gpt-4o-mini"},
		{"without model", "", "generate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			_, span := tracing.StartGenerateSpan(context.Background(), tracer, tt.model)
			span.End()

			spans := exporter.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			if spans[0].Name != tt.wantName {
				t.Errorf("span name = %q, want %q", spans[0].Name, tt.wantName)
			}
			if spans[0].SpanKind != trace.SpanKindClient {
				t.Errorf("span kind = %v, want client", spans[0].SpanKind)
			}
			if tt.model != "" {
				if val, ok := spanAttr(spans[0], "gen_ai.request.model"); !ok || val != tt.model {
					t.Errorf("gen_ai.request.model = %q (present=%v), want %q", val, ok, tt.model)
				}
			}
		})
	}
}

func TestEndSpanStatus(t *testing.T) {
	exporter, tracer := newRecordingTracer(t)

	tests := []struct {
		name     string
		err      error
		wantCode codes.Code
	}{
		{"ok", nil, codes.Ok},
		{"error", context.DeadlineExceeded, codes.Error},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			_, span := tracer.Start(context.Background(), "op")
			tracing.EndSpan(span, tt.err)

			spans := exporter.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			if spans[0].Status.Code != tt.wantCode {
				t.Errorf("status = %v, want %v", spans[0].Status.Code, tt.wantCode)
			}
		})
	}
}

type fakeGenerator struct {
	text string
	m    *metrics.Metrics
	err  error
}

func (f *fakeGenerator) Generate(ctx context.Context, req provider.Request) (string, *metrics.Metrics, error) {
	return f.text, f.m, f.err
}

func TestWrapProviderRecordsSpan(t *testing.T) {
	exporter, tracer := newRecordingTracer(t)

	tokens := 42
	inner := &fakeGenerator{
		text: "hello",
		m:    &metrics.Metrics{PromptTokens: &tokens},
	}
	wrapped := tracing.WrapProvider(inner, tracer)

	text, m, err := wrapped.Generate(context.Background(), provider.Request{
		Prompt: "hi",
		Model:  "openai/gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "hello" {
		t.Errorf("Generate text = %q, want hello", text)
	}
	if m != inner.m {
		t.Errorf("Generate changed the metrics pointer")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "generate openai/gpt-4o-mini" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if spans[0].Status.Code != codes.Ok {
		t.Errorf("status = %v, want Ok", spans[0].Status.Code)
	}
	if val, ok := spanAttr(spans[0], "gen_ai.usage.input_tokens"); !ok || val != "42" {
		t.Errorf("gen_ai.usage.input_tokens = %q (present=%v), want 42", val, ok)
	}
}

func TestWrapProviderRecordsError(t *testing.T) {
	exporter, tracer := newRecordingTracer(t)

	inner := &fakeGenerator{err: errors.New("boom")}
	wrapped := tracing.WrapProvider(inner, tracer)

	if _, _, err := wrapped.Generate(context.Background(), provider.Request{Model: "m"}); err == nil {
		t.Fatal("Generate: want error")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status.Code)
	}
}

func TestInjectHTTPHeaders(t *testing.T) {
	_, tracer := newRecordingTracer(t)

	ctx, span := tracer.Start(context.Background(), "inject")
	defer span.End()

	headers := make(http.Header)
	tracing.InjectHTTPHeaders(ctx, headers)

	got := headers.Get("Traceparent")
	if got == "" {
		t.Fatal("traceparent header not injected")
	}
	// version-traceid-spanid-flags is 55 chars.
	if len(got) < 55 {
		t.Errorf("traceparent header too short: %q", got)
	}
}

func TestInjectHTTPHeadersWithoutSpan(t *testing.T) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
	))
	headers := make(http.Header)
	tracing.InjectHTTPHeaders(context.Background(), headers)

	if got := headers.Get("Traceparent"); got != "" {
		t.Errorf("traceparent = %q, want empty without an active span", got)
	}
}
