// Package telemetry wires OpenTelemetry tracing around provider calls and
// tool execution, with masking of sensitive values before anything leaves
// the process.
package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config controls manager construction.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP/HTTP collector address (host:port). When empty
	// and no TracerProvider is supplied, spans are not exported.
	Endpoint string
	// TracerProvider overrides the provider built from Endpoint. Used by
	// tests to capture spans in memory.
	TracerProvider trace.TracerProvider
	Filter         FilterConfig
}

// Manager owns the tracer and the sensitive-data filter.
type Manager struct {
	tracer   trace.Tracer
	filter   *filter
	provider trace.TracerProvider
	ownsTP   bool
}

var defaultManager atomic.Pointer[Manager]

// NewManager builds a Manager from cfg.
func NewManager(cfg Config) (*Manager, error) {
	f, err := newFilter(cfg.Filter)
	if err != nil {
		return nil, err
	}

	tp := cfg.TracerProvider
	owns := false
	if tp == nil {
		if cfg.Endpoint != "" {
			exporter, err := otlptracehttp.New(context.Background(),
				otlptracehttp.WithEndpoint(cfg.Endpoint),
				otlptracehttp.WithInsecure(),
			)
			if err != nil {
				return nil, err
			}
			res := resource.NewWithAttributes(semconv.SchemaURL,
				semconv.ServiceName(cfg.ServiceName),
				semconv.ServiceVersion(cfg.ServiceVersion),
				semconv.DeploymentEnvironment(cfg.Environment),
			)
			tp = sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(exporter),
				sdktrace.WithResource(res),
			)
			owns = true
		} else {
			tp = noop.NewTracerProvider()
		}
	}

	name := cfg.ServiceName
	if name == "" {
		name = "llmcore"
	}
	return &Manager{
		tracer:   tp.Tracer(name),
		filter:   f,
		provider: tp,
		ownsTP:   owns,
	}, nil
}

// Shutdown flushes and stops the owned tracer provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.ownsTP {
		return nil
	}
	if tp, ok := m.provider.(*sdktrace.TracerProvider); ok {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}
	return nil
}

// StartSpan starts a span on the manager's tracer.
func (m *Manager) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name, opts...)
}

// MaskText applies the sensitive-data filter to text.
func (m *Manager) MaskText(text string) string {
	return m.filter.maskText(text)
}

// SanitizeAttributes masks string attribute values before they are attached
// to a span.
func (m *Manager) SanitizeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	return m.filter.sanitize(attrs)
}

// SetDefault installs mgr as the process-wide manager used by the package
// level helpers. Pass nil to reset.
func SetDefault(mgr *Manager) {
	defaultManager.Store(mgr)
}

// Default returns the process-wide manager, or nil when none is installed.
func Default() *Manager {
	return defaultManager.Load()
}

// StartSpan starts a span on the default manager, or a no-op span when no
// manager is installed.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if mgr := Default(); mgr != nil {
		return mgr.StartSpan(ctx, name, opts...)
	}
	return noop.NewTracerProvider().Tracer("llmcore").Start(ctx, name)
}

// EndSpan records err on the span and ends it.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// MaskText applies the default manager's filter, or returns text unchanged
// when no manager is installed.
func MaskText(text string) string {
	if mgr := Default(); mgr != nil {
		return mgr.MaskText(text)
	}
	return text
}

// SanitizeAttributes masks attributes through the default manager when one
// is installed.
func SanitizeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	if mgr := Default(); mgr != nil {
		return mgr.SanitizeAttributes(attrs...)
	}
	return attrs
}
