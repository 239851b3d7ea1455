package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"repokit/internal/domain/entity"
	apperrors "repokit/internal/errors"
	"repokit/internal/query"
	"repokit/internal/repository"
)

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing exports spans over OTLP/gRPC to endpoint and installs the provider
// globally.
func InitTracing(ctx context.Context, serviceName, environment, endpoint string, sampleRatio float64) (*TracerProvider, error) {
	exporter, err := otlptrace.New(ctx,
		otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &TracerProvider{provider: tp, tracer: tp.Tracer(serviceName)}, nil
}

// Tracer returns the service tracer.
func (tp *TracerProvider) Tracer() trace.Tracer { return tp.tracer }

// Shutdown flushes pending spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.provider.Shutdown(ctx)
}

// Trace returns a decorator that opens a span around every backend call.
func Trace[E entity.Entity](tracer trace.Tracer) repository.Decorator[E] {
	name := entity.TypeName[E]()
	return func(inner repository.Session[E]) repository.Session[E] {
		return &TraceSession[E]{inner: inner, tracer: tracer, entity: name}
	}
}

type TraceSession[E entity.Entity] struct {
	inner  repository.Session[E]
	tracer trace.Tracer
	entity string
}

func (s *TraceSession[E]) start(ctx context.Context, op string, plan *query.Plan[E]) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("entity", s.entity)}
	if plan != nil {
		attrs = append(attrs,
			attribute.String("plan.id", plan.ID),
			attribute.String("plan.operation", plan.Operation),
			attribute.String("plan.filter", plan.Filter.Description()),
			attribute.StringSlice("plan.include", plan.Include),
			attribute.Int("plan.skip", plan.Skip),
			attribute.Int("plan.take", plan.Take),
		)
	}
	return s.tracer.Start(ctx, "repository."+op, trace.WithAttributes(attrs...))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		// caller mistakes are not span failures
		if !apperrors.IsDomain(err) {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

func (s *TraceSession[E]) Find(ctx context.Context, plan query.Plan[E]) ([]E, error) {
	ctx, span := s.start(ctx, "Find", &plan)
	rows, err := s.inner.Find(ctx, plan)
	span.SetAttributes(attribute.Int("rows", len(rows)))
	end(span, err)
	return rows, err
}

func (s *TraceSession[E]) Count(ctx context.Context, plan query.Plan[E]) (int, error) {
	ctx, span := s.start(ctx, "Count", &plan)
	n, err := s.inner.Count(ctx, plan)
	end(span, err)
	return n, err
}

func (s *TraceSession[E]) Exists(ctx context.Context, plan query.Plan[E]) (bool, error) {
	ctx, span := s.start(ctx, "Exists", &plan)
	ok, err := s.inner.Exists(ctx, plan)
	end(span, err)
	return ok, err
}

func (s *TraceSession[E]) Add(entities ...E) { s.inner.Add(entities...) }

func (s *TraceSession[E]) Remove(entities ...E) { s.inner.Remove(entities...) }

func (s *TraceSession[E]) Modified() []E { return s.inner.Modified() }

func (s *TraceSession[E]) SaveChanges(ctx context.Context) (int, error) {
	ctx, span := s.start(ctx, "SaveChanges", nil)
	n, err := s.inner.SaveChanges(ctx)
	span.SetAttributes(attribute.Int("written", n))
	end(span, err)
	return n, err
}
