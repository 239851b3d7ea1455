package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"repokit/internal/domain/entity"
	"repokit/internal/infrastructure/persistence/memory"
	"repokit/internal/query"
	"repokit/internal/repository"
	"repokit/internal/specification"
)

type sprocket struct {
	entity.Base
	Size int
}

func newRecorder() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	rec := tracetest.NewSpanRecorder()
	return rec, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
}

func attr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTraceSession_SpansPerBackendCall(t *testing.T) {
	rec, tp := newRecorder()
	repo := repository.New(repository.Decorate[*sprocket](memory.NewStore[*sprocket](), Trace[*sprocket](tp.Tracer("test"))))
	ctx := context.Background()

	_, err := repo.Add(ctx, &sprocket{Size: 3})
	require.NoError(t, err)
	_, err = repo.GetSlice(ctx, specification.True[*sprocket](), query.Options[*sprocket]{Take: 5})
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "repository.SaveChanges", spans[0].Name())
	assert.Equal(t, "repository.Find", spans[1].Name())

	take, ok := attr(spans[1], "plan.take")
	require.True(t, ok)
	assert.Equal(t, int64(5), take.AsInt64())
	entityName, _ := attr(spans[1], "entity")
	assert.Equal(t, "sprocket", entityName.AsString())
}

type brokenSession struct {
	repository.Session[*sprocket]
	err error
}

func (b brokenSession) SaveChanges(context.Context) (int, error) { return 0, b.err }

func TestTraceSession_ErrorStatus(t *testing.T) {
	rec, tp := newRecorder()
	boom := errors.New("connection reset")
	s := Trace[*sprocket](tp.Tracer("test"))(brokenSession{err: boom})

	_, err := s.SaveChanges(context.Background())
	assert.ErrorIs(t, err, boom)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}
