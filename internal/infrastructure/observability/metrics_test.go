package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repokit/internal/domain/entity"
	apperrors "repokit/internal/errors"
	"repokit/internal/infrastructure/persistence/memory"
	"repokit/internal/query"
	"repokit/internal/repository"
	"repokit/internal/specification"
)

type gadget struct {
	entity.Base
	Name string
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "success", Status(nil))
	assert.Equal(t, "not_found", Status(apperrors.EntityNotFound("delete", "gadget", "TRUE")))
	assert.Equal(t, "cancelled", Status(context.Canceled))
	assert.Equal(t, "error", Status(errors.New("boom")))
}

func TestMetricsSession_CountsCalls(t *testing.T) {
	c := NewCollector("test")
	repo := repository.New(repository.Decorate[*gadget](memory.NewStore[*gadget](), Metrics[*gadget](c)))
	ctx := context.Background()

	require.NoError(t, repo.AddRange(ctx, []*gadget{{Name: "a"}, {Name: "b"}}))
	_, err := repo.Count(ctx, specification.True[*gadget](), query.Options[*gadget]{})
	require.NoError(t, err)
	err = repo.Delete(ctx, specification.False[*gadget]())
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.DBOperations.WithLabelValues("save_changes", "gadget", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DBOperations.WithLabelValues("count", "gadget", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DBOperations.WithLabelValues("find", "gadget", "success")), "the delete lookup finds nothing but succeeds")
	assert.Equal(t, 2.0, testutil.ToFloat64(c.EntitiesSaved.WithLabelValues("gadget")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("test")
	c.RecordHTTPRequest(http.MethodGet, "/products", http.StatusOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_http_requests_total{method="GET",route="/products",status="200"} 1`)
}
