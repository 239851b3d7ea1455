package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"repokit/internal/config"
	"repokit/internal/domain/catalog"
	"repokit/internal/infrastructure/observability"
	"repokit/internal/infrastructure/persistence/memory"
	"repokit/internal/interfaces/http/handlers"
	"repokit/internal/interfaces/http/response"
	"repokit/internal/query"
	"repokit/internal/repository"
)

type testAPI struct {
	handler http.Handler
	metrics *observability.Collector
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	categories := repository.New[*catalog.Category](memory.NewStore[*catalog.Category]())
	lookup := func(ctx context.Context, ids []int64) ([]*catalog.Category, error) {
		return categories.GetSlice(ctx, catalog.CategoryIDIn(ids...), query.Options[*catalog.Category]{})
	}
	products := repository.New[*catalog.Product](memory.NewStore(
		memory.WithRelation(catalog.RelationCategory, catalog.CategoryRelation(lookup)),
	))

	cfg := config.Defaults(config.Production)
	collector := observability.NewCollector("test")
	v := validator.New()
	router := NewRouter(
		handlers.NewProductHandler(products, v, zap.NewNop()),
		handlers.NewCategoryHandler(categories, v, zap.NewNop()),
		collector,
		cfg,
		zap.NewNop(),
	)
	return &testAPI{handler: router.Setup(), metrics: collector}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seedCatalog creates Tools (1) and Garden (2) and five products:
// 1 Hammer 15 Tools, 2 Wrench 9.5 Tools, 3 Saw 25 Tools, 4 Rake 12 Garden, 5 Hammer 30 Garden.
func seedCatalog(t *testing.T, a *testAPI) {
	t.Helper()
	for _, name := range []string{"Tools", "Garden"} {
		rec := a.do(t, http.MethodPost, "/api/v1/categories", `{"name":"`+name+`"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := a.do(t, http.MethodPost, "/api/v1/products/batch", `{"products":[
		{"name":"Hammer","sku":"HAM1","price":15,"categoryId":1},
		{"name":"Wrench","sku":"WRE1","price":9.5,"categoryId":1},
		{"name":"Saw","sku":"SAW1","price":25,"categoryId":1},
		{"name":"Rake","sku":"RAK1","price":12,"categoryId":2},
		{"name":"Hammer","sku":"HAM2","price":30,"categoryId":2}
	]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

type page struct {
	Items   []catalog.Product `json:"items"`
	Total   int               `json:"total"`
	Skip    int               `json:"skip"`
	Take    int               `json:"take"`
	HasMore bool              `json:"hasMore"`
}

func names(items []catalog.Product) []string {
	out := make([]string, len(items))
	for i, p := range items {
		out[i] = p.Name
	}
	return out
}

func TestProducts_ListFiltersSortsAndPages(t *testing.T) {
	api := newTestAPI(t)
	seedCatalog(t, api)

	rec := api.do(t, http.MethodGet, "/api/v1/products?category=1&sort=price&direction=desc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[page](t, rec)
	assert.Equal(t, []string{"Saw", "Hammer", "Wrench"}, names(p.Items))
	assert.Equal(t, 3, p.Total)
	assert.False(t, p.HasMore)

	rec = api.do(t, http.MethodGet, "/api/v1/products?sort=price&page=2&page_size=2", "")
	p = decode[page](t, rec)
	assert.Equal(t, []string{"Hammer", "Saw"}, names(p.Items))
	assert.Equal(t, 2, p.Skip)
	assert.Equal(t, 5, p.Total)
	assert.True(t, p.HasMore)

	rec = api.do(t, http.MethodGet, "/api/v1/products?category_name=garden&sort=name", "")
	p = decode[page](t, rec)
	assert.Equal(t, []string{"Hammer", "Rake"}, names(p.Items))
	require.NotNil(t, p.Items[0].Category)
	assert.Equal(t, "Garden", p.Items[0].Category.Name)
}

func TestProducts_Reads(t *testing.T) {
	api := newTestAPI(t)
	seedCatalog(t, api)

	count := decode[map[string]int](t, api.do(t, http.MethodGet, "/api/v1/products/count?min_price=12", ""))
	assert.Equal(t, 4, count["count"])

	exists := decode[map[string]bool](t, api.do(t, http.MethodGet, "/api/v1/products/exists?name=Saw", ""))
	assert.True(t, exists["exists"])

	first := decode[handlers.ProductSummary](t, api.do(t, http.MethodGet, "/api/v1/products/first?sort=price&direction=desc", ""))
	assert.Equal(t, handlers.ProductSummary{ID: 5, Name: "Hammer", Price: 30}, first)

	distinct := decode[[]string](t, api.do(t, http.MethodGet, "/api/v1/products/names", ""))
	assert.Equal(t, []string{"Hammer", "Rake", "Saw", "Wrench"}, distinct)

	nameCount := decode[map[string]int](t, api.do(t, http.MethodGet, "/api/v1/products/names/count", ""))
	assert.Equal(t, 4, nameCount["count"])

	byCheapest := decode[[]int64](t, api.do(t, http.MethodGet, "/api/v1/products/categories", ""))
	assert.Equal(t, []int64{1, 2}, byCheapest)
	byDearest := decode[[]int64](t, api.do(t, http.MethodGet, "/api/v1/products/categories?direction=desc", ""))
	assert.Equal(t, []int64{2, 1}, byDearest)

	ids := decode[[]int64](t, api.do(t, http.MethodGet, "/api/v1/products/categories/ids?direction=desc", ""))
	assert.Equal(t, []int64{2, 1}, ids)

	groups := decode[[]handlers.CategoryGroup](t, api.do(t, http.MethodGet, "/api/v1/products/groups", ""))
	require.Len(t, groups, 2)
	assert.Equal(t, handlers.CategoryGroup{CategoryID: 1, Count: 3, MinPrice: 9.5, MaxPrice: 25, Names: []string{"Hammer", "Wrench", "Saw"}}, groups[0])
	groups = decode[[]handlers.CategoryGroup](t, api.do(t, http.MethodGet, "/api/v1/products/groups?min_size=3", ""))
	assert.Len(t, groups, 1)

	rec := api.do(t, http.MethodGet, "/api/v1/products/4?include=category", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rake := decode[catalog.Product](t, rec)
	assert.Equal(t, "Rake", rake.Name)
	require.NotNil(t, rake.Category)
	assert.Equal(t, "Garden", rake.Category.Name)
}

func TestProducts_Writes(t *testing.T) {
	api := newTestAPI(t)
	seedCatalog(t, api)

	rec := api.do(t, http.MethodPost, "/api/v1/products", `{"name":"Trowel","sku":"TRO1","price":7,"categoryId":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/api/v1/products/6", rec.Header().Get("Location"))
	created := decode[catalog.Product](t, rec)
	assert.Equal(t, uint32(1), created.Version)
	assert.False(t, created.CreatedWhen.IsZero())

	rec = api.do(t, http.MethodPatch, "/api/v1/products/6", `{"price":8.25}`)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[catalog.Product](t, rec)
	assert.Equal(t, 8.25, updated.Price)
	assert.Equal(t, uint32(2), updated.Version)
	assert.True(t, updated.UpdatedWhen.After(created.UpdatedWhen))

	discontinued := decode[map[string]int](t, api.do(t, http.MethodPost, "/api/v1/products/discontinue?category=2", ""))
	assert.Equal(t, 3, discontinued["discontinued"])
	active := decode[map[string]int](t, api.do(t, http.MethodGet, "/api/v1/products/count?active=true", ""))
	assert.Equal(t, 3, active["count"])

	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, "/api/v1/products/6", "").Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, "/api/v1/products/6", "").Code)

	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, "/api/v1/products?name=Hammer", "").Code)
	remaining := decode[map[string]int](t, api.do(t, http.MethodGet, "/api/v1/products/count", ""))
	assert.Equal(t, 3, remaining["count"])

	rec = api.do(t, http.MethodPut, "/api/v1/categories/2", `{"name":"Outdoor"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Outdoor", decode[catalog.Category](t, rec).Name)
}

func TestProducts_Errors(t *testing.T) {
	api := newTestAPI(t)
	seedCatalog(t, api)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"missing product", http.MethodGet, "/api/v1/products/99", "", http.StatusNotFound, "NOT_FOUND"},
		{"bad id", http.MethodGet, "/api/v1/products/abc", "", http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown sort", http.MethodGet, "/api/v1/products?sort=colour", "", http.StatusBadRequest, "BAD_REQUEST"},
		{"page too large", http.MethodGet, "/api/v1/products?take=1000", "", http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown relation", http.MethodGet, "/api/v1/products?include=supplier", "", http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"invalid body", http.MethodPost, "/api/v1/products", `{"name":"X","sku":"bad sku!","categoryId":1}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown field", http.MethodPost, "/api/v1/products", `{"colour":"red"}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"unfiltered delete", http.MethodDelete, "/api/v1/products", "", http.StatusBadRequest, "BAD_REQUEST"},
		{"no first match", http.MethodGet, "/api/v1/products/first?name=Nope", "", http.StatusNotFound, "NOT_FOUND"},
		{"missing update", http.MethodPatch, "/api/v1/products/99", `{"price":1}`, http.StatusNotFound, "ENTITY_NOT_FOUND"},
		{"duplicate category", http.MethodPost, "/api/v1/categories", `{"name":"Tools"}`, http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			problem := decode[response.Problem](t, rec)
			assert.Equal(t, tt.code, problem.Code)
			assert.Equal(t, tt.status, problem.Status)
		})
	}
}

func TestRouter_MetricsAndHealth(t *testing.T) {
	api := newTestAPI(t)
	seedCatalog(t, api)
	api.do(t, http.MethodGet, "/api/v1/products/99", "")

	rec := api.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","backend":"memory"}`, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `test_http_requests_total{method="GET",route="/api/v1/products/{id}",status="404"} 1`)
	assert.Contains(t, body, `test_http_requests_total{method="POST",route="/api/v1/products/batch",status="201"} 1`)
}
