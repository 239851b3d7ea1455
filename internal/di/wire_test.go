package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repokit/internal/config"
	"repokit/internal/domain/catalog"
	"repokit/internal/query"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(body), 0o600))
	return dir
}

func TestInitializeApp_Memory(t *testing.T) {
	t.Setenv("AWS_REGION", "us-east-1")
	dir := writeConfig(t, `
store:
  backend: memory
logging:
  level: warn
`)
	app, cleanup, err := InitializeApp(context.Background(), config.NewLoader(dir, config.Production))
	require.NoError(t, err)
	t.Cleanup(cleanup)

	assert.Equal(t, "warn", app.Config.Logging.Level)
	require.NotNil(t, app.Metrics)

	rec := httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/categories", strings.NewReader(`{"name":"Tools"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products",
		strings.NewReader(`{"name":"Hammer","sku":"HAM1","price":15,"categoryId":1}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	p, err := app.Products.FirstOrDefault(context.Background(), catalog.NameIs("Hammer"),
		query.NewBuilder[*catalog.Product]().Include(catalog.RelationCategory).Build())
	require.NoError(t, err)
	require.NotNil(t, p.Category)
	assert.Equal(t, "Tools", p.Category.Name)

	rec = httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `repokit_db_operations_total`)
}

func TestInitializeApp_SQLiteMigrates(t *testing.T) {
	t.Setenv("AWS_REGION", "us-east-1")
	dir := writeConfig(t, `
store:
  backend: sqlite
  migrate: true
  sql:
    dsn: "file:`+t.Name()+`?mode=memory&cache=shared"
    max_open_conns: 1
    max_idle_conns: 1
`)
	app, cleanup, err := InitializeApp(context.Background(), config.NewLoader(dir, config.Production))
	if err != nil && strings.Contains(err.Error(), "failed to open sqlite database") {
		t.Skipf("sqlite unavailable: %v", err)
	}
	require.NoError(t, err)
	t.Cleanup(cleanup)

	ctx := context.Background()
	id, err := app.Categories.Add(ctx, &catalog.Category{Name: "Garden"})
	require.NoError(t, err)
	_, err = app.Products.Add(ctx, &catalog.Product{Name: "Rake", SKU: "RAK1", Price: 12, CategoryID: id})
	require.NoError(t, err)

	n, err := app.Products.Count(ctx, catalog.InCategory(id), query.Options[*catalog.Product]{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInitializeApp_InvalidConfig(t *testing.T) {
	dir := writeConfig(t, `
store:
  backend: postgres
`)
	_, _, err := InitializeApp(context.Background(), config.NewLoader(dir, config.Production))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database dsn is required")
}
