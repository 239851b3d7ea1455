// Package handlers serves the catalog over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"repokit/internal/domain/catalog"
	"repokit/internal/domain/entity"
	"repokit/internal/interfaces/http/response"
	"repokit/internal/query"
	"repokit/internal/repository"
	"repokit/internal/specification"
)

// ProductHandler handles /products.
type ProductHandler struct {
	products *repository.Repository[*catalog.Product]
	validate *validator.Validate
	logger   *zap.Logger
}

func NewProductHandler(products *repository.Repository[*catalog.Product], validate *validator.Validate, logger *zap.Logger) *ProductHandler {
	if products == nil {
		panic("products repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductHandler{
		products: products,
		validate: validate,
		logger:   logger.Named("ProductHandler"),
	}
}

// Routes mounts the handler's endpoints on r.
func (h *ProductHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Delete("/", h.DeleteMatching)
	r.Post("/batch", h.CreateBatch)
	r.Post("/discontinue", h.Discontinue)
	r.Get("/count", h.Count)
	r.Get("/exists", h.Exists)
	r.Get("/first", h.First)
	r.Get("/summaries", h.Summaries)
	r.Get("/names", h.DistinctNames)
	r.Get("/names/count", h.CountNames)
	r.Get("/categories", h.CategoriesByPrice)
	r.Get("/categories/ids", h.CategoryIDs)
	r.Get("/groups", h.Groups)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// ProductSummary is the projection returned by the summary endpoints.
type ProductSummary struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func summarize(p *catalog.Product) ProductSummary {
	return ProductSummary{ID: p.ID, Name: p.Name, Price: p.Price}
}

// CategoryGroup aggregates the products of one category.
type CategoryGroup struct {
	CategoryID int64    `json:"categoryId"`
	Count      int      `json:"count"`
	MinPrice   float64  `json:"minPrice"`
	MaxPrice   float64  `json:"maxPrice"`
	Names      []string `json:"names"`
}

type CreateProductRequest struct {
	Name       string  `json:"name" validate:"required,max=200"`
	SKU        string  `json:"sku" validate:"required,alphanum,max=32"`
	Price      float64 `json:"price" validate:"gte=0"`
	CategoryID int64   `json:"categoryId" validate:"gt=0"`
}

func (req CreateProductRequest) product() *catalog.Product {
	return &catalog.Product{Name: req.Name, SKU: req.SKU, Price: req.Price, CategoryID: req.CategoryID}
}

// UpdateProductRequest changes only the fields that are present.
type UpdateProductRequest struct {
	Name         *string  `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Price        *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
	Discontinued *bool    `json:"discontinued,omitempty"`
}

// List handles GET /products.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	spec, opts, ok := h.readQuery(w, r, true)
	if !ok {
		return
	}

	items, err := h.products.GetSlice(r.Context(), spec, opts)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	total, err := h.products.Count(r.Context(), spec, opts)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, response.NewPage(items, total, opts.Skip, opts.Take))
}

// Get handles GET /products/{id}.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(err.Error()).Write(w, r)
		return
	}
	opts, err := productOptions(r.URL.Query(), false)
	if err != nil {
		response.BadRequest(err.Error()).Write(w, r)
		return
	}
	p, err := h.products.FirstOrDefault(r.Context(), catalog.HasID(id), opts)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	if entity.IsAbsent(p) {
		response.NotFound("product " + strconv.FormatInt(id, 10) + " was not found").Write(w, r)
		return
	}
	response.JSON(w, http.StatusOK, p)
}

// First handles GET /products/first: the first summary in the requested order.
func (h *ProductHandler) First(w http.ResponseWriter, r *http.Request) {
	spec, opts, ok := h.readQuery(w, r, false)
	if !ok {
		return
	}
	summary, ok, err := repository.FirstProjected(r.Context(), h.products, spec, summarize, opts)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	if !ok {
		response.NotFound("no product matches " + spec.Description()).Write(w, r)
		return
	}
	response.JSON(w, http.StatusOK, summary)
}

// Count handles GET /products/count.
func (h *ProductHandler) Count(w http.ResponseWriter, r *http.Request) {
	spec, opts, ok := h.readQuery(w, r, false)
	if !ok {
		return
	}
	n, err := h.products.Count(r.Context(), spec, opts)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]int{"count": n})
}

// Exists handles GET /products/exists.
func (h *ProductHandler) Exists(w http.ResponseWriter, r *http.Request) {
	spec, opts, ok := h.readQuery(w, r, false)
	if !ok {
		return
	}
	found, err := h.products.Any(r.Context(), spec, opts)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"exists": found})
}

// Summaries handles GET /products/summaries.
func (h *ProductHandler) Summaries(w http.ResponseWriter, r *http.Request) {
	spec, opts, ok := h.readQuery(w, r, true)
	if !ok {
		return
	}
	out, err := repository.GetProjected(r.Context(), h.products, spec, summarize, opts)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, out)
}

// DistinctNames handles GET /products/names: distinct names ordered by value.
func (h *ProductHandler) DistinctNames(w http.ResponseWriter, r *http.Request) {
	spec, opts, ok := h.readQuery(w, r, true)
	if !ok {
		return
	}
	names, err := repository.GetDistinctItems(r.Context(), h.products, spec, productName, opts)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, names)
}

// CountNames handles GET /products/names/count.
func (h *ProductHandler) CountNames(w http.ResponseWriter, r *http.Request) {
	spec, opts, ok := h.readQuery(w, r, false)
	if !ok {
		return
	}
	n, err := repository.CountDistinct(r.Context(), h.products, spec, productName, opts)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]int{"count": n})
}

// CategoriesByPrice handles GET /products/categories: category ids in the order
// of their cheapest (or, with direction=desc, most expensive) product.
func (h *ProductHandler) CategoriesByPrice(w http.ResponseWriter, r *http.Request) {
	spec, opts, ok := h.readQuery(w, r, true)
	if !ok {
		return
	}
	ids, err := repository.GetDistinctGroupedItems(r.Context(), h.products, spec,
		productCategory, identity[int64], query.FieldKey(catalog.ProductPrice), opts)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, ids)
}

// CategoryIDs handles GET /products/categories/ids: distinct category ids in
// numeric order.
func (h *ProductHandler) CategoryIDs(w http.ResponseWriter, r *http.Request) {
	spec, opts, ok := h.readQuery(w, r, true)
	if !ok {
		return
	}
	ids, err := repository.GetDistinctGroupedItemsOptimized(r.Context(), h.products, spec,
		productCategory, identity[int64], func(id int64) any { return id }, opts)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, ids)
}

// Groups handles GET /products/groups: per-category aggregates, largest first by
// default, optionally limited to groups with at least min_size products.
func (h *ProductHandler) Groups(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	spec, _, err := productFilter(q)
	if err != nil {
		response.BadRequest(err.Error()).Write(w, r)
		return
	}
	if q.Get("direction") == "" {
		q.Set("direction", "desc")
	}
	opts, err := productOptions(q, true)
	if err != nil {
		response.BadRequest(err.Error()).Write(w, r)
		return
	}
	minSize, _, err := parseInt(q, "min_size", 0)
	if err != nil {
		response.BadRequest(err.Error()).Write(w, r)
		return
	}

	transform := func(groups []query.Group[int64, *catalog.Product]) []query.Group[int64, *catalog.Product] {
		kept := groups[:0]
		for _, g := range groups {
			if len(g.Items) >= minSize {
				kept = append(kept, g)
			}
		}
		return kept
	}
	out, err := repository.GetGroupedItems(r.Context(), h.products, spec, productCategory, transform, aggregate,
		func(g CategoryGroup) any { return g.Count }, opts)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, out)
}

// Create handles POST /products.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := req.product()
	id, err := h.products.Add(r.Context(), p)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	h.logger.Info("Product created", zap.Int64("id", id), zap.String("sku", p.SKU))
	w.Header().Set("Location", "/api/v1/products/"+strconv.FormatInt(id, 10))
	response.JSON(w, http.StatusCreated, p)
}

// CreateBatch handles POST /products/batch; all products are saved in one commit.
func (h *ProductHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Products []CreateProductRequest `json:"products" validate:"required,min=1,max=100,dive"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	products := make([]*catalog.Product, len(req.Products))
	for i, p := range req.Products {
		products[i] = p.product()
	}
	if err := h.products.AddRange(r.Context(), products); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusCreated, products)
}

// Update handles PATCH /products/{id}.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(err.Error()).Write(w, r)
		return
	}
	var req UpdateProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	var updated *catalog.Product
	err = h.products.Update(r.Context(), catalog.HasID(id), func(p *catalog.Product) {
		if req.Name != nil {
			p.Name = *req.Name
		}
		if req.Price != nil {
			p.Price = *req.Price
		}
		if req.Discontinued != nil {
			p.Discontinued = *req.Discontinued
		}
		updated = p
	}, query.Options[*catalog.Product]{})
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, updated)
}

// Discontinue handles POST /products/discontinue: marks every match discontinued.
func (h *ProductHandler) Discontinue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	spec, filtered, err := productFilter(q)
	if err != nil {
		response.BadRequest(err.Error()).Write(w, r)
		return
	}
	if !filtered {
		response.BadRequest("at least one filter is required").Write(w, r)
		return
	}
	opts, err := productOptions(q, false)
	if err != nil {
		response.BadRequest(err.Error()).Write(w, r)
		return
	}

	changed := 0
	err = h.products.UpdateRange(r.Context(), spec.And(catalog.Active()), func(products []*catalog.Product) {
		for _, p := range products {
			p.Discontinued = true
		}
		changed = len(products)
	}, opts)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]int{"discontinued": changed})
}

// Delete handles DELETE /products/{id}.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(err.Error()).Write(w, r)
		return
	}
	if err := h.products.Delete(r.Context(), catalog.HasID(id)); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteMatching handles DELETE /products with at least one filter.
func (h *ProductHandler) DeleteMatching(w http.ResponseWriter, r *http.Request) {
	spec, filtered, err := productFilter(r.URL.Query())
	if err != nil {
		response.BadRequest(err.Error()).Write(w, r)
		return
	}
	if !filtered {
		response.BadRequest("at least one filter is required").Write(w, r)
		return
	}
	if err := h.products.DeleteRange(r.Context(), spec); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readQuery parses the filter and options, writing a 400 on failure.
func (h *ProductHandler) readQuery(w http.ResponseWriter, r *http.Request, paged bool) (*specification.Specification[*catalog.Product], query.Options[*catalog.Product], bool) {
	q := r.URL.Query()
	spec, _, err := productFilter(q)
	if err != nil {
		response.BadRequest(err.Error()).Write(w, r)
		return nil, query.Options[*catalog.Product]{}, false
	}
	opts, err := productOptions(q, paged)
	if err != nil {
		response.BadRequest(err.Error()).Write(w, r)
		return nil, query.Options[*catalog.Product]{}, false
	}
	return spec, opts, true
}

func (h *ProductHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeAndValidate(w, r, h.validate, dst)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		response.BadRequest("invalid request body: " + err.Error()).Write(w, r)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			response.Error(w, r, zap.NewNop(), err)
			return false
		}
		response.Validation(err).Write(w, r)
		return false
	}
	return true
}

func productName(p *catalog.Product) string { return p.Name }

func productCategory(p *catalog.Product) int64 { return p.CategoryID }

func identity[T any](v T) T { return v }

func aggregate(g query.Group[int64, *catalog.Product]) CategoryGroup {
	out := CategoryGroup{CategoryID: g.Key, Count: len(g.Items), Names: make([]string, 0, len(g.Items))}
	for i, p := range g.Items {
		if i == 0 || p.Price < out.MinPrice {
			out.MinPrice = p.Price
		}
		if i == 0 || p.Price > out.MaxPrice {
			out.MaxPrice = p.Price
		}
		out.Names = append(out.Names, p.Name)
	}
	return out
}
