package handlers

import (
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

// CategoryHandler handles /categories.
type CategoryHandler struct {
	categories *repository.Repository[*catalog.Category]
	validate   *validator.Validate
	logger     *zap.Logger
}

func NewCategoryHandler(categories *repository.Repository[*catalog.Category], validate *validator.Validate, logger *zap.Logger) *CategoryHandler {
	if categories == nil {
		panic("categories repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryHandler{
		categories: categories,
		validate:   validate,
		logger:     logger.Named("CategoryHandler"),
	}
}

func (h *CategoryHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Rename)
}

type CategoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// List handles GET /categories, ordered by name.
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	spec := specification.True[*catalog.Category]()
	if prefix := r.URL.Query().Get("prefix"); prefix != "" {
		spec = catalog.CategoryName.StartsWith(prefix)
	}
	opts := query.NewBuilder[*catalog.Category]().OrderBy(query.FieldKey(catalog.CategoryName)).Build()
	out, err := h.categories.GetSlice(r.Context(), spec, opts)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	if out == nil {
		out = []*catalog.Category{}
	}
	response.JSON(w, http.StatusOK, out)
}

// Get handles GET /categories/{id}.
func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(err.Error()).Write(w, r)
		return
	}
	c, err := h.categories.FirstOrDefault(r.Context(), catalog.CategoryID.Eq(id), query.Options[*catalog.Category]{})
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	if entity.IsAbsent(c) {
		response.NotFound("category " + strconv.FormatInt(id, 10) + " was not found").Write(w, r)
		return
	}
	response.JSON(w, http.StatusOK, c)
}

// Create handles POST /categories. Names are unique.
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	taken, err := h.categories.Any(r.Context(), catalog.CategoryName.Eq(req.Name), query.Options[*catalog.Category]{})
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	if taken {
		response.BadRequest("category " + strconv.Quote(req.Name) + " already exists").Write(w, r)
		return
	}

	c := &catalog.Category{Name: req.Name}
	if _, err := h.categories.Add(r.Context(), c); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusCreated, c)
}

// Rename handles PUT /categories/{id}.
func (h *CategoryHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(err.Error()).Write(w, r)
		return
	}
	var req CategoryRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	var renamed *catalog.Category
	err = h.categories.Update(r.Context(), catalog.CategoryID.Eq(id), func(c *catalog.Category) {
		c.Name = req.Name
		renamed = c
	}, query.Options[*catalog.Category]{})
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, renamed)
}
