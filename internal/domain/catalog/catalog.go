// Package catalog is the sample domain served by the API: products grouped into
// categories.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"repokit/internal/domain/entity"
	"repokit/internal/query"
	"repokit/internal/specification"
)

// RelationCategory is the include name that loads Product.Category.
const RelationCategory = "Category"

type Category struct {
	entity.Base
	Name string `json:"name" dynamodbav:"name" validate:"required,max=100"`
}

type Product struct {
	entity.Base
	Name         string    `json:"name" dynamodbav:"name" validate:"required,max=200"`
	SKU          string    `json:"sku" dynamodbav:"sku" validate:"required,alphanum,max=32"`
	Price        float64   `json:"price" dynamodbav:"price" validate:"gte=0"`
	CategoryID   int64     `json:"categoryId" dynamodbav:"category_id" validate:"gt=0"`
	Discontinued bool      `json:"discontinued" dynamodbav:"discontinued"`
	Category     *Category `json:"category,omitempty" dynamodbav:"-"`
}

// Product fields. Names are the stored attribute and column names.
var (
	ProductID           = specification.NewField("id", func(p *Product) int64 { return p.ID })
	ProductName         = specification.NewField("name", func(p *Product) string { return p.Name })
	ProductSKU          = specification.NewField("sku", func(p *Product) string { return p.SKU })
	ProductPrice        = specification.NewField("price", func(p *Product) float64 { return p.Price })
	ProductCategoryID   = specification.NewField("category_id", func(p *Product) int64 { return p.CategoryID })
	ProductDiscontinued = specification.NewField("discontinued", func(p *Product) bool { return p.Discontinued })
	ProductCreated      = specification.NewField("created_when", func(p *Product) time.Time { return p.CreatedWhen })
)

// Category fields.
var (
	CategoryID   = specification.NewField("id", func(c *Category) int64 { return c.ID })
	CategoryName = specification.NewField("name", func(c *Category) string { return c.Name })
)

func NameIs(name string) *specification.Specification[*Product] {
	return ProductName.Eq(name)
}

func NameContains(fragment string) *specification.Specification[*Product] {
	return ProductName.Contains(fragment)
}

func InCategory(id int64) *specification.Specification[*Product] {
	return ProductCategoryID.Eq(id)
}

func PriceBetween(lo, hi float64) *specification.Specification[*Product] {
	return ProductPrice.Between(lo, hi).Named(fmt.Sprintf("price between %g and %g", lo, hi))
}

func Active() *specification.Specification[*Product] {
	return ProductDiscontinued.Eq(false).Named("active")
}

func HasID(id int64) *specification.Specification[*Product] {
	return ProductID.Eq(id)
}

// InCategoryNamed needs the Category relation loaded.
func InCategoryNamed(name string) *specification.Specification[*Product] {
	return specification.Predicate(fmt.Sprintf("category named %q", name), func(p *Product) bool {
		return p.Category != nil && strings.EqualFold(p.Category.Name, name)
	})
}

func CategoryIDIn(ids ...int64) *specification.Specification[*Category] {
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return CategoryID.In(values...)
}

// Product sort keys by request name.
var productSortKeys = map[string]query.SortKey[*Product]{
	"id":       query.FieldKey(ProductID),
	"name":     query.FieldKey(ProductName),
	"sku":      query.FieldKey(ProductSKU),
	"price":    query.FieldKey(ProductPrice),
	"category": query.FieldKey(ProductCategoryID),
	"created":  query.FieldKey(ProductCreated),
}

// ProductSortKey resolves a sort key by its public name.
func ProductSortKey(name string) (query.SortKey[*Product], bool) {
	k, ok := productSortKeys[strings.ToLower(strings.TrimSpace(name))]
	return k, ok
}

// CategoryLookup fetches categories by id.
type CategoryLookup func(ctx context.Context, ids []int64) ([]*Category, error)

// CategoryRelation loads Product.Category for a batch with a single lookup.
func CategoryRelation(lookup CategoryLookup) query.RelationLoader[*Product] {
	return func(ctx context.Context, products []*Product) error {
		seen := make(map[int64]struct{})
		ids := make([]int64, 0, len(products))
		for _, p := range products {
			if _, ok := seen[p.CategoryID]; ok || p.CategoryID == 0 {
				continue
			}
			seen[p.CategoryID] = struct{}{}
			ids = append(ids, p.CategoryID)
		}
		if len(ids) == 0 {
			return nil
		}
		categories, err := lookup(ctx, ids)
		if err != nil {
			return err
		}
		byID := make(map[int64]*Category, len(categories))
		for _, c := range categories {
			byID[c.ID] = c
		}
		for _, p := range products {
			p.Category = byID[p.CategoryID]
		}
		return nil
	}
}
