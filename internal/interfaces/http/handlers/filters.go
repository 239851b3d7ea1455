package handlers

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"repokit/internal/domain/catalog"
	"repokit/internal/query"
	"repokit/internal/specification"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// productFilter turns query parameters into a product specification. It reports
// whether any filter was given so bulk deletes can refuse to match everything.
func productFilter(q url.Values) (*specification.Specification[*catalog.Product], bool, error) {
	b := specification.NewBuilder[*catalog.Product]()
	filtered := false

	if v := q.Get("name"); v != "" {
		b.And(catalog.NameIs(v))
		filtered = true
	}
	if v := q.Get("q"); v != "" {
		b.And(catalog.NameContains(v))
		filtered = true
	}
	if v := q.Get("sku_prefix"); v != "" {
		b.And(catalog.ProductSKU.StartsWith(v))
		filtered = true
	}
	if v := q.Get("category"); v != "" {
		ids, err := parseIDs(v)
		if err != nil {
			return nil, false, fmt.Errorf("category: %w", err)
		}
		if len(ids) == 1 {
			b.And(catalog.InCategory(ids[0]))
		} else {
			values := make([]any, len(ids))
			for i, id := range ids {
				values[i] = id
			}
			b.And(catalog.ProductCategoryID.In(values...))
		}
		filtered = true
	}
	if v := q.Get("category_name"); v != "" {
		b.And(catalog.InCategoryNamed(v))
		filtered = true
	}

	lo, hasLo, err := parseFloat(q, "min_price")
	if err != nil {
		return nil, false, err
	}
	hi, hasHi, err := parseFloat(q, "max_price")
	if err != nil {
		return nil, false, err
	}
	switch {
	case hasLo && hasHi:
		b.And(catalog.PriceBetween(lo, hi))
	case hasLo:
		b.And(catalog.ProductPrice.Gte(lo))
	case hasHi:
		b.And(catalog.ProductPrice.Lte(hi))
	}
	filtered = filtered || hasLo || hasHi

	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return nil, false, fmt.Errorf("active: %w", err)
		}
		b.When(active, catalog.Active).When(!active, func() *specification.Specification[*catalog.Product] {
			return catalog.Active().Not()
		})
		filtered = true
	}
	return b.Build(), filtered, nil
}

// productOptions reads include, sort, direction and paging parameters. List
// endpoints get a default page size; paged is false for endpoints that must see
// every match.
func productOptions(q url.Values, paged bool) (query.Options[*catalog.Product], error) {
	b := query.NewBuilder[*catalog.Product]()

	include := splitList(q.Get("include"))
	for i, name := range include {
		if strings.EqualFold(name, catalog.RelationCategory) {
			include[i] = catalog.RelationCategory
		}
	}
	// Filtering by category name reads the relation.
	if q.Get("category_name") != "" && !contains(include, catalog.RelationCategory) {
		include = append(include, catalog.RelationCategory)
	}
	b.Include(include...)

	for _, name := range splitList(q.Get("sort")) {
		key, ok := catalog.ProductSortKey(name)
		if !ok {
			return query.Options[*catalog.Product]{}, fmt.Errorf("unknown sort key %q", name)
		}
		b.OrderBy(key)
	}
	switch strings.ToLower(q.Get("direction")) {
	case "", "asc":
	case "desc":
		b.Descending()
	default:
		return query.Options[*catalog.Product]{}, fmt.Errorf("direction must be asc or desc")
	}

	if !paged {
		return b.Build(), nil
	}
	size, _, err := parseInt(q, "page_size", defaultPageSize)
	if err != nil {
		return query.Options[*catalog.Product]{}, err
	}
	if take, ok, err := parseInt(q, "take", size); err != nil {
		return query.Options[*catalog.Product]{}, err
	} else if ok {
		size = take
	}
	if size < 1 || size > maxPageSize {
		return query.Options[*catalog.Product]{}, fmt.Errorf("page size must be between 1 and %d", maxPageSize)
	}
	if page, ok, err := parseInt(q, "page", 1); err != nil {
		return query.Options[*catalog.Product]{}, err
	} else if ok {
		b.Page(page, size)
		return b.Build(), nil
	}
	skip, _, err := parseInt(q, "skip", 0)
	if err != nil {
		return query.Options[*catalog.Product]{}, err
	}
	return b.Skip(skip).Take(size).Build(), nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func parseIDs(raw string) ([]int64, error) {
	parts := splitList(raw)
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := parseID(p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseInt(q url.Values, name string, def int) (int, bool, error) {
	v := q.Get(name)
	if v == "" {
		return def, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, true, nil
}

func parseFloat(q url.Values, name string) (float64, bool, error) {
	v := q.Get(name)
	if v == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be a number", name)
	}
	return f, true, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
