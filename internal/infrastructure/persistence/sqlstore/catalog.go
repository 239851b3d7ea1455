package sqlstore

import (
	"fmt"

	"repokit/internal/domain/catalog"
)

const (
	TableProducts   = "products"
	TableCategories = "categories"
)

func ProductMapper() Mapper[*catalog.Product] {
	return Mapper[*catalog.Product]{
		Table:   TableProducts,
		Columns: []string{"name", "sku", "price", "category_id", "discontinued"},
		Values: func(p *catalog.Product) []any {
			return []any{p.Name, p.SKU, p.Price, p.CategoryID, p.Discontinued}
		},
		Targets: func(p *catalog.Product) []any {
			return []any{&p.Name, &p.SKU, &p.Price, &p.CategoryID, &p.Discontinued}
		},
	}
}

func CategoryMapper() Mapper[*catalog.Category] {
	return Mapper[*catalog.Category]{
		Table:   TableCategories,
		Columns: []string{"name"},
		Values:  func(c *catalog.Category) []any { return []any{c.Name} },
		Targets: func(c *catalog.Category) []any { return []any{&c.Name} },
	}
}

// Schema returns the catalog DDL for d.
func Schema(d Dialect) []string {
	id, ts := "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"
	if d.Name() == "sqlite" {
		id, ts = "INTEGER PRIMARY KEY AUTOINCREMENT", "DATETIME"
	}
	base := fmt.Sprintf(`id %s,
	created_when %s NOT NULL,
	updated_when %s NOT NULL,
	version INTEGER NOT NULL`, id, ts, ts)

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s,
	name TEXT NOT NULL
)`, TableCategories, base),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s,
	name TEXT NOT NULL,
	sku TEXT NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	category_id BIGINT NOT NULL,
	discontinued BOOLEAN NOT NULL DEFAULT FALSE
)`, TableProducts, base),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_category ON %s (category_id)`, TableProducts, TableProducts),
	}
}
