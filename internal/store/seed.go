package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"catalog-platform/seeder/internal/catalog"
)

// ErrCategoryNotFound is returned when a seed product names a category that
// is not present in the Categories table.
var ErrCategoryNotFound = errors.New("category not found")

const (
	insertCategorySQL = `INSERT INTO "Categories" ("Name", "Description") VALUES ($1, $2) RETURNING "Id"`

	categoryIDByNameSQL = `SELECT "Id" FROM "Categories" WHERE "Name" = $1 ORDER BY "Id" LIMIT 1`

	insertProductSQL = `INSERT INTO "Products" ("Name", "Description", "Price", "CategoryId", "Stock", "ImageUrl")
	VALUES ($1, $2, $3::numeric, $4, $5, $6) RETURNING "Id"`
)

// SeedCategories inserts rows only when the Categories table is empty and
// returns how many rows were inserted. A non-empty table is left untouched.
func SeedCategories(ctx context.Context, q Querier, rows []catalog.SeedCategory) (int, error) {
	n, err := CountRows(ctx, q, CategoriesTable.Name)
	if err != nil {
		return 0, err
	}
	if n != 0 {
		return 0, nil
	}

	for i, c := range rows {
		var id int64
		if err := q.QueryRow(ctx, insertCategorySQL, c.Name, nullable(c.Description)).Scan(&id); err != nil {
			return i, fmt.Errorf("inserting category %q: %w", c.Name, err)
		}
	}
	return len(rows), nil
}

// SeedProducts inserts rows only when the Products table is empty. Each
// product's CategoryId is looked up by category name, so the rows do not
// depend on the ids the categories happened to receive.
func SeedProducts(ctx context.Context, q Querier, rows []catalog.SeedProduct) (int, error) {
	n, err := CountRows(ctx, q, ProductsTable.Name)
	if err != nil {
		return 0, err
	}
	if n != 0 {
		return 0, nil
	}

	ids := make(map[string]int64)
	for i, p := range rows {
		categoryID, ok := ids[p.Category]
		if !ok {
			categoryID, err = CategoryIDByName(ctx, q, p.Category)
			if err != nil {
				return i, fmt.Errorf("resolving category for product %q: %w", p.Name, err)
			}
			ids[p.Category] = categoryID
		}

		var id int64
		err := q.QueryRow(ctx, insertProductSQL,
			p.Name,
			nullable(p.Description),
			p.Price.StringFixed(2),
			categoryID,
			p.Stock,
			nullable(p.ImageURL),
		).Scan(&id)
		if err != nil {
			return i, fmt.Errorf("inserting product %q: %w", p.Name, err)
		}
	}
	return len(rows), nil
}

// CategoryIDByName returns the lowest id of a category with the given name.
func CategoryIDByName(ctx context.Context, q Querier, name string) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, categoryIDByNameSQL, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %q", ErrCategoryNotFound, name)
	}
	if err != nil {
		return 0, fmt.Errorf("looking up category %q: %w", name, err)
	}
	return id, nil
}

// nullable maps an empty optional column to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
