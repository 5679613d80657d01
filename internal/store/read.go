package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"catalog-platform/seeder/internal/catalog"
)

const (
	listCategoriesSQL = `SELECT "Id", "Name", "Description", "CreatedAt" FROM "Categories" ORDER BY "Id"`

	// Price is read as text so it round-trips through decimal without float
	// conversion.
	listProductsSQL = `SELECT "Id", "Name", "Description", "Price"::text, "CategoryId", "Stock", "ImageUrl", "CreatedAt", "UpdatedAt"
	FROM "Products" ORDER BY "Id"`
)

// ListCategories returns all categories ordered by id.
func ListCategories(ctx context.Context, q Querier) ([]catalog.Category, error) {
	rows, err := q.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	categories := []catalog.Category{}
	for rows.Next() {
		var c catalog.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating categories: %w", err)
	}
	return categories, nil
}

// ListProducts returns all products ordered by id.
func ListProducts(ctx context.Context, q Querier) ([]catalog.Product, error) {
	rows, err := q.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	products := []catalog.Product{}
	for rows.Next() {
		var (
			p     catalog.Product
			price string
		)
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &price, &p.CategoryID,
			&p.Stock, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}

		p.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parsing price of product %d: %w", p.ID, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating products: %w", err)
	}
	return products, nil
}
