package catalog

import "github.com/shopspring/decimal"

// SeedCategory is a baseline Categories row.
type SeedCategory struct {
	Name        string
	Description string
}

// SeedProduct is a baseline Products row. Category names the SeedCategory the
// product belongs to; the id is resolved at insert time.
type SeedProduct struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Stock       int
	ImageURL    string
}

// SeedCategories returns the baseline categories in insertion order.
func SeedCategories() []SeedCategory {
	return []SeedCategory{
		{Name: "Electronics", Description: "Electronic devices and accessories"},
		{Name: "Clothing", Description: "Apparel and fashion items"},
		{Name: "Books", Description: "Books and reading materials"},
	}
}

// SeedProducts returns the baseline products in insertion order.
func SeedProducts() []SeedProduct {
	return []SeedProduct{
		{
			Name:        "Laptop Pro 15",
			Description: "High-performance laptop with 16GB RAM",
			Price:       decimal.RequireFromString("1299.99"),
			Category:    "Electronics",
			Stock:       50,
			ImageURL:    "https://images.unsplash.com/photo-1496181133206-80ce9b88a853",
		},
		{
			Name:        "Wireless Headphones",
			Description: "Noise-cancelling Bluetooth headphones",
			Price:       decimal.RequireFromString("199.99"),
			Category:    "Electronics",
			Stock:       100,
			ImageURL:    "https://images.unsplash.com/photo-1505740420928-5e560c06d30e",
		},
		{
			Name:        "T-Shirt",
			Description: "Comfortable cotton t-shirt",
			Price:       decimal.RequireFromString("19.99"),
			Category:    "Clothing",
			Stock:       200,
			ImageURL:    "https://images.unsplash.com/photo-1521572163474-6864f9cf17ab",
		},
	}
}
