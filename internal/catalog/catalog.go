// Package catalog holds the product catalog entities persisted by the seeder
// and the fixed baseline rows inserted into a fresh schema.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category is a row of the Categories table.
type Category struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

// Product is a row of the Products table. UpdatedAt is set on insert only.
// The timestamp columns are nullable; rows written without them read as nil.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	CategoryID  *int64          `json:"categoryId,omitempty"`
	Stock       int             `json:"stock"`
	ImageURL    *string         `json:"imageUrl,omitempty"`
	CreatedAt   *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time      `json:"updatedAt,omitempty"`
}
