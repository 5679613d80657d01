package store

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
)

//go:embed schema/categories.sql
var categoriesDDL string

//go:embed schema/products.sql
var productsDDL string

// Table pairs a table name with the DDL that creates it.
type Table struct {
	Name string
	DDL  string
}

var (
	// CategoriesTable must be ensured before ProductsTable, which references it.
	CategoriesTable = Table{Name: "Categories", DDL: categoriesDDL}
	ProductsTable   = Table{Name: "Products", DDL: productsDDL}
)

const tableExistsSQL = `SELECT EXISTS (
	SELECT 1 FROM information_schema.tables
	WHERE table_schema = current_schema() AND table_name = $1
)`

// TableExists reports whether name exists in the current schema. The lookup
// is case-sensitive because tables are created with quoted identifiers.
func TableExists(ctx context.Context, q Querier, name string) (bool, error) {
	var exists bool
	if err := q.QueryRow(ctx, tableExistsSQL, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return exists, nil
}

// EnsureTable creates t when it does not exist yet. It returns true if the
// table was created by this call.
func EnsureTable(ctx context.Context, q Querier, t Table) (bool, error) {
	exists, err := TableExists(ctx, q, t.Name)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if _, err := q.Exec(ctx, t.DDL); err != nil {
		return false, fmt.Errorf("creating table %s: %w", t.Name, err)
	}
	return true, nil
}

// CountRows returns the number of rows in table.
func CountRows(ctx context.Context, q Querier, table string) (int64, error) {
	var n int64
	sql := "SELECT COUNT(*) FROM " + pgx.Identifier{table}.Sanitize()
	if err := q.QueryRow(ctx, sql).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return n, nil
}
