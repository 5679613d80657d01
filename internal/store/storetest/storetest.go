// Package storetest provides an in-memory stand-in for a Postgres connection
// that understands exactly the statements issued by package store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"catalog-platform/seeder/internal/catalog"
	"catalog-platform/seeder/internal/store"
)

// DB implements store.Conn and store.Tx. Begin snapshots the state and
// Rollback restores it, so uncommitted work disappears like it would in
// Postgres.
type DB struct {
	mu sync.Mutex

	Tables     map[string]bool
	Categories []catalog.Category
	Products   []catalog.Product

	// FailOn maps a SQL fragment to the error returned by any statement that
	// contains it.
	FailOn    map[string]error
	BeginErr  error
	CommitErr error

	Statements []string
	Begins     int
	Commits    int
	Rollbacks  int
	Closes     int

	snapshot *state
}

type state struct {
	tables     map[string]bool
	categories []catalog.Category
	products   []catalog.Product
}

var (
	_ store.Conn = (*DB)(nil)
	_ store.Tx   = (*DB)(nil)
)

// New returns an empty database with no tables.
func New() *DB {
	return &DB{Tables: make(map[string]bool)}
}

// Seeded returns a database that already holds both tables with the given
// rows, as if a previous run had committed them.
func Seeded(categories []catalog.Category, products []catalog.Product) *DB {
	db := New()
	db.Tables[store.CategoriesTable.Name] = true
	db.Tables[store.ProductsTable.Name] = true
	db.Categories = append(db.Categories, categories...)
	db.Products = append(db.Products, products...)
	return db
}

func (d *DB) Begin(_ context.Context) (store.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Begins++
	if d.BeginErr != nil {
		return nil, d.BeginErr
	}
	d.snapshot = d.capture()
	return d, nil
}

func (d *DB) Commit(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.CommitErr != nil {
		d.restore()
		return d.CommitErr
	}
	d.Commits++
	d.snapshot = nil
	return nil
}

func (d *DB) Rollback(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.snapshot == nil {
		return pgx.ErrTxClosed
	}
	d.Rollbacks++
	d.restore()
	return nil
}

func (d *DB) Close(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closes++
	return nil
}

// CategoryIDs returns the CategoryId of every product in id order; a NULL
// foreign key is reported as 0.
func (d *DB) CategoryIDs() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]int64, 0, len(d.Products))
	for _, p := range d.Products {
		if p.CategoryID == nil {
			ids = append(ids, 0)
			continue
		}
		ids = append(ids, *p.CategoryID)
	}
	return ids
}

func (d *DB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record(sql); err != nil {
		return pgconn.CommandTag{}, err
	}

	stmt := strings.TrimSpace(sql)
	switch {
	case strings.HasPrefix(stmt, `CREATE TABLE "Categories"`):
		return d.createTable(store.CategoriesTable.Name)
	case strings.HasPrefix(stmt, `CREATE TABLE "Products"`):
		if !d.Tables[store.CategoriesTable.Name] {
			return pgconn.CommandTag{}, undefinedTable(store.CategoriesTable.Name)
		}
		return d.createTable(store.ProductsTable.Name)
	}
	return pgconn.CommandTag{}, fmt.Errorf("storetest: unexpected exec %q", sql)
}

func (d *DB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record(sql); err != nil {
		return &Row{err: err}
	}

	stmt := strings.TrimSpace(sql)
	switch {
	case strings.Contains(stmt, "information_schema.tables"):
		return &Row{vals: []any{d.Tables[args[0].(string)]}}

	case strings.HasPrefix(stmt, "SELECT COUNT(*) FROM "):
		table := strings.Trim(strings.TrimPrefix(stmt, "SELECT COUNT(*) FROM "), `"`)
		if !d.Tables[table] {
			return &Row{err: undefinedTable(table)}
		}
		if table == store.CategoriesTable.Name {
			return &Row{vals: []any{int64(len(d.Categories))}}
		}
		return &Row{vals: []any{int64(len(d.Products))}}

	case strings.HasPrefix(stmt, `INSERT INTO "Categories"`):
		if !d.Tables[store.CategoriesTable.Name] {
			return &Row{err: undefinedTable(store.CategoriesTable.Name)}
		}
		id := int64(len(d.Categories) + 1)
		now := time.Now()
		d.Categories = append(d.Categories, catalog.Category{
			ID:          id,
			Name:        args[0].(string),
			Description: args[1].(*string),
			CreatedAt:   &now,
		})
		return &Row{vals: []any{id}}

	case strings.HasPrefix(stmt, `SELECT "Id" FROM "Categories" WHERE "Name"`):
		for _, c := range d.Categories {
			if c.Name == args[0].(string) {
				return &Row{vals: []any{c.ID}}
			}
		}
		return &Row{err: pgx.ErrNoRows}

	case strings.HasPrefix(stmt, `INSERT INTO "Products"`):
		return d.insertProduct(args)
	}
	return &Row{err: fmt.Errorf("storetest: unexpected query %q", sql)}
}

func (d *DB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record(sql); err != nil {
		return nil, err
	}

	stmt := strings.TrimSpace(sql)
	switch {
	case strings.Contains(stmt, `FROM "Categories"`):
		if !d.Tables[store.CategoriesTable.Name] {
			return nil, undefinedTable(store.CategoriesTable.Name)
		}
		rows := &Rows{}
		for _, c := range d.Categories {
			rows.data = append(rows.data, []any{c.ID, c.Name, c.Description, c.CreatedAt})
		}
		return rows, nil

	case strings.Contains(stmt, `FROM "Products"`):
		if !d.Tables[store.ProductsTable.Name] {
			return nil, undefinedTable(store.ProductsTable.Name)
		}
		rows := &Rows{}
		for _, p := range d.Products {
			rows.data = append(rows.data, []any{
				p.ID, p.Name, p.Description, p.Price.StringFixed(2), p.CategoryID,
				p.Stock, p.ImageURL, p.CreatedAt, p.UpdatedAt,
			})
		}
		return rows, nil
	}
	return nil, fmt.Errorf("storetest: unexpected query %q", sql)
}

func (d *DB) insertProduct(args []any) pgx.Row {
	if !d.Tables[store.ProductsTable.Name] {
		return &Row{err: undefinedTable(store.ProductsTable.Name)}
	}

	price, err := decimal.NewFromString(args[2].(string))
	if err != nil {
		return &Row{err: fmt.Errorf("invalid input syntax for type numeric: %w", err)}
	}

	categoryID := args[3].(int64)
	found := false
	for _, c := range d.Categories {
		if c.ID == categoryID {
			found = true
			break
		}
	}
	if !found {
		return &Row{err: errors.New(`insert or update on table "Products" violates foreign key constraint`)}
	}

	now := time.Now()
	id := int64(len(d.Products) + 1)
	d.Products = append(d.Products, catalog.Product{
		ID:          id,
		Name:        args[0].(string),
		Description: args[1].(*string),
		Price:       price,
		CategoryID:  &categoryID,
		Stock:       args[4].(int),
		ImageURL:    args[5].(*string),
		CreatedAt:   &now,
		UpdatedAt:   &now,
	})
	return &Row{vals: []any{id}}
}

// undefinedTable mirrors the error Postgres returns for a missing relation.
func undefinedTable(name string) error {
	return &pgconn.PgError{
		Severity: "ERROR",
		Code:     "42P01",
		Message:  fmt.Sprintf("relation %q does not exist", name),
	}
}

func (d *DB) createTable(name string) (pgconn.CommandTag, error) {
	if d.Tables[name] {
		return pgconn.CommandTag{}, fmt.Errorf("relation %q already exists", name)
	}
	d.Tables[name] = true
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (d *DB) record(sql string) error {
	d.Statements = append(d.Statements, sql)
	for fragment, err := range d.FailOn {
		if strings.Contains(sql, fragment) {
			return err
		}
	}
	return nil
}

func (d *DB) capture() *state {
	tables := make(map[string]bool, len(d.Tables))
	for k, v := range d.Tables {
		tables[k] = v
	}
	return &state{
		tables:     tables,
		categories: append([]catalog.Category(nil), d.Categories...),
		products:   append([]catalog.Product(nil), d.Products...),
	}
}

func (d *DB) restore() {
	if d.snapshot == nil {
		return
	}
	d.Tables = d.snapshot.tables
	d.Categories = d.snapshot.categories
	d.Products = d.snapshot.products
	d.snapshot = nil
}

// Row implements pgx.Row over fixed values.
type Row struct {
	vals []any
	err  error
}

func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.vals, dest)
}

// Rows implements pgx.Rows over fixed values.
type Rows struct {
	data [][]any
	pos  int
	err  error
}

func (r *Rows) Close()                                       {}
func (r *Rows) Err() error                                   { return r.err }
func (r *Rows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *Rows) RawValues() [][]byte                          { return nil }
func (r *Rows) Conn() *pgx.Conn                              { return nil }

func (r *Rows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	return scanInto(r.data[r.pos-1], dest)
}

func (r *Rows) Values() ([]any, error) {
	return r.data[r.pos-1], nil
}

func scanInto(vals []any, dest []any) error {
	if len(vals) != len(dest) {
		return fmt.Errorf("storetest: %d values for %d destinations", len(vals), len(dest))
	}
	for i := range dest {
		if err := assign(dest[i], vals[i]); err != nil {
			return fmt.Errorf("storetest: column %d: %w", i, err)
		}
	}
	return nil
}

// assign stores v into the pointer dest, allocating for pointer-to-pointer
// destinations and converting between integer kinds.
func assign(dest, v any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination %T is not a pointer", dest)
	}
	elem := dv.Elem()

	if v == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}

	sv := reflect.ValueOf(v)
	switch {
	case sv.Type().AssignableTo(elem.Type()):
		elem.Set(sv)
	case elem.Kind() == reflect.Pointer && sv.Type().AssignableTo(elem.Type().Elem()):
		p := reflect.New(elem.Type().Elem())
		p.Elem().Set(sv)
		elem.Set(p)
	case sv.CanInt() && elem.CanInt():
		elem.SetInt(sv.Int())
	default:
		return fmt.Errorf("cannot scan %T into %T", v, dest)
	}
	return nil
}
