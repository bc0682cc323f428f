package storefront

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLCatalog is a Catalog stored in a SQL table. Queries use '?'
// placeholders (SQLite, MySQL). Matching follows MemoryCatalog: a
// case-insensitive substring test against the name and the tags, ordered
// by insertion. Case folding happens in Go at insert time (search_text)
// because SQL LOWER only folds ASCII.
type SQLCatalog struct {
	db        *sql.DB
	tableName string
}

// NewSQLCatalog creates a catalog over db. An empty tableName uses
// "storefront_products".
func NewSQLCatalog(db *sql.DB, tableName string) *SQLCatalog {
	if tableName == "" {
		tableName = "storefront_products"
	}
	return &SQLCatalog{db: db, tableName: tableName}
}

// CreateTable creates the products table if it does not exist.
func (c *SQLCatalog) CreateTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			position INTEGER PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '',
			search_text TEXT NOT NULL DEFAULT '',
			price_cents INTEGER NOT NULL DEFAULT 0
		)
	`, c.tableName)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("storefront: create catalog table: %w", err)
	}
	return nil
}

// Insert appends products in one transaction. Existing ids are skipped.
func (c *SQLCatalog) Insert(ctx context.Context, products ...Product) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storefront: begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`INSERT INTO %s (id, name, tags, search_text, price_cents) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`, c.tableName)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("storefront: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range products {
		if _, err := stmt.ExecContext(ctx, p.ID, p.Name, joinTags(p.Tags), searchText(p), p.PriceCents); err != nil {
			return fmt.Errorf("storefront: insert product %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// Search implements Catalog.
func (c *SQLCatalog) Search(ctx context.Context, query string, page, size int) (Result, error) {
	if size <= 0 {
		size = 1
	}
	if page < 1 {
		page = 1
	}

	where := ""
	var args []any
	if needle := strings.ToLower(strings.TrimSpace(query)); needle != "" {
		if strings.Contains(needle, tagSeparator) {
			return paginate(query, nil, 0, page, size), nil
		}
		where = `WHERE search_text LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(needle)+"%")
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, c.tableName, where)
	if err := c.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return Result{}, fmt.Errorf("storefront: count products: %w", err)
	}

	res := paginate(query, nil, total, page, size)
	if total == 0 || (page-1)*size >= total {
		return res, nil
	}

	selectQuery := fmt.Sprintf(`SELECT id, name, tags, price_cents FROM %s %s ORDER BY position LIMIT ? OFFSET ?`,
		c.tableName, where)
	rows, err := c.db.QueryContext(ctx, selectQuery, append(args, size, (page-1)*size)...)
	if err != nil {
		return Result{}, fmt.Errorf("storefront: search products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Product
		var tags string
		if err := rows.Scan(&p.ID, &p.Name, &tags, &p.PriceCents); err != nil {
			return Result{}, fmt.Errorf("storefront: scan product: %w", err)
		}
		p.Tags = splitTags(tags)
		res.Products = append(res.Products, p)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("storefront: search products: %w", err)
	}
	return res, nil
}

// Tags are stored joined by the ASCII unit separator, so a needle never
// matches across two tags.
const tagSeparator = "\x1f"

func joinTags(tags []string) string {
	return strings.Join(tags, tagSeparator)
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, tagSeparator)
}

// searchText is the lowercased name and tags, separated so a needle cannot
// span two of them.
func searchText(p Product) string {
	return strings.ToLower(p.Name + tagSeparator + joinTags(p.Tags))
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
