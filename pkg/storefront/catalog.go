package storefront

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Product is one catalog entry.
type Product struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Tags       []string `json:"tags,omitempty"`
	PriceCents int      `json:"price_cents"`
}

// Price formats PriceCents as dollars.
func (p Product) Price() string {
	return fmt.Sprintf("$%d.%02d", p.PriceCents/100, p.PriceCents%100)
}

// Result is one page of search results.
type Result struct {
	Query    string
	Products []Product

	// Total is the number of matches across all pages.
	Total int

	// Page is 1-based; Pages is at least 1.
	Page  int
	Pages int
}

// HasPrev reports whether a previous page exists.
func (r Result) HasPrev() bool { return r.Page > 1 }

// HasNext reports whether a following page exists.
func (r Result) HasNext() bool { return r.Page < r.Pages }

// Catalog answers product searches.
type Catalog interface {
	// Search returns page (1-based) of the products matching query, size per
	// page. An empty query matches every product.
	Search(ctx context.Context, query string, page, size int) (Result, error)
}

// MemoryCatalog is a Catalog over a fixed product list. Matching is a
// case-insensitive substring test against the name and every tag; results
// keep the list's order.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products []Product
}

// NewMemoryCatalog creates a catalog holding products.
func NewMemoryCatalog(products ...Product) *MemoryCatalog {
	c := &MemoryCatalog{}
	c.Add(products...)
	return c
}

// Add appends products to the catalog.
func (c *MemoryCatalog) Add(products ...Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = append(c.products, products...)
}

// Len returns the number of products.
func (c *MemoryCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.products)
}

// Search implements Catalog.
func (c *MemoryCatalog) Search(ctx context.Context, query string, page, size int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	c.mu.RLock()
	var matches []Product
	for _, p := range c.products {
		if needle == "" || p.matches(needle) {
			matches = append(matches, p)
		}
	}
	c.mu.RUnlock()

	return paginate(query, matches, len(matches), page, size), nil
}

func (p Product) matches(needle string) bool {
	if strings.Contains(strings.ToLower(p.Name), needle) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// paginate slices matches (all of them, total long) down to one page.
func paginate(query string, matches []Product, total, page, size int) Result {
	if size <= 0 {
		size = 1
	}
	pages := (total + size - 1) / size
	if pages < 1 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}

	res := Result{Query: query, Total: total, Page: page, Pages: pages}
	start := (page - 1) * size
	if start >= len(matches) {
		return res
	}
	end := start + size
	if end > len(matches) {
		end = len(matches)
	}
	res.Products = append([]Product(nil), matches[start:end]...)
	return res
}
