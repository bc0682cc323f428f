// Package storefront serves the shop's search pages.
//
// GET /search renders the results for the q and page parameters. The page
// loads the live client, which opens a session on the server package's
// WebSocket endpoint; when that session navigates, the client fetches the
// same URL with the X-Storefront-Partial header and swaps in the results
// fragment.
//
// Products come from a Catalog: MemoryCatalog for a fixed list, or
// SQLCatalog for a table in any database/sql database using '?'
// placeholders.
package storefront
