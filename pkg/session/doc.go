// Package session persists live search sessions so a browser that reconnects
// (page reload, network blip, server restart) finds its search box as it left
// it.
//
// # Stores
//
// Store is the persistence contract. Two backends are provided:
//
//	store := session.NewMemoryStore()
//	// or
//	store := session.NewSQLStore(db, session.WithSQLDialect(session.DialectSQLite))
//
// Entries carry an expiry; expired entries are invisible to Load and are
// swept periodically.
//
// # State
//
// State is what a session saves: the visible search text and the query string
// of the page it last navigated to. It is stored as versioned JSON.
package session
