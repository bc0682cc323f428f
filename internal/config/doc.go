// Package config loads storefront.json, the storefront server's
// configuration file.
//
// A missing field takes its default; a missing file is an error from Load but
// the CLI falls back to New() so the server runs with no file at all.
// STOREFRONT_* environment variables override the file:
//
//	STOREFRONT_HOST, STOREFRONT_PORT
//	STOREFRONT_SESSION_STORE, STOREFRONT_SESSION_DSN
//	STOREFRONT_LOG_LEVEL
package config
