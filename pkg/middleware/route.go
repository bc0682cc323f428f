package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// unknownRoute labels requests that matched no chi route.
const unknownRoute = "unknown_route"

// routePattern returns the chi route pattern of a routed request.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unknownRoute
}
