package storefront

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	clientdist "github.com/vango-dev/storefront/client/dist"
	"github.com/vango-dev/storefront/pkg/search"
	"github.com/vango-dev/storefront/pkg/urlparam"
)

// PartialHeader asks the search page for the results fragment only. The
// live client sets it when it swaps results after a navigation.
const PartialHeader = "X-Storefront-Partial"

// ClientPath is where the live client script is served.
const ClientPath = "/_live/client.js"

// LivePath is the live session WebSocket endpoint.
const LivePath = "/_live"

// Handler serves the storefront pages.
type Handler struct {
	catalog    Catalog
	title      string
	searchPath string
	pageSize   int
	sessions   func() int
	logger     *slog.Logger
}

// NewHandler creates a Handler. Zero values in cfg take defaults.
func NewHandler(cfg Config) *Handler {
	cfg.fill()
	return &Handler{
		catalog:    cfg.Catalog,
		title:      cfg.Title,
		searchPath: cfg.SearchPath,
		pageSize:   cfg.PageSize,
		sessions:   cfg.Sessions,
		logger:     cfg.Logger.With("component", "storefront"),
	}
}

// Search renders the results page for the request's q and page parameters.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	params := urlparam.Parse(r.URL.RawQuery)
	query := params.Get(search.QueryParam)
	page := parsePage(params)

	res, err := h.catalog.Search(r.Context(), query, page, h.pageSize)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		h.logger.Error("catalog search failed", "query", query, "page", page, "error", err)
		http.Error(w, "search unavailable", http.StatusInternalServerError)
		return
	}

	view := pageView{
		Title:      h.title,
		SearchPath: h.searchPath,
		ClientPath: ClientPath,
		Result:     res,
		params:     params,
	}

	var buf bytes.Buffer
	render := renderPage
	if r.Header.Get(PartialHeader) == "1" {
		render = renderResults
	}
	if err := render(&buf, view); err != nil {
		h.logger.Error("render failed", "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Vary", PartialHeader)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// Index redirects to the search page.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.searchPath, http.StatusFound)
}

// Health reports liveness and the number of live sessions.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if h.sessions != nil {
		body["sessions"] = h.sessions()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

var clientETag = func() string {
	sum := sha256.Sum256(clientdist.ClientJS)
	return fmt.Sprintf("%q", fmt.Sprintf("%x", sum[:]))
}()

// Client serves the embedded live client script.
func (h *Handler) Client(w http.ResponseWriter, r *http.Request) {
	if len(clientdist.ClientJS) == 0 {
		http.Error(w, "client not available", http.StatusInternalServerError)
		return
	}

	// ETag-based caching (safe even without a versioned URL).
	w.Header().Set("ETag", clientETag)
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "public, max-age=0, must-revalidate")

	if etagMatches(r.Header.Get("If-None-Match"), clientETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clientdist.ClientJS)
}

func etagMatches(ifNoneMatchHeader, etag string) bool {
	if ifNoneMatchHeader == "" || etag == "" {
		return false
	}
	// Handle lists: If-None-Match: "abc", W/"def"
	for _, part := range strings.Split(ifNoneMatchHeader, ",") {
		candidate := strings.TrimSpace(part)
		if candidate == etag {
			return true
		}
		if strings.HasPrefix(candidate, "W/") && strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
