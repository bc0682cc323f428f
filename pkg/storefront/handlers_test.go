package storefront

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vango-dev/storefront/pkg/urlparam"
)

func newTestRouter(t *testing.T, mutate func(*Config)) http.Handler {
	t.Helper()
	cfg := Config{
		Title:    "Test Shop",
		PageSize: 4,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewRouter(cfg)
}

func get(t *testing.T, h http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSearchPage(t *testing.T) {
	h := newTestRouter(t, nil)
	rec := get(t, h, "/search?q=boots", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, `<title>boots · Test Shop</title>`)
	assert.Contains(t, body, `id="search-input" type="search" name="q" value="boots"`)
	assert.Contains(t, body, "Leather Boots")
	assert.Contains(t, body, "Trail Hiking Boots")
	assert.NotContains(t, body, "Canvas Sneakers")
	assert.Contains(t, body, `<script src="/_live/client.js" defer></script>`)
}

func TestSearchPage_EscapesQuery(t *testing.T) {
	h := newTestRouter(t, nil)
	rec := get(t, h, "/search?q=%3Cscript%3E", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<script>")
	assert.Contains(t, rec.Body.String(), "&lt;script&gt;")
}

func TestSearchPage_Partial(t *testing.T) {
	h := newTestRouter(t, nil)
	rec := get(t, h, "/search?q=boots", http.Header{PartialHeader: {"1"}})

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "<html")
	assert.Contains(t, body, "Leather Boots")
	assert.Contains(t, body, "2 results for")
	assert.Equal(t, PartialHeader, rec.Header().Get("Vary"))
}

func TestSearchPage_Pagination(t *testing.T) {
	h := newTestRouter(t, nil)

	tests := []struct {
		name   string
		target string
		want   []string
		absent []string
	}{
		{
			name:   "first page",
			target: "/search?sort=price&q=shoes",
			want:   []string{"Page 1 of 2", `href="/search?sort=price&amp;q=shoes&amp;page=2"`, "Canvas Sneakers"},
			absent: []string{`rel="prev"`, "Red Sandals"},
		},
		{
			name:   "second page",
			target: "/search?sort=price&q=shoes&page=2",
			want:   []string{"Page 2 of 2", `href="/search?sort=price&amp;q=shoes"`, "Red Sandals"},
			absent: []string{`rel="next"`, "Canvas Sneakers"},
		},
		{
			name:   "non-numeric page",
			target: "/search?q=shoes&page=abc",
			want:   []string{"Page 1 of 2", "Red Running Shoes"},
		},
		{
			name:   "negative page",
			target: "/search?q=shoes&page=-3",
			want:   []string{"Page 1 of 2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.target, http.Header{PartialHeader: {"1"}})
			require.Equal(t, http.StatusOK, rec.Code)
			for _, s := range tt.want {
				assert.Contains(t, rec.Body.String(), s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, rec.Body.String(), s)
			}
		})
	}
}

func TestPageView_URLs(t *testing.T) {
	v := pageView{
		SearchPath: "/search",
		Result:     Result{Page: 2, Pages: 3},
		params:     urlparam.Parse("q=red%20shoes&page=2&sort=price"),
	}
	assert.Equal(t, "/search?q=red%20shoes&sort=price", v.PrevURL())
	assert.Equal(t, "/search?q=red%20shoes&page=3&sort=price", v.NextURL())
}

func TestIndexRedirects(t *testing.T) {
	h := newTestRouter(t, func(c *Config) { c.SearchPath = "/catalog" })
	rec := get(t, h, "/", nil)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/catalog", rec.Header().Get("Location"))
}

func TestClientScript(t *testing.T) {
	h := newTestRouter(t, nil)
	rec := get(t, h, ClientPath, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/javascript; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "X-Storefront-Partial")
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = get(t, h, ClientPath, http.Header{"If-None-Match": {`W/` + etag}})
	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func TestEtagMatches(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{`"abc"`, true},
		{`"x", "abc"`, true},
		{`W/"abc"`, true},
		{`"abcd"`, false},
	}
	for _, tt := range tests {
		if got := etagMatches(tt.header, `"abc"`); got != tt.want {
			t.Errorf("etagMatches(%q): got %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t, func(c *Config) { c.Sessions = func() int { return 3 } })
	rec := get(t, h, "/healthz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 3.0, body["sessions"])
}

func TestLiveMounted(t *testing.T) {
	called := false
	h := newTestRouter(t, func(c *Config) {
		c.Live = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusSwitchingProtocols)
		})
	})
	get(t, h, LivePath, nil)
	assert.True(t, called)

	rec := get(t, newTestRouter(t, nil), LivePath, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newTestRouter(t, func(c *Config) { c.Registry = reg })

	get(t, h, "/search?q=hat", nil)
	rec := get(t, h, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `storefront_http_requests_total{method="GET",route="/search",status="200"} 1`), body)

	rec = get(t, newTestRouter(t, nil), "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
