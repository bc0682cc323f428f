package storefront

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vango-dev/storefront/pkg/middleware"
	"github.com/vango-dev/storefront/pkg/search"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the storefront router.
type Config struct {
	// Title is the shop name shown on every page.
	Title string

	// SearchPath serves the results page. Default: "/search".
	SearchPath string

	// PageSize is the number of results per page. Default: 12.
	PageSize int

	// Catalog answers searches. Default: a MemoryCatalog with DefaultProducts.
	Catalog Catalog

	// Live is the WebSocket handler mounted at LivePath. Nil disables it.
	Live http.Handler

	// Sessions reports the live session count for /healthz.
	Sessions func() int

	// Registry enables request metrics and /metrics when non-nil.
	Registry *prometheus.Registry

	// MetricsNamespace prefixes request metrics. Default: "storefront".
	MetricsNamespace string

	// TracerProvider enables request tracing when non-nil.
	TracerProvider trace.TracerProvider

	Logger *slog.Logger
}

func (c *Config) fill() {
	if c.Title == "" {
		c.Title = "Storefront"
	}
	if c.SearchPath == "" {
		c.SearchPath = search.DefaultPath
	}
	if c.PageSize <= 0 {
		c.PageSize = 12
	}
	if c.Catalog == nil {
		c.Catalog = NewMemoryCatalog(DefaultProducts()...)
	}
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = "storefront"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// NewRouter assembles the storefront's HTTP routes.
func NewRouter(cfg Config) chi.Router {
	cfg.fill()
	h := NewHandler(cfg)

	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		middleware.Recoverer(cfg.Logger),
		middleware.RequestLogger(cfg.Logger),
	)
	if cfg.TracerProvider != nil {
		r.Use(middleware.OpenTelemetry(
			middleware.WithTracerProvider(cfg.TracerProvider),
			middleware.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
			}),
		))
	}
	if cfg.Registry != nil {
		r.Use(middleware.Prometheus(
			middleware.WithRegistry(cfg.Registry),
			middleware.WithNamespace(cfg.MetricsNamespace),
		))
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{Registry: cfg.Registry}))
	}

	if cfg.SearchPath != "/" {
		r.Get("/", h.Index)
	}
	r.Get(cfg.SearchPath, h.Search)
	r.Get(ClientPath, h.Client)
	r.Head(ClientPath, h.Client)
	r.Get("/healthz", h.Health)
	if cfg.Live != nil {
		r.Get(LivePath, cfg.Live.ServeHTTP)
	}
	return r
}
