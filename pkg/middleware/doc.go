// Package middleware provides HTTP middleware for the storefront.
//
// This package includes:
//   - OpenTelemetry tracing middleware
//   - Prometheus request metrics middleware
//   - Structured request logging
//
// All middleware has the standard func(http.Handler) http.Handler shape and
// reads the chi route pattern after routing, so span names and metric labels
// stay low-cardinality:
//
//	r := chi.NewRouter()
//	r.Use(
//	    middleware.RequestLogger(logger),
//	    middleware.OpenTelemetry(),
//	    middleware.Prometheus(middleware.WithRegistry(reg)),
//	)
//
// # OpenTelemetry Middleware
//
// A server span is started per request, named "<METHOD> <route pattern>".
// Incoming W3C trace context is extracted from the request headers. The
// tracer comes from the global provider unless WithTracerProvider is given:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//
// # Prometheus Metrics
//
//   - storefront_http_requests_total: requests by method, route and status
//   - storefront_http_request_duration_seconds: latency by method and route
//
// Expose them with promhttp:
//
//	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package middleware
