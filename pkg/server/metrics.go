package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/storefront/pkg/search"
)

// Metrics holds the live-session collectors.
type Metrics struct {
	// SessionsActive is the number of open live sessions.
	SessionsActive prometheus.Gauge

	// Sessions counts handshakes by result: new, resumed or rejected.
	Sessions *prometheus.CounterVec

	// Frames counts frames received from clients by type.
	Frames *prometheus.CounterVec

	// FrameErrors counts frames that could not be handled, by reason.
	FrameErrors *prometheus.CounterVec

	// Settles counts search settles by outcome: navigated or skipped.
	Settles *prometheus.CounterVec

	// Navigations counts navigate frames sent.
	Navigations prometheus.Counter

	// Coalesced counts keystrokes whose settle was superseded by later input.
	Coalesced prometheus.Counter
}

// NewMetrics registers the live-session collectors with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	const subsystem = "live"

	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_active",
			Help:      "Number of open live sessions.",
		}),
		Sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_total",
			Help:      "Live session handshakes by result.",
		}, []string{"result"}),
		Frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Frames received from clients by type.",
		}, []string{"type"}),
		FrameErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frame_errors_total",
			Help:      "Client frames that could not be handled, by reason.",
		}, []string{"reason"}),
		Settles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "settles_total",
			Help:      "Search input settles by outcome.",
		}, []string{"outcome"}),
		Navigations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "navigations_total",
			Help:      "Navigate frames sent to clients.",
		}),
		Coalesced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "debounce_cancellations_total",
			Help:      "Keystrokes whose settle was superseded by later input.",
		}),
	}
}

func (m *Metrics) observeSettle(ev search.Settle) {
	if ev.Navigated {
		m.Settles.WithLabelValues("navigated").Inc()
		return
	}
	m.Settles.WithLabelValues("skipped").Inc()
}
