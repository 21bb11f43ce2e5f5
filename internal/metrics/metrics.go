// Package metrics exposes Prometheus collectors for the engine. The
// module never binds a listener itself; a caller mounts Handler() on
// whatever mux it already runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

var (
	// ActiveStreams tracks concurrently open HTTP/2 streams across all
	// connections (a single unlabeled gauge).
	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "httpcore",
		Subsystem: "http2",
		Name:      "active_streams",
		Help:      "Number of currently open HTTP/2 streams.",
	})

	// FramesTotal counts frames processed by type.
	FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "httpcore",
		Subsystem: "http2",
		Name:      "frames_total",
		Help:      "Frames processed, by frame type.",
	}, []string{"type"})

	// AuthFailuresTotal counts failed login attempts by reason.
	AuthFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "httpcore",
		Subsystem: "auth",
		Name:      "failures_total",
		Help:      "Failed authentication attempts, by reason.",
	}, []string{"reason"})

	// RouteRewritesTotal counts route rewrite (reroute) iterations.
	RouteRewritesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "httpcore",
		Subsystem: "router",
		Name:      "rewrites_total",
		Help:      "Route rewrite iterations performed across all dispatches.",
	})
)

func init() {
	prometheus.MustRegister(ActiveStreams, FramesTotal, AuthFailuresTotal, RouteRewritesTotal)
}

// Handler returns the Prometheus scrape handler for mounting on a caller's
// mux; this module does not listen on any port itself.
func Handler() http.Handler {
	return promhttp.Handler()
}
