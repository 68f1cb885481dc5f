// Package platform holds the SystemContext: the ambient bundle of logger,
// metrics registry, and process start time threaded through components at
// construction time, replacing the cross-file ad-hoc globals the source
// used (§9).
package platform

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Metrics bundles the Prometheus collectors shared across components.
type Metrics struct {
	Registry           *prometheus.Registry
	CyclesTotal        *prometheus.CounterVec
	SeriesAttempts     *prometheus.CounterVec
	ValidatorRejects   *prometheus.CounterVec
	GatewayRequests    *prometheus.CounterVec
	GatewayLatency     *prometheus.HistogramVec
	CircuitState       *prometheus.GaugeVec
	IncidentsTotal     *prometheus.CounterVec
}

// NewMetrics registers and returns a fresh collector set on its own
// registry, so tests can construct an isolated SystemContext without
// colliding with the global Prometheus default registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mdp_cycles_total",
			Help: "Completed scheduler cycles by outcome.",
		}, []string{"outcome"}),
		SeriesAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mdp_series_attempts_total",
			Help: "Per-series fetch attempts by result.",
		}, []string{"series_key", "result"}),
		ValidatorRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mdp_validator_rejects_total",
			Help: "Validator rejections by kind.",
		}, []string{"kind"}),
		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mdp_gateway_requests_total",
			Help: "Gateway requests by route and status.",
		}, []string{"route", "status"}),
		GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mdp_gateway_latency_seconds",
			Help:    "Gateway handler latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mdp_circuit_state",
			Help: "0=closed 1=open 2=half-open per source_id.",
		}, []string{"source_id"}),
		IncidentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mdp_incidents_total",
			Help: "Incidents recorded by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.CyclesTotal, m.SeriesAttempts, m.ValidatorRejects,
		m.GatewayRequests, m.GatewayLatency, m.CircuitState, m.IncidentsTotal)
	return m
}

// NewLogger builds the shared zerolog.Logger on stderr: console-writer when
// pretty is true (dev), structured JSON otherwise (prod), matching the teacher's
// cmd/cryptorun/main.go initialization pattern.
func NewLogger(pretty bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if pretty {
		return log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// SystemContext is the ambient bundle every component receives at
// construction. No component performs lazy first-use initialization of a
// client; marketdataplaned builds one SystemContext at boot. It holds
// nothing that needs closing; store handles are passed to components
// separately and closed by the CLI at shutdown.
type SystemContext struct {
	Log     zerolog.Logger
	Metrics *Metrics
	Started time.Time
}

func New(pretty bool) *SystemContext {
	return &SystemContext{
		Log:     NewLogger(pretty),
		Metrics: NewMetrics(),
		Started: time.Now(),
	}
}

func (c *SystemContext) UptimeSeconds() float64 {
	return time.Since(c.Started).Seconds()
}
