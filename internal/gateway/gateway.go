// Package gateway implements the Read API Gateway (§4.E): a uniform HTTP
// façade over cache -> store -> upstream-fallback that every dashboard
// consumes. Routing uses github.com/gorilla/mux, the router the chosen
// teacher ships, and response contracts are plain structs with their own
// json tags, one per endpoint, matching §6 literally.
package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/sawpanic/marketdataplane/internal/analytics"
	"github.com/sawpanic/marketdataplane/internal/config"
	"github.com/sawpanic/marketdataplane/internal/domain"
	"github.com/sawpanic/marketdataplane/internal/platform"
	"github.com/sawpanic/marketdataplane/internal/scheduler"
	"github.com/sawpanic/marketdataplane/internal/storage"
)

// HealthSource lets the Gateway's /health endpoint report the Monitor's
// coverage without importing the monitor package directly — the same
// narrow-capability pattern as scheduler.FetchRequester.
type HealthSource interface {
	CoveragePct() float64
}

// Gateway writes no observations itself: new readings reach Storage only
// through FetchRequester. Its one direct write is caching the correlation
// snapshot it computes.
type Gateway struct {
	sysctx    *platform.SystemContext
	catalog   *config.Catalog
	store     *storage.Store
	requester scheduler.FetchRequester
	health    HealthSource

	ipLimiters sync.Map // remote IP -> *rate.Limiter
}

func New(sysctx *platform.SystemContext, catalog *config.Catalog, store *storage.Store, requester scheduler.FetchRequester, health HealthSource) *Gateway {
	return &Gateway{sysctx: sysctx, catalog: catalog, store: store, requester: requester, health: health}
}

func (g *Gateway) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(g.metricsMiddleware)
	r.Use(g.rateLimitMiddleware)
	r.HandleFunc("/health", g.handleHealth).Methods(http.MethodGet).Name("health")
	r.HandleFunc("/api/market/quote/{series_key}", g.handleQuote).Methods(http.MethodGet).Name("quote")
	r.HandleFunc("/api/market/symbol/{series_key}", g.handleSymbol).Methods(http.MethodGet).Name("symbol")
	r.HandleFunc("/api/economic/series/{series_key}", g.handleEconomicSeries).Methods(http.MethodGet).Name("economic_series")
	r.HandleFunc("/api/analytics/correlations", g.handleCorrelations).Methods(http.MethodGet).Name("correlations")
	r.HandleFunc("/api/market/narrative", g.handleNarrative).Methods(http.MethodGet).Name("narrative")
	r.HandleFunc("/api/recession-probability", g.handleRecessionProbability).Methods(http.MethodGet).Name("recession_probability")
	r.HandleFunc("/api/system/incidents", g.handleIncidents).Methods(http.MethodGet).Name("incidents")
	return r
}

// metricsMiddleware records per-route request counts and latency (§2.1 row
// I: "gateway latency, and circuit/rate-limit state").
func (g *Gateway) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := routeLabel(r)
		g.sysctx.Metrics.GatewayLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		g.sysctx.Metrics.GatewayRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

// statusRecorder captures the status code a handler wrote, since
// http.ResponseWriter doesn't expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if name := route.GetName(); name != "" {
			return name
		}
	}
	return r.URL.Path
}

// rateLimitMiddleware implements the per-client-IP token bucket (§4.E): 429
// on excess, default 100 req/min (config: gateway_rate_limit_per_min).
func (g *Gateway) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		limit := g.catalog.Runtime.GatewayRateLimit
		limiterVal, _ := g.ipLimiters.LoadOrStore(ip, rate.NewLimiter(rate.Limit(float64(limit)/60.0), limit))
		limiter := limiterVal.(*rate.Limiter)
		if !limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "RATE_LIMITED"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// --- /health -----------------------------------------------------------

type healthResponse struct {
	Status      string  `json:"status"`
	UptimeS     float64 `json:"uptime_s"`
	CoveragePct float64 `json:"coverage_pct,omitempty"`
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", UptimeS: g.sysctx.UptimeSeconds()}
	if g.health != nil {
		resp.CoveragePct = g.health.CoveragePct()
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- /api/market/quote/{series_key} -------------------------------------

type quoteResponse struct {
	SeriesKey   string     `json:"series_key"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	Value       *float64   `json:"value,omitempty"`
	ChangeAbs   *float64   `json:"change_abs,omitempty"`
	ChangePct   *float64   `json:"change_pct,omitempty"`
	ChangePct5D *float64   `json:"change_pct_5d,omitempty"`
	SourceID    string     `json:"source_id,omitempty"`
	Stale       *bool      `json:"stale,omitempty"`
	Error       string     `json:"error,omitempty"`
	Missing     bool       `json:"missing,omitempty"`
}

func (g *Gateway) handleQuote(w http.ResponseWriter, r *http.Request) {
	seriesKey := mux.Vars(r)["series_key"]
	d, ok := g.catalog.Series[seriesKey]
	if !ok {
		writeJSON(w, http.StatusNotFound, quoteResponse{SeriesKey: seriesKey, Error: "UNKNOWN_SERIES", Missing: true})
		return
	}

	obs, found := g.resolveFresh(r.Context(), seriesKey, d)
	if !found {
		writeJSON(w, http.StatusOK, quoteResponse{SeriesKey: seriesKey, Error: "UNAVAILABLE", Missing: true})
		return
	}

	stale := obs.ValidationFlags.Has(domain.FlagStale) || time.Since(obs.Timestamp) > d.MaxStaleness
	ts := obs.Timestamp
	val := obs.Value
	writeJSON(w, http.StatusOK, quoteResponse{
		SeriesKey:   seriesKey,
		Timestamp:   &ts,
		Value:       &val,
		ChangeAbs:   obs.ChangeAbs,
		ChangePct:   obs.ChangePct,
		ChangePct5D: obs.ChangePct5D,
		SourceID:    obs.SourceID,
		Stale:       &stale,
	})
}

// resolveFresh implements the Gateway's cache -> store -> fetch_now policy
// (§4.E steps 2-3, §2 data flow): serve from Storage; if missing or staler
// than the series' max_staleness, ask the Scheduler for a tight-deadline
// on-demand fetch through FetchRequester; otherwise serve the best
// available (possibly stale) reading rather than fabricate one.
func (g *Gateway) resolveFresh(ctx context.Context, seriesKey string, d domain.SeriesDescriptor) (domain.Observation, bool) {
	obs, found, err := g.store.GetLatest(ctx, seriesKey)
	if err == nil && found && time.Since(obs.Timestamp) <= d.MaxStaleness && !obs.ValidationFlags.Has(domain.FlagStale) {
		return obs, true
	}

	if g.requester != nil {
		deadline := g.catalog.Runtime.FetchNowDeadline
		if deadline <= 0 {
			deadline = 3 * time.Second
		}
		fresh, fetchErr := g.requester.FetchNow(ctx, seriesKey, deadline)
		if fetchErr == nil {
			return fresh, true
		}
	}

	return obs, found
}

// --- /api/market/symbol/{series_key} ------------------------------------

type symbolResponse struct {
	SeriesKey    string              `json:"series_key"`
	Observations []domain.Observation `json:"observations"`
}

func (g *Gateway) handleSymbol(w http.ResponseWriter, r *http.Request) {
	seriesKey := mux.Vars(r)["series_key"]
	if _, ok := g.catalog.Series[seriesKey]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"series_key": seriesKey, "error": "UNKNOWN_SERIES"})
		return
	}

	t0, t1, err := parseRangeWindow(r.URL.Query().Get("range"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "PARAM_INVALID", "detail": "invalid range"})
		return
	}

	rows, err := g.store.GetRange(r.Context(), seriesKey, t0, t1)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "UNAVAILABLE"})
		return
	}
	writeJSON(w, http.StatusOK, symbolResponse{SeriesKey: seriesKey, Observations: rows})
}

// parseRangeWindow parses the range query parameter ("30d", "90d", ...); an
// empty value defaults to the last 30 days. The "interval" query parameter
// is not read: rows come back at their stored granularity.
func parseRangeWindow(rangeParam string) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	if rangeParam == "" {
		return now.Add(-30 * 24 * time.Hour), now, nil
	}
	dur, err := parseDayRange(rangeParam)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return now.Add(-dur), now, nil
}

func parseDayRange(s string) (time.Duration, error) {
	if len(s) < 2 || s[len(s)-1] != 'd' {
		return 0, errInvalidRange
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, errInvalidRange
	}
	return time.Duration(n) * 24 * time.Hour, nil
}

var errInvalidRange = &rangeError{}

type rangeError struct{}

func (*rangeError) Error() string { return "invalid range parameter" }

// --- /api/economic/series/{series_key} ----------------------------------

func (g *Gateway) handleEconomicSeries(w http.ResponseWriter, r *http.Request) {
	seriesKey := mux.Vars(r)["series_key"]
	if _, ok := g.catalog.Series[seriesKey]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"series_key": seriesKey, "error": "UNKNOWN_SERIES"})
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	rows, err := g.store.GetRange(r.Context(), seriesKey, time.Time{}, time.Now().UTC())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "UNAVAILABLE"})
		return
	}

	// GetRange returns ascending; the endpoint contract is newest-first.
	reversed := make([]domain.Observation, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		reversed = append(reversed, rows[i])
		if len(reversed) >= limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, symbolResponse{SeriesKey: seriesKey, Observations: reversed})
}

// --- /api/analytics/correlations -----------------------------------------

func (g *Gateway) handleCorrelations(w http.ResponseWriter, r *http.Request) {
	window := r.URL.Query().Get("window")
	if window == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "PARAM_INVALID", "detail": "window is required"})
		return
	}

	if snap, found, err := g.store.GetCorrelationSnapshot(r.Context(), window); err == nil && found {
		writeJSON(w, http.StatusOK, snap)
		return
	}

	dur, err := parseDayRange(window)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "PARAM_INVALID", "detail": "invalid window"})
		return
	}

	var histories []analytics.SeriesHistory
	t1 := time.Now().UTC()
	t0 := t1.Add(-dur)
	for _, key := range g.catalog.SeriesOrder {
		rows, err := g.store.GetRange(r.Context(), key, t0, t1)
		if err != nil || len(rows) == 0 {
			continue
		}
		values := make([]float64, len(rows))
		for i, row := range rows {
			values[i] = row.Value
		}
		histories = append(histories, analytics.SeriesHistory{SeriesKey: key, Values: values})
	}

	snap := analytics.CorrelationMatrix(window, histories)
	_ = g.store.PutCorrelationSnapshot(r.Context(), snap)
	writeJSON(w, http.StatusOK, snap)
}

// --- /api/market/narrative -----------------------------------------------

// narrativeBasket names the risk-proxy series the classifier reads; series
// absent from the catalog are skipped rather than treated as an error, so
// deployments with a partial catalog still get a regime computed from the
// series that are present (confidence is not reduced for the missing ones).
var narrativeBasket = []string{"SPY", "VIX", "GLD", "DXY"}

func (g *Gateway) handleNarrative(w http.ResponseWriter, r *http.Request) {
	var inputs []analytics.NarrativeInput
	for _, key := range narrativeBasket {
		if _, ok := g.catalog.Series[key]; !ok {
			continue
		}
		obs, found, err := g.store.GetLatest(r.Context(), key)
		if err != nil || !found || obs.ChangePct == nil {
			continue
		}
		inputs = append(inputs, analytics.NarrativeInput{SeriesKey: key, ChangePct: *obs.ChangePct})
	}

	result := analytics.ClassifyNarrative(inputs)
	writeJSON(w, http.StatusOK, result)
}

// --- /api/recession-probability -------------------------------------------

// These are the FRED-equivalent series keys the composite reads (S5); a
// deployment's config must declare series under these exact keys for the
// endpoint to resolve data.
const (
	seriesDGS10 = "DGS10"
	seriesDTB3  = "DTB3"
)

func (g *Gateway) handleRecessionProbability(w http.ResponseWriter, r *http.Request) {
	var missing []string

	dgs10, ok := g.requireFreshValue(r.Context(), seriesDGS10)
	if !ok {
		missing = append(missing, seriesDGS10)
	}
	dtb3, ok := g.requireFreshValue(r.Context(), seriesDTB3)
	if !ok {
		missing = append(missing, seriesDTB3)
	}

	if len(missing) > 0 {
		writeJSON(w, http.StatusOK, map[string]any{"error": "INSUFFICIENT_DATA", "missing": missing})
		return
	}

	result := analytics.ComposeRecessionProbability(dgs10, dtb3)
	writeJSON(w, http.StatusOK, result)
}

func (g *Gateway) requireFreshValue(ctx context.Context, seriesKey string) (float64, bool) {
	d, ok := g.catalog.Series[seriesKey]
	if !ok {
		return 0, false
	}
	obs, found, err := g.store.GetLatest(ctx, seriesKey)
	if err != nil || !found {
		return 0, false
	}
	if time.Since(obs.Timestamp) > d.MaxStaleness || obs.ValidationFlags.Has(domain.FlagStale) {
		return 0, false
	}
	return obs.Value, true
}

// --- /api/system/incidents -------------------------------------------------

func (g *Gateway) handleIncidents(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "PARAM_INVALID", "detail": "since must be RFC 3339"})
			return
		}
		since = parsed
	}

	incidents, err := g.store.GetIncidentsSince(r.Context(), since)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "UNAVAILABLE"})
		return
	}
	writeJSON(w, http.StatusOK, incidents)
}
