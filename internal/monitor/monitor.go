// Package monitor implements the Health & Self-Heal Monitor (§4.F): a
// fixed-period ticker that classifies per-series health from the age of
// each series' latest stored observation, computes coverage, and escalates once — idempotently
// — when the system falls below its critical coverage threshold. The
// atomic escalation-file write is grounded on the teacher's
// internal/artifacts.AtomicWriter (temp file + os.Rename).
package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sawpanic/marketdataplane/internal/config"
	"github.com/sawpanic/marketdataplane/internal/domain"
	"github.com/sawpanic/marketdataplane/internal/platform"
	"github.com/sawpanic/marketdataplane/internal/storage"
)

// SeriesStatus is one series' classification on a monitor tick.
type SeriesStatus string

const (
	StatusOK   SeriesStatus = "OK"
	StatusWarn SeriesStatus = "WARN"
	StatusFail SeriesStatus = "FAIL"
)

// Snapshot is the result of one monitor tick, kept in memory for the
// Gateway's /health endpoint and for tests.
type Snapshot struct {
	Taken        time.Time
	PerSeries    map[string]SeriesStatus
	CoverageAll  float64
	CoverageCat  map[domain.Category]float64
	Escalated    bool
}

// Monitor polls Storage on a fixed period and maintains escalation state.
type Monitor struct {
	sysctx  *platform.SystemContext
	catalog *config.Catalog
	store   *storage.Store
	period  time.Duration
	critCov float64
	escDir  string

	mu             sync.Mutex
	last           Snapshot
	criticalFails  map[string]int // series_key -> consecutive FAIL ticks
	escalationOpen bool
}

func New(sysctx *platform.SystemContext, catalog *config.Catalog, store *storage.Store) *Monitor {
	period := catalog.Runtime.MonitorPeriod
	if period <= 0 {
		period = 60 * time.Second
	}
	critCov := catalog.Runtime.CriticalCoverage
	if critCov <= 0 {
		critCov = 0.8
	}
	escDir := catalog.Runtime.EscalationDir
	if escDir == "" {
		escDir = "escalations"
	}
	return &Monitor{
		sysctx:        sysctx,
		catalog:       catalog,
		store:         store,
		period:        period,
		critCov:       critCov,
		escDir:        escDir,
		criticalFails: make(map[string]int),
	}
}

func (m *Monitor) log() *zerolog.Logger { return &m.sysctx.Log }

// Run blocks, ticking every m.period until ctx is cancelled. The caller runs
// this in its own goroutine (cmd/marketdataplaned wires it alongside the
// scheduler's cycle loop and the gateway's HTTP server).
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick implements one pass of §4.F: classify every series, compute
// coverage, and escalate if the rule fires.
func (m *Monitor) Tick(ctx context.Context) Snapshot {
	now := time.Now().UTC()
	perSeries := make(map[string]SeriesStatus, len(m.catalog.SeriesOrder))
	catTotals := make(map[domain.Category]int)
	catOK := make(map[domain.Category]int)
	var okCount int

	var failingCritical []string

	for _, key := range m.catalog.SeriesOrder {
		d := m.catalog.Series[key]
		status := m.classify(ctx, d, now)
		perSeries[key] = status

		catTotals[d.Category]++
		if status == StatusOK {
			okCount++
			catOK[d.Category]++
		}

		m.mu.Lock()
		if status == StatusFail && d.Critical {
			m.criticalFails[key]++
			if m.criticalFails[key] >= 2 {
				failingCritical = append(failingCritical, key)
			}
		} else {
			m.criticalFails[key] = 0
		}
		m.mu.Unlock()
	}

	coverageAll := 1.0
	if len(perSeries) > 0 {
		coverageAll = float64(okCount) / float64(len(perSeries))
	}
	coverageByCat := make(map[domain.Category]float64, len(catTotals))
	for cat, total := range catTotals {
		if total == 0 {
			continue
		}
		coverageByCat[cat] = float64(catOK[cat]) / float64(total)
	}

	escalated := m.maybeEscalate(ctx, now, coverageAll, failingCritical, perSeries)

	snap := Snapshot{
		Taken:       now,
		PerSeries:   perSeries,
		CoverageAll: coverageAll,
		CoverageCat: coverageByCat,
		Escalated:   escalated,
	}

	m.mu.Lock()
	m.last = snap
	m.mu.Unlock()

	return snap
}

// classify compares the age of a series' latest stored observation against
// its own max_staleness to produce one of OK/WARN/FAIL; validation history
// and incidents are not consulted.
func (m *Monitor) classify(ctx context.Context, d domain.SeriesDescriptor, now time.Time) SeriesStatus {
	obs, found, err := m.store.GetLatest(ctx, d.SeriesKey)
	if err != nil || !found {
		return StatusFail
	}
	age := now.Sub(obs.Timestamp)
	switch {
	case age <= d.MaxStaleness:
		return StatusOK
	case age <= 2*d.MaxStaleness:
		return StatusWarn
	default:
		return StatusFail
	}
}

// flagFileName and diagnosisFileName are the two fixed-path artifacts §4.F
// and §6 require: the flag file's mere existence (containing the open
// incident_id) signals "escalation open", and the diagnosis document sits
// next to it as the single current human-readable report — both are
// overwritten in place, never accumulated per-escalation.
const (
	flagFileName      = "escalation.flag"
	diagnosisFileName = "diagnosis.txt"
)

// maybeEscalate implements §4.F's escalation rule: global coverage below
// the critical threshold, or any CRITICAL series FAILing for two
// consecutive ticks, emits a single open ESCALATION incident. Idempotent —
// it will not re-emit while one is already open (P6).
func (m *Monitor) maybeEscalate(ctx context.Context, now time.Time, coverageAll float64, failingCritical []string, perSeries map[string]SeriesStatus) bool {
	trigger := coverageAll < m.critCov || len(failingCritical) > 0

	m.mu.Lock()
	alreadyOpen := m.escalationOpen
	m.mu.Unlock()

	if !trigger {
		return alreadyOpen
	}
	if alreadyOpen {
		return true
	}

	incidentID := uuid.NewString()
	summary := m.buildSummary(now, coverageAll, failingCritical, perSeries)

	inc := domain.Incident{
		IncidentID: incidentID,
		Kind:       domain.IncidentEscalation,
		DetectedAt: now,
		Detail:     summary,
	}
	if err := m.store.RecordIncident(ctx, inc); err != nil {
		m.log().Error().Err(err).Msg("failed to record escalation incident")
		return alreadyOpen
	}
	m.sysctx.Metrics.IncidentsTotal.WithLabelValues(string(domain.IncidentEscalation)).Inc()

	if err := m.writeDiagnosisDoc(summary); err != nil {
		m.log().Error().Err(err).Msg("failed to write escalation diagnosis document")
	}
	if err := m.writeFlagFile(incidentID); err != nil {
		m.log().Error().Err(err).Msg("failed to write escalation flag file")
	}

	m.mu.Lock()
	m.escalationOpen = true
	m.mu.Unlock()

	return true
}

// ResolveEscalation clears the open-escalation latch once coverage has
// recovered; cmd/marketdataplaned or an operator can call this after
// confirming recovery. Not automatic: §4.F only specifies emission, not
// auto-resolution. Removing the flag file is what makes "file exists"
// correctly mean "escalation open" again on the next incident.
func (m *Monitor) ResolveEscalation(ctx context.Context, incidentID string) error {
	if err := m.store.ResolveIncident(ctx, incidentID, time.Now().UTC()); err != nil {
		return err
	}
	if err := os.Remove(m.flagPath()); err != nil && !os.IsNotExist(err) {
		m.log().Error().Err(err).Msg("failed to remove escalation flag file")
	}
	m.mu.Lock()
	m.escalationOpen = false
	m.mu.Unlock()
	return nil
}

func (m *Monitor) flagPath() string      { return filepath.Join(m.escDir, flagFileName) }
func (m *Monitor) diagnosisPath() string { return filepath.Join(m.escDir, diagnosisFileName) }

func (m *Monitor) buildSummary(now time.Time, coverageAll float64, failingCritical []string, perSeries map[string]SeriesStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "escalation at %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "coverage_all=%.2f critical_threshold=%.2f\n", coverageAll, m.critCov)
	fmt.Fprintf(&b, "failing_critical=%v\n", failingCritical)
	b.WriteString("series_status:\n")
	for _, key := range m.catalog.SeriesOrder {
		status, ok := perSeries[key]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "  %s: %s\n", key, status)
	}
	return b.String()
}

// writeDiagnosisDoc persists the plain-text diagnosis atomically: write to a
// .tmp sibling, then os.Rename over the fixed final path, so a reader never
// observes a partial write and each re-escalation overwrites the single
// current copy — grounded on the teacher's AtomicWriter.writeJSONAtomic.
func (m *Monitor) writeDiagnosisDoc(summary string) error {
	return m.writeAtomic(m.diagnosisPath(), []byte(summary))
}

// writeFlagFile persists the open incident_id as the flag file's entire
// contents; its existence is what "escalation open" means on disk.
func (m *Monitor) writeFlagFile(incidentID string) error {
	return m.writeAtomic(m.flagPath(), []byte(incidentID))
}

func (m *Monitor) writeAtomic(finalPath string, data []byte) error {
	if err := os.MkdirAll(m.escDir, 0o755); err != nil {
		return fmt.Errorf("monitor: ensure escalation dir: %w", err)
	}
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("monitor: write temp file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("monitor: rename into place: %w", err)
	}
	return nil
}

// CoveragePct implements gateway.HealthSource.
func (m *Monitor) CoveragePct() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last.CoverageAll
}

// LastSnapshot returns the most recent tick's result, for tests and CLI
// inspection.
func (m *Monitor) LastSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
