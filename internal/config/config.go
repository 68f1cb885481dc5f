// Package config loads the data plane's single declarative YAML document:
// runtime knobs, the source catalog, and the series catalog. The loader
// shape — ReadFile, yaml.Unmarshal, then an explicit Validate() — follows
// the teacher's internal/config/providers.go.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/marketdataplane/internal/domain"
)

// RuntimeConfig holds the top-level knobs from §4.G.
type RuntimeConfig struct {
	RefreshPeriodPrice time.Duration `yaml:"refresh_period_price"`
	RefreshPeriodMacro time.Duration `yaml:"refresh_period_macro"`
	SuccessThreshold   float64       `yaml:"success_threshold"`
	MonitorPeriod      time.Duration `yaml:"monitor_period"`
	GatewayPort        int           `yaml:"gateway_port"`
	GatewayRateLimit   int           `yaml:"gateway_rate_limit_per_min"`
	SkipValidation     bool          `yaml:"skip_validation"`
	WorkerPoolSize     int           `yaml:"worker_pool_size"`
	CycleBudget        time.Duration `yaml:"cycle_budget"`
	FetchNowDeadline   time.Duration `yaml:"fetch_now_deadline"`
	CriticalCoverage   float64       `yaml:"critical_coverage_threshold"`
	EscalationDir      string        `yaml:"escalation_dir"`
	HotStoreAddr       string        `yaml:"hot_store_addr"`
	DurableStoreDSN    string        `yaml:"durable_store_dsn"`
}

// Document is the root of the YAML config file.
type Document struct {
	Runtime RuntimeConfig               `yaml:"runtime"`
	Sources []domain.SourceDescriptor   `yaml:"sources"`
	Series  []domain.SeriesDescriptor   `yaml:"series"`
}

// Catalog is the boot-validated, indexed view of a loaded Document; every
// other component is constructed from a *Catalog rather than re-parsing
// YAML.
type Catalog struct {
	Runtime RuntimeConfig
	Sources map[string]domain.SourceDescriptor
	Series  map[string]domain.SeriesDescriptor
	// SeriesOrder preserves the declaration order from the YAML file so
	// scheduler cycles iterate deterministically.
	SeriesOrder []string
}

// Load reads path, parses it as YAML, and validates it. A validation failure
// is a hard startup error per §4.G.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	distinctSources := make(map[string]struct{}, len(doc.Sources))
	for _, s := range doc.Sources {
		distinctSources[s.SourceID] = struct{}{}
	}
	applyDefaults(&doc.Runtime, len(distinctSources))

	cat := &Catalog{
		Runtime: doc.Runtime,
		Sources: make(map[string]domain.SourceDescriptor, len(doc.Sources)),
		Series:  make(map[string]domain.SeriesDescriptor, len(doc.Series)),
	}
	for _, s := range doc.Sources {
		cat.Sources[s.SourceID] = s
	}
	for _, s := range doc.Series {
		cat.Series[s.SeriesKey] = s
		cat.SeriesOrder = append(cat.SeriesOrder, s.SeriesKey)
	}

	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}

	return cat, nil
}

func applyDefaults(r *RuntimeConfig, sourceCount int) {
	if r.RefreshPeriodPrice <= 0 {
		r.RefreshPeriodPrice = 900 * time.Second
	}
	if r.RefreshPeriodMacro <= 0 {
		r.RefreshPeriodMacro = 3600 * time.Second
	}
	if r.SuccessThreshold <= 0 {
		r.SuccessThreshold = 0.8
	}
	if r.MonitorPeriod <= 0 {
		r.MonitorPeriod = 60 * time.Second
	}
	if r.GatewayRateLimit <= 0 {
		r.GatewayRateLimit = 100
	}
	if r.WorkerPoolSize <= 0 {
		r.WorkerPoolSize = sourceCount
	}
	if r.WorkerPoolSize <= 0 {
		r.WorkerPoolSize = 1
	}
	if r.CycleBudget <= 0 {
		r.CycleBudget = 120 * time.Second
	}
	if r.FetchNowDeadline <= 0 {
		r.FetchNowDeadline = 3 * time.Second
	}
	if r.CriticalCoverage <= 0 {
		r.CriticalCoverage = 0.8
	}
}

// Validate enforces §4.G's boot-time rules: every series' adapter order must
// reference declared sources, and every CRITICAL series needs >= 2 adapters
// (ties to B1: zero adapters is always rejected).
func (c *Catalog) Validate() error {
	if c.Runtime.SuccessThreshold <= 0 || c.Runtime.SuccessThreshold > 1 {
		return fmt.Errorf("runtime.success_threshold must be in (0,1], got %f", c.Runtime.SuccessThreshold)
	}
	if c.Runtime.CriticalCoverage <= 0 || c.Runtime.CriticalCoverage > 1 {
		return fmt.Errorf("runtime.critical_coverage_threshold must be in (0,1], got %f", c.Runtime.CriticalCoverage)
	}

	for id, src := range c.Sources {
		if src.BaseURL == "" {
			return fmt.Errorf("source %s: base_url cannot be empty", id)
		}
		if src.RateLimitPerWindow <= 0 {
			return fmt.Errorf("source %s: rate_limit_per_window must be positive", id)
		}
		if src.Concurrency <= 0 {
			return fmt.Errorf("source %s: concurrency must be positive", id)
		}
	}

	for key, s := range c.Series {
		if len(s.AdapterOrder) == 0 {
			return fmt.Errorf("series %s: adapter_order cannot be empty (B1)", key)
		}
		if s.Critical && len(s.AdapterOrder) < 2 {
			return fmt.Errorf("series %s: critical series must declare >= 2 adapters, got %d", key, len(s.AdapterOrder))
		}
		for _, srcID := range s.AdapterOrder {
			if _, ok := c.Sources[srcID]; !ok {
				return fmt.Errorf("series %s: adapter_order references undeclared source %q", key, srcID)
			}
		}
		if s.MaxStaleness <= 0 {
			return fmt.Errorf("series %s: max_staleness must be positive", key)
		}
		if s.RefreshPeriod <= 0 {
			return fmt.Errorf("series %s: refresh_period must be positive", key)
		}
	}

	return nil
}

// SourcesFor returns the resolved SourceDescriptor for each entry in the
// series' AdapterOrder, in order. It assumes Validate already passed.
func (c *Catalog) SourcesFor(s domain.SeriesDescriptor) []domain.SourceDescriptor {
	out := make([]domain.SourceDescriptor, 0, len(s.AdapterOrder))
	for _, id := range s.AdapterOrder {
		out = append(out, c.Sources[id])
	}
	return out
}
