// Package domain holds the data-plane's core entities: Observation, the
// immutable descriptors loaded from config, Incidents, and the reports the
// scheduler and monitor produce. These are plain structs with json tags —
// no behavior beyond small predicates lives here.
package domain

import "time"

// ValidationFlag is a single bit in an Observation's validation_flags bitset.
type ValidationFlag uint32

const (
	FlagNone      ValidationFlag = 0
	FlagStale     ValidationFlag = 1 << 0
	FlagBypass    ValidationFlag = 1 << 1
	FlagDuplicate ValidationFlag = 1 << 2
)

func (f ValidationFlag) Has(bit ValidationFlag) bool { return f&bit != 0 }

// Category enumerates the series categories from the Series Descriptor.
type Category string

const (
	CategoryIndex      Category = "index"
	CategoryCommodity  Category = "commodity"
	CategoryCrypto     Category = "crypto"
	CategoryForex      Category = "forex"
	CategoryTreasury   Category = "treasury"
	CategoryVolatility Category = "volatility"
	CategoryEconomic   Category = "economic"
	CategorySector     Category = "sector"
	CategoryCustom     Category = "custom"
)

// Candidate is what an adapter hands to the Validator: a not-yet-accepted
// reading. Value is a pointer so "upstream sent nothing for this field" is
// distinguishable from "upstream sent zero" — the Validator's Presence rule
// depends on that distinction and the system must never paper over it with
// a synthetic 0.
type Candidate struct {
	SeriesKey   string    `json:"series_key"`
	Timestamp   time.Time `json:"timestamp"`
	Value       *float64  `json:"value"`
	Open        *float64  `json:"open,omitempty"`
	High        *float64  `json:"high,omitempty"`
	Low         *float64  `json:"low,omitempty"`
	Close       *float64  `json:"close,omitempty"`
	Volume      *float64  `json:"volume,omitempty"`
	ChangeAbs   *float64  `json:"change_abs,omitempty"`
	ChangePct   *float64  `json:"change_pct,omitempty"`
	ChangePct5D *float64  `json:"change_pct_5d,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	SourceID    string    `json:"source_id"`
	FetchTime   time.Time `json:"fetch_time"`
}

// Observation is one measurement the Validator has accepted: Value is
// guaranteed present and finite.
type Observation struct {
	SeriesKey       string         `json:"series_key" db:"series_key"`
	Timestamp       time.Time      `json:"timestamp" db:"timestamp"`
	Value           float64        `json:"value" db:"value"`
	Open            *float64       `json:"open,omitempty" db:"open"`
	High            *float64       `json:"high,omitempty" db:"high"`
	Low             *float64       `json:"low,omitempty" db:"low"`
	Close           *float64       `json:"close,omitempty" db:"close"`
	Volume          *float64       `json:"volume,omitempty" db:"volume"`
	ChangeAbs       *float64       `json:"change_abs,omitempty" db:"change_abs"`
	ChangePct       *float64       `json:"change_pct,omitempty" db:"change_pct"`
	ChangePct5D     *float64       `json:"change_pct_5d,omitempty" db:"change_pct_5d"`
	Unit            string         `json:"unit,omitempty" db:"unit"`
	SourceID        string         `json:"source_id" db:"source_id"`
	FetchTime       time.Time      `json:"fetch_time" db:"fetch_time"`
	ValidationFlags ValidationFlag `json:"validation_flags" db:"validation_flags"`
}

// SeriesDescriptor is immutable config-loaded metadata about one series.
type SeriesDescriptor struct {
	SeriesKey      string        `yaml:"series_key"`
	Name           string        `yaml:"name"`
	Category       Category      `yaml:"category"`
	AdapterOrder   []string      `yaml:"adapter_order"`
	MaxStaleness   time.Duration `yaml:"max_staleness"`
	SanityLo       *float64      `yaml:"sanity_lo"`
	SanityHi       *float64      `yaml:"sanity_hi"`
	RefreshPeriod  time.Duration `yaml:"refresh_period"`
	Critical       bool          `yaml:"critical"`
}

// InRange reports whether v satisfies the descriptor's sanity bounds. Either
// bound may be nil, meaning unbounded on that side.
func (d SeriesDescriptor) InRange(v float64) bool {
	if d.SanityLo != nil && v < *d.SanityLo {
		return false
	}
	if d.SanityHi != nil && v > *d.SanityHi {
		return false
	}
	return true
}

// AuthMode enumerates how a Source authenticates with its upstream.
type AuthMode string

const (
	AuthNone         AuthMode = "none"
	AuthAPIKeyHeader AuthMode = "api-key-header"
	AuthAPIKeyQuery  AuthMode = "api-key-query"
)

// CostClass distinguishes free from metered/paid upstreams.
type CostClass string

const (
	CostFree CostClass = "free"
	CostPaid CostClass = "paid"
)

// SourceDescriptor is immutable config-loaded metadata about one adapter's
// upstream provider.
type SourceDescriptor struct {
	SourceID            string        `yaml:"source_id"`
	BaseURL             string        `yaml:"base_url"`
	AuthMode            AuthMode      `yaml:"auth_mode"`
	APIKeyEnv           string        `yaml:"api_key_env"`
	RateLimitPerWindow  int           `yaml:"rate_limit_per_window"`
	RateLimitWindow     time.Duration `yaml:"rate_limit_window"`
	Timeout             time.Duration `yaml:"timeout"`
	Concurrency         int           `yaml:"concurrency"`
	CostClass           CostClass     `yaml:"cost_class"`
	SupportedCategories []Category    `yaml:"supported_categories"`
}

// Supports reports whether this source's adapter is offered for cat.
func (d SourceDescriptor) Supports(cat Category) bool {
	for _, c := range d.SupportedCategories {
		if c == cat {
			return true
		}
	}
	return false
}

// IncidentKind enumerates the kinds of Incident rows the system records.
type IncidentKind string

const (
	IncidentFetchFail          IncidentKind = "FETCH_FAIL"
	IncidentValidationFail     IncidentKind = "VALIDATION_FAIL"
	IncidentStale              IncidentKind = "STALE"
	IncidentCoverageDegraded   IncidentKind = "COVERAGE_DEGRADED"
	IncidentEscalation         IncidentKind = "ESCALATION"
)

// Incident is an append-only record of a fault; only ResolvedAt is ever
// mutated after creation, and only to move it from nil to a timestamp.
type Incident struct {
	IncidentID string       `json:"incident_id" db:"incident_id"`
	SeriesKey  *string      `json:"series_key,omitempty" db:"series_key"`
	SourceID   *string      `json:"source_id,omitempty" db:"source_id"`
	Kind       IncidentKind `json:"kind" db:"kind"`
	DetectedAt time.Time    `json:"detected_at" db:"detected_at"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty" db:"resolved_at"`
	Detail     string       `json:"detail" db:"detail"`
}

// SeriesAttemptResult is the per-series outcome of one scheduler cycle.
type SeriesAttemptResult string

const (
	AttemptOK         SeriesAttemptResult = "OK"
	AttemptFallbackOK SeriesAttemptResult = "FALLBACK_OK"
	AttemptFail       SeriesAttemptResult = "FAIL"
)

// CycleReport summarizes one pass of the scheduler over due series.
type CycleReport struct {
	Start          time.Time                      `json:"start"`
	End            time.Time                      `json:"end"`
	Attempts       map[string]SeriesAttemptResult `json:"attempts"`
	SuccessRate    float64                         `json:"success_rate"`
	FailedSeries   []string                        `json:"failed_series"`
	CriticalOK     bool                            `json:"critical_ok"`
	Bypass         bool                            `json:"bypass"`
	Incomplete     []string                        `json:"incomplete,omitempty"`
}

// CorrelationSnapshot is a derived, cached Pearson correlation matrix over a
// configured asset universe for one lookback window.
type CorrelationSnapshot struct {
	Window     string      `json:"window"`
	Assets     []string    `json:"assets"`
	Matrix     [][]*float64 `json:"matrix"`
	ComputedAt time.Time   `json:"computed_at"`
}
