// Package validate implements the Validator (§4.C): a pure function over a
// candidate Observation and its Series Descriptor, applying five ordered
// rules. Grounded on the teacher's internal/data/validate package — the
// timestamp-skew classification of staleness.go and the placeholder/
// corruption detection of anomaly.go, here driven per-observation by the
// Series Descriptor's own sanity range rather than a rolling statistical
// window, since the spec's rules are deterministic, not session-relative.
package validate

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sawpanic/marketdataplane/internal/domain"
	"github.com/sawpanic/marketdataplane/internal/errkind"
)

// Result is the outcome of validating one Candidate.
type Result struct {
	Accepted    bool
	Observation domain.Observation
	RejectKind  errkind.Kind
	Detail      string
}

// Options configures bypass mode. SkipValidation implements §4.G's
// degraded-mode override: rules 2-4 (authenticity, sanity range, pattern
// heuristic) are suppressed, Presence (null rejection) and the rule-5 stale
// flag still apply, and the accepted Observation is flagged FlagBypass.
type Options struct {
	SkipValidation bool
	// PlaceholderRunLength is the minimum count of identical consecutive
	// decimal digits that marks a value PLACEHOLDER_SUSPECT (rule 4).
	PlaceholderRunLength int
	// Now lets callers pin "current cycle" time for deterministic tests;
	// zero means time.Now().
	Now time.Time
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now().UTC()
	}
	return o.Now
}

// KnownSourceSet names every source_id declared in the loaded catalog, used
// by rule 2 (Authenticity).
type KnownSourceSet map[string]bool

// Validate applies the five ordered rules from §4.C to c against d, per
// the current cycle's KnownSourceSet and the Validator's Options.
func Validate(c domain.Candidate, d domain.SeriesDescriptor, sources KnownSourceSet, opts Options) Result {
	now := opts.now()

	// Rule 1 — Presence. This rule is NEVER bypassed: bypass mode still
	// rejects NULL_VALUE unconditionally (§7, §9.1).
	if c.Value == nil || math.IsNaN(*c.Value) || math.IsInf(*c.Value, 0) {
		return reject(errkind.NullValue, "primary numeric field is null, NaN, or infinite")
	}
	value := *c.Value

	if !opts.SkipValidation {
		// Rule 2 — Authenticity tag.
		if !sources[c.SourceID] {
			return reject(errkind.UntrustedSource, "source_id not present in configured catalog")
		}
		if c.FetchTime.IsZero() || c.FetchTime.After(now.Add(time.Second)) {
			return reject(errkind.UntrustedSource, "fetch_time not within the current cycle")
		}

		// Rule 3 — Sanity range.
		if !d.InRange(value) {
			return reject(errkind.OutOfRange, "value outside configured sanity range")
		}

		// Rule 4 — Pattern heuristic.
		if isPlaceholderSuspect(value, d, opts.PlaceholderRunLength) {
			return reject(errkind.PlaceholderSuspect, "value matches a known placeholder pattern")
		}
	}

	// Rule 5 — Freshness for "latest". Stale observations are still
	// accepted and stored; they are simply flagged and ineligible to
	// become the new "latest" (enforced by the Storage Layer's write
	// path, not here).
	var flags domain.ValidationFlag
	if opts.SkipValidation {
		flags |= domain.FlagBypass
	}
	if now.Sub(c.Timestamp) > d.MaxStaleness {
		flags |= domain.FlagStale
	}

	obs := domain.Observation{
		SeriesKey:       c.SeriesKey,
		Timestamp:       c.Timestamp,
		Value:           value,
		Open:            c.Open,
		High:            c.High,
		Low:             c.Low,
		Close:           c.Close,
		Volume:          c.Volume,
		ChangeAbs:       c.ChangeAbs,
		ChangePct:       c.ChangePct,
		ChangePct5D:     c.ChangePct5D,
		Unit:            c.Unit,
		SourceID:        c.SourceID,
		FetchTime:       c.FetchTime,
		ValidationFlags: flags,
	}

	return Result{Accepted: true, Observation: obs}
}

func reject(kind errkind.Kind, detail string) Result {
	return Result{Accepted: false, RejectKind: kind, Detail: detail}
}

// isPlaceholderSuspect flags exact-zero values for series configured with a
// strictly-positive lower bound, and values whose fractional digits repeat
// the same digit runLength times or more (e.g. 668.8888888), the same two
// heuristics the teacher's anomaly checker applies, adapted to run against
// a single reading instead of a rolling window.
func isPlaceholderSuspect(value float64, d domain.SeriesDescriptor, runLength int) bool {
	if runLength <= 0 {
		runLength = 6
	}
	if d.SanityLo != nil && *d.SanityLo > 0 && value == 0 {
		return true
	}
	return hasRepeatingDigitRun(value, runLength)
}

func hasRepeatingDigitRun(value float64, runLength int) bool {
	frac := math.Abs(value - math.Trunc(value))
	if frac == 0 {
		return false
	}
	s := trimTrailingZeros(value)
	if len(s) < runLength {
		return false
	}
	run := 1
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1] {
			run++
			if run >= runLength {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// trimTrailingZeros returns value's fractional digits from the shortest
// decimal form that round-trips to the same float64, so binary
// representation noise (668.81 stored as 668.80999999999994...) never shows
// up as a digit run.
func trimTrailingZeros(value float64) string {
	s := strconv.FormatFloat(math.Abs(value), 'f', -1, 64)
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		return s[dot+1:]
	}
	return ""
}
