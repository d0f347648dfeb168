package listquery

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/pitabwire/opsdesk/model"
)

// Timeframe dropdown values.
const (
	TimeframeToday = "today"
	Timeframe7d    = "7d"
	Timeframe30d   = "30d"
	Timeframe90d   = "90d"
	TimeframeYear  = "year"
)

var timeframeWindows = map[string]time.Duration{
	Timeframe7d:  7 * 24 * time.Hour,
	Timeframe30d: 30 * 24 * time.Hour,
	Timeframe90d: 90 * 24 * time.Hour,
}

// MatchTab reports whether rec belongs to the active tab.
func MatchTab(cfg Config, state model.FilterState, rec model.Record) bool {
	cfg = cfg.withDefaults()
	if state.ActiveTab == "" || state.ActiveTab == model.TabAll {
		return true
	}
	return rec.Field(cfg.TabField) == state.ActiveTab
}

// MatchDropdown reports whether rec passes the dropdown axis. Values the
// screen does not declare, or the mode does not understand, match everything.
func MatchDropdown(cfg Config, state model.FilterState, rec model.Record) bool {
	cfg = cfg.withDefaults()
	value := state.DropdownFilter
	if value == "" || value == model.FilterAll {
		return true
	}
	if len(cfg.DropdownOptions) > 0 && !slices.Contains(cfg.DropdownOptions, value) {
		return true
	}

	switch cfg.DropdownMode {
	case model.DropdownModeTimeframe:
		since, ok := TimeframeStart(value, cfg.Now())
		if !ok {
			return true
		}
		key, ok := ParseSortKey(rec.Field(cfg.DropdownField), model.SortKindDate)
		if !ok {
			return false
		}
		return key >= float64(since.Unix())
	case model.DropdownModeEquals:
		return rec.Field(cfg.DropdownField) == value
	default:
		return true
	}
}

// MatchSearch reports whether any search field contains the trimmed query,
// ignoring case. An empty query matches everything.
func MatchSearch(cfg Config, state model.FilterState, rec model.Record) bool {
	cfg = cfg.withDefaults()
	q := strings.ToLower(strings.TrimSpace(state.SearchQuery))
	if q == "" {
		return true
	}
	for _, f := range cfg.SearchFields {
		if strings.Contains(strings.ToLower(rec.Field(f)), q) {
			return true
		}
	}
	return false
}

// Matches is the conjunction of the tab, dropdown and search predicates.
func Matches(cfg Config, state model.FilterState, rec model.Record) bool {
	return MatchTab(cfg, state, rec) &&
		MatchDropdown(cfg, state, rec) &&
		MatchSearch(cfg, state, rec)
}

// TimeframeStart returns the earliest instant a timeframe value admits,
// relative to now. Unknown values report false.
func TimeframeStart(value string, now time.Time) (time.Time, bool) {
	switch value {
	case TimeframeToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
	case TimeframeYear:
		return now.AddDate(-1, 0, 0), true
	}
	if w, ok := timeframeWindows[value]; ok {
		return now.Add(-w), true
	}
	return time.Time{}, false
}

// negInf is the key given to values that cannot be parsed.
var negInf = math.Inf(-1)
