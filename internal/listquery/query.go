package listquery

import (
	"github.com/pitabwire/opsdesk/model"
)

// Engine computes derived views for one screen. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	cfg Config
}

// New creates an engine with the given configuration.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// PageSize returns the effective page size.
func (e *Engine) PageSize() int { return e.cfg.PageSize }

// Query filters, sorts and paginates all according to state. It never mutates
// all and returns an empty single-page view for empty input.
func (e *Engine) Query(all []model.Record, state model.FilterState) model.DerivedView {
	filtered := make([]model.Record, 0, len(all))
	for _, r := range all {
		if Matches(e.cfg, state, r) {
			filtered = append(filtered, r)
		}
	}
	sorted := SortRecords(filtered, e.cfg, state.SortOrder)
	return paginate(sorted, state.CurrentPage, e.cfg.PageSize)
}

// FromServerPage builds a view from a page the data source already filtered,
// sorted and sliced. The returned totals are trusted as-is.
func (e *Engine) FromServerPage(result model.FetchResult, state model.FilterState) model.DerivedView {
	return FromServerPage(result, state, e.cfg.PageSize)
}

// TabCounts counts, for every tab value plus model.TabAll, how many records
// pass the dropdown and search predicates with that tab selected.
func (e *Engine) TabCounts(all []model.Record, state model.FilterState, tabs []string) map[string]int {
	counts := make(map[string]int, len(tabs)+1)
	counts[model.TabAll] = 0
	for _, t := range tabs {
		counts[t] = 0
	}
	for _, r := range all {
		if !MatchDropdown(e.cfg, state, r) || !MatchSearch(e.cfg, state, r) {
			continue
		}
		counts[model.TabAll]++
		tab := r.Field(e.cfg.TabField)
		if _, ok := counts[tab]; ok && tab != model.TabAll {
			counts[tab]++
		}
	}
	return counts
}

// FromServerPage builds a view from a server-paginated fetch result.
func FromServerPage(result model.FetchResult, state model.FilterState, pageSize int) model.DerivedView {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	totalPages := result.TotalPages
	if totalPages < 1 {
		totalPages = TotalPages(result.Total, pageSize)
	}
	total := result.Total
	if total < len(result.Records) {
		total = len(result.Records)
	}

	records := result.Records
	if len(records) > pageSize {
		records = records[:pageSize]
	}
	visible := make([]model.Record, len(records))
	copy(visible, records)

	return model.DerivedView{
		VisibleRecords:     visible,
		TotalFilteredCount: total,
		TotalPages:         totalPages,
		CurrentPage:        ClampPage(state.CurrentPage, totalPages),
	}
}

// TotalPages is max(1, ceil(n/pageSize)).
func TotalPages(n, pageSize int) int {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if n <= 0 {
		return 1
	}
	return (n + pageSize - 1) / pageSize
}

// ClampPage snaps a page outside [1, totalPages] back to 1.
func ClampPage(page, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 || page > totalPages {
		return 1
	}
	return page
}

func paginate(sorted []model.Record, page, pageSize int) model.DerivedView {
	totalPages := TotalPages(len(sorted), pageSize)
	page = ClampPage(page, totalPages)

	start := (page - 1) * pageSize
	end := min(start+pageSize, len(sorted))
	visible := make([]model.Record, 0, end-start)
	visible = append(visible, sorted[start:end]...)

	return model.DerivedView{
		VisibleRecords:     visible,
		TotalFilteredCount: len(sorted),
		TotalPages:         totalPages,
		CurrentPage:        page,
	}
}
