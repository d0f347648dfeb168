package listquery

import "github.com/pitabwire/opsdesk/model"

// DefaultFilterState is the state a freshly opened list screen starts in.
func DefaultFilterState() model.FilterState {
	return model.FilterState{
		ActiveTab:      model.TabAll,
		DropdownFilter: model.FilterAll,
		SortOrder:      model.SortNewest,
		CurrentPage:    1,
	}
}

// SetTab selects a tab and returns to page 1.
func SetTab(s model.FilterState, tab string) model.FilterState {
	s.ActiveTab = tab
	s.CurrentPage = 1
	return s
}

// SetDropdownFilter selects a dropdown value and returns to page 1.
func SetDropdownFilter(s model.FilterState, value string) model.FilterState {
	s.DropdownFilter = value
	s.CurrentPage = 1
	return s
}

// SetSearchQuery sets the search text and returns to page 1.
func SetSearchQuery(s model.FilterState, q string) model.FilterState {
	s.SearchQuery = q
	s.CurrentPage = 1
	return s
}

// SetSortOrder sets the ordering and returns to page 1.
func SetSortOrder(s model.FilterState, order model.SortOrder) model.FilterState {
	s.SortOrder = order
	s.CurrentPage = 1
	return s
}

// GoToPage moves to page, clamped into [1, totalPages].
func GoToPage(s model.FilterState, page, totalPages int) model.FilterState {
	if totalPages < 1 {
		totalPages = 1
	}
	s.CurrentPage = max(1, min(page, totalPages))
	return s
}

// NextPage advances one page; it is a no-op on the last page.
func NextPage(s model.FilterState, totalPages int) model.FilterState {
	return GoToPage(s, s.CurrentPage+1, totalPages)
}

// PrevPage goes back one page; it is a no-op on the first page.
func PrevPage(s model.FilterState, totalPages int) model.FilterState {
	return GoToPage(s, s.CurrentPage-1, totalPages)
}
