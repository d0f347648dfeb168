package listquery

import "github.com/pitabwire/opsdesk/model"

// Window thresholds for narrow and wide pagination controls.
const (
	CompactMaxVisible = 5
	FullMaxVisible    = 7
)

// Window returns the page buttons to render. When every page fits within
// maxVisible it lists them all; otherwise it shows the first page, the
// neighbors of currentPage and the last page, with an ellipsis for each gap.
func Window(currentPage, totalPages, maxVisible int) []model.PageItem {
	if totalPages < 1 {
		totalPages = 1
	}
	currentPage = max(1, min(currentPage, totalPages))

	if totalPages <= maxVisible {
		items := make([]model.PageItem, 0, totalPages)
		for p := 1; p <= totalPages; p++ {
			items = append(items, model.PageNumber(p))
		}
		return items
	}

	items := []model.PageItem{model.PageNumber(1)}
	if currentPage > 3 {
		items = append(items, model.EllipsisItem())
	}
	for p := max(2, currentPage-1); p <= min(totalPages-1, currentPage+1); p++ {
		items = append(items, model.PageNumber(p))
	}
	if currentPage < totalPages-2 {
		items = append(items, model.EllipsisItem())
	}
	return append(items, model.PageNumber(totalPages))
}

// CompactWindow is Window with the narrow-viewport threshold.
func CompactWindow(currentPage, totalPages int) []model.PageItem {
	return Window(currentPage, totalPages, CompactMaxVisible)
}

// FullWindow is Window with the wide-viewport threshold.
func FullWindow(currentPage, totalPages int) []model.PageItem {
	return Window(currentPage, totalPages, FullMaxVisible)
}
