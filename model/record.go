package model

import (
	"encoding/json"
	"fmt"
)

// Well-known record field names. Any other name is looked up in Attributes.
const (
	FieldID      = "id"
	FieldStatus  = "status"
	FieldSortKey = "sort_key"
)

// Record is one listable entity (order, bid, transaction, withdrawal, wallet).
// The engine treats records as immutable snapshots.
type Record struct {
	ID         string            `yaml:"id"         json:"id"`
	Status     string            `yaml:"status"     json:"status"`
	SortKey    string            `yaml:"sort_key"   json:"sort_key"`
	Attributes map[string]string `yaml:"attributes" json:"attributes,omitempty"`
}

// Field returns the value of the named field, or "" if the record has none.
func (r Record) Field(name string) string {
	switch name {
	case FieldID:
		return r.ID
	case FieldStatus:
		return r.Status
	case FieldSortKey:
		return r.SortKey
	}
	if r.Attributes == nil {
		return ""
	}
	return r.Attributes[name]
}

// SortOrder is the direction of the list ordering.
type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
)

// Sentinel filter values that disable an axis.
const (
	TabAll    = "all"
	FilterAll = "all"
)

// FilterState is the tab/dropdown/search/sort/page selection driving a list view.
// Changing any field other than CurrentPage resets CurrentPage to 1.
type FilterState struct {
	ActiveTab      string    `json:"active_tab"`
	DropdownFilter string    `json:"dropdown_filter"`
	SearchQuery    string    `json:"search_query"`
	SortOrder      SortOrder `json:"sort_order"`
	CurrentPage    int       `json:"current_page"`
}

// DerivedView is the computed visible slice of records for a FilterState.
type DerivedView struct {
	VisibleRecords     []Record `json:"visible_records"`
	TotalFilteredCount int      `json:"total_filtered_count"`
	TotalPages         int      `json:"total_pages"`
	CurrentPage        int      `json:"current_page"`
}

// EmptyView returns the explicit empty view: no rows, one page.
func EmptyView() DerivedView {
	return DerivedView{
		VisibleRecords: []Record{},
		TotalPages:     1,
		CurrentPage:    1,
	}
}

// PageItem is one entry of a page window: either a page number or an
// ellipsis marker.
type PageItem struct {
	Page     int
	Ellipsis bool
}

// PageNumber returns a numeric page item.
func PageNumber(n int) PageItem { return PageItem{Page: n} }

// EllipsisItem returns an ellipsis marker.
func EllipsisItem() PageItem { return PageItem{Ellipsis: true} }

const ellipsisToken = "ellipsis"

// MarshalJSON encodes a page number as a JSON number and an ellipsis as the
// string "ellipsis".
func (p PageItem) MarshalJSON() ([]byte, error) {
	if p.Ellipsis {
		return json.Marshal(ellipsisToken)
	}
	return json.Marshal(p.Page)
}

// UnmarshalJSON accepts a JSON number or the string "ellipsis".
func (p *PageItem) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != ellipsisToken {
			return fmt.Errorf("page item: unexpected string %q", s)
		}
		*p = EllipsisItem()
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("page item: %w", err)
	}
	*p = PageNumber(n)
	return nil
}

// String renders the item the way a pagination control labels it.
func (p PageItem) String() string {
	if p.Ellipsis {
		return "…"
	}
	return fmt.Sprintf("%d", p.Page)
}

// FetchRequest is what a screen asks its data source for.
type FetchRequest struct {
	ScreenID string
	Filters  FilterState
	Page     int
	PageSize int
}

// FetchResult is a data source response. Sources that return the full
// unfiltered set leave Total and TotalPages at zero.
type FetchResult struct {
	Records    []Record `json:"data"`
	Total      int      `json:"total"`
	TotalPages int      `json:"total_pages"`
}
