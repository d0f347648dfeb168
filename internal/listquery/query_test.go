package listquery

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/opsdesk/model"
)

// sixteenOrders returns ORD-1001..ORD-1016 dated one day apart starting
// 2024-03-01, with ORD-1003, ORD-1008 and ORD-1013 cancelled.
func sixteenOrders() []model.Record {
	statuses := []string{"pending", "shipped", "delivered"}
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	out := make([]model.Record, 0, 16)
	for i := 1; i <= 16; i++ {
		status := statuses[i%len(statuses)]
		if i == 3 || i == 8 || i == 13 {
			status = "cancelled"
		}
		out = append(out, model.Record{
			ID:      fmt.Sprintf("ORD-%d", 1000+i),
			Status:  status,
			SortKey: base.AddDate(0, 0, i-1).Format(time.RFC3339),
			Attributes: map[string]string{
				"customer": fmt.Sprintf("Customer %02d", i),
			},
		})
	}
	return out
}

func ordersConfig() Config {
	return Config{
		DropdownField:   model.FieldStatus,
		DropdownOptions: []string{"pending", "shipped", "delivered", "cancelled"},
		SearchFields:    []string{model.FieldID, "customer"},
		PageSize:        5,
	}
}

func ids(records []model.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestQuery_firstPageNewest(t *testing.T) {
	e := New(ordersConfig())

	view := e.Query(sixteenOrders(), DefaultFilterState())

	assert.Equal(t, 16, view.TotalFilteredCount)
	assert.Equal(t, 4, view.TotalPages)
	assert.Equal(t, 1, view.CurrentPage)
	assert.Equal(t, []string{"ORD-1016", "ORD-1015", "ORD-1014", "ORD-1013", "ORD-1012"}, ids(view.VisibleRecords))
}

func TestQuery_dropdownResetsToFirstPage(t *testing.T) {
	e := New(ordersConfig())
	all := sixteenOrders()

	state := GoToPage(DefaultFilterState(), 3, 4)
	require.Equal(t, 3, state.CurrentPage)

	state = SetDropdownFilter(state, "cancelled")
	view := e.Query(all, state)

	assert.Equal(t, 1, state.CurrentPage)
	assert.Equal(t, 1, view.TotalPages)
	assert.Equal(t, 1, view.CurrentPage)
	assert.Equal(t, []string{"ORD-1013", "ORD-1008", "ORD-1003"}, ids(view.VisibleRecords))
}

func TestQuery_outOfRangePageSnapsToFirst(t *testing.T) {
	e := New(ordersConfig())
	state := DefaultFilterState()
	state.DropdownFilter = "cancelled"
	state.CurrentPage = 4

	view := e.Query(sixteenOrders(), state)

	assert.Equal(t, 1, view.CurrentPage)
	assert.Len(t, view.VisibleRecords, 3)
}

func TestQuery_lastPagePartial(t *testing.T) {
	e := New(ordersConfig())
	state := DefaultFilterState()
	state.CurrentPage = 4

	view := e.Query(sixteenOrders(), state)

	assert.Equal(t, []string{"ORD-1001"}, ids(view.VisibleRecords))
}

func TestQuery_pageSizeProperty(t *testing.T) {
	all := sixteenOrders()
	for _, size := range []int{1, 3, 5, 7, 16, 20} {
		cfg := ordersConfig()
		cfg.PageSize = size
		e := New(cfg)
		total := TotalPages(len(all), size)
		for page := 1; page <= total; page++ {
			state := DefaultFilterState()
			state.CurrentPage = page
			view := e.Query(all, state)
			if page < total {
				assert.Len(t, view.VisibleRecords, size, "size=%d page=%d", size, page)
			} else {
				assert.LessOrEqual(t, len(view.VisibleRecords), size, "size=%d page=%d", size, page)
				assert.NotEmpty(t, view.VisibleRecords)
			}
		}
	}
}

func TestQuery_emptyInput(t *testing.T) {
	e := New(ordersConfig())

	view := e.Query(nil, DefaultFilterState())

	assert.Empty(t, view.VisibleRecords)
	assert.NotNil(t, view.VisibleRecords)
	assert.Equal(t, 1, view.TotalPages)
	assert.Equal(t, 1, view.CurrentPage)
}

func TestQuery_idempotentAndNonMutating(t *testing.T) {
	e := New(ordersConfig())
	all := sixteenOrders()
	before := ids(all)

	state := SetSortOrder(DefaultFilterState(), model.SortOldest)
	first := e.Query(all, state)
	second := e.Query(all, state)

	assert.Equal(t, first, second)
	assert.Equal(t, before, ids(all))
}

func TestQuery_zeroPageSizeFallsBack(t *testing.T) {
	cfg := ordersConfig()
	cfg.PageSize = 0
	e := New(cfg)

	view := e.Query(sixteenOrders(), DefaultFilterState())

	assert.Equal(t, DefaultPageSize, e.PageSize())
	assert.Len(t, view.VisibleRecords, DefaultPageSize)
	assert.Equal(t, 2, view.TotalPages)
}

func TestQuery_searchAndTabCombine(t *testing.T) {
	e := New(ordersConfig())
	state := SetTab(DefaultFilterState(), "cancelled")
	state = SetSearchQuery(state, "  customer 08 ")

	view := e.Query(sixteenOrders(), state)

	assert.Equal(t, []string{"ORD-1008"}, ids(view.VisibleRecords))
}

func TestQuery_unparseableKeysSortOldest(t *testing.T) {
	e := New(Config{PageSize: 10})
	all := []model.Record{
		{ID: "a", SortKey: "not a date"},
		{ID: "b", SortKey: "2024-01-02"},
		{ID: "c", SortKey: ""},
		{ID: "d", SortKey: "Jan 5, 2024"},
	}

	newest := e.Query(all, DefaultFilterState())
	oldest := e.Query(all, SetSortOrder(DefaultFilterState(), model.SortOldest))

	assert.Equal(t, []string{"d", "b", "a", "c"}, ids(newest.VisibleRecords))
	assert.Equal(t, []string{"a", "c", "b", "d"}, ids(oldest.VisibleRecords))
}

func TestTabCounts(t *testing.T) {
	e := New(ordersConfig())
	state := SetTab(DefaultFilterState(), "shipped")

	counts := e.TabCounts(sixteenOrders(), state, []string{"pending", "shipped", "delivered", "cancelled"})

	assert.Equal(t, 16, counts[model.TabAll])
	assert.Equal(t, 3, counts["cancelled"])
	assert.Equal(t, 16, counts["pending"]+counts["shipped"]+counts["delivered"]+counts["cancelled"])
}

func TestFromServerPage(t *testing.T) {
	tests := []struct {
		name      string
		result    model.FetchResult
		page      int
		wantPages int
		wantPage  int
		wantRows  int
	}{
		{
			name:      "trusts total pages",
			result:    model.FetchResult{Records: sixteenOrders()[:5], Total: 42, TotalPages: 9},
			page:      9,
			wantPages: 9,
			wantPage:  9,
			wantRows:  5,
		},
		{
			name:      "derives pages from total",
			result:    model.FetchResult{Records: sixteenOrders()[:5], Total: 12},
			page:      2,
			wantPages: 3,
			wantPage:  2,
			wantRows:  5,
		},
		{
			name:      "truncates oversized page",
			result:    model.FetchResult{Records: sixteenOrders(), Total: 16, TotalPages: 4},
			page:      1,
			wantPages: 4,
			wantPage:  1,
			wantRows:  5,
		},
		{
			name:      "empty result",
			result:    model.FetchResult{},
			page:      3,
			wantPages: 1,
			wantPage:  1,
			wantRows:  0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := DefaultFilterState()
			state.CurrentPage = tt.page
			view := FromServerPage(tt.result, state, 5)
			assert.Equal(t, tt.wantPages, view.TotalPages)
			assert.Equal(t, tt.wantPage, view.CurrentPage)
			assert.Len(t, view.VisibleRecords, tt.wantRows)
		})
	}
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 1, TotalPages(0, 5))
	assert.Equal(t, 1, TotalPages(5, 5))
	assert.Equal(t, 2, TotalPages(6, 5))
	assert.Equal(t, 4, TotalPages(16, 5))
	assert.Equal(t, 2, TotalPages(11, 0))
}

func TestParseSortKey(t *testing.T) {
	tests := []struct {
		raw    string
		kind   string
		want   float64
		wantOK bool
	}{
		{"2024-01-02", model.SortKindDate, float64(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).Unix()), true},
		{"2024-01-02T10:00:00Z", model.SortKindDate, float64(time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC).Unix()), true},
		{"2024-01-02 10:00:00", model.SortKindDate, float64(time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC).Unix()), true},
		{"Jan 2, 2024", model.SortKindDate, float64(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).Unix()), true},
		{"01/02/2024", model.SortKindDate, float64(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).Unix()), true},
		{"yesterday", model.SortKindDate, math.Inf(-1), false},
		{"", model.SortKindDate, math.Inf(-1), false},
		{"$1,250.50", model.SortKindNumber, 1250.5, true},
		{"-42", model.SortKindNumber, -42, true},
		{"N/A", model.SortKindNumber, math.Inf(-1), false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseSortKey(tt.raw, tt.kind)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSortRecords_stableOnEqualKeys(t *testing.T) {
	all := []model.Record{
		{ID: "first", SortKey: "2024-01-01"},
		{ID: "second", SortKey: "2024-01-01"},
		{ID: "third", SortKey: "2024-01-01"},
	}

	for _, order := range []model.SortOrder{model.SortNewest, model.SortOldest, "sideways"} {
		got := SortRecords(all, Config{}, order)
		assert.Equal(t, []string{"first", "second", "third"}, ids(got), "order=%s", order)
	}
}

func TestSortRecords_numericKind(t *testing.T) {
	cfg := Config{SortField: "amount", SortKind: model.SortKindNumber}
	all := []model.Record{
		{ID: "small", Attributes: map[string]string{"amount": "$9.99"}},
		{ID: "large", Attributes: map[string]string{"amount": "$1,200.00"}},
		{ID: "mid", Attributes: map[string]string{"amount": "150"}},
	}

	got := SortRecords(all, cfg, model.SortNewest)

	assert.Equal(t, []string{"large", "mid", "small"}, ids(got))
}
