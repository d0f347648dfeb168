package model

// ScreenDescriptor is the resolved screen metadata sent to the frontend.
type ScreenDescriptor struct {
	ID           string             `json:"id"`
	Domain       string             `json:"domain"`
	Title        string             `json:"title"`
	PageSize     int                `json:"page_size"`
	Tabs         []OptionDescriptor `json:"tabs"`
	Dropdown     *FilterDescriptor  `json:"dropdown,omitempty"`
	SearchFields []string           `json:"search_fields,omitempty"`
	DefaultSort  SortOrder          `json:"default_sort"`
	Views        []ViewDescriptor   `json:"views,omitempty"`
	MaxDepth     int                `json:"max_depth"`
	Paginated    bool               `json:"paginated"`
	SessionsPath string             `json:"sessions_path"`
}

// OptionDescriptor is a resolved option for tabs and dropdowns.
type OptionDescriptor struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// FilterDescriptor describes the dropdown filter control.
type FilterDescriptor struct {
	Field   string             `json:"field"`
	Label   string             `json:"label"`
	Mode    string             `json:"mode"`
	Options []OptionDescriptor `json:"options,omitempty"`
}

// ViewDescriptor describes a drill-down panel.
type ViewDescriptor struct {
	Name           string   `json:"name"`
	Kind           ViewKind `json:"kind"`
	Label          string   `json:"label,omitempty"`
	RecordOptional bool     `json:"record_optional,omitempty"`
}

// ScreenState is everything the presentation layer needs to render one
// screen: rows, page buttons, current panel, open menu, and load status.
type ScreenState struct {
	SessionID     string         `json:"session_id,omitempty"`
	ScreenID      string         `json:"screen_id"`
	Filters       FilterState    `json:"filters"`
	View          DerivedView    `json:"view"`
	CompactWindow []PageItem     `json:"compact_window"`
	FullWindow    []PageItem     `json:"full_window"`
	TabCounts     map[string]int `json:"tab_counts,omitempty"`
	CurrentView   ViewStackEntry `json:"current_view"`
	ViewDepth     int            `json:"view_depth"`
	OpenMenuID    string         `json:"open_menu_id,omitempty"`
	Status        ScreenStatus   `json:"status"`
	Error         *ErrorEnvelope `json:"error,omitempty"`
	Paginated     bool           `json:"paginated"`
	Sequence      uint64         `json:"sequence"`
}

// ScreenSummary is a short entry in the screen listing.
type ScreenSummary struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
	Title  string `json:"title"`
}

// SessionResponse is returned when a screen session is opened.
type SessionResponse struct {
	SessionID string      `json:"session_id"`
	State     ScreenState `json:"state"`
}

// InvoiceLine is one derived invoice line in minor currency units.
type InvoiceLine struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitAmount  int64  `json:"unit_amount"`
	Amount      int64  `json:"amount"`
}

// Invoice is a display-only invoice derived from a record's total.
type Invoice struct {
	Number   string        `json:"number"`
	RecordID string        `json:"record_id"`
	Lines    []InvoiceLine `json:"lines"`
	Subtotal int64         `json:"subtotal"`
	Shipping int64         `json:"shipping"`
	Tax      int64         `json:"tax"`
	Total    int64         `json:"total"`
}
