package model

// ViewKind is the structural role of a panel in a drill-down workflow.
type ViewKind string

const (
	ViewList       ViewKind = "list"
	ViewDetail     ViewKind = "detail"
	ViewSubDetail  ViewKind = "sub_detail"
	ViewActionForm ViewKind = "action_form"
)

// Valid reports whether k is one of the known view kinds.
func (k ViewKind) Valid() bool {
	switch k {
	case ViewList, ViewDetail, ViewSubDetail, ViewActionForm:
		return true
	}
	return false
}

// ViewStackEntry describes the panel currently on screen. Name is the
// workflow-specific view (order_detail, refund, invoice...) and Record is nil
// for the list. Item optionally names a sub-element of the record, such as a
// product line shown in a sub-detail panel.
type ViewStackEntry struct {
	Kind   ViewKind `json:"kind"`
	Name   string   `json:"name"`
	Record *Record  `json:"record,omitempty"`
	Item   string   `json:"item,omitempty"`
}

// ListEntry returns the root entry of every workflow.
func ListEntry() ViewStackEntry {
	return ViewStackEntry{Kind: ViewList, Name: string(ViewList)}
}

// IsList reports whether the entry is the list root.
func (e ViewStackEntry) IsList() bool {
	return e.Kind == ViewList
}

// ScreenStatus describes the data-loading state of a screen.
type ScreenStatus string

const (
	ScreenIdle    ScreenStatus = "idle"
	ScreenLoading ScreenStatus = "loading"
	ScreenReady   ScreenStatus = "ready"
	ScreenError   ScreenStatus = "error"
)
