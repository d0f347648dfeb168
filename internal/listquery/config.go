// Package listquery implements the generic list query engine shared by every
// back-office list screen: filter predicates, the sort comparator, page
// clamping and the page window generator.
package listquery

import (
	"time"

	"github.com/pitabwire/opsdesk/model"
)

// DefaultPageSize is used when a screen declares no usable page size.
const DefaultPageSize = 10

// Config parameterizes the engine for one screen.
type Config struct {
	// TabField is the record field the tab axis compares against.
	TabField string
	// DropdownField is the record field the dropdown axis compares against.
	DropdownField string
	// DropdownMode is model.DropdownModeEquals or model.DropdownModeTimeframe.
	DropdownMode string
	// DropdownOptions restricts the accepted dropdown values. Empty accepts any.
	DropdownOptions []string
	// SearchFields are matched case-insensitively by the search query.
	SearchFields []string
	// SortField holds the sort key. Defaults to model.FieldSortKey.
	SortField string
	// SortKind is model.SortKindDate or model.SortKindNumber.
	SortKind string
	PageSize int
	// Now anchors timeframe filters. Defaults to time.Now.
	Now func() time.Time
}

// ConfigFromDefinition builds an engine config from a screen definition,
// filling defaults for anything the definition leaves out.
func ConfigFromDefinition(def model.ScreenDefinition) Config {
	cfg := Config{
		TabField:     def.TabField,
		SearchFields: append([]string(nil), def.SearchFields...),
		SortField:    def.Sort.Field,
		SortKind:     def.Sort.Kind,
		PageSize:     def.PageSize,
	}
	if def.Dropdown != nil {
		cfg.DropdownField = def.Dropdown.Field
		cfg.DropdownMode = def.Dropdown.Mode
		for _, opt := range def.Dropdown.Options {
			cfg.DropdownOptions = append(cfg.DropdownOptions, opt.Value)
		}
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.TabField == "" {
		c.TabField = model.FieldStatus
	}
	if c.DropdownMode == "" {
		c.DropdownMode = model.DropdownModeEquals
	}
	if len(c.SearchFields) == 0 {
		c.SearchFields = []string{model.FieldID}
	}
	if c.SortField == "" {
		c.SortField = model.FieldSortKey
	}
	if c.DropdownField == "" {
		c.DropdownField = model.FieldStatus
		if c.DropdownMode == model.DropdownModeTimeframe {
			c.DropdownField = c.SortField
		}
	}
	if c.SortKind == "" {
		c.SortKind = model.SortKindDate
	}
	if c.PageSize < 1 {
		c.PageSize = DefaultPageSize
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
