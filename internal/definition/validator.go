package definition

import (
	"fmt"
	"time"

	"github.com/pitabwire/opsdesk/internal/listquery"
	"github.com/pitabwire/opsdesk/model"
)

// maxPageSize bounds page_size in definitions.
const maxPageSize = 200

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator validates definitions structurally and referentially.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all definitions. Screen IDs must be unique across every
// domain because sessions are opened by screen ID alone.
func (v *Validator) Validate(defs []model.DomainDefinition) []VError {
	var errs []VError
	seen := make(map[string]string)
	for i, def := range defs {
		prefix := fmt.Sprintf("definitions[%d]", i)
		errs = append(errs, v.validateDomain(prefix, def)...)

		for j, sc := range def.Screens {
			if sc.ID == "" {
				continue
			}
			if other, dup := seen[sc.ID]; dup {
				errs = append(errs, VError{
					Path:    fmt.Sprintf("%s.screens[%d].id", prefix, j),
					Code:    "DUPLICATE_ID",
					Message: fmt.Sprintf("screen %q already declared at %s", sc.ID, other),
				})
				continue
			}
			seen[sc.ID] = fmt.Sprintf("%s.screens[%d]", prefix, j)
		}
	}
	return errs
}

func (v *Validator) validateDomain(prefix string, def model.DomainDefinition) []VError {
	var errs []VError

	if def.Domain == "" {
		errs = append(errs, VError{Path: prefix + ".domain", Code: "REQUIRED", Message: "domain is required"})
	}
	if def.Version == "" {
		errs = append(errs, VError{Path: prefix + ".version", Code: "REQUIRED", Message: "version is required"})
	}
	if len(def.Screens) == 0 {
		errs = append(errs, VError{Path: prefix + ".screens", Code: "REQUIRED", Message: "at least one screen is required"})
	}

	for i, sc := range def.Screens {
		sp := fmt.Sprintf("%s.screens[%d]", prefix, i)
		errs = append(errs, v.validateScreen(sp, sc)...)
	}

	return errs
}

func (v *Validator) validateScreen(prefix string, sc model.ScreenDefinition) []VError {
	var errs []VError

	if sc.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if sc.Title == "" {
		errs = append(errs, VError{Path: prefix + ".title", Code: "REQUIRED", Message: "title is required"})
	}
	if sc.PageSize < 0 || sc.PageSize > maxPageSize {
		errs = append(errs, VError{Path: prefix + ".page_size", Code: "RANGE", Message: fmt.Sprintf("page_size must be 0-%d", maxPageSize)})
	}
	if sc.MaxDepth < 0 {
		errs = append(errs, VError{Path: prefix + ".max_depth", Code: "RANGE", Message: "max_depth must not be negative"})
	}

	tabValues := make(map[string]bool)
	for i, tab := range sc.Tabs {
		tp := fmt.Sprintf("%s.tabs[%d]", prefix, i)
		if tab.Value == "" {
			errs = append(errs, VError{Path: tp + ".value", Code: "REQUIRED", Message: "tab value is required"})
		} else if tabValues[tab.Value] {
			errs = append(errs, VError{Path: tp + ".value", Code: "DUPLICATE_ID", Message: fmt.Sprintf("tab %q declared twice", tab.Value)})
		}
		tabValues[tab.Value] = true
	}

	switch sc.Sort.Kind {
	case "", model.SortKindDate, model.SortKindNumber:
	default:
		errs = append(errs, VError{Path: prefix + ".sort.kind", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid sort kind %q", sc.Sort.Kind)})
	}
	switch sc.Sort.Default {
	case "", model.SortNewest, model.SortOldest:
	default:
		errs = append(errs, VError{Path: prefix + ".sort.default", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid sort order %q", sc.Sort.Default)})
	}

	if sc.Dropdown != nil {
		errs = append(errs, v.validateDropdown(prefix+".dropdown", sc)...)
	}

	viewNames := make(map[string]bool)
	for i, view := range sc.Views {
		vp := fmt.Sprintf("%s.views[%d]", prefix, i)
		if view.Name == "" {
			errs = append(errs, VError{Path: vp + ".name", Code: "REQUIRED", Message: "view name is required"})
		} else if viewNames[view.Name] {
			errs = append(errs, VError{Path: vp + ".name", Code: "DUPLICATE_ID", Message: fmt.Sprintf("view %q declared twice", view.Name)})
		}
		viewNames[view.Name] = true

		switch {
		case !view.Kind.Valid():
			errs = append(errs, VError{Path: vp + ".kind", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid view kind %q", view.Kind)})
		case view.Kind == model.ViewList:
			errs = append(errs, VError{Path: vp + ".kind", Code: "INVALID_ENUM", Message: "the list view is implicit and cannot be declared"})
		}
	}

	errs = append(errs, v.validateDataSource(prefix+".data_source", sc)...)

	return errs
}

func (v *Validator) validateDropdown(prefix string, sc model.ScreenDefinition) []VError {
	var errs []VError
	dd := sc.Dropdown

	switch dd.Mode {
	case "", model.DropdownModeEquals:
	case model.DropdownModeTimeframe:
		for i, opt := range dd.Options {
			if opt.Value == model.FilterAll {
				continue
			}
			if _, ok := listquery.TimeframeStart(opt.Value, time.Now()); !ok {
				errs = append(errs, VError{
					Path:    fmt.Sprintf("%s.options[%d].value", prefix, i),
					Code:    "INVALID_ENUM",
					Message: fmt.Sprintf("unknown timeframe %q", opt.Value),
				})
			}
		}
		if sc.DataSource.Type == model.DataSourcePostgres && dd.Field != "" && dd.Field != sortField(sc) {
			errs = append(errs, VError{
				Path:    prefix + ".field",
				Code:    "UNSUPPORTED",
				Message: "postgres timeframe filters must use the sort field",
			})
		}
	default:
		errs = append(errs, VError{Path: prefix + ".mode", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid dropdown mode %q", dd.Mode)})
	}

	for i, opt := range dd.Options {
		if opt.Value == "" {
			errs = append(errs, VError{Path: fmt.Sprintf("%s.options[%d].value", prefix, i), Code: "REQUIRED", Message: "option value is required"})
		}
	}

	return errs
}

func (v *Validator) validateDataSource(prefix string, sc model.ScreenDefinition) []VError {
	var errs []VError
	ds := sc.DataSource

	switch ds.Type {
	case "", model.DataSourceStatic:
	case model.DataSourceHTTP:
		if ds.BaseURL == "" {
			errs = append(errs, VError{Path: prefix + ".base_url", Code: "REQUIRED", Message: "base_url is required for http sources"})
		}
	case model.DataSourcePostgres:
	default:
		errs = append(errs, VError{Path: prefix + ".type", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid data source type %q", ds.Type)})
	}

	if ds.Cache != nil && ds.Cache.TTL != "" {
		if d, err := time.ParseDuration(ds.Cache.TTL); err != nil || d <= 0 {
			errs = append(errs, VError{Path: prefix + ".cache.ttl", Code: "INVALID_VALUE", Message: fmt.Sprintf("invalid cache ttl %q", ds.Cache.TTL)})
		}
	}

	return errs
}

func sortField(sc model.ScreenDefinition) string {
	if sc.Sort.Field == "" {
		return model.FieldSortKey
	}
	return sc.Sort.Field
}
