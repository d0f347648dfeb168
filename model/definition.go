package model

// DomainDefinition is the root structure of a definition file. Each file
// declares one back-office domain and its list screens.
type DomainDefinition struct {
	Domain  string             `yaml:"domain"  json:"domain"`
	Version string             `yaml:"version" json:"version"`
	Screens []ScreenDefinition `yaml:"screens" json:"screens,omitempty"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// ScreenDefinition declares one list screen: its filter axes, search fields,
// sort key, drill-down views, and data source.
type ScreenDefinition struct {
	ID           string               `yaml:"id"            json:"id"`
	Title        string               `yaml:"title"         json:"title"`
	PageSize     int                  `yaml:"page_size"     json:"page_size"`
	TabField     string               `yaml:"tab_field"     json:"tab_field,omitempty"`
	Tabs         []OptionDefinition   `yaml:"tabs"          json:"tabs,omitempty"`
	Dropdown     *DropdownDefinition  `yaml:"dropdown"      json:"dropdown,omitempty"`
	SearchFields []string             `yaml:"search_fields" json:"search_fields,omitempty"`
	Sort         SortDefinition       `yaml:"sort"          json:"sort"`
	Views        []ViewDefinition     `yaml:"views"         json:"views,omitempty"`
	MaxDepth     int                  `yaml:"max_depth"     json:"max_depth,omitempty"`
	AmountField  string               `yaml:"amount_field"  json:"amount_field,omitempty"`
	DataSource   DataSourceDefinition `yaml:"data_source"   json:"data_source"`

	// Domain is filled in by the registry from the enclosing definition.
	Domain string `yaml:"-" json:"domain"`
}

// OptionDefinition is a static label/value pair used by tabs and dropdowns.
type OptionDefinition struct {
	Label string `yaml:"label" json:"label"`
	Value string `yaml:"value" json:"value"`
}

// Dropdown filter modes.
const (
	DropdownModeEquals    = "eq"
	DropdownModeTimeframe = "timeframe"
)

// DropdownDefinition describes the independent dropdown filter axis.
type DropdownDefinition struct {
	Field   string             `yaml:"field"   json:"field"`
	Label   string             `yaml:"label"   json:"label"`
	Mode    string             `yaml:"mode"    json:"mode,omitempty"`
	Options []OptionDefinition `yaml:"options" json:"options,omitempty"`
}

// Sort key kinds.
const (
	SortKindDate   = "date"
	SortKindNumber = "number"
)

// SortDefinition names the sort key field and how to parse it.
type SortDefinition struct {
	Field   string    `yaml:"field"   json:"field,omitempty"`
	Kind    string    `yaml:"kind"    json:"kind"`
	Default SortOrder `yaml:"default" json:"default,omitempty"`
}

// ViewDefinition declares one drill-down panel a screen may show.
type ViewDefinition struct {
	Name  string   `yaml:"name"  json:"name"`
	Kind  ViewKind `yaml:"kind"  json:"kind"`
	Label string   `yaml:"label" json:"label,omitempty"`
	// RecordOptional lets the view open without a bound record, e.g. a
	// screen-wide summary. Other non-list views require one.
	RecordOptional bool `yaml:"record_optional" json:"record_optional,omitempty"`
}

// Data source types.
const (
	DataSourceStatic   = "static"
	DataSourceHTTP     = "http"
	DataSourcePostgres = "postgres"
)

// DataSourceDefinition describes where a screen's records come from.
type DataSourceDefinition struct {
	Type         string            `yaml:"type"          json:"type"`
	SeedFile     string            `yaml:"seed_file"     json:"seed_file,omitempty"`
	Records      []Record          `yaml:"records"       json:"-"`
	BaseURL      string            `yaml:"base_url"      json:"base_url,omitempty"`
	Path         string            `yaml:"path"          json:"path,omitempty"`
	ServerPaging bool              `yaml:"server_paging" json:"server_paging"`
	Mapping      ResponseMapping   `yaml:"mapping"       json:"mapping"`
	Cache        *CacheDefinition  `yaml:"cache"         json:"cache,omitempty"`
	Headers      map[string]string `yaml:"headers"       json:"-"`
}

// ResponseMapping locates records and pagination totals in a backend response.
type ResponseMapping struct {
	ItemsPath      string            `yaml:"items_path"       json:"items_path,omitempty"`
	TotalPath      string            `yaml:"total_path"       json:"total_path,omitempty"`
	TotalPagesPath string            `yaml:"total_pages_path" json:"total_pages_path,omitempty"`
	FieldMap       map[string]string `yaml:"field_map"        json:"field_map,omitempty"`
}

// CacheDefinition enables read-through caching of fetch results.
type CacheDefinition struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	TTL     string `yaml:"ttl"     json:"ttl,omitempty"`
}

// FindView returns the view definition with the given name.
func (s ScreenDefinition) FindView(name string) (ViewDefinition, bool) {
	for _, v := range s.Views {
		if v.Name == name {
			return v, true
		}
	}
	return ViewDefinition{}, false
}
