package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pitabwire/opsdesk/internal/listquery"
	"github.com/pitabwire/opsdesk/internal/navigator"
	"github.com/pitabwire/opsdesk/model"
)

// snapshot is an immutable collection of all definitions indexed by ID.
type snapshot struct {
	domains  map[string]model.DomainDefinition
	screens  map[string]model.ScreenDefinition
	order    []string
	checksum string
}

// Registry is a read-optimized, thread-safe store of all loaded definitions.
// It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given definitions.
func NewRegistry(defs []model.DomainDefinition) *Registry {
	r := &Registry{}
	r.Replace(defs)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given definitions. Sessions already open keep the screen
// definition they were created with.
func (r *Registry) Replace(defs []model.DomainDefinition) {
	s := &snapshot{
		domains: make(map[string]model.DomainDefinition, len(defs)),
		screens: make(map[string]model.ScreenDefinition),
	}

	var checksumParts []string

	for _, def := range defs {
		s.domains[def.Domain] = def
		checksumParts = append(checksumParts, def.Checksum)

		for _, sc := range def.Screens {
			sc.Domain = def.Domain
			if _, dup := s.screens[sc.ID]; !dup {
				s.order = append(s.order, sc.ID)
			}
			s.screens[sc.ID] = sc
		}
	}
	sort.Strings(s.order)

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// GetDomain returns the domain definition with the given ID.
func (r *Registry) GetDomain(domainID string) (model.DomainDefinition, bool) {
	d, ok := r.current().domains[domainID]
	return d, ok
}

// GetScreen returns the screen definition with the given ID.
func (r *Registry) GetScreen(screenID string) (model.ScreenDefinition, bool) {
	sc, ok := r.current().screens[screenID]
	return sc, ok
}

// AllScreens returns every screen definition ordered by ID.
func (r *Registry) AllScreens() []model.ScreenDefinition {
	s := r.current()
	out := make([]model.ScreenDefinition, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.screens[id])
	}
	return out
}

// Summaries returns the short screen listing ordered by ID.
func (r *Registry) Summaries() []model.ScreenSummary {
	screens := r.AllScreens()
	out := make([]model.ScreenSummary, 0, len(screens))
	for _, sc := range screens {
		out = append(out, model.ScreenSummary{ID: sc.ID, Domain: sc.Domain, Title: sc.Title})
	}
	return out
}

// Checksum returns the combined checksum of all loaded definitions.
func (r *Registry) Checksum() string {
	return r.current().checksum
}

// Describe resolves a screen definition into the descriptor sent to the
// frontend. sessionsPath is the route that opens a session on the screen.
func Describe(def model.ScreenDefinition, sessionsPath string) model.ScreenDescriptor {
	desc := model.ScreenDescriptor{
		ID:           def.ID,
		Domain:       def.Domain,
		Title:        def.Title,
		PageSize:     def.PageSize,
		Tabs:         describeOptions(def.Tabs),
		SearchFields: def.SearchFields,
		DefaultSort:  def.Sort.Default,
		MaxDepth:     def.MaxDepth,
		Paginated:    IsPaginated(def),
		SessionsPath: sessionsPath,
	}
	if desc.PageSize < 1 {
		desc.PageSize = listquery.DefaultPageSize
	}
	if desc.DefaultSort == "" {
		desc.DefaultSort = model.SortNewest
	}
	if desc.MaxDepth < 1 {
		desc.MaxDepth = navigator.DefaultMaxDepth
	}
	if len(desc.Tabs) == 0 {
		desc.Tabs = []model.OptionDescriptor{{Label: "All", Value: model.TabAll}}
	}
	if def.Dropdown != nil {
		mode := def.Dropdown.Mode
		if mode == "" {
			mode = model.DropdownModeEquals
		}
		desc.Dropdown = &model.FilterDescriptor{
			Field:   def.Dropdown.Field,
			Label:   def.Dropdown.Label,
			Mode:    mode,
			Options: describeOptions(def.Dropdown.Options),
		}
	}
	for _, v := range def.Views {
		desc.Views = append(desc.Views, model.ViewDescriptor{Name: v.Name, Kind: v.Kind, Label: v.Label, RecordOptional: v.RecordOptional})
	}
	return desc
}

// IsPaginated reports whether the screen's data source pages server-side.
func IsPaginated(def model.ScreenDefinition) bool {
	switch def.DataSource.Type {
	case model.DataSourcePostgres:
		return true
	case model.DataSourceHTTP:
		return def.DataSource.ServerPaging
	}
	return false
}

func describeOptions(opts []model.OptionDefinition) []model.OptionDescriptor {
	if len(opts) == 0 {
		return nil
	}
	out := make([]model.OptionDescriptor, len(opts))
	for i, o := range opts {
		out[i] = model.OptionDescriptor{Label: o.Label, Value: o.Value}
	}
	return out
}
