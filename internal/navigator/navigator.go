// Package navigator implements the drill-down view stack and the open-menu
// state of a list screen.
package navigator

import (
	"fmt"

	"github.com/pitabwire/opsdesk/model"
)

// DefaultMaxDepth bounds the number of panels stacked above the list.
const DefaultMaxDepth = 3

// RecordResolver looks a record up in the current data snapshot.
type RecordResolver interface {
	Resolve(id string) (model.Record, bool)
}

// ResolverFunc adapts a function to RecordResolver.
type ResolverFunc func(id string) (model.Record, bool)

// Resolve calls f(id).
func (f ResolverFunc) Resolve(id string) (model.Record, bool) { return f(id) }

// Navigator is the view-stack state machine. List is the implicit root and
// is never stored; the stack holds only non-list panels. Not safe for
// concurrent use.
type Navigator struct {
	screenID string
	views    map[string]model.ViewDefinition
	maxDepth int
	stack    []model.ViewStackEntry
}

// New creates a navigator for the declared views of a screen. When views is
// empty, the generic view kinds (detail, sub_detail, action_form) are
// accepted as view names.
func New(screenID string, views []model.ViewDefinition, maxDepth int) *Navigator {
	if maxDepth < 1 {
		maxDepth = DefaultMaxDepth
	}
	n := &Navigator{
		screenID: screenID,
		views:    make(map[string]model.ViewDefinition, len(views)),
		maxDepth: maxDepth,
	}
	for _, v := range views {
		n.views[v.Name] = v
	}
	return n
}

// Push shows a new panel above the current one. At the depth bound the top
// panel is replaced instead. Pushing the list view resets the stack.
func (n *Navigator) Push(view string, rec *model.Record, item string) error {
	entry, err := n.entry(view, rec, item)
	if err != nil {
		return err
	}
	if entry.IsList() {
		n.Reset()
		return nil
	}
	if len(n.stack) >= n.maxDepth {
		n.stack[len(n.stack)-1] = entry
		return nil
	}
	n.stack = append(n.stack, entry)
	return nil
}

// ReplaceAt swaps the top panel for a sibling without growing the stack.
// On a bare list it behaves as Push.
func (n *Navigator) ReplaceAt(view string, rec *model.Record, item string) error {
	entry, err := n.entry(view, rec, item)
	if err != nil {
		return err
	}
	if entry.IsList() {
		n.Reset()
		return nil
	}
	if len(n.stack) == 0 {
		n.stack = append(n.stack, entry)
		return nil
	}
	n.stack[len(n.stack)-1] = entry
	return nil
}

// Pop returns to the preceding panel, or the list when there is none.
func (n *Navigator) Pop() model.ViewStackEntry {
	if len(n.stack) > 0 {
		n.stack = n.stack[:len(n.stack)-1]
	}
	return n.top()
}

// Close is Pop under the name the close buttons use.
func (n *Navigator) Close() model.ViewStackEntry {
	return n.Pop()
}

// Reset returns to the list, discarding every panel.
func (n *Navigator) Reset() {
	n.stack = n.stack[:0]
}

// Depth is the number of panels above the list.
func (n *Navigator) Depth() int { return len(n.stack) }

// MaxDepth is the stack bound.
func (n *Navigator) MaxDepth() int { return n.maxDepth }

// Stack returns a copy of the panels, bottom first.
func (n *Navigator) Stack() []model.ViewStackEntry {
	out := make([]model.ViewStackEntry, len(n.stack))
	copy(out, n.stack)
	return out
}

// Current returns the panel to render. Record bindings are refreshed through
// r; a panel whose record has vanished is discarded together with all panels
// above it.
func (n *Navigator) Current(r RecordResolver) model.ViewStackEntry {
	n.Revalidate(r)
	return n.top()
}

// BoundIDs returns the record IDs bound to the stacked panels, bottom first.
func (n *Navigator) BoundIDs() []string {
	var ids []string
	for _, e := range n.stack {
		if e.Record != nil {
			ids = append(ids, e.Record.ID)
		}
	}
	return ids
}

// DropMissing discards every panel from the first one bound to a record in
// missing upward. It reports whether any panel was dropped.
func (n *Navigator) DropMissing(missing map[string]bool) bool {
	for i, e := range n.stack {
		if e.Record != nil && missing[e.Record.ID] {
			n.stack = n.stack[:i]
			return true
		}
	}
	return false
}

// Validate reports whether view may be shown. The view must be declared,
// and a non-list view needs a record unless it is marked record_optional.
func (n *Navigator) Validate(view string, bound bool) error {
	def, ok := n.viewOf(view)
	if !ok {
		return model.NewUnknownViewError(n.screenID, view)
	}
	if def.Kind != model.ViewList && !bound && !def.RecordOptional {
		return model.NewBadRequestError(fmt.Sprintf("view %q needs a record", view))
	}
	return nil
}

// Revalidate drops every panel from the first one bound to a vanished record
// upward and refreshes the records of the survivors. It reports whether any
// panel was dropped.
func (n *Navigator) Revalidate(r RecordResolver) bool {
	if r == nil {
		return false
	}
	for i := range n.stack {
		bound := n.stack[i].Record
		if bound == nil {
			continue
		}
		fresh, ok := r.Resolve(bound.ID)
		if !ok {
			n.stack = n.stack[:i]
			return true
		}
		n.stack[i].Record = &fresh
	}
	return false
}

func (n *Navigator) top() model.ViewStackEntry {
	if len(n.stack) == 0 {
		return model.ListEntry()
	}
	return n.stack[len(n.stack)-1]
}

func (n *Navigator) entry(view string, rec *model.Record, item string) (model.ViewStackEntry, error) {
	if err := n.Validate(view, rec != nil); err != nil {
		return model.ViewStackEntry{}, err
	}
	def, _ := n.viewOf(view)
	if def.Kind == model.ViewList {
		return model.ListEntry(), nil
	}
	entry := model.ViewStackEntry{Kind: def.Kind, Name: view, Item: item}
	if rec != nil {
		cp := *rec
		entry.Record = &cp
	}
	return entry, nil
}

func (n *Navigator) viewOf(view string) (model.ViewDefinition, bool) {
	if view == string(model.ViewList) {
		return model.ViewDefinition{Name: view, Kind: model.ViewList}, true
	}
	if len(n.views) > 0 {
		def, ok := n.views[view]
		return def, ok && def.Kind.Valid()
	}
	kind := model.ViewKind(view)
	return model.ViewDefinition{Name: view, Kind: kind}, kind.Valid()
}
