// Package screen hosts one live list screen: its filter state, derived view,
// view stack and open menu, kept current against a data source.
package screen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/opsdesk/internal/datasource"
	"github.com/pitabwire/opsdesk/internal/listquery"
	"github.com/pitabwire/opsdesk/internal/navigator"
	"github.com/pitabwire/opsdesk/internal/observability"
	"github.com/pitabwire/opsdesk/model"
)

// Screen is one screen instance. All methods are safe for concurrent use.
//
// Fetches are stamped with a sequence number and only the response to the
// latest fetch is applied; older responses are dropped. In local mode the
// source returns the full set and every filter change recomputes the view
// from the last snapshot. In paginated mode a filter change marks the view
// out of date until the next Refresh.
type Screen struct {
	mu sync.Mutex

	def     model.ScreenDefinition
	engine  *listquery.Engine
	source  datasource.Source
	lookup  datasource.Lookup
	nav     *navigator.Navigator
	menu    *navigator.Menu
	tabs    []string
	metrics *observability.Metrics
	logger  *zap.Logger

	filters   model.FilterState
	view      model.DerivedView
	snapshot  []model.Record
	tabCounts map[string]int
	status    model.ScreenStatus
	lastErr   *model.ErrorEnvelope
	seq       uint64
	cancel    context.CancelFunc
	outdated  bool
}

// Option configures a Screen.
type Option func(*Screen)

// WithMetrics records query, navigation and stale-response metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Screen) { s.metrics = m }
}

// WithLogger sets the screen logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Screen) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an idle screen with an empty view. Call Refresh to load it.
func New(def model.ScreenDefinition, src datasource.Source, opts ...Option) *Screen {
	filters := listquery.DefaultFilterState()
	if def.Sort.Default != "" {
		filters.SortOrder = def.Sort.Default
	}
	tabs := make([]string, 0, len(def.Tabs))
	for _, t := range def.Tabs {
		if t.Value != model.TabAll {
			tabs = append(tabs, t.Value)
		}
	}

	s := &Screen{
		def:     def,
		engine:  listquery.New(listquery.ConfigFromDefinition(def)),
		source:  src,
		nav:     navigator.New(def.ID, def.Views, def.MaxDepth),
		menu:    navigator.NewMenu(),
		tabs:    tabs,
		logger:  zap.NewNop(),
		filters: filters,
		view:    model.EmptyView(),
		status:  model.ScreenIdle,
	}
	if src.Paginated() {
		s.lookup, _ = datasource.LookupOf(src)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the screen definition ID.
func (s *Screen) ID() string { return s.def.ID }

// Definition returns the screen definition.
func (s *Screen) Definition() model.ScreenDefinition { return s.def }

// Paginated reports whether the data source pages server-side.
func (s *Screen) Paginated() bool { return s.source.Paginated() }

// Refresh fetches from the data source without holding the lock and applies
// the response only if no newer fetch started meanwhile. Starting a fetch
// cancels the one in flight; a superseded response is dropped and reported as
// nil. On failure the previous view stays visible and the error is kept in
// the state.
//
// A paginated source may report fewer pages than the one requested when its
// data shrank; the screen then snaps to page 1 and fetches it again rather
// than showing the empty page.
func (s *Screen) Refresh(ctx context.Context) error {
	outcome, err := s.fetch(ctx)
	if outcome == fetchPageGone {
		outcome, err = s.fetch(ctx)
	}
	if err != nil || outcome != fetchApplied {
		return err
	}
	if s.lookup != nil {
		s.revalidateRemote(ctx)
	}
	return nil
}

type fetchOutcome int

const (
	fetchApplied fetchOutcome = iota
	fetchDropped
	fetchPageGone
)

func (s *Screen) fetch(ctx context.Context) (fetchOutcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.seq++
	seq := s.seq
	req := model.FetchRequest{
		ScreenID: s.def.ID,
		Filters:  s.filters,
		Page:     s.filters.CurrentPage,
		PageSize: s.engine.PageSize(),
	}
	s.status = model.ScreenLoading
	s.mu.Unlock()

	log := observability.RequestLogger(ctx, s.logger).With(zap.String("screen_id", s.def.ID))
	ctx, span := observability.StartSpan(ctx, "screen.refresh",
		observability.AttrScreenID.String(s.def.ID),
		observability.AttrSequence.Int64(int64(seq)),
	)
	result, err := s.source.Fetch(ctx, req)
	observability.EndSpanWithError(span, err)

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.seq {
		s.metrics.RecordStaleResponse(s.def.ID)
		log.Debug("screen: dropped superseded response", zap.Uint64("sequence", seq), zap.Uint64("latest", s.seq))
		return fetchDropped, nil
	}

	s.cancel = nil

	if err != nil {
		s.status = model.ScreenError
		s.lastErr = toEnvelope(err)
		log.Warn("screen: fetch failed", zap.Error(err))
		return fetchDropped, err
	}

	if !s.source.Paginated() {
		s.snapshot = result.Records
		s.lastErr = nil
		s.status = model.ScreenReady
		s.outdated = false
		s.recomputeLocked()
		s.nav.Revalidate(s.resolverLocked())
		return fetchApplied, nil
	}

	if req.Filters != s.filters {
		// The filters moved while the page was in flight; the page no
		// longer matches them.
		s.metrics.RecordStaleResponse(s.def.ID)
		s.status = model.ScreenReady
		s.outdated = true
		return fetchDropped, nil
	}

	view := s.engine.FromServerPage(result, s.filters)
	if view.CurrentPage != req.Page {
		log.Debug("screen: requested page past the end, fetching page 1",
			zap.Int("page", req.Page), zap.Int("total_pages", view.TotalPages))
		s.filters.CurrentPage = view.CurrentPage
		s.outdated = true
		return fetchPageGone, nil
	}

	s.snapshot = result.Records
	s.lastErr = nil
	s.status = model.ScreenReady
	s.outdated = false
	s.view = view
	s.tabCounts = nil
	return fetchApplied, nil
}

// revalidateRemote checks the records bound to stacked panels against the
// source, dropping panels whose record no longer exists. Lookup failures
// leave the stack as it is.
func (s *Screen) revalidateRemote(ctx context.Context) {
	s.mu.Lock()
	seq := s.seq
	ids := s.nav.BoundIDs()
	page := s.resolverLocked()
	s.mu.Unlock()

	missing := make(map[string]bool)
	for _, id := range ids {
		if _, ok := page.Resolve(id); ok {
			continue
		}
		_, ok, err := s.lookup.Lookup(ctx, id)
		if err != nil {
			observability.RequestLogger(ctx, s.logger).Warn("screen: record lookup failed",
				zap.String("screen_id", s.def.ID), zap.String("record_id", id), zap.Error(err))
			return
		}
		if !ok {
			missing[id] = true
		}
	}
	if len(missing) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq == s.seq {
		s.nav.DropMissing(missing)
	}
}

// SetTab selects a tab and returns to page 1.
func (s *Screen) SetTab(tab string) {
	s.mutate(func(f model.FilterState) model.FilterState { return listquery.SetTab(f, tab) })
}

// SetDropdownFilter selects a dropdown value and returns to page 1.
func (s *Screen) SetDropdownFilter(value string) {
	s.mutate(func(f model.FilterState) model.FilterState { return listquery.SetDropdownFilter(f, value) })
}

// SetSearchQuery sets the search text and returns to page 1.
func (s *Screen) SetSearchQuery(q string) {
	s.mutate(func(f model.FilterState) model.FilterState { return listquery.SetSearchQuery(f, q) })
}

// SetSortOrder sets the sort order and returns to page 1.
func (s *Screen) SetSortOrder(order model.SortOrder) {
	s.mutate(func(f model.FilterState) model.FilterState { return listquery.SetSortOrder(f, order) })
}

// GoToPage moves to page, clamped to the current page count.
func (s *Screen) GoToPage(page int) {
	s.mutate(func(f model.FilterState) model.FilterState {
		return listquery.GoToPage(f, page, s.view.TotalPages)
	})
}

// NextPage advances one page; a no-op on the last page.
func (s *Screen) NextPage() {
	s.mutate(func(f model.FilterState) model.FilterState {
		return listquery.NextPage(f, s.view.TotalPages)
	})
}

// PrevPage goes back one page; a no-op on the first page.
func (s *Screen) PrevPage() {
	s.mutate(func(f model.FilterState) model.FilterState {
		return listquery.PrevPage(f, s.view.TotalPages)
	})
}

// NeedsRefresh reports whether the view is out of date with the filters.
func (s *Screen) NeedsRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outdated
}

// PushView shows view above the current panel, bound to the record with
// recordID. Only the list and record_optional views may omit the record. A
// record that no longer exists returns the screen to the list and reports
// NOT_FOUND.
func (s *Screen) PushView(ctx context.Context, view, recordID, item string) error {
	return s.navigate(ctx, "push", view, recordID, item, s.nav.Push)
}

// ReplaceView swaps the current panel for view, keeping the depth. Record
// binding follows PushView.
func (s *Screen) ReplaceView(ctx context.Context, view, recordID, item string) error {
	return s.navigate(ctx, "replace", view, recordID, item, s.nav.ReplaceAt)
}

// PopView goes back one panel and returns the panel now shown.
func (s *Screen) PopView() model.ViewStackEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.RecordNavigation(s.def.ID, "pop")
	return s.nav.Pop()
}

// CloseView closes the current panel, returning to the one beneath it.
func (s *Screen) CloseView() model.ViewStackEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.RecordNavigation(s.def.ID, "close")
	return s.nav.Close()
}

// ResetView discards every panel and shows the list.
func (s *Screen) ResetView() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.RecordNavigation(s.def.ID, "reset")
	s.nav.Reset()
}

// OpenMenu opens the menu with id, closing any other.
func (s *Screen) OpenMenu(id string) *navigator.Subscription {
	return s.menu.Open(id)
}

// CloseMenu closes the open menu.
func (s *Screen) CloseMenu() { s.menu.Close() }

// Interact reports an interaction at target; anything outside the open menu
// closes it. It returns whether a menu was closed.
func (s *Screen) Interact(target string) bool { return s.menu.Interact(target) }

// Record returns a record from the current snapshot.
func (s *Screen) Record(id string) (model.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolverLocked().Resolve(id)
}

// State returns the derived state for rendering.
func (s *Screen) State() model.ScreenState {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resolver navigator.RecordResolver
	if !s.source.Paginated() {
		resolver = s.resolverLocked()
	}

	view := s.view
	view.VisibleRecords = append([]model.Record{}, s.view.VisibleRecords...)

	var counts map[string]int
	if s.tabCounts != nil {
		counts = make(map[string]int, len(s.tabCounts))
		for k, v := range s.tabCounts {
			counts[k] = v
		}
	}

	return model.ScreenState{
		ScreenID:      s.def.ID,
		Filters:       s.filters,
		View:          view,
		CompactWindow: listquery.CompactWindow(view.CurrentPage, view.TotalPages),
		FullWindow:    listquery.FullWindow(view.CurrentPage, view.TotalPages),
		TabCounts:     counts,
		CurrentView:   s.nav.Current(resolver),
		ViewDepth:     s.nav.Depth(),
		OpenMenuID:    s.menu.OpenID(),
		Status:        s.status,
		Error:         s.lastErr,
		Paginated:     s.source.Paginated(),
		Sequence:      s.seq,
	}
}

// Close cancels any fetch in flight and releases the open menu subscription.
func (s *Screen) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.menu.Close()
}

func (s *Screen) mutate(fn func(model.FilterState) model.FilterState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(s.filters)
	if next == s.filters {
		return
	}
	s.filters = next
	if s.source.Paginated() {
		s.outdated = true
		return
	}
	s.recomputeLocked()
}

func (s *Screen) recomputeLocked() {
	start := time.Now()
	s.view = s.engine.Query(s.snapshot, s.filters)
	s.filters.CurrentPage = s.view.CurrentPage
	if len(s.tabs) > 0 {
		s.tabCounts = s.engine.TabCounts(s.snapshot, s.filters, s.tabs)
	}
	s.metrics.RecordQuery(s.def.ID, time.Since(start))
}

type pushFunc func(view string, rec *model.Record, item string) error

func (s *Screen) navigate(ctx context.Context, op, view, recordID, item string, fn pushFunc) error {
	s.mu.Lock()
	if err := s.nav.Validate(view, recordID != ""); err != nil {
		s.mu.Unlock()
		return err
	}
	var rec *model.Record
	found := true
	if recordID != "" {
		r, ok := s.resolverLocked().Resolve(recordID)
		rec, found = &r, ok
	}
	s.mu.Unlock()

	if !found && s.lookup != nil {
		r, ok, err := s.lookup.Lookup(ctx, recordID)
		if err != nil {
			observability.RequestLogger(ctx, s.logger).Warn("screen: record lookup failed",
				zap.String("screen_id", s.def.ID), zap.String("record_id", recordID), zap.Error(err))
			return toEnvelope(err)
		}
		rec, found = &r, ok
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !found {
		s.nav.Reset()
		s.metrics.RecordNavigation(s.def.ID, "reset")
		return model.NewNotFoundError(fmt.Sprintf("record %q not found on screen %s", recordID, s.def.ID))
	}
	if err := fn(view, rec, item); err != nil {
		return err
	}
	s.metrics.RecordNavigation(s.def.ID, op)
	return nil
}

func (s *Screen) resolverLocked() navigator.RecordResolver {
	snapshot := s.snapshot
	return navigator.ResolverFunc(func(id string) (model.Record, bool) {
		for _, r := range snapshot {
			if r.ID == id {
				return r, true
			}
		}
		return model.Record{}, false
	})
}

func toEnvelope(err error) *model.ErrorEnvelope {
	var env *model.ErrorEnvelope
	if errors.As(err, &env) {
		return env
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewBackendTimeoutError()
	}
	return model.NewBackendUnavailableError()
}
