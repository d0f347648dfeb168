package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/opsdesk/internal/derive"
	"github.com/pitabwire/opsdesk/internal/session"
	"github.com/pitabwire/opsdesk/model"
)

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *session.Session)

// withSession resolves the {sessionId} route parameter for the caller's
// tenant before calling next.
func (h *handlers) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := h.sessions.Get(r.Context(), chi.URLParam(r, "sessionId"))
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		next(w, r, s)
	}
}

func stateOf(s *session.Session) model.ScreenState {
	st := s.Screen.State()
	st.SessionID = s.ID
	return st
}

func writeState(w http.ResponseWriter, s *session.Session) {
	WriteJSON(w, http.StatusOK, stateOf(s))
}

func (h *handlers) openSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Open(r.Context(), chi.URLParam(r, "screenId"))
	if err != nil {
		writeRequestError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, model.SessionResponse{SessionID: s.ID, State: stateOf(s)})
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(func(w http.ResponseWriter, _ *http.Request, s *session.Session) {
		writeState(w, s)
	})(w, r)
}

func (h *handlers) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
		writeRequestError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type filtersRequest struct {
	Tab      *string          `json:"tab,omitempty"`
	Dropdown *string          `json:"dropdown,omitempty"`
	Search   *string          `json:"search,omitempty"`
	Sort     *model.SortOrder `json:"sort,omitempty"`
}

// setFilters applies any combination of filter changes, then fetches again
// when the screen pages server-side. A failed fetch is reported in the
// returned state rather than as an HTTP error.
func (h *handlers) setFilters(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req filtersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeRequestError(w, r, err)
		return
	}

	sc := s.Screen
	if req.Tab != nil {
		sc.SetTab(*req.Tab)
	}
	if req.Dropdown != nil {
		sc.SetDropdownFilter(*req.Dropdown)
	}
	if req.Search != nil {
		sc.SetSearchQuery(*req.Search)
	}
	if req.Sort != nil {
		sc.SetSortOrder(*req.Sort)
	}

	refreshIfNeeded(r, s)
	writeState(w, s)
}

type pageRequest struct {
	Page      *int   `json:"page,omitempty"`
	Direction string `json:"direction,omitempty"`
}

func (h *handlers) changePage(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req pageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeRequestError(w, r, err)
		return
	}

	switch {
	case req.Page != nil:
		s.Screen.GoToPage(*req.Page)
	case req.Direction == "next":
		s.Screen.NextPage()
	case req.Direction == "prev":
		s.Screen.PrevPage()
	default:
		writeRequestError(w, r, model.NewBadRequestError(`either "page" or "direction" (next|prev) is required`))
		return
	}

	refreshIfNeeded(r, s)
	writeState(w, s)
}

// refresh retries the fetch. Unlike the mutators, a failure here is returned
// as an error response.
func (h *handlers) refresh(w http.ResponseWriter, r *http.Request, s *session.Session) {
	if err := s.Screen.Refresh(r.Context()); err != nil {
		writeRequestError(w, r, err)
		return
	}
	writeState(w, s)
}

func (h *handlers) invoice(w http.ResponseWriter, r *http.Request, s *session.Session) {
	recordID := chi.URLParam(r, "recordId")
	rec, ok := s.Screen.Record(recordID)
	if !ok {
		writeRequestError(w, r, model.NewNotFoundError("record "+recordID+" not found"))
		return
	}
	inv, err := derive.Invoice(rec, s.Screen.Definition().AmountField)
	if err != nil {
		writeRequestError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, inv)
}

func refreshIfNeeded(r *http.Request, s *session.Session) {
	if s.Screen.NeedsRefresh() {
		// The error is carried in the screen state.
		_ = s.Screen.Refresh(r.Context())
	}
}
