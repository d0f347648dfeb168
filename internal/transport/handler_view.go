package transport

import (
	"context"
	"net/http"

	"github.com/pitabwire/opsdesk/internal/session"
	"github.com/pitabwire/opsdesk/model"
)

type viewRequest struct {
	View     string `json:"view"`
	RecordID string `json:"record_id"`
	Item     string `json:"item,omitempty"`
}

func (h *handlers) pushView(w http.ResponseWriter, r *http.Request, s *session.Session) {
	h.navigate(w, r, s, s.Screen.PushView)
}

func (h *handlers) replaceView(w http.ResponseWriter, r *http.Request, s *session.Session) {
	h.navigate(w, r, s, s.Screen.ReplaceView)
}

func (h *handlers) navigate(w http.ResponseWriter, r *http.Request, s *session.Session, op func(ctx context.Context, view, recordID, item string) error) {
	var req viewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeRequestError(w, r, err)
		return
	}
	if req.View == "" {
		writeRequestError(w, r, model.NewBadRequestError(`"view" is required`))
		return
	}
	if err := op(r.Context(), req.View, req.RecordID, req.Item); err != nil {
		writeRequestError(w, r, err)
		return
	}
	writeState(w, s)
}

func (h *handlers) popView(w http.ResponseWriter, _ *http.Request, s *session.Session) {
	s.Screen.PopView()
	writeState(w, s)
}

func (h *handlers) closeView(w http.ResponseWriter, _ *http.Request, s *session.Session) {
	s.Screen.CloseView()
	writeState(w, s)
}

func (h *handlers) resetView(w http.ResponseWriter, _ *http.Request, s *session.Session) {
	s.Screen.ResetView()
	writeState(w, s)
}

type menuRequest struct {
	MenuID string `json:"menu_id,omitempty"`
	Target string `json:"target,omitempty"`
}

type interactResponse struct {
	Closed bool              `json:"closed"`
	State  model.ScreenState `json:"state"`
}

func (h *handlers) openMenu(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req menuRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeRequestError(w, r, err)
		return
	}
	if req.MenuID == "" {
		writeRequestError(w, r, model.NewBadRequestError(`"menu_id" is required`))
		return
	}
	s.Screen.OpenMenu(req.MenuID)
	writeState(w, s)
}

func (h *handlers) closeMenu(w http.ResponseWriter, _ *http.Request, s *session.Session) {
	s.Screen.CloseMenu()
	writeState(w, s)
}

// interactMenu reports a click at target. Any target outside the open menu
// closes it.
func (h *handlers) interactMenu(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req menuRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeRequestError(w, r, err)
		return
	}
	closed := s.Screen.Interact(req.Target)
	WriteJSON(w, http.StatusOK, interactResponse{Closed: closed, State: stateOf(s)})
}
