package transport

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/opsdesk/internal/definition"
	"github.com/pitabwire/opsdesk/internal/session"
)

// handlers serves the screen and session routes.
type handlers struct {
	screens  ScreenCatalog
	sessions *session.Manager
}

func (h *handlers) listScreens(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"screens": h.screens.Summaries()})
}

func (h *handlers) getScreen(w http.ResponseWriter, r *http.Request) {
	screenID := chi.URLParam(r, "screenId")
	def, ok := h.screens.GetScreen(screenID)
	if !ok {
		WriteNotFound(w, fmt.Sprintf("screen %q not found", screenID))
		return
	}
	WriteJSON(w, http.StatusOK, definition.Describe(def, sessionsPath(screenID)))
}

func sessionsPath(screenID string) string {
	return "/ui/screens/" + screenID + "/sessions"
}
