package httpapi

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sharif_lostfound/map-core/internal/mapview"
)

// sessionRegistry maps view-session ids to their controllers.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*mapview.Controller
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*mapview.Controller)}
}

func (s *sessionRegistry) add(id string, c *mapview.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = c
}

func (s *sessionRegistry) get(id string) (*mapview.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.sessions[id]
	return c, ok
}

func (s *sessionRegistry) remove(id string) (*mapview.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	return c, ok
}

// CloseSessions unmounts every live session, for graceful shutdown.
func (h *Handler) CloseSessions() {
	h.sessions.mu.Lock()
	defer h.sessions.mu.Unlock()
	for id, c := range h.sessions.sessions {
		c.Close()
		delete(h.sessions.sessions, id)
	}
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	c := mapview.New(mapview.Options{
		Log:      h.log.With().Str("session", id).Logger(),
		Search:   h.search,
		Locator:  h.locator,
		Metrics:  h.metrics,
		Bounds:   h.bounds,
		PageSize: h.pageSize,
	})
	h.sessions.add(id, c)
	c.Mount()

	h.writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok := h.sessions.remove(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "not_found", "session not found", map[string]any{"id": id})
		return
	}
	c.Close()
	w.WriteHeader(http.StatusNoContent)
}

// session resolves the controller for the request or writes a 404.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*mapview.Controller, bool) {
	id := chi.URLParam(r, "id")
	c, ok := h.sessions.get(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "not_found", "session not found", map[string]any{"id": id})
		return nil, false
	}
	return c, true
}

func (h *Handler) writeView(w http.ResponseWriter, r *http.Request, c *mapview.Controller) {
	h.writeJSON(w, http.StatusOK, c.View(zoomParam(r), h.colorIndex(r.Context())))
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeView(w, r, c)
}

func (h *Handler) handleFilterDraft(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var patch mapview.DraftPatch
	if err := decodeJSONStrict(r, &patch); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	c.UpdateDraft(patch)
	h.writeView(w, r, c)
}

func (h *Handler) handleFilterApply(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	if !c.Apply() {
		details := map[string]any{}
		for field, msg := range c.View(zoomParam(r), nil).FieldErrors {
			details[field] = msg
		}
		h.writeError(w, http.StatusUnprocessableEntity, "validation_failed", "filter validation failed", details)
		return
	}
	h.writeView(w, r, c)
}

func (h *Handler) handleFilterClear(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	c.Clear()
	h.writeView(w, r, c)
}

func (h *Handler) handlePageNext(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	if !c.NextPage() {
		h.writeError(w, http.StatusConflict, "page_unavailable", "no next page", nil)
		return
	}
	h.writeView(w, r, c)
}

func (h *Handler) handlePagePrev(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	if !c.PrevPage() {
		h.writeError(w, http.StatusConflict, "page_unavailable", "already on the first page", nil)
		return
	}
	h.writeView(w, r, c)
}

type pickRequest struct {
	Mode mapview.PickMode `json:"mode"`
}

func (h *Handler) handlePick(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req pickRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	switch req.Mode {
	case mapview.PickOff, mapview.PickFilterCenter, mapview.PickNewItem:
	default:
		h.writeError(w, http.StatusBadRequest, "validation_failed", "unknown pick mode", map[string]any{"mode": string(req.Mode)})
		return
	}
	c.EnterPick(req.Mode)
	h.writeView(w, r, c)
}

type pointRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (h *Handler) handleClick(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req pointRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	handoff := c.Click(req.Lat, req.Lng)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"handoff": handoff,
		"view":    c.View(zoomParam(r), h.colorIndex(r.Context())),
	})
}

func (h *Handler) handleDoubleClick(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req pointRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	handoff := c.DoubleClick(req.Lat, req.Lng)
	if handoff == nil {
		h.writeError(w, http.StatusConflict, "pick_active", "double click is ignored while picking", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"handoff": handoff})
}

func (h *Handler) handlePosition(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req pointRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	c.ReportPosition(req.Lat, req.Lng)
	h.writeView(w, r, c)
}
