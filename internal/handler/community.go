package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/roboanalyzer-hub/internal/apperror"
	"github.com/sakif/roboanalyzer-hub/internal/model"
	"github.com/sakif/roboanalyzer-hub/internal/service"
)

// CommunityHandler serves the polled message board. Clients refresh by
// calling GET /api/messages on an interval.
type CommunityHandler struct {
	svc    *service.CommunityService
	logger *slog.Logger
}

func NewCommunityHandler(svc *service.CommunityService, logger *slog.Logger) *CommunityHandler {
	return &CommunityHandler{svc: svc, logger: logger}
}

type postMessageRequest struct {
	Content string            `json:"content"`
	Room    string            `json:"room"`
	Type    model.MessageType `json:"type"`
}

type editMessageRequest struct {
	Content string `json:"content"`
}

// HandleList → GET /api/messages?room=general&limit=50&skip=0
func (h *CommunityHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := queryInt(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	skip, err := queryInt(q.Get("skip"), "skip")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	msgs, err := h.svc.List(r.Context(), service.ListMessagesInput{
		Room:  q.Get("room"),
		Limit: limit,
		Skip:  skip,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// HandlePost → POST /api/messages
func (h *CommunityHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req postMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	msg, err := h.svc.Post(r.Context(), user, service.PostInput(req))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
}

// HandleEdit → PUT /api/messages/{messageId} (admin)
func (h *CommunityHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req editMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	msg, err := h.svc.Edit(r.Context(), user, chi.URLParam(r, "messageId"), req.Content)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

// HandleDelete → DELETE /api/messages/{messageId} (admin)
func (h *CommunityHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), user, chi.URLParam(r, "messageId")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Message deleted successfully")
}

// queryInt parses an optional integer query parameter; "" is 0.
func queryInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}
