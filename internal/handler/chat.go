package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/roboanalyzer-hub/internal/model"
	"github.com/sakif/roboanalyzer-hub/internal/service"
)

type ChatHandler struct {
	svc    *service.ChatService
	logger *slog.Logger
}

func NewChatHandler(svc *service.ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

type sendRequest struct {
	Messages []model.ChatMessage `json:"messages"`
	ChatID   string              `json:"chatId"`
	Model    string              `json:"model"`
}

type chatIDRequest struct {
	ChatID string `json:"chatId"`
}

// HandleSend → POST /api/chat
func (h *ChatHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	res, err := h.svc.Send(r.Context(), user.ID, service.SendInput{
		ChatID:   req.ChatID,
		Model:    req.Model,
		Messages: req.Messages,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleHistory → GET /api/chat/history
func (h *ChatHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	histories, err := h.svc.History(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"histories": histories})
}

// HandleDeleteFromBody → DELETE /api/chat/history with {"chatId": "..."}
func (h *ChatHandler) HandleDeleteFromBody(w http.ResponseWriter, r *http.Request) {
	var req chatIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.deleteChat(w, r, req.ChatID)
}

// HandleGet → GET /api/chat/{chatId}
func (h *ChatHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	chat, err := h.svc.Get(r.Context(), user.ID, chi.URLParam(r, "chatId"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// HandleDelete → DELETE /api/chat/{chatId}
func (h *ChatHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	h.deleteChat(w, r, chi.URLParam(r, "chatId"))
}

func (h *ChatHandler) deleteChat(w http.ResponseWriter, r *http.Request, chatID string) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), user.ID, chatID); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Chat deleted successfully")
}
