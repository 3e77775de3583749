package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/hope-map/internal/chat"
	"github.com/ashureev/hope-map/internal/domain"
	"github.com/go-chi/chi/v5"
)

const (
	msgMissingChatFields = "Missing sessionId or userResponse."
	msgChatFailed        = "Failed to get a response from Hope."
)

// ChatService is the conversation backend used by ChatHandler.
type ChatService interface {
	HandleTurn(ctx context.Context, sessionID, utterance string) (*chat.Result, error)
	History(ctx context.Context, sessionID string) (domain.History, error)
	Reset(ctx context.Context, sessionID string) error
}

// ChatHandler serves the chat endpoints.
type ChatHandler struct {
	svc        ChatService
	middleware []func(http.Handler) http.Handler
}

// NewChatHandler creates a chat handler. middleware applies to POST /chat only.
func NewChatHandler(svc ChatService, middleware ...func(http.Handler) http.Handler) *ChatHandler {
	return &ChatHandler{svc: svc, middleware: middleware}
}

// RegisterRoutes registers the chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.With(h.middleware...).Post("/", h.Chat)
		r.Get("/{sessionID}", h.GetHistory)
		r.Delete("/{sessionID}", h.Reset)
	})
}

type chatRequest struct {
	SessionID    *string `json:"sessionId"`
	UserResponse *string `json:"userResponse"`
}

// Chat handles POST /chat. An empty userResponse is a valid turn; a missing
// one is not.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, msgMissingChatFields)
		return
	}
	if req.SessionID == nil || *req.SessionID == "" || req.UserResponse == nil {
		Error(w, http.StatusBadRequest, msgMissingChatFields)
		return
	}

	res, err := h.svc.HandleTurn(r.Context(), *req.SessionID, *req.UserResponse)
	if err != nil {
		if errors.Is(err, chat.ErrValidation) {
			Error(w, http.StatusBadRequest, msgMissingChatFields)
			return
		}
		slog.Error("Chat turn failed", "session_id", *req.SessionID, "error", err)
		Error(w, http.StatusInternalServerError, msgChatFailed)
		return
	}

	JSON(w, http.StatusOK, res)
}

// GetHistory handles GET /chat/{sessionID}.
func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	history, err := h.svc.History(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load chat history", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to load chat history.")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"sessionId": sessionID, "history": history})
}

// Reset handles DELETE /chat/{sessionID}.
func (h *ChatHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.svc.Reset(r.Context(), sessionID); err != nil {
		slog.Error("Failed to reset chat session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to reset chat session.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
