package stream

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/pac-chat/backend/internal/handler/apierr"
	"github.com/zhouzirui/pac-chat/backend/internal/middleware"
	chatService "github.com/zhouzirui/pac-chat/backend/internal/service/chat"
	"github.com/zhouzirui/pac-chat/backend/pkg/utils"
)

const defaultHeartbeat = 15 * time.Second

// Handler serves Server-Sent Event feeds: chat list refreshes and per-session replies.
type Handler struct {
	manager   *chatService.Manager
	heartbeat time.Duration
}

// New creates a new stream handler
func New(manager *chatService.Manager) *Handler {
	return &Handler{manager: manager, heartbeat: defaultHeartbeat}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string                `json:"event"`
	Content   string                `json:"content,omitempty"`
	SessionID string                `json:"sessionId,omitempty"`
	Snapshot  *chatService.Snapshot `json:"snapshot,omitempty"`
	Finished  bool                  `json:"finished,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// RegisterRoutes 注册 SSE 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chats/events", h.handleChatEvents)
	r.Get("/stream/{sessionID}", h.handleStream)
}

// handleChatEvents pushes refresh events for the caller's chat list until the client goes away.
func (h *Handler) handleChatEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	email := middleware.EmailFromContext(r.Context())
	if email == "" {
		utils.RespondError(w, http.StatusBadRequest, "email is required")
		return
	}

	events, cancel := h.manager.Notifier().Subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	utils.SendSSEEvent(w, flusher, "ready", map[string]string{"message": "stream established"})

	ctx := r.Context()
	log.Printf("[sse] opening chat event stream for %s", email)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] closing chat event stream for %s", email)
			return
		case e, open := <-events:
			if !open {
				return
			}
			if e.Email != email {
				continue
			}
			utils.SendSSEEvent(w, flusher, string(e.Kind), e)
		case t := <-ticker.C:
			utils.SendSSEEvent(w, flusher, "heartbeat", map[string]string{
				"time": t.UTC().Format(time.RFC3339),
			})
		}
	}
}

// handleStream submits ?message= to an open session and streams the outcome.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage := r.URL.Query().Get("message")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	session, err := h.manager.Get(sessionID)
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	utils.SetupSSEHeaders(w)
	utils.SendSSEChunk(w, flusher, StreamResponse{Event: "start", SessionID: sessionID})

	reply, err := session.Submit(r.Context(), userMessage)
	snap := session.Snapshot()
	if err != nil {
		log.Printf("[stream] submit failed for session=%s: %v", sessionID, err)
		utils.SendSSEChunk(w, flusher, StreamResponse{
			Event:     "error",
			SessionID: sessionID,
			Snapshot:  &snap,
			Error:     err.Error(),
		})
		return
	}

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   reply.Content,
	})
	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "end",
		SessionID: sessionID,
		Snapshot:  &snap,
		Finished:  true,
	})

	log.Printf("[stream] completed response for session=%s", sessionID)
}
