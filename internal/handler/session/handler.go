package session

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/pac-chat/backend/internal/handler/apierr"
	"github.com/zhouzirui/pac-chat/backend/internal/middleware"
	model "github.com/zhouzirui/pac-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/pac-chat/backend/internal/service/chat"
	"github.com/zhouzirui/pac-chat/backend/pkg/utils"
)

// Handler 会话的HTTP与WebSocket处理器
type Handler struct {
	manager  *chatService.Manager
	upgrader websocket.Upgrader
}

// New 创建会话处理器
func New(manager *chatService.Manager) *Handler {
	return &Handler{
		manager: manager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleOpen)
	r.Get("/sessions/{sessionID}", h.handleSnapshot)
	r.Post("/sessions/{sessionID}/messages", h.handleSubmit)
	r.Delete("/sessions/{sessionID}", h.handleClose)
	r.Get("/sessions/{sessionID}/ws", h.handleWebSocket)
}

type submitResponse struct {
	Reply    *model.Message       `json:"reply,omitempty"`
	Snapshot chatService.Snapshot `json:"snapshot"`
	Error    string               `json:"error,omitempty"`
}

// handleOpen 打开会话；带 chatId 时加载已有聊天
func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ChatID string `json:"chatId"`
	}

	// 空请求体表示新建空会话
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	email := middleware.EmailFromContext(r.Context())
	session, err := h.manager.Open(r.Context(), email, payload.ChatID)
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session.Snapshot())
}

// handleSnapshot 返回会话当前状态
func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	session, err := h.manager.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, session.Snapshot())
}

// handleSubmit 发送消息并等待回复；失败时仍返回会话快照
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	session, err := h.manager.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := session.Submit(r.Context(), payload.Text)
	if err != nil {
		utils.RespondJSON(w, apierr.Status(err), submitResponse{
			Snapshot: session.Snapshot(),
			Error:    err.Error(),
		})
		return
	}

	utils.RespondJSON(w, http.StatusOK, submitResponse{
		Reply:    &reply,
		Snapshot: session.Snapshot(),
	})
}

// handleClose 关闭会话
func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Close(chi.URLParam(r, "sessionID")); err != nil {
		apierr.Respond(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
