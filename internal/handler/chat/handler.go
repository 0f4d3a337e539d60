package chat

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/pac-chat/backend/internal/handler/apierr"
	"github.com/zhouzirui/pac-chat/backend/internal/middleware"
	chatService "github.com/zhouzirui/pac-chat/backend/internal/service/chat"
	"github.com/zhouzirui/pac-chat/backend/pkg/utils"
)

// Handler 聊天列表与用户身份的HTTP处理器
type Handler struct {
	manager  *chatService.Manager
	resolver chatService.Resolver
}

// New 创建聊天处理器
func New(manager *chatService.Manager, resolver chatService.Resolver) *Handler {
	return &Handler{
		manager:  manager,
		resolver: resolver,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/users/resolve", h.handleResolveUser)
	r.Get("/chats", h.handleListChats)
	r.Patch("/chats/{chatID}", h.handleRenameChat)
	r.Delete("/chats/{chatID}", h.handleDeleteChat)
	r.Get("/chats/{chatID}/messages", h.handleGetMessages)
}

// handleResolveUser 根据邮箱查找或创建用户
func (h *Handler) handleResolveUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.resolver.Resolve(r.Context(), payload.Email)
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"id": id})
}

// handleListChats 列出当前用户的聊天，q 非空时按标题搜索
func (h *Handler) handleListChats(w http.ResponseWriter, r *http.Request) {
	email := middleware.EmailFromContext(r.Context())
	chats, err := h.manager.SearchChats(r.Context(), email, r.URL.Query().Get("q"))
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, chats)
}

// handleRenameChat 重命名聊天
func (h *Handler) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title string `json:"title"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chatID := chi.URLParam(r, "chatID")
	email := middleware.EmailFromContext(r.Context())
	if err := h.manager.RenameChat(r.Context(), email, chatID, payload.Title); err != nil {
		apierr.Respond(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteChat 删除聊天及其全部消息
func (h *Handler) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	email := middleware.EmailFromContext(r.Context())
	if err := h.manager.DeleteChat(r.Context(), email, chatID); err != nil {
		apierr.Respond(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetMessages 按时间顺序返回聊天消息
func (h *Handler) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	email := middleware.EmailFromContext(r.Context())
	messages, err := h.manager.GetMessages(r.Context(), email, chi.URLParam(r, "chatID"))
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, messages)
}
