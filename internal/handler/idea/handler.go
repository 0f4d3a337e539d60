package idea

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/pac-chat/backend/internal/model/idea"
	"github.com/zhouzirui/pac-chat/backend/pkg/utils"
)

// Handler 提示卡片的HTTP处理器
type Handler struct {
	ideas idea.Store
}

// New 创建提示卡片处理器
func New(ideas idea.Store) *Handler {
	return &Handler{
		ideas: ideas,
	}
}

// RegisterRoutes 注册提示卡片相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ideas", h.handleListIdeas)
	r.Get("/ideas/{ideaID}", h.handleGetIdea)
}

type ideaResponse struct {
	idea.Idea
	Prompt string `json:"prompt"`
}

// handleListIdeas 列出所有提示卡片
func (h *Handler) handleListIdeas(w http.ResponseWriter, r *http.Request) {
	items := h.ideas.List()
	resp := make([]ideaResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, ideaResponse{Idea: item, Prompt: item.Prompt()})
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleGetIdea 获取单个提示卡片
func (h *Handler) handleGetIdea(w http.ResponseWriter, r *http.Request) {
	item, ok := h.ideas.FindByID(chi.URLParam(r, "ideaID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "idea not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, ideaResponse{Idea: item, Prompt: item.Prompt()})
}
