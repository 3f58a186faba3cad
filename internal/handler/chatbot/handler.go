package chatbot

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/chatbot"
	"github.com/zhouzirui/chatbot-aggregator/backend/pkg/utils"
)

// Handler chatbot 列表的HTTP处理器
type Handler struct {
	registry chatbot.Store
}

// New 创建chatbot处理器
func New(registry chatbot.Store) *Handler {
	return &Handler{registry: registry}
}

// RegisterRoutes 注册chatbot相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chatbots", h.handleList)
}

// handleList 默认只列出启用的 chatbot，?all=true 时包含禁用项。
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	all := false
	if raw := r.URL.Query().Get("all"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "all must be a boolean")
			return
		}
		all = parsed
	}

	targets := h.registry.List()
	if all {
		targets = h.registry.All()
	}
	utils.RespondJSON(w, http.StatusOK, targets)
}
