package session

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/chatbot"
	sessionModel "github.com/zhouzirui/chatbot-aggregator/backend/internal/model/session"
	sessionService "github.com/zhouzirui/chatbot-aggregator/backend/internal/service/session"
	"github.com/zhouzirui/chatbot-aggregator/backend/pkg/utils"
)

// Manager HTTP 层需要的会话管理能力。
type Manager interface {
	Setup(ctx context.Context, targets []chatbot.Target) []sessionService.SetupResult
	Snapshot() []sessionModel.Session
	Invalidate(id string) bool
}

// Handler 会话管理的HTTP处理器
type Handler struct {
	registry chatbot.Store
	sessions Manager
}

// New 创建会话处理器
func New(registry chatbot.Store, sessions Manager) *Handler {
	return &Handler{registry: registry, sessions: sessions}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions/setup", h.handleSetup)
	r.Get("/sessions", h.handleList)
	r.Delete("/sessions/{targetID}", h.handleInvalidate)
}

// SetupRequest 可选地限定需要预热的 chatbot。
type SetupRequest struct {
	Chatbots []string `json:"chatbots"`
}

// SetupResponse 按 chatbot 汇报预热结果。
type SetupResponse struct {
	Ready   int                          `json:"ready"`
	Failed  int                          `json:"failed"`
	Results []sessionService.SetupResult `json:"results"`
}

// handleSetup 预热会话；请求体可省略，默认处理所有启用的 chatbot。
func (h *Handler) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req SetupRequest
	if err := utils.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, resp, err := Setup(r.Context(), h.registry, h.sessions, req.Chatbots)
	if err != nil {
		utils.RespondError(w, status, err.Error())
		return
	}
	utils.RespondJSON(w, status, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.sessions.Snapshot())
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "targetID")
	if !h.sessions.Invalidate(id) {
		utils.RespondError(w, http.StatusNotFound, "no session for "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Setup 选出目标并预热会话，返回与结果对应的 HTTP 状态码。
func Setup(ctx context.Context, registry chatbot.Store, sessions Manager, ids []string) (int, SetupResponse, error) {
	targets, err := chatbot.Select(registry, ids)
	if err != nil {
		if errors.Is(err, chatbot.ErrTargetNotFound) {
			return http.StatusNotFound, SetupResponse{}, err
		}
		return http.StatusBadRequest, SetupResponse{}, err
	}

	resp := SetupResponse{Results: sessions.Setup(ctx, targets)}
	for _, res := range resp.Results {
		if res.Ready {
			resp.Ready++
		} else {
			resp.Failed++
		}
	}

	status := http.StatusOK
	if resp.Failed > 0 {
		status = http.StatusMultiStatus
	}
	return status, resp, nil
}
