package prompt

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	promptModel "github.com/zhouzirui/chatbot-aggregator/backend/internal/model/prompt"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/service/dispatch"
	historyService "github.com/zhouzirui/chatbot-aggregator/backend/internal/service/history"
	"github.com/zhouzirui/chatbot-aggregator/backend/pkg/utils"
)

// Dispatcher 将 prompt 分发给多个 chatbot。
type Dispatcher interface {
	Dispatch(ctx context.Context, req promptModel.Request) (promptModel.Bundle, error)
	DispatchObserved(ctx context.Context, req promptModel.Request, observe dispatch.Observer) (promptModel.Bundle, error)
}

// Handler prompt 分发与历史记录的HTTP处理器
type Handler struct {
	dispatcher Dispatcher
	history    *historyService.Service
	logger     *zap.Logger
}

// New 创建prompt处理器
func New(dispatcher Dispatcher, history *historyService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		dispatcher: dispatcher,
		history:    history,
		logger:     logger.Named("prompt"),
	}
}

// RegisterRoutes 注册prompt相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/prompt", h.handlePrompt)
	r.Post("/prompt/stream", h.handleStream)
	r.Get("/history", h.handleListHistory)
	r.Get("/history/{entryID}", h.handleGetHistory)
}

// ResultEvent 流式 "result" 事件的负载。
type ResultEvent struct {
	Index  int                `json:"index"`
	Result promptModel.Result `json:"result"`
}

func (h *Handler) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptModel.Request
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := req.Normalize()
	if err != nil {
		h.respondDispatchError(w, err)
		return
	}

	bundle, err := h.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		h.respondDispatchError(w, err)
		return
	}

	entry := h.history.Record(r.Context(), req, bundle)
	w.Header().Set("X-History-ID", entry.ID)
	utils.RespondJSON(w, http.StatusOK, bundle)
}

// handleStream 以 SSE 推送每个 chatbot 的结果，最后推送完整 bundle。
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	var req promptModel.Request
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// 在打开流之前校验，非法请求仍返回 400。
	req, err := req.Normalize()
	if err != nil {
		h.respondDispatchError(w, err)
		return
	}

	sse, err := utils.NewSSEWriter(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	bundle, err := h.dispatcher.DispatchObserved(r.Context(), req, func(index int, result promptModel.Result) {
		if err := sse.Event("result", ResultEvent{Index: index, Result: result}); err != nil {
			h.logger.Debug("stream client gone", zap.Error(err))
		}
	})
	if err != nil {
		h.logger.Error("dispatch failed", zap.Error(err))
		_ = sse.Event("error", map[string]string{"error": err.Error()})
		return
	}

	entry := h.history.Record(r.Context(), req, bundle)
	if err := sse.Event("bundle", map[string]any{"historyId": entry.ID, "bundle": bundle}); err != nil {
		h.logger.Debug("stream client gone", zap.Error(err))
	}
}

func (h *Handler) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	utils.RespondJSON(w, http.StatusOK, h.history.List(r.Context(), limit))
}

func (h *Handler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	entry, err := h.history.Get(r.Context(), chi.URLParam(r, "entryID"))
	if err != nil {
		if errors.Is(err, historyService.ErrEntryNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, entry)
}

func (h *Handler) respondDispatchError(w http.ResponseWriter, err error) {
	if errors.Is(err, promptModel.ErrMalformedRequest) {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error("dispatch failed", zap.Error(err))
	utils.RespondError(w, http.StatusInternalServerError, "dispatch failed")
}
