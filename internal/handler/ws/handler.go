package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	promptHandler "github.com/zhouzirui/chatbot-aggregator/backend/internal/handler/prompt"
	sessionHandler "github.com/zhouzirui/chatbot-aggregator/backend/internal/handler/session"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/chatbot"
	promptModel "github.com/zhouzirui/chatbot-aggregator/backend/internal/model/prompt"
	historyService "github.com/zhouzirui/chatbot-aggregator/backend/internal/service/history"
)

const (
	readTimeout  = 90 * time.Second
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Handler WebSocket RPC 处理器：每个客户端帧对应一次请求/响应交换。
type Handler struct {
	registry   chatbot.Store
	dispatcher promptHandler.Dispatcher
	sessions   sessionHandler.Manager
	history    *historyService.Service
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

// New 创建WebSocket处理器
func New(registry chatbot.Store, dispatcher promptHandler.Dispatcher, sessions sessionHandler.Manager, history *historyService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		sessions:   sessions,
		history:    history,
		logger:     logger.Named("websocket"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type listRequest struct {
	All bool `json:"all"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("client connected", zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, conn)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("read failed", zap.Error(err))
			}
			return
		}

		h.handleMessage(ctx, conn, &msg)

		// 分发耗时不计入下一次读取的超时。
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *websocket.Conn, msg *inboundMessage) {
	switch msg.Type {
	case "prompt":
		h.handlePrompt(ctx, conn, msg)
	case "list_chatbots":
		h.handleList(conn, msg)
	case "setup_sessions":
		h.handleSetup(ctx, conn, msg)
	default:
		h.sendError(conn, msg.ID, "unsupported message type: "+msg.Type)
	}
}

func (h *Handler) handlePrompt(ctx context.Context, conn *websocket.Conn, msg *inboundMessage) {
	var req promptModel.Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		h.sendError(conn, msg.ID, "invalid prompt payload")
		return
	}

	req, err := req.Normalize()
	if err != nil {
		h.sendError(conn, msg.ID, err.Error())
		return
	}

	bundle, err := h.dispatcher.DispatchObserved(ctx, req, func(index int, result promptModel.Result) {
		h.send(conn, "result", msg.ID, promptHandler.ResultEvent{Index: index, Result: result})
	})
	if err != nil {
		h.sendError(conn, msg.ID, err.Error())
		return
	}

	entry := h.history.Record(ctx, req, bundle)
	h.send(conn, "bundle", msg.ID, map[string]any{"historyId": entry.ID, "bundle": bundle})
}

func (h *Handler) handleList(conn *websocket.Conn, msg *inboundMessage) {
	var req listRequest
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			h.sendError(conn, msg.ID, "invalid list payload")
			return
		}
	}

	targets := h.registry.List()
	if req.All {
		targets = h.registry.All()
	}
	h.send(conn, "chatbots", msg.ID, targets)
}

func (h *Handler) handleSetup(ctx context.Context, conn *websocket.Conn, msg *inboundMessage) {
	var req sessionHandler.SetupRequest
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			h.sendError(conn, msg.ID, "invalid setup payload")
			return
		}
	}

	_, resp, err := sessionHandler.Setup(ctx, h.registry, h.sessions, req.Chatbots)
	if err != nil {
		h.sendError(conn, msg.ID, err.Error())
		return
	}
	h.send(conn, "sessions", msg.ID, resp)
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, msgType, id string, data any) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteJSON(outgoingMessage{
		Type:      msgType,
		ID:        id,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		h.logger.Debug("write failed", zap.String("type", msgType), zap.Error(err))
	}
}

func (h *Handler) sendError(conn *websocket.Conn, id, message string) {
	h.send(conn, "error", id, map[string]string{"error": message})
}
