package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	chatbotHandler "github.com/zhouzirui/chatbot-aggregator/backend/internal/handler/chatbot"
	promptHandler "github.com/zhouzirui/chatbot-aggregator/backend/internal/handler/prompt"
	sessionHandler "github.com/zhouzirui/chatbot-aggregator/backend/internal/handler/session"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/handler/ws"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/chatbot"
	historyService "github.com/zhouzirui/chatbot-aggregator/backend/internal/service/history"
	"github.com/zhouzirui/chatbot-aggregator/backend/pkg/utils"
)

// Dependencies groups what the HTTP layer needs.
type Dependencies struct {
	Registry   chatbot.Store
	Dispatcher promptHandler.Dispatcher
	Sessions   sessionHandler.Manager
	History    *historyService.Service
	Gatherer   prometheus.Gatherer
	Logger     *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(api chi.Router) {
		chatbotHandler.New(deps.Registry).RegisterRoutes(api)
		promptHandler.New(deps.Dispatcher, deps.History, deps.Logger).RegisterRoutes(api)
		sessionHandler.New(deps.Registry, deps.Sessions).RegisterRoutes(api)
		ws.New(deps.Registry, deps.Dispatcher, deps.Sessions, deps.History, deps.Logger).RegisterRoutes(api)
	})

	return r
}
