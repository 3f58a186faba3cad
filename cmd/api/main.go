package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/config"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/handler"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/logger"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/chatbot"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/service/adapter"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/service/dispatch"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/service/history"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/service/metrics"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envFiles := config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)

	if len(envFiles) == 0 {
		zl.Info("no .env file found, using system environment only")
	} else {
		zl.Info("environment loaded", zap.Strings("files", envFiles))
	}

	registry, err := chatbot.Open(cfg.Registry.File)
	if err != nil {
		zl.Fatal("failed to load chatbot registry", zap.Error(err))
	}
	zl.Info("chatbot registry ready",
		zap.Int("targets", len(registry.All())),
		zap.Int("enabled", len(registry.List())),
		zap.String("file", cfg.Registry.File),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rec := metrics.New(reg)

	adapters := adapter.FromConfig(cfg.Providers, zl)
	defer adapters.Close()
	logProviders(zl, cfg.Providers)

	sessions := session.NewManager(adapters, session.Config{
		TTL:            cfg.Session.TTL,
		AcquireTimeout: cfg.Session.AcquireTimeout,
	}, zl, rec)

	if cfg.Session.Prewarm {
		go prewarm(ctx, zl, registry, sessions)
	}

	dispatcher := dispatch.New(registry, sessions, adapters, dispatch.Config{
		GlobalTimeout: cfg.Dispatch.GlobalTimeout,
		CallTimeout:   cfg.Dispatch.CallTimeout,
	}, zl, rec)

	router := handler.NewRouter(handler.Dependencies{
		Registry:   registry,
		Dispatcher: dispatcher,
		Sessions:   sessions,
		History:    history.NewService(cfg.Dispatch.HistorySize),
		Gatherer:   reg,
		Logger:     zl,
	})

	startServer(ctx, zl, cfg.Server, router)
}

func logProviders(zl *zap.Logger, providers config.ProvidersConfig) {
	zl.Info("providers configured",
		zap.Bool("openai", providers.OpenAI.Enabled()),
		zap.Bool("perplexity", providers.Perplexity.Enabled()),
		zap.Bool("anthropic", providers.Anthropic.Enabled()),
		zap.Bool("gemini", providers.Gemini.Enabled()),
		zap.Bool("ark", providers.Ark.Enabled()),
	)
}

// prewarm 启动时为所有启用的 chatbot 建立会话。
func prewarm(ctx context.Context, zl *zap.Logger, registry chatbot.Store, sessions *session.Manager) {
	results := sessions.Setup(ctx, registry.List())
	for _, res := range results {
		if res.Ready {
			continue
		}
		zl.Warn("session prewarm failed", zap.String("target", res.TargetID), zap.String("error", res.Error))
	}
	zl.Info("session prewarm finished", zap.Int("targets", len(results)))
}

func startServer(ctx context.Context, zl *zap.Logger, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	zl.Info("chatbot aggregator listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		zl.Fatal("server error", zap.Error(err))
	}
	zl.Info("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
