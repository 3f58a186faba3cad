package adapter

import (
	"context"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"go.uber.org/zap"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/config"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/logger"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/chatbot"
	sessionModel "github.com/zhouzirui/chatbot-aggregator/backend/internal/model/session"
)

// ModelFactory builds a langchaingo model for an API key.
type ModelFactory func(ctx context.Context, token string) (llms.Model, error)

// LangChain serves vendors reached through langchaingo (Claude, Gemini).
type LangChain struct {
	name     string
	cfg      config.LLMConfig
	newModel ModelFactory
	logger   *zap.Logger

	mu     sync.Mutex
	models map[string]llms.Model
}

// NewLangChain creates an adapter that builds its models with factory.
func NewLangChain(name string, cfg config.LLMConfig, factory ModelFactory, log *zap.Logger) *LangChain {
	if log == nil {
		log = zap.NewNop()
	}
	return &LangChain{
		name:     name,
		cfg:      cfg,
		newModel: factory,
		logger:   log.Named("adapter").With(zap.String("vendor", name)),
		models:   make(map[string]llms.Model),
	}
}

// NewAnthropic wires the Anthropic Messages API.
func NewAnthropic(cfg config.LLMConfig, log *zap.Logger) *LangChain {
	factory := func(_ context.Context, token string) (llms.Model, error) {
		opts := []anthropic.Option{
			anthropic.WithToken(token),
			anthropic.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(opts...)
	}
	return NewLangChain(string(chatbot.KindClaude), cfg, factory, log)
}

// NewGemini wires Google's Gemini API.
func NewGemini(cfg config.LLMConfig, log *zap.Logger) *LangChain {
	factory := func(ctx context.Context, token string) (llms.Model, error) {
		return googleai.New(ctx,
			googleai.WithAPIKey(token),
			googleai.WithDefaultModel(cfg.Model),
		)
	}
	return NewLangChain(string(chatbot.KindGemini), cfg, factory, log)
}

func (l *LangChain) Connect(ctx context.Context, target chatbot.Target) (sessionModel.Grant, error) {
	if !l.cfg.Enabled() {
		return sessionModel.Grant{}, Errorf(KindAuth, "%s credentials are not configured", l.name)
	}

	if _, err := l.model(ctx, l.cfg.APIKey); err != nil {
		return sessionModel.Grant{}, err
	}

	l.logger.Debug("connected", zap.String("target", target.ID), zap.String("model", l.cfg.Model))
	return sessionModel.Grant{Token: l.cfg.APIKey}, nil
}

func (l *LangChain) Send(ctx context.Context, prompt string, sess sessionModel.Session) (string, error) {
	m, err := l.model(ctx, sess.Token)
	if err != nil {
		return "", err
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, m, prompt)
	if err != nil {
		return "", Classify(err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", Errorf(KindBadResponse, "empty response content")
	}

	l.logger.Debug("completion received",
		zap.String("target", sess.TargetID),
		zap.String("preview", logger.Truncate(text, 80)))
	return text, nil
}

func (l *LangChain) model(ctx context.Context, token string) (llms.Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.models[token]; ok {
		return m, nil
	}

	m, err := l.newModel(ctx, token)
	if err != nil {
		return nil, &Error{Kind: KindAuth, Message: "create client: " + err.Error(), Cause: err}
	}
	l.models[token] = m
	return m, nil
}
