package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/config"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/logger"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/chatbot"
	sessionModel "github.com/zhouzirui/chatbot-aggregator/backend/internal/model/session"
)

const defaultArkSystemPrompt = "你是一个乐于助人的助手，请直接回答用户的问题。"

// ChatModelFactory builds the eino chat model behind the Ark adapter.
type ChatModelFactory func(ctx context.Context) (model.BaseChatModel, error)

// Ark serves Doubao through Volcengine Ark using an eino chain.
type Ark struct {
	cfg      config.ArkConfig
	newModel ChatModelFactory
	system   string
	logger   *zap.Logger

	mu    sync.Mutex
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewArk creates the Doubao adapter backed by the configured Ark model.
func NewArk(cfg config.ArkConfig, log *zap.Logger) *Ark {
	factory := func(ctx context.Context) (model.BaseChatModel, error) {
		return cfg.NewChatModel(ctx)
	}
	return NewArkWithFactory(cfg, factory, log)
}

// NewArkWithFactory lets callers supply their own chat model.
func NewArkWithFactory(cfg config.ArkConfig, factory ChatModelFactory, log *zap.Logger) *Ark {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ark{
		cfg:      cfg,
		newModel: factory,
		system:   defaultArkSystemPrompt,
		logger:   log.Named("adapter").With(zap.String("vendor", string(chatbot.KindDoubao))),
	}
}

// Connect compiles the chain. Credentials live in the config, so the
// session only records the model name.
func (a *Ark) Connect(ctx context.Context, target chatbot.Target) (sessionModel.Grant, error) {
	if _, err := a.runnable(ctx); err != nil {
		return sessionModel.Grant{}, err
	}

	a.logger.Debug("connected", zap.String("target", target.ID), zap.String("model", a.cfg.Model))
	return sessionModel.Grant{Token: a.cfg.Model}, nil
}

func (a *Ark) Send(ctx context.Context, prompt string, sess sessionModel.Session) (string, error) {
	chain, err := a.runnable(ctx)
	if err != nil {
		return "", err
	}

	resp, err := chain.Invoke(ctx, map[string]any{
		"system": a.system,
		"query":  prompt,
	})
	if err != nil {
		return "", Classify(fmt.Errorf("run ark chain: %w", err))
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", Errorf(KindBadResponse, "empty response content")
	}

	content := strings.TrimSpace(resp.Content)
	a.logger.Debug("completion received",
		zap.String("target", sess.TargetID),
		zap.String("preview", logger.Truncate(content, 80)))
	return content, nil
}

func (a *Ark) runnable(ctx context.Context) (compose.Runnable[map[string]any, *schema.Message], error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.chain != nil {
		return a.chain, nil
	}

	chatModel, err := a.newModel(ctx)
	if err != nil {
		return nil, &Error{Kind: KindAuth, Message: "create chat model: " + err.Error(), Cause: err}
	}

	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: "compile chat chain: " + err.Error(), Cause: err}
	}

	a.chain = runnable
	return runnable, nil
}
