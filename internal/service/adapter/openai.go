package adapter

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/config"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/logger"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/chatbot"
	sessionModel "github.com/zhouzirui/chatbot-aggregator/backend/internal/model/session"
)

// OpenAI serves ChatGPT and any OpenAI-compatible chat API (Perplexity).
type OpenAI struct {
	name       string
	cfg        config.OpenAIConfig
	verify     bool
	httpClient *http.Client
	logger     *zap.Logger
}

// OpenAIOption customises an OpenAI adapter.
type OpenAIOption func(*OpenAI)

// WithModelCheck makes Connect list the vendor's models to validate the key.
// Perplexity has no model listing, so it is off by default.
func WithModelCheck() OpenAIOption {
	return func(o *OpenAI) { o.verify = true }
}

// WithHTTPClient overrides the HTTP client used for vendor calls.
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(o *OpenAI) { o.httpClient = client }
}

// NewOpenAI creates an adapter for an OpenAI-compatible vendor.
func NewOpenAI(name string, cfg config.OpenAIConfig, log *zap.Logger, opts ...OpenAIOption) *OpenAI {
	if log == nil {
		log = zap.NewNop()
	}
	o := &OpenAI{
		name:   name,
		cfg:    cfg,
		logger: log.Named("adapter").With(zap.String("vendor", name)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *OpenAI) Connect(ctx context.Context, target chatbot.Target) (sessionModel.Grant, error) {
	if !o.cfg.Enabled() {
		return sessionModel.Grant{}, Errorf(KindAuth, "%s credentials are not configured", o.name)
	}

	if o.verify {
		if _, err := o.client(o.cfg.APIKey).ListModels(ctx); err != nil {
			return sessionModel.Grant{}, classifyOpenAI(err)
		}
	}

	o.logger.Debug("connected", zap.String("target", target.ID), zap.String("model", o.cfg.Model))
	return sessionModel.Grant{Token: o.cfg.APIKey}, nil
}

func (o *OpenAI) Send(ctx context.Context, prompt string, sess sessionModel.Session) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if o.cfg.Temperature != nil {
		req.Temperature = float32(*o.cfg.Temperature)
	}

	resp, err := o.client(sess.Token).CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAI(err)
	}
	if len(resp.Choices) == 0 {
		return "", Errorf(KindBadResponse, "no choices in response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", Errorf(KindBadResponse, "empty response content")
	}

	o.logger.Debug("completion received",
		zap.String("target", sess.TargetID),
		zap.String("preview", logger.Truncate(content, 80)))
	return content, nil
}

func (o *OpenAI) client(token string) *openai.Client {
	cfg := openai.DefaultConfig(token)
	if o.cfg.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(o.cfg.BaseURL, "/")
	}
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	}
	return openai.NewClientWithConfig(cfg)
}

func classifyOpenAI(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: KindForStatus(apiErr.HTTPStatusCode), Message: apiErr.Message, Cause: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Kind: KindForStatus(reqErr.HTTPStatusCode), Message: reqErr.Error(), Cause: err}
	}

	return Classify(err)
}
