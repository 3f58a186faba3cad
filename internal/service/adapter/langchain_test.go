package adapter

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/config"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/chatbot"
	sessionModel "github.com/zhouzirui/chatbot-aggregator/backend/internal/model/session"
)

type fakeLLM struct {
	reply      string
	err        error
	lastPrompt atomic.Value
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if len(messages) > 0 && len(messages[0].Parts) > 0 {
		if text, ok := messages[0].Parts[0].(llms.TextContent); ok {
			f.lastPrompt.Store(text.Text)
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func newLangChainAdapter(t *testing.T, llm *fakeLLM, built *atomic.Int32) *LangChain {
	t.Helper()
	cfg := config.LLMConfig{APIKey: "key", Model: "claude-test"}
	factory := func(context.Context, string) (llms.Model, error) {
		built.Add(1)
		return llm, nil
	}
	return NewLangChain("claude", cfg, factory, zaptest.NewLogger(t))
}

func TestLangChainSend(t *testing.T) {
	llm := &fakeLLM{reply: "hello from claude"}
	var built atomic.Int32
	a := newLangChainAdapter(t, llm, &built)

	grant, err := a.Connect(context.Background(), chatbot.Target{ID: "claude"})
	require.NoError(t, err)

	reply, err := a.Send(context.Background(), "hello", sessionModel.Session{TargetID: "claude", Token: grant.Token})
	require.NoError(t, err)
	assert.Equal(t, "hello from claude", reply)
	assert.Equal(t, "hello", llm.lastPrompt.Load())
	assert.Equal(t, int32(1), built.Load(), "client is reused per token")
}

func TestLangChainClassifiesErrors(t *testing.T) {
	llm := &fakeLLM{err: errors.New("API returned unexpected status code: 429")}
	var built atomic.Int32
	a := newLangChainAdapter(t, llm, &built)

	_, err := a.Send(context.Background(), "hello", sessionModel.Session{TargetID: "claude", Token: "key"})
	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, KindRateLimit, typed.Kind)
}

func TestLangChainEmptyReply(t *testing.T) {
	llm := &fakeLLM{reply: "\n"}
	var built atomic.Int32
	a := newLangChainAdapter(t, llm, &built)

	_, err := a.Send(context.Background(), "hello", sessionModel.Session{TargetID: "claude", Token: "key"})
	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, KindBadResponse, typed.Kind)
}

func TestLangChainConnectRequiresKey(t *testing.T) {
	a := NewGemini(config.LLMConfig{Model: "gemini-1.5-flash"}, zaptest.NewLogger(t))

	_, err := a.Connect(context.Background(), chatbot.Target{ID: "gemini"})
	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, KindAuth, typed.Kind)
}
