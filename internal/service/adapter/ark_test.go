package adapter

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/config"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/chatbot"
	sessionModel "github.com/zhouzirui/chatbot-aggregator/backend/internal/model/session"
)

type fakeChatModel struct {
	reply string
	err   error

	mu     sync.Mutex
	inputs [][]*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func newArkAdapter(t *testing.T, chat *fakeChatModel) (*Ark, *int) {
	t.Helper()
	builds := 0
	factory := func(context.Context) (model.BaseChatModel, error) {
		builds++
		return chat, nil
	}
	cfg := config.ArkConfig{APIKey: "ark-key", Model: "doubao-pro"}
	return NewArkWithFactory(cfg, factory, zaptest.NewLogger(t)), &builds
}

func TestArkSendRunsChain(t *testing.T) {
	chat := &fakeChatModel{reply: "你好"}
	a, builds := newArkAdapter(t, chat)

	grant, err := a.Connect(context.Background(), chatbot.Target{ID: "doubao"})
	require.NoError(t, err)
	assert.Equal(t, "doubao-pro", grant.Token)

	reply, err := a.Send(context.Background(), "hello", sessionModel.Session{TargetID: "doubao", Token: grant.Token})
	require.NoError(t, err)
	assert.Equal(t, "你好", reply)
	assert.Equal(t, 1, *builds)

	require.Len(t, chat.inputs, 1)
	require.Len(t, chat.inputs[0], 2)
	assert.Equal(t, schema.System, chat.inputs[0][0].Role)
	assert.Equal(t, defaultArkSystemPrompt, chat.inputs[0][0].Content)
	assert.Equal(t, schema.User, chat.inputs[0][1].Role)
	assert.Equal(t, "hello", chat.inputs[0][1].Content)
}

func TestArkSendClassifiesErrors(t *testing.T) {
	chat := &fakeChatModel{err: errors.New("status 401: invalid api key")}
	a, _ := newArkAdapter(t, chat)

	_, err := a.Send(context.Background(), "hello", sessionModel.Session{TargetID: "doubao"})
	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, KindAuth, typed.Kind)
}

func TestArkConnectFailsWithoutCredentials(t *testing.T) {
	a := NewArk(config.ArkConfig{}, zaptest.NewLogger(t))

	_, err := a.Connect(context.Background(), chatbot.Target{ID: "doubao"})
	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, KindAuth, typed.Kind)
}
