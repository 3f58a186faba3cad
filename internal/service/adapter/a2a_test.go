package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	sdka2a "github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/chatbot"
	sessionModel "github.com/zhouzirui/chatbot-aggregator/backend/internal/model/session"
)

// echoExecutor answers "pong: <prompt>", either as a direct message or as a
// completed task carrying an artifact.
type echoExecutor struct {
	asTask bool
}

func (e echoExecutor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	var prompt string
	if reqCtx.Message != nil {
		prompt = partsText(reqCtx.Message.Parts)
	}
	reply := "pong: " + prompt

	if !e.asTask {
		return queue.Write(ctx, sdka2a.NewMessage(sdka2a.MessageRoleAgent, sdka2a.TextPart{Text: reply}))
	}
	return queue.Write(ctx, &sdka2a.Task{
		ID:        reqCtx.TaskID,
		ContextID: reqCtx.ContextID,
		Status:    sdka2a.TaskStatus{State: sdka2a.TaskStateCompleted},
		Artifacts: []*sdka2a.Artifact{
			{ID: "answer", Parts: sdka2a.ContentParts{sdka2a.TextPart{Text: reply}}},
		},
	})
}

func (echoExecutor) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	event := sdka2a.NewStatusUpdateEvent(reqCtx, sdka2a.TaskStateCanceled, nil)
	event.Final = true
	return queue.Write(ctx, event)
}

// newAgentServer serves the executor over JSON-RPC at /rpc. card, when set,
// handles the well-known agent card path.
func newAgentServer(t *testing.T, exec a2asrv.AgentExecutor, card http.HandlerFunc) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.Handle("/rpc", a2asrv.NewJSONRPCHandler(a2asrv.NewHandler(exec)))
	if card != nil {
		mux.HandleFunc("/.well-known/agent-card.json", card)
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func serveCard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"name":"echo agent","description":"echoes prompts","version":"1.0.0"}`))
}

func sendOverWire(t *testing.T, exec a2asrv.AgentExecutor) (string, error) {
	t.Helper()

	srv := newAgentServer(t, exec, serveCard)
	a := NewA2A(zaptest.NewLogger(t))
	defer a.Close()

	grant, err := a.Connect(context.Background(), chatbot.Target{ID: "agent", Kind: chatbot.KindA2A, URL: srv.URL + "/rpc"})
	require.NoError(t, err)

	return a.Send(context.Background(), "ping", sessionModel.Session{TargetID: "agent", Token: grant.Token})
}

func TestReplyTextFromMessage(t *testing.T) {
	msg := sdka2a.NewMessage(sdka2a.MessageRoleAgent, &sdka2a.TextPart{Text: " hello "}, &sdka2a.TextPart{Text: "world"})

	text, err := replyText(msg)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld", text)
}

func TestReplyTextAcceptsValueParts(t *testing.T) {
	msg := sdka2a.NewMessage(sdka2a.MessageRoleAgent, sdka2a.TextPart{Text: "pong"})

	text, err := replyText(msg)
	require.NoError(t, err)
	assert.Equal(t, "pong", text)
}

func TestReplyTextFromTaskArtifacts(t *testing.T) {
	task := &sdka2a.Task{
		Status: sdka2a.TaskStatus{
			State:   sdka2a.TaskStateCompleted,
			Message: sdka2a.NewMessage(sdka2a.MessageRoleAgent, &sdka2a.TextPart{Text: "done"}),
		},
		Artifacts: []*sdka2a.Artifact{
			{Parts: sdka2a.ContentParts{&sdka2a.TextPart{Text: "answer"}}},
		},
	}

	text, err := replyText(task)
	require.NoError(t, err)
	assert.Equal(t, "answer", text)
}

func TestReplyTextFallsBackToStatusMessage(t *testing.T) {
	task := &sdka2a.Task{
		Status: sdka2a.TaskStatus{
			State:   sdka2a.TaskStateCompleted,
			Message: sdka2a.NewMessage(sdka2a.MessageRoleAgent, &sdka2a.TextPart{Text: "done"}),
		},
	}

	text, err := replyText(task)
	require.NoError(t, err)
	assert.Equal(t, "done", text)
}

func TestReplyTextTaskStates(t *testing.T) {
	cases := map[sdka2a.TaskState]ErrorKind{
		sdka2a.TaskStateFailed:       KindBadResponse,
		sdka2a.TaskStateRejected:     KindBadResponse,
		sdka2a.TaskStateAuthRequired: KindAuth,
	}
	for state, want := range cases {
		_, err := replyText(&sdka2a.Task{Status: sdka2a.TaskStatus{State: state}})
		var typed *Error
		require.ErrorAs(t, err, &typed, string(state))
		assert.Equal(t, want, typed.Kind, string(state))
	}
}

func TestA2AConnectRequiresURL(t *testing.T) {
	a := NewA2A(zaptest.NewLogger(t))
	defer a.Close()

	_, err := a.Connect(context.Background(), chatbot.Target{ID: "agent", Kind: chatbot.KindA2A})
	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, KindInternal, typed.Kind)
}

func TestA2ASendMessageReplyOverWire(t *testing.T) {
	reply, err := sendOverWire(t, echoExecutor{})
	require.NoError(t, err)
	assert.Equal(t, "pong: ping", reply)
}

func TestA2ASendTaskArtifactOverWire(t *testing.T) {
	reply, err := sendOverWire(t, echoExecutor{asTask: true})
	require.NoError(t, err)
	assert.Equal(t, "pong: ping", reply)
}

func TestA2AConnectAcceptsAgentWithoutCard(t *testing.T) {
	srv := newAgentServer(t, echoExecutor{}, nil)
	a := NewA2A(zaptest.NewLogger(t))
	defer a.Close()

	grant, err := a.Connect(context.Background(), chatbot.Target{ID: "agent", Kind: chatbot.KindA2A, URL: srv.URL + "/rpc"})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/rpc", grant.Token)
}

func TestA2AConnectUnreachableAgent(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL + "/rpc"
	srv.Close()

	a := NewA2A(zaptest.NewLogger(t))
	defer a.Close()

	_, err := a.Connect(context.Background(), chatbot.Target{ID: "agent", Kind: chatbot.KindA2A, URL: endpoint})
	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, KindUnavailable, typed.Kind)
}

func TestA2AConnectRejectedCard(t *testing.T) {
	srv := newAgentServer(t, echoExecutor{}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	a := NewA2A(zaptest.NewLogger(t))
	defer a.Close()

	_, err := a.Connect(context.Background(), chatbot.Target{ID: "agent", Kind: chatbot.KindA2A, URL: srv.URL + "/rpc"})
	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, KindAuth, typed.Kind)
}
