package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/chatbot"
	promptModel "github.com/zhouzirui/chatbot-aggregator/backend/internal/model/prompt"
	sessionModel "github.com/zhouzirui/chatbot-aggregator/backend/internal/model/session"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/service/adapter"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/service/dispatch"
	historyService "github.com/zhouzirui/chatbot-aggregator/backend/internal/service/history"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/service/session"
)

type echoAdapter struct{}

func (echoAdapter) Connect(context.Context, chatbot.Target) (sessionModel.Grant, error) {
	return sessionModel.Grant{Token: "token"}, nil
}

func (echoAdapter) Send(_ context.Context, text string, _ sessionModel.Session) (string, error) {
	return text, nil
}

type frame struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

func dial(t *testing.T) *websocket.Conn {
	t.Helper()

	set := adapter.NewSet()
	for _, kind := range []chatbot.Kind{chatbot.KindChatGPT, chatbot.KindClaude, chatbot.KindGemini, chatbot.KindPerplexity} {
		set.Register(kind, echoAdapter{})
	}
	registry := chatbot.NewMemoryStore(chatbot.Seed())
	sessions := session.NewManager(set, session.Config{TTL: time.Minute, AcquireTimeout: time.Second}, nil, nil)
	dispatcher := dispatch.New(registry, sessions, set, dispatch.Config{GlobalTimeout: time.Second, CallTimeout: time.Second}, nil, nil)

	r := chi.NewRouter()
	New(registry, dispatcher, sessions, historyService.NewService(10), nil).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func exchange(t *testing.T, conn *websocket.Conn, msg map[string]any) frame {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	return read(t, conn)
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func TestListChatbots(t *testing.T) {
	conn := dial(t)

	f := exchange(t, conn, map[string]any{"type": "list_chatbots", "id": "1"})
	if f.Type != "chatbots" || f.ID != "1" {
		t.Fatalf("unexpected frame: %+v", f)
	}

	var targets []chatbot.Target
	if err := json.Unmarshal(f.Data, &targets); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(targets) != 4 {
		t.Fatalf("expected 4 chatbots, got %d", len(targets))
	}

	f = exchange(t, conn, map[string]any{"type": "list_chatbots", "id": "2", "data": map[string]any{"all": true}})
	if err := json.Unmarshal(f.Data, &targets); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(targets) != 5 {
		t.Fatalf("expected 5 chatbots, got %d", len(targets))
	}
}

func TestPromptStreamsResultsThenBundle(t *testing.T) {
	conn := dial(t)

	err := conn.WriteJSON(map[string]any{
		"type": "prompt",
		"id":   "p1",
		"data": map[string]any{"prompt": "hello", "chatbots": []string{"chatgpt", "claude"}},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	for i := 0; i < 2; i++ {
		if f := read(t, conn); f.Type != "result" || f.ID != "p1" {
			t.Fatalf("expected result frame, got %+v", f)
		}
	}

	f := read(t, conn)
	if f.Type != "bundle" {
		t.Fatalf("expected bundle frame, got %+v", f)
	}
	var payload struct {
		HistoryID string             `json:"historyId"`
		Bundle    promptModel.Bundle `json:"bundle"`
	}
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.HistoryID == "" || len(payload.Bundle.Results) != 2 || payload.Bundle.Results[0].ID != "chatgpt" {
		t.Fatalf("unexpected bundle: %+v", payload)
	}
}

func TestMalformedPromptAndUnknownType(t *testing.T) {
	conn := dial(t)

	f := exchange(t, conn, map[string]any{"type": "prompt", "id": "p2", "data": map[string]any{"prompt": "", "chatbots": []string{"chatgpt"}}})
	if f.Type != "error" || f.ID != "p2" {
		t.Fatalf("expected error frame, got %+v", f)
	}

	f = exchange(t, conn, map[string]any{"type": "dance"})
	if f.Type != "error" || !strings.Contains(string(f.Data), "unsupported") {
		t.Fatalf("expected unsupported error, got %+v", f)
	}
}

func TestSetupSessions(t *testing.T) {
	conn := dial(t)

	f := exchange(t, conn, map[string]any{"type": "setup_sessions", "id": "s1"})
	if f.Type != "sessions" {
		t.Fatalf("expected sessions frame, got %+v", f)
	}

	var resp struct {
		Ready  int `json:"ready"`
		Failed int `json:"failed"`
	}
	if err := json.Unmarshal(f.Data, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ready != 4 || resp.Failed != 0 {
		t.Fatalf("unexpected setup response: %+v", resp)
	}
}
