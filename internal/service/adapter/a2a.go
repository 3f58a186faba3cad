package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	sdka2a "github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"
	"go.uber.org/zap"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/chatbot"
	sessionModel "github.com/zhouzirui/chatbot-aggregator/backend/internal/model/session"
)

// A2A forwards prompts to remote agents speaking the A2A protocol over
// JSON-RPC. The target's URL is the agent endpoint.
type A2A struct {
	logger     *zap.Logger
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]*a2aclient.Client
}

// NewA2A creates the remote agent adapter.
func NewA2A(log *zap.Logger) *A2A {
	if log == nil {
		log = zap.NewNop()
	}
	return &A2A{
		logger:     log.Named("adapter").With(zap.String("vendor", string(chatbot.KindA2A))),
		httpClient: http.DefaultClient,
		clients:    make(map[string]*a2aclient.Client),
	}
}

// Connect checks that the agent answers before handing out a session, so
// setup reports unreachable agents instead of failing on the first prompt.
func (a *A2A) Connect(ctx context.Context, target chatbot.Target) (sessionModel.Grant, error) {
	endpoint := strings.TrimSpace(target.URL)
	if endpoint == "" {
		return sessionModel.Grant{}, Errorf(KindInternal, "target %s has no agent url", target.ID)
	}

	card, err := a.fetchCard(ctx, endpoint)
	if err != nil {
		return sessionModel.Grant{}, err
	}

	if _, err := a.client(ctx, endpoint); err != nil {
		return sessionModel.Grant{}, err
	}

	fields := []zap.Field{zap.String("target", target.ID), zap.String("endpoint", endpoint)}
	if card != nil {
		fields = append(fields, zap.String("agent", card.Name))
	}
	a.logger.Debug("connected", fields...)
	return sessionModel.Grant{Token: endpoint}, nil
}

func (a *A2A) Send(ctx context.Context, prompt string, sess sessionModel.Session) (string, error) {
	client, err := a.client(ctx, sess.Token)
	if err != nil {
		return "", err
	}

	msg := sdka2a.NewMessage(sdka2a.MessageRoleUser, &sdka2a.TextPart{Text: prompt})
	result, err := client.SendMessage(ctx, &sdka2a.MessageSendParams{Message: msg})
	if err != nil {
		return "", Classify(fmt.Errorf("send message: %w", err))
	}

	return replyText(result)
}

// Close releases every cached client.
func (a *A2A) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for endpoint, client := range a.clients {
		if err := client.Destroy(); err != nil {
			a.logger.Warn("destroy client", zap.String("endpoint", endpoint), zap.Error(err))
		}
		delete(a.clients, endpoint)
	}
}

func (a *A2A) client(ctx context.Context, endpoint string) (*a2aclient.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.clients[endpoint]; ok {
		return c, nil
	}

	c, err := a2aclient.NewFromEndpoints(ctx, []sdka2a.AgentInterface{
		{URL: endpoint, Transport: sdka2a.TransportProtocolJSONRPC},
	})
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Message: "create a2a client: " + err.Error(), Cause: err}
	}
	a.clients[endpoint] = c
	return c, nil
}

// agentCardPaths are tried in order; older agents only serve agent.json.
var agentCardPaths = []string{"/.well-known/agent-card.json", "/.well-known/agent.json"}

// fetchCard asks the agent host for its card. Any answer other than an auth,
// rate limit or server error proves the agent is up, card or not.
func (a *A2A) fetchCard(ctx context.Context, endpoint string) (*sdka2a.AgentCard, error) {
	base, err := url.Parse(endpoint)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, Errorf(KindInternal, "invalid agent url %q", endpoint)
	}

	for _, path := range agentCardPaths {
		cardURL := (&url.URL{Scheme: base.Scheme, Host: base.Host, Path: path}).String()
		card, status, err := a.getCard(ctx, cardURL)
		if err != nil {
			return nil, err
		}
		if status == http.StatusNotFound {
			continue
		}
		return card, nil
	}
	return nil, nil
}

func (a *A2A) getCard(ctx context.Context, cardURL string) (*sdka2a.AgentCard, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return nil, 0, Errorf(KindInternal, "build agent card request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, &Error{Kind: KindUnavailable, Message: "agent unreachable: " + err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var card sdka2a.AgentCard
		if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
			a.logger.Debug("agent card unreadable", zap.String("url", cardURL), zap.Error(err))
			return nil, resp.StatusCode, nil
		}
		return &card, resp.StatusCode, nil
	}

	if resp.StatusCode >= http.StatusBadRequest {
		if kind := KindForStatus(resp.StatusCode); kind != KindBadResponse {
			return nil, resp.StatusCode, Errorf(kind, "agent card: status %d", resp.StatusCode)
		}
	}
	return nil, resp.StatusCode, nil
}

// replyText extracts the agent's answer from either a direct message or a
// task. Tasks prefer artifact text over the status message.
func replyText(result any) (string, error) {
	switch r := result.(type) {
	case *sdka2a.Message:
		if text := partsText(r.Parts); text != "" {
			return text, nil
		}
		return "", Errorf(KindBadResponse, "agent replied without text")

	case *sdka2a.Task:
		switch r.Status.State {
		case sdka2a.TaskStateFailed, sdka2a.TaskStateRejected, sdka2a.TaskStateCanceled:
			return "", Errorf(KindBadResponse, "agent task %s: %s", r.Status.State, statusText(r))
		case sdka2a.TaskStateAuthRequired:
			return "", Errorf(KindAuth, "agent requires authentication")
		}

		var parts []string
		for _, art := range r.Artifacts {
			if art == nil {
				continue
			}
			if text := partsText(art.Parts); text != "" {
				parts = append(parts, text)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n"), nil
		}
		if text := statusText(r); text != "" {
			return text, nil
		}
		return "", Errorf(KindBadResponse, "agent task %s has no text output", r.Status.State)

	default:
		return "", Errorf(KindBadResponse, "unexpected agent result %T", result)
	}
}

func statusText(task *sdka2a.Task) string {
	if task.Status.Message == nil {
		return ""
	}
	return partsText(task.Status.Message.Parts)
}

func partsText(parts sdka2a.ContentParts) string {
	var texts []string
	for _, p := range parts {
		// Decoded replies carry values; locally built ones often pointers.
		var text string
		switch tp := p.(type) {
		case sdka2a.TextPart:
			text = tp.Text
		case *sdka2a.TextPart:
			if tp != nil {
				text = tp.Text
			}
		}
		if text = strings.TrimSpace(text); text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n")
}
