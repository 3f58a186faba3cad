package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedRequest marks requests that cannot be dispatched at all.
var ErrMalformedRequest = errors.New("malformed prompt request")

// Request is the inbound payload from the desktop client.
type Request struct {
	Prompt   string   `json:"prompt"`
	Chatbots []string `json:"chatbots"`
}

// Normalize trims the request and checks its structure. Target ids form a
// set, so duplicates are rejected rather than silently merged.
func (r Request) Normalize() (Request, error) {
	promptText := strings.TrimSpace(r.Prompt)
	if promptText == "" {
		return Request{}, fmt.Errorf("%w: prompt is required", ErrMalformedRequest)
	}
	if len(r.Chatbots) == 0 {
		return Request{}, fmt.Errorf("%w: at least one chatbot is required", ErrMalformedRequest)
	}

	ids := make([]string, 0, len(r.Chatbots))
	seen := make(map[string]struct{}, len(r.Chatbots))
	for _, raw := range r.Chatbots {
		id := strings.TrimSpace(raw)
		if id == "" {
			return Request{}, fmt.Errorf("%w: chatbot id must not be blank", ErrMalformedRequest)
		}
		if _, dup := seen[id]; dup {
			return Request{}, fmt.Errorf("%w: chatbot %q listed twice", ErrMalformedRequest, id)
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return Request{Prompt: promptText, Chatbots: ids}, nil
}
