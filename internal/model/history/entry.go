package history

import (
	"time"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/prompt"
)

// Entry records one completed dispatch for later review.
type Entry struct {
	ID        string        `json:"id"`
	Prompt    string        `json:"prompt"`
	Chatbots  []string      `json:"chatbots"`
	Bundle    prompt.Bundle `json:"bundle"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Summary is the compact form used in listings.
type Summary struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	Chatbots  []string  `json:"chatbots"`
	Success   int       `json:"success"`
	Failed    int       `json:"failed"`
	TimedOut  int       `json:"timedOut"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summarize condenses an entry.
func (e Entry) Summarize() Summary {
	return Summary{
		ID:        e.ID,
		Prompt:    e.Prompt,
		Chatbots:  e.Chatbots,
		Success:   e.Bundle.Count(prompt.StatusSuccess),
		Failed:    e.Bundle.Count(prompt.StatusError),
		TimedOut:  e.Bundle.Count(prompt.StatusTimeout),
		CreatedAt: e.CreatedAt,
	}
}
