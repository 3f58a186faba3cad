package chatbot

import "fmt"

// Kind selects the adapter variant that knows how to talk to a target.
type Kind string

const (
	KindChatGPT    Kind = "chatgpt"
	KindClaude     Kind = "claude"
	KindGemini     Kind = "gemini"
	KindPerplexity Kind = "perplexity"
	KindDoubao     Kind = "doubao"
	KindA2A        Kind = "a2a"
)

// Kinds lists every adapter variant the backend ships with.
func Kinds() []Kind {
	return []Kind{KindChatGPT, KindClaude, KindGemini, KindPerplexity, KindDoubao, KindA2A}
}

// ParseKind validates a kind read from configuration.
func ParseKind(raw string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == raw {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown chatbot kind %q", raw)
}

// Target describes one chatbot the backend can dispatch prompts to.
// Targets are immutable once the registry is loaded.
type Target struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Enabled bool   `json:"is_enabled"`
	Kind    Kind   `json:"kind"`
}

// Seed provides the built-in chatbot list exposed to the desktop client.
func Seed() []Target {
	return []Target{
		{
			ID:      "chatgpt",
			Name:    "ChatGPT",
			URL:     "https://chat.openai.com",
			Enabled: true,
			Kind:    KindChatGPT,
		},
		{
			ID:      "claude",
			Name:    "Claude",
			URL:     "https://claude.ai",
			Enabled: true,
			Kind:    KindClaude,
		},
		{
			ID:      "gemini",
			Name:    "Gemini",
			URL:     "https://gemini.google.com",
			Enabled: true,
			Kind:    KindGemini,
		},
		{
			ID:      "perplexity",
			Name:    "Perplexity",
			URL:     "https://www.perplexity.ai",
			Enabled: true,
			Kind:    KindPerplexity,
		},
		{
			ID:      "doubao",
			Name:    "豆包",
			URL:     "https://www.doubao.com",
			Enabled: false,
			Kind:    KindDoubao,
		},
	}
}
