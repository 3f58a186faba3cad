package adapter

import (
	"go.uber.org/zap"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/config"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/chatbot"
)

// FromConfig registers every built-in adapter variant. Vendors without
// credentials are still registered and fail at Connect with an auth error,
// so their targets report why they are unusable.
func FromConfig(providers config.ProvidersConfig, log *zap.Logger) *Set {
	set := NewSet()
	set.Register(chatbot.KindChatGPT, NewOpenAI(string(chatbot.KindChatGPT), providers.OpenAI, log, WithModelCheck()))
	set.Register(chatbot.KindPerplexity, NewOpenAI(string(chatbot.KindPerplexity), providers.Perplexity, log))
	set.Register(chatbot.KindClaude, NewAnthropic(providers.Anthropic, log))
	set.Register(chatbot.KindGemini, NewGemini(providers.Gemini, log))
	set.Register(chatbot.KindDoubao, NewArk(providers.Ark, log))
	set.Register(chatbot.KindA2A, NewA2A(log))
	return set
}

// Close releases adapters that hold connections.
func (s *Set) Close() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.adapters {
		if c, ok := a.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
