package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"lemonhealth.app/backend/internal/config"
)

// NewProviderFromConfig builds the provider named by cfg.LLMProvider. The
// returned close func releases client resources.
func NewProviderFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Provider, func(), error) {
	switch cfg.LLMProvider {
	case "gemini":
		p, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case "openai":
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel), func() {}, nil
	case "groq":
		return NewGroqProvider(cfg.GroqAPIKey, cfg.GroqModel), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}
