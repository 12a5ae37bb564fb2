// Package clients constructs the LLM used for research.
package clients

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/wdndev/tiny-deep-research/pkg/config"
)

// New returns the model for the configured provider.
func New(ctx context.Context, cfg config.LLMConfig) (llms.Model, error) {
	switch cfg.Provider {
	case "", "openai", "deepseek":
		return OpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "google", "gemini":
		return GoogleAI(ctx, cfg.APIKey, cfg.Model)
	case "anthropic":
		return AnthropicAI(cfg.APIKey, cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
