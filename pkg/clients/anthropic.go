package clients

import (
	"errors"

	"github.com/tmc/langchaingo/llms/anthropic"
)

const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	Claude35Haiku         = "claude-3-5-haiku-20241022"
)

func AnthropicAI(apiKey, baseURL, model string) (*anthropic.LLM, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key is not set")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	opts := []anthropic.Option{anthropic.WithToken(apiKey), anthropic.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return anthropic.New(opts...)
}
