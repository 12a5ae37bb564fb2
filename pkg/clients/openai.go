package clients

import (
	"errors"

	"github.com/tmc/langchaingo/llms/openai"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI connects to the OpenAI API or any compatible endpoint such as
// DeepSeek when baseURL is set.
func OpenAI(apiKey, baseURL, model string) (*openai.LLM, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is not set")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	return openai.New(opts...)
}
