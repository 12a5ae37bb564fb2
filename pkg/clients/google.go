package clients

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/llms/googleai"
)

const (
	// DefaultGoogleModel is the default model to use if none is specified
	DefaultGoogleModel = "gemini-2.5-flash"
	GoogleProModel     = "gemini-2.5-pro"
)

func GoogleAI(ctx context.Context, apiKey, model string) (*googleai.GoogleAI, error) {
	if apiKey == "" {
		return nil, errors.New("google api key is not set")
	}
	if model == "" {
		model = DefaultGoogleModel
	}
	// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
	return googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(model))
}
