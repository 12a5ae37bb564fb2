package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/wdndev/tiny-deep-research/pkg/metrics"
)

const (
	DefaultAttempts = 3
	DefaultBackoff  = time.Second
)

// LLM wraps the completion model shared by the planner, extractor, report
// writer and feedback generator.
type LLM struct {
	Model    llms.Model
	Attempts int
	// Backoff is multiplied by the attempt number before each retry.
	Backoff time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func NewLLM(model llms.Model) *LLM {
	return &LLM{
		Model:    model,
		Attempts: DefaultAttempts,
		Backoff:  DefaultBackoff,
		Logger:   slog.Default(),
		Now:      time.Now,
	}
}

// generateWithRetry asks for a JSON completion and checks it with validator.
// It retries when the model fails or the validator rejects the content.
func (l *LLM) generateWithRetry(ctx context.Context, stage string, prompts []llms.MessageContent, validator func(string) error) (string, error) {
	attempts := l.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	logger := l.logger()

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			logger.Warn("Retrying LLM generation", "stage", stage, "attempt", i+1, "last_error", lastErr)
			if err := sleep(ctx, l.Backoff*time.Duration(i)); err != nil {
				return "", err
			}
		}

		resp, err := l.Model.GenerateContent(ctx, prompts, llms.WithJSONMode())
		if err != nil {
			l.Metrics.LLMCall(stage, false)
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			if ctx.Err() != nil {
				return "", lastErr
			}
			continue
		}
		if len(resp.Choices) == 0 {
			l.Metrics.LLMCall(stage, false)
			lastErr = ErrNoChoices
			continue
		}

		content := resp.Choices[0].Content
		if err := validator(content); err != nil {
			l.Metrics.LLMCall(stage, false)
			lastErr = fmt.Errorf("validation failed: %w", err)
			continue
		}

		l.Metrics.LLMCall(stage, true)
		return content, nil
	}

	return "", fmt.Errorf("%s failed after %d attempts: %w", stage, attempts, lastErr)
}

func (l *LLM) systemPrompt() string {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	return fmt.Sprintf(`You are an expert researcher. Today is %s. Follow these instructions when responding:
- You may be asked to research subjects that are after your knowledge cutoff, assume the user is right when presented with news.
- The user is a highly experienced analyst, no need to simplify it, be as detailed as possible and make sure your response is correct.
- Be highly organized.
- Mistakes erode trust, so be accurate and thorough.
- Value good arguments over authorities, the source is irrelevant.
- You may use high levels of speculation or prediction, just flag it.`, now().Format("2006-01-02"))
}

func (l *LLM) messages(schema, input string) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, l.systemPrompt()+"\n\n# Response Format:\n\n"+responseFormat(schema)),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}
}

func (l *LLM) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func responseFormat(schema string) string {
	return "Return the JSON object directly without any formatting or additional text. " +
		"The JSON object should have the following structure as defined in the schema. " +
		"Make sure to answer in valid json and include all necessary properties:" + schema
}

// decodeJSON unmarshals a model answer, tolerating a surrounding markdown
// code fence or stray text around the object.
func decodeJSON(content string, v any) error {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	return json.Unmarshal([]byte(s), v)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func limit(items []string, n int) []string {
	out := make([]string, 0, min(len(items), max(n, 0)))
	for _, s := range items {
		if len(out) >= n {
			break
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
