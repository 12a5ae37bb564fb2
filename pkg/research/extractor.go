package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/wdndev/tiny-deep-research/pkg/search"
	"github.com/wdndev/tiny-deep-research/pkg/tokens"
)

// DefaultContentBudget is the token budget applied to each document before
// it enters the extraction prompt.
const DefaultContentBudget = 25000

// Extractor turns fetched documents into learnings and follow-up questions.
type Extractor interface {
	Extract(ctx context.Context, query string, docs []search.Document, maxLearnings, maxFollowUps int) (Extraction, error)
}

type LLMExtractor struct {
	LLM           *LLM
	Trimmer       *tokens.Trimmer
	ContentBudget int
}

func NewExtractor(llm *LLM, trimmer *tokens.Trimmer) *LLMExtractor {
	return &LLMExtractor{LLM: llm, Trimmer: trimmer, ContentBudget: DefaultContentBudget}
}

var _ Extractor = (*LLMExtractor)(nil)

const extractionSchema = `{
  "type": "object",
  "properties": {
    "learnings": {"type": "array", "items": {"type": "string"}, "description": "List of learnings"},
    "followUpQuestions": {"type": "array", "items": {"type": "string"}, "description": "List of follow-up questions to research the topic further"}
  },
  "required": ["learnings", "followUpQuestions"]
}`

// Extract trims every non-empty document to the content budget and asks the
// model for learnings. Documents without text are ignored; when none have
// text the model is not called and the extraction is empty.
func (e *LLMExtractor) Extract(ctx context.Context, query string, docs []search.Document, maxLearnings, maxFollowUps int) (Extraction, error) {
	budget := e.ContentBudget
	if budget <= 0 {
		budget = DefaultContentBudget
	}

	var contents strings.Builder
	n := 0
	for _, d := range docs {
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		text := d.Text
		if e.Trimmer != nil {
			text = e.Trimmer.Trim(text, budget)
		}
		fmt.Fprintf(&contents, "<content>\n%s\n</content>", text)
		n++
	}
	logger := e.LLM.logger()
	if n == 0 {
		logger.Info("No content to extract from", "query", query)
		return Extraction{Learnings: []string{}, FollowUpQuestions: []string{}}, nil
	}
	logger.Info("Extracting learnings", "query", query, "documents", n)

	input := fmt.Sprintf("Given the following contents from a SERP search for the query <query>%s</query>, "+
		"generate a list of learnings from the contents. Return a JSON object with 'learnings' and 'followUpQuestions' keys "+
		"with array of strings as values. Include up to %d learnings and %d follow-up questions. "+
		"The learnings should be unique, concise, and information-dense, including entities, metrics, numbers, and dates.\n\n"+
		"<contents>%s</contents>", query, maxLearnings, maxFollowUps, contents.String())

	var resp Extraction
	_, err := e.LLM.generateWithRetry(ctx, "extract", e.LLM.messages(extractionSchema, input), func(content string) error {
		resp = Extraction{}
		if err := decodeJSON(content, &resp); err != nil {
			return fmt.Errorf("%w: %w", ErrExtractionParse, err)
		}
		return nil
	})
	if err != nil {
		return Extraction{Learnings: []string{}, FollowUpQuestions: []string{}}, err
	}

	return Extraction{
		Learnings:         limit(resp.Learnings, maxLearnings),
		FollowUpQuestions: limit(resp.FollowUpQuestions, maxFollowUps),
	}, nil
}
