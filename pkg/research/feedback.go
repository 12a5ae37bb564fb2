package research

import (
	"context"
	"fmt"
	"strings"
)

const MaxFeedbackQuestions = 5

// Feedback generates clarifying questions about a research topic.
type Feedback struct {
	LLM *LLM
}

func NewFeedback(llm *LLM) *Feedback {
	return &Feedback{LLM: llm}
}

const questionsSchema = `{
  "type": "object",
  "properties": {
    "questions": {"type": "array", "items": {"type": "string"}, "description": "Follow-up questions to clarify the research direction"}
  },
  "required": ["questions"]
}`

// Questions returns up to MaxFeedbackQuestions questions. The slice is
// empty, never nil, when the model produced nothing usable.
func (f *Feedback) Questions(ctx context.Context, query string) ([]string, error) {
	input := fmt.Sprintf("Given this research topic: %s, generate 3-5 follow-up questions to better understand the user's research needs. "+
		"Return the response as a JSON object with a 'questions' array field.", query)

	var resp struct {
		Questions []string `json:"questions"`
	}
	_, err := f.LLM.generateWithRetry(ctx, "feedback", f.LLM.messages(questionsSchema, input), func(content string) error {
		resp.Questions = nil
		if err := decodeJSON(content, &resp); err != nil {
			return fmt.Errorf("%w: %w", ErrFeedbackParse, err)
		}
		return nil
	})
	if err != nil {
		return []string{}, err
	}
	return limit(resp.Questions, MaxFeedbackQuestions), nil
}

// ComposeQuery folds the answers to the feedback questions into the query
// used for research. Missing answers are left blank.
func ComposeQuery(initial string, questions, answers []string) string {
	if len(questions) == 0 {
		return initial
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Initial Query: %s\nFollow-up Questions and Answers:", initial)
	for i, q := range questions {
		a := ""
		if i < len(answers) {
			a = answers[i]
		}
		fmt.Fprintf(&b, "\nQ: %s\nA: %s", q, a)
	}
	return b.String()
}
