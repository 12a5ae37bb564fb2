package research

import (
	"context"
	"fmt"
	"strings"
)

// Planner decomposes a query into at most n sub-queries. An empty slice with
// a nil error means the query needs no further expansion.
type Planner interface {
	Plan(ctx context.Context, query string, learnings []string, n int) ([]Query, error)
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(ctx context.Context, query string, learnings []string, n int) ([]Query, error)

func (f PlannerFunc) Plan(ctx context.Context, query string, learnings []string, n int) ([]Query, error) {
	return f(ctx, query, learnings, n)
}

// LLMPlanner asks the model for search queries with research goals.
type LLMPlanner struct {
	LLM *LLM
}

func NewPlanner(llm *LLM) *LLMPlanner {
	return &LLMPlanner{LLM: llm}
}

var _ Planner = (*LLMPlanner)(nil)

const queriesSchema = `{
  "type": "object",
  "properties": {
    "queries": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "query": {"type": "string", "description": "The search query"},
          "researchGoal": {"type": "string", "description": "The goal of the research this query serves and how to advance it once results are found"}
        },
        "required": ["query", "researchGoal"]
      }
    }
  },
  "required": ["queries"]
}`

func (p *LLMPlanner) Plan(ctx context.Context, query string, learnings []string, n int) ([]Query, error) {
	if n <= 0 {
		return []Query{}, nil
	}
	logger := p.LLM.logger()
	logger.Info("Starting planning phase", "query", query, "num_queries", n)

	var b strings.Builder
	fmt.Fprintf(&b, "Given the following prompt from the user, generate a list of SERP queries to research the topic. "+
		"Return a JSON object with a 'queries' array field containing %d queries (or less if the original prompt is clear). "+
		"Each query object should have 'query' and 'researchGoal' fields. "+
		"Make sure each query is unique and not similar to each other: <prompt>%s</prompt>", n, query)
	if len(learnings) > 0 {
		fmt.Fprintf(&b, "\n\nHere are some learnings from previous research, use them to generate more specific queries: %s",
			strings.Join(learnings, "\n"))
	}

	var resp struct {
		Queries []Query `json:"queries"`
	}
	_, err := p.LLM.generateWithRetry(ctx, "plan", p.LLM.messages(queriesSchema, b.String()), func(content string) error {
		resp.Queries = nil
		if err := decodeJSON(content, &resp); err != nil {
			return fmt.Errorf("%w: %w", ErrPlanningParse, err)
		}
		return nil
	})
	if err != nil {
		return []Query{}, err
	}

	queries := make([]Query, 0, min(len(resp.Queries), n))
	for _, q := range resp.Queries {
		if len(queries) == n {
			break
		}
		q.Query = strings.TrimSpace(q.Query)
		if q.Query == "" {
			continue
		}
		queries = append(queries, q)
	}
	logger.Info("Generated queries", "count", len(queries))
	return queries, nil
}
