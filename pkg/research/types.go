package research

import "encoding/json"

// Query is one sub-query produced by the planner.
type Query struct {
	Query        string `json:"query"`
	ResearchGoal string `json:"researchGoal"`
}

// UnmarshalJSON accepts both researchGoal and research_goal.
func (q *Query) UnmarshalJSON(data []byte) error {
	var raw struct {
		Query        string `json:"query"`
		ResearchGoal string `json:"researchGoal"`
		SnakeGoal    string `json:"research_goal"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	q.Query = raw.Query
	q.ResearchGoal = raw.ResearchGoal
	if q.ResearchGoal == "" {
		q.ResearchGoal = raw.SnakeGoal
	}
	return nil
}

// Findings is the accumulated state of a research run. Both lists behave as
// sets: no duplicates, first-seen order.
type Findings struct {
	Learnings   []string `json:"learnings"`
	VisitedURLs []string `json:"visitedUrls"`
}

// Merge returns the union of f and other without modifying either.
func (f Findings) Merge(other Findings) Findings {
	return Findings{
		Learnings:   union(f.Learnings, other.Learnings),
		VisitedURLs: union(f.VisitedURLs, other.VisitedURLs),
	}
}

// Extraction is what the extractor learned from one sub-query's documents.
type Extraction struct {
	Learnings         []string `json:"learnings"`
	FollowUpQuestions []string `json:"followUpQuestions"`
}

// Progress is a snapshot of a running research call.
type Progress struct {
	Depth            int    `json:"depth"`
	Breadth          int    `json:"breadth"`
	Query            string `json:"query"`
	CompletedQueries int    `json:"completedQueries"`
	TotalQueries     int    `json:"totalQueries"`
}

// union concatenates lists dropping empty strings and anything already seen.
// The result is never nil.
func union(lists ...[]string) []string {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	out := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for _, l := range lists {
		for _, s := range l {
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
