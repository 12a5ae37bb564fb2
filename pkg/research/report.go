package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/wdndev/tiny-deep-research/pkg/tokens"
)

// DefaultContextSize is the token budget for the learnings in a report
// prompt.
const DefaultContextSize = 128000

// ReportWriter turns findings into a markdown report.
type ReportWriter struct {
	LLM         *LLM
	Trimmer     *tokens.Trimmer
	ContextSize int
}

func NewReportWriter(llm *LLM, trimmer *tokens.Trimmer) *ReportWriter {
	return &ReportWriter{LLM: llm, Trimmer: trimmer, ContextSize: DefaultContextSize}
}

const reportSchema = `{
  "type": "object",
  "properties": {
    "reportMarkdown": {"type": "string", "description": "Final report on the topic in Markdown"}
  },
  "required": ["reportMarkdown"]
}`

// Write asks the model for a report covering every learning and appends a
// Sources section listing each visited URL.
func (w *ReportWriter) Write(ctx context.Context, prompt string, findings Findings) (string, error) {
	logger := w.LLM.logger()
	logger.Info("Compiling final report", "learnings", len(findings.Learnings), "sources", len(findings.VisitedURLs))

	parts := make([]string, len(findings.Learnings))
	for i, l := range findings.Learnings {
		parts[i] = "<learning>\n" + l + "\n</learning>"
	}
	learnings := strings.Join(parts, "\n")
	if w.Trimmer != nil {
		size := w.ContextSize
		if size <= 0 {
			size = DefaultContextSize
		}
		learnings = w.Trimmer.Trim(learnings, size)
	}

	input := fmt.Sprintf("Given the following prompt from the user, write a final report on the topic using the learnings from research. "+
		"Return a JSON object with a 'reportMarkdown' field containing a detailed markdown report (aim for 3+ pages). "+
		"Include ALL the learnings from research:\n\n<prompt>%s</prompt>\n\n"+
		"Here are all the learnings from research:\n\n<learnings>\n%s\n</learnings>", prompt, learnings)

	var resp struct {
		ReportMarkdown string `json:"reportMarkdown"`
	}
	_, err := w.LLM.generateWithRetry(ctx, "report", w.LLM.messages(reportSchema, input), func(content string) error {
		resp.ReportMarkdown = ""
		if err := decodeJSON(content, &resp); err != nil {
			return fmt.Errorf("%w: %w", ErrReportParse, err)
		}
		if strings.TrimSpace(resp.ReportMarkdown) == "" {
			return fmt.Errorf("%w: empty reportMarkdown", ErrReportParse)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	report := resp.ReportMarkdown + Sources(findings.VisitedURLs)
	logger.Info("Final report generated", "length", len(report))
	return report, nil
}

// Sources renders the literal sources section appended to every report.
func Sources(urls []string) string {
	lines := make([]string, len(urls))
	for i, u := range urls {
		lines[i] = "- " + u
	}
	return "\n\n## Sources\n\n" + strings.Join(lines, "\n")
}
