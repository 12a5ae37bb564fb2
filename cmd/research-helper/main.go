package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wdndev/tiny-deep-research/pkg/app"
	"github.com/wdndev/tiny-deep-research/pkg/config"
	"github.com/wdndev/tiny-deep-research/pkg/logger"
	"github.com/wdndev/tiny-deep-research/pkg/research"
)

type options struct {
	query        string
	breadth      int
	depth        int
	concurrency  int
	output       string
	skipFeedback bool
}

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "research-helper",
		Short: "A terminal-based deep research agent",
		Long: `research-helper explores a topic by planning search queries, reading the results and
recursing on follow-up questions, then writes a Markdown report of everything it learned.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))
			slog.SetDefault(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, log, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	rootCmd.Flags().StringVarP(&opts.query, "query", "q", "", "What to research (prompted when empty)")
	rootCmd.Flags().IntVarP(&opts.breadth, "breadth", "b", 4, "Search queries per level")
	rootCmd.Flags().IntVarP(&opts.depth, "depth", "d", 2, "Follow-up levels")
	rootCmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 2, "Branches researched at once")
	rootCmd.Flags().StringVarP(&opts.output, "output", "o", ".", "Directory for the report file")
	rootCmd.Flags().BoolVar(&opts.skipFeedback, "skip-feedback", false, "Do not ask clarifying questions")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, opts options, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	query := strings.TrimSpace(opts.query)
	if query == "" {
		fmt.Fprint(out, "What would you like to research? ")
		query = readLine(reader)
		if query == "" {
			return fmt.Errorf("query cannot be empty")
		}
	}

	a, err := app.New(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	combined := query
	if !opts.skipFeedback {
		questions, err := a.Feedback(log).Questions(ctx, query)
		if err != nil {
			log.Warn("Skipping follow-up questions", "error", err)
		}
		if len(questions) > 0 {
			fmt.Fprintln(out, "\nTo better understand your research needs, please answer these follow-up questions:")
			answers := make([]string, len(questions))
			for i, q := range questions {
				fmt.Fprintf(out, "\n%s\nYour answer: ", q)
				answers[i] = readLine(reader)
			}
			combined = research.ComposeQuery(query, questions, answers)
		}
	}

	engine := a.Engine(log)
	engine.OnProgress = func(p research.Progress) {
		log.Info("Progress",
			"completed", p.CompletedQueries,
			"total", p.TotalQueries,
			"depth", p.Depth,
			"query", p.Query)
	}

	log.Info("Starting research", "breadth", opts.breadth, "depth", opts.depth, "concurrency", opts.concurrency)
	findings, err := engine.Research(ctx, combined, opts.breadth, opts.depth, opts.concurrency)
	if err != nil {
		return fmt.Errorf("research failed: %w", err)
	}

	fmt.Fprintf(out, "\n\nLearnings:\n\n%s\n", strings.Join(findings.Learnings, "\n"))
	fmt.Fprintf(out, "\n\nVisited URLs (%d):\n\n%s\n", len(findings.VisitedURLs), strings.Join(findings.VisitedURLs, "\n"))

	fmt.Fprintln(out, "Writing final report...")
	report, err := a.ReportWriter(log).Write(ctx, combined, findings)
	if err != nil {
		return fmt.Errorf("report failed: %w", err)
	}

	path, err := writeReport(opts.output, query, report)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n\nFinal Report:\n\n%s\n", report)
	fmt.Fprintf(out, "\nReport has been saved to %s\n", path)
	return nil
}

func readLine(r *bufio.Reader) string {
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}
