package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/wdndev/tiny-deep-research/pkg/fanout"
	"github.com/wdndev/tiny-deep-research/pkg/metrics"
	"github.com/wdndev/tiny-deep-research/pkg/search"
)

const (
	DefaultSearchLimit  = 5
	DefaultMaxLearnings = 3
)

// Config holds the per-branch limits of the engine.
type Config struct {
	// SearchLimit is the number of results gathered per sub-query.
	SearchLimit int
	// MaxLearnings caps the learnings extracted per sub-query.
	MaxLearnings int
}

// Engine runs recursive breadth/depth research. Branches never share
// mutable state: each one receives a copy of its parent's findings and
// returns its own.
type Engine struct {
	Planner   Planner
	Extractor Extractor
	Gatherer  search.Gatherer
	Config    Config
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	// OnProgress, when set, is called from concurrent branches.
	OnProgress func(Progress)
}

func NewEngine(planner Planner, extractor Extractor, gatherer search.Gatherer) *Engine {
	return &Engine{
		Planner:   planner,
		Extractor: extractor,
		Gatherer:  gatherer,
		Config: Config{
			SearchLimit:  DefaultSearchLimit,
			MaxLearnings: DefaultMaxLearnings,
		},
		Logger: slog.Default(),
	}
}

// node is one call of the recursion.
type node struct {
	query   string
	breadth int
	depth   int
}

// Research explores query with breadth sub-queries per level, halving the
// breadth each level, for depth levels, running at most concurrency
// branches of one level at a time. Failures inside a branch only empty that
// branch's contribution. The error is non-nil for invalid arguments or when
// ctx ended before the run finished; findings gathered so far are still
// returned in the latter case.
func (e *Engine) Research(ctx context.Context, query string, breadth, depth, concurrency int) (Findings, error) {
	switch {
	case strings.TrimSpace(query) == "":
		return Findings{}, fmt.Errorf("%w: query must not be empty", ErrInvalidArgument)
	case breadth < 1:
		return Findings{}, fmt.Errorf("%w: breadth must be at least 1, got %d", ErrInvalidArgument, breadth)
	case depth < 0:
		return Findings{}, fmt.Errorf("%w: depth must not be negative, got %d", ErrInvalidArgument, depth)
	case concurrency < 1:
		return Findings{}, fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrInvalidArgument, concurrency)
	}

	logger := e.logger()
	logger.Info("Starting research", "query", query, "breadth", breadth, "depth", depth, "concurrency", concurrency)
	start := time.Now()

	r := &run{engine: e, concurrency: concurrency}
	findings := r.research(ctx, node{query: query, breadth: breadth, depth: depth}, Findings{})

	e.Metrics.ObserveRun(time.Since(start))
	logger.Info("Research complete",
		"learnings", len(findings.Learnings),
		"visited_urls", len(findings.VisitedURLs),
		"duration", time.Since(start))

	if err := ctx.Err(); err != nil {
		return findings, err
	}
	return findings, nil
}

// run holds what is shared by every branch of one Research call.
type run struct {
	engine      *Engine
	concurrency int
	total       atomic.Int64
	completed   atomic.Int64
}

func (r *run) research(ctx context.Context, n node, prior Findings) Findings {
	e := r.engine
	logger := e.logger()

	queries, err := e.Planner.Plan(ctx, n.query, prior.Learnings, n.breadth)
	if err != nil {
		logger.Warn("Planning failed", "query", n.query, "error", err)
		return prior
	}
	if len(queries) == 0 {
		logger.Info("No sub-queries planned", "query", n.query, "depth", n.depth)
		return prior
	}

	r.total.Add(int64(len(queries)))
	r.report(n, n.query)

	tasks := make([]fanout.Task[Findings], len(queries))
	for i, q := range queries {
		tasks[i] = func(ctx context.Context) (Findings, error) {
			return r.branch(ctx, n, q, prior)
		}
	}
	results := fanout.Run(ctx, r.concurrency, tasks)

	out := make([]Findings, len(results))
	for i, res := range results {
		if res.Err != nil {
			logger.Error("Research branch failed", "query", queries[i].Query, "error", res.Err)
			continue
		}
		out[i] = res.Value
	}
	return aggregate(out)
}

// branch gathers, extracts and recurses for one sub-query.
func (r *run) branch(ctx context.Context, n node, q Query, prior Findings) (Findings, error) {
	e := r.engine
	logger := e.logger().With("query", q.Query, "depth", n.depth)

	ok := false
	e.Metrics.BranchStarted()
	defer func() {
		e.Metrics.BranchDone(ok)
		r.completed.Add(1)
		r.report(n, q.Query)
	}()

	docs, gatherErr := e.Gatherer.Gather(ctx, q.Query, e.searchLimit())
	if gatherErr != nil {
		logger.Warn("Search failed, continuing without content", "error", gatherErr)
		docs = nil
	}
	if err := ctx.Err(); err != nil {
		return Findings{}, err
	}

	newBreadth := max(1, n.breadth/2)
	newDepth := n.depth - 1

	extraction, extractErr := e.Extractor.Extract(ctx, q.Query, docs, e.maxLearnings(), newBreadth)
	if extractErr != nil {
		logger.Warn("Extraction failed", "error", extractErr)
		extraction = Extraction{}
	}

	urls := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.URL != "" {
			urls = append(urls, d.URL)
		}
	}
	merged := prior.Merge(Findings{Learnings: extraction.Learnings, VisitedURLs: urls})
	logger.Info("Branch processed",
		"documents", len(docs),
		"new_learnings", len(extraction.Learnings),
		"follow_ups", len(extraction.FollowUpQuestions))
	ok = true

	if newDepth > 0 {
		logger.Info("Researching deeper", "breadth", newBreadth, "depth", newDepth)
		next := node{query: followUpQuery(q, extraction.FollowUpQuestions), breadth: newBreadth, depth: newDepth}
		return r.research(ctx, next, merged), nil
	}
	return merged, nil
}

func (r *run) report(n node, query string) {
	if r.engine.OnProgress == nil {
		return
	}
	r.engine.OnProgress(Progress{
		Depth:            n.depth,
		Breadth:          n.breadth,
		Query:            query,
		CompletedQueries: int(r.completed.Load()),
		TotalQueries:     int(r.total.Load()),
	})
}

// followUpQuery builds the query of the next level from a sub-query's goal
// and the follow-up questions its content raised.
func followUpQuery(q Query, followUps []string) string {
	return fmt.Sprintf("Previous research goal: %s\nFollow-up research directions: %s",
		q.ResearchGoal, strings.Join(followUps, " "))
}

// aggregate is the set union of all branch findings.
func aggregate(branches []Findings) Findings {
	learnings := make([][]string, len(branches))
	urls := make([][]string, len(branches))
	for i, b := range branches {
		learnings[i] = b.Learnings
		urls[i] = b.VisitedURLs
	}
	return Findings{Learnings: union(learnings...), VisitedURLs: union(urls...)}
}

func (e *Engine) searchLimit() int {
	if e.Config.SearchLimit <= 0 {
		return DefaultSearchLimit
	}
	return e.Config.SearchLimit
}

func (e *Engine) maxLearnings() int {
	if e.Config.MaxLearnings <= 0 {
		return DefaultMaxLearnings
	}
	return e.Config.MaxLearnings
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
