package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wdndev/tiny-deep-research/pkg/search"
)

const (
	timeout   = 2 * time.Second
	shortWait = 50 * time.Millisecond
	tick      = 5 * time.Millisecond
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// levelPlanner encodes the recursion level in each research goal so the
// level of an incoming follow-up query can be recovered.
type levelPlanner struct {
	mu    sync.Mutex
	calls map[int][]int // level -> requested n per call
	seen  [][]string    // prior learnings per call
	empty bool
	err   error
	ids   atomic.Int64
}

func newLevelPlanner() *levelPlanner {
	return &levelPlanner{calls: map[int][]int{}}
}

func (p *levelPlanner) Plan(_ context.Context, query string, learnings []string, n int) ([]Query, error) {
	level := 0
	fmt.Sscanf(query, "Previous research goal: level=%d", &level)

	p.mu.Lock()
	p.calls[level] = append(p.calls[level], n)
	p.seen = append(p.seen, append([]string(nil), learnings...))
	p.mu.Unlock()

	if p.err != nil {
		return []Query{}, p.err
	}
	if p.empty {
		return []Query{}, nil
	}
	out := make([]Query, n)
	for i := range out {
		out[i] = Query{
			Query:        fmt.Sprintf("q%d", p.ids.Add(1)),
			ResearchGoal: fmt.Sprintf("level=%d", level+1),
		}
	}
	return out, nil
}

func (p *levelPlanner) totalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += len(c)
	}
	return n
}

type fakeExtractor struct {
	calls atomic.Int64
	fn    func(query string, docs []search.Document, maxFollowUps int) (Extraction, error)
}

func (e *fakeExtractor) Extract(_ context.Context, query string, docs []search.Document, _ int, maxFollowUps int) (Extraction, error) {
	e.calls.Add(1)
	if e.fn != nil {
		return e.fn(query, docs, maxFollowUps)
	}
	return Extraction{
		Learnings:         []string{"learned " + query},
		FollowUpQuestions: []string{"what next after " + query},
	}, nil
}

type fakeGatherer struct {
	calls  atomic.Int64
	active atomic.Int64
	peak   atomic.Int64
	fn     func(query string) ([]search.Document, error)
}

func (g *fakeGatherer) Gather(_ context.Context, query string, _ int) ([]search.Document, error) {
	g.calls.Add(1)
	cur := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		p := g.peak.Load()
		if cur <= p || g.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	if g.fn != nil {
		return g.fn(query)
	}
	return []search.Document{{URL: "https://example.com/" + query, Text: "content for " + query}}, nil
}

func newTestEngine(p Planner, e Extractor, g search.Gatherer) *Engine {
	eng := NewEngine(p, e, g)
	eng.Logger = slog.New(slog.DiscardHandler)
	return eng
}

func TestResearchTerminates(t *testing.T) {
	planner := newLevelPlanner()
	extractor := &fakeExtractor{}
	gatherer := &fakeGatherer{}

	findings, err := newTestEngine(planner, extractor, gatherer).Research(context.Background(), "Q", 4, 3, 2)

	require.NoError(t, err)
	// Branches: 4 at the first level, 4*2 at the second, 8*1 at the third.
	assert.EqualValues(t, 20, gatherer.calls.Load())
	assert.EqualValues(t, 20, extractor.calls.Load())
	assert.Equal(t, 1+4+8, planner.totalCalls())
	assert.Len(t, findings.Learnings, 20)
	assert.Len(t, findings.VisitedURLs, 20)
}

func TestResearchBreadthDecay(t *testing.T) {
	for _, breadth := range []int{1, 3, 4, 7, 8} {
		t.Run(fmt.Sprintf("breadth=%d", breadth), func(t *testing.T) {
			planner := newLevelPlanner()
			_, err := newTestEngine(planner, &fakeExtractor{}, &fakeGatherer{}).Research(context.Background(), "Q", breadth, 4, 3)
			require.NoError(t, err)

			require.Len(t, planner.calls, 4)
			for level, ns := range planner.calls {
				for _, n := range ns {
					assert.Equal(t, max(1, breadth>>level), n, "level %d", level)
				}
			}
		})
	}
}

func TestResearchFollowUpBudget(t *testing.T) {
	var mu sync.Mutex
	var budgets []int
	extractor := &fakeExtractor{fn: func(query string, _ []search.Document, maxFollowUps int) (Extraction, error) {
		mu.Lock()
		budgets = append(budgets, maxFollowUps)
		mu.Unlock()
		return Extraction{}, nil
	}}

	_, err := newTestEngine(newLevelPlanner(), extractor, &fakeGatherer{}).Research(context.Background(), "Q", 4, 1, 4)

	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2, 2}, budgets)
}

func TestResearchSetUnion(t *testing.T) {
	extractor := &fakeExtractor{fn: func(query string, _ []search.Document, _ int) (Extraction, error) {
		return Extraction{Learnings: []string{"X uses Y", "only " + query}}, nil
	}}
	gatherer := &fakeGatherer{fn: func(query string) ([]search.Document, error) {
		return []search.Document{
			{URL: "https://shared.example", Text: "a"},
			{URL: "https://example.com/" + query, Text: "b"},
		}, nil
	}}

	findings, err := newTestEngine(newLevelPlanner(), extractor, gatherer).Research(context.Background(), "Q", 2, 1, 2)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"X uses Y", "only q1", "only q2"}, findings.Learnings)
	assert.ElementsMatch(t, []string{"https://shared.example", "https://example.com/q1", "https://example.com/q2"}, findings.VisitedURLs)
}

func TestResearchEmptyPlan(t *testing.T) {
	planner := newLevelPlanner()
	planner.empty = true
	extractor := &fakeExtractor{}
	gatherer := &fakeGatherer{}

	findings, err := newTestEngine(planner, extractor, gatherer).Research(context.Background(), "Q", 4, 2, 2)

	require.NoError(t, err)
	assert.Empty(t, findings.Learnings)
	assert.Empty(t, findings.VisitedURLs)
	assert.Equal(t, 1, planner.totalCalls())
	assert.Zero(t, extractor.calls.Load())
	assert.Zero(t, gatherer.calls.Load())
}

func TestResearchPlanningFailure(t *testing.T) {
	planner := newLevelPlanner()
	planner.err = fmt.Errorf("plan failed after 3 attempts: %w", ErrPlanningParse)
	gatherer := &fakeGatherer{}

	findings, err := newTestEngine(planner, &fakeExtractor{}, gatherer).Research(context.Background(), "Q", 3, 2, 2)

	require.NoError(t, err)
	assert.Empty(t, findings.Learnings)
	assert.Zero(t, gatherer.calls.Load())
}

func TestResearchBranchIsolation(t *testing.T) {
	gatherer := &fakeGatherer{fn: func(query string) ([]search.Document, error) {
		if query == "q1" {
			return nil, fmt.Errorf("%w: rate limited", search.ErrSearchFailed)
		}
		return []search.Document{{URL: "https://example.com/" + query, Text: "text"}}, nil
	}}
	extractor := &fakeExtractor{fn: func(query string, docs []search.Document, _ int) (Extraction, error) {
		switch query {
		case "q1":
			if len(docs) != 0 {
				return Extraction{}, errors.New("expected no documents")
			}
			return Extraction{}, nil
		case "q2":
			panic("extractor exploded")
		case "q3":
			return Extraction{}, fmt.Errorf("extract failed: %w", ErrExtractionParse)
		}
		return Extraction{Learnings: []string{"fact from " + query}}, nil
	}}

	findings, err := newTestEngine(newLevelPlanner(), extractor, gatherer).Research(context.Background(), "Q", 4, 1, 4)

	require.NoError(t, err)
	assert.Equal(t, []string{"fact from q4"}, findings.Learnings)
	// q2 panicked so its URL is lost with the rest of its branch; q3 still
	// records the URL it visited.
	assert.ElementsMatch(t, []string{"https://example.com/q3", "https://example.com/q4"}, findings.VisitedURLs)
}

func TestResearchConcurrencyCeiling(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int64
	gatherer := &fakeGatherer{}
	gatherer.fn = func(query string) ([]search.Document, error) {
		if started.Add(1) <= 2 {
			<-release
		}
		return nil, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := newTestEngine(newLevelPlanner(), &fakeExtractor{}, gatherer).Research(context.Background(), "Q", 6, 1, 2)
		assert.NoError(t, err)
	}()

	assert.Eventually(t, func() bool { return started.Load() >= 2 }, timeout, tick)
	assert.Never(t, func() bool { return started.Load() > 2 }, shortWait, tick)
	close(release)
	<-done

	assert.EqualValues(t, 6, gatherer.calls.Load())
	assert.LessOrEqual(t, gatherer.peak.Load(), int64(2))
}

func TestResearchPriorFlowsDown(t *testing.T) {
	planner := newLevelPlanner()

	findings, err := newTestEngine(planner, &fakeExtractor{}, &fakeGatherer{}).Research(context.Background(), "Q", 1, 3, 1)

	require.NoError(t, err)
	require.Len(t, planner.seen, 3)
	assert.Empty(t, planner.seen[0])
	assert.Equal(t, []string{"learned q1"}, planner.seen[1])
	assert.Equal(t, []string{"learned q1", "learned q2"}, planner.seen[2])
	assert.Equal(t, []string{"learned q1", "learned q2", "learned q3"}, findings.Learnings)
}

func TestResearchFollowUpQuery(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	planner := PlannerFunc(func(_ context.Context, query string, _ []string, n int) ([]Query, error) {
		mu.Lock()
		defer mu.Unlock()
		queries = append(queries, query)
		if len(queries) > 1 {
			return []Query{}, nil
		}
		return []Query{{Query: "battery chemistry", ResearchGoal: "compare electrolytes"}}, nil
	})
	extractor := &fakeExtractor{fn: func(string, []search.Document, int) (Extraction, error) {
		return Extraction{FollowUpQuestions: []string{"Which is cheaper?", "Which lasts longer?"}}, nil
	}}

	_, err := newTestEngine(planner, extractor, &fakeGatherer{}).Research(context.Background(), "batteries", 2, 2, 1)

	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, "Previous research goal: compare electrolytes\nFollow-up research directions: Which is cheaper? Which lasts longer?", queries[1])
}

func TestResearchProgress(t *testing.T) {
	var mu sync.Mutex
	var snapshots []Progress
	eng := newTestEngine(newLevelPlanner(), &fakeExtractor{}, &fakeGatherer{})
	eng.OnProgress = func(p Progress) {
		mu.Lock()
		snapshots = append(snapshots, p)
		mu.Unlock()
	}

	_, err := eng.Research(context.Background(), "Q", 2, 2, 2)
	require.NoError(t, err)

	require.NotEmpty(t, snapshots)
	maxCompleted, maxTotal := 0, 0
	for _, p := range snapshots {
		assert.LessOrEqual(t, p.CompletedQueries, p.TotalQueries)
		maxCompleted = max(maxCompleted, p.CompletedQueries)
		maxTotal = max(maxTotal, p.TotalQueries)
	}
	assert.Equal(t, 4, maxTotal)
	assert.Equal(t, 4, maxCompleted)
}

func TestResearchInvalidArguments(t *testing.T) {
	tests := []struct {
		name                        string
		query                       string
		breadth, depth, concurrency int
	}{
		{"empty query", "  ", 1, 1, 1},
		{"zero breadth", "Q", 0, 1, 1},
		{"negative depth", "Q", 1, -1, 1},
		{"zero concurrency", "Q", 1, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner := newLevelPlanner()
			_, err := newTestEngine(planner, &fakeExtractor{}, &fakeGatherer{}).Research(context.Background(), tt.query, tt.breadth, tt.depth, tt.concurrency)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Zero(t, planner.totalCalls())
		})
	}
}

func TestResearchDepthZero(t *testing.T) {
	planner := newLevelPlanner()
	gatherer := &fakeGatherer{}

	findings, err := newTestEngine(planner, &fakeExtractor{}, gatherer).Research(context.Background(), "Q", 2, 0, 1)

	require.NoError(t, err)
	assert.Equal(t, 1, planner.totalCalls())
	assert.EqualValues(t, 2, gatherer.calls.Load())
	assert.Len(t, findings.Learnings, 2)
}

func TestResearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gatherer := &fakeGatherer{fn: func(string) ([]search.Document, error) {
		cancel()
		return nil, context.Canceled
	}}

	_, err := newTestEngine(newLevelPlanner(), &fakeExtractor{}, gatherer).Research(ctx, "Q", 3, 2, 1)

	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, gatherer.calls.Load())
}

func TestFollowUpQueryFormat(t *testing.T) {
	got := followUpQuery(Query{ResearchGoal: "goal"}, nil)
	assert.True(t, strings.HasPrefix(got, "Previous research goal: goal\n"))
}
