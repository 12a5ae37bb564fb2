package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wdndev/tiny-deep-research/pkg/app"
	"github.com/wdndev/tiny-deep-research/pkg/database"
	"github.com/wdndev/tiny-deep-research/pkg/research"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	DefaultBreadth     = 4
	DefaultDepth       = 2
	DefaultConcurrency = 2

	MaxBreadth     = 10
	MaxDepth       = 5
	MaxConcurrency = 10
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrInvalidRequest = errors.New("invalid request")
)

// JobService runs research jobs in the background and reports on them.
type JobService interface {
	CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
	GetJobLogs(ctx context.Context, id uuid.UUID) ([]LogEntry, error)
}

type Job struct {
	ID          uuid.UUID          `json:"id"`
	Query       string             `json:"query"`
	Breadth     int                `json:"breadth"`
	Depth       int                `json:"depth"`
	Concurrency int                `json:"concurrency"`
	Status      string             `json:"status"`
	Progress    *research.Progress `json:"progress,omitempty"`
	Learnings   []string           `json:"learnings,omitempty"`
	VisitedURLs []string           `json:"visited_urls,omitempty"`
	Report      *string            `json:"report,omitempty"`
	Error       *string            `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type CreateJobRequest struct {
	Query       string `json:"query"`
	Breadth     int    `json:"breadth"`
	Depth       int    `json:"depth"`
	Concurrency int    `json:"concurrency"`
}

// Normalize fills in defaults and checks the limits.
func (r *CreateJobRequest) Normalize() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if r.Breadth == 0 {
		r.Breadth = DefaultBreadth
	}
	if r.Depth == 0 {
		r.Depth = DefaultDepth
	}
	if r.Concurrency == 0 {
		r.Concurrency = DefaultConcurrency
	}
	switch {
	case r.Breadth < 1 || r.Breadth > MaxBreadth:
		return fmt.Errorf("%w: breadth must be between 1 and %d", ErrInvalidRequest, MaxBreadth)
	case r.Depth < 1 || r.Depth > MaxDepth:
		return fmt.Errorf("%w: depth must be between 1 and %d", ErrInvalidRequest, MaxDepth)
	case r.Concurrency < 1 || r.Concurrency > MaxConcurrency:
		return fmt.Errorf("%w: concurrency must be between 1 and %d", ErrInvalidRequest, MaxConcurrency)
	}
	return nil
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

// Service stores jobs in postgres and runs each one in its own goroutine.
type Service struct {
	DB     *database.PostgresDB
	App    *app.App
	Logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ JobService = (*Service)(nil)

func NewService(db *database.PostgresDB, a *app.App, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{DB: db, App: a, Logger: logger, ctx: ctx, cancel: cancel}
}

const jobColumns = `id, query, breadth, depth, concurrency, status, progress, learnings, visited_urls, report, error, created_at, updated_at`

func scanJob(row pgx.Row, job *Job) error {
	return row.Scan(&job.ID, &job.Query, &job.Breadth, &job.Depth, &job.Concurrency, &job.Status,
		&job.Progress, &job.Learnings, &job.VisitedURLs, &job.Report, &job.Error, &job.CreatedAt, &job.UpdatedAt)
}

func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO research_jobs (id, query, breadth, depth, concurrency, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING ` + jobColumns

	job := &Job{}
	err := scanJob(s.DB.Pool.QueryRow(ctx, query, uuid.New(), req.Query, req.Breadth, req.Depth, req.Concurrency), job)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	// Start background worker
	s.wg.Add(1)
	go s.runWorker(*job)

	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	job := &Job{}
	err := scanJob(s.DB.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM research_jobs WHERE id = $1`, id), job)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.DB.Pool.Query(ctx, `SELECT `+jobColumns+` FROM research_jobs ORDER BY created_at DESC LIMIT 50`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		if err := scanJob(rows, &job); err != nil {
			s.Logger.Warn("Skipping unreadable job row", "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *Service) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Shutdown cancels running jobs and waits for their workers, or for ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) runWorker(job Job) {
	defer s.wg.Done()
	ctx := s.ctx

	// Update status to running
	_, _ = s.DB.Pool.Exec(ctx, "UPDATE research_jobs SET status = 'running', updated_at = NOW() WHERE id = $1", job.ID)

	// Configure engine with DB logger
	jobLogger := slog.New(NewDBLogHandler(s.DB.Pool, job.ID, s.Logger.Handler())).With("job_id", job.ID.String())

	engine := s.App.Engine(jobLogger)
	engine.OnProgress = func(p research.Progress) {
		progressJSON, err := json.Marshal(p)
		if err != nil {
			return
		}
		// Snapshots from concurrent branches may arrive out of order.
		_, err = s.DB.Pool.Exec(context.Background(), `
			UPDATE research_jobs SET progress = $2, updated_at = NOW()
			WHERE id = $1 AND (progress IS NULL OR (progress->>'completedQueries')::int <= $3)`,
			job.ID, progressJSON, p.CompletedQueries)
		if err != nil {
			s.Logger.Error("Failed to save progress", "job_id", job.ID, "error", err)
		}
	}

	findings, err := engine.Research(ctx, job.Query, job.Breadth, job.Depth, job.Concurrency)
	if err != nil {
		s.failJob(jobLogger, job.ID, fmt.Sprintf("Research failed: %v", err))
		return
	}

	learningsJSON, _ := json.Marshal(findings.Learnings)
	urlsJSON, _ := json.Marshal(findings.VisitedURLs)
	if _, err := s.DB.Pool.Exec(context.Background(),
		"UPDATE research_jobs SET learnings = $2, visited_urls = $3, updated_at = NOW() WHERE id = $1",
		job.ID, learningsJSON, urlsJSON); err != nil {
		jobLogger.Error("Failed to save findings to DB", "error", err)
	}

	report, err := s.App.ReportWriter(jobLogger).Write(ctx, job.Query, findings)
	if err != nil {
		s.failJob(jobLogger, job.ID, fmt.Sprintf("Report failed: %v", err))
		return
	}

	// Update job with report
	_, err = s.DB.Pool.Exec(context.Background(),
		"UPDATE research_jobs SET status = 'completed', report = $2, updated_at = NOW() WHERE id = $1",
		job.ID, report)
	if err != nil {
		jobLogger.Error("Failed to save final report to DB", "error", err)
	}
}

func (s *Service) failJob(logger *slog.Logger, jobID uuid.UUID, reason string) {
	logger.Error(reason)
	_, _ = s.DB.Pool.Exec(context.Background(),
		"UPDATE research_jobs SET status = 'failed', error = $2, updated_at = NOW() WHERE id = $1", jobID, reason)
}
