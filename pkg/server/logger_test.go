package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type insert struct {
	jobID   uuid.UUID
	level   string
	message string
	meta    map[string]any
}

type fakeExecer struct {
	mu      sync.Mutex
	inserts []insert
	err     error
}

func (f *fakeExecer) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	in := insert{
		jobID:   args[0].(uuid.UUID),
		level:   args[2].(string),
		message: args[3].(string),
	}
	_ = json.Unmarshal(args[4].([]byte), &in.meta)
	f.inserts = append(f.inserts, in)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestDBLogHandlerInserts(t *testing.T) {
	db := &fakeExecer{}
	id := uuid.New()
	log := slog.New(NewDBLogHandler(db, id, nil))

	log.Debug("dropped")
	log.Info("Searching", "query", "perovskite", "count", 3)
	log.Error("Scrape failed", "error", errors.New("timeout"))

	require.Len(t, db.inserts, 2)
	first := db.inserts[0]
	assert.Equal(t, id, first.jobID)
	assert.Equal(t, "INFO", first.level)
	assert.Equal(t, "Searching", first.message)
	assert.Equal(t, "perovskite", first.meta["query"])
	assert.InDelta(t, 3, first.meta["count"], 0)
	assert.Equal(t, "timeout", db.inserts[1].meta["error"])
}

func TestDBLogHandlerAttrsAndGroups(t *testing.T) {
	db := &fakeExecer{}
	log := slog.New(NewDBLogHandler(db, uuid.New(), nil)).
		With("job_id", "j1").
		WithGroup("search").
		With("provider", "brave")

	log.Info("done", "results", 5, slog.Group("page", "url", "https://a.example"))

	require.Len(t, db.inserts, 1)
	meta := db.inserts[0].meta
	assert.Equal(t, "j1", meta["job_id"])
	assert.Equal(t, "brave", meta["search.provider"])
	assert.InDelta(t, 5, meta["search.results"], 0)
	assert.Equal(t, "https://a.example", meta["search.page.url"])
}

func TestDBLogHandlerForwards(t *testing.T) {
	var buf bytes.Buffer
	next := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	db := &fakeExecer{}
	h := NewDBLogHandler(db, uuid.New(), next)
	h.Level = slog.LevelWarn
	log := slog.New(h).With("job_id", "j1")

	log.Debug("verbose")
	log.Warn("slow scrape")

	assert.Contains(t, buf.String(), "verbose")
	assert.Contains(t, buf.String(), `"job_id":"j1"`)
	require.Len(t, db.inserts, 1)
	assert.Equal(t, "slow scrape", db.inserts[0].message)
}

func TestDBLogHandlerError(t *testing.T) {
	db := &fakeExecer{err: errors.New("connection refused")}
	h := NewDBLogHandler(db, uuid.New(), nil)

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "x", 0)
	assert.Error(t, h.Handle(context.Background(), r))
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
}
