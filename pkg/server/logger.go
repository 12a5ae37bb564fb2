package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// execer is the part of pgxpool.Pool the log handler needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DBLogHandler is a slog.Handler that writes records to the research_logs
// table of one job. When Next is set every record is passed on to it as
// well, so job logs also reach the process log.
type DBLogHandler struct {
	DB    execer
	JobID uuid.UUID
	Next  slog.Handler
	Level slog.Leveler

	attrs  []slog.Attr
	groups []string
}

func NewDBLogHandler(db execer, jobID uuid.UUID, next slog.Handler) *DBLogHandler {
	return &DBLogHandler{
		DB:    db,
		JobID: jobID,
		Next:  next,
		Level: slog.LevelInfo,
	}
}

func (h *DBLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel() || (h.Next != nil && h.Next.Enabled(ctx, level))
}

func (h *DBLogHandler) minLevel() slog.Level {
	if h.Level == nil {
		return slog.LevelInfo
	}
	return h.Level.Level()
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.Next != nil && h.Next.Enabled(ctx, r.Level) {
		_ = h.Next.Handle(ctx, r.Clone())
	}
	if r.Level < h.minLevel() {
		return nil
	}

	meta := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		addAttr(meta, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(meta, h.qualify(a))
		return true
	})

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		metaJSON = []byte("{}")
	}

	query := `
		INSERT INTO research_logs (job_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`
	// Background context so logs persist after the job context is cancelled.
	_, err = h.DB.Exec(context.Background(), query, h.JobID, r.Time, r.Level.String(), r.Message, metaJSON)
	return err
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, h.qualify(a))
	}
	if h.Next != nil {
		next.Next = h.Next.WithAttrs(attrs)
	}
	return &next
}

func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	if h.Next != nil {
		next.Next = h.Next.WithGroup(name)
	}
	return &next
}

// qualify prefixes the key with the open groups, flattening them into the
// metadata object.
func (h *DBLogHandler) qualify(a slog.Attr) slog.Attr {
	for i := len(h.groups) - 1; i >= 0; i-- {
		a.Key = h.groups[i] + "." + a.Key
	}
	return a
}

func addAttr(meta map[string]any, a slog.Attr) {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		for _, g := range v.Group() {
			if a.Key != "" {
				g.Key = a.Key + "." + g.Key
			}
			addAttr(meta, g)
		}
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			meta[a.Key] = err.Error()
			return
		}
		meta[a.Key] = v.Any()
	default:
		meta[a.Key] = v.Any()
	}
}
