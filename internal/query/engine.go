package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wesm/mboxvault/internal/store"
)

// Engine runs filters against an archive.
type Engine interface {
	// Search returns the records matching f, sorted and capped. A non-blank
	// f.Text.Query is recorded in the search history unless a write is in
	// progress.
	Search(ctx context.Context, f Filter) ([]Email, error)

	// Count returns how many records match f, ignoring the cap.
	Count(ctx context.Context, f Filter) (int64, error)

	// GetEmail returns one record, or nil without error if there is none.
	GetEmail(ctx context.Context, id int64) (*Email, error)
}

// SQLiteEngine is the Engine over a store.Store.
type SQLiteEngine struct {
	st  *store.Store
	log *slog.Logger
	now func() time.Time
}

// NewSQLiteEngine returns an engine over st. A nil logger means slog.Default().
func NewSQLiteEngine(st *store.Store, log *slog.Logger) *SQLiteEngine {
	if log == nil {
		log = slog.Default()
	}
	return &SQLiteEngine{st: st, log: log, now: time.Now}
}

var _ Engine = (*SQLiteEngine)(nil)

func (e *SQLiteEngine) Search(ctx context.Context, f Filter) ([]Email, error) {
	return e.search(ctx, f, e.st.FTS5Available())
}

func (e *SQLiteEngine) search(ctx context.Context, f Filter, fts bool) ([]Email, error) {
	plan := Compile(f, fts)
	where, args := plan.WhereSQL()
	q := fmt.Sprintf("SELECT %s FROM emails e WHERE %s ORDER BY %s LIMIT ?",
		store.EmailColumns("e"), where, plan.OrderBy)
	args = append(args, plan.Limit)

	rows, err := e.st.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var out []Email
	for rows.Next() {
		em, err := store.ScanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		out = append(out, *em)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	if text := strings.TrimSpace(f.Text.Query); text != "" {
		switch err := e.st.RecordSearch(ctx, text, e.now()); {
		case errors.Is(err, store.ErrWriterBusy):
			e.log.Debug("search history skipped while a write is in progress", "query", text)
		case err != nil:
			e.log.Warn("failed to record search history", "query", text, "error", err)
		}
	}
	e.log.Debug("search", "clauses", len(plan.Where), "order", plan.OrderBy, "results", len(out))
	return out, nil
}

func (e *SQLiteEngine) Count(ctx context.Context, f Filter) (int64, error) {
	where, args := Compile(f, e.st.FTS5Available()).WhereSQL()
	var n int64
	err := e.st.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM emails e WHERE "+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (e *SQLiteEngine) GetEmail(ctx context.Context, id int64) (*Email, error) {
	return e.st.GetEmail(ctx, id)
}
