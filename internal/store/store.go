// Package store provides database access for mboxvault.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
	"github.com/wesm/mboxvault/internal/fileutil"
)

//go:embed schema.sql schema_sqlite.sql
var schemaFS embed.FS

// ErrNotFound is returned by single-record mutations whose target row does not exist.
var ErrNotFound = errors.New("email not found")

// ErrWriterBusy is returned by best-effort writes that found another writer
// holding the database.
var ErrWriterBusy = errors.New("store: writer busy")

// Store owns the email table, the folder registry, the search history and the
// derived full-text index.
//
// Writes are serialized: an open import transaction or a running mutation
// holds writeMu, so callers never observe a second writer. Reads go straight to
// the pool and, with WAL, only ever see committed data.
type Store struct {
	db            *sql.DB
	dbPath        string
	fts5Available bool

	writeMu sync.Mutex
}

const defaultSQLiteParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"

// isSQLiteError checks if err is a sqlite3.Error with a message containing substr.
// Handles both value (sqlite3.Error) and pointer (*sqlite3.Error) forms.
func isSQLiteError(err error, substr string) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), substr)
	}
	var sqliteErrPtr *sqlite3.Error
	if errors.As(err, &sqliteErrPtr) && sqliteErrPtr != nil {
		return strings.Contains(sqliteErrPtr.Error(), substr)
	}
	return false
}

// Open opens or creates the database at the given path.
func Open(dbPath string) (*Store, error) {
	if strings.HasPrefix(dbPath, "postgresql://") || strings.HasPrefix(dbPath, "postgres://") {
		return nil, fmt.Errorf("PostgreSQL is not supported; use a SQLite path instead")
	}

	if err := fileutil.MkdirPrivate(filepath.Dir(dbPath)); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+defaultSQLiteParams)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for read-only queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// FTS5Available reports whether the full-text index exists in this build.
func (s *Store) FTS5Available() bool {
	return s.fts5Available
}

// InitSchema creates all tables if they don't exist and seeds the system
// folders. The FTS5 table is optional: when the driver was built without
// FTS5 the store still works and text search degrades to a LIKE scan.
func (s *Store) InitSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema.sql: %w", err)
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("execute schema.sql: %w", err)
	}

	ftsSchema, err := schemaFS.ReadFile("schema_sqlite.sql")
	if err != nil {
		return fmt.Errorf("read schema_sqlite.sql: %w", err)
	}
	if _, err := s.db.Exec(string(ftsSchema)); err != nil {
		if !isSQLiteError(err, "no such module: fts5") {
			return fmt.Errorf("init fts5 schema: %w", err)
		}
		s.fts5Available = false
	} else {
		s.fts5Available = true
	}

	return nil
}

// withTx executes fn within a write transaction. If fn returns an error the
// transaction is rolled back; otherwise it is committed.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// execInChunks runs a parameterized IN-statement in chunks to stay within
// SQLite's parameter limit. queryTemplate must contain a single %s placeholder
// for the "?" list; prefixArgs are bound before each chunk's ids.
func execInChunks[T any](ctx context.Context, tx *sql.Tx, ids []T, prefixArgs []interface{}, queryTemplate string) (int64, error) {
	const chunkSize = 500
	var affected int64
	for i := 0; i < len(ids); i += chunkSize {
		end := min(i+chunkSize, len(ids))
		chunk := ids[i:end]

		placeholders := make([]string, len(chunk))
		args := make([]interface{}, 0, len(prefixArgs)+len(chunk))
		args = append(args, prefixArgs...)
		for j, id := range chunk {
			placeholders[j] = "?"
			args = append(args, id)
		}

		res, err := tx.ExecContext(ctx, fmt.Sprintf(queryTemplate, strings.Join(placeholders, ",")), args...)
		if err != nil {
			return affected, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return affected, err
		}
		affected += n
	}
	return affected, nil
}

// Stats holds database statistics.
type Stats struct {
	EmailCount    int64 `json:"emails"`
	DeletedCount  int64 `json:"deleted"`
	UnreadCount   int64 `json:"unread"`
	FolderCount   int64 `json:"folders"`
	HistoryCount  int64 `json:"search_history"`
	DatabaseSize  int64 `json:"database_size_bytes"`
	FTS5Available bool  `json:"fts5_available"`
}

// GetStats returns statistics about the database.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{FTS5Available: s.fts5Available}

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM emails WHERE is_deleted = 0", &stats.EmailCount},
		{"SELECT COUNT(*) FROM emails WHERE is_deleted = 1", &stats.DeletedCount},
		{"SELECT COUNT(*) FROM emails WHERE is_deleted = 0 AND is_read = 0", &stats.UnreadCount},
		{"SELECT COUNT(*) FROM folders", &stats.FolderCount},
		{"SELECT COUNT(*) FROM search_history", &stats.HistoryCount},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			if isSQLiteError(err, "no such table") {
				continue
			}
			return nil, fmt.Errorf("get stats %q: %w", q.query, err)
		}
	}

	if info, err := os.Stat(s.dbPath); err == nil {
		stats.DatabaseSize = info.Size()
	}
	return stats, nil
}
