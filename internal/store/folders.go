package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Folder types.
const (
	FolderSystem = "system"
	FolderUser   = "user"
)

var (
	// ErrSystemFolder is returned when deleting a seeded folder.
	ErrSystemFolder = errors.New("system folders cannot be deleted")
	// ErrFolderExists is returned when creating a folder whose name is taken.
	ErrFolderExists = errors.New("folder already exists")
)

// Folder is one entry of the folder registry.
type Folder struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Icon string `json:"icon"`
}

// ListFolders returns system folders first, then user folders by name.
func (s *Store) ListFolders(ctx context.Context) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, type, icon FROM folders
		ORDER BY CASE type WHEN 'system' THEN 0 ELSE 1 END, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.Name, &f.Type, &f.Icon); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// CreateFolder registers a user folder.
func (s *Store) CreateFolder(ctx context.Context, name, icon string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("folder name is empty")
	}
	if icon == "" {
		icon = "label"
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO folders (name, type, icon) VALUES (?, 'user', ?)", name, icon)
		if isSQLiteError(err, "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrFolderExists, name)
		}
		if err != nil {
			return fmt.Errorf("create folder: %w", err)
		}
		return nil
	})
}

// DeleteFolder removes a user folder from the registry. Records filed under
// it keep their folder value.
func (s *Store) DeleteFolder(ctx context.Context, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var typ string
		err := tx.QueryRowContext(ctx, "SELECT type FROM folders WHERE name = ?", name).Scan(&typ)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("folder %q: %w", name, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("look up folder: %w", err)
		}
		if typ == FolderSystem {
			return fmt.Errorf("folder %q: %w", name, ErrSystemFolder)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM folders WHERE name = ? AND type = 'user'", name); err != nil {
			return fmt.Errorf("delete folder: %w", err)
		}
		return nil
	})
}

// SearchEntry is one remembered free-text query.
type SearchEntry struct {
	Query    string    `json:"query"`
	LastUsed time.Time `json:"last_used"`
}

// RecordSearch upserts q into the search history with timestamp at. It never
// waits for another writer: while an import or mutation holds the write lock
// it returns ErrWriterBusy and records nothing.
func (s *Store) RecordSearch(ctx context.Context, q string, at time.Time) error {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil
	}
	if !s.writeMu.TryLock() {
		return ErrWriterBusy
	}
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_history (query, last_used) VALUES (?, ?)
		ON CONFLICT(query) DO UPDATE SET last_used = excluded.last_used`,
		q, at.Unix())
	if err != nil {
		return fmt.Errorf("record search: %w", err)
	}
	return nil
}

// ListSearchHistory returns up to limit entries, most recent first. A limit of
// zero or less returns all entries.
func (s *Store) ListSearchHistory(ctx context.Context, limit int) ([]SearchEntry, error) {
	q := "SELECT query, last_used FROM search_history ORDER BY last_used DESC, query ASC"
	var args []interface{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list search history: %w", err)
	}
	defer rows.Close()

	var entries []SearchEntry
	for rows.Next() {
		var e SearchEntry
		var ts int64
		if err := rows.Scan(&e.Query, &ts); err != nil {
			return nil, fmt.Errorf("scan search history: %w", err)
		}
		e.LastUsed = time.Unix(ts, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClearSearchHistory deletes every remembered query.
func (s *Store) ClearSearchHistory(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM search_history"); err != nil {
			return fmt.Errorf("clear search history: %w", err)
		}
		return nil
	})
}
