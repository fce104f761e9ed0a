package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Flag names a boolean column that can be flipped on a single record.
type Flag string

const (
	FlagStarred Flag = "starred"
	FlagRead    Flag = "read"
)

// column maps a flag to its fixed column name.
func (f Flag) column() (string, bool) {
	switch f {
	case FlagStarred:
		return "is_starred", true
	case FlagRead:
		return "is_read", true
	}
	return "", false
}

// ParseFlag converts a user-supplied flag name. "star" and "is_starred" are
// accepted as spellings of starred, likewise for read.
func ParseFlag(name string) (Flag, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "starred", "star", "is_starred":
		return FlagStarred, nil
	case "read", "is_read":
		return FlagRead, nil
	}
	return "", fmt.Errorf("unknown flag %q", name)
}

// ToggleFlag flips flag on record id and returns the new value.
func (s *Store) ToggleFlag(ctx context.Context, id int64, flag Flag) (bool, error) {
	col, ok := flag.column()
	if !ok {
		return false, fmt.Errorf("unknown flag %q", flag)
	}
	var value bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE emails SET %s = 1 - %s WHERE id = ?", col, col), id)
		if err != nil {
			return fmt.Errorf("toggle %s: %w", flag, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return tx.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM emails WHERE id = ?", col), id).Scan(&value)
	})
	if err != nil {
		return false, err
	}
	return value, nil
}

// SetFlag sets flag on record id to value.
func (s *Store) SetFlag(ctx context.Context, id int64, flag Flag, value bool) error {
	col, ok := flag.column()
	if !ok {
		return fmt.Errorf("unknown flag %q", flag)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE emails SET %s = ? WHERE id = ?", col), value, id)
		if err != nil {
			return fmt.Errorf("set %s: %w", flag, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// BulkOp names an operation applied to a set of records.
type BulkOp string

const (
	BulkMove       BulkOp = "move"
	BulkDelete     BulkOp = "delete"
	BulkRestore    BulkOp = "restore"
	BulkMarkRead   BulkOp = "mark_read"
	BulkMarkUnread BulkOp = "mark_unread"
	BulkStar       BulkOp = "star"
	BulkUnstar     BulkOp = "unstar"
	BulkAddTag     BulkOp = "add_tag"
)

// bulkStatements holds the fixed UPDATE for each op that needs no per-row
// logic. The %s placeholder receives the id list.
var bulkStatements = map[BulkOp]string{
	BulkDelete:     "UPDATE emails SET is_deleted = 1, folder = 'bin' WHERE id IN (%s)",
	BulkRestore:    "UPDATE emails SET is_deleted = 0, folder = 'inbox' WHERE id IN (%s)",
	BulkMarkRead:   "UPDATE emails SET is_read = 1 WHERE id IN (%s)",
	BulkMarkUnread: "UPDATE emails SET is_read = 0 WHERE id IN (%s)",
	BulkStar:       "UPDATE emails SET is_starred = 1 WHERE id IN (%s)",
	BulkUnstar:     "UPDATE emails SET is_starred = 0 WHERE id IN (%s)",
}

// BulkAction applies op to every record in ids in one transaction and returns
// the number of rows changed. Unknown ops, and move or add_tag without a
// value, change nothing.
func (s *Store) BulkAction(ctx context.Context, ids []int64, op BulkOp, value string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var affected int64
	switch op {
	case BulkMove:
		folder := strings.TrimSpace(value)
		if folder == "" {
			return 0, nil
		}
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			n, err := execInChunks(ctx, tx, ids, []interface{}{folder}, "UPDATE emails SET folder = ? WHERE id IN (%s)")
			affected = n
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("bulk move: %w", err)
		}
	case BulkAddTag:
		tag := normalizeTag(value)
		if tag == "" {
			return 0, nil
		}
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			for _, id := range ids {
				added, err := addTagTx(ctx, tx, id, tag)
				if errors.Is(err, ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				if added {
					affected++
				}
			}
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("bulk add_tag: %w", err)
		}
	default:
		stmt, ok := bulkStatements[op]
		if !ok {
			return 0, nil
		}
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			n, err := execInChunks(ctx, tx, ids, nil, stmt)
			affected = n
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("bulk %s: %w", op, err)
		}
	}
	return affected, nil
}

// normalizeTag trims tag and joins inner whitespace with '-', since the tag
// set is stored space-separated.
func normalizeTag(tag string) string {
	return strings.Join(strings.Fields(tag), "-")
}

// AddTag appends tag to the record's tag set. It reports whether the tag was
// added; a tag already present is left alone.
func (s *Store) AddTag(ctx context.Context, id int64, tag string) (bool, error) {
	tag = normalizeTag(tag)
	if tag == "" {
		return false, fmt.Errorf("tag is empty")
	}
	var added bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		added, err = addTagTx(ctx, tx, id, tag)
		return err
	})
	return added, err
}

func addTagTx(ctx context.Context, tx *sql.Tx, id int64, tag string) (bool, error) {
	var tags string
	err := tx.QueryRowContext(ctx, "SELECT tags FROM emails WHERE id = ?", id).Scan(&tags)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("read tags: %w", err)
	}

	existing := strings.Fields(tags)
	for _, t := range existing {
		if t == tag {
			return false, nil
		}
	}
	existing = append(existing, tag)
	if _, err := tx.ExecContext(ctx, "UPDATE emails SET tags = ? WHERE id = ?", strings.Join(existing, " "), id); err != nil {
		return false, fmt.Errorf("write tags: %w", err)
	}
	return true, nil
}

// UnreadCounts returns the number of unread, non-deleted records per folder.
// Folders with no unread records are absent from the map.
func (s *Store) UnreadCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT folder, COUNT(*) FROM emails
		WHERE is_deleted = 0 AND is_read = 0
		GROUP BY folder`)
	if err != nil {
		return nil, fmt.Errorf("unread counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var folder string
		var n int64
		if err := rows.Scan(&folder, &n); err != nil {
			return nil, fmt.Errorf("scan unread count: %w", err)
		}
		counts[folder] = n
	}
	return counts, rows.Err()
}
