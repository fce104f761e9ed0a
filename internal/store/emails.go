package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Email is the canonical normalized record. It is both the row the importer
// writes and the row shape every query returns; the JSON field names are the
// result boundary consumed by exporters and the HTTP API.
type Email struct {
	ID  int64  `json:"id"`
	UID string `json:"uid"`

	Sender       string `json:"sender"`
	SenderName   string `json:"sender_name"`
	SenderAddr   string `json:"sender_addr"`
	SenderDomain string `json:"sender_domain"`
	Recipient    string `json:"recipient"`
	Cc           string `json:"cc"`
	Bcc          string `json:"bcc"`
	ReplyTo      string `json:"reply_to"`

	Subject   string `json:"subject"`
	DateStr   string `json:"date_str"`
	Timestamp int64  `json:"timestamp"`
	DayOfWeek string `json:"day_of_week"`

	SizeBytes int64 `json:"size_bytes"`
	LinkCount int   `json:"link_count"`

	HasAttachment   bool   `json:"has_attachment"`
	AttachmentCount int    `json:"attachment_count"`
	AttachmentTypes string `json:"attachment_types"`
	AttachmentNames string `json:"attachment_names"`

	Folder       string `json:"folder"`
	Category     string `json:"category"`
	IsStarred    bool   `json:"is_starred"`
	IsRead       bool   `json:"is_read"`
	IsNewsletter bool   `json:"is_newsletter"`
	IsDeleted    bool   `json:"is_deleted"`
	GmailLabels  string `json:"gmail_labels"`

	Headers  map[string]string `json:"headers"`
	Body     string            `json:"body"`
	HTMLBody string            `json:"html_body"`
	Tags     string            `json:"tags"`

	ImportedAt time.Time `json:"imported_at"`
}

// AttachmentNameSep joins the filenames stored in AttachmentNames.
const AttachmentNameSep = "; "

// AttachmentList returns the stored attachment filenames in message order.
func (e *Email) AttachmentList() []string {
	var names []string
	for _, name := range strings.Split(e.AttachmentNames, AttachmentNameSep) {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// TagList returns the record's tags as a slice.
func (e *Email) TagList() []string {
	return strings.Fields(e.Tags)
}

// emailColumns is the select list shared by every reader of the emails table,
// in the order scanEmail expects.
var emailColumns = []string{
	"id", "uid",
	"sender", "sender_name", "sender_addr", "sender_domain",
	"recipient", "cc", "bcc", "reply_to",
	"subject", "date_str", "timestamp", "day_of_week",
	"size_bytes", "link_count",
	"has_attachment", "attachment_count", "attachment_types", "attachment_names",
	"folder", "category", "is_starred", "is_read", "is_newsletter", "is_deleted", "gmail_labels",
	"headers_json", "body", "html_body", "tags",
	"imported_at",
}

// EmailColumns returns the emails select list qualified with alias (which may
// be empty).
func EmailColumns(alias string) string {
	if alias == "" {
		return strings.Join(emailColumns, ", ")
	}
	cols := make([]string, len(emailColumns))
	for i, c := range emailColumns {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// RowScanner is satisfied by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...interface{}) error
}

// ScanEmail reads one row selected with EmailColumns.
func ScanEmail(sc RowScanner) (*Email, error) {
	var e Email
	var headersJSON string
	var importedAt int64
	err := sc.Scan(
		&e.ID, &e.UID,
		&e.Sender, &e.SenderName, &e.SenderAddr, &e.SenderDomain,
		&e.Recipient, &e.Cc, &e.Bcc, &e.ReplyTo,
		&e.Subject, &e.DateStr, &e.Timestamp, &e.DayOfWeek,
		&e.SizeBytes, &e.LinkCount,
		&e.HasAttachment, &e.AttachmentCount, &e.AttachmentTypes, &e.AttachmentNames,
		&e.Folder, &e.Category, &e.IsStarred, &e.IsRead, &e.IsNewsletter, &e.IsDeleted, &e.GmailLabels,
		&headersJSON, &e.Body, &e.HTMLBody, &e.Tags,
		&importedAt,
	)
	if err != nil {
		return nil, err
	}
	if headersJSON != "" {
		// A corrupt snapshot leaves Headers empty rather than failing the row.
		_ = json.Unmarshal([]byte(headersJSON), &e.Headers)
	}
	if importedAt > 0 {
		e.ImportedAt = time.Unix(importedAt, 0).UTC()
	}
	return &e, nil
}

// GetEmail returns the record with the given id, or nil if there is none.
// Soft-deleted records are returned; callers decide whether to show them.
func (s *Store) GetEmail(ctx context.Context, id int64) (*Email, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+EmailColumns("")+" FROM emails WHERE id = ?", id)
	e, err := ScanEmail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get email %d: %w", id, err)
	}
	return e, nil
}

// GetEmailByUID returns the record with the given UID, or nil if there is none.
func (s *Store) GetEmailByUID(ctx context.Context, uid string) (*Email, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+EmailColumns("")+" FROM emails WHERE uid = ?", uid)
	e, err := ScanEmail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get email by uid: %w", err)
	}
	return e, nil
}

// CountEmails returns the number of rows in the emails table, deleted or not.
func (s *Store) CountEmails(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM emails").Scan(&n); err != nil {
		return 0, fmt.Errorf("count emails: %w", err)
	}
	return n, nil
}

const insertEmailSQL = `
	INSERT OR IGNORE INTO emails (
		uid, sender, sender_name, sender_addr, sender_domain,
		recipient, cc, bcc, reply_to,
		subject, date_str, timestamp, day_of_week,
		size_bytes, link_count,
		has_attachment, attachment_count, attachment_types, attachment_names,
		folder, category, is_starred, is_read, is_newsletter, is_deleted, gmail_labels,
		headers_json, body, html_body, tags
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// ImportTx is the single unit of work an import runs in. It holds the store's
// write lock from BeginImport until Commit or Rollback.
type ImportTx struct {
	s      *Store
	tx     *sql.Tx
	insert *sql.Stmt
	done   bool
}

// BeginImport opens the batch transaction. The caller must end it with Commit
// or Rollback.
func (s *Store) BeginImport(ctx context.Context) (*ImportTx, error) {
	s.writeMu.Lock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.writeMu.Unlock()
		return nil, fmt.Errorf("begin import: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertEmailSQL)
	if err != nil {
		_ = tx.Rollback()
		s.writeMu.Unlock()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return &ImportTx{s: s, tx: tx, insert: stmt}, nil
}

// InsertEmail writes e unless a row with the same UID already exists.
// It reports whether a row was written and, if so, sets e.ID.
func (t *ImportTx) InsertEmail(ctx context.Context, e *Email) (bool, error) {
	if t.done {
		return false, sql.ErrTxDone
	}
	headers := e.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return false, fmt.Errorf("marshal headers: %w", err)
	}

	res, err := t.insert.ExecContext(ctx,
		e.UID, e.Sender, e.SenderName, e.SenderAddr, e.SenderDomain,
		e.Recipient, e.Cc, e.Bcc, e.ReplyTo,
		e.Subject, e.DateStr, e.Timestamp, e.DayOfWeek,
		e.SizeBytes, e.LinkCount,
		e.HasAttachment, e.AttachmentCount, e.AttachmentTypes, e.AttachmentNames,
		e.Folder, e.Category, e.IsStarred, e.IsRead, e.IsNewsletter, e.IsDeleted, e.GmailLabels,
		string(headersJSON), e.Body, e.HTMLBody, e.Tags,
	)
	if err != nil {
		return false, fmt.Errorf("insert email %q: %w", e.UID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert email %q: %w", e.UID, err)
	}
	if n == 0 {
		return false, nil
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return true, nil
}

// RebuildIndex regenerates the full-text index inside the import transaction.
func (t *ImportTx) RebuildIndex(ctx context.Context) error {
	if t.done {
		return sql.ErrTxDone
	}
	return rebuildFTS(ctx, t.tx, t.s.fts5Available)
}

// Commit commits the batch and releases the write lock.
func (t *ImportTx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	defer t.s.writeMu.Unlock()
	_ = t.insert.Close()
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

// Rollback discards the batch and releases the write lock. It is safe to call
// after Commit, in which case it does nothing.
func (t *ImportTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.s.writeMu.Unlock()
	_ = t.insert.Close()
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback import: %w", err)
	}
	return nil
}
