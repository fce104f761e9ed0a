package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/wesm/mboxvault/internal/export"
	"github.com/wesm/mboxvault/internal/importer"
	"github.com/wesm/mboxvault/internal/query"
	"github.com/wesm/mboxvault/internal/store"
	"github.com/wesm/mboxvault/internal/textutil"
)

// maxBodyBytes bounds request bodies. Filters and id lists are small.
const maxBodyBytes = 4 << 20

// snippetRunes is the length of the body preview in search rows, before the
// trailing "...".
const snippetRunes = 60

// EmailRow is one search result as listed by the API.
type EmailRow struct {
	ID            int64    `json:"id"`
	SenderName    string   `json:"sender_name"`
	SenderAddr    string   `json:"sender_addr"`
	Subject       string   `json:"subject"`
	Date          string   `json:"date"`
	Snippet       string   `json:"snippet"`
	Folder        string   `json:"folder"`
	Category      string   `json:"category"`
	IsRead        bool     `json:"is_read"`
	IsStarred     bool     `json:"is_starred"`
	HasAttachment bool     `json:"has_attachment"`
	Tags          []string `json:"tags"`
}

// EmailDetail is a single record as shown by the API.
type EmailDetail struct {
	ID          int64             `json:"id"`
	Sender      string            `json:"sender"`
	SenderAddr  string            `json:"sender_addr"`
	Recipient   string            `json:"recipient"`
	Cc          string            `json:"cc"`
	Bcc         string            `json:"bcc"`
	ReplyTo     string            `json:"reply_to"`
	Subject     string            `json:"subject"`
	Date        string            `json:"date"`
	Content     string            `json:"content"`
	Attachments []string          `json:"attachments"`
	Labels      string            `json:"labels"`
	Tags        []string          `json:"tags"`
	Folder      string            `json:"folder"`
	IsRead      bool              `json:"is_read"`
	IsStarred   bool              `json:"is_starred"`
	Size        string            `json:"size"`
	Headers     map[string]string `json:"headers"`
}

// SchedulerStatusResponse represents scheduler status.
type SchedulerStatusResponse struct {
	Running bool           `json:"running"`
	Imports []ImportStatus `json:"imports"`
}

// ImportResponse reports the outcome of an import request.
type ImportResponse struct {
	Success  bool   `json:"success"`
	Imported int    `json:"imported"`
	Message  string `json:"message"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// decodeBody decodes a JSON request body into v. An empty body leaves v
// untouched. Numbers decode as json.Number so filter values keep their text.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// requireArchive writes 503 and returns false when no archive is wired.
func (s *Server) requireArchive(w http.ResponseWriter) bool {
	if s.deps.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "Archive not available")
		return false
	}
	return true
}

func (s *Server) requireEngine(w http.ResponseWriter) bool {
	if s.deps.Engine == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "Search engine not available")
		return false
	}
	return true
}

// filterFromMap converts size_min_mb and size_max_mb into byte bounds and
// parses the rest with query.ParseFilter. Explicit byte bounds win.
func filterFromMap(m map[string]any) query.Filter {
	if m == nil {
		m = map[string]any{}
	}
	for mbKey, key := range map[string]string{"size_min_mb": "size_min", "size_max_mb": "size_max"} {
		raw, ok := m[mbKey]
		if !ok {
			continue
		}
		if _, set := m[key]; set {
			continue
		}
		mb, err := strconv.ParseFloat(strings.TrimSpace(fmt.Sprint(raw)), 64)
		if err != nil {
			continue
		}
		// ParseFilter rounds the byte count and drops non-finite or
		// out-of-range values.
		m[key] = mb * (1 << 20)
	}
	return query.ParseFilter(m)
}

func toRow(e *query.Email) EmailRow {
	snippet := textutil.TruncateRunes(strings.Join(strings.Fields(e.Body), " "), snippetRunes+3)
	tags := e.TagList()
	if tags == nil {
		tags = []string{}
	}
	return EmailRow{
		ID:            e.ID,
		SenderName:    e.SenderName,
		SenderAddr:    e.SenderAddr,
		Subject:       e.Subject,
		Date:          headRunes(e.DateStr, 16),
		Snippet:       snippet,
		Folder:        e.Folder,
		Category:      e.Category,
		IsRead:        e.IsRead,
		IsStarred:     e.IsStarred,
		HasAttachment: e.HasAttachment,
		Tags:          tags,
	}
}

// toDetail renders the HTML body when there is one, otherwise the plain
// body escaped inside <pre>.
func toDetail(e *query.Email) EmailDetail {
	content := e.HTMLBody
	if strings.TrimSpace(content) == "" {
		content = "<pre>" + html.EscapeString(e.Body) + "</pre>"
	}
	attachments := e.AttachmentList()
	if attachments == nil {
		attachments = []string{}
	}
	tags := e.TagList()
	if tags == nil {
		tags = []string{}
	}
	return EmailDetail{
		ID:          e.ID,
		Sender:      e.Sender,
		SenderAddr:  e.SenderAddr,
		Recipient:   e.Recipient,
		Cc:          e.Cc,
		Bcc:         e.Bcc,
		ReplyTo:     e.ReplyTo,
		Subject:     e.Subject,
		Date:        e.DateStr,
		Content:     content,
		Attachments: attachments,
		Labels:      e.GmailLabels,
		Tags:        tags,
		Folder:      e.Folder,
		IsRead:      e.IsRead,
		IsStarred:   e.IsStarred,
		Size:        fmt.Sprintf("%d KB", e.SizeBytes/1024),
		Headers:     e.Headers,
	}
}

// headRunes returns at most the first n runes of s.
func headRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// handleSearch runs a filter given as a flat JSON object.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}
	var m map[string]any
	if err := decodeBody(r, &m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON filter: "+err.Error())
		return
	}

	f := filterFromMap(m)
	if f.Limit == 0 {
		f.Limit = s.cfg.Query.DefaultLimit
	}
	emails, err := s.deps.Engine.Search(r.Context(), f)
	if err != nil {
		s.logger.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Search failed")
		return
	}

	rows := make([]EmailRow, 0, len(emails))
	for i := range emails {
		rows = append(rows, toRow(&emails[i]))
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleGetEmail returns one record.
func (s *Server) handleGetEmail(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "Invalid email ID")
		return
	}

	e, err := s.deps.Engine.GetEmail(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get email", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve email")
		return
	}
	if e == nil {
		writeError(w, http.StatusNotFound, "not_found", "Email not found")
		return
	}
	writeJSON(w, http.StatusOK, toDetail(e))
}

// handleToggle flips the starred or read flag of one record.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w) {
		return
	}
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "Invalid email ID")
		return
	}
	flag, err := store.ParseFlag(chi.URLParam(r, "flag"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_flag", err.Error())
		return
	}

	value, err := s.deps.Archive.ToggleFlag(r.Context(), id, flag)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Email not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to toggle flag", "id", id, "flag", flag, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to update email")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "flag": flag, "value": value})
}

type tagRequest struct {
	ID  int64  `json:"id"`
	Tag string `json:"tag"`
}

// handleTag adds a tag to one record.
func (s *Server) handleTag(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w) {
		return
	}
	var req tagRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON: "+err.Error())
		return
	}
	if req.ID <= 0 || strings.TrimSpace(req.Tag) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id and tag are required")
		return
	}

	added, err := s.deps.Archive.AddTag(r.Context(), req.ID, req.Tag)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Email not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to add tag", "id", req.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to add tag")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "added": added})
}

type bulkRequest struct {
	IDs    []int64 `json:"ids"`
	Action string  `json:"action"`
	Value  string  `json:"value"`
}

// handleBulk applies one action to a list of records.
func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w) {
		return
	}
	var req bulkRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON: "+err.Error())
		return
	}

	op := store.BulkOp(strings.ToLower(strings.TrimSpace(req.Action)))
	affected, err := s.deps.Archive.BulkAction(r.Context(), req.IDs, op, req.Value)
	if err != nil {
		s.logger.Error("bulk action failed", "action", op, "count", len(req.IDs), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Bulk action failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "affected": affected})
}

// handleUnread returns unread counts keyed by folder.
func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w) {
		return
	}
	counts, err := s.deps.Archive.UnreadCounts(r.Context())
	if err != nil {
		s.logger.Error("failed to count unread", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to count unread email")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleFolders(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w) {
		return
	}
	folders, err := s.deps.Archive.ListFolders(r.Context())
	if err != nil {
		s.logger.Error("failed to list folders", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list folders")
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

// handleHistory lists recent searches, newest first. ?limit= defaults to 10.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w) {
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := s.deps.Archive.ListSearchHistory(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list search history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list search history")
		return
	}
	if entries == nil {
		entries = []store.SearchEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleStats returns archive statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w) {
		return
	}
	stats, err := s.deps.Archive.GetStats(r.Context())
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type importRequest struct {
	Path string `json:"path"`
}

// handleImport imports an mbox file named by path. The body may be JSON or a
// form. Import failures are reported in the response body with status 200,
// since the request itself was well formed.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Import == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "Import not available")
		return
	}

	var req importRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON: "+err.Error())
			return
		}
	} else {
		req.Path = r.FormValue("path")
	}
	req.Path = strings.TrimSpace(req.Path)
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "path is required")
		return
	}

	sum, err := s.deps.Import(r.Context(), req.Path)
	ok, imported, msg := importer.Outcome(sum, err)
	if !ok {
		s.logger.Warn("import failed", "path", req.Path, "error", err)
	}
	writeJSON(w, http.StatusOK, ImportResponse{Success: ok, Imported: imported, Message: msg})
}

type exportRequest struct {
	Filters map[string]any `json:"filters"`
	GroupBy string         `json:"group_by"`
}

// handleExport streams the records matching filters in the format named by
// the path. The archive is built in memory first so a failure can still be
// reported as JSON.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_format", err.Error())
		return
	}
	var req exportRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON: "+err.Error())
		return
	}
	groupBy, err := export.ParseGroupBy(req.GroupBy)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_group_by", err.Error())
		return
	}

	emails, err := s.deps.Engine.Search(r.Context(), filterFromMap(req.Filters))
	if err != nil {
		s.logger.Error("export search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Search failed")
		return
	}

	var buf bytes.Buffer
	n, err := export.Write(&buf, format, emails, export.Options{GroupBy: groupBy})
	if err != nil {
		s.logger.Error("export failed", "format", format, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Export failed")
		return
	}
	s.logger.Info("export complete", "format", format, "emails", n, "bytes", buf.Len())

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.DefaultFilename()))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleSchedulerStatus returns the state of every scheduled import.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "Scheduler not available")
		return
	}
	statuses := s.deps.Scheduler.Status()
	if statuses == nil {
		statuses = []ImportStatus{}
	}
	writeJSON(w, http.StatusOK, SchedulerStatusResponse{
		Running: s.deps.Scheduler.IsRunning(),
		Imports: statuses,
	})
}

// handleTriggerImport starts a scheduled import now.
func (s *Server) handleTriggerImport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "Scheduler not available")
		return
	}
	var req importRequest
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "path is required")
		return
	}

	if err := s.deps.Scheduler.TriggerImport(req.Path); err != nil {
		writeError(w, http.StatusConflict, "trigger_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "Import started for " + req.Path,
	})
}
