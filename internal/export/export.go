// Package export serializes search results as CSV, JSON, a zip of .eml
// files, or a zip of HTML pages grouped into folders.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wesm/mboxvault/internal/fileutil"
	"github.com/wesm/mboxvault/internal/query"
)

// Format names an export serializer.
type Format string

const (
	FormatCSV       Format = "csv"
	FormatJSON      Format = "json"
	FormatEML       Format = "eml"
	FormatOrganized Format = "organized"
)

// ErrUnknownFormat is returned for a format name that has no serializer.
var ErrUnknownFormat = errors.New("unknown export format")

// Formats lists every supported format.
var Formats = []Format{FormatCSV, FormatJSON, FormatEML, FormatOrganized}

// ParseFormat resolves a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType is the MIME type of the serialized output.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	default:
		return "application/zip"
	}
}

// DefaultFilename is the download name offered for the format.
func (f Format) DefaultFilename() string {
	switch f {
	case FormatCSV:
		return "email_report.csv"
	case FormatJSON:
		return "email_dump.json"
	case FormatEML:
		return "eml_export.zip"
	default:
		return "organized_website.zip"
	}
}

// Options tunes a serializer. GroupBy only applies to FormatOrganized.
type Options struct {
	GroupBy GroupBy
}

// Write serializes emails to w in the given format and returns the number of
// records written.
func Write(w io.Writer, format Format, emails []query.Email, opts Options) (int, error) {
	switch format {
	case FormatCSV:
		return len(emails), CSV(w, emails)
	case FormatJSON:
		return len(emails), JSON(w, emails)
	case FormatEML:
		return EMLZip(w, emails)
	case FormatOrganized:
		return OrganizedZip(w, emails, opts.GroupBy)
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// ExportStats contains structured results of an export to a file.
type ExportStats struct {
	Count int
	Size  int64
	Path  string
}

// countingWriter tracks how many bytes pass through.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// ToFile writes an export to path. On any error the partial file is removed.
func ToFile(path string, format Format, emails []query.Email, opts Options) (ExportStats, error) {
	f, err := fileutil.CreatePrivate(path, os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return ExportStats{}, fmt.Errorf("create export file: %w", err)
	}

	cw := &countingWriter{w: f}
	n, werr := Write(cw, format, emails, opts)
	cerr := f.Close()
	if werr == nil && cerr != nil {
		werr = fmt.Errorf("close export file: %w", cerr)
	}
	if werr != nil {
		os.Remove(path)
		return ExportStats{}, werr
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return ExportStats{Count: n, Size: cw.n, Path: abs}, nil
}

// FormatExportResult formats ExportStats into a human-readable string for display.
func FormatExportResult(stats ExportStats) string {
	if stats.Count == 0 {
		return fmt.Sprintf("No emails matched. Wrote an empty export to:\n%s", stats.Path)
	}
	return fmt.Sprintf("Exported %d email(s) (%s)\n\nSaved to:\n%s",
		stats.Count, FormatBytesLong(stats.Size), stats.Path)
}

// SanitizeFilename removes or replaces characters that are invalid in filenames.
func SanitizeFilename(s string) string {
	var result []rune
	for _, r := range s {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '\n', '\r', '\t':
			result = append(result, '_')
		default:
			result = append(result, r)
		}
	}
	return string(result)
}

// FormatBytesLong formats bytes with full precision for export results.
func FormatBytesLong(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
