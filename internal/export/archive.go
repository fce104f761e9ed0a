package export

import (
	"archive/zip"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/emersion/go-message/mail"

	"github.com/wesm/mboxvault/internal/query"
)

// GroupBy selects the folder layout of an organized export.
type GroupBy string

const (
	GroupByYear   GroupBy = "year"
	GroupByDomain GroupBy = "domain"
	GroupByTag    GroupBy = "tag"
)

// ParseGroupBy resolves a grouping name. Empty means GroupByYear.
func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return GroupByYear, nil
	case GroupByYear, GroupByDomain, GroupByTag:
		return g, nil
	}
	return "", fmt.Errorf("unknown grouping %q (want year, domain or tag)", s)
}

const maxStemRunes = 30

// entryStem builds the per-record file name stem from the letters and digits
// of the subject plus the record id, which keeps names unique in an archive.
func entryStem(e *query.Email) string {
	var b strings.Builder
	n := 0
	for _, r := range e.Subject {
		if n == maxStemRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			n++
		}
	}
	return b.String() + "_" + strconv.FormatInt(e.ID, 10)
}

// EMLZip writes a zip holding one reconstructed .eml message per record.
// Only the stored fields are available, so each message carries the main
// headers and a single inline body: the HTML body when there is one,
// otherwise the plain text.
func EMLZip(w io.Writer, emails []query.Email) (int, error) {
	zw := zip.NewWriter(w)
	for i := range emails {
		e := &emails[i]
		fw, err := zw.Create(entryStem(e) + ".eml")
		if err != nil {
			return i, fmt.Errorf("zip write error: %w", err)
		}
		if err := writeEML(fw, e); err != nil {
			return i, fmt.Errorf("email %d: %w", e.ID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return len(emails), fmt.Errorf("zip finalization error: %w", err)
	}
	return len(emails), nil
}

func writeEML(w io.Writer, e *query.Email) error {
	var h mail.Header
	h.SetText("From", e.Sender)
	h.SetText("To", e.Recipient)
	if e.Cc != "" {
		h.SetText("Cc", e.Cc)
	}
	if e.ReplyTo != "" {
		h.SetText("Reply-To", e.ReplyTo)
	}
	h.SetSubject(e.Subject)
	switch {
	case e.Timestamp > 0:
		h.SetDate(time.Unix(e.Timestamp, 0).UTC())
	case e.DateStr != "":
		h.Set("Date", e.DateStr)
	}
	if strings.HasPrefix(e.UID, "<") {
		h.Set("Message-Id", e.UID)
	}
	if e.GmailLabels != "" {
		h.SetText("X-Gmail-Labels", e.GmailLabels)
	}

	body := e.Body
	if e.HTMLBody != "" {
		body = e.HTMLBody
		h.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	} else {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	}

	bw, err := mail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return fmt.Errorf("write headers: %w", err)
	}
	if _, err := io.WriteString(bw, body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return bw.Close()
}

// groupFolder names the archive folder a record belongs to.
func groupFolder(e *query.Email, by GroupBy) string {
	var name string
	switch by {
	case GroupByDomain:
		name = e.SenderDomain
		if name == "" {
			name = "Unknown"
		}
	case GroupByTag:
		name = "Untagged"
		if tags := e.TagList(); len(tags) > 0 {
			name = tags[0]
		}
	default:
		name = "Unknown"
		if e.Timestamp > 0 {
			name = strconv.Itoa(time.Unix(e.Timestamp, 0).UTC().Year())
		}
	}
	name = SanitizeFilename(name)
	if name == "." || name == ".." {
		name = "_"
	}
	return name
}

// OrganizedZip writes a zip of standalone HTML pages, one per record,
// placed in a folder per year, sender domain or first tag.
func OrganizedZip(w io.Writer, emails []query.Email, by GroupBy) (int, error) {
	zw := zip.NewWriter(w)
	for i := range emails {
		e := &emails[i]
		name := groupFolder(e, by) + "/" + entryStem(e) + ".html"
		fw, err := zw.Create(name)
		if err != nil {
			return i, fmt.Errorf("zip write error: %w", err)
		}
		if _, err := io.WriteString(fw, renderPage(e)); err != nil {
			return i, fmt.Errorf("zip write error: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return len(emails), fmt.Errorf("zip finalization error: %w", err)
	}
	return len(emails), nil
}

// renderPage lays out one record as HTML. Stored HTML bodies are embedded as
// they are; plain bodies are escaped into a <pre> block.
func renderPage(e *query.Email) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	b.WriteString(html.EscapeString(e.Subject))
	b.WriteString("</title></head><body>\n<h1>")
	b.WriteString(html.EscapeString(e.Subject))
	b.WriteString("</h1>\n<p>From: ")
	b.WriteString(html.EscapeString(e.Sender))
	b.WriteString("</p>\n")
	if e.DateStr != "" {
		b.WriteString("<p>Date: ")
		b.WriteString(html.EscapeString(e.DateStr))
		b.WriteString("</p>\n")
	}
	b.WriteString("<hr>\n")
	if e.HTMLBody != "" {
		b.WriteString(e.HTMLBody)
	} else {
		b.WriteString("<pre style=\"white-space:pre-wrap;\">")
		b.WriteString(html.EscapeString(e.Body))
		b.WriteString("</pre>")
	}
	b.WriteString("\n</body></html>\n")
	return b.String()
}
