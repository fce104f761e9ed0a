// Package mime parses raw RFC 5322 messages using enmime and interprets the
// provider metadata (Gmail labels, List-Unsubscribe) carried in their headers.
package mime

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"github.com/wesm/mboxvault/internal/textutil"
)

// ErrEmpty is returned by Parse for a message with no bytes, or only
// whitespace.
var ErrEmpty = errors.New("empty message")

// AttachmentPlaceholder names an attachment part that has no filename.
const AttachmentPlaceholder = "attachment"

// SnapshotHeaders are kept verbatim on every record for the detail view.
var SnapshotHeaders = []string{
	"Message-ID",
	"Delivered-To",
	"Return-Path",
	"MIME-Version",
	"Content-Type",
	"X-Mailer",
	"X-Gmail-Labels",
}

// Message is a parsed message with its headers decoded to UTF-8.
type Message struct {
	MessageID string
	From      string
	To        string
	Cc        string
	Bcc       string
	ReplyTo   string
	Subject   string

	// DateHeader is the Date header as written; Date is its parsed value
	// and is zero when the header is missing or unparsable.
	DateHeader string
	Date       time.Time

	Labels     string
	Newsletter bool

	BodyText string
	BodyHTML string

	// Attachments lists filenames in part order. Content is not retained.
	Attachments []string

	// Snapshot holds SnapshotHeaders, empty strings for absent ones.
	Snapshot map[string]string

	// Errors collects non-fatal MIME problems enmime reported.
	Errors []string
}

// Parse parses raw into a Message.
func Parse(raw []byte) (*Message, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmpty
	}
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse mime: %w", err)
	}
	if env.Root == nil {
		return nil, fmt.Errorf("parse mime: no root part")
	}
	h := env.Root.Header

	msg := &Message{
		MessageID:  strings.TrimSpace(h.Get("Message-ID")),
		From:       CleanHeader(h.Get("From")),
		To:         CleanHeader(h.Get("To")),
		Cc:         CleanHeader(h.Get("Cc")),
		Bcc:        CleanHeader(h.Get("Bcc")),
		ReplyTo:    CleanHeader(h.Get("Reply-To")),
		Subject:    CleanHeader(h.Get("Subject")),
		DateHeader: textutil.EnsureUTF8(strings.TrimSpace(h.Get("Date"))),
		Labels:     textutil.DecodeHeader(h.Get("X-Gmail-Labels")),
		Newsletter: strings.TrimSpace(h.Get("List-Unsubscribe")) != "",
		Snapshot:   make(map[string]string, len(SnapshotHeaders)),
	}
	if t, ok := ParseDate(msg.DateHeader); ok {
		msg.Date = t
	}
	for _, name := range SnapshotHeaders {
		msg.Snapshot[name] = textutil.EnsureUTF8(h.Get(name))
	}

	var text, html strings.Builder
	walkLeaves(env.Root, func(p *enmime.Part) {
		if isAttachment(p) {
			name := strings.TrimSpace(textutil.EnsureUTF8(p.FileName))
			if name == "" {
				name = AttachmentPlaceholder
			}
			msg.Attachments = append(msg.Attachments, name)
			return
		}
		mt := mediaType(p.ContentType)
		if len(p.Content) == 0 || (mt != "" && !strings.HasPrefix(mt, "text/")) {
			return
		}
		body := textutil.EnsureUTF8(string(p.Content))
		if mt == "text/html" {
			html.WriteString(body)
		} else {
			text.WriteString(body)
		}
	})
	msg.BodyText = text.String()
	msg.BodyHTML = html.String()

	for _, e := range env.Errors {
		msg.Errors = append(msg.Errors, e.Error())
	}
	return msg, nil
}

// walkLeaves calls fn for every non-multipart part in depth-first order.
func walkLeaves(p *enmime.Part, fn func(*enmime.Part)) {
	for ; p != nil; p = p.NextSibling {
		if strings.HasPrefix(mediaType(p.ContentType), "multipart/") || p.FirstChild != nil {
			walkLeaves(p.FirstChild, fn)
			continue
		}
		fn(p)
	}
}

// isAttachment reports whether a leaf is an attachment: any leaf that
// declares a Content-Disposition, inline or not.
func isAttachment(p *enmime.Part) bool {
	return strings.TrimSpace(p.Disposition) != ""
}

func mediaType(ct string) string {
	ct = strings.ToLower(ct)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}

// CleanHeader decodes a raw header value, removes double quotes and trims
// surrounding whitespace.
func CleanHeader(raw string) string {
	v := textutil.DecodeHeader(raw)
	v = strings.ReplaceAll(v, `"`, "")
	return strings.TrimSpace(v)
}

// SplitSender splits a From value into display name and address. A value
// with a bracketed address yields the text before '<' and the text inside the
// brackets; anything else is used for both.
func SplitSender(from string) (name, addr string) {
	open := strings.IndexByte(from, '<')
	if open < 0 {
		return from, from
	}
	name = strings.TrimSpace(from[:open])
	rest := from[open+1:]
	if end := strings.IndexByte(rest, '>'); end >= 0 {
		rest = rest[:end]
	}
	return name, strings.TrimSpace(rest)
}

// ExtractDomain returns the lower-cased host after the first '@', stopping
// at the first character outside [A-Za-z0-9_.-]. It returns "" when there is
// no '@' or nothing valid follows it.
func ExtractDomain(addr string) string {
	at := strings.IndexByte(addr, '@')
	if at < 0 {
		return ""
	}
	host := addr[at+1:]
	end := 0
	for end < len(host) && isDomainByte(host[end]) {
		end++
	}
	return strings.ToLower(host[:end])
}

func isDomainByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '.' || c == '-'
}

// AttachmentTypes returns the distinct lower-cased extensions of names,
// comma-joined in first-seen order. Names without an extension contribute
// nothing.
func AttachmentTypes(names []string) string {
	seen := make(map[string]bool, len(names))
	var exts []string
	for _, n := range names {
		ext := strings.ToLower(filepath.Ext(n))
		if ext == "" || seen[ext] {
			continue
		}
		seen[ext] = true
		exts = append(exts, ext)
	}
	return strings.Join(exts, ",")
}

// CountLinks counts anchors in the HTML body plus bare URLs in the text body.
func CountLinks(text, html string) int {
	lower := strings.ToLower(html)
	return strings.Count(lower, "<a href") +
		strings.Count(text, "http://") + strings.Count(text, "https://")
}
