// Package email builds raw RFC 2822 messages and mbox files for tests.
package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
)

// Attachment is a MIME leaf emitted with a Content-Disposition header.
type Attachment struct {
	Filename    string
	ContentType string
	Inline      bool
	Data        []byte // base64-encoded on output
}

// MessageBuilder constructs MIME messages with a fluent API.
// Lines end in \n unless CRLF is set.
type MessageBuilder struct {
	from        string
	to          string
	cc          string
	bcc         string
	subject     string
	date        string
	messageID   string
	labels      string
	contentType string
	body        string
	htmlBody    string
	headerKeys  []string
	headerVals  []string
	attachments []Attachment
	boundary    string
	crlf        bool
	noSubject   bool
}

// NewMessage returns a builder for a plain-text message with fixed headers.
func NewMessage() *MessageBuilder {
	return &MessageBuilder{
		from:     "sender@example.com",
		to:       "recipient@example.com",
		date:     "Mon, 01 Jan 2024 12:00:00 +0000",
		subject:  "Test Message",
		body:     "This is a test message body.",
		boundary: "boundary123",
	}
}

func (b *MessageBuilder) From(v string) *MessageBuilder { b.from = v; return b }
func (b *MessageBuilder) To(v string) *MessageBuilder   { b.to = v; return b }
func (b *MessageBuilder) Cc(v string) *MessageBuilder   { b.cc = v; return b }
func (b *MessageBuilder) Bcc(v string) *MessageBuilder  { b.bcc = v; return b }

// Subject sets the Subject header. NoSubject omits it.
func (b *MessageBuilder) Subject(v string) *MessageBuilder {
	b.subject = v
	b.noSubject = false
	return b
}

func (b *MessageBuilder) NoSubject() *MessageBuilder { b.noSubject = true; return b }

// Date sets the Date header; an empty value omits it.
func (b *MessageBuilder) Date(v string) *MessageBuilder { b.date = v; return b }

// MessageID sets the Message-ID header. Without it the message has none.
func (b *MessageBuilder) MessageID(v string) *MessageBuilder { b.messageID = v; return b }

// Labels sets X-Gmail-Labels.
func (b *MessageBuilder) Labels(v string) *MessageBuilder { b.labels = v; return b }

// ContentType overrides the Content-Type of a single-part message.
func (b *MessageBuilder) ContentType(v string) *MessageBuilder { b.contentType = v; return b }

func (b *MessageBuilder) Body(v string) *MessageBuilder { b.body = v; return b }

// HTML adds a text/html alternative next to the plain body.
func (b *MessageBuilder) HTML(v string) *MessageBuilder { b.htmlBody = v; return b }

// Header adds an arbitrary header, emitted after the standard ones.
func (b *MessageBuilder) Header(key, value string) *MessageBuilder {
	b.headerKeys = append(b.headerKeys, key)
	b.headerVals = append(b.headerVals, value)
	return b
}

func (b *MessageBuilder) Boundary(v string) *MessageBuilder { b.boundary = v; return b }

// WithAttachment adds an attachment part.
func (b *MessageBuilder) WithAttachment(filename, contentType string, data []byte) *MessageBuilder {
	b.attachments = append(b.attachments, Attachment{Filename: filename, ContentType: contentType, Data: data})
	return b
}

// WithInline adds a part with "Content-Disposition: inline".
func (b *MessageBuilder) WithInline(filename, contentType string, data []byte) *MessageBuilder {
	b.attachments = append(b.attachments, Attachment{Filename: filename, ContentType: contentType, Inline: true, Data: data})
	return b
}

func (b *MessageBuilder) CRLF() *MessageBuilder { b.crlf = true; return b }

// Bytes renders the message.
func (b *MessageBuilder) Bytes() []byte {
	nl := "\n"
	if b.crlf {
		nl = "\r\n"
	}
	var s strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&s, format, args...)
		s.WriteString(nl)
	}

	line("From: %s", b.from)
	line("To: %s", b.to)
	if b.cc != "" {
		line("Cc: %s", b.cc)
	}
	if b.bcc != "" {
		line("Bcc: %s", b.bcc)
	}
	if !b.noSubject {
		line("Subject: %s", b.subject)
	}
	if b.date != "" {
		line("Date: %s", b.date)
	}
	if b.messageID != "" {
		line("Message-ID: %s", b.messageID)
	}
	if b.labels != "" {
		line("X-Gmail-Labels: %s", b.labels)
	}
	for i, k := range b.headerKeys {
		line("%s: %s", k, b.headerVals[i])
	}

	textPart := func() {
		line(`Content-Type: text/plain; charset="utf-8"`)
		line("")
		line("%s", b.body)
	}
	htmlPart := func() {
		line(`Content-Type: text/html; charset="utf-8"`)
		line("")
		line("%s", b.htmlBody)
	}

	switch {
	case len(b.attachments) > 0:
		line("MIME-Version: 1.0")
		line("Content-Type: multipart/mixed; boundary=%q", b.boundary)
		line("")
		line("--%s", b.boundary)
		if b.htmlBody != "" {
			alt := b.boundary + "-alt"
			line("Content-Type: multipart/alternative; boundary=%q", alt)
			line("")
			line("--%s", alt)
			textPart()
			line("--%s", alt)
			htmlPart()
			line("--%s--", alt)
		} else {
			textPart()
		}
		for _, att := range b.attachments {
			line("--%s", b.boundary)
			ct := att.ContentType
			if ct == "" {
				ct = "application/octet-stream"
			}
			disp := "attachment"
			if att.Inline {
				disp = "inline"
			}
			line("Content-Type: %s; name=%q", ct, att.Filename)
			line("Content-Disposition: %s; filename=%q", disp, att.Filename)
			line("Content-Transfer-Encoding: base64")
			line("")
			line("%s", base64.StdEncoding.EncodeToString(att.Data))
		}
		line("--%s--", b.boundary)
	case b.htmlBody != "":
		line("MIME-Version: 1.0")
		line("Content-Type: multipart/alternative; boundary=%q", b.boundary)
		line("")
		line("--%s", b.boundary)
		textPart()
		line("--%s", b.boundary)
		htmlPart()
		line("--%s--", b.boundary)
	default:
		ct := b.contentType
		if ct == "" {
			ct = `text/plain; charset="utf-8"`
		}
		line("Content-Type: %s", ct)
		line("")
		line("%s", b.body)
	}

	return []byte(s.String())
}

// DefaultSeparator is the "From " line Mbox puts before each message.
const DefaultSeparator = "From sender@example.com Mon Jan  1 12:00:00 2024"

// Mbox concatenates messages into mbox format, escaping body lines that
// begin with "From " (mboxrd) and ending each message with a blank line.
func Mbox(messages ...[]byte) []byte {
	var buf bytes.Buffer
	for _, msg := range messages {
		buf.WriteString(DefaultSeparator + "\n")
		for _, l := range strings.SplitAfter(string(msg), "\n") {
			if l == "" {
				continue
			}
			if strings.HasPrefix(strings.TrimLeft(l, ">"), "From ") {
				buf.WriteString(">")
			}
			buf.WriteString(l)
		}
		if !bytes.HasSuffix(msg, []byte("\n")) {
			buf.WriteString("\n")
		}
		buf.WriteString("\n")
	}
	return buf.Bytes()
}
