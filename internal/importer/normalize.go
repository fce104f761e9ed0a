// Package importer turns mbox files into stored email records.
package importer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wesm/mboxvault/internal/mbox"
	"github.com/wesm/mboxvault/internal/mime"
	"github.com/wesm/mboxvault/internal/store"
)

// ErrEmptyMessage is returned by Normalize for a message with no content.
var ErrEmptyMessage = errors.New("empty message")

// NoSubject replaces a missing or blank Subject header.
const NoSubject = "(No Subject)"

// Normalize converts one raw RFC 5322 message into a record ready for
// insertion. ordinal is the message's one-based position in its batch and
// only matters when the message has no Message-ID. Normalize has no side
// effects.
func Normalize(raw []byte, ordinal int) (*store.Email, error) {
	return normalize(raw, ordinal, time.Time{})
}

// NormalizeMessage normalizes a message read from an mbox file. The
// separator date stands in for a missing Date header.
func NormalizeMessage(msg *mbox.Message) (*store.Email, error) {
	return normalize(msg.Raw, msg.Index+1, msg.Date)
}

func normalize(raw []byte, ordinal int, fallbackDate time.Time) (*store.Email, error) {
	parsed, err := mime.Parse(raw)
	if err != nil {
		if errors.Is(err, mime.ErrEmpty) {
			return nil, fmt.Errorf("message %d: %w", ordinal, ErrEmptyMessage)
		}
		return nil, fmt.Errorf("message %d: %w", ordinal, err)
	}

	uid := parsed.MessageID
	if uid == "" {
		uid = fmt.Sprintf("local-%d", ordinal)
	}
	subject := parsed.Subject
	if subject == "" {
		subject = NoSubject
	}
	name, addr := mime.SplitSender(parsed.From)
	class := mime.ClassifyLabels(parsed.Labels)

	e := &store.Email{
		UID:          uid,
		Sender:       parsed.From,
		SenderName:   name,
		SenderAddr:   addr,
		SenderDomain: mime.ExtractDomain(addr),
		Recipient:    parsed.To,
		Cc:           parsed.Cc,
		Bcc:          parsed.Bcc,
		ReplyTo:      parsed.ReplyTo,
		Subject:      subject,
		DateStr:      parsed.DateHeader,
		DayOfWeek:    mime.Weekday(time.Time{}),
		SizeBytes:    int64(len(raw)),
		LinkCount:    mime.CountLinks(parsed.BodyText, parsed.BodyHTML),

		HasAttachment:   len(parsed.Attachments) > 0,
		AttachmentCount: len(parsed.Attachments),
		AttachmentTypes: mime.AttachmentTypes(parsed.Attachments),
		AttachmentNames: strings.Join(parsed.Attachments, store.AttachmentNameSep),

		Folder:       class.Folder,
		Category:     class.Category,
		IsStarred:    class.Starred,
		IsRead:       class.Read,
		IsNewsletter: parsed.Newsletter,
		GmailLabels:  parsed.Labels,

		Headers:  parsed.Snapshot,
		Body:     parsed.BodyText,
		HTMLBody: parsed.BodyHTML,
	}
	e.Headers["Message-ID"] = uid

	date := parsed.Date
	if parsed.DateHeader == "" && !fallbackDate.IsZero() {
		date = fallbackDate
		e.DateStr = fallbackDate.Format(time.RFC1123Z)
	}
	if !date.IsZero() {
		e.Timestamp = date.Unix()
		e.DayOfWeek = mime.Weekday(date)
	}
	return e, nil
}
