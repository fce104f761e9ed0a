package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wesm/mboxvault/internal/store"
)

var uidCounter atomic.Int64

// EmailBuilder provides a fluent API for constructing store.Email in tests.
type EmailBuilder struct {
	e store.Email
}

// NewEmail returns a builder for an inbox record with a unique UID, dated
// 2024-01-01 UTC.
func NewEmail() *EmailBuilder {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &EmailBuilder{e: store.Email{
		UID:          fmt.Sprintf("<test-%d@example.com>", uidCounter.Add(1)),
		Sender:       "Sender <sender@example.com>",
		SenderName:   "Sender",
		SenderAddr:   "sender@example.com",
		SenderDomain: "example.com",
		Recipient:    "recipient@example.com",
		Subject:      "Test Subject",
		DateStr:      ts.Format(time.RFC1123Z),
		Timestamp:    ts.Unix(),
		DayOfWeek:    ts.Weekday().String(),
		SizeBytes:    1000,
		Folder:       "inbox",
		Category:     "primary",
		IsRead:       true,
		Headers:      map[string]string{},
		Body:         "body",
	}}
}

func (b *EmailBuilder) UID(v string) *EmailBuilder     { b.e.UID = v; return b }
func (b *EmailBuilder) Subject(v string) *EmailBuilder { b.e.Subject = v; return b }
func (b *EmailBuilder) Body(v string) *EmailBuilder    { b.e.Body = v; return b }
func (b *EmailBuilder) HTML(v string) *EmailBuilder    { b.e.HTMLBody = v; return b }
func (b *EmailBuilder) Folder(v string) *EmailBuilder  { b.e.Folder = v; return b }
func (b *EmailBuilder) Category(v string) *EmailBuilder {
	b.e.Category = v
	return b
}
func (b *EmailBuilder) Recipient(v string) *EmailBuilder { b.e.Recipient = v; return b }
func (b *EmailBuilder) Size(n int64) *EmailBuilder       { b.e.SizeBytes = n; return b }
func (b *EmailBuilder) Links(n int) *EmailBuilder        { b.e.LinkCount = n; return b }
func (b *EmailBuilder) Tags(v string) *EmailBuilder      { b.e.Tags = v; return b }
func (b *EmailBuilder) Starred() *EmailBuilder           { b.e.IsStarred = true; return b }
func (b *EmailBuilder) Unread() *EmailBuilder            { b.e.IsRead = false; return b }
func (b *EmailBuilder) Newsletter() *EmailBuilder        { b.e.IsNewsletter = true; return b }
func (b *EmailBuilder) Deleted() *EmailBuilder           { b.e.IsDeleted = true; return b }

// From sets the sender fields from a display name and address.
func (b *EmailBuilder) From(name, addr, domain string) *EmailBuilder {
	b.e.SenderName = name
	b.e.SenderAddr = addr
	b.e.SenderDomain = domain
	if name != "" && name != addr {
		b.e.Sender = name + " <" + addr + ">"
	} else {
		b.e.Sender = addr
	}
	return b
}

// At sets the timestamp, date string and weekday from t.
func (b *EmailBuilder) At(t time.Time) *EmailBuilder {
	b.e.Timestamp = t.Unix()
	b.e.DateStr = t.Format(time.RFC1123Z)
	b.e.DayOfWeek = t.Weekday().String()
	return b
}

// NoDate marks the record's date as unparsable.
func (b *EmailBuilder) NoDate() *EmailBuilder {
	b.e.Timestamp = 0
	b.e.DateStr = ""
	b.e.DayOfWeek = "Unknown"
	return b
}

// Attachments records attachment metadata.
func (b *EmailBuilder) Attachments(types, names string, count int) *EmailBuilder {
	b.e.HasAttachment = count > 0
	b.e.AttachmentCount = count
	b.e.AttachmentTypes = types
	b.e.AttachmentNames = names
	return b
}

// Build returns a copy of the record.
func (b *EmailBuilder) Build() *store.Email {
	e := b.e
	return &e
}
