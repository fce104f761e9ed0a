package importer

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/wesm/mboxvault/internal/mbox"
	"github.com/wesm/mboxvault/internal/store"
	"github.com/wesm/mboxvault/internal/testutil/email"
)

func TestNormalize_MapsAllFields(t *testing.T) {
	raw := email.NewMessage().
		From(`"Alice Example" <alice@Example.COM>`).
		To("bob@example.com").
		Cc("carol@example.com").
		Header("Reply-To", "replies@example.com").
		Subject("Quarterly report").
		Date("Tue, 02 Jan 2024 09:30:00 -0500").
		MessageID("<q1@example.com>").
		Labels("Inbox,Starred,Unread,Category Social").
		Header("List-Unsubscribe", "<mailto:u@example.com>").
		Body("Numbers at http://example.com/q1").
		HTML(`<p><a href="https://example.com/q1">numbers</a></p>`).
		WithAttachment("report.PDF", "application/pdf", []byte("%PDF")).
		WithAttachment("notes.txt", "text/plain", []byte("notes")).
		Bytes()

	got, err := Normalize(raw, 1)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	want := &store.Email{
		UID:             "<q1@example.com>",
		Sender:          "Alice Example <alice@Example.COM>",
		SenderName:      "Alice Example",
		SenderAddr:      "alice@Example.COM",
		SenderDomain:    "example.com",
		Recipient:       "bob@example.com",
		Cc:              "carol@example.com",
		ReplyTo:         "replies@example.com",
		Subject:         "Quarterly report",
		DateStr:         "Tue, 02 Jan 2024 09:30:00 -0500",
		Timestamp:       time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC).Unix(),
		DayOfWeek:       "Tuesday",
		SizeBytes:       int64(len(raw)),
		LinkCount:       2,
		HasAttachment:   true,
		AttachmentCount: 2,
		AttachmentTypes: ".pdf,.txt",
		AttachmentNames: "report.PDF; notes.txt",
		Folder:          "inbox",
		Category:        "social",
		IsStarred:       true,
		IsRead:          false,
		IsNewsletter:    true,
		GmailLabels:     "Inbox,Starred,Unread,Category Social",
	}
	opts := cmpopts.IgnoreFields(store.Email{}, "Headers", "Body", "HTMLBody")
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("Normalize mismatch (-want +got):\n%s", diff)
	}
	if got.Headers["Message-ID"] != "<q1@example.com>" || got.Headers["X-Gmail-Labels"] != got.GmailLabels {
		t.Errorf("Headers = %v", got.Headers)
	}
	if !strings.Contains(got.Body, "http://example.com/q1") || strings.Contains(got.Body, "notes") {
		t.Errorf("Body = %q", got.Body)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	raw := email.NewMessage().NoSubject().Date("sometime last week").Bytes()

	got, err := Normalize(raw, 7)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.UID != "local-7" || got.Headers["Message-ID"] != "local-7" {
		t.Errorf("UID = %q, header = %q", got.UID, got.Headers["Message-ID"])
	}
	if got.Subject != NoSubject {
		t.Errorf("Subject = %q, want %q", got.Subject, NoSubject)
	}
	if got.Timestamp != 0 || got.DayOfWeek != "Unknown" || got.DateStr != "sometime last week" {
		t.Errorf("date = (%d, %q, %q)", got.Timestamp, got.DayOfWeek, got.DateStr)
	}
	if got.Folder != "all" || got.Category != "primary" || !got.IsRead || got.IsStarred {
		t.Errorf("classification = %s/%s read=%v starred=%v", got.Folder, got.Category, got.IsRead, got.IsStarred)
	}
	if got.HasAttachment || got.AttachmentNames != "" || got.AttachmentTypes != "" {
		t.Errorf("attachments = %v %q %q", got.HasAttachment, got.AttachmentNames, got.AttachmentTypes)
	}
}

func TestNormalize_PlainAddressIsNameAndAddress(t *testing.T) {
	raw := email.NewMessage().From("bob@Example.org").Bytes()
	got, err := Normalize(raw, 1)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.SenderName != "bob@Example.org" || got.SenderAddr != "bob@Example.org" || got.SenderDomain != "example.org" {
		t.Errorf("sender = (%q, %q, %q)", got.SenderName, got.SenderAddr, got.SenderDomain)
	}
}

func TestNormalize_InlinePartCountsAsAttachment(t *testing.T) {
	raw := []byte(strings.Join([]string{
		"From: a@example.com",
		"Subject: signed",
		"Message-ID: <sig@example.com>",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="B"`,
		"",
		"--B",
		"Content-Type: text/plain",
		"",
		"hello",
		"--B",
		"Content-Type: text/plain",
		"Content-Disposition: inline",
		"",
		"signature part",
		"--B--",
		"",
	}, "\r\n"))
	got, err := Normalize(raw, 1)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !got.HasAttachment || got.AttachmentCount != 1 || got.AttachmentNames != "attachment" {
		t.Errorf("attachments = %v %d %q, want true 1 \"attachment\"", got.HasAttachment, got.AttachmentCount, got.AttachmentNames)
	}
	if strings.Contains(got.Body, "signature part") {
		t.Errorf("Body = %q, inline part leaked into body", got.Body)
	}
}

func TestNormalize_Empty(t *testing.T) {
	_, err := Normalize([]byte("  \n"), 3)
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
}

func TestNormalizeMessage_SeparatorDateFallback(t *testing.T) {
	sep := time.Date(2023, 6, 4, 8, 15, 0, 0, time.UTC)
	msg := &mbox.Message{Index: 4, Date: sep, Raw: email.NewMessage().Date("").Bytes()}

	got, err := NormalizeMessage(msg)
	if err != nil {
		t.Fatalf("NormalizeMessage: %v", err)
	}
	if got.Timestamp != sep.Unix() || got.DayOfWeek != "Sunday" {
		t.Errorf("date = (%d, %q), want (%d, Sunday)", got.Timestamp, got.DayOfWeek, sep.Unix())
	}
	if got.DateStr != "Sun, 04 Jun 2023 08:15:00 +0000" {
		t.Errorf("DateStr = %q", got.DateStr)
	}

	// An unparsable Date header is kept as written; the separator is only a
	// stand-in for a missing one.
	msg.Raw = email.NewMessage().Date("garbage").Bytes()
	got, err = NormalizeMessage(msg)
	if err != nil {
		t.Fatalf("NormalizeMessage: %v", err)
	}
	if got.Timestamp != 0 || got.DateStr != "garbage" {
		t.Errorf("date = (%d, %q), want (0, garbage)", got.Timestamp, got.DateStr)
	}
	if got.UID != "local-5" {
		t.Errorf("UID = %q, want local-5", got.UID)
	}
}

func TestProperty_NormalizeSenderRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	nonEmpty := func(s string) bool { return s != "" }

	properties.Property("stored sender splits back into the name and address written", prop.ForAll(
		func(name, local, host string) bool {
			addr := local + "@" + host + ".org"
			raw := email.NewMessage().From(name + " <" + addr + ">").Bytes()
			e, err := Normalize(raw, 1)
			if err != nil {
				return false
			}
			return e.SenderName == name && e.SenderAddr == addr && e.SenderDomain == strings.ToLower(host)+".org"
		},
		gen.AlphaString().SuchThat(nonEmpty),
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.Property("a record is always produced for a non-empty body", prop.ForAll(
		func(body string, ordinal int) bool {
			e, err := Normalize(email.NewMessage().MessageID("").Body(body).Bytes(), ordinal)
			if err != nil {
				return false
			}
			return e.UID != "" && e.Subject != "" && strings.Contains(e.Body, body)
		},
		gen.AlphaString().SuchThat(nonEmpty),
		gen.IntRange(1, 1_000_000),
	))

	properties.TestingRun(t)
}
