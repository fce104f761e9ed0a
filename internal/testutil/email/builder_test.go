package email

import (
	"strings"
	"testing"
)

func TestPlainMessage(t *testing.T) {
	got := string(NewMessage().Body("Hello world.").MessageID("<a@b>").Bytes())

	want := strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: Test Message",
		"Date: Mon, 01 Jan 2024 12:00:00 +0000",
		"Message-ID: <a@b>",
		`Content-Type: text/plain; charset="utf-8"`,
		"",
		"Hello world.",
		"",
	}, "\n")

	if got != want {
		t.Errorf("plain message mismatch.\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestNoSubject(t *testing.T) {
	got := string(NewMessage().NoSubject().Bytes())
	if strings.Contains(got, "Subject:") {
		t.Error("expected no Subject header, but found one")
	}
}

func TestAttachmentAndAlternative(t *testing.T) {
	got := string(NewMessage().
		HTML("<p>hi</p>").
		Boundary("B").
		WithAttachment("a.pdf", "application/pdf", []byte("x")).
		Bytes())

	for _, want := range []string{
		`Content-Type: multipart/mixed; boundary="B"`,
		`Content-Type: multipart/alternative; boundary="B-alt"`,
		`Content-Disposition: attachment; filename="a.pdf"`,
		"<p>hi</p>",
		"--B--",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("message missing %q:\n%s", want, got)
		}
	}
}

func TestMboxEscapesFromLines(t *testing.T) {
	msg := NewMessage().Body("From the top\n>From quoted").Bytes()
	got := string(Mbox(msg, msg))

	if n := strings.Count(got, DefaultSeparator+"\n"); n != 2 {
		t.Errorf("separator count = %d, want 2", n)
	}
	if !strings.Contains(got, "\n>From the top\n") {
		t.Errorf("body From line not escaped:\n%s", got)
	}
	if !strings.Contains(got, "\n>>From quoted\n") {
		t.Errorf("quoted From line not escaped:\n%s", got)
	}
}
