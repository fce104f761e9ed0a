package search

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func utcDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func boolPtr(v bool) *bool           { return &v }
func i64Ptr(v int64) *int64          { return &v }
func timePtr(v time.Time) *time.Time { return &v }

// assertQueryEqual compares two Query structs, treating nil slices and empty
// slices as equivalent.
func assertQueryEqual(t *testing.T, got, want Query) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Query mismatch (-want +got):\n%s", diff)
	}
}

func TestParse(t *testing.T) {
	now := utcDate(2024, 6, 15)
	p := &Parser{Now: func() time.Time { return now }}

	tests := []struct {
		name  string
		query string
		want  Query
	}{
		{
			name:  "bare text",
			query: "hello world",
			want:  Query{TextTerms: []string{"hello", "world"}},
		},
		{
			name:  "quoted phrase",
			query: `"quarterly report" budget`,
			want:  Query{TextTerms: []string{"quarterly report", "budget"}},
		},
		{
			name:  "people",
			query: "from:alice to:bob@example.com domain:Example.COM -domain:spam.test",
			want:  Query{From: "alice", To: "bob@example.com", Domain: "example.com", NotDomain: "spam.test"},
		},
		{
			name:  "last value wins",
			query: "from:alice from:bob",
			want:  Query{From: "bob"},
		},
		{
			name:  "quoted operator value",
			query: `subject:"weekly sync" notes`,
			want:  Query{Subject: "weekly sync", TextTerms: []string{"notes"}},
		},
		{
			name:  "scope",
			query: "in:Sent category:social",
			want:  Query{Folder: "sent", Category: "social"},
		},
		{
			name:  "trash scope",
			query: "in:trash",
			want:  Query{Folder: "bin", Deleted: true},
		},
		{
			name:  "flags",
			query: "is:starred is:unread -is:newsletter has:links",
			want:  Query{Starred: true, Read: boolPtr(false), Newsletter: boolPtr(false), HasLinks: true},
		},
		{
			name:  "attachments",
			query: "-has:attachment filetype:PDF filename:invoice",
			want:  Query{HasAttachment: boolPtr(false), FileType: ".pdf", Filename: "invoice"},
		},
		{
			name:  "weekday",
			query: "on:fri",
			want:  Query{Weekday: "Friday"},
		},
		{
			name:  "absolute dates",
			query: "after:2024-01-01 before:2024/02/01",
			want:  Query{AfterDate: timePtr(utcDate(2024, 1, 1)), BeforeDate: timePtr(utcDate(2024, 2, 1))},
		},
		{
			name:  "relative dates",
			query: "newer_than:2w older_than:1y",
			want:  Query{AfterDate: timePtr(utcDate(2024, 6, 1)), BeforeDate: timePtr(utcDate(2023, 6, 15))},
		},
		{
			name:  "sizes",
			query: "larger:5M smaller:100KB",
			want:  Query{LargerThan: i64Ptr(5 << 20), SmallerThan: i64Ptr(100 << 10)},
		},
		{
			name:  "exclusions",
			query: "invoice -draft",
			want:  Query{TextTerms: []string{"invoice"}, ExcludeTerms: []string{"draft"}},
		},
		{
			name:  "unknown operator is text",
			query: "foo:bar",
			want:  Query{TextTerms: []string{"foo:bar"}},
		},
		{
			name:  "bad value falls back to text",
			query: "before:yesterday larger:huge on:someday",
			want:  Query{TextTerms: []string{"before:yesterday", "larger:huge", "on:someday"}},
		},
		{
			name:  "empty",
			query: "   ",
			want:  Query{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertQueryEqual(t, *p.Parse(tt.query), tt.want)
		})
	}
}

func TestQuery_IsEmpty(t *testing.T) {
	if !Parse("").IsEmpty() {
		t.Error("empty string should parse to an empty query")
	}
	for _, s := range []string{"x", "-x", "is:starred", "larger:1", "in:inbox"} {
		if Parse(s).IsEmpty() {
			t.Errorf("Parse(%q).IsEmpty() = true", s)
		}
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want *int64
	}{
		{"1024", i64Ptr(1024)},
		{"1.5k", i64Ptr(1536)},
		{"2GB", i64Ptr(2 << 30)},
		{"-5", nil},
		{"M", nil},
		{"lots", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, parseSize(tt.in)); diff != "" {
			t.Errorf("parseSize(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
