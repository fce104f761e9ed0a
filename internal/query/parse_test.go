package query

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/wesm/mboxvault/internal/testutil/ptr"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want Filter
	}{
		{
			name: "empty",
			in:   map[string]any{},
			want: Filter{Sort: SortDateDesc},
		},
		{
			name: "folder is lowercased",
			in:   map[string]any{"folder": "Sent"},
			want: Filter{Scope: Scope{Mode: ScopeFolder, Value: "sent"}, Sort: SortDateDesc},
		},
		{
			name: "folder all",
			in:   map[string]any{"folder": "ALL"},
			want: Filter{Sort: SortDateDesc},
		},
		{
			name: "starred view",
			in:   map[string]any{"folder": "starred"},
			want: Filter{Scope: Scope{Mode: ScopeStarred}, Sort: SortDateDesc},
		},
		{
			name: "category wins over folder",
			in:   map[string]any{"folder": "sent", "category": "Social"},
			want: Filter{Scope: Scope{Mode: ScopeCategory, Value: "social"}, Sort: SortDateDesc},
		},
		{
			name: "text and people",
			in: map[string]any{
				"q": " quarterly report ", "includes": "budget", "excludes": "draft",
				"sender": "alice", "recipient": "bob", "domain": "Example.COM", "exclude_domain": "spam.test",
			},
			want: Filter{
				Text:   Text{Query: "quarterly report", Include: "budget", Exclude: "draft"},
				People: People{Sender: "alice", Recipient: "bob", Domain: "Example.COM", ExcludeDomain: "spam.test"},
				Sort:   SortDateDesc,
			},
		},
		{
			name: "tri-states",
			in: map[string]any{
				"has_attachment": "yes", "is_read": "unread", "is_newsletter": false,
				"has_links": "true", "include_deleted": true,
			},
			want: Filter{
				Attributes: Attributes{
					HasAttachment: ptr.Bool(true),
					Read:          ptr.Bool(false),
					Newsletter:    ptr.Bool(false),
					HasLinks:      true,
				},
				Sort:           SortDateDesc,
				IncludeDeleted: true,
			},
		},
		{
			name: "any and garbage leave tri-states open",
			in:   map[string]any{"has_attachment": "any", "is_read": "maybe", "has_links": "no"},
			want: Filter{Sort: SortDateDesc},
		},
		{
			name: "attribute text",
			in: map[string]any{
				"att_type": ".pdf", "att_name": "invoice", "day_of_week": "Monday",
				"subject": "hello", "subject_length": "LONG",
			},
			want: Filter{
				Attributes: Attributes{
					AttachmentType: ".pdf",
					AttachmentName: "invoice",
					DayOfWeek:      "Monday",
					Subject:        "hello",
					SubjectLength:  SubjectLong,
				},
				Sort: SortDateDesc,
			},
		},
		{
			name: "bad subject length",
			in:   map[string]any{"subject_length": "medium"},
			want: Filter{Sort: SortDateDesc},
		},
		{
			name: "calendar dates cover whole days",
			in:   map[string]any{"date_start": "2024-01-01", "date_end": "2024-01-01"},
			want: Filter{
				Ranges: Ranges{DateFrom: ptr.Int64(1704067200), DateTo: ptr.Int64(1704153599)},
				Sort:   SortDateDesc,
			},
		},
		{
			name: "epoch and RFC3339 dates",
			in:   map[string]any{"date_start": float64(1700000000), "date_end": "2024-03-01T12:00:00Z"},
			want: Filter{
				Ranges: Ranges{DateFrom: ptr.Int64(1700000000), DateTo: ptr.Int64(1709294400)},
				Sort:   SortDateDesc,
			},
		},
		{
			name: "unparsable date dropped",
			in:   map[string]any{"date_start": "last tuesday"},
			want: Filter{Sort: SortDateDesc},
		},
		{
			name: "sizes",
			in:   map[string]any{"size_min": json.Number("1024"), "size_max": "2048", "limit": 50},
			want: Filter{
				Ranges: Ranges{SizeMin: ptr.Int64(1024), SizeMax: ptr.Int64(2048)},
				Sort:   SortDateDesc,
				Limit:  50,
			},
		},
		{
			name: "negative size dropped",
			in:   map[string]any{"size_min": -5},
			want: Filter{Sort: SortDateDesc},
		},
		{
			name: "non-finite and oversized sizes dropped",
			in:   map[string]any{"size_min": "Inf", "size_max": "1e30", "limit": "NaN"},
			want: Filter{Sort: SortDateDesc},
		},
		{
			name: "fractional bounds round inward",
			in:   map[string]any{"size_min": "100.5", "size_max": 200.7, "limit": "10.9"},
			want: Filter{
				Ranges: Ranges{SizeMin: ptr.Int64(101), SizeMax: ptr.Int64(200)},
				Sort:   SortDateDesc,
				Limit:  10,
			},
		},
		{
			name: "largest representable size kept",
			in:   map[string]any{"size_max": "9007199254740992"},
			want: Filter{Ranges: Ranges{SizeMax: ptr.Int64(1 << 53)}, Sort: SortDateDesc},
		},
		{
			name: "fractional epoch dates round inward",
			in:   map[string]any{"date_start": "1700000000.5", "date_end": "1700000100.5"},
			want: Filter{
				Ranges: Ranges{DateFrom: ptr.Int64(1700000001), DateTo: ptr.Int64(1700000100)},
				Sort:   SortDateDesc,
			},
		},
		{
			name: "infinite date dropped",
			in:   map[string]any{"date_end": "-Inf"},
			want: Filter{Sort: SortDateDesc},
		},
		{
			name: "sort is case-insensitive",
			in:   map[string]any{"sort": "Size_Desc"},
			want: Filter{Sort: SortSizeDesc},
		},
		{
			name: "unknown sort falls back",
			in:   map[string]any{"sort": "random"},
			want: Filter{Sort: SortDateDesc},
		},
		{
			name: "limit above cap ignored",
			in:   map[string]any{"limit": 5000},
			want: Filter{Sort: SortDateDesc},
		},
		{
			name: "unknown keys and unsupported types",
			in:   map[string]any{"colour": "blue", "sender": []string{"x"}},
			want: Filter{Sort: SortDateDesc},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFilter(tt.in)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("ParseFilter mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseFilter_DecodedJSON(t *testing.T) {
	var m map[string]any
	body := `{"folder":"inbox","is_read":"no","size_max":500000,"date_end":"2024-02-29","sort":"date_asc"}`
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatal(err)
	}

	want := Filter{
		Scope:      Scope{Mode: ScopeFolder, Value: "inbox"},
		Attributes: Attributes{Read: ptr.Bool(false)},
		Ranges:     Ranges{DateTo: ptr.Int64(1709251199), SizeMax: ptr.Int64(500000)},
		Sort:       SortDateAsc,
	}
	if diff := cmp.Diff(want, ParseFilter(m)); diff != "" {
		t.Errorf("ParseFilter mismatch (-want +got):\n%s", diff)
	}
}
