package query

import (
	"context"
	"testing"
	"time"

	"github.com/wesm/mboxvault/internal/testutil"
	"github.com/wesm/mboxvault/internal/testutil/ptr"
	"github.com/wesm/mboxvault/internal/testutil/storetest"
)

type engineFixture struct {
	*storetest.Fixture
	eng *SQLiteEngine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := storetest.New(t)
	return &engineFixture{Fixture: f, eng: NewSQLiteEngine(f.Store, nil)}
}

func (f *engineFixture) ids(flt Filter) []int64 {
	f.T.Helper()
	got, err := f.eng.Search(context.Background(), flt)
	testutil.MustNoErr(f.T, err, "Search")
	return idsOf(got)
}

func idsOf(emails []Email) []int64 {
	out := make([]int64, len(emails))
	for i, e := range emails {
		out[i] = e.ID
	}
	return out
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC)
}

func TestSearch_ScopeAndOrder(t *testing.T) {
	f := newEngineFixture(t)
	ids := f.Insert(
		testutil.NewEmail().At(day(1)).Build(),
		testutil.NewEmail().At(day(3)).Folder("sent").Build(),
		testutil.NewEmail().At(day(2)).Category("social").Starred().Build(),
		testutil.NewEmail().At(day(4)).Folder("archive").Category("social").Build(),
	)

	testutil.AssertEqualSlices(t, f.ids(Filter{}), ids[3], ids[1], ids[2], ids[0])
	testutil.AssertEqualSlices(t, f.ids(Filter{Sort: SortDateAsc}), ids[0], ids[2], ids[1], ids[3])
	testutil.AssertEqualSlices(t, f.ids(Filter{Scope: Scope{Mode: ScopeFolder, Value: "sent"}}), ids[1])
	testutil.AssertEqualSlices(t, f.ids(Filter{Scope: Scope{Mode: ScopeStarred}}), ids[2])
	// Category views only look at the inbox.
	testutil.AssertEqualSlices(t, f.ids(Filter{Scope: Scope{Mode: ScopeCategory, Value: "social"}}), ids[2])
}

func TestSearch_TiesBreakByID(t *testing.T) {
	f := newEngineFixture(t)
	ids := f.Insert(
		testutil.NewEmail().Build(),
		testutil.NewEmail().Build(),
		testutil.NewEmail().Build(),
	)

	testutil.AssertEqualSlices(t, f.ids(Filter{}), ids[2], ids[1], ids[0])
	testutil.AssertEqualSlices(t, f.ids(Filter{Sort: SortDateAsc}), ids[0], ids[1], ids[2])
}

func TestSearch_SoftDeleted(t *testing.T) {
	f := newEngineFixture(t)
	ids := f.Insert(
		testutil.NewEmail().Build(),
		testutil.NewEmail().Folder("bin").Deleted().Build(),
	)

	testutil.AssertEqualSlices(t, f.ids(Filter{}), ids[0])
	testutil.AssertEqualSlices(t, f.ids(Filter{IncludeDeleted: true}), ids[1], ids[0])
	// A folder clause never brings deleted rows back on its own.
	testutil.AssertEqualSlices(t, f.ids(Filter{Scope: Scope{Mode: ScopeFolder, Value: "bin"}}))
	testutil.AssertEqualSlices(t, f.ids(ParseFilter(map[string]any{"folder": "bin"})))
	testutil.AssertEqualSlices(t, f.ids(ParseFilter(map[string]any{"folder": "bin", "include_deleted": true})), ids[1])
	testutil.AssertEqualSlices(t, f.ids(ParseSearch("in:bin")), ids[1])
}

func TestSearch_SizeBoundsInclusive(t *testing.T) {
	f := newEngineFixture(t)
	ids := f.Insert(
		testutil.NewEmail().Size(999).Build(),
		testutil.NewEmail().Size(1000).Build(),
		testutil.NewEmail().Size(1001).Build(),
	)

	testutil.AssertEqualSlices(t, f.ids(Filter{Ranges: Ranges{SizeMin: ptr.Int64(1000)}, Sort: SortDateAsc}), ids[1], ids[2])
	testutil.AssertEqualSlices(t, f.ids(Filter{Ranges: Ranges{SizeMax: ptr.Int64(1000)}, Sort: SortDateAsc}), ids[0], ids[1])
	testutil.AssertEqualSlices(t, f.ids(Filter{Ranges: Ranges{SizeMin: ptr.Int64(1000), SizeMax: ptr.Int64(1000)}}), ids[1])
	testutil.AssertEqualSlices(t, f.ids(Filter{Sort: SortSizeDesc}), ids[2], ids[1], ids[0])
}

func TestSearch_DateRangeExcludesUndated(t *testing.T) {
	f := newEngineFixture(t)
	ids := f.Insert(
		testutil.NewEmail().At(day(1)).Build(),
		testutil.NewEmail().At(day(10)).Build(),
		testutil.NewEmail().NoDate().Build(),
	)

	testutil.AssertEqualSlices(t, f.ids(Filter{Ranges: Ranges{DateTo: ptr.Unix(2024, 3, 5)}}), ids[0])
	testutil.AssertEqualSlices(t, f.ids(Filter{Ranges: Ranges{DateFrom: ptr.Unix(2024, 3, 5)}}), ids[1])
	testutil.AssertEqualSlices(t, f.ids(Filter{Ranges: Ranges{DateFrom: ptr.Int64(0)}, Sort: SortDateAsc}), ids[0], ids[1])
}

func TestSearch_TextQuery(t *testing.T) {
	f := newEngineFixture(t)
	ids := f.Insert(
		testutil.NewEmail().Subject("Pelican migration").Body("the birds arrive in spring").Build(),
		testutil.NewEmail().Subject("Migration plan").Body("database cutover").Build(),
		testutil.NewEmail().Subject("Lunch").Tags("pelican").Build(),
	)

	for _, fts := range []bool{true, false} {
		if fts && !f.Store.FTS5Available() {
			continue
		}
		got, err := f.eng.search(context.Background(), Filter{Text: Text{Query: "migration pelican"}}, fts)
		testutil.MustNoErr(t, err, "search")
		testutil.AssertEqualSlices(t, idsOf(got), ids[0])

		got, err = f.eng.search(context.Background(), Filter{Text: Text{Query: "pelican"}, Sort: SortDateAsc}, fts)
		testutil.MustNoErr(t, err, "search")
		testutil.AssertEqualSlices(t, idsOf(got), ids[0], ids[2])
	}
}

func TestSearch_RecordsHistory(t *testing.T) {
	f := newEngineFixture(t)
	f.Insert(testutil.NewEmail().Build())
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	f.eng.now = func() time.Time { return at }

	f.ids(Filter{Text: Text{Query: "  invoices  "}})
	f.ids(Filter{Text: Text{Include: "not recorded"}})

	entries, err := f.Store.ListSearchHistory(context.Background(), 0)
	testutil.MustNoErr(t, err, "ListSearchHistory")
	if len(entries) != 1 || entries[0].Query != "invoices" || !entries[0].LastUsed.Equal(at) {
		t.Errorf("history = %+v, want one entry for invoices at %v", entries, at)
	}
}

func TestSearch_TextQueryDuringImport(t *testing.T) {
	f := newEngineFixture(t)
	ids := f.Insert(testutil.NewEmail().Subject("invoice march").Build())

	ctx := context.Background()
	tx, err := f.Store.BeginImport(ctx)
	testutil.MustNoErr(t, err, "BeginImport")
	defer func() { _ = tx.Rollback() }()
	_, err = tx.InsertEmail(ctx, testutil.NewEmail().Subject("invoice april").Build())
	testutil.MustNoErr(t, err, "InsertEmail")

	type result struct {
		emails []Email
		err    error
	}
	done := make(chan result, 1)
	go func() {
		got, err := f.eng.Search(ctx, Filter{Text: Text{Query: "invoice"}})
		done <- result{got, err}
	}()

	select {
	case r := <-done:
		testutil.MustNoErr(t, r.err, "Search")
		// Only the committed record is visible.
		testutil.AssertEqualSlices(t, idsOf(r.emails), ids[0])
	case <-time.After(2 * time.Second):
		t.Fatal("Search with a text query waited on the open import")
	}
}

func TestSearch_People(t *testing.T) {
	f := newEngineFixture(t)
	cc := testutil.NewEmail().From("Carol", "carol@corp.example", "corp.example").Recipient("dave@home.test").Build()
	cc.Cc = "bob@corp.example"
	ids := f.Insert(
		testutil.NewEmail().From("Alice", "alice@Example.org", "example.org").Recipient("bob@corp.example").Build(),
		cc,
		testutil.NewEmail().From("Eve", "eve@ads.test", "ads.test").Build(),
	)

	testutil.AssertEqualSlices(t, f.ids(Filter{People: People{Sender: "alice"}}), ids[0])
	testutil.AssertEqualSlices(t, f.ids(Filter{People: People{Recipient: "bob@"}}), ids[1], ids[0])
	testutil.AssertEqualSlices(t, f.ids(Filter{People: People{Domain: "CORP"}}), ids[1])
	testutil.AssertEqualSlices(t, f.ids(Filter{People: People{ExcludeDomain: "ads.test"}, Sort: SortDateAsc}), ids[0], ids[1])
}

func TestSearch_Attributes(t *testing.T) {
	f := newEngineFixture(t)
	ids := f.Insert(
		testutil.NewEmail().Subject("Q3 invoice attached here").Attachments(".pdf", "invoice-q3.pdf", 1).Links(2).Build(),
		testutil.NewEmail().Subject("Weekly digest from the team").Newsletter().Unread().At(day(5)).Build(),
		testutil.NewEmail().Subject("hi").Attachments(".jpg; .png", "a.jpg; b.png", 2).Build(),
	)

	tests := []struct {
		name string
		attr Attributes
		want []int64
	}{
		{"has attachment", Attributes{HasAttachment: ptr.Bool(true)}, []int64{ids[2], ids[0]}},
		{"no attachment", Attributes{HasAttachment: ptr.Bool(false)}, []int64{ids[1]}},
		{"unread", Attributes{Read: ptr.Bool(false)}, []int64{ids[1]}},
		{"newsletter", Attributes{Newsletter: ptr.Bool(true)}, []int64{ids[1]}},
		{"attachment type", Attributes{AttachmentType: ".PNG"}, []int64{ids[2]}},
		{"attachment name", Attributes{AttachmentName: "invoice"}, []int64{ids[0]}},
		{"weekday", Attributes{DayOfWeek: "Tuesday"}, []int64{ids[1]}},
		{"subject", Attributes{Subject: "digest"}, []int64{ids[1]}},
		{"links", Attributes{HasLinks: true}, []int64{ids[0]}},
		{"short subject", Attributes{SubjectLength: SubjectShort}, []int64{ids[2]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertEqualSlices(t, f.ids(Filter{Attributes: tt.attr}), tt.want...)
		})
	}
}

func TestSearch_IncludeExclude(t *testing.T) {
	f := newEngineFixture(t)
	ids := f.Insert(
		testutil.NewEmail().Subject("Budget 2024").Body("numbers inside").Build(),
		testutil.NewEmail().Subject("Notes").Body("budget draft").Build(),
		testutil.NewEmail().Subject("100% off").Body("sale").Build(),
	)

	testutil.AssertEqualSlices(t, f.ids(Filter{Text: Text{Include: "budget"}}), ids[1], ids[0])
	testutil.AssertEqualSlices(t, f.ids(Filter{Text: Text{Include: "budget", Exclude: "draft"}}), ids[0])
	// % is matched literally.
	testutil.AssertEqualSlices(t, f.ids(Filter{Text: Text{Include: "0%"}}), ids[2])
}

func TestSearch_SortOrders(t *testing.T) {
	f := newEngineFixture(t)
	ids := f.Insert(
		testutil.NewEmail().Subject("banana").From("Zed", "zed@example.com", "example.com").Links(1).Attachments(".pdf", "a.pdf", 3).Build(),
		testutil.NewEmail().Subject("Apple").From("amy", "amy@example.com", "example.com").Links(5).Build(),
		testutil.NewEmail().Subject("cherry").From("Bob", "bob@example.com", "example.com").Attachments(".doc", "b.doc", 1).Build(),
	)

	testutil.AssertEqualSlices(t, f.ids(Filter{Sort: SortSubjectAsc}), ids[1], ids[0], ids[2])
	testutil.AssertEqualSlices(t, f.ids(Filter{Sort: SortSenderAsc}), ids[1], ids[2], ids[0])
	testutil.AssertEqualSlices(t, f.ids(Filter{Sort: SortLinksDesc}), ids[1], ids[0], ids[2])
	testutil.AssertEqualSlices(t, f.ids(Filter{Sort: SortAttachDesc}), ids[0], ids[2], ids[1])
}

func TestSearch_Limit(t *testing.T) {
	f := newEngineFixture(t)
	var emails []*Email
	for i := 0; i < 5; i++ {
		emails = append(emails, testutil.NewEmail().Build())
	}
	ids := f.Insert(emails...)

	testutil.AssertEqualSlices(t, f.ids(Filter{Limit: 2}), ids[4], ids[3])

	n, err := f.eng.Count(context.Background(), Filter{Limit: 2})
	testutil.MustNoErr(t, err, "Count")
	if n != 5 {
		t.Errorf("Count = %d, want 5", n)
	}
}

func TestSearch_NoMatches(t *testing.T) {
	f := newEngineFixture(t)
	f.Insert(testutil.NewEmail().Build())

	got, err := f.eng.Search(context.Background(), Filter{Scope: Scope{Mode: ScopeFolder, Value: "nowhere"}})
	testutil.MustNoErr(t, err, "Search")
	if len(got) != 0 {
		t.Errorf("got %d results, want 0", len(got))
	}
}

func TestGetEmail(t *testing.T) {
	f := newEngineFixture(t)
	id := f.InsertOne(testutil.NewEmail().Subject("Found me").Build())

	got, err := f.eng.GetEmail(context.Background(), id)
	testutil.MustNoErr(t, err, "GetEmail")
	if got == nil || got.Subject != "Found me" {
		t.Fatalf("GetEmail(%d) = %+v", id, got)
	}

	missing, err := f.eng.GetEmail(context.Background(), id+100)
	testutil.MustNoErr(t, err, "GetEmail missing")
	if missing != nil {
		t.Errorf("GetEmail(missing) = %+v, want nil", missing)
	}
}
