package query

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/wesm/mboxvault/internal/testutil"
	"github.com/wesm/mboxvault/internal/testutil/ptr"
)

func clauseSQL(p Plan) []string {
	out := make([]string, len(p.Where))
	for i, c := range p.Where {
		out[i] = c.SQL
	}
	return out
}

func TestCompile_EmptyFilter(t *testing.T) {
	p := Compile(Filter{}, true)

	testutil.AssertStrings(t, clauseSQL(p), "e.is_deleted = 0")
	if p.OrderBy != orderBy[SortDateDesc] {
		t.Errorf("OrderBy = %q, want %q", p.OrderBy, orderBy[SortDateDesc])
	}
	if p.Limit != MaxResults {
		t.Errorf("Limit = %d, want %d", p.Limit, MaxResults)
	}
}

func TestCompile_Scope(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		del   bool
		want  []string
	}{
		{"all", Scope{}, false, []string{"e.is_deleted = 0"}},
		{"folder", Scope{Mode: ScopeFolder, Value: "sent"}, false, []string{"e.folder = ?", "e.is_deleted = 0"}},
		{"bin hides deleted", Scope{Mode: ScopeFolder, Value: "bin"}, false, []string{"e.folder = ?", "e.is_deleted = 0"}},
		{"bin with deleted", Scope{Mode: ScopeFolder, Value: "bin"}, true, []string{"e.folder = ?"}},
		{"starred", Scope{Mode: ScopeStarred}, false, []string{"e.is_starred = 1", "e.is_deleted = 0"}},
		{"category", Scope{Mode: ScopeCategory, Value: "promotions"}, false,
			[]string{"e.folder = 'inbox'", "e.category = ?", "e.is_deleted = 0"}},
		{"include deleted", Scope{}, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Compile(Filter{Scope: tt.scope, IncludeDeleted: tt.del}, true)
			if diff := cmp.Diff(tt.want, clauseSQL(p), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("clauses mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompile_ValuesNeverReachSQL(t *testing.T) {
	evil := `x'; DROP TABLE emails; --`
	f := Filter{
		Scope:  Scope{Mode: ScopeFolder, Value: evil},
		Text:   Text{Query: evil, Include: evil, Exclude: evil},
		People: People{Sender: evil, Recipient: evil, Domain: evil, ExcludeDomain: evil},
		Attributes: Attributes{
			AttachmentType: evil,
			AttachmentName: evil,
			DayOfWeek:      evil,
			Subject:        evil,
		},
		Sort: SortOrder(evil),
	}
	for _, fts := range []bool{true, false} {
		p := Compile(f, fts)
		where, args := p.WhereSQL()
		if strings.Contains(where, "DROP") || strings.Contains(p.OrderBy, "DROP") {
			t.Errorf("fts=%v: value leaked into SQL: %s ORDER BY %s", fts, where, p.OrderBy)
		}
		if got, want := len(args), strings.Count(where, "?"); got != want {
			t.Errorf("fts=%v: %d args for %d placeholders", fts, got, want)
		}
		if p.OrderBy != orderBy[DefaultSortOrder] {
			t.Errorf("fts=%v: OrderBy = %q, want default", fts, p.OrderBy)
		}
	}
}

func TestCompile_TextQuery(t *testing.T) {
	f := Filter{Text: Text{Query: `foo "bar --`}}

	p := Compile(f, true)
	_, args := p.WhereSQL()
	testutil.AssertContainsAll(t, p.Where[1].SQL, "emails_fts MATCH ?")
	if got, want := args[0], `"foo" """bar"`; got != want {
		t.Errorf("match expr = %q, want %q", got, want)
	}

	p = Compile(f, false)
	if len(p.Where) != 3 {
		t.Fatalf("fallback clauses = %d, want one per term plus deleted", len(p.Where))
	}
	for _, c := range p.Where[1:] {
		if len(c.Args) != len(ftsFields) {
			t.Errorf("fallback args = %d, want %d", len(c.Args), len(ftsFields))
		}
	}
	if got := p.Where[2].Args[0]; got != `%"bar%` {
		t.Errorf("fallback pattern = %v", got)
	}
}

func TestCompile_BlankQueryAddsNothing(t *testing.T) {
	p := Compile(Filter{Text: Text{Query: "  -- ** "}}, true)
	testutil.AssertStrings(t, clauseSQL(p), "e.is_deleted = 0")
}

func TestCompile_Ranges(t *testing.T) {
	p := Compile(Filter{Ranges: Ranges{DateTo: ptr.Int64(10), SizeMin: ptr.Int64(5)}}, true)
	testutil.AssertStrings(t, clauseSQL(p),
		"e.is_deleted = 0", "e.timestamp > 0", "e.timestamp <= ?", "e.size_bytes >= ?")
}

func TestCompile_SubjectLength(t *testing.T) {
	p := Compile(Filter{Attributes: Attributes{SubjectLength: SubjectShort}}, true)
	testutil.AssertStrings(t, clauseSQL(p), "e.is_deleted = 0", "length(e.subject) < 20")
	p = Compile(Filter{Attributes: Attributes{SubjectLength: SubjectLong}}, true)
	testutil.AssertStrings(t, clauseSQL(p), "e.is_deleted = 0", "length(e.subject) > 60")
}

func TestCompile_SortOrders(t *testing.T) {
	for s, want := range orderBy {
		if got := Compile(Filter{Sort: s}, true).OrderBy; got != want {
			t.Errorf("%s: OrderBy = %q, want %q", s, got, want)
		}
	}
}

func TestEffectiveLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, MaxResults},
		{-3, MaxResults},
		{1, 1},
		{MaxResults, MaxResults},
		{MaxResults + 1, MaxResults},
	}
	for _, tt := range tests {
		if got := EffectiveLimit(tt.in); got != tt.want {
			t.Errorf("EffectiveLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLikeContains(t *testing.T) {
	tests := []struct{ in, want string }{
		{"abc", "%abc%"},
		{"50%", `%50\%%`},
		{"a_b", `%a\_b%`},
		{`c:\x`, `%c:\\x%`},
	}
	for _, tt := range tests {
		if got := likeContains(tt.in); got != tt.want {
			t.Errorf("likeContains(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWhereSQL_Empty(t *testing.T) {
	where, args := Plan{}.WhereSQL()
	if where != "1=1" || args != nil {
		t.Errorf("WhereSQL() = %q, %v", where, args)
	}
}
