package query

import (
	"strings"
	"unicode"
)

// Scope picks the folder, starred view or inbox category a filter covers.
type Scope struct {
	Mode  ScopeMode
	Value string // folder or category name
}

// Text holds free-text criteria. Query goes through the full-text index;
// Include and Exclude are plain substring tests over subject and body.
type Text struct {
	Query   string
	Include string
	Exclude string
}

// People holds substring criteria over sender and recipients.
type People struct {
	Sender        string // sender display text
	Recipient     string // To, Cc or Bcc
	Domain        string
	ExcludeDomain string
}

// Attributes holds per-record properties. Nil pointers leave the property
// unconstrained.
type Attributes struct {
	HasAttachment *bool
	Read          *bool
	Newsletter    *bool

	AttachmentType string // substring of the extension list, e.g. ".pdf"
	AttachmentName string
	DayOfWeek      string // exact, e.g. "Monday"
	Subject        string
	HasLinks       bool
	SubjectLength  SubjectLength
}

// Ranges bounds timestamp (epoch seconds) and size (bytes). Bounds are
// inclusive; nil means unbounded.
type Ranges struct {
	DateFrom *int64
	DateTo   *int64
	SizeMin  *int64
	SizeMax  *int64
}

// Filter is a structured search. Every clause family is optional and the
// families are ANDed together.
type Filter struct {
	Scope      Scope
	Text       Text
	People     People
	Attributes Attributes
	Ranges     Ranges

	Sort  SortOrder
	Limit int // 0 or anything above MaxResults means MaxResults

	// IncludeDeleted returns soft-deleted records as well.
	IncludeDeleted bool
}

// Clause is one parameterized WHERE fragment.
type Clause struct {
	SQL  string
	Args []any
}

// Plan is a compiled filter.
type Plan struct {
	Where   []Clause
	OrderBy string
	Limit   int
}

// WhereSQL joins the clauses with AND and returns them with their arguments
// in order. An empty plan yields "1=1".
func (p Plan) WhereSQL() (string, []any) {
	if len(p.Where) == 0 {
		return "1=1", nil
	}
	parts := make([]string, len(p.Where))
	var args []any
	for i, c := range p.Where {
		parts[i] = c.SQL
		args = append(args, c.Args...)
	}
	return strings.Join(parts, " AND "), args
}

// EffectiveLimit clamps a requested limit to (0, MaxResults].
func EffectiveLimit(n int) int {
	if n <= 0 || n > MaxResults {
		return MaxResults
	}
	return n
}

// ftsFields are the indexed columns, used for the substring fallback when
// the driver has no FTS5.
var ftsFields = []string{"sender", "recipient", "subject", "body", "gmail_labels", "tags"}

// Compile translates f into SQL over the emails table aliased as "e".
// Only fixed identifiers are written into the SQL; every value is an
// argument. fts selects the full-text index for Text.Query. Compile never
// fails: an empty or contradictory filter simply compiles to a query that
// matches everything or nothing.
func Compile(f Filter, fts bool) Plan {
	var w []Clause
	add := func(sql string, args ...any) {
		w = append(w, Clause{SQL: sql, Args: args})
	}

	// Scope
	switch f.Scope.Mode {
	case ScopeFolder:
		add("e.folder = ?", f.Scope.Value)
	case ScopeStarred:
		add("e.is_starred = 1")
	case ScopeCategory:
		add("e.folder = 'inbox'")
		add("e.category = ?", f.Scope.Value)
	}
	if !f.IncludeDeleted {
		add("e.is_deleted = 0")
	}

	// Text
	if terms := ftsTerms(f.Text.Query); len(terms) > 0 {
		if fts {
			add("e.id IN (SELECT rowid FROM emails_fts WHERE emails_fts MATCH ?)", ftsMatchExpr(terms))
		} else {
			for _, term := range terms {
				add(anyLike(ftsFields), repeatArg(likeContains(term), len(ftsFields))...)
			}
		}
	}
	if v := strings.TrimSpace(f.Text.Include); v != "" {
		add(`(e.subject LIKE ? ESCAPE '\' OR e.body LIKE ? ESCAPE '\')`, likeContains(v), likeContains(v))
	}
	if v := strings.TrimSpace(f.Text.Exclude); v != "" {
		add(`NOT (e.subject LIKE ? ESCAPE '\' OR e.body LIKE ? ESCAPE '\')`, likeContains(v), likeContains(v))
	}

	// People
	if v := strings.TrimSpace(f.People.Sender); v != "" {
		add(`e.sender LIKE ? ESCAPE '\'`, likeContains(v))
	}
	if v := strings.TrimSpace(f.People.Recipient); v != "" {
		p := likeContains(v)
		add(`(e.recipient LIKE ? ESCAPE '\' OR e.cc LIKE ? ESCAPE '\' OR e.bcc LIKE ? ESCAPE '\')`, p, p, p)
	}
	if v := strings.TrimSpace(f.People.Domain); v != "" {
		add(`e.sender_domain LIKE ? ESCAPE '\'`, likeContains(strings.ToLower(v)))
	}
	if v := strings.TrimSpace(f.People.ExcludeDomain); v != "" {
		add(`e.sender_domain NOT LIKE ? ESCAPE '\'`, likeContains(strings.ToLower(v)))
	}

	// Attributes
	a := f.Attributes
	if a.HasAttachment != nil {
		add("e.has_attachment = ?", *a.HasAttachment)
	}
	if a.Read != nil {
		add("e.is_read = ?", *a.Read)
	}
	if a.Newsletter != nil {
		add("e.is_newsletter = ?", *a.Newsletter)
	}
	if v := strings.TrimSpace(a.AttachmentType); v != "" {
		add(`e.attachment_types LIKE ? ESCAPE '\'`, likeContains(strings.ToLower(v)))
	}
	if v := strings.TrimSpace(a.AttachmentName); v != "" {
		add(`e.attachment_names LIKE ? ESCAPE '\'`, likeContains(v))
	}
	if v := strings.TrimSpace(a.DayOfWeek); v != "" {
		add("e.day_of_week = ?", v)
	}
	if v := strings.TrimSpace(a.Subject); v != "" {
		add(`e.subject LIKE ? ESCAPE '\'`, likeContains(v))
	}
	if a.HasLinks {
		add("e.link_count > 0")
	}
	switch a.SubjectLength {
	case SubjectShort:
		add("length(e.subject) < 20")
	case SubjectLong:
		add("length(e.subject) > 60")
	}

	// Ranges. Undated records carry timestamp 0 and never match a date bound.
	r := f.Ranges
	if r.DateFrom != nil || r.DateTo != nil {
		add("e.timestamp > 0")
	}
	if r.DateFrom != nil {
		add("e.timestamp >= ?", *r.DateFrom)
	}
	if r.DateTo != nil {
		add("e.timestamp <= ?", *r.DateTo)
	}
	if r.SizeMin != nil {
		add("e.size_bytes >= ?", *r.SizeMin)
	}
	if r.SizeMax != nil {
		add("e.size_bytes <= ?", *r.SizeMax)
	}

	order, ok := orderBy[f.Sort]
	if !ok {
		order = orderBy[DefaultSortOrder]
	}
	return Plan{Where: w, OrderBy: order, Limit: EffectiveLimit(f.Limit)}
}

// ftsTerms splits a free-text query into words, dropping tokens that have
// nothing the index tokenizer would keep.
func ftsTerms(q string) []string {
	var terms []string
	for _, t := range strings.Fields(q) {
		if strings.IndexFunc(t, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsNumber(r) }) >= 0 {
			terms = append(terms, t)
		}
	}
	return terms
}

// ftsMatchExpr quotes every term so FTS5 reads it as a string rather than
// query syntax; adjacent quoted strings are implicitly ANDed.
func ftsMatchExpr(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likeContains builds a LIKE pattern matching s anywhere, with LIKE
// metacharacters in s taken literally.
func likeContains(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func anyLike(cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = "e." + c + ` LIKE ? ESCAPE '\'`
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func repeatArg(v any, n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = v
	}
	return out
}
