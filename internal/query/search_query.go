package query

import (
	"strings"

	"github.com/wesm/mboxvault/internal/search"
)

// FromSearch converts a parsed search string into a Filter. Free-text terms
// become the full-text query; before: is exclusive, so it is moved back one
// second to fit the inclusive upper bound.
func FromSearch(q *search.Query) Filter {
	f := Filter{Sort: DefaultSortOrder}

	switch {
	case q.Category != "":
		f.Scope = Scope{Mode: ScopeCategory, Value: strings.ToLower(q.Category)}
	case q.Folder != "" && q.Folder != "all":
		f.Scope = Scope{Mode: ScopeFolder, Value: q.Folder}
	case q.Starred:
		f.Scope = Scope{Mode: ScopeStarred}
	}
	f.IncludeDeleted = q.Deleted

	f.Text = Text{
		Query:   strings.Join(q.TextTerms, " "),
		Exclude: strings.Join(q.ExcludeTerms, " "),
	}
	f.People = People{
		Sender:        q.From,
		Recipient:     q.To,
		Domain:        q.Domain,
		ExcludeDomain: q.NotDomain,
	}
	f.Attributes = Attributes{
		HasAttachment:  q.HasAttachment,
		Read:           q.Read,
		Newsletter:     q.Newsletter,
		AttachmentType: q.FileType,
		AttachmentName: q.Filename,
		DayOfWeek:      q.Weekday,
		Subject:        q.Subject,
		HasLinks:       q.HasLinks,
	}
	if q.AfterDate != nil {
		n := q.AfterDate.Unix()
		f.Ranges.DateFrom = &n
	}
	if q.BeforeDate != nil {
		n := q.BeforeDate.Unix() - 1
		f.Ranges.DateTo = &n
	}
	f.Ranges.SizeMin = q.LargerThan
	f.Ranges.SizeMax = q.SmallerThan
	return f
}

// ParseSearch parses a search string straight into a Filter.
func ParseSearch(s string) Filter {
	return FromSearch(search.Parse(s))
}
