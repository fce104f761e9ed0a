// Package query compiles structured email filters into SQL and runs them
// against the record store.
package query

import "github.com/wesm/mboxvault/internal/store"

// Email is the row every search returns. Its JSON form is the result shape
// shared by the HTTP API and the exporters.
type Email = store.Email

// MaxResults caps every search. Matches beyond it are dropped silently.
const MaxResults = 1000

// ScopeMode selects which part of the archive a filter looks at.
type ScopeMode int

const (
	ScopeAll ScopeMode = iota
	ScopeFolder
	ScopeStarred
	// ScopeCategory narrows the inbox to one category.
	ScopeCategory
)

func (m ScopeMode) String() string {
	switch m {
	case ScopeFolder:
		return "folder"
	case ScopeStarred:
		return "starred"
	case ScopeCategory:
		return "category"
	default:
		return "all"
	}
}

// SubjectLength buckets subjects by character count.
type SubjectLength string

const (
	SubjectAny   SubjectLength = ""
	SubjectShort SubjectLength = "short" // fewer than 20 characters
	SubjectLong  SubjectLength = "long"  // more than 60 characters
)

// SortOrder is one of a fixed set of result orders.
type SortOrder string

const (
	SortDateDesc   SortOrder = "date_desc"
	SortDateAsc    SortOrder = "date_asc"
	SortSizeDesc   SortOrder = "size_desc"
	SortSubjectAsc SortOrder = "subject_asc"
	SortLinksDesc  SortOrder = "links_desc"
	SortSenderAsc  SortOrder = "sender_asc"
	SortAttachDesc SortOrder = "att_desc"
)

// DefaultSortOrder is newest first.
const DefaultSortOrder = SortDateDesc

// orderBy maps sort orders to ORDER BY clauses. Ties are broken by id in the
// same direction so results are stable across runs.
var orderBy = map[SortOrder]string{
	SortDateDesc:   "e.timestamp DESC, e.id DESC",
	SortDateAsc:    "e.timestamp ASC, e.id ASC",
	SortSizeDesc:   "e.size_bytes DESC, e.id DESC",
	SortSubjectAsc: "e.subject COLLATE NOCASE ASC, e.id ASC",
	SortLinksDesc:  "e.link_count DESC, e.id DESC",
	SortSenderAsc:  "e.sender COLLATE NOCASE ASC, e.id ASC",
	SortAttachDesc: "e.attachment_count DESC, e.id DESC",
}

// Valid reports whether s is a known sort order.
func (s SortOrder) Valid() bool {
	_, ok := orderBy[s]
	return ok
}
