// Package search parses Gmail-style search strings such as
// `from:alice has:attachment "quarterly report" -draft`.
package search

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Query is a parsed search string. Operators that may only constrain one
// value keep the last one given.
type Query struct {
	TextTerms    []string // bare words and "quoted phrases"
	ExcludeTerms []string // -word

	From      string // from:
	To        string // to:
	Domain    string // domain:
	NotDomain string // -domain:
	Subject   string // subject:
	Folder    string // in:
	Category  string // category:
	Filename  string // filename:
	FileType  string // filetype:
	Weekday   string // on:

	HasAttachment *bool // has:attachment, -has:attachment
	HasLinks      bool  // has:links
	Starred       bool  // is:starred
	Read          *bool // is:read, is:unread
	Newsletter    *bool // is:newsletter

	BeforeDate  *time.Time // before:, older_than:
	AfterDate   *time.Time // after:, newer_than:
	LargerThan  *int64     // larger: (bytes)
	SmallerThan *int64     // smaller: (bytes)

	Deleted bool // in:bin, in:trash
}

// IsEmpty returns true if the query has no search criteria.
func (q *Query) IsEmpty() bool {
	return len(q.TextTerms) == 0 && len(q.ExcludeTerms) == 0 &&
		q.From == "" && q.To == "" && q.Domain == "" && q.NotDomain == "" &&
		q.Subject == "" && q.Folder == "" && q.Category == "" &&
		q.Filename == "" && q.FileType == "" && q.Weekday == "" &&
		q.HasAttachment == nil && !q.HasLinks && !q.Starred &&
		q.Read == nil && q.Newsletter == nil &&
		q.BeforeDate == nil && q.AfterDate == nil &&
		q.LargerThan == nil && q.SmallerThan == nil
}

// operatorFn handles a parsed operator:value pair by applying it to the query.
// negated is set for a leading '-'. It reports whether the value was usable;
// unusable operators fall back to text.
type operatorFn func(q *Query, value string, negated bool, now time.Time) bool

func setString(field func(*Query) *string) operatorFn {
	return func(q *Query, v string, negated bool, _ time.Time) bool {
		if negated || v == "" {
			return false
		}
		*field(q) = v
		return true
	}
}

// operators maps operator names to their handler functions.
var operators = map[string]operatorFn{
	"from":     setString(func(q *Query) *string { return &q.From }),
	"to":       setString(func(q *Query) *string { return &q.To }),
	"subject":  setString(func(q *Query) *string { return &q.Subject }),
	"category": setString(func(q *Query) *string { return &q.Category }),
	"filename": setString(func(q *Query) *string { return &q.Filename }),
	"filetype": func(q *Query, v string, negated bool, _ time.Time) bool {
		if negated || v == "" {
			return false
		}
		q.FileType = "." + strings.TrimPrefix(strings.ToLower(v), ".")
		return true
	},
	"on": func(q *Query, v string, negated bool, _ time.Time) bool {
		day, ok := weekdays[strings.ToLower(v)]
		if negated || !ok {
			return false
		}
		q.Weekday = day
		return true
	},
	"domain": func(q *Query, v string, negated bool, _ time.Time) bool {
		if v == "" {
			return false
		}
		if negated {
			q.NotDomain = strings.ToLower(v)
		} else {
			q.Domain = strings.ToLower(v)
		}
		return true
	},
	"in": func(q *Query, v string, negated bool, _ time.Time) bool {
		if negated || v == "" {
			return false
		}
		switch low := strings.ToLower(v); low {
		case "trash", "bin":
			q.Folder = "bin"
			q.Deleted = true
		case "starred":
			q.Starred = true
		default:
			q.Folder = low
		}
		return true
	},
	"is": func(q *Query, v string, negated bool, _ time.Time) bool {
		switch strings.ToLower(v) {
		case "starred":
			if negated {
				return false
			}
			q.Starred = true
		case "read":
			b := !negated
			q.Read = &b
		case "unread":
			b := negated
			q.Read = &b
		case "newsletter":
			b := !negated
			q.Newsletter = &b
		default:
			return false
		}
		return true
	},
	"has": func(q *Query, v string, negated bool, _ time.Time) bool {
		switch strings.ToLower(v) {
		case "attachment", "attachments":
			b := !negated
			q.HasAttachment = &b
		case "link", "links":
			if negated {
				return false
			}
			q.HasLinks = true
		default:
			return false
		}
		return true
	},
	"before": func(q *Query, v string, negated bool, _ time.Time) bool {
		t := parseDate(v)
		if negated || t == nil {
			return false
		}
		q.BeforeDate = t
		return true
	},
	"after": func(q *Query, v string, negated bool, _ time.Time) bool {
		t := parseDate(v)
		if negated || t == nil {
			return false
		}
		q.AfterDate = t
		return true
	},
	"older_than": func(q *Query, v string, negated bool, now time.Time) bool {
		t := parseRelativeDate(v, now)
		if negated || t == nil {
			return false
		}
		q.BeforeDate = t
		return true
	},
	"newer_than": func(q *Query, v string, negated bool, now time.Time) bool {
		t := parseRelativeDate(v, now)
		if negated || t == nil {
			return false
		}
		q.AfterDate = t
		return true
	},
	"larger": func(q *Query, v string, negated bool, _ time.Time) bool {
		size := parseSize(v)
		if negated || size == nil {
			return false
		}
		q.LargerThan = size
		return true
	},
	"smaller": func(q *Query, v string, negated bool, _ time.Time) bool {
		size := parseSize(v)
		if negated || size == nil {
			return false
		}
		q.SmallerThan = size
		return true
	},
}

var weekdays = map[string]string{
	"monday": "Monday", "mon": "Monday",
	"tuesday": "Tuesday", "tue": "Tuesday",
	"wednesday": "Wednesday", "wed": "Wednesday",
	"thursday": "Thursday", "thu": "Thursday",
	"friday": "Friday", "fri": "Friday",
	"saturday": "Saturday", "sat": "Saturday",
	"sunday": "Sunday", "sun": "Sunday",
}

// Parser holds configuration for query parsing.
type Parser struct {
	Now func() time.Time // Time source (mockable for testing)
}

// NewParser creates a Parser with default settings.
func NewParser() *Parser {
	return &Parser{Now: func() time.Time { return time.Now().UTC() }}
}

// Parse parses a search string into a Query.
//
// Supported operators:
//   - from:, to: - sender and recipient substrings
//   - domain:, -domain: - sender domain include/exclude
//   - subject: - subject substring
//   - in:<folder>, in:starred, category:<name>
//   - is:starred, is:read, is:unread, is:newsletter
//   - has:attachment, has:links, filename:, filetype:
//   - on:<weekday>
//   - before:, after: - date filters (YYYY-MM-DD)
//   - older_than:, newer_than: - relative date filters (e.g., 7d, 2w, 1m, 1y)
//   - larger:, smaller: - size filters (e.g., 5M, 100K)
//   - Bare words and "quoted phrases" - full-text search; -word excludes
func (p *Parser) Parse(queryStr string) *Query {
	q := &Query{}
	now := time.Now().UTC()
	if p.Now != nil {
		now = p.Now()
	}

	for _, token := range tokenize(queryStr) {
		if isQuotedPhrase(token) {
			q.TextTerms = append(q.TextTerms, unquote(token))
			continue
		}

		negated := false
		body := token
		if len(body) > 1 && body[0] == '-' {
			negated = true
			body = body[1:]
		}

		if idx := strings.Index(body, ":"); idx > 0 {
			op := strings.ToLower(body[:idx])
			value := unquote(body[idx+1:])
			if handler, ok := operators[op]; ok && handler(q, value, negated, now) {
				continue
			}
		}

		if negated {
			q.ExcludeTerms = append(q.ExcludeTerms, unquote(body))
			continue
		}
		q.TextTerms = append(q.TextTerms, token)
	}

	return q
}

// Parse is a convenience function that parses using default settings.
func Parse(queryStr string) *Query {
	return NewParser().Parse(queryStr)
}

// unquote removes surrounding double quotes from a string if present.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// isQuotedPhrase returns true if the token is a double-quoted phrase.
func isQuotedPhrase(token string) bool {
	return len(token) > 2 && token[0] == '"' && token[len(token)-1] == '"'
}

// tokenize splits a query string, preserving quoted phrases and operator:value pairs.
// Handles cases like subject:"foo bar" where the operator and quoted value should stay together.
func tokenize(queryStr string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false
	// op:"value" keeps the quotes inside the token
	afterColon := false
	opQuoted := false

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, char := range queryStr {
		switch {
		case char == '"' && !inQuotes:
			inQuotes = true
			opQuoted = afterColon
			if opQuoted {
				current.WriteRune(char)
			} else {
				flush()
			}
			afterColon = false
		case char == '"' && inQuotes:
			inQuotes = false
			if opQuoted {
				current.WriteRune(char)
				flush()
			} else if current.Len() > 0 {
				tokens = append(tokens, "\""+current.String()+"\"")
				current.Reset()
			}
			opQuoted = false
		case (char == ' ' || char == '\t') && !inQuotes:
			flush()
			afterColon = false
		default:
			current.WriteRune(char)
			afterColon = char == ':'
		}
	}
	flush()
	return tokens
}

// parseDate parses date strings like YYYY-MM-DD or YYYY/MM/DD as UTC.
func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	for _, format := range []string{"2006-01-02", "2006/01/02"} {
		if t, err := time.Parse(format, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

var relativeDateRe = regexp.MustCompile(`^(\d+)([dwmy])$`)

// parseRelativeDate parses relative dates like 7d, 2w, 1m, 1y relative to now.
func parseRelativeDate(value string, now time.Time) *time.Time {
	match := relativeDateRe.FindStringSubmatch(strings.TrimSpace(strings.ToLower(value)))
	if match == nil {
		return nil
	}
	amount, _ := strconv.Atoi(match[1])

	var result time.Time
	switch match[2] {
	case "d":
		result = now.AddDate(0, 0, -amount)
	case "w":
		result = now.AddDate(0, 0, -amount*7)
	case "m":
		result = now.AddDate(0, -amount, 0)
	case "y":
		result = now.AddDate(-amount, 0, 0)
	}
	return &result
}

// sizeSuffixes is ordered so two-letter suffixes are tried first.
var sizeSuffixes = []struct {
	suffix string
	mult   int64
}{
	{"KB", 1 << 10}, {"MB", 1 << 20}, {"GB", 1 << 30},
	{"K", 1 << 10}, {"M", 1 << 20}, {"G", 1 << 30},
}

// parseSize parses size strings like 5M, 100K, 1G into bytes.
func parseSize(value string) *int64 {
	value = strings.TrimSpace(strings.ToUpper(value))
	for _, s := range sizeSuffixes {
		if strings.HasSuffix(value, s.suffix) {
			num, err := strconv.ParseFloat(strings.TrimSuffix(value, s.suffix), 64)
			if err != nil || num < 0 {
				return nil
			}
			result := int64(num * float64(s.mult))
			return &result
		}
	}
	if num, err := strconv.ParseInt(value, 10, 64); err == nil && num >= 0 {
		return &num
	}
	return nil
}
