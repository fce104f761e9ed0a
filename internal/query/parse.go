package query

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseFilter builds a Filter from the flat key/value form used by the HTTP
// API (decoded JSON) and the CLI. Unknown keys are ignored. A value that
// cannot be interpreted drops only its own clause and is logged at debug.
//
// Recognized keys: folder, category, q, includes, excludes, sender,
// recipient, domain, exclude_domain, has_attachment, is_read,
// is_newsletter, att_type, att_name, day_of_week, has_links, subject,
// subject_length, date_start, date_end, size_min, size_max, sort, limit,
// include_deleted.
func ParseFilter(m map[string]any) Filter {
	p := filterParser{log: slog.Default()}
	return p.parse(m)
}

type filterParser struct {
	log *slog.Logger
}

func (p filterParser) drop(key string, v any, err error) {
	p.log.Debug("ignoring filter value", "key", key, "value", v, "error", err)
}

func (p filterParser) parse(m map[string]any) Filter {
	var f Filter

	folder := p.text(m, "folder")
	category := p.text(m, "category")
	switch {
	case category != "":
		f.Scope = Scope{Mode: ScopeCategory, Value: strings.ToLower(category)}
	case folder == "" || strings.EqualFold(folder, "all"):
		f.Scope = Scope{Mode: ScopeAll}
	case strings.EqualFold(folder, "starred"):
		f.Scope = Scope{Mode: ScopeStarred}
	default:
		f.Scope = Scope{Mode: ScopeFolder, Value: strings.ToLower(folder)}
	}

	f.Text = Text{
		Query:   p.text(m, "q"),
		Include: p.text(m, "includes"),
		Exclude: p.text(m, "excludes"),
	}
	f.People = People{
		Sender:        p.text(m, "sender"),
		Recipient:     p.text(m, "recipient"),
		Domain:        p.text(m, "domain"),
		ExcludeDomain: p.text(m, "exclude_domain"),
	}
	f.Attributes = Attributes{
		HasAttachment:  p.tri(m, "has_attachment"),
		Read:           p.tri(m, "is_read"),
		Newsletter:     p.tri(m, "is_newsletter"),
		AttachmentType: p.text(m, "att_type"),
		AttachmentName: p.text(m, "att_name"),
		DayOfWeek:      p.text(m, "day_of_week"),
		Subject:        p.text(m, "subject"),
		HasLinks:       p.flag(m, "has_links"),
	}
	switch sl := SubjectLength(strings.ToLower(p.text(m, "subject_length"))); sl {
	case SubjectShort, SubjectLong, SubjectAny:
		f.Attributes.SubjectLength = sl
	default:
		p.drop("subject_length", sl, fmt.Errorf("want short or long"))
	}

	f.Ranges = Ranges{
		DateFrom: p.date(m, "date_start", false),
		DateTo:   p.date(m, "date_end", true),
		SizeMin:  p.count(m, "size_min", math.Ceil),
		SizeMax:  p.count(m, "size_max", math.Floor),
	}

	if s := SortOrder(strings.ToLower(p.text(m, "sort"))); s.Valid() {
		f.Sort = s
	} else {
		if s != "" {
			p.drop("sort", s, fmt.Errorf("unknown sort order"))
		}
		f.Sort = DefaultSortOrder
	}
	if n := p.count(m, "limit", math.Floor); n != nil && *n <= MaxResults {
		f.Limit = int(*n)
	}
	f.IncludeDeleted = p.flag(m, "include_deleted")
	return f
}

// text returns a string or number value as trimmed text.
func (p filterParser) text(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	p.drop(key, v, fmt.Errorf("unsupported type %T", v))
	return ""
}

// tri reads a yes/no/any value. Absent, empty and "any" leave the property
// unconstrained.
func (p filterParser) tri(m map[string]any, key string) *bool {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	if b, ok := v.(bool); ok {
		return &b
	}
	yes, no := true, false
	switch strings.ToLower(p.text(m, key)) {
	case "", "any", "all":
		return nil
	case "yes", "true", "1", "read":
		return &yes
	case "no", "false", "0", "unread":
		return &no
	}
	p.drop(key, v, fmt.Errorf("want yes, no or any"))
	return nil
}

// flag reads a presence-style boolean; only an explicit true sets it.
func (p filterParser) flag(m map[string]any, key string) bool {
	b := p.tri(m, key)
	return b != nil && *b
}

// count reads a non-negative number, rounded with round so a fractional
// bound stays inside the requested range.
func (p filterParser) count(m map[string]any, key string, round func(float64) float64) *int64 {
	s := p.text(m, key)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		p.drop(key, s, fmt.Errorf("want a non-negative number"))
		return nil
	}
	n, ok := wholeNumber(f, round)
	if !ok {
		p.drop(key, s, fmt.Errorf("out of range"))
		return nil
	}
	return &n
}

// wholeNumber rounds f and converts it to int64. It fails for NaN, the
// infinities and anything outside the int64 range.
func wholeNumber(f float64, round func(float64) float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	r := round(f)
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
	if r >= float64(math.MaxInt64) || r < float64(math.MinInt64) {
		return 0, false
	}
	return int64(r), true
}

// date reads epoch seconds or a calendar date. A calendar date as an upper
// bound covers the whole day, UTC.
func (p filterParser) date(m map[string]any, key string, endOfDay bool) *int64 {
	s := p.text(m, key)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		round := math.Ceil
		if endOfDay {
			round = math.Floor
		}
		n, ok := wholeNumber(f, round)
		if !ok {
			p.drop(key, s, fmt.Errorf("out of range"))
			return nil
		}
		return &n
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		n := t.Unix()
		return &n
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		p.drop(key, s, err)
		return nil
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	n := t.Unix()
	return &n
}
