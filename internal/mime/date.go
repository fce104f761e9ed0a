package mime

import (
	"strings"
	"time"
)

// dateFormats lists the Date header shapes seen in archived mail, most
// common first.
var dateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04 -0700",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 06 15:04:05 -0700",
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
}

// ParseDate parses a Date header. A trailing parenthesized zone comment such
// as "(PST)" is ignored. The returned time keeps the header's own offset so
// the weekday matches what the sender saw.
func ParseDate(s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return time.Time{}, false
	}
	if i := strings.LastIndexByte(s, '('); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	// Some mailers write "+0000 GMT" or "-0500 EST" after the offset.
	if f := strings.Fields(s); len(f) > 2 && isZoneAbbrev(f[len(f)-1]) && isNumericOffset(f[len(f)-2]) {
		s = strings.Join(f[:len(f)-1], " ")
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isNumericOffset(s string) bool {
	if len(s) != 5 || (s[0] != '+' && s[0] != '-') {
		return false
	}
	for i := 1; i < 5; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isZoneAbbrev(s string) bool {
	if len(s) < 2 || len(s) > 5 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// Weekday returns the English weekday of t in its own zone, or "Unknown" for
// the zero time.
func Weekday(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	return t.Weekday().String()
}
