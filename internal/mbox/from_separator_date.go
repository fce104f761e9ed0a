package mbox

import (
	"fmt"
	"strings"
	"time"
)

// separatorLayouts are the asctime variants exporters write after the
// envelope sender. Zone abbreviations are rewritten to numeric offsets before
// parsing, so only numeric forms appear here. Longer layouts come first so a
// trailing zone is not silently dropped.
var separatorLayouts = []string{
	"Mon Jan 2 15:04:05 -0700 2006",
	"Mon Jan 2 15:04:05 2006 -0700",
	"Mon Jan 2 15:04 -0700 2006",
	"Mon Jan 2 15:04 2006 -0700",
	"Mon Jan 2 15:04:05 2006",
	"Mon Jan 2 15:04 2006",
	"Jan 2 15:04:05 -0700 2006",
	"Jan 2 15:04:05 2006 -0700",
	"Jan 2 15:04:05 2006",
}

// zoneOffsets holds the abbreviations seen in real separator lines.
var zoneOffsets = map[string]int{
	"UT": 0, "UTC": 0, "GMT": 0, "Z": 0,
	"EST": -5, "EDT": -4,
	"CST": -6, "CDT": -5,
	"MST": -7, "MDT": -6,
	"PST": -8, "PDT": -7,
	"AKST": -9, "AKDT": -8,
	"HST": -10,
	"BST": 1, "CET": 1, "CEST": 2, "EET": 2, "EEST": 3,
	"JST": 9, "KST": 9,
}

// normalizeZone turns a zone token into a numeric offset. Unknown
// abbreviations are read as UTC since the separator date is advisory.
func normalizeZone(tok string) (string, bool) {
	tok = strings.Trim(tok, "()")
	if h, ok := zoneOffsets[strings.ToUpper(tok)]; ok {
		sign := '+'
		if h < 0 {
			sign, h = '-', -h
		}
		return fmt.Sprintf("%c%02d00", sign, h), true
	}
	if len(tok) == 6 && (tok[0] == '+' || tok[0] == '-') && tok[3] == ':' {
		return tok[:3] + tok[4:], true
	}
	if n := len(tok); n >= 2 && n <= 5 && strings.ToUpper(tok) == tok && isAlpha(tok) {
		return "+0000", true
	}
	return tok, false
}

func isAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}

// ParseSeparatorDate parses the date of a "From <sender> <asctime> [...]"
// line. Lines that omit the sender are accepted too. Tokens after the date
// (for example "remote from host") are ignored.
func ParseSeparatorDate(line string) (time.Time, bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "From" {
		return time.Time{}, false
	}
	for _, start := range []int{2, 1} {
		if t, ok := parseAsctime(fields[start:]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseAsctime(fields []string) (time.Time, bool) {
	for _, layout := range separatorLayouts {
		n := strings.Count(layout, " ") + 1
		if len(fields) < n {
			continue
		}
		toks := make([]string, n)
		copy(toks, fields[:n])
		for i, tok := range toks {
			// Weekday, month and clock are never zone tokens.
			if i < 2 || strings.Contains(tok, ":") && !strings.HasPrefix(tok, "+") && !strings.HasPrefix(tok, "-") {
				continue
			}
			if z, ok := normalizeZone(tok); ok {
				toks[i] = z
			}
		}
		if t, err := time.Parse(layout, strings.Join(toks, " ")); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
