package normalize

import (
	"strings"
	"time"
)

// dateLayout is a whole-string layout together with the fields it carries.
// Fields it does not carry are completed from an anchor date.
type dateLayout struct {
	layout   string
	hasMonth bool
	hasDay   bool
}

var dateLayouts = []dateLayout{
	{"2006-01-02", true, true},
	{"2006/01/02", true, true},
	{"2006-1-2", true, true},
	{"January 2, 2006", true, true},
	{"Jan 2, 2006", true, true},
	{"2 January 2006", true, true},
	{"2 Jan 2006", true, true},
	{"2006-01", true, false},
	{"2006/01", true, false},
	{"2006-1", true, false},
	{"January 2006", true, false},
	{"Jan 2006", true, false},
	{"2006", false, false},
}

// Anchors used to detect which fields the input really carries.
var (
	dateAnchorA = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	dateAnchorB = time.Date(2002, time.February, 2, 0, 0, 0, 0, time.UTC)
)

// ParseDate normalises a publication date to "YYYY-MM-DD", "YYYY-MM" or
// "YYYY". The input is completed against two different anchor dates and only
// the fields on which both completions agree are kept, so a partial date is
// never silently filled in. Unparseable or invalid dates yield "".
func ParseDate(s string) string {
	s = strings.TrimSpace(StringFix(stripNUL(s)))
	if s == "" {
		return ""
	}
	a, okA := parseWithDefault(s, dateAnchorA)
	b, okB := parseWithDefault(s, dateAnchorB)
	if !okA || !okB || a.Year() != b.Year() {
		return ""
	}
	switch {
	case a.Month() == b.Month() && a.Day() == b.Day():
		return a.Format("2006-01-02")
	case a.Month() == b.Month():
		return a.Format("2006-01")
	default:
		return a.Format("2006")
	}
}

// parseWithDefault parses s with the first matching layout and completes the
// missing fields from anchor.
func parseWithDefault(s string, anchor time.Time) (time.Time, bool) {
	for _, l := range dateLayouts {
		t, err := time.Parse(l.layout, s)
		if err != nil {
			continue
		}
		month, day := anchor.Month(), anchor.Day()
		if l.hasMonth {
			month = t.Month()
		}
		if l.hasDay {
			day = t.Day()
		}
		return time.Date(t.Year(), month, day, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}
