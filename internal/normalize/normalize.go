// Package normalize cleans the free-text fields of citation records.
//
// Every function here is pure: no state, no I/O.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// dashes lists the Unicode dash variants folded to an ASCII hyphen:
// hyphen, en dash, em dash, minus sign, non-breaking hyphen, hyphen bullet,
// soft hyphen and figure dash.
var dashes = strings.NewReplacer(
	"\u2010", "-",
	"\u2013", "-",
	"\u2014", "-",
	"\u2212", "-",
	"\u2011", "-",
	"\u2043", "-",
	"\u00ad", "-",
	"\u2012", "-",
)

// StringFix folds dash variants to "-" and strips hyphens from ISBN values.
// The input is a single token or field value.
func StringFix(s string) string {
	s = dashes.Replace(s)
	if strings.HasPrefix(strings.ToLower(s), "isbn:") {
		s = s[:5] + strings.ReplaceAll(s[5:], "-", "")
	}
	return s
}

// stripNUL removes NUL bytes that leak in from broken CSV exports.
func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// CleanTitle collapses whitespace and title-cases every word that has no
// upper-case letter. Words that already contain capitals (acronyms, mixed
// case names) are left alone. An all-caps title is lowered first.
func CleanTitle(title string) string {
	title = stripNUL(title)
	if isAllUpper(title) {
		title = strings.ToLower(title)
	}
	words := strings.Fields(title)
	caser := cases.Title(language.Und)
	for i, w := range words {
		if !hasUpper(w) {
			words[i] = caser.String(w)
		}
	}
	return strings.Join(words, " ")
}

// CleanName normalises an agent name. Names with a comma are split on the
// last comma into family and given parts and rendered "Family, Given";
// a name with an empty family part becomes "". Other names are title-cased
// word by word.
func CleanName(name string) string {
	name = stripNUL(name)
	caser := cases.Title(language.Und)
	titleWords := func(s string) string {
		words := strings.Fields(s)
		for i, w := range words {
			words[i] = caser.String(w)
		}
		return strings.Join(words, " ")
	}

	idx := strings.LastIndex(name, ",")
	if idx < 0 {
		return titleWords(name)
	}
	family := titleWords(name[:idx])
	given := titleWords(name[idx+1:])
	if family == "" {
		return ""
	}
	return family + ", " + given
}

// NameCheck returns the stored agent name upgraded with the incoming given
// name when the stored one lacks it ("Smith, " + "Smith, John" -> "Smith, John").
func NameCheck(stored, incoming string) string {
	family, given, ok := strings.Cut(stored, ",")
	if !ok || family == "" || strings.TrimSpace(given) != "" {
		return stored
	}
	_, newGiven, ok := strings.Cut(incoming, ",")
	if !ok || strings.TrimSpace(newGiven) == "" {
		return stored
	}
	return family + ", " + strings.TrimSpace(newGiven)
}

// HasGivenName reports whether a "Family, Given" name has a given part.
func HasGivenName(name string) bool {
	_, given, ok := strings.Cut(name, ",")
	return ok && strings.TrimSpace(given) != ""
}

// CleanPage trims a page field and folds dash variants.
func CleanPage(page string) string {
	return StringFix(strings.TrimSpace(stripNUL(page)))
}

// CleanLabel trims a volume or issue label.
func CleanLabel(label string) string {
	return strings.TrimSpace(stripNUL(label))
}

var typeAliases = map[string]string{
	"edited book":     "book",
	"monograph":       "book",
	"report series":   "series",
	"standard series": "series",
}

var knownTypes = map[string]bool{
	"archival document":   true,
	"book":                true,
	"book chapter":        true,
	"book part":           true,
	"book section":        true,
	"book series":         true,
	"book set":            true,
	"data file":           true,
	"dissertation":        true,
	"journal":             true,
	"journal article":     true,
	"journal issue":       true,
	"journal volume":      true,
	"proceedings article": true,
	"proceedings":         true,
	"reference book":      true,
	"reference entry":     true,
	"series":              true,
	"report":              true,
	"standard":            true,
}

// NormalizeType maps a raw type to the closed set of resource types.
// Unknown types yield "".
func NormalizeType(raw string) string {
	t := strings.Join(strings.Fields(strings.ToLower(stripNUL(raw))), " ")
	if alias, ok := typeAliases[t]; ok {
		t = alias
	}
	if knownTypes[t] {
		return t
	}
	return ""
}

// bracketPattern captures "Name [ids]".
var bracketPattern = regexp.MustCompile(`^\s*(.*?)\s*\[\s*(.*?)\s*\]`)

// SplitBracketed separates "Name [ids]" into its name and identifier parts.
// ok is false when the value carries no bracketed identifier list.
func SplitBracketed(s string) (name, ids string, ok bool) {
	m := bracketPattern.FindStringSubmatch(s)
	if m == nil {
		return strings.TrimSpace(s), "", false
	}
	return m[1], m[2], true
}

// SplitContributors splits a contributor list on ";" separators that are not
// inside a bracketed identifier list.
func SplitContributors(s string) []string {
	var parts []string
	var cur strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '[':
			depth++
		case r == ']' && depth > 0:
			depth--
		case r == ';' && depth == 0:
			if p := strings.TrimSpace(cur.String()); p != "" {
				parts = append(parts, p)
			}
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	if p := strings.TrimSpace(cur.String()); p != "" {
		parts = append(parts, p)
	}
	return parts
}

func isAllUpper(s string) bool {
	letters := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			letters = true
		}
	}
	return letters
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}
