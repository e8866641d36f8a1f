// Package export renders curated rows in bibliography formats.
package export

import (
	"fmt"
	"strings"

	"github.com/matsen/bibmeta/internal/identifier"
	"github.com/matsen/bibmeta/internal/normalize"
	"github.com/matsen/bibmeta/internal/reference"
)

// Entry is the BibTeX view of one curated row.
type Entry struct {
	Type string // article, inproceedings, book, ...
	Key  string // citation key
	DOI  string // first doi of the row, if any
	row  reference.Row
}

// NewEntry derives the entry type and key of a curated row. The key is the
// row's canonical reference ("br0601"), then its DOI, then its first
// identifier; rows with none of these get "row<n>".
func NewEntry(row reference.Row, n int) Entry {
	list := identifier.ParseList(row.ID, "", reference.KindBR)
	e := Entry{Type: determineEntryType(row), row: row}
	for _, id := range list.IDs {
		if id.Scheme == identifier.SchemeDOI {
			e.DOI = id.Value
			break
		}
	}

	switch {
	case list.Explicit != "":
		e.Key = string(reference.KindBR) + list.Explicit
	case e.DOI != "":
		e.Key = e.DOI
	case len(list.IDs) > 0:
		e.Key = list.IDs[0].String()
	default:
		e.Key = fmt.Sprintf("row%d", n)
	}
	return e
}

// ToBibTeX converts a curated row to BibTeX format.
func ToBibTeX(row reference.Row, n int) string {
	return NewEntry(row, n).String()
}

// String renders the entry.
func (e Entry) String() string {
	row := e.row
	var b strings.Builder

	b.WriteString(fmt.Sprintf("@%s{%s,\n", e.Type, e.Key))

	if authors := formatAuthors(row.Author); authors != "" {
		b.WriteString(fmt.Sprintf("  author = {%s},\n", authors))
	}
	if editors := formatAuthors(row.Editor); editors != "" {
		b.WriteString(fmt.Sprintf("  editor = {%s},\n", editors))
	}

	b.WriteString(fmt.Sprintf("  title = {%s},\n", escapeLatex(row.Title)))

	if venue, _, _ := normalize.SplitBracketed(row.Venue); venue != "" {
		b.WriteString(fmt.Sprintf("  %s = {%s},\n", venueField(e.Type), escapeLatex(venue)))
	}
	if row.Volume != "" {
		b.WriteString(fmt.Sprintf("  volume = {%s},\n", escapeLatex(row.Volume)))
	}
	if row.Issue != "" {
		b.WriteString(fmt.Sprintf("  number = {%s},\n", escapeLatex(row.Issue)))
	}
	if row.Page != "" {
		b.WriteString(fmt.Sprintf("  pages = {%s},\n", strings.Replace(row.Page, "-", "--", 1)))
	}

	// Dates are curated to YYYY[-MM[-DD]].
	if year, rest, _ := strings.Cut(row.PubDate, "-"); year != "" {
		b.WriteString(fmt.Sprintf("  year = {%s},\n", year))
		if month, _, _ := strings.Cut(rest, "-"); month != "" {
			b.WriteString(fmt.Sprintf("  month = {%s},\n", strings.TrimLeft(month, "0")))
		}
	}

	if publisher, _, _ := normalize.SplitBracketed(row.Publisher); publisher != "" {
		b.WriteString(fmt.Sprintf("  publisher = {%s},\n", escapeLatex(publisher)))
	}
	if e.DOI != "" {
		b.WriteString(fmt.Sprintf("  doi = {%s},\n", e.DOI))
	}

	b.WriteString("}\n")

	return b.String()
}

// ToBibTeXList converts multiple rows to BibTeX format.
func ToBibTeXList(rows []reference.Row) string {
	var entries []string
	for i, row := range rows {
		entries = append(entries, ToBibTeX(row, i))
	}
	return strings.Join(entries, "\n")
}

// determineEntryType returns the BibTeX entry type for a row's curated type.
func determineEntryType(row reference.Row) string {
	switch row.Type {
	case "journal article":
		return "article"
	case "proceedings article":
		return "inproceedings"
	case "proceedings":
		return "proceedings"
	case "book", "reference book":
		return "book"
	case "book chapter", "book part", "book section", "reference entry":
		return "incollection"
	case "dissertation":
		return "phdthesis"
	case "report", "standard":
		return "techreport"
	case "":
		// Untyped rows with a venue are taken for journal articles.
		if row.Venue != "" {
			return "article"
		}
	}
	return "misc"
}

func venueField(entryType string) string {
	switch entryType {
	case "inproceedings", "incollection":
		return "booktitle"
	case "article":
		return "journal"
	}
	return "howpublished"
}

// formatAuthors formats a curated contributor list in BibTeX style:
// "Last, First and Last, First". Identifier lists are dropped.
func formatAuthors(raw string) string {
	var formatted []string
	for _, c := range normalize.SplitContributors(raw) {
		name, _, _ := normalize.SplitBracketed(c)
		name = strings.TrimSuffix(strings.TrimSpace(name), ",")
		if name != "" {
			formatted = append(formatted, escapeLatex(name))
		}
	}
	return strings.Join(formatted, " and ")
}

// escapeLatex escapes special LaTeX characters.
func escapeLatex(s string) string {
	replacer := strings.NewReplacer(
		"&", `\&`,
		"%", `\%`,
		"$", `\$`,
		"#", `\#`,
		"_", `\_`,
		"{", `\{`,
		"}", `\}`,
		"~", `\textasciitilde{}`,
		"^", `\textasciicircum{}`,
	)
	return replacer.Replace(s)
}
