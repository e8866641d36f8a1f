// Package importer reads citation batches from external formats into rows.
package importer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/matsen/bibmeta/internal/reference"
)

// FlexibleString can unmarshal from either string or number JSON values.
type FlexibleString string

func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	// Handle null
	if string(data) == "null" {
		*f = ""
		return nil
	}

	// Try string first
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleString(s)
		return nil
	}

	// Try number
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexibleString(n.String())
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into FlexibleString", string(data))
}

func (f FlexibleString) String() string {
	return string(f)
}

// PaperpileEntry represents a single entry from a Paperpile JSON export.
type PaperpileEntry struct {
	ID        string         `json:"_id"`
	Citekey   string         `json:"citekey"`
	DOI       string         `json:"doi"`
	PMID      FlexibleString `json:"pmid"`
	Title     string         `json:"title"`
	Journal   string         `json:"journal"`
	ISSN      string         `json:"issn"`
	Volume    FlexibleString `json:"volume"`
	Issue     FlexibleString `json:"issue"`
	Pages     string         `json:"pages"`
	Publisher string         `json:"publisher"`
	Published struct {
		Year  FlexibleString `json:"year"`
		Month FlexibleString `json:"month"`
		Day   FlexibleString `json:"day"`
	} `json:"published"`
	Author []struct {
		First string `json:"first"`
		Last  string `json:"last"`
		ORCID string `json:"orcid"`
	} `json:"author"`
}

// ParsePaperpile parses a Paperpile JSON export into batch rows. Entries
// that cannot become a row are reported and skipped.
func ParsePaperpile(data []byte) ([]reference.Row, []error) {
	var entries []PaperpileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, []error{fmt.Errorf("parsing Paperpile JSON: %w", err)}
	}

	var rows []reference.Row
	var errs []error

	for i, entry := range entries {
		row, err := paperpileEntryToRow(entry)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%s): %w", i+1, entry.Citekey, err))
			continue
		}
		rows = append(rows, row)
	}

	return rows, errs
}

// paperpileEntryToRow converts a Paperpile entry to a row. Field values are
// copied as they are; the curator normalises them.
func paperpileEntryToRow(entry PaperpileEntry) (reference.Row, error) {
	if entry.Title == "" && entry.DOI == "" {
		return reference.Row{}, fmt.Errorf("entry has neither title nor doi")
	}

	var ids []string
	if entry.DOI != "" {
		ids = append(ids, "doi:"+entry.DOI)
	}
	if pmid := entry.PMID.String(); pmid != "" {
		ids = append(ids, "pmid:"+pmid)
	}

	authors := make([]string, 0, len(entry.Author))
	for _, a := range entry.Author {
		name := a.Last + ", " + a.First
		if a.ORCID != "" {
			name += " [orcid:" + a.ORCID + "]"
		}
		authors = append(authors, name)
	}

	row := reference.Row{
		ID:        strings.Join(ids, " "),
		Title:     entry.Title,
		Author:    strings.Join(authors, "; "),
		PubDate:   paperpileDate(entry.Published.Year, entry.Published.Month, entry.Published.Day),
		Volume:    entry.Volume.String(),
		Issue:     entry.Issue.String(),
		Page:      entry.Pages,
		Publisher: entry.Publisher,
	}
	if entry.Journal != "" {
		row.Venue = entry.Journal
		if entry.ISSN != "" {
			row.Venue += " [issn:" + entry.ISSN + "]"
		}
		row.Type = reference.TypeJournalArticle
	}
	return row, nil
}

// paperpileDate renders year, month and day as an ISO date of the precision
// available. Out of range parts end the date.
func paperpileDate(year, month, day FlexibleString) string {
	y, err := strconv.Atoi(year.String())
	if err != nil || y <= 0 {
		return ""
	}
	date := fmt.Sprintf("%04d", y)
	m, err := strconv.Atoi(month.String())
	if err != nil || m < 1 || m > 12 {
		return date
	}
	date += fmt.Sprintf("-%02d", m)
	d, err := strconv.Atoi(day.String())
	if err != nil || d < 1 || d > 31 {
		return date
	}
	return date + fmt.Sprintf("-%02d", d)
}
