package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/matsen/bibmeta/internal/curator"
)

// Output file names inside a batch directory.
const (
	RowsFile        = "rows.jsonl"
	EntitiesFile    = "entities.json"
	ConflictsFile   = "conflicts.json"
	IdentifiersFile = "identifiers.json"
	SequencesFile   = "sequences.json"
	VenuesFile      = "venues.json"
	PagesFile       = "pages.json"
	ResourcesFile   = "resources.json"
	AuditFile       = "audit.json"
)

// WriteOutputs writes a curated batch to dir/<run id>/ and returns that
// directory.
func WriteOutputs(dir string, res *curator.Result) (string, error) {
	out := filepath.Join(dir, res.RunID)
	if err := os.MkdirAll(out, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	if err := WriteRows(filepath.Join(out, RowsFile), res.Rows); err != nil {
		return "", err
	}

	files := []struct {
		name string
		v    any
	}{
		{EntitiesFile, res.Entities},
		{ConflictsFile, res.Conflicts},
		{IdentifiersFile, res.Identifiers},
		{SequencesFile, res.Sequences},
		{VenuesFile, res.Venues},
		{PagesFile, res.Pages},
		{ResourcesFile, res.Resources},
		{AuditFile, res.Audit},
	}
	for _, f := range files {
		if err := WriteJSON(filepath.Join(out, f.name), f.v); err != nil {
			return "", err
		}
	}
	return out, nil
}
