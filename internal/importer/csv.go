package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/matsen/bibmeta/internal/reference"
	"github.com/matsen/bibmeta/internal/storage"
)

var (
	// ErrNoHeader is returned for CSV input without a header row.
	ErrNoHeader = errors.New("csv input has no header row")
	// ErrUnsupportedFormat is returned by Load for unknown file extensions.
	ErrUnsupportedFormat = errors.New("unsupported batch format (want .csv, .jsonl or .json)")
)

// ParseCSV reads a batch from CSV. The first record is the header; columns
// are matched to row fields by name, case-insensitively, and unknown columns
// are ignored.
func ParseCSV(r io.Reader) ([]reference.Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	cols := make([]reference.Column, len(header))
	known := false
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for _, c := range reference.Columns {
			if string(c) == name {
				cols[i] = c
				known = true
			}
		}
	}
	if !known {
		return nil, ErrNoHeader
	}

	var rows []reference.Row
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		var row reference.Row
		empty := true
		for i, v := range record {
			if i >= len(cols) || cols[i] == "" {
				continue
			}
			if strings.TrimSpace(v) != "" {
				empty = false
			}
			row.Set(cols[i], v)
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// Load reads a batch file, choosing the format by extension: .csv, .jsonl
// (one row per line) or .json (a Paperpile export). Paperpile entries that
// cannot be converted are returned as warnings.
func Load(path string) ([]reference.Row, []error, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening batch: %w", err)
		}
		defer f.Close()
		rows, err := ParseCSV(f)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		return rows, nil, nil

	case ".jsonl":
		rows, err := storage.ReadRows(path)
		return rows, nil, err

	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("reading batch: %w", err)
		}
		rows, warnings := ParsePaperpile(data)
		if rows == nil && len(warnings) > 0 {
			return nil, nil, warnings[0]
		}
		return rows, warnings, nil
	}
	return nil, nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
}
