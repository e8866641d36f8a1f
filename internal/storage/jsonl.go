// Package storage handles persistence: JSONL row files, batch output
// directories and the SQLite knowledge store.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/matsen/bibmeta/internal/reference"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSONL lines (1MB per line).
const MaxJSONLLineCapacity = 1024 * 1024

// ReadRows reads all rows from a JSONL file.
func ReadRows(path string) ([]reference.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // Missing file reads as no rows
		}
		return nil, fmt.Errorf("opening rows file: %w", err)
	}
	defer f.Close()

	var rows []reference.Row
	scanner := bufio.NewScanner(f)

	buf := make([]byte, MaxJSONLLineCapacity)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var row reference.Row
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("parsing line %d: %w", lineNum, err)
		}
		rows = append(rows, row)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading rows file: %w", err)
	}

	return rows, nil
}

// WriteRows writes rows to a JSONL file, replacing existing content.
func WriteRows(path string, rows []reference.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating rows file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing rows file: %w", err)
	}
	return f.Close()
}

// WriteJSON writes v as indented JSON, replacing existing content.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
