// Package rucfile reads and validates the input id list. A valid RUC is
// exactly 11 digits; anything else in the file is dropped with a count
// reported back to the caller.
package rucfile

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RUCLength is the fixed length of a valid tax id.
const RUCLength = 11

// Read loads RUCs from the first column of a CSV file. It returns the
// valid, de-duplicated ids in file order plus the total rows read.
func Read(path string) ([]string, int, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" && ext != ".txt" {
		return nil, 0, fmt.Errorf("unsupported input format %q: use .csv or .txt", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening input file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, 0, fmt.Errorf("reading input file: %w", err)
	}

	seen := make(map[string]bool)
	valid := make([]string, 0, len(records))
	for _, rec := range records {
		if len(rec) == 0 {
			continue
		}
		ruc := normalize(rec[0])
		if len(ruc) != RUCLength || seen[ruc] {
			continue
		}
		seen[ruc] = true
		valid = append(valid, ruc)
	}

	return valid, len(records), nil
}

// normalize strips everything but digits.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
