// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package biblio reads the upstream bibliographic dump. CSV and Parquet
// inputs are supported; both yield types.Record values with normalized
// DOIs where one can be recovered.
package biblio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/pdiddy/chondro/internal/doi"
	"github.com/pdiddy/chondro/pkg/types"
)

// RequiredColumns must appear in a CSV header.
var RequiredColumns = []string{"literature_id", "year", "authors", "title", "journal", "doi", "pdf_url"}

// ErrMissingColumn is returned when the CSV header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// Read loads records from path, choosing the format by extension.
// Records repeating an earlier literature_id are dropped.
func Read(path string) ([]types.Record, error) {
	var (
		recs []types.Record
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		recs, err = readParquet(path)
	default:
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("opening %s: %w", path, openErr)
		}
		defer f.Close()
		recs, err = ReadCSV(f)
	}
	if err != nil {
		return nil, err
	}
	return dedupe(recs), nil
}

// ReadCSV parses a CSV dump with a header row.
func ReadCSV(r io.Reader) ([]types.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, name := range RequiredColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	field := func(row []string, name string) string {
		i := col[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var recs []types.Record
	line := 1
	for {
		row, err := cr.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", line, err)
		}
		rec := types.Record{
			LiteratureID: field(row, "literature_id"),
			Year:         ParseYear(field(row, "year")),
			Authors:      field(row, "authors"),
			Title:        field(row, "title"),
			Journal:      field(row, "journal"),
			DOI:          field(row, "doi"),
			PDFHint:      field(row, "pdf_url"),
		}
		if rec.LiteratureID == "" {
			slog.Warn("skipping row without literature_id", "line", line)
			continue
		}
		recs = append(recs, clean(rec))
	}
	return recs, nil
}

func readParquet(path string) ([]types.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat parquet file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("opening parquet: %w", err)
	}
	slog.Debug("parquet dump opened", "path", path, "num_rows", pf.NumRows())

	reader := parquet.NewGenericReader[types.Record](pf)
	defer reader.Close()

	var recs []types.Record
	rows := make([]types.Record, 128)
	for {
		n, err := reader.Read(rows)
		for _, rec := range rows[:n] {
			if rec.LiteratureID != "" {
				recs = append(recs, clean(rec))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading parquet rows: %w", err)
		}
	}
	return recs, nil
}

// ParseYear accepts "2012" and the float form "2012.0" that spreadsheet
// exports produce. Anything else is unknown (zero).
func ParseYear(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if y, err := strconv.Atoi(s); err == nil && y > 0 {
		return y
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || f != math.Trunc(f) {
		return 0
	}
	return int(f)
}

// clean normalizes the DOI when possible. An unrecoverable DOI is
// cleared so the hunter treats the record as DOI-less.
func clean(rec types.Record) types.Record {
	if rec.DOI == "" {
		return rec
	}
	d, err := doi.Normalize(rec.DOI)
	if err != nil {
		slog.Debug("dropping unrecoverable doi", "literature_id", rec.LiteratureID, "doi", rec.DOI)
		rec.DOI = ""
		return rec
	}
	rec.DOI = d
	return rec
}

func dedupe(recs []types.Record) []types.Record {
	seen := make(map[string]bool, len(recs))
	out := recs[:0]
	for _, rec := range recs {
		if seen[rec.LiteratureID] {
			slog.Warn("duplicate literature_id", "literature_id", rec.LiteratureID)
			continue
		}
		seen[rec.LiteratureID] = true
		out = append(out, rec)
	}
	return out
}
