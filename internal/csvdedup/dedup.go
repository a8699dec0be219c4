package csvdedup

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrEmptyCSV is returned when the input file has no header row.
	ErrEmptyCSV = errors.New("csv file is empty or contains no data")

	// ErrColumnNotFound is returned when the requested column is not in the header.
	ErrColumnNotFound = errors.New("column not found")

	// ErrInvalidKeep is returned for a keep policy other than first or last.
	ErrInvalidKeep = errors.New("invalid keep policy")
)

// DefaultColumn is the column deduplication keys on when none is given.
const DefaultColumn = "url"

// maxTopValues caps the repeated-value list in an Analysis.
const maxTopValues = 10

// Keep selects which occurrence of a duplicated value survives.
type Keep string

const (
	// KeepFirst keeps the first row seen for each value.
	KeepFirst Keep = "first"

	// KeepLast keeps the last row seen for each value.
	KeepLast Keep = "last"
)

// Options controls a deduplication run. The zero value selects the url
// column, keeps first occurrences, and derives the output path from the
// input path.
type Options struct {
	// Column is the header name to deduplicate on.
	Column string

	// Keep selects which duplicate survives.
	Keep Keep

	// OutputPath is where the cleaned CSV is written. It may equal the
	// input path to rewrite the file in place. Empty means
	// DefaultOutputPath(input).
	OutputPath string
}

// DefaultOptions returns the options the dedupe command starts from.
func DefaultOptions() Options {
	return Options{
		Column: DefaultColumn,
		Keep:   KeepFirst,
	}
}

// Stats summarizes a completed deduplication run.
type Stats struct {
	// InputPath is the file that was read.
	InputPath string

	// OutputPath is the file the cleaned rows were written to.
	OutputPath string

	// Column is the header name the run deduplicated on.
	Column string

	// OriginalRows counts data rows in the input, header excluded.
	OriginalRows int

	// UniqueRows counts data rows written to the output.
	UniqueRows int

	// RemovedRows counts dropped duplicates.
	RemovedRows int
}

// Reduction returns the share of rows removed as a percentage.
func (s *Stats) Reduction() float64 {
	if s.OriginalRows == 0 {
		return 0
	}
	return float64(s.RemovedRows) / float64(s.OriginalRows) * 100
}

// DefaultOutputPath derives the output path by inserting "_deduplicated"
// before the extension: data/emails.csv becomes data/emails_deduplicated.csv.
func DefaultOutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	return strings.TrimSuffix(inputPath, ext) + "_deduplicated" + ext
}

// Deduplicate reads the CSV at inputPath, drops rows that repeat an earlier
// (or, under KeepLast, a later) value in the configured column, and writes
// the surviving rows to the output path. The header row is always preserved.
func Deduplicate(inputPath string, opts Options) (*Stats, error) {
	if opts.Column == "" {
		opts.Column = DefaultColumn
	}
	if opts.Keep == "" {
		opts.Keep = KeepFirst
	}
	if opts.Keep != KeepFirst && opts.Keep != KeepLast {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKeep, opts.Keep)
	}
	if opts.OutputPath == "" {
		opts.OutputPath = DefaultOutputPath(inputPath)
	}

	header, rows, err := readRows(inputPath)
	if err != nil {
		return nil, err
	}

	idx, err := columnIndex(header, opts.Column)
	if err != nil {
		return nil, err
	}

	kept := dedupeRows(rows, idx, opts.Keep)

	if err := writeRows(opts.OutputPath, header, kept); err != nil {
		return nil, err
	}

	return &Stats{
		InputPath:    inputPath,
		OutputPath:   opts.OutputPath,
		Column:       opts.Column,
		OriginalRows: len(rows),
		UniqueRows:   len(kept),
		RemovedRows:  len(rows) - len(kept),
	}, nil
}

// ValueCount pairs a column value with its occurrence count.
type ValueCount struct {
	Value string
	Count int
}

// Analysis describes the duplicate population of a CSV file.
type Analysis struct {
	// InputPath is the file that was read.
	InputPath string

	// Column is the header name the analysis counted.
	Column string

	// TotalRows counts data rows, header excluded.
	TotalRows int

	// UniqueValues counts distinct values in the column.
	UniqueValues int

	// DuplicateRows counts rows whose value occurs more than once,
	// including the occurrence a deduplication run would keep.
	DuplicateRows int

	// DuplicatedValues counts distinct values that occur more than once.
	DuplicatedValues int

	// TopValues lists the most repeated values, highest count first,
	// capped at ten entries. Ties order by value.
	TopValues []ValueCount
}

// HasDuplicates reports whether the file contains any repeated values.
func (a *Analysis) HasDuplicates() bool {
	return a.DuplicateRows > 0
}

// Analyze counts duplicates in the given column without modifying the file.
// An empty column selects DefaultColumn.
func Analyze(inputPath, column string) (*Analysis, error) {
	if column == "" {
		column = DefaultColumn
	}

	header, rows, err := readRows(inputPath)
	if err != nil {
		return nil, err
	}

	idx, err := columnIndex(header, column)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row[idx]]++
	}

	a := &Analysis{
		InputPath:    inputPath,
		Column:       column,
		TotalRows:    len(rows),
		UniqueValues: len(counts),
	}

	repeated := make([]ValueCount, 0)
	for value, count := range counts {
		if count > 1 {
			a.DuplicateRows += count
			repeated = append(repeated, ValueCount{Value: value, Count: count})
		}
	}
	a.DuplicatedValues = len(repeated)

	sort.Slice(repeated, func(i, j int) bool {
		if repeated[i].Count != repeated[j].Count {
			return repeated[i].Count > repeated[j].Count
		}
		return repeated[i].Value < repeated[j].Value
	})
	if len(repeated) > maxTopValues {
		repeated = repeated[:maxTopValues]
	}
	a.TopValues = repeated

	return a, nil
}

// readRows reads the header and data rows of a CSV file. All rows must have
// the header's field count; the csv reader rejects ragged input.
func readRows(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	r := csv.NewReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, ErrEmptyCSV
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv rows: %w", err)
	}
	return header, rows, nil
}

// columnIndex resolves a header name to its field index.
func columnIndex(header []string, column string) (int, error) {
	for i, name := range header {
		if name == column {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q (available: %s)", ErrColumnNotFound, column, strings.Join(header, ", "))
}

// dedupeRows returns the rows that survive deduplication, in their original
// relative order.
func dedupeRows(rows [][]string, idx int, keep Keep) [][]string {
	if keep == KeepLast {
		last := make(map[string]int, len(rows))
		for i, row := range rows {
			last[row[idx]] = i
		}

		kept := make([][]string, 0, len(last))
		for i, row := range rows {
			if last[row[idx]] == i {
				kept = append(kept, row)
			}
		}
		return kept
	}

	seen := make(map[string]struct{}, len(rows))
	kept := make([][]string, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row[idx]]; ok {
			continue
		}
		seen[row[idx]] = struct{}{}
		kept = append(kept, row)
	}
	return kept
}

// writeRows renders the header and rows to CSV and writes the file in one
// shot, so rewriting the input file in place is safe.
func writeRows(path string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	return nil
}
