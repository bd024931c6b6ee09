// Package export reads the measurement tables saved by the scope software
// and merges them into one log row per file.
//
// An export is a comma separated table preceded by "#" comment lines:
//
//	#Digilent WaveForms Oscilloscope Measurements
//	#Device Name: Discovery2
//	Channel,Name,Value
//	C1,Average,23.97 V
//	C2,RMS,1.412 A
//
// Values carry their unit, optionally with an SI prefix.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

// ColumnValue is the header of the value column
const ColumnValue = "Value"

var (
	// ErrNoInput is returned when the input patterns match no file
	ErrNoInput = errors.New("no input files")

	// ErrUnknownProfile is returned for a profile name that is not defined
	ErrUnknownProfile = errors.New("unknown merge profile")
)

// Export is a measurement table loaded into memory
type Export struct {
	Header  []string
	Records [][]string
}

// Read parses an export. Comment lines are skipped and the first remaining
// record is the header.
func Read(r io.Reader) (*Export, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading export: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("error reading export: no header")
	}

	return &Export{Header: records[0], Records: records[1:]}, nil
}

// ReadFile parses the export at path
func ReadFile(path string) (*Export, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening export: %w", err)
	}
	defer f.Close()

	e, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return e, nil
}

// Len returns the number of rows of the export
func (e *Export) Len() int {
	return len(e.Records)
}

// Value returns the number in the given row of column. An empty column
// selects the last cell of the row.
func (e *Export) Value(row int, column string) (float64, error) {
	if row < 0 || row >= len(e.Records) {
		return 0, fmt.Errorf("row %d out of range, export has %d rows", row, len(e.Records))
	}
	rec := e.Records[row]

	idx := len(rec) - 1
	if column != "" {
		idx = slices.Index(e.Header, column)
		if idx < 0 {
			return 0, fmt.Errorf("column %q not found", column)
		}
	}
	if idx < 0 || idx >= len(rec) {
		return 0, fmt.Errorf("row %d has no %q cell", row, column)
	}

	v, err := ParseValue(rec[idx])
	if err != nil {
		return 0, fmt.Errorf("row %d: %w", row, err)
	}
	return v, nil
}

// ParseValue parses "<number> <unit>" and applies the SI prefix of the unit,
// e.g. "12.5 mV" is 0.0125 and "117.1 kHz" is 117100. A single letter unit
// is never read as a prefix.
func ParseValue(s string) (float64, error) {
	number, unit, _ := strings.Cut(strings.TrimSpace(s), " ")

	v, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}

	unit = strings.TrimSpace(unit)
	if utf8.RuneCountInString(unit) < 2 {
		return v, nil
	}
	if strings.HasPrefix(unit, "u") {
		unit = "µ" + unit[1:]
	}

	scale, _, err := humanize.ParseSI("1 " + unit)
	if err != nil {
		return 0, fmt.Errorf("invalid unit %q: %w", unit, err)
	}
	return v * scale, nil
}

// FileName returns the base name of path up to its first dot
func FileName(path string) string {
	name, _, _ := strings.Cut(filepath.Base(path), ".")
	return name
}

// Expand returns the files matched by the glob patterns, in pattern order.
// A pattern without glob characters names a file directly.
func Expand(patterns []string) ([]string, error) {
	var paths []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		paths = append(paths, matches...)
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoInput, patterns)
	}
	return paths, nil
}
