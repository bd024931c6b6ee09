package export

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/roman-kulish/wpt-rig/internal/record"
)

const (
	// ProfileRX merges the supply, TX and RX channel measurements
	ProfileRX = "rx"

	// ProfileDC merges the current probe calibration measurements
	ProfileDC = "dc"
)

// Field maps a row of the export to a column of the merged log
type Field struct {
	Row    int
	Column string
}

// Profile selects the rows of an export that make up a merged row
type Profile struct {
	Name   string
	Source string  // Export column holding the values, empty for the last one
	Fields []Field // In merged column order
}

var profiles = map[string]Profile{
	ProfileRX: {
		Name: ProfileRX,
		Fields: []Field{
			{0, "Power Supply Avg (V)"},
			{6, "Power Supply Max (V)"},
			{7, "Power Supply Min (V)"},
			{1, "TX Current (A)"},
			{8, "TX Current Freq (Hz)"},
			{2, "TX Amplitude (V)"},
			{3, "TX Frequency (Hz)"},
			{5, "RX Average (V)"},
			{11, "RX RMS (V)"},
			{9, "RX Max (V)"},
			{10, "RX Min (V)"},
			{4, "RX Frequency (Hz)"},
		},
	},
	ProfileDC: {
		Name:   ProfileDC,
		Source: ColumnValue,
		Fields: []Field{
			{0, "Power Supply (V)"},
			{7, "Current Probe (A)"},
			{8, "Resistor Meas. (A)"},
			{9, "Theoretical (A)"},
		},
	},
}

// Lookup returns the named profile
func Lookup(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// Names returns the defined profile names
func Names() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Row builds the merged row of one export
func (p Profile) Row(name string, e *Export) (record.Row, error) {
	row := record.NewRow(record.Text(record.ColumnFileName, name))

	for _, f := range p.Fields {
		v, err := e.Value(f.Row, p.Source)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Column, err)
		}
		row = row.With(record.Number(f.Column, v))
	}
	return row, nil
}

// Merge reads every export and returns one row per file, in input order
func (p Profile) Merge(paths []string, logger *slog.Logger) ([]record.Row, error) {
	rows := make([]record.Row, 0, len(paths))

	for _, path := range paths {
		e, err := ReadFile(path)
		if err != nil {
			return nil, err
		}

		row, err := p.Row(FileName(path), e)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		rows = append(rows, row)

		logger.Debug("export merged", slog.String("path", path), slog.Int("rows", e.Len()))
	}
	return rows, nil
}
