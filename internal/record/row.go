package record

import (
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/roman-kulish/wpt-rig/internal/measure"
)

// Common context columns
const (
	ColumnTime             = "Time (s)"
	ColumnStartTime        = "Start Time (s)"
	ColumnDrivingFrequency = "Driving Frequency (Hz)"
	ColumnFileName         = "File Name"
)

// Field is a single named cell of a log row
type Field struct {
	Name  string
	Value float64
	Text  string // Written instead of Value when set
}

// Number returns a numeric field
func Number(name string, v float64) Field {
	return Field{Name: name, Value: v}
}

// Text returns a text field
func Text(name, s string) Field {
	return Field{Name: name, Text: s}
}

// Seconds returns a time column holding d in seconds
func Seconds(name string, d time.Duration) Field {
	return Field{Name: name, Value: d.Seconds()}
}

// Format returns the cell as written to a CSV file. NaN is an empty cell.
func (f Field) Format() string {
	if f.Text != "" {
		return f.Text
	}
	if math.IsNaN(f.Value) {
		return ""
	}
	return strconv.FormatFloat(f.Value, 'f', -1, 64)
}

// Row is an ordered list of fields. The order of the fields is the order of
// the columns in the log.
type Row []Field

// NewRow starts a row with the given context fields
func NewRow(fields ...Field) Row {
	return append(Row(nil), fields...)
}

// With returns a copy of the row extended with fields
func (r Row) With(fields ...Field) Row {
	return append(slices.Clip(r), fields...)
}

// WithMeasurements returns the row extended with every measured field
func (r Row) WithMeasurements(m *measure.Measurements) Row {
	out := slices.Clip(r)
	for _, f := range m.Fields() {
		out = append(out, Number(f.Name(), f.Quantity.Value))
	}
	return out
}

// Header returns the column names
func (r Row) Header() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// Values returns the formatted cells
func (r Row) Values() []string {
	values := make([]string, len(r))
	for i, f := range r {
		values[i] = f.Format()
	}
	return values
}

// Get returns the value of the named field
func (r Row) Get(name string) (float64, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return math.NaN(), false
}
