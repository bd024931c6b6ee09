package record

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/wpt-rig/internal/measure"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestCSVSink_Append(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "force.csv")
	s := NewCSVSink(path)

	require.NoError(t, s.Append(NewRow(Number(ColumnTime, 0), Number("RX Force (N)", 0.5))))
	require.NoError(t, s.Append(NewRow(Number(ColumnTime, 0.25), Number("RX Force (N)", math.NaN()))))

	assert.Equal(t, "Time (s),RX Force (N)\n0,0.5\n0.25,\n", readFile(t, path))
	assert.Equal(t, 2, s.Rows())
	assert.Equal(t, path, s.Path())
}

func TestCSVSink_AppendsToExistingLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "force.csv")
	require.NoError(t, NewCSVSink(path).Append(NewRow(Number(ColumnTime, 1))))

	// a second run appends without repeating the header
	require.NoError(t, NewCSVSink(path).Append(NewRow(Number(ColumnTime, 2)), NewRow(Number(ColumnTime, 3))))

	assert.Equal(t, "Time (s)\n1\n2\n3\n", readFile(t, path))
}

func TestCSVSink_HeaderMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "force.csv")
	require.NoError(t, NewCSVSink(path).Append(NewRow(Number(ColumnTime, 1))))

	err := NewCSVSink(path).Append(NewRow(Number(ColumnStartTime, 1)))
	assert.ErrorIs(t, err, ErrHeaderMismatch)

	s := NewCSVSink(filepath.Join(t.TempDir(), "other.csv"))
	require.NoError(t, s.Append(NewRow(Number("a", 1))))
	assert.ErrorIs(t, s.Append(NewRow(Number("b", 1))), ErrHeaderMismatch)
	assert.ErrorIs(t, s.Append(NewRow(Number("a", 1)), NewRow(Number("b", 1))), ErrHeaderMismatch)

	assert.Equal(t, "Time (s)\n1\n", readFile(t, path))
}

func TestCSVSink_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	require.NoError(t, NewCSVSink(path).Append(NewRow(Text(ColumnFileName, "a, b"), Number("x", 1e-5))))
	assert.Equal(t, "File Name,x\n\"a, b\",0.00001\n", readFile(t, path))
}

func TestRow_WithMeasurements(t *testing.T) {
	m := &measure.Measurements{
		TXCurrentFrequency: measure.Quantity{Value: math.NaN(), Unit: measure.Hertz},
		Force:              &measure.Quantity{Value: 4.905, Unit: measure.Newton},
	}

	base := NewRow(Number(ColumnDrivingFrequency, 117000))
	row := base.WithMeasurements(m)
	other := base.With(Number(ColumnTime, 1))

	header := row.Header()
	require.Len(t, header, 17)
	assert.Equal(t, "Driving Frequency (Hz)", header[0])
	assert.Equal(t, "Power Supply Average (V)", header[1])
	assert.Equal(t, "RX Force (N)", header[16])

	// extending a shared base row does not clobber the other extension
	assert.Equal(t, []string{"Driving Frequency (Hz)", "Time (s)"}, other.Header())
	assert.Len(t, base, 1)

	v, ok := row.Get("TX Current Frequency (Hz)")
	assert.True(t, ok)
	assert.True(t, math.IsNaN(v))
	assert.Equal(t, "", row.Values()[7])

	_, ok = row.Get("Nope")
	assert.False(t, ok)

	assert.Len(t, NewRow().WithMeasurements(&measure.Measurements{}), 15)
}

func TestReadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	s := NewCSVSink(path)
	require.NoError(t, s.Append(
		NewRow(Number(ColumnTime, 0), Number("RX Force (mN)", 12.5)),
		NewRow(Number(ColumnTime, 0.5), Number("RX Force (mN)", math.NaN())),
	))

	table, err := ReadTable(path)
	require.NoError(t, err)

	assert.Equal(t, 2, table.Len())
	assert.True(t, table.Has(ColumnTime))
	assert.False(t, table.Has(ColumnDrivingFrequency))

	times, err := table.Column(ColumnTime)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5}, times)

	force, err := table.Column("RX Force (mN)")
	require.NoError(t, err)
	assert.Equal(t, 12.5, force[0])
	assert.True(t, math.IsNaN(force[1]))

	_, err = table.Column("missing")
	assert.Error(t, err)
}

func TestReadTable_Errors(t *testing.T) {
	_, err := ReadTable(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	_, err = parseTable(strings.NewReader(""))
	assert.Error(t, err)

	table, err := parseTable(strings.NewReader("a,b\n1,x\n"))
	require.NoError(t, err)
	_, err = table.Column("b")
	assert.Error(t, err)
}
