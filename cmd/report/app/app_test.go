package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/wpt-rig/internal/chart"
	"github.com/roman-kulish/wpt-rig/internal/record"
)

func execute(t *testing.T, args ...string) (string, *slog.LevelVar, error) {
	t.Helper()

	var level slog.LevelVar
	cmd := NewRootCommand(slog.New(slog.NewTextHandler(io.Discard, nil)), &level)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), &level, err
}

// rxExport returns a scope export whose supply average is supply volts
func rxExport(supply float64) string {
	var sb strings.Builder
	sb.WriteString("#Digilent WaveForms Oscilloscope Measurements\nChannel,Name,Value\n")
	fmt.Fprintf(&sb, "C1,Average,%g V\n", supply)
	for i := 1; i < 12; i++ {
		fmt.Fprintf(&sb, "C%d,M%d,%d mV\n", i%4+1, i, i*100)
	}
	return sb.String()
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "rx_05V.csv"), rxExport(5))
	writeFile(t, filepath.Join(dir, "rx_10V.csv"), rxExport(10))
	extra := writeFile(t, filepath.Join(dir, "rx_15V.meas.txt"), rxExport(15))
	output := filepath.Join(dir, "out", "merged.csv")

	out, _, err := execute(t, "merge", "-o", output, "-i", filepath.Join(dir, "*.csv"), extra)
	require.NoError(t, err)
	assert.Equal(t, "Merged CSV saved to "+output+"\n", out)

	table, err := record.ReadTable(output)
	require.NoError(t, err)
	assert.Equal(t, 13, len(table.Header))
	assert.Equal(t, record.ColumnFileName, table.Header[0])
	require.Equal(t, 3, table.Len())
	assert.Equal(t, "rx_05V", table.Records[0][0])
	assert.Equal(t, "rx_15V", table.Records[2][0])

	supply, err := table.Column("Power Supply Avg (V)")
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 10, 15}, supply)

	current, err := table.Column("TX Current (A)")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, current[0], 1e-12)

	// merging again replaces the output
	_, _, err = execute(t, "merge", "-o", output, "-i", filepath.Join(dir, "rx_05V.csv"))
	require.NoError(t, err)
	table, err = record.ReadTable(output)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())

	_, _, err = execute(t, "merge", "--append", "-o", output, "-i", filepath.Join(dir, "rx_10V.csv"))
	require.NoError(t, err)
	table, err = record.ReadTable(output)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
}

func TestMerge_DC(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, filepath.Join(dir, "probe.csv"), `#WaveForms
Name,Value
Supply,12 V
a,0
b,0
c,0
d,0
e,0
f,0
Probe,1.5 A
Resistor,1490 mA
Theory,1.5 A
`)
	output := filepath.Join(dir, "dc.csv")

	_, _, err := execute(t, "merge", "--profile", "dc", "-i", input, "-o", output)
	require.NoError(t, err)

	table, err := record.ReadTable(output)
	require.NoError(t, err)
	assert.Equal(t, []string{record.ColumnFileName, "Power Supply (V)", "Current Probe (A)", "Resistor Meas. (A)", "Theoretical (A)"}, table.Header)

	resistor, err := table.Column("Resistor Meas. (A)")
	require.NoError(t, err)
	assert.InDelta(t, 1.49, resistor[0], 1e-12)

	// the rx profile needs twelve rows
	_, _, err = execute(t, "merge", "--append", "-i", input, "-o", output)
	assert.ErrorContains(t, err, "out of range")
}

func TestMerge_Errors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := execute(t, "merge", "-o", filepath.Join(dir, "out.csv"), "-i", filepath.Join(dir, "*.csv"))
	assert.ErrorContains(t, err, "no input files")

	_, _, err = execute(t, "merge", "--profile", "ac", "-o", filepath.Join(dir, "out.csv"), "-i", "x.csv")
	assert.ErrorContains(t, err, "unknown merge profile")

	_, _, err = execute(t, "merge", "-i", "x.csv")
	assert.ErrorContains(t, err, `"output"`)
}

func writeLog(t *testing.T, path string, rows ...record.Row) {
	t.Helper()
	require.NoError(t, record.NewCSVSink(path).Append(rows...))
}

func TestPlot(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "monitor.csv")

	var rows []record.Row
	for i := range 5 {
		rows = append(rows, record.NewRow(
			record.Number(record.ColumnTime, float64(i)*30),
			record.Number("RX Voltage RMS (V)", 10+float64(i)),
			record.Number("RX Force (N)", 2+float64(i)/10)))
	}
	writeLog(t, input, rows...)

	output := filepath.Join(dir, "charts", "monitor.png")
	out, _, err := execute(t, "plot", "-i", input, "-o", output)
	require.NoError(t, err)
	assert.Contains(t, out, "Chart saved to "+output)
	assert.FileExists(t, output)
}

func TestPlot_Sweep(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "sweep.csv")

	writeLog(t, input,
		record.NewRow(record.Number(record.ColumnStartTime, 0), record.Number(record.ColumnDrivingFrequency, 116e3), record.Number("TX Current Peak-to-Peak (A)", 1)),
		record.NewRow(record.Number(record.ColumnStartTime, 0), record.Number(record.ColumnDrivingFrequency, 117e3), record.Number("TX Current Peak-to-Peak (A)", 2)))

	output := filepath.Join(dir, "sweep.png")
	_, _, err := execute(t, "plot", "-i", input, "-o", output, "--kind", "sweep", "--title", "Bench")
	require.NoError(t, err)
	assert.FileExists(t, output)

	// a time chart of a sweep log falls back to the sweep start time
	output = filepath.Join(dir, "start.png")
	_, _, err = execute(t, "plot", "-i", input, "-o", output)
	require.NoError(t, err)
	assert.FileExists(t, output)
}

func TestPlot_Errors(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "log.csv")
	writeLog(t, input, record.NewRow(record.Number(record.ColumnTime, 0), record.Number("Other (V)", 1)))

	_, _, err := execute(t, "plot", "-i", input, "-o", filepath.Join(dir, "a.png"), "--kind", "polar")
	assert.ErrorContains(t, err, `invalid kind "polar"`)

	_, _, err = execute(t, "plot", "-i", input, "-o", filepath.Join(dir, "a.png"))
	assert.ErrorIs(t, err, chart.ErrNoData)

	_, _, err = execute(t, "plot", "-i", input, "-o", filepath.Join(dir, "a.png"), "--kind", "sweep")
	assert.ErrorContains(t, err, "not found")

	_, _, err = execute(t, "plot", "-i", filepath.Join(dir, "missing.csv"), "-o", filepath.Join(dir, "a.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLogLevel(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, filepath.Join(dir, "a.csv"), rxExport(5))

	_, level, err := execute(t, "--log-level", "debug", "merge", "-i", input, "-o", filepath.Join(dir, "out.csv"))
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level.Level())

	_, _, err = execute(t, "--log-level", "chatty", "merge", "-i", input, "-o", filepath.Join(dir, "out.csv"))
	assert.ErrorContains(t, err, "log level")
}
