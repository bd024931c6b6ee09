package app

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/roman-kulish/wpt-rig/internal/measure"
)

var (
	faint   = color.New(color.Faint)
	bold    = color.New(color.Bold)
	good    = color.New(color.FgGreen, color.Bold)
	warning = color.New(color.FgYellow)
)

// printMeasurements writes the measurements as a two column table
func printMeasurements(w io.Writer, m *measure.Measurements) error {
	bold.Fprintln(w, "\n--- MEASUREMENT RESULTS ---")

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, f := range m.Fields() {
		fmt.Fprintf(tw, "%s\t%s\n", f.Name(), formatQuantity(f.Quantity))
	}
	if m.DutyCycle != nil {
		fmt.Fprintf(tw, "Force Duty Cycle (%%)\t%.1f %%\n", m.DutyCycle.Value)
	}
	return tw.Flush()
}

// printForce writes the force readout of one capture:
//
//	[15:04:05] Force:  12.34 mN (  1.3g)
func printForce(w io.Writer, ts time.Time, force measure.Quantity) {
	mN := force.Value
	if force.Unit == measure.Newton {
		mN *= 1e3
	}

	value := good
	if math.IsNaN(mN) {
		value = warning
	}

	fmt.Fprintf(w, "%s Force: %s (%s)\n",
		faint.Sprintf("[%s]", ts.Format(time.TimeOnly)),
		value.Sprintf("%6.2f mN", mN),
		value.Sprintf("%5.1fg", mN/measure.StandardGravity))
}

// formatQuantity returns the value with an SI prefix, e.g. "117 kHz"
func formatQuantity(q measure.Quantity) string {
	if !q.IsDefined() {
		return "undefined"
	}

	v, unit := q.Value, q.Unit.String()
	if q.Unit == measure.MilliN {
		v, unit = v*1e-3, measure.Newton.String()
	}
	return humanize.SIWithDigits(v, 3, unit)
}

// createDir makes sure the parent directory of path exists
func createDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory '%s': %w", dir, err)
	}
	return nil
}
