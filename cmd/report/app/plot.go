package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/wpt-rig/internal/chart"
	"github.com/roman-kulish/wpt-rig/internal/record"
)

const (
	kindTime  = "time"
	kindSweep = "sweep"
)

type plotOptions struct {
	input   string
	output  string
	kind    string
	title   string
	x       string
	columns []string
}

func newPlotCommand(logger *slog.Logger) *cobra.Command {
	var opts plotOptions

	cmd := &cobra.Command{
		Use:   "plot -i <log.csv> -o <chart.png>",
		Short: "Chart a rig log",
		Long: `Charts the force, the RX voltage and the TX swings of a rig log against time
or against the drive frequency. Columns missing from the log are left out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlot(cmd, logger, &opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.input, "input", "i", "", "CSV log written by the rig")
	flags.StringVarP(&opts.output, "output", "o", "", "PNG file to write")
	flags.StringVarP(&opts.kind, "kind", "k", kindTime, "x axis: time or sweep")
	flags.StringVar(&opts.title, "title", "", "chart title (default: by kind)")
	flags.StringVarP(&opts.x, "x", "x", "", "x column (default: by kind)")
	flags.StringSliceVarP(&opts.columns, "column", "c", nil, "columns to chart (default: force, RX voltage and TX swings)")

	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runPlot(cmd *cobra.Command, logger *slog.Logger, opts *plotOptions) error {
	var x, title string
	var points bool
	switch opts.kind {
	case kindTime:
		x, title = record.ColumnTime, "System Measurements Over Time"
	case kindSweep:
		x, title, points = record.ColumnDrivingFrequency, "System Measurements Over Frequency", true
	default:
		return fmt.Errorf("invalid kind %q: expected %s or %s", opts.kind, kindTime, kindSweep)
	}
	if opts.x != "" {
		x = opts.x
	}
	if opts.title != "" {
		title = opts.title
	}

	t, err := record.ReadTable(opts.input)
	if err != nil {
		return err
	}

	// monitor sweeps log the start of every sweep instead
	if x == record.ColumnTime && !t.Has(x) && t.Has(record.ColumnStartTime) {
		x = record.ColumnStartTime
	}

	columns := opts.columns
	if len(columns) == 0 {
		columns = chart.Columns(t.Header)
	}

	c, err := chart.FromTable(t, title, x, columns)
	if err != nil {
		return err
	}
	c.Points = points

	if err := createDir(opts.output); err != nil {
		return err
	}
	if err := c.Save(opts.output, chart.DefaultWidth, chart.DefaultHeight); err != nil {
		return fmt.Errorf("error saving chart: %w", err)
	}

	logger.Info("chart saved", slog.String("path", opts.output), slog.Int("panels", len(c.Panels)), slog.Int("rows", t.Len()))
	fmt.Fprintf(cmd.OutOrStdout(), "Chart saved to %s\n", opts.output)
	return nil
}
