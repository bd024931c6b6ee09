package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roman-kulish/wpt-rig/internal/calibration"
	"github.com/roman-kulish/wpt-rig/internal/chart"
	"github.com/roman-kulish/wpt-rig/internal/measure"
	"github.com/roman-kulish/wpt-rig/internal/record"
	"github.com/roman-kulish/wpt-rig/internal/sweep"
)

const (
	titleOverTime      = "System Measurements Over Time"
	titleOverFrequency = "System Measurements Over Frequency"
	titleForce         = "RX Force vs Time"
)

type monitorMode int

const (
	monitorForce monitorMode = iota
	monitorVoltage
	monitorSweep
)

type monitorOptions struct {
	duration time.Duration
	interval time.Duration
	warmup   time.Duration
	force    bool
	voltage  bool
	sweep    bool
	output   string
	chart    string
	yes      bool
}

func (opts *monitorOptions) mode() monitorMode {
	switch {
	case opts.voltage:
		return monitorVoltage
	case opts.sweep:
		return monitorSweep
	default:
		return monitorForce
	}
}

func newMonitorCommand(s *session) *cobra.Command {
	var opts monitorOptions

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Log the force, the channels or frequency sweeps over time",
		Long: `Runs the rig at the nominal drive frequency for a while and logs one row every
interval: the force only, every measurement, or a full frequency sweep using
the sweep plan of the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd, s, &opts)
		},
	}

	flags := cmd.Flags()
	flags.DurationVarP(&opts.duration, "duration", "t", 5*time.Minute, "how long to run")
	flags.DurationVar(&opts.interval, "interval", 30*time.Second, "wait between rows or sweeps")
	flags.DurationVar(&opts.warmup, "warmup", time.Second, "wait after starting the system, before the first row")
	flags.BoolVarP(&opts.force, "force", "f", false, "log the force from the digital line")
	flags.BoolVarP(&opts.voltage, "voltage", "v", false, "log every measurement of the scope channels")
	flags.BoolVarP(&opts.sweep, "sweep", "s", false, "run a frequency sweep every interval")
	flags.StringVarP(&opts.output, "output", "o", "", "CSV log to append the rows to")
	flags.StringVar(&opts.chart, "chart", "", "PNG file to chart the log to once done")
	flags.BoolVarP(&opts.yes, "yes", "y", false, "do not wait for Enter before starting")

	cmd.MarkFlagsMutuallyExclusive("force", "voltage", "sweep")
	cmd.MarkFlagsOneRequired("force", "voltage", "sweep")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runMonitor(cmd *cobra.Command, s *session, opts *monitorOptions) error {
	o, err := s.orchestrator(cmd)
	if err != nil {
		return err
	}
	defer o.Close()

	ctx := cmd.Context()
	sink := o.Sink(opts.output)
	mode := opts.mode()

	if !opts.yes {
		if ok, err := o.Confirm("Press Enter to start the system and data collection:"); !ok {
			return err
		}
	}

	// start the drive, the first capture only happens after the warmup
	if _, err := o.Acquire(ctx, o.Request(false, true)); err != nil {
		return err
	}
	if err := sleep(ctx, opts.warmup); err != nil {
		return nil
	}

	started := time.Now()
	deadline := started.Add(opts.duration)

	for time.Now().Before(deadline) {
		var err error
		switch mode {
		case monitorForce:
			err = o.monitorForce(ctx, sink, started)
		case monitorVoltage:
			err = o.monitorVoltage(ctx, sink, started)
		case monitorSweep:
			err = o.monitorSweep(ctx, sink, &s.config.Sweep, started)
		}
		if err != nil {
			if interrupted(err) {
				break
			}
			return err
		}

		if err := sleep(ctx, min(opts.interval, time.Until(deadline))); err != nil {
			break
		}
	}

	fmt.Fprintf(o.out, "\n--> Measurement complete. Results saved to %s\n", sink.Path())

	if opts.chart == "" || sink.Rows() == 0 {
		return nil
	}

	return o.chartLog(sink.Path(), opts.chart, mode)
}

func (o *Orchestrator) monitorForce(ctx context.Context, sink *record.CSVSink, started time.Time) error {
	frame, err := o.Acquire(ctx, o.Request(false, true))
	if err != nil {
		return err
	}

	force, err := o.ForceOnly(frame, calibration.ProfileTransient)
	if err != nil {
		return err
	}

	row := record.NewRow(
		record.Seconds(record.ColumnTime, time.Since(started)),
		record.Number(measure.Field{Label: measure.ForceLabel, Quantity: force}.Name(), force.Value))
	if err := sink.Append(row); err != nil {
		return err
	}

	printForce(o.out, frame.Timestamp, force)
	return nil
}

func (o *Orchestrator) monitorVoltage(ctx context.Context, sink *record.CSVSink, started time.Time) error {
	frame, err := o.Acquire(ctx, o.Request(true, true))
	if err != nil {
		return err
	}

	m, err := o.Measure(frame, calibration.ProfileMeasurements)
	if err != nil {
		return err
	}

	row := record.NewRow(record.Seconds(record.ColumnTime, time.Since(started))).WithMeasurements(m)
	if err := sink.Append(row); err != nil {
		return err
	}

	if m.Force != nil {
		printForce(o.out, frame.Timestamp, *m.Force)
	}
	return nil
}

func (o *Orchestrator) monitorSweep(ctx context.Context, sink *record.CSVSink, plan *sweep.Plan, started time.Time) error {
	offset := time.Since(started)

	return o.Runner(calibration.ProfileMeasurements).Run(ctx, *plan, func(step sweep.Step) error {
		row := record.NewRow(
			record.Seconds(record.ColumnStartTime, offset),
			record.Number(record.ColumnDrivingFrequency, step.Frequency)).WithMeasurements(step.Measurements)
		if err := sink.Append(row); err != nil {
			return err
		}

		o.logger.Info("sweep step",
			slog.String("frequency", humanize.SIWithDigits(step.Frequency, 1, "Hz")),
			slog.String("txVoltageRMS", formatQuantity(step.Measurements.TXVoltageRMS)))
		return nil
	})
}

// chartLog charts a CSV log written by one of the monitoring modes
func (o *Orchestrator) chartLog(logPath, chartPath string, mode monitorMode) error {
	t, err := record.ReadTable(logPath)
	if err != nil {
		return err
	}

	var c *chart.Chart
	switch mode {
	case monitorForce:
		c, err = chart.FromTable(t, titleForce, record.ColumnTime, chart.Columns(t.Header))
		if c != nil {
			c.Points = true
		}
	case monitorVoltage:
		c, err = chart.FromTable(t, titleOverTime, record.ColumnTime, chart.Columns(t.Header))
	case monitorSweep:
		c, err = chart.FromTable(t, titleOverFrequency, record.ColumnDrivingFrequency, chart.Columns(t.Header))
		if c != nil {
			c.Points = true
		}
	}
	if err != nil {
		return err
	}

	return o.saveChart(c, chartPath)
}

func (o *Orchestrator) saveChart(c *chart.Chart, path string) error {
	path = o.Path(path)
	if err := createDir(path); err != nil {
		return err
	}
	if err := c.Save(path, chart.DefaultWidth, chart.DefaultHeight); err != nil {
		return fmt.Errorf("error saving chart: %w", err)
	}

	o.logger.Info("chart saved", slog.String("path", path))
	return nil
}
