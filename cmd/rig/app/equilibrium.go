package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/wpt-rig/internal/calibration"
	"github.com/roman-kulish/wpt-rig/internal/chart"
	"github.com/roman-kulish/wpt-rig/internal/record"
)

// Thermal time constant of the coils
const defaultTau = 120 * time.Second

type equilibriumOptions struct {
	taus     float64
	tau      time.Duration
	interval time.Duration
	buffer   int
	output   string
	chart    string
	yes      bool
}

func newEquilibriumCommand(s *session) *cobra.Command {
	var opts equilibriumOptions

	cmd := &cobra.Command{
		Use:   "equilibrium",
		Short: "Run the rig until it reaches thermal equilibrium",
		Long: `Runs the rig for a number of thermal time constants, measuring every channel
and the force every interval, then charts the force, the RX voltage and the
TX swings over time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEquilibrium(cmd, s, &opts)
		},
	}

	flags := cmd.Flags()
	flags.Float64VarP(&opts.taus, "taus", "t", 5, "number of time constants to run for")
	flags.DurationVar(&opts.tau, "tau", defaultTau, "thermal time constant")
	flags.DurationVar(&opts.interval, "interval", 5*time.Second, "wait between captures")
	flags.IntVar(&opts.buffer, "buffer", 12, "rows held before they are written to the log")
	flags.StringVarP(&opts.output, "output", "o", "", "CSV log to append the rows to")
	flags.StringVar(&opts.chart, "chart", "equilibrium.png", "PNG file to chart the run to, empty to skip")
	flags.BoolVarP(&opts.yes, "yes", "y", false, "do not wait for Enter before starting")

	return cmd
}

func runEquilibrium(cmd *cobra.Command, s *session, opts *equilibriumOptions) error {
	if opts.taus <= 0 || opts.tau <= 0 {
		return fmt.Errorf("run time must be positive: %g x %s", opts.taus, opts.tau)
	}

	history, err := record.NewHistory(opts.buffer, max(opts.buffer/2, 1))
	if err != nil {
		return err
	}

	o, err := s.orchestrator(cmd)
	if err != nil {
		return err
	}
	defer o.Close()

	var sink *record.CSVSink
	if opts.output != "" {
		sink = o.Sink(opts.output)
	}

	var rows []record.Row
	flush := func(entries []*record.Entry) error {
		flushed := record.Rows(entries)
		rows = append(rows, flushed...)
		if sink == nil || len(flushed) == 0 {
			return nil
		}
		return sink.Append(flushed...)
	}

	if !opts.yes {
		if ok, err := o.Confirm("Press Enter to start the system:"); !ok {
			return err
		}
	}

	ctx := cmd.Context()
	runTime := time.Duration(opts.taus * float64(opts.tau))
	started := time.Now()
	deadline := started.Add(runTime)

	o.logger.Info("equilibrium run started", slog.Duration("duration", runTime))

	for time.Now().Before(deadline) {
		frame, err := o.Acquire(ctx, o.Request(true, true))
		if err != nil {
			if interrupted(err) {
				break
			}
			return err
		}

		m, err := o.Measure(frame, calibration.ProfileMeasurements)
		if err != nil {
			return err
		}

		elapsed := time.Since(started)
		row := record.NewRow().WithMeasurements(m).With(record.Seconds(record.ColumnTime, elapsed))
		if err := history.Insert(&record.Entry{Elapsed: elapsed, Row: row}); err != nil {
			return err
		}

		if history.IsFull() {
			if err := flush(history.Flush()); err != nil {
				return err
			}
		}

		if m.Force != nil {
			printForce(o.out, frame.Timestamp, *m.Force)
		}

		if err := sleep(ctx, min(opts.interval, time.Until(deadline))); err != nil {
			break
		}
	}

	if err := flush(history.DrainAll()); err != nil {
		return err
	}

	fmt.Fprintln(o.out, "\n--> Equilibrium state reached.")
	if sink != nil {
		fmt.Fprintf(o.out, "--> Measurements saved to %s\n", sink.Path())
	}

	if opts.chart == "" || len(rows) == 0 {
		return nil
	}

	c := chart.FromRows(rows, titleOverTime, record.ColumnTime, chart.Columns(rows[0].Header()))
	return o.saveChart(c, opts.chart)
}
