package app

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roman-kulish/wpt-rig/internal/calibration"
	"github.com/roman-kulish/wpt-rig/internal/instrument"
	"github.com/roman-kulish/wpt-rig/internal/position"
	"github.com/roman-kulish/wpt-rig/internal/record"
	"github.com/roman-kulish/wpt-rig/internal/sweep"
)

// Wait after changing the drive frequency before capturing
const sweepSettle = 50 * time.Millisecond

var banner = strings.Repeat("=", 40)

type coordSweepOptions struct {
	axis      string
	r         float64
	theta     float64
	z         float64
	frequency float64 // kHz
	force     bool
	profile   string
	output    string
}

func newCoordSweepCommand(s *session) *cobra.Command {
	var opts coordSweepOptions

	cmd := &cobra.Command{
		Use:   "coord-sweep",
		Short: "Measure the rig at coordinates typed in by the operator",
		Long: `Keeps two coordinates of the RX coil fixed and asks for the third one before
every capture. Every capture appends the coordinates, the drive frequency and
the measurements to the log. Type "q" to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCoordSweep(cmd, s, &opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.axis, "axis", "a", "", "coordinate varied in the measurement: r, theta or z")
	flags.Float64VarP(&opts.r, "r", "r", 0, "fixed r value (mm)")
	flags.Float64VarP(&opts.theta, "theta", "t", 0, "fixed theta value (deg)")
	flags.Float64VarP(&opts.z, "z", "z", 0, "fixed z value (mm)")
	flags.Float64VarP(&opts.frequency, "freq", "f", 0, "drive frequency in kHz (default: the nominal one)")
	flags.BoolVar(&opts.force, "force", false, "include the force from the digital line")
	flags.StringVarP(&opts.profile, "profile", "p", calibration.ProfileMeasurements, "force profile")
	flags.StringVarP(&opts.output, "output", "o", "", "CSV log to append the rows to")

	_ = cmd.MarkFlagRequired("axis")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runCoordSweep(cmd *cobra.Command, s *session, opts *coordSweepOptions) error {
	axis, err := position.ParseAxis(opts.axis)
	if err != nil {
		return err
	}

	o, err := s.orchestrator(cmd)
	if err != nil {
		return err
	}
	defer o.Close()

	req := o.Request(true, opts.force)
	if opts.frequency > 0 {
		req.DriveFrequency = opts.frequency * 1e3
	}

	coords := position.NewCoordinates(opts.r, opts.theta, opts.z)
	sink := o.Sink(opts.output)

	fmt.Fprintln(o.out, banner)
	fmt.Fprintf(o.out, " EXPERIMENT: Sweeping '%s' axis\n", axis)
	fmt.Fprintf(o.out, " Fixed Vars: %s\n", coords.String())
	fmt.Fprintf(o.out, " Frequency: %s\n", humanize.SIWithDigits(req.DriveFrequency, 1, "Hz"))
	fmt.Fprintf(o.out, " Saving to: %s\n", sink.Path())
	fmt.Fprintln(o.out, banner)

	if ok, err := o.Confirm("Press Enter to start the experiment..."); !ok {
		return err
	}

	ctx := cmd.Context()
	for {
		v, err := o.prompt.Next(axis)
		if errors.Is(err, position.ErrQuit) {
			fmt.Fprintln(o.out, "Exiting...")
			return nil
		}
		if err != nil {
			return err
		}

		coords.Set(axis, v)
		fmt.Fprintf(o.out, "--> Gathering data at %s=%g...\n", axis, v)

		frame, err := o.Acquire(ctx, req)
		if err != nil {
			if interrupted(err) {
				fmt.Fprintln(o.out, "Force quit detected. Exiting...")
				return nil
			}
			return err
		}

		m, err := o.Measure(frame, opts.profile)
		if err != nil {
			return err
		}

		row := record.NewRow(coords.Fields()...).
			With(record.Number(record.ColumnDrivingFrequency, req.DriveFrequency)).
			WithMeasurements(m)
		if err := sink.Append(row); err != nil {
			return err
		}
	}
}

type freqSweepOptions struct {
	coordinate string
	start      float64 // kHz
	stop       float64 // kHz
	step       float64 // kHz
	settle     time.Duration
	output     string
}

func newFreqSweepCommand(s *session) *cobra.Command {
	var opts freqSweepOptions

	cmd := &cobra.Command{
		Use:   "freq-sweep",
		Short: "Sweep the drive frequency at coordinates typed in by the operator",
		Long: `Asks for the value of a coordinate of the RX coil, then sweeps the drive
frequency from start to stop and appends a row per frequency to the log.
Type "q" to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFreqSweep(cmd, s, &opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.coordinate, "coord", "c", "", "coordinate varied in the measurement")
	flags.Float64VarP(&opts.start, "start", "s", 0, "start frequency in kHz")
	flags.Float64VarP(&opts.stop, "stop", "e", 0, "stop frequency in kHz")
	flags.Float64VarP(&opts.step, "step", "d", 0.1, "step in kHz")
	flags.DurationVar(&opts.settle, "settle", sweepSettle, "wait after changing the drive frequency")
	flags.StringVarP(&opts.output, "output", "o", "", "CSV log to append the rows to")

	_ = cmd.MarkFlagRequired("coord")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("stop")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runFreqSweep(cmd *cobra.Command, s *session, opts *freqSweepOptions) error {
	plan := sweep.Plan{
		Start:  opts.start * 1e3,
		Stop:   opts.stop * 1e3,
		Step:   opts.step * 1e3,
		Settle: instrument.NewDuration(opts.settle),
	}
	if err := plan.Validate(); err != nil {
		return err
	}

	o, err := s.orchestrator(cmd)
	if err != nil {
		return err
	}
	defer o.Close()

	sink := o.Sink(opts.output)
	column := fmt.Sprintf("%s Coordinate (mm)", opts.coordinate)
	steps := len(plan.Frequencies())

	fmt.Fprintln(o.out, banner)
	fmt.Fprintf(o.out, " EXPERIMENT SETUP: %s SWEEP\n", opts.coordinate)
	fmt.Fprintf(o.out, " Frequency: %s\n", plan.String())
	fmt.Fprintf(o.out, " Steps:     %d points\n", steps)
	fmt.Fprintf(o.out, " Saving to: %s\n", sink.Path())
	fmt.Fprintln(o.out, banner)

	ctx := cmd.Context()
	runner := o.Runner(calibration.ProfileMeasurements)

	for {
		v, err := o.prompt.Value(fmt.Sprintf("Enter %s (mm)", opts.coordinate))
		if errors.Is(err, position.ErrQuit) {
			fmt.Fprintln(o.out, "Exiting...")
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(o.out, "--> Starting frequency sweep for %s = %g mm...\n", opts.coordinate, v)

		err = runner.Run(ctx, plan, func(step sweep.Step) error {
			row := record.NewRow(
				record.Number(column, v),
				record.Number(record.ColumnDrivingFrequency, step.Frequency)).WithMeasurements(step.Measurements)
			if err := sink.Append(row); err != nil {
				return err
			}

			fmt.Fprintf(o.out, "Sweeping %3d/%d | Freq=%.1fk | TX_RMS=%.2fV\n",
				step.Index+1, steps, step.Frequency/1e3, nanToZero(step.Measurements.TXVoltageRMS.Value))
			return nil
		})
		if interrupted(err) {
			fmt.Fprintln(o.out, "Force quit detected. Exiting...")
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(o.out, "--> Sweep complete for %s = %g mm.\n", opts.coordinate, v)
	}
}

func nanToZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
