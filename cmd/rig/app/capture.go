package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/wpt-rig/internal/calibration"
	"github.com/roman-kulish/wpt-rig/internal/instrument"
	"github.com/roman-kulish/wpt-rig/internal/measure"
	"github.com/roman-kulish/wpt-rig/internal/record"
	"github.com/roman-kulish/wpt-rig/internal/render"
)

const columnTimestamp = "Timestamp"

type captureOptions struct {
	profile string
	output  string
	image   string
	title   string
	yes     bool
}

func newCaptureCommand(s *session) *cobra.Command {
	var opts captureOptions

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture the scope channels and the force line once",
		Long: `Captures the four scope channels and the force line at the nominal drive
frequency and prints the measurements. The capture can be drawn to a PNG and
the measurements appended to a CSV log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd, s, &opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.profile, "profile", "p", calibration.ProfileMeasurements, "force profile")
	flags.StringVarP(&opts.output, "output", "o", "", "CSV log to append the measurements to")
	flags.StringVarP(&opts.image, "image", "i", "", "PNG file to draw the capture to")
	flags.StringVar(&opts.title, "title", "Scope Capture", "title of the image")
	flags.BoolVarP(&opts.yes, "yes", "y", false, "do not wait for Enter before capturing")

	return cmd
}

func runCapture(cmd *cobra.Command, s *session, opts *captureOptions) error {
	o, err := s.orchestrator(cmd)
	if err != nil {
		return err
	}
	defer o.Close()

	if !opts.yes {
		if ok, err := o.Confirm("Press Enter to start:"); !ok {
			return err
		}
	}

	frame, err := o.Acquire(cmd.Context(), o.Request(true, true))
	if err != nil {
		return err
	}

	m, err := o.Measure(frame, opts.profile)
	if err != nil {
		return err
	}

	if err := printMeasurements(o.out, m); err != nil {
		return err
	}

	if opts.output != "" {
		sink := o.Sink(opts.output)
		row := record.NewRow(record.Text(columnTimestamp, frame.Timestamp.Format(time.RFC3339))).WithMeasurements(m)
		if err := sink.Append(row); err != nil {
			return fmt.Errorf("error saving measurements: %w", err)
		}
		fmt.Fprintf(o.out, "\n--> Measurements appended to %s\n", sink.Path())
	}

	if opts.image != "" {
		path := o.Path(opts.image)
		if err := saveCapture(path, opts.title, o.Scale(frame), frame, m); err != nil {
			return err
		}
		o.logger.Info("capture image saved", slog.String("path", path))
	}

	return nil
}

// saveCapture draws the scaled channels, the force line and a summary of the
// measurements to a PNG file.
func saveCapture(path, title string, c measure.Capture, frame *instrument.Frame, m *measure.Measurements) error {
	rc := render.Capture{
		Title:      title,
		Timestamp:  frame.Timestamp,
		SampleRate: c.SampleRate,
		Traces: []render.Trace{
			{Label: "Power Supply", Unit: "V", Samples: c.Supply},
			{Label: "TX Current", Unit: "A", Samples: c.TXCurrent},
			{Label: "TX Voltage", Unit: "V", Samples: c.TXVoltage},
			{Label: "RX Voltage", Unit: "V", Samples: c.RXVoltage},
		},
	}

	if c.ForceLine != nil {
		rc.Logic = &render.Logic{
			Label:   fmt.Sprintf("Force DIO %d", *c.ForceLine),
			Samples: c.Digital,
			Line:    *c.ForceLine,
			Rate:    frame.DigitalRate,
		}
	}

	for _, q := range []struct {
		label string
		value measure.Quantity
	}{
		{"TX Current RMS", m.TXCurrentRMS},
		{"TX Voltage RMS", m.TXVoltageRMS},
		{"TX Frequency", m.TXVoltageFrequency},
		{"RX Voltage RMS", m.RXVoltageRMS},
	} {
		rc.Notes = append(rc.Notes, fmt.Sprintf("%s: %s", q.label, formatQuantity(q.value)))
	}
	if m.Force != nil {
		rc.Notes = append(rc.Notes, fmt.Sprintf("%s: %s (duty %.1f %%)", measure.ForceLabel, formatQuantity(*m.Force), m.DutyCycle.Value))
	}

	r, err := render.NewRenderer(render.Config{})
	if err != nil {
		return err
	}

	img, err := r.Render(&rc)
	if err != nil {
		return fmt.Errorf("error drawing capture: %w", err)
	}

	if err := createDir(path); err != nil {
		return err
	}
	return render.SavePNG(path, img)
}
