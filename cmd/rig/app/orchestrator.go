package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roman-kulish/wpt-rig/internal/calibration"
	"github.com/roman-kulish/wpt-rig/internal/instrument"
	"github.com/roman-kulish/wpt-rig/internal/instrument/dwf"
	"github.com/roman-kulish/wpt-rig/internal/instrument/sim"
	"github.com/roman-kulish/wpt-rig/internal/measure"
	"github.com/roman-kulish/wpt-rig/internal/position"
	"github.com/roman-kulish/wpt-rig/internal/record"
	"github.com/roman-kulish/wpt-rig/internal/sweep"
)

// WithLogger sets the logger of the orchestrator and of what it creates
func WithLogger(logger *slog.Logger) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithConsole sets where the operator is prompted and results are printed
func WithConsole(in io.Reader, out io.Writer) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.in = in
		o.out = out
	}
}

// WithDataDirectory sets the directory relative output paths are resolved against
func WithDataDirectory(dir string) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.dataDir = dir
	}
}

// Orchestrator ties the instrument to the calibration of the bench: it
// acquires frames, scales them and turns them into measurements and log rows.
type Orchestrator struct {
	acquirer    instrument.Acquirer
	attenuation calibration.Attenuation
	profiles    calibration.Profiles
	forcePin    int
	nominal     float64
	dataDir     string

	logger *slog.Logger
	in     io.Reader
	out    io.Writer
	prompt *position.Prompter
}

// NewOrchestrator creates a new Orchestrator for the acquirer
func NewOrchestrator(acquirer instrument.Acquirer, rig *RigConfig, options ...func(*Orchestrator)) (*Orchestrator, error) {
	if err := rig.Validate(); err != nil {
		return nil, err
	}

	profiles, err := rig.ForceProfiles()
	if err != nil {
		return nil, err
	}

	o := Orchestrator{
		acquirer:    acquirer,
		attenuation: rig.Attenuation,
		profiles:    profiles,
		forcePin:    rig.ForcePin,
		nominal:     rig.DriveFrequency,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		in:          os.Stdin,
		out:         os.Stdout,
	}

	for _, option := range options {
		option(&o)
	}

	o.prompt = position.NewPrompter(o.in, o.out)

	return &o, nil
}

// CreateAcquirer creates the instrument described by config
func CreateAcquirer(config *InstrumentConfig, logger *slog.Logger) (instrument.Acquirer, error) {
	switch cfg := config.Config.(type) {
	case *dwf.Config:
		handler, err := dwf.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating WaveForms device: %w", err)
		}
		return instrument.NewDevice(config.Name, handler, instrument.WithLogger(logger)), nil

	case *sim.Config:
		rig, err := sim.New(config.Name, cfg, sim.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("creating simulated rig: %w", err)
		}
		return rig, nil

	default:
		return nil, fmt.Errorf("creating instrument: unknown type '%s'", config.Type)
	}
}

// Close releases the instrument
func (o *Orchestrator) Close() error {
	return o.acquirer.Close()
}

// Request returns an acquisition at the nominal drive frequency
func (o *Orchestrator) Request(analog, digital bool) instrument.Request {
	return instrument.Request{
		DriveFrequency: o.nominal,
		Analog:         analog,
		Digital:        digital,
		ForcePin:       o.forcePin,
	}
}

// Acquire runs one acquisition
func (o *Orchestrator) Acquire(ctx context.Context, req instrument.Request) (*instrument.Frame, error) {
	frame, err := o.acquirer.Acquire(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("error acquiring: %w", err)
	}
	return frame, nil
}

// Measure scales the frame and measures it. The force, if the frame carries
// digital samples, uses the named profile. Values that could not be
// estimated are logged and kept as NaN.
func (o *Orchestrator) Measure(frame *instrument.Frame, profile string) (*measure.Measurements, error) {
	force, err := o.profiles.Lookup(profile)
	if err != nil {
		return nil, err
	}

	m, err := measure.Measure(o.Scale(frame), &force)
	if err != nil {
		return nil, fmt.Errorf("error measuring: %w", err)
	}

	for _, name := range m.Undefined() {
		o.logger.Warn(measure.ErrInsufficientData.Error(), slog.String("field", name))
	}

	return m, nil
}

// Scale applies the probe attenuation to a frame
func (o *Orchestrator) Scale(frame *instrument.Frame) measure.Capture {
	line := o.forcePin
	return o.attenuation.Apply(frame, &line)
}

// ForceOnly measures the force line of a digital-only frame
func (o *Orchestrator) ForceOnly(frame *instrument.Frame, profile string) (measure.Quantity, error) {
	force, err := o.profiles.Lookup(profile)
	if err != nil {
		return measure.Quantity{}, err
	}

	duty, err := measure.DutyCycle(frame.Digital, o.forcePin)
	if err != nil {
		return measure.Quantity{}, fmt.Errorf("error measuring: %w", err)
	}

	return measure.Force(duty, force), nil
}

// Runner returns a sweep runner that drives the rig back to the nominal
// frequency once done. Steps capture the analog channels only.
func (o *Orchestrator) Runner(profile string) *sweep.Runner {
	measureFunc := func(frame *instrument.Frame) (*measure.Measurements, error) {
		return o.Measure(frame, profile)
	}

	return sweep.NewRunner(o.acquirer, o.Request(true, false), measureFunc,
		sweep.WithLogger(o.logger),
		sweep.WithNominalFrequency(o.nominal))
}

// Confirm waits for the operator to press Enter. It returns false when the
// input ended instead.
func (o *Orchestrator) Confirm(message string) (bool, error) {
	err := o.prompt.Confirm(message)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, position.ErrQuit):
		return false, nil
	default:
		return false, err
	}
}

// Sink returns a CSV sink for path, resolved against the data directory
func (o *Orchestrator) Sink(path string) *record.CSVSink {
	return record.NewCSVSink(o.Path(path), record.WithLogger(o.logger))
}

// Path resolves a relative output path against the data directory
func (o *Orchestrator) Path(path string) string {
	if path == "" || filepath.IsAbs(path) || o.dataDir == "" {
		return path
	}
	return filepath.Join(o.dataDir, path)
}
