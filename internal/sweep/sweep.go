// Package sweep steps the drive frequency of the rig across a range and
// measures the system at every step.
package sweep

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/wpt-rig/internal/instrument"
	"github.com/roman-kulish/wpt-rig/internal/measure"
)

// restoreTimeout bounds the acquisition that puts the nominal drive frequency back
const restoreTimeout = 10 * time.Second

// Plan is a frequency sweep. Frequencies are in Hz.
type Plan struct {
	Start  float64             `yaml:"start" json:"start"`
	Stop   float64             `yaml:"stop" json:"stop"`
	Step   float64             `yaml:"step" json:"step"`
	Settle instrument.Duration `yaml:"settle" json:"settle"` // Wait after changing the drive frequency
}

func (p *Plan) Validate() error {
	if p.Start <= 0 || math.IsInf(p.Start, 0) || math.IsNaN(p.Start) {
		return fmt.Errorf("sweep.start: must be positive: %g", p.Start)
	}
	if p.Stop < p.Start || math.IsInf(p.Stop, 0) || math.IsNaN(p.Stop) {
		return fmt.Errorf("sweep.stop: must not be below start: %g < %g", p.Stop, p.Start)
	}
	if p.Step <= 0 || math.IsNaN(p.Step) {
		return fmt.Errorf("sweep.step: must be positive: %g", p.Step)
	}
	if err := p.Settle.Validate(); err != nil {
		return fmt.Errorf("sweep.settle: %w", err)
	}
	return nil
}

// Frequencies returns the frequencies of the sweep. Like arange(start,
// stop+step, step) the stop frequency is included when the range is a
// whole number of steps.
func (p *Plan) Frequencies() []float64 {
	n := int(math.Ceil((p.Stop + p.Step - p.Start) / p.Step))
	if n <= 0 {
		return nil
	}

	freqs := make([]float64, n)
	for i := range freqs {
		freqs[i] = p.Start + float64(i)*p.Step
	}
	return freqs
}

func (p *Plan) String() string {
	return fmt.Sprintf("%s to %s in %s steps",
		humanize.SIWithDigits(p.Start, 1, "Hz"),
		humanize.SIWithDigits(p.Stop, 1, "Hz"),
		humanize.SIWithDigits(p.Step, 1, "Hz"))
}

// Step is the result of one sweep point
type Step struct {
	Index        int
	Frequency    float64
	Elapsed      time.Duration // Since the start of the sweep
	Frame        *instrument.Frame
	Measurements *measure.Measurements
}

// MeasureFunc turns a raw frame into measurements
type MeasureFunc func(frame *instrument.Frame) (*measure.Measurements, error)

// WithLogger sets the logger for the runner
func WithLogger(logger *slog.Logger) func(r *Runner) {
	return func(r *Runner) {
		r.logger = logger.With(slog.String("component", "sweep"))
	}
}

// WithNominalFrequency makes the runner drive the rig at f once a sweep ends
func WithNominalFrequency(f float64) func(r *Runner) {
	return func(r *Runner) {
		r.nominal = f
	}
}

// Runner executes sweep plans
type Runner struct {
	acquirer instrument.Acquirer
	measure  MeasureFunc
	request  instrument.Request // DriveFrequency and Settle are set per step
	nominal  float64

	logger *slog.Logger
}

// NewRunner creates a runner acquiring with request as template
func NewRunner(acquirer instrument.Acquirer, request instrument.Request, measure MeasureFunc, options ...func(r *Runner)) *Runner {
	r := Runner{
		acquirer: acquirer,
		measure:  measure,
		request:  request,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Run steps through the plan and calls fn with every measured step. It stops
// at the first error, including one returned by fn, and when ctx is done.
func (r *Runner) Run(ctx context.Context, plan Plan, fn func(Step) error) (err error) {
	if err := plan.Validate(); err != nil {
		return err
	}

	if r.nominal > 0 {
		defer func() {
			if rerr := r.restore(ctx); rerr != nil && err == nil {
				err = rerr
			}
		}()
	}

	freqs := plan.Frequencies()
	started := time.Now()

	r.logger.Info("sweep started", slog.String("plan", plan.String()), slog.Int("steps", len(freqs)))

	for i, f := range freqs {
		if err := ctx.Err(); err != nil {
			return err
		}

		req := r.request
		req.DriveFrequency = f
		req.Settle = plan.Settle.Std()

		frame, err := r.acquirer.Acquire(ctx, req)
		if err != nil {
			return fmt.Errorf("error acquiring at %s: %w", humanize.SIWithDigits(f, 1, "Hz"), err)
		}

		m, err := r.measure(frame)
		if err != nil {
			return fmt.Errorf("error measuring at %s: %w", humanize.SIWithDigits(f, 1, "Hz"), err)
		}

		r.logger.Debug("sweep step",
			slog.Int("step", i+1),
			slog.Int("steps", len(freqs)),
			slog.String("frequency", humanize.SIWithDigits(f, 1, "Hz")))

		if err := fn(Step{
			Index:        i,
			Frequency:    f,
			Elapsed:      time.Since(started),
			Frame:        frame,
			Measurements: m,
		}); err != nil {
			return err
		}
	}

	r.logger.Info("sweep complete", slog.Duration("elapsed", time.Since(started)))
	return nil
}

// restore drives the rig back to the nominal frequency, also after the run
// was cancelled.
func (r *Runner) restore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()

	req := r.request
	req.DriveFrequency = r.nominal
	req.Analog = false
	req.Digital = true

	if _, err := r.acquirer.Acquire(ctx, req); err != nil {
		return fmt.Errorf("error restoring drive frequency: %w", err)
	}

	r.logger.Debug("drive frequency restored", slog.String("frequency", humanize.SIWithDigits(r.nominal, 1, "Hz")))
	return nil
}
