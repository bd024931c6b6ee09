package instrument

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// ParseErrorsThreshold defines the number of consecutive parse errors allowed
	ParseErrorsThreshold = 5
)

var (
	// ErrTooManyParseErrors is returned when the number of consecutive parse errors exceeds the threshold
	ErrTooManyParseErrors = errors.New("too many consecutive parse errors")

	// ErrBrokenPipe is returned when there's an error reading from stdout or stderr
	ErrBrokenPipe = errors.New("broken pipe")

	// ErrBusy is returned when an acquisition is requested while another one is running
	ErrBusy = errors.New("acquisition already in progress")
)

// Handler interface defines the methods required for driving an acquisition runtime
type Handler interface {
	Cmd(ctx context.Context, req Request) (*exec.Cmd, error)
	Parse(line string, frame *Frame) error
	Device() string
}

// WithLogger sets the logger for the device
func WithLogger(logger *slog.Logger) func(d *Device) {
	return func(d *Device) {
		d.logger = logger.With(
			slog.String("instrument", d.handler.Device()),
			slog.String("instrumentID", d.deviceID),
		)
	}
}

// WithParseErrorsThreshold sets the threshold for consecutive parse errors
func WithParseErrorsThreshold(threshold uint8) func(d *Device) {
	return func(d *Device) {
		d.parseErrorsThreshold = threshold
	}
}

// Device runs the acquisition runtime of an instrument once per request and
// collects its output into a Frame.
type Device struct {
	deviceID string
	handler  Handler

	isAcquiring atomic.Bool

	parseErrorsThreshold uint8
	logger               *slog.Logger
}

// NewDevice creates a new Device instance with a discard logger
func NewDevice(deviceID string, h Handler, options ...func(d *Device)) *Device {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	d := Device{
		deviceID:             deviceID,
		handler:              h,
		logger:               logger,
		parseErrorsThreshold: ParseErrorsThreshold,
	}

	for _, option := range options {
		option(&d)
	}

	return &d
}

// DeviceID returns the configured instrument name
func (d *Device) DeviceID() string {
	return d.deviceID
}

// Device returns the instrument type
func (d *Device) Device() string {
	return d.handler.Device()
}

// Acquire runs one acquisition and returns the parsed frame
func (d *Device) Acquire(ctx context.Context, req Request) (*Frame, error) {
	if !d.isAcquiring.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer d.isAcquiring.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd, err := d.handler.Cmd(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("error creating command: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stderr pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting command: %w", err)
	}

	d.logger.Debug("acquiring...", slog.Float64("driveFrequency", req.DriveFrequency))

	frame := Frame{
		Device:   d.handler.Device(),
		DeviceID: d.deviceID,
	}

	done := make(chan error, 2) // stdout and stderr readers

	go d.handleStdout(stdout, &frame, done)
	go d.handleStderr(stderr, done)

	var errs []error
	for i := 0; i < cap(done); i++ {
		if err := <-done; err != nil {
			cancel() // stop the runtime on error
			errs = append(errs, err)
		}
	}

	// Wait must follow the readers, it closes the pipes
	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		errs = append(errs, fmt.Errorf("command exited with error: %w", err))
	}

	if err := ctx.Err(); err != nil && len(errs) == 0 {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := frame.Validate(req); err != nil {
		return nil, err
	}
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now()
	}

	d.logger.Debug("acquisition complete",
		slog.Int("analogSamples", frame.NumSamples()),
		slog.Int("digitalSamples", len(frame.Digital)))

	return &frame, nil
}

// Close is a no-op, the runtime only lives for the duration of an acquisition
func (d *Device) Close() error {
	return nil
}

// IsAcquiring returns true if an acquisition is running
func (d *Device) IsAcquiring() bool {
	return d.isAcquiring.Load()
}

// handleStdout reads from stdout and parses every line into the frame.
func (d *Device) handleStdout(stdout io.Reader, frame *Frame, done chan<- error) {
	var parseErrors uint8

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if err := d.handler.Parse(line, frame); err != nil {
			parseErrors++
			d.logger.Warn(fmt.Sprintf("error parsing samples: %s", err.Error()), slog.String("line", line))

			if parseErrors >= d.parseErrorsThreshold {
				// drain so the runtime doesn't block on a full pipe
				_, _ = io.Copy(io.Discard, stdout)
				done <- ErrTooManyParseErrors
				return
			}

			continue
		}

		parseErrors = 0 // reset counter
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("%w: error reading stdout: %w", ErrBrokenPipe, err)
		return
	}

	done <- nil
}

// handleStderr reads from stderr and logs it.
func (d *Device) handleStderr(stderr io.Reader, done chan<- error) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		d.logger.Warn(fmt.Sprintf("%s >> %s", d.handler.Device(), line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("%w: error reading stderr: %w", ErrBrokenPipe, err)
		return
	}

	done <- nil
}
