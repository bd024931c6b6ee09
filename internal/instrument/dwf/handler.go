package dwf

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/roman-kulish/wpt-rig/internal/instrument"
	"github.com/roman-kulish/wpt-rig/internal/instrument/driver"
)

const (
	Runtime = "dwfcapture"
	Device  = "dwf"
)

// handler struct represents a WaveForms device driven through `dwfcapture`
type handler struct {
	binPath string
	config  Config
}

// New creates a new WaveForms handler
func New(config *Config) (instrument.Handler, error) {
	c := *config
	c.SetDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	binPath, err := driver.FindRuntime(c.Runtime)
	if err != nil {
		return nil, fmt.Errorf("error finding runtime: %w", err)
	}

	return &handler{binPath, c}, nil
}

// Cmd returns an exec.Cmd acquiring a single frame
func (h handler) Cmd(ctx context.Context, req instrument.Request) (*exec.Cmd, error) {
	args, err := h.config.Args(req)
	if err != nil {
		return nil, err
	}
	return exec.CommandContext(ctx, h.binPath, args...), nil
}

// Parse parses a line of `dwfcapture` output into the frame:
//
//	R,<analog rate>,<digital rate>
//	T,<RFC 3339 trigger time>
//	A,<index>,<ch1>,<ch2>,<ch3>,<ch4>
//	D,<index>,<logic word>
func (h handler) Parse(line string, frame *instrument.Frame) error {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	switch fields[0] {
	case "R":
		return parseRates(fields, frame)
	case "T":
		return parseTimestamp(fields, frame)
	case "A":
		return parseAnalog(fields, frame)
	case "D":
		return parseDigital(fields, frame)
	default:
		return fmt.Errorf("unknown record type %q", fields[0])
	}
}

// Device returns the device type
func (h handler) Device() string {
	return Device
}

func parseRates(fields []string, frame *instrument.Frame) error {
	if len(fields) != 3 {
		return fmt.Errorf("invalid rate record: expected 3 fields, got %d", len(fields))
	}

	var err error
	if frame.SampleRate, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return fmt.Errorf("invalid analog sample rate: %w", err)
	}
	if frame.DigitalRate, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return fmt.Errorf("invalid digital sample rate: %w", err)
	}
	return nil
}

func parseTimestamp(fields []string, frame *instrument.Frame) error {
	if len(fields) != 2 {
		return fmt.Errorf("invalid timestamp record: expected 2 fields, got %d", len(fields))
	}

	ts, err := time.Parse(time.RFC3339Nano, fields[1])
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}

	frame.Timestamp = ts
	return nil
}

func parseAnalog(fields []string, frame *instrument.Frame) error {
	if len(fields) != 2+instrument.NumAnalogChannels {
		return fmt.Errorf("invalid analog record: expected %d fields, got %d", 2+instrument.NumAnalogChannels, len(fields))
	}

	if err := checkIndex(fields[1], len(frame.Analog[0])); err != nil {
		return err
	}

	var values [instrument.NumAnalogChannels]float64
	for ch := range values {
		v, err := strconv.ParseFloat(fields[2+ch], 64)
		if err != nil {
			return fmt.Errorf("invalid channel %d value: %w", ch+1, err)
		}
		values[ch] = v
	}

	// append only once the whole record parsed, channels stay aligned
	for ch, v := range values {
		frame.Analog[ch] = append(frame.Analog[ch], v)
	}
	return nil
}

func parseDigital(fields []string, frame *instrument.Frame) error {
	if len(fields) != 3 {
		return fmt.Errorf("invalid digital record: expected 3 fields, got %d", len(fields))
	}

	if err := checkIndex(fields[1], len(frame.Digital)); err != nil {
		return err
	}

	word, err := strconv.ParseUint(fields[2], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid logic word: %w", err)
	}

	frame.Digital = append(frame.Digital, uint32(word))
	return nil
}

func checkIndex(field string, want int) error {
	idx, err := strconv.Atoi(field)
	if err != nil {
		return fmt.Errorf("invalid sample index: %w", err)
	}
	if idx != want {
		return fmt.Errorf("sample %d out of sequence, expected %d", idx, want)
	}
	return nil
}
