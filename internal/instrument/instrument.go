package instrument

import (
	"context"
	"fmt"
	"time"
)

// NumAnalogChannels is the number of scope channels on the rig
const NumAnalogChannels = 4

// Request describes a single acquisition
type Request struct {
	DriveFrequency float64 // Pattern generator clock driving the TX inverter, Hz. Zero keeps the current one.
	Analog         bool    // Capture the four scope channels
	Digital        bool    // Capture the logic analyser
	ForcePin       int     // Logic line the digital capture triggers on

	Settle time.Duration // Wait after programming DriveFrequency, before arming
}

// Frame is the raw (unattenuated) result of one acquisition
type Frame struct {
	Timestamp time.Time

	Analog     [NumAnalogChannels][]float64 // Scope channels, volts at the probe
	SampleRate float64                      // Analog sample rate in Sa/s

	Digital     []uint32 // Bit-packed logic samples
	DigitalRate float64  // Logic sample rate in Sa/s

	Device   string // Instrument type (e.g., "dwf", "simulated")
	DeviceID string // Name or serial number (human-readable)
}

// NumSamples returns the number of samples of the first analog channel
func (f *Frame) NumSamples() int {
	return len(f.Analog[0])
}

// Validate checks the frame holds what the request asked for
func (f *Frame) Validate(req Request) error {
	if req.Analog {
		if f.SampleRate <= 0 {
			return fmt.Errorf("frame: analog sample rate not reported")
		}
		n := len(f.Analog[0])
		if n == 0 {
			return fmt.Errorf("frame: no analog samples")
		}
		for i, ch := range f.Analog {
			if len(ch) != n {
				return fmt.Errorf("frame: channel %d has %d samples, channel 1 has %d", i+1, len(ch), n)
			}
		}
	}
	if req.Digital && len(f.Digital) == 0 {
		return fmt.Errorf("frame: no digital samples")
	}
	return nil
}

// Acquirer is an instrument able to produce frames on request
type Acquirer interface {
	Acquire(ctx context.Context, req Request) (*Frame, error)
	Close() error
}
