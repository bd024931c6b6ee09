// Package sim implements a synthetic rig: a series-resonant TX coil driven by
// an inverter, a rectified RX coil and a load cell amplifier producing a PWM
// force line. It lets the tools run without hardware attached.
package sim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/roman-kulish/wpt-rig/internal/instrument"
	"github.com/roman-kulish/wpt-rig/internal/instrument/driver"
)

const (
	Device = "simulated"

	DefaultSampleRate        = 2e7
	DefaultBufferSize        = 1000
	DefaultLogicSampleRate   = 1e6
	DefaultLogicBufferSize   = 2000
	DefaultResonantFrequency = 117e3
	DefaultQualityFactor     = 20
	DefaultSupply            = 2.4  // 24 V behind a x10 probe
	DefaultTXCurrent         = 0.1  // 2 A peak through a 50 mV/A probe
	DefaultTXVoltage         = 0.05 // 25 V peak behind a x500 probe
	DefaultRXVoltage         = 1.2  // 12 V peak behind a x10 probe
	DefaultDuty              = 0.25
	DefaultForceFrequency    = 1e3
	DefaultNoise             = 1e-4
	DefaultSeed              = 1
)

// Config describes the simulated rig. Levels are probe voltages, i.e. before
// attenuation is applied.
type Config struct {
	SampleRate      float64 `yaml:"sampleRate" json:"sampleRate"`
	BufferSize      int     `yaml:"bufferSize" json:"bufferSize"`
	LogicSampleRate float64 `yaml:"logicSampleRate" json:"logicSampleRate"`
	LogicBufferSize int     `yaml:"logicBufferSize" json:"logicBufferSize"`

	ResonantFrequency float64 `yaml:"resonantFrequency" json:"resonantFrequency"` // Hz
	QualityFactor     float64 `yaml:"qualityFactor" json:"qualityFactor"`

	Supply    float64 `yaml:"supply" json:"supply"`       // DC level, V
	TXCurrent float64 `yaml:"txCurrent" json:"txCurrent"` // Peak at resonance, V
	TXVoltage float64 `yaml:"txVoltage" json:"txVoltage"` // Peak, V
	RXVoltage float64 `yaml:"rxVoltage" json:"rxVoltage"` // Rectified peak at resonance, V

	Duty           float64 `yaml:"duty" json:"duty"`                     // Force line duty cycle, 0..1
	ForceFrequency float64 `yaml:"forceFrequency" json:"forceFrequency"` // Force PWM frequency, Hz

	Noise float64 `yaml:"noise" json:"noise"` // Gaussian noise standard deviation, V. Negative disables noise.
	Seed  uint64  `yaml:"seed" json:"seed"`

	Latency instrument.Duration `yaml:"latency" json:"latency"` // Simulated acquisition time
}

// SetDefaults fills zero values with a rig tuned to 117 kHz
func (c *Config) SetDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.LogicSampleRate == 0 {
		c.LogicSampleRate = DefaultLogicSampleRate
	}
	if c.LogicBufferSize == 0 {
		c.LogicBufferSize = DefaultLogicBufferSize
	}
	if c.ResonantFrequency == 0 {
		c.ResonantFrequency = DefaultResonantFrequency
	}
	if c.QualityFactor == 0 {
		c.QualityFactor = DefaultQualityFactor
	}
	if c.Supply == 0 {
		c.Supply = DefaultSupply
	}
	if c.TXCurrent == 0 {
		c.TXCurrent = DefaultTXCurrent
	}
	if c.TXVoltage == 0 {
		c.TXVoltage = DefaultTXVoltage
	}
	if c.RXVoltage == 0 {
		c.RXVoltage = DefaultRXVoltage
	}
	if c.Duty == 0 {
		c.Duty = DefaultDuty
	}
	if c.ForceFrequency == 0 {
		c.ForceFrequency = DefaultForceFrequency
	}
	if c.Noise == 0 {
		c.Noise = DefaultNoise
	}
	if c.Seed == 0 {
		c.Seed = DefaultSeed
	}
}

func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return driver.NewConfigError("sim.Config.sampleRate", fmt.Sprintf("must be positive: %g", c.SampleRate))
	}
	if c.BufferSize < 2 {
		return driver.NewConfigError("sim.Config.bufferSize", fmt.Sprintf("must be at least 2: %d", c.BufferSize))
	}
	if c.LogicSampleRate <= 0 {
		return driver.NewConfigError("sim.Config.logicSampleRate", fmt.Sprintf("must be positive: %g", c.LogicSampleRate))
	}
	if c.LogicBufferSize < 1 {
		return driver.NewConfigError("sim.Config.logicBufferSize", fmt.Sprintf("must be positive: %d", c.LogicBufferSize))
	}
	if c.ResonantFrequency <= 0 {
		return driver.NewConfigError("sim.Config.resonantFrequency", fmt.Sprintf("must be positive: %g", c.ResonantFrequency))
	}
	if c.QualityFactor <= 0 {
		return driver.NewConfigError("sim.Config.qualityFactor", fmt.Sprintf("must be positive: %g", c.QualityFactor))
	}
	if c.Duty < 0 || c.Duty > 1 {
		return driver.NewConfigError("sim.Config.duty", fmt.Sprintf("must be between 0 and 1: %g", c.Duty))
	}
	if c.ForceFrequency <= 0 || c.ForceFrequency > c.LogicSampleRate/2 {
		return driver.NewConfigError("sim.Config.forceFrequency", fmt.Sprintf("must be positive and below half the logic rate: %g", c.ForceFrequency))
	}
	if err := c.Latency.Validate(); err != nil {
		return driver.NewConfigError("sim.Config.latency", err.Error())
	}
	return nil
}

// WithLogger sets the logger for the simulated instrument
func WithLogger(logger *slog.Logger) func(r *Rig) {
	return func(r *Rig) {
		r.logger = logger.With(
			slog.String("instrument", Device),
			slog.String("instrumentID", r.deviceID),
		)
	}
}

// Rig is a simulated instrument implementing instrument.Acquirer. Frames are
// reproducible for a given seed and request sequence.
type Rig struct {
	deviceID string
	config   Config

	mu    sync.Mutex
	rng   *rand.Rand
	drive float64 // Current pattern generator frequency

	logger *slog.Logger
}

// New creates a simulated rig driven at its resonant frequency
func New(deviceID string, config *Config, options ...func(r *Rig)) (*Rig, error) {
	c := *config
	c.SetDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	r := Rig{
		deviceID: deviceID,
		config:   c,
		rng:      rand.New(rand.NewPCG(c.Seed, c.Seed^0x9e3779b97f4a7c15)),
		drive:    c.ResonantFrequency,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&r)
	}

	return &r, nil
}

// Acquire synthesises one frame at the requested drive frequency
func (r *Rig) Acquire(ctx context.Context, req instrument.Request) (*instrument.Frame, error) {
	if !req.Analog && !req.Digital {
		return nil, driver.NewConfigError("sim.Request", "nothing to acquire")
	}
	if req.Digital && (req.ForcePin < 0 || req.ForcePin > 31) {
		return nil, driver.NewConfigError("sim.Request.forcePin", fmt.Sprintf("must be between 0 and 31: %d", req.ForcePin))
	}

	wait := r.config.Latency.Std()
	if req.DriveFrequency > 0 {
		wait += req.Settle
	}

	if wait > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if req.DriveFrequency > 0 {
		r.drive = req.DriveFrequency
	}

	frame := instrument.Frame{
		Timestamp: time.Now(),
		Device:    Device,
		DeviceID:  r.deviceID,
	}

	if req.Analog {
		r.analog(&frame)
	}
	if req.Digital {
		r.digital(&frame, req.ForcePin)
	}

	r.logger.Debug("acquisition complete",
		slog.Float64("driveFrequency", r.drive),
		slog.Float64("response", r.Response(r.drive)))

	return &frame, nil
}

// Response returns the normalised amplitude response of the TX tank at f,
// 1 at resonance.
func (r *Rig) Response(f float64) float64 {
	f0 := r.config.ResonantFrequency
	detune := f/f0 - f0/f
	return 1 / math.Sqrt(1+r.config.QualityFactor*r.config.QualityFactor*detune*detune)
}

// DriveFrequency returns the frequency the rig is currently driven at
func (r *Rig) DriveFrequency() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drive
}

func (r *Rig) Close() error {
	return nil
}

func (r *Rig) analog(frame *instrument.Frame) {
	c := r.config
	n := c.BufferSize
	gain := r.Response(r.drive)
	omega := 2 * math.Pi * r.drive

	for ch := range frame.Analog {
		frame.Analog[ch] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		t := float64(i) / c.SampleRate
		phase := omega * t

		frame.Analog[0][i] = c.Supply + r.noise()
		frame.Analog[1][i] = c.TXCurrent*gain*math.Sin(phase-math.Pi/4) + r.noise()
		frame.Analog[2][i] = c.TXVoltage*math.Sin(phase) + r.noise()
		frame.Analog[3][i] = c.RXVoltage*gain*math.Abs(math.Sin(phase)) + r.noise()
	}

	frame.SampleRate = c.SampleRate
}

func (r *Rig) digital(frame *instrument.Frame, pin int) {
	c := r.config
	period := int(math.Round(c.LogicSampleRate / c.ForceFrequency))
	high := int(math.Round(c.Duty * float64(period)))
	bit := uint32(1) << uint(pin)

	frame.Digital = make([]uint32, c.LogicBufferSize)
	for i := range frame.Digital {
		if i%period < high {
			frame.Digital[i] = bit
		}
	}

	frame.DigitalRate = c.LogicSampleRate
}

func (r *Rig) noise() float64 {
	if r.config.Noise <= 0 {
		return 0
	}
	return r.rng.NormFloat64() * r.config.Noise
}
