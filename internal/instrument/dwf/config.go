package dwf

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roman-kulish/wpt-rig/internal/instrument"
	"github.com/roman-kulish/wpt-rig/internal/instrument/driver"
)

const (
	DefaultSampleRate      = 2e7
	DefaultBufferSize      = 1000
	DefaultRange           = 10.0
	DefaultLogicSampleRate = 1e6
	DefaultForceFrequency  = 1e3
	DefaultForcePeriods    = 2
	DefaultEnablePin       = 1

	MaxBufferSize      = 8192
	MaxLogicBufferSize = 16384

	// TriggerAuto is the default trigger mode
	TriggerAuto   TriggerMode = "auto"
	TriggerNormal TriggerMode = "normal"
	TriggerNone   TriggerMode = "none"

	// EdgeRising is the default logic trigger edge
	EdgeRising  Edge = "rising"
	EdgeFalling Edge = "falling"
)

var (
	validTriggerModes = map[TriggerMode]struct{}{
		TriggerAuto:   {},
		TriggerNormal: {},
		TriggerNone:   {},
	}

	validEdges = map[Edge]struct{}{
		EdgeRising:  {},
		EdgeFalling: {},
	}
)

type TriggerMode string

func (t TriggerMode) String() string {
	return string(t)
}

type Edge string

func (e Edge) String() string {
	return string(e)
}

/*
Example: 117 kHz drive, four channels at 20 MSa/s, force line on DIO 2
    dwfConfig := dwf.Config{
        SampleRate: 20_000_000,
        BufferSize: 1000,
        Range:      10,
    }
    // Executes: dwfcapture -d 0 -clock 117000 -clock-pin 0 -enable 1
    //           -analog -rate 2e+07 -samples 1000 -range 10 -offset 0 -trigger auto -trigger-channel 0
    //           -digital -logic-rate 1e+06 -logic-samples 2000 -trigger-pin 2 -edge rising
*/

// Config is the `dwfcapture` runtime configuration. The runtime wraps the
// WaveForms SDK: it programs the pattern generator, arms the scope and the
// logic analyser, and prints the captured samples on stdout.
type Config struct {
	Runtime     string `yaml:"runtime" json:"runtime"`         // Binary name or path (default: dwfcapture)
	DeviceIndex int    `yaml:"deviceIndex" json:"deviceIndex"` // -d device index (default: 0)

	// Scope
	SampleRate     float64     `yaml:"sampleRate" json:"sampleRate"`         // -rate Sa/s (default: 20 MSa/s)
	BufferSize     int         `yaml:"bufferSize" json:"bufferSize"`         // -samples per channel (default: 1000)
	Range          float64     `yaml:"range" json:"range"`                   // -range input range in volts (default: 10)
	Offset         float64     `yaml:"offset" json:"offset"`                 // -offset in volts (default: 0)
	Trigger        TriggerMode `yaml:"trigger" json:"trigger"`               // -trigger [auto|normal|none]
	TriggerChannel int         `yaml:"triggerChannel" json:"triggerChannel"` // -trigger-channel 0..3

	// Logic analyser
	LogicSampleRate float64 `yaml:"logicSampleRate" json:"logicSampleRate"` // -logic-rate Sa/s (default: 1 MSa/s)
	LogicBufferSize int     `yaml:"logicBufferSize" json:"logicBufferSize"` // -logic-samples, derived from the force PWM when 0
	ForceFrequency  float64 `yaml:"forceFrequency" json:"forceFrequency"`   // Force PWM frequency in Hz (default: 1 kHz)
	ForcePeriods    int     `yaml:"forcePeriods" json:"forcePeriods"`       // Force PWM periods per capture (default: 2)
	ForceEdge       Edge    `yaml:"forceEdge" json:"forceEdge"`             // -edge [rising|falling]

	// Pattern generator
	ClockPin  int `yaml:"clockPin" json:"clockPin"`   // -clock-pin digital output driving the inverter (default: 0)
	EnablePin int `yaml:"enablePin" json:"enablePin"` // -enable DIO holding the driver enabled (default: 1)

	Timeout instrument.Duration `yaml:"timeout" json:"timeout"` // -timeout acquisition timeout (default: runtime's own)
}

// SetDefaults fills zero values with the rig defaults
func (c *Config) SetDefaults() {
	if c.Runtime == "" {
		c.Runtime = Runtime
	}
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.Range == 0 {
		c.Range = DefaultRange
	}
	if c.Trigger == "" {
		c.Trigger = TriggerAuto
	}
	if c.LogicSampleRate == 0 {
		c.LogicSampleRate = DefaultLogicSampleRate
	}
	if c.ForceFrequency == 0 {
		c.ForceFrequency = DefaultForceFrequency
	}
	if c.ForcePeriods == 0 {
		c.ForcePeriods = DefaultForcePeriods
	}
	if c.ForceEdge == "" {
		c.ForceEdge = EdgeRising
	}
	if c.EnablePin == 0 {
		c.EnablePin = DefaultEnablePin
	}
}

// LogicSamples returns the logic analyser buffer size. When not set it
// covers ForcePeriods periods of the force PWM.
func (c *Config) LogicSamples() int {
	if c.LogicBufferSize > 0 {
		return c.LogicBufferSize
	}
	return int(c.LogicSampleRate / c.ForceFrequency * float64(c.ForcePeriods))
}

func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return driver.NewConfigError("dwf.Config.sampleRate", fmt.Sprintf("must be positive: %g", c.SampleRate))
	}
	if c.BufferSize < 2 || c.BufferSize > MaxBufferSize {
		return driver.NewConfigError("dwf.Config.bufferSize", fmt.Sprintf("must be between 2 and %d: %d", MaxBufferSize, c.BufferSize))
	}
	if c.Range <= 0 {
		return driver.NewConfigError("dwf.Config.range", fmt.Sprintf("must be positive: %g", c.Range))
	}
	if _, ok := validTriggerModes[c.Trigger]; !ok {
		return driver.NewConfigError("dwf.Config.trigger", fmt.Sprintf("invalid trigger mode: %s", c.Trigger))
	}
	if c.TriggerChannel < 0 || c.TriggerChannel >= instrument.NumAnalogChannels {
		return driver.NewConfigError("dwf.Config.triggerChannel", fmt.Sprintf("must be between 0 and %d: %d", instrument.NumAnalogChannels-1, c.TriggerChannel))
	}
	if c.LogicSampleRate <= 0 {
		return driver.NewConfigError("dwf.Config.logicSampleRate", fmt.Sprintf("must be positive: %g", c.LogicSampleRate))
	}
	if c.ForceFrequency <= 0 {
		return driver.NewConfigError("dwf.Config.forceFrequency", fmt.Sprintf("must be positive: %g", c.ForceFrequency))
	}
	if c.ForcePeriods <= 0 {
		return driver.NewConfigError("dwf.Config.forcePeriods", fmt.Sprintf("must be positive: %d", c.ForcePeriods))
	}
	if n := c.LogicSamples(); n < 1 || n > MaxLogicBufferSize {
		return driver.NewConfigError("dwf.Config.logicBufferSize", fmt.Sprintf("must be between 1 and %d: %d", MaxLogicBufferSize, n))
	}
	if _, ok := validEdges[c.ForceEdge]; !ok {
		return driver.NewConfigError("dwf.Config.forceEdge", fmt.Sprintf("invalid edge: %s", c.ForceEdge))
	}
	if c.ClockPin < 0 || c.EnablePin < 0 || c.ClockPin == c.EnablePin {
		return driver.NewConfigError("dwf.Config.clockPin", fmt.Sprintf("clock pin %d and enable pin %d must be distinct and non-negative", c.ClockPin, c.EnablePin))
	}
	if err := c.Timeout.Validate(); err != nil {
		return driver.NewConfigError("dwf.Config.timeout", err.Error())
	}

	return nil
}

// Args returns the command line arguments for `dwfcapture` for one request
func (c *Config) Args(req instrument.Request) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if !req.Analog && !req.Digital {
		return nil, driver.NewConfigError("dwf.Request", "nothing to acquire")
	}

	args := []string{"-d", strconv.Itoa(c.DeviceIndex)}

	// Pattern generator
	if req.DriveFrequency > 0 {
		args = append(args,
			"-clock", formatFloat(req.DriveFrequency),
			"-clock-pin", strconv.Itoa(c.ClockPin))

		if req.Settle > 0 {
			args = append(args, "-settle", req.Settle.String())
		}
	}
	args = append(args, "-enable", strconv.Itoa(c.EnablePin))

	if req.Analog {
		args = append(args,
			"-analog",
			"-rate", formatFloat(c.SampleRate),
			"-samples", strconv.Itoa(c.BufferSize),
			"-range", formatFloat(c.Range),
			"-offset", formatFloat(c.Offset),
			"-trigger", c.Trigger.String(),
			"-trigger-channel", strconv.Itoa(c.TriggerChannel))
	}

	if req.Digital {
		if req.ForcePin < 0 || req.ForcePin > 31 {
			return nil, driver.NewConfigError("dwf.Request.forcePin", fmt.Sprintf("must be between 0 and 31: %d", req.ForcePin))
		}

		args = append(args,
			"-digital",
			"-logic-rate", formatFloat(c.LogicSampleRate),
			"-logic-samples", strconv.Itoa(c.LogicSamples()),
			"-trigger-pin", strconv.Itoa(req.ForcePin),
			"-edge", c.ForceEdge.String())
	}

	if c.Timeout > 0 {
		args = append(args, "-timeout", c.Timeout.String())
	}

	return args, nil
}

func (c *Config) String() string {
	args, err := c.Args(instrument.Request{Analog: true})
	if err != nil {
		return fmt.Sprintf("dwf.Config: failed to build args: %s", err)
	}
	return fmt.Sprintf("%s %s", c.Runtime, strings.Join(args, " "))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
