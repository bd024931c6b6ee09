package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/wpt-rig/internal/calibration"
	"github.com/roman-kulish/wpt-rig/internal/instrument"
	"github.com/roman-kulish/wpt-rig/internal/instrument/dwf"
	"github.com/roman-kulish/wpt-rig/internal/instrument/sim"
	"github.com/roman-kulish/wpt-rig/internal/measure"
	"github.com/roman-kulish/wpt-rig/internal/sweep"
)

const (
	InstrumentDWF       InstrumentType = dwf.Device
	InstrumentSimulated InstrumentType = sim.Device

	DefaultInstrumentName = "bench"
	DefaultForcePin       = 2
	DefaultDriveFrequency = 117e3
	DefaultDataDirectory  = "data"
	DefaultLogLevel       = "info"
)

type InstrumentType string

// Config represents the main application configuration
type Config struct {
	Settings   Settings         `yaml:"settings"`
	Instrument InstrumentConfig `yaml:"instrument"`
	Rig        RigConfig        `yaml:"rig"`
	Sweep      sweep.Plan       `yaml:"sweep"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel      string `yaml:"logLevel"`
	DataDirectory string `yaml:"dataDirectory"` // Relative output paths are resolved against it
}

// InstrumentConfig selects the instrument. Config holds *dwf.Config or
// *sim.Config depending on Type.
type InstrumentConfig struct {
	Name   string         `yaml:"name"`
	Type   InstrumentType `yaml:"type"`
	Config any            `yaml:"config"`
}

// RigConfig describes how the bench is wired
type RigConfig struct {
	ForcePin       int                     `yaml:"forcePin"`       // DIO line of the load cell PWM
	DriveFrequency float64                 `yaml:"driveFrequency"` // Nominal inverter frequency, Hz
	Attenuation    calibration.Attenuation `yaml:"attenuation"`
	Profiles       []measure.ForceProfile  `yaml:"profiles"` // Added to, or replacing, the built-in profiles
}

// DefaultConfig returns the configuration of the bench as it is wired by default
func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{
			LogLevel:      DefaultLogLevel,
			DataDirectory: DefaultDataDirectory,
		},
		Instrument: InstrumentConfig{
			Name:   DefaultInstrumentName,
			Type:   InstrumentDWF,
			Config: &dwf.Config{},
		},
		Rig: RigConfig{
			ForcePin:       DefaultForcePin,
			DriveFrequency: DefaultDriveFrequency,
			Attenuation:    calibration.DefaultAttenuation(),
		},
		Sweep: sweep.Plan{
			Start:  115e3,
			Stop:   120e3,
			Step:   100,
			Settle: instrument.NewDuration(sweepSettle),
		},
	}
}

// LoadConfig reads a YAML configuration file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading configuration file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses a YAML configuration on top of the defaults
func ParseConfig(data []byte) (*Config, error) {
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("error parsing configuration: %w", err)
	}

	c.Rig.Attenuation.SetDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Config) Validate() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Settings.LogLevel)); err != nil {
		return fmt.Errorf("settings.logLevel: %w", err)
	}
	if err := c.Instrument.Validate(); err != nil {
		return err
	}
	if err := c.Rig.Validate(); err != nil {
		return err
	}
	if err := c.Sweep.Validate(); err != nil {
		return err
	}
	return nil
}

func (c *RigConfig) Validate() error {
	if c.ForcePin < 0 || c.ForcePin > measure.MaxForceLine {
		return fmt.Errorf("rig.forcePin: must be between 0 and %d: %d", measure.MaxForceLine, c.ForcePin)
	}
	if c.DriveFrequency <= 0 {
		return fmt.Errorf("rig.driveFrequency: must be positive: %g", c.DriveFrequency)
	}
	if err := c.Attenuation.Validate(); err != nil {
		return fmt.Errorf("rig.%w", err)
	}
	for i := range c.Profiles {
		if c.Profiles[i].Name == "" {
			return fmt.Errorf("rig.profiles[%d]: name is required", i)
		}
		if err := c.Profiles[i].Validate(); err != nil {
			return fmt.Errorf("rig.profiles[%d]: %w", i, err)
		}
	}
	return nil
}

// ForceProfiles returns the built-in profiles merged with the configured ones
func (c *RigConfig) ForceProfiles() (calibration.Profiles, error) {
	profiles := calibration.DefaultProfiles()
	if err := profiles.Register(c.Profiles...); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (c *InstrumentConfig) Validate() error {
	if c.Name == "" {
		return errors.New("instrument.name: is required")
	}

	switch cfg := c.Config.(type) {
	case *dwf.Config:
		v := *cfg
		v.SetDefaults()
		return v.Validate()
	case *sim.Config:
		v := *cfg
		v.SetDefaults()
		return v.Validate()
	default:
		return fmt.Errorf("instrument.type: unknown type '%s'", c.Type)
	}
}

// UnmarshalYAML decodes the config node into the typed configuration of the
// instrument type.
func (c *InstrumentConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Name   string         `yaml:"name"`
		Type   InstrumentType `yaml:"type"`
		Config yaml.Node      `yaml:"config"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Name != "" {
		c.Name = raw.Name
	}
	if raw.Type != "" {
		c.Type = InstrumentType(strings.ToLower(string(raw.Type)))
	}

	var cfg any
	switch c.Type {
	case InstrumentDWF:
		cfg = &dwf.Config{}
	case InstrumentSimulated:
		cfg = &sim.Config{}
	default:
		return fmt.Errorf("instrument.type: unknown type '%s'", c.Type)
	}

	if !raw.Config.IsZero() {
		if err := raw.Config.Decode(cfg); err != nil {
			return fmt.Errorf("instrument.config: %w", err)
		}
	}

	c.Config = cfg
	return nil
}
