// Package calibration holds the probe constants of the rig and the force
// profiles of the load cell. Both are applied by the caller before a capture
// reaches the measurement engine.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/roman-kulish/wpt-rig/internal/instrument"
	"github.com/roman-kulish/wpt-rig/internal/measure"
)

const (
	// ProfileMeasurements is used by timed and swept measurement runs
	ProfileMeasurements = "measurements"

	// ProfileTransient is used by the force-only monitor, 50 g at full duty
	ProfileTransient = "transient"
)

// ErrUnknownProfile is returned when a force profile is not registered
var ErrUnknownProfile = errors.New("unknown force profile")

// Attenuation is the factor each scope channel is multiplied by to get the
// quantity at the probe tip.
type Attenuation struct {
	Supply    float64 `yaml:"supply" json:"supply"`       // x10 probe
	TXCurrent float64 `yaml:"txCurrent" json:"txCurrent"` // 50 mV/A current probe
	TXVoltage float64 `yaml:"txVoltage" json:"txVoltage"` // x500 differential probe
	RXVoltage float64 `yaml:"rxVoltage" json:"rxVoltage"` // x10 probe
}

// DefaultAttenuation returns the probe setup of the bench
func DefaultAttenuation() Attenuation {
	return Attenuation{
		Supply:    10,
		TXCurrent: 20,
		TXVoltage: 500,
		RXVoltage: 10,
	}
}

// SetDefaults replaces zero factors with the bench defaults
func (a *Attenuation) SetDefaults() {
	d := DefaultAttenuation()
	if a.Supply == 0 {
		a.Supply = d.Supply
	}
	if a.TXCurrent == 0 {
		a.TXCurrent = d.TXCurrent
	}
	if a.TXVoltage == 0 {
		a.TXVoltage = d.TXVoltage
	}
	if a.RXVoltage == 0 {
		a.RXVoltage = d.RXVoltage
	}
}

func (a *Attenuation) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"supply", a.Supply},
		{"txCurrent", a.TXCurrent},
		{"txVoltage", a.TXVoltage},
		{"rxVoltage", a.RXVoltage},
	} {
		if f.value <= 0 || math.IsInf(f.value, 0) || math.IsNaN(f.value) {
			return fmt.Errorf("attenuation.%s: must be positive and finite: %g", f.name, f.value)
		}
	}
	return nil
}

// Apply scales a raw frame into a capture. The frame is left untouched.
func (a *Attenuation) Apply(frame *instrument.Frame, forceLine *int) measure.Capture {
	c := measure.Capture{
		Supply:     scale(frame.Analog[0], a.Supply),
		TXCurrent:  scale(frame.Analog[1], a.TXCurrent),
		TXVoltage:  scale(frame.Analog[2], a.TXVoltage),
		RXVoltage:  scale(frame.Analog[3], a.RXVoltage),
		SampleRate: frame.SampleRate,
	}

	if len(frame.Digital) > 0 && forceLine != nil {
		line := *forceLine
		c.Digital = slices.Clone(frame.Digital)
		c.ForceLine = &line
	}

	return c
}

func scale(samples []float64, factor float64) []float64 {
	if samples == nil {
		return nil
	}

	out := make([]float64, len(samples))
	for i, v := range samples {
		out[i] = v * factor
	}
	return out
}

// Profiles is a registry of force profiles by name
type Profiles map[string]measure.ForceProfile

// DefaultProfiles returns the two load cell profiles of the rig
func DefaultProfiles() Profiles {
	return Profiles{
		ProfileMeasurements: {Name: ProfileMeasurements, Scale: 10, Unit: measure.Newton},
		ProfileTransient:    {Name: ProfileTransient, Scale: 0.5, Unit: measure.MilliN},
	}
}

// Register validates and adds profiles, replacing those with the same name
func (p Profiles) Register(profiles ...measure.ForceProfile) error {
	for _, profile := range profiles {
		if profile.Name == "" {
			return fmt.Errorf("force profile: name is required")
		}
		if err := profile.Validate(); err != nil {
			return err
		}
		p[profile.Name] = profile
	}
	return nil
}

// Lookup returns the named profile
func (p Profiles) Lookup(name string) (measure.ForceProfile, error) {
	profile, ok := p[name]
	if !ok {
		return measure.ForceProfile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return profile, nil
}

// Names returns the registered profile names in sorted order
func (p Profiles) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
