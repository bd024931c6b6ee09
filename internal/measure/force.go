package measure

import (
	"fmt"
)

const (
	// StandardGravity in m/s²
	StandardGravity = 9.81

	// MaxForceLine is the highest bit index a digital sample can carry
	MaxForceLine = 31

	ForceLabel = "RX Force"
)

// ForceProfile converts the duty cycle of the force line into a force.
// The load cell firmware encodes mass as a PWM duty cycle and Scale is the
// number of grams per duty percent:
//
//	force [N] = duty% × Scale × 1e-3 × 9.81
//
// The result is expressed in Unit (N or mN).
type ForceProfile struct {
	Name  string  `yaml:"name" json:"name"`
	Scale float64 `yaml:"scale" json:"scale"`
	Unit  Unit    `yaml:"unit" json:"unit"`
}

// Validate checks the profile can produce a force value
func (p *ForceProfile) Validate() error {
	if p.Scale <= 0 {
		return fmt.Errorf("%w: force profile %q: scale must be positive: %g", ErrInvalidInput, p.Name, p.Scale)
	}
	switch p.Unit {
	case Newton, MilliN:
	default:
		return fmt.Errorf("%w: force profile %q: unsupported unit %q", ErrInvalidInput, p.Name, p.Unit)
	}
	return nil
}

// DutyCycle returns the percentage of samples in which bit line is set.
func DutyCycle(samples []uint32, line int) (float64, error) {
	if len(samples) == 0 {
		return 0, fmt.Errorf("%w: no digital samples", ErrInvalidInput)
	}
	if line < 0 || line > MaxForceLine {
		return 0, fmt.Errorf("%w: force line %d out of range 0..%d", ErrInvalidInput, line, MaxForceLine)
	}

	var ones int
	for _, s := range samples {
		ones += int((s >> uint(line)) & 1)
	}

	return float64(ones) / float64(len(samples)) * 100, nil
}

// Force converts a duty cycle (percent) to a force using the profile
func Force(duty float64, profile ForceProfile) Quantity {
	newtons := duty * profile.Scale * 1e-3 * StandardGravity

	if profile.Unit == MilliN {
		return Quantity{Value: newtons * 1e3, Unit: MilliN}
	}
	return Quantity{Value: newtons, Unit: Newton}
}
