package measure

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInvalidInput is returned when a capture cannot be measured
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientData describes a frequency that could not be estimated
	// because the capture holds fewer than two rising zero crossings. It is
	// never returned by Measure; the value is reported as NaN instead.
	ErrInsufficientData = errors.New("insufficient zero crossings")
)

// Capture is one acquisition of the rig, with attenuation already applied.
type Capture struct {
	Supply    []float64 // Channel 1, power supply rail (V)
	TXCurrent []float64 // Channel 2, TX coil current (A)
	TXVoltage []float64 // Channel 3, TX coil voltage (V)
	RXVoltage []float64 // Channel 4, rectified RX coil voltage (V)

	SampleRate float64 // Analog sample rate in Sa/s

	Digital   []uint32 // Optional bit-packed logic analyser samples
	ForceLine *int     // Bit index of the force line within Digital
}

// Measurements is the fixed set of values derived from a Capture
type Measurements struct {
	SupplyAverage Quantity
	SupplyMin     Quantity
	SupplyMax     Quantity

	TXCurrentRMS        Quantity
	TXCurrentPeakToPeak Quantity
	TXCurrentAverage    Quantity
	TXCurrentFrequency  Quantity
	TXVoltageRMS        Quantity
	TXVoltagePeakToPeak Quantity
	TXVoltageAverage    Quantity
	TXVoltageFrequency  Quantity

	RXVoltageAverage Quantity
	RXVoltageRMS     Quantity
	RXCoilMin        Quantity
	RXCoilMax        Quantity

	DutyCycle *Quantity // Force line duty cycle, nil without digital data
	Force     *Quantity // RX force, nil without digital data
}

// Fields returns the measurements in log column order. The force column
// is only present when the capture carried digital samples.
func (m *Measurements) Fields() []Field {
	fields := []Field{
		{"Power Supply Average", m.SupplyAverage},
		{"Power Supply Min", m.SupplyMin},
		{"Power Supply Max", m.SupplyMax},
		{"TX Current RMS", m.TXCurrentRMS},
		{"TX Current Peak-to-Peak", m.TXCurrentPeakToPeak},
		{"TX Current Average", m.TXCurrentAverage},
		{"TX Current Frequency", m.TXCurrentFrequency},
		{"TX Voltage RMS", m.TXVoltageRMS},
		{"TX Voltage Peak-to-Peak", m.TXVoltagePeakToPeak},
		{"TX Voltage Average", m.TXVoltageAverage},
		{"TX Voltage Frequency", m.TXVoltageFrequency},
		{"RX Voltage Average", m.RXVoltageAverage},
		{"RX Voltage RMS", m.RXVoltageRMS},
		{"RX Coil Min", m.RXCoilMin},
		{"RX Coil Max", m.RXCoilMax},
	}

	if f, ok := m.ForceField(); ok {
		fields = append(fields, f)
	}

	return fields
}

// ForceField returns the force column, if the capture carried one
func (m *Measurements) ForceField() (Field, bool) {
	if m.Force == nil {
		return Field{}, false
	}
	return Field{ForceLabel, *m.Force}, true
}

// Undefined returns the column names of values that came out as NaN
func (m *Measurements) Undefined() []string {
	var names []string
	for _, f := range m.Fields() {
		if !f.Quantity.IsDefined() {
			names = append(names, f.Name())
		}
	}
	return names
}

// Measure derives the rig measurements from a capture. The force is only
// computed when the capture carries digital samples, in which case a force
// line and a profile are required.
func Measure(c Capture, force *ForceProfile) (*Measurements, error) {
	if err := validate(c, force); err != nil {
		return nil, err
	}

	var m Measurements

	// Channel 1 - power supply
	m.SupplyAverage = Quantity{stat.Mean(c.Supply, nil), Volt}
	m.SupplyMin = Quantity{floats.Min(c.Supply), Volt}
	m.SupplyMax = Quantity{floats.Max(c.Supply), Volt}

	// Channel 2 - TX current
	rms, pp, avg := acStats(c.TXCurrent)
	m.TXCurrentRMS = Quantity{rms, Ampere}
	m.TXCurrentPeakToPeak = Quantity{pp, Ampere}
	m.TXCurrentAverage = Quantity{avg, Ampere}
	m.TXCurrentFrequency = Quantity{EstimateFrequency(c.TXCurrent, c.SampleRate), Hertz}

	// Channel 3 - TX voltage
	rms, pp, avg = acStats(c.TXVoltage)
	m.TXVoltageRMS = Quantity{rms, Volt}
	m.TXVoltagePeakToPeak = Quantity{pp, Volt}
	m.TXVoltageAverage = Quantity{avg, Volt}
	m.TXVoltageFrequency = Quantity{EstimateFrequency(c.TXVoltage, c.SampleRate), Hertz}

	// Channel 4 - RX voltage. The "RMS" here is sqrt(mean²), which the logs
	// have always carried under this name.
	rxMean := stat.Mean(c.RXVoltage, nil)
	m.RXVoltageAverage = Quantity{rxMean, Volt}
	m.RXVoltageRMS = Quantity{math.Sqrt(rxMean * rxMean), Volt}
	m.RXCoilMin = Quantity{floats.Min(c.RXVoltage), Volt}
	m.RXCoilMax = Quantity{floats.Max(c.RXVoltage), Volt}

	if c.Digital != nil {
		duty, err := DutyCycle(c.Digital, *c.ForceLine)
		if err != nil {
			return nil, err
		}

		f := Force(duty, *force)
		m.DutyCycle = &Quantity{duty, Percent}
		m.Force = &f
	}

	return &m, nil
}

// acStats returns RMS, peak-to-peak and average of a sinusoidal channel.
// RMS is the population standard deviation and peak-to-peak assumes a sine.
func acStats(x []float64) (rms, pp, avg float64) {
	avg = stat.Mean(x, nil)
	rms = stat.PopStdDev(x, nil)
	pp = 2 * math.Sqrt2 * rms
	return
}

func validate(c Capture, force *ForceProfile) error {
	if c.SampleRate <= 0 || math.IsNaN(c.SampleRate) || math.IsInf(c.SampleRate, 0) {
		return fmt.Errorf("%w: sample rate must be positive: %g", ErrInvalidInput, c.SampleRate)
	}

	channels := []struct {
		name string
		data []float64
	}{
		{"supply", c.Supply},
		{"TX current", c.TXCurrent},
		{"TX voltage", c.TXVoltage},
		{"RX voltage", c.RXVoltage},
	}
	for _, ch := range channels {
		if len(ch.data) == 0 {
			return fmt.Errorf("%w: %s channel is empty", ErrInvalidInput, ch.name)
		}
		if len(ch.data) != len(c.Supply) {
			return fmt.Errorf("%w: %s channel has %d samples, supply has %d",
				ErrInvalidInput, ch.name, len(ch.data), len(c.Supply))
		}
	}

	switch {
	case c.Digital == nil && c.ForceLine == nil:
		return nil
	case c.Digital == nil:
		return fmt.Errorf("%w: force line given without digital samples", ErrInvalidInput)
	case c.ForceLine == nil:
		return fmt.Errorf("%w: digital samples given without force line", ErrInvalidInput)
	case len(c.Digital) == 0:
		return fmt.Errorf("%w: no digital samples", ErrInvalidInput)
	case *c.ForceLine < 0 || *c.ForceLine > MaxForceLine:
		return fmt.Errorf("%w: force line %d out of range 0..%d", ErrInvalidInput, *c.ForceLine, MaxForceLine)
	case force == nil:
		return fmt.Errorf("%w: digital samples given without force profile", ErrInvalidInput)
	}

	return force.Validate()
}
