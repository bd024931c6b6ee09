// Package position tracks where the RX coil sits relative to the TX coil in
// cylindrical coordinates.
package position

import (
	"fmt"
	"math"
	"strings"

	"github.com/roman-kulish/wpt-rig/internal/record"
)

const (
	AxisR     Axis = "r"
	AxisTheta Axis = "theta"
	AxisZ     Axis = "z"
)

var axisUnits = map[Axis]string{
	AxisR:     "mm",
	AxisTheta: "deg",
	AxisZ:     "mm",
}

// Axis is one of the cylindrical coordinates of the RX coil
type Axis string

// ParseAxis returns the axis named s (r, theta or z)
func ParseAxis(s string) (Axis, error) {
	a := Axis(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := axisUnits[a]; !ok {
		return "", fmt.Errorf("invalid axis %q: expected r, theta or z", s)
	}
	return a, nil
}

func (a Axis) String() string {
	return string(a)
}

// Unit returns the unit the axis is entered in
func (a Axis) Unit() string {
	return axisUnits[a]
}

// Column returns the log column of the axis, e.g. "theta (deg)"
func (a Axis) Column() string {
	return fmt.Sprintf("%s (%s)", a, a.Unit())
}

// Coordinates is the position of the RX coil. Unset axes are nil.
type Coordinates struct {
	R     *float64 `json:"r,omitempty" yaml:"r,omitempty"`         // Radial offset in mm
	Theta *float64 `json:"theta,omitempty" yaml:"theta,omitempty"` // Angle in degrees
	Z     *float64 `json:"z,omitempty" yaml:"z,omitempty"`         // Axial gap in mm
}

// NewCoordinates returns fully defined coordinates
func NewCoordinates(r, theta, z float64) Coordinates {
	return Coordinates{R: &r, Theta: &theta, Z: &z}
}

// Set updates one axis
func (c *Coordinates) Set(axis Axis, v float64) {
	switch axis {
	case AxisR:
		c.R = &v
	case AxisTheta:
		c.Theta = &v
	case AxisZ:
		c.Z = &v
	}
}

// Value returns the value of the axis, NaN when unset
func (c *Coordinates) Value(axis Axis) float64 {
	var p *float64
	switch axis {
	case AxisR:
		p = c.R
	case AxisTheta:
		p = c.Theta
	case AxisZ:
		p = c.Z
	}
	if p == nil {
		return math.NaN()
	}
	return *p
}

// Fields returns the log columns r (mm), theta (deg) and z (mm)
func (c *Coordinates) Fields() []record.Field {
	return []record.Field{
		record.Number(AxisR.Column(), c.Value(AxisR)),
		record.Number(AxisTheta.Column(), c.Value(AxisTheta)),
		record.Number(AxisZ.Column(), c.Value(AxisZ)),
	}
}

func (c *Coordinates) String() string {
	return fmt.Sprintf("r=%s mm, theta=%s deg, z=%s mm",
		format(c.R), format(c.Theta), format(c.Z))
}

func format(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *p)
}
