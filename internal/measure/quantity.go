package measure

import (
	"fmt"
	"math"
)

const (
	Volt    Unit = "V"
	Ampere  Unit = "A"
	Hertz   Unit = "Hz"
	Newton  Unit = "N"
	MilliN  Unit = "mN"
	Percent Unit = "%"
)

// Unit is the physical unit tag carried by every measured value
type Unit string

func (u Unit) String() string {
	return string(u)
}

// Quantity is a measured value together with its unit
type Quantity struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// IsDefined reports whether the value is a real number (not NaN)
func (q Quantity) IsDefined() bool {
	return !math.IsNaN(q.Value)
}

func (q Quantity) String() string {
	return fmt.Sprintf("%g %s", q.Value, q.Unit)
}

// Field is a named quantity as it appears in a log row.
type Field struct {
	Label    string
	Quantity Quantity
}

// Name returns the column name, e.g. "TX Current RMS (A)".
func (f Field) Name() string {
	return fmt.Sprintf("%s (%s)", f.Label, f.Quantity.Unit)
}
