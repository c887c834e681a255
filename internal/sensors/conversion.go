package sensors

import "fmt"

// Raw is an oversampled ADC sum or a decoded thermocouple register.
type Raw int32

// Kind is the closed set of supported conversion strategies.
type Kind int

const (
	KindTable Kind = iota
	KindSteinhartHart
	KindLinear
	KindThermocouple
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindSteinhartHart:
		return "steinhartHart"
	case KindLinear:
		return "linear"
	case KindThermocouple:
		return "thermocouple"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Conversion turns raw readings into degrees celsius. The strategy is
// resolved once at construction, evaluation does not branch on Kind.
type Conversion struct {
	kind Kind

	celsius func(raw Raw) float64
	raw     func(celsius float64) Raw

	rawMin Raw
	rawMax Raw
	// increasing is true if temperature rises with the raw value
	increasing bool
	// step is the raw distance of one single-sample ADC count
	step Raw
}

func (c Conversion) Kind() Kind {
	return c.kind
}

// Celsius converts a raw reading.
func (c Conversion) Celsius(raw Raw) float64 {
	return c.celsius(raw)
}

// Raw returns the raw reading that corresponds to the given temperature.
func (c Conversion) Raw(celsius float64) Raw {
	r := c.raw(celsius)
	if r < c.rawMin {
		return c.rawMin
	}
	if r > c.rawMax {
		return c.rawMax
	}
	return r
}

// RawRange returns the smallest and largest raw value this conversion can produce.
func (c Conversion) RawRange() (Raw, Raw) {
	return c.rawMin, c.rawMax
}

// Increasing reports whether temperature rises with the raw value.
func (c Conversion) Increasing() bool {
	return c.increasing
}

// Step is the raw distance of a single ADC count.
func (c Conversion) Step() Raw {
	return c.step
}
