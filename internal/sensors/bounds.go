package sensors

import "fmt"

// Bounds are the raw thresholds of the configured minimum and maximum temperature.
type Bounds struct {
	MinRaw     Raw
	MaxRaw     Raw
	Increasing bool
}

// DeriveBounds walks the conversion one ADC count at a time, starting from the
// cold end for the minimum and from the hot end for the maximum.
func DeriveBounds(c Conversion, minCelsius, maxCelsius float64) (Bounds, error) {
	if minCelsius >= maxCelsius {
		return Bounds{}, fmt.Errorf("minimum temperature %.1f must be lower than maximum temperature %.1f", minCelsius, maxCelsius)
	}

	lo, hi := c.RawRange()
	step := c.Step()
	b := Bounds{Increasing: c.Increasing()}

	if b.Increasing {
		b.MinRaw = lo
		for b.MinRaw < hi && c.Celsius(b.MinRaw) < minCelsius {
			b.MinRaw += step
		}
		b.MaxRaw = hi
		for b.MaxRaw > lo && c.Celsius(b.MaxRaw) > maxCelsius {
			b.MaxRaw -= step
		}
		if b.MinRaw > b.MaxRaw {
			return Bounds{}, fmt.Errorf("conversion does not cover %.1f..%.1f°C", minCelsius, maxCelsius)
		}
	} else {
		b.MinRaw = hi
		for b.MinRaw > lo && c.Celsius(b.MinRaw) < minCelsius {
			b.MinRaw -= step
		}
		b.MaxRaw = lo
		for b.MaxRaw < hi && c.Celsius(b.MaxRaw) > maxCelsius {
			b.MaxRaw += step
		}
		if b.MinRaw < b.MaxRaw {
			return Bounds{}, fmt.Errorf("conversion does not cover %.1f..%.1f°C", minCelsius, maxCelsius)
		}
	}

	return b, nil
}

// TooCold reports whether raw is on the cold side of the minimum threshold.
func (b Bounds) TooCold(raw Raw) bool {
	if b.Increasing {
		return raw < b.MinRaw
	}
	return raw > b.MinRaw
}

// TooHot reports whether raw is on the hot side of the maximum threshold.
func (b Bounds) TooHot(raw Raw) bool {
	if b.Increasing {
		return raw > b.MaxRaw
	}
	return raw < b.MaxRaw
}
