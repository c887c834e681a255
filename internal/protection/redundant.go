package protection

import "math"

// DefaultRedundantMaxDiff is the allowed difference between a sensor and its redundant partner in °C
const DefaultRedundantMaxDiff = 10.0

// RedundantMismatch reports whether two sensors watching the same heater disagree.
func RedundantMismatch(primary float64, redundant float64, maxDiff float64) bool {
	return math.Abs(primary-redundant) > maxDiff
}
