package protection

import (
	"math"

	"github.com/asecurityteam/rolling"
	"github.com/markusressel/heat2go/internal/util"
)

// VarianceMonitor detects a heater whose temperature does not move at all
// while it is driven, e.g. due to a stuck sensor or a detached thermistor.
type VarianceMonitor struct {
	size        int
	minVariance float64

	window      *rolling.PointPolicy
	samples     int
	last        float64
	initialized bool
}

// NewVarianceMonitor creates a monitor over the last size samples. The sum of
// absolute changes within a full window must reach minVariance.
func NewVarianceMonitor(size int, minVariance float64) *VarianceMonitor {
	if size <= 0 {
		size = 1
	}
	return &VarianceMonitor{
		size:        size,
		minVariance: minVariance,
		window:      util.CreateRollingWindow(size),
	}
}

// Observe adds a sample and reports whether the temperature is stuck.
func (v *VarianceMonitor) Observe(current float64, powered bool) bool {
	if !v.initialized {
		v.last = current
		v.initialized = true
		return false
	}

	v.window.Append(math.Abs(current - v.last))
	v.last = current
	if v.samples < v.size {
		v.samples++
	}

	if !powered || v.samples < v.size {
		return false
	}
	return util.GetWindowSum(v.window) < v.minVariance
}

// Variance returns the summed change within the current window.
func (v *VarianceMonitor) Variance() float64 {
	return util.GetWindowSum(v.window)
}

func (v *VarianceMonitor) Reset() {
	v.window = util.CreateRollingWindow(v.size)
	v.samples = 0
	v.initialized = false
}
