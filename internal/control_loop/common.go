package control_loop

// MaxPower is the power level of a fully driven output
const MaxPower = 255.0

type ControlLoop interface {
	// Loop advances the control loop and returns the power level to apply
	Loop(target float64, measured float64) float64
	// Reset drops all accumulated state, the next call to Loop starts from scratch
	Reset()
}

// ExtrusionSource reports the absolute position of the extruder feeding the
// heater, in millimeters of filament.
type ExtrusionSource interface {
	ExtrudedMm() float64
}

// FanSpeedSource reports the current speed of the fan cooling the heater, 0..255.
type FanSpeedSource interface {
	FanSpeed() uint8
}

// extrusionDelta tracks forward movement of an ExtrusionSource between two calls.
type extrusionDelta struct {
	source      ExtrusionSource
	last        float64
	initialized bool
}

func (e *extrusionDelta) next() float64 {
	if e.source == nil {
		return 0
	}
	position := e.source.ExtrudedMm()
	if !e.initialized {
		e.last = position
		e.initialized = true
		return 0
	}
	if position <= e.last {
		e.last = position
		return 0
	}
	delta := position - e.last
	e.last = position
	return delta
}
