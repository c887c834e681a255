package control_loop

// BangBangControlLoop switches between off and full power around the target.
// An inverted loop drives the output while the temperature is above the
// target, as needed for coolers.
type BangBangControlLoop struct {
	hysteresis float64
	maxPower   float64
	inverted   bool

	on bool
}

func NewBangBangControlLoop(hysteresis float64, maxPower float64, inverted bool) *BangBangControlLoop {
	if maxPower <= 0 {
		maxPower = MaxPower
	}
	return &BangBangControlLoop{
		hysteresis: hysteresis,
		maxPower:   maxPower,
		inverted:   inverted,
	}
}

func (l *BangBangControlLoop) Loop(target float64, measured float64) float64 {
	if target == 0 {
		l.on = false
		return 0
	}

	err := target - measured
	if l.inverted {
		err = -err
	}
	if err >= l.hysteresis {
		l.on = true
	} else if err <= -l.hysteresis {
		l.on = false
	}

	if l.on {
		return l.maxPower
	}
	return 0
}

func (l *BangBangControlLoop) Reset() {
	l.on = false
}
