package util

// derivativeSmoothing is the weight of the previous derivative term in the
// low-pass filter applied to the derivative.
const derivativeSmoothing = 0.95

// PidLoop is a fixed rate PID loop. Gains are expected to be pre-scaled
// to the loop period. Outside of the functional range around the target
// the loop does not integrate and either saturates or switches off.
type PidLoop struct {
	// Proportional Constant
	p float64
	// Integral Constant
	i float64
	// Derivative Constant
	d float64
	// Minimum output value
	outMin float64
	// Maximum output value
	outMax float64
	// error beyond which the loop saturates instead of regulating
	functionalRange float64

	// last measured value
	lastMeasured float64
	// sum of all errors since the last reset
	integral float64
	// low-pass filtered change of the measured value
	derivative float64

	initialized bool
	reset       bool
}

func NewPidLoop(p, i, d, min, max, functionalRange float64) *PidLoop {
	return &PidLoop{
		p:               p,
		i:               i,
		d:               d,
		outMin:          min,
		outMax:          max,
		functionalRange: functionalRange,
		reset:           true,
	}
}

// Loop advances the pid loop
func (p *PidLoop) Loop(target float64, measured float64) float64 {
	return p.LoopWithFeedForward(target, measured, 0)
}

// LoopWithFeedForward advances the pid loop and adds feedForward to the
// output before clamping.
func (p *PidLoop) LoopWithFeedForward(target float64, measured float64, feedForward float64) float64 {
	if !p.initialized {
		p.lastMeasured = measured
		p.initialized = true
	}

	// --- D Term (on measurement) ---
	p.derivative = (1-derivativeSmoothing)*(p.lastMeasured-measured) + derivativeSmoothing*p.derivative
	p.lastMeasured = measured

	err := target - measured
	if target == 0 || err < -p.functionalRange {
		p.reset = true
		return 0
	}
	if err > p.functionalRange {
		p.reset = true
		return p.outMax
	}

	if p.reset {
		p.integral = 0
		p.reset = false
	}

	// --- I Term (clamped) ---
	p.integral += err
	if p.i > 0 {
		p.integral = Coerce(p.integral, 0, p.outMax/p.i)
	}

	output := p.p*err + p.i*p.integral + p.d*p.derivative + feedForward
	return Coerce(output, p.outMin, p.outMax)
}

// Reset clears the accumulated state of the loop
func (p *PidLoop) Reset() {
	p.integral = 0
	p.derivative = 0
	p.initialized = false
	p.reset = true
}

// Integral returns the current integral sum
func (p *PidLoop) Integral() float64 {
	return p.integral
}
