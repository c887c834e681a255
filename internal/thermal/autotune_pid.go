package thermal

import (
	"math"

	"github.com/markusressel/heat2go/internal/control_loop"
	"github.com/markusressel/heat2go/internal/hal"
	"github.com/markusressel/heat2go/internal/ui"
)

const (
	// pidTuneMinHalfCycleMs is the minimal duration of a heating or cooling phase
	pidTuneMinHalfCycleMs = 5000

	pidTuneWatchPeriodMs = 20000
	pidTuneWatchIncrease = 2.0
	pidTuneWatchMargin   = 5.0
)

// pidTuner drives the heater as a relay around the target. Bias and amplitude
// are adjusted until heating and cooling take equally long, the ultimate gain
// and period of the oscillation yield the Ziegler-Nichols gains.
type pidTuner struct {
	tuneResult

	target   float64
	ncycles  int
	maxPower int64

	cycles  int
	heating bool
	bias    int64
	d       int64
	power   float64

	t1    uint32
	t2    uint32
	tHigh int64
	tLow  int64
	max   float64
	min   float64

	ku    float64
	tu    float64
	gains control_loop.PidConstants

	heated        bool
	nextWatchTemp float64
	watchDeadline uint32
}

func newPidTuner(now uint32, target float64, cycles int, maxPower float64) *pidTuner {
	if cycles == 0 {
		cycles = DefaultAutotuneCycles
	}
	cycles = min(max(cycles, MinAutotuneCycles), MaxAutotuneCycles)

	t := &pidTuner{
		target:        target,
		ncycles:       cycles,
		maxPower:      int64(maxPower),
		heating:       true,
		t1:            now,
		t2:            now,
		max:           0,
		min:           10000,
		watchDeadline: now + pidTuneWatchPeriodMs,
	}
	t.bias = t.maxPower >> 1
	t.d = t.bias
	t.power = float64(t.bias + t.d)
	return t
}

func (t *pidTuner) step(now uint32, current float64) float64 {
	if t.done || t.err != nil {
		return 0
	}

	t.max = math.Max(t.max, current)
	t.min = math.Min(t.min, current)

	if t.heating && current > t.target && hal.Elapsed(now, t.t2+pidTuneMinHalfCycleMs) {
		t.heating = false
		t.power = float64(t.bias - t.d)
		t.t1 = now
		t.tHigh = int64(t.t1 - t.t2)
		t.max = t.target
	}

	if !t.heating && current < t.target && hal.Elapsed(now, t.t1+pidTuneMinHalfCycleMs) {
		t.heating = true
		t.t2 = now
		t.tLow = int64(t.t2 - t.t1)
		if t.cycles > 0 {
			t.adjustBias()
			if t.cycles > 2 {
				t.computeGains()
			}
		}
		t.power = float64(t.bias + t.d)
		t.cycles++
		t.min = t.target
	}

	if current > t.target+autotuneMaxOvershoot {
		t.fail(ErrAutotuneOvershoot, "%.1f°C exceeds %.1f°C", current, t.target+autotuneMaxOvershoot)
		return 0
	}

	t.checkHeating(now, current)

	if int64(now-t.t1)+int64(now-t.t2) > autotuneCycleTimeoutMs {
		t.fail(ErrAutotuneTimeout, "no oscillation within %d minutes", autotuneCycleTimeoutMs/60000)
		return 0
	}

	if t.cycles > t.ncycles {
		if t.gains.Kp <= 0 {
			t.fail(ErrAutotuneFailed, "no usable oscillation")
		}
		t.finish()
		return 0
	}
	return t.power
}

func (t *pidTuner) adjustBias() {
	if t.tLow+t.tHigh == 0 {
		return
	}
	t.bias += (t.d * (t.tHigh - t.tLow)) / (t.tLow + t.tHigh)
	t.bias = min(max(t.bias, 20), t.maxPower-20)
	if t.bias > t.maxPower>>1 {
		t.d = t.maxPower - 1 - t.bias
	} else {
		t.d = t.bias
	}
	ui.Debug("PID autotune: bias %d, d %d, min %.2f, max %.2f", t.bias, t.d, t.min, t.max)
}

func (t *pidTuner) computeGains() {
	amplitude := (t.max - t.min) * 0.5
	if amplitude <= 0 {
		return
	}
	t.ku = (4.0 * float64(t.d)) / (math.Pi * amplitude)
	t.tu = float64(t.tLow+t.tHigh) * 0.001
	kp := 0.6 * t.ku
	t.gains = control_loop.PidConstants{
		Kp: kp,
		Ki: 2 * kp / t.tu,
		Kd: kp * t.tu * 0.125,
	}
	ui.Debug("PID autotune: Ku %.2f, Tu %.2f, Kp %.2f, Ki %.2f, Kd %.2f", t.ku, t.tu, t.gains.Kp, t.gains.Ki, t.gains.Kd)
}

// checkHeating fails the tune if the heater does not make progress towards the target.
func (t *pidTuner) checkHeating(now uint32, current float64) {
	if t.heated {
		if current < t.target-autotuneMaxOvershoot {
			t.fail(ErrAutotuneFailed, "temperature dropped to %.1f°C", current)
		}
		return
	}
	if current > t.nextWatchTemp {
		t.nextWatchTemp = current + pidTuneWatchIncrease
		t.watchDeadline = now + pidTuneWatchPeriodMs
		if current > t.target-pidTuneWatchMargin {
			t.heated = true
		}
		return
	}
	if hal.Elapsed(now, t.watchDeadline) {
		t.fail(ErrAutotuneFailed, "heating failed at %.1f°C", current)
	}
}

func (t *pidTuner) constants() control_loop.Constants {
	c := t.gains
	return control_loop.Constants{Pid: &c}
}
