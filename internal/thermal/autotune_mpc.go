package thermal

import (
	"math"

	"github.com/markusressel/heat2go/internal/control_loop"
	"github.com/markusressel/heat2go/internal/hal"
	"github.com/markusressel/heat2go/internal/ui"
)

const (
	mpcTuneCoolingTestMs = 10000
	mpcTuneSamples       = 16
	mpcTuneSettleMs      = 20000
	mpcTuneTestMs        = 20000
	mpcTuneMaxDeviation  = 15.0
)

type mpcTunePhase uint8

const (
	mpcTuneCooling mpcTunePhase = iota
	mpcTuneHeating
	mpcTuneMeasuring
)

func (p mpcTunePhase) String() string {
	switch p {
	case mpcTuneCooling:
		return "cooling to ambient"
	case mpcTuneHeating:
		return "heating"
	default:
		return "measuring ambient losses"
	}
}

// mpcTuner measures the model constants in three phases: cool down to find
// the ambient temperature, heat at full power sampling the heating curve,
// then hold the temperature with and without the fan to measure the losses.
type mpcTuner struct {
	tuneResult

	target      float64
	heaterPower float64
	maxPower    float64
	period      float64
	fan         *fan

	phase      mpcTunePhase
	phaseStart uint32
	nextTest   uint32
	ambient    float64

	// heating curve
	heatStart      uint32
	sampleFrom     float64
	samples        [mpcTuneSamples]float64
	sampleCount    int
	sampleDistance uint32
	t1Time         float64
	t1, t2, t3     float64

	// loss measurement
	loop         *control_loop.MpcControlLoop
	holdTarget   float64
	settleEnd    uint32
	testEnd      uint32
	fan0Done     bool
	energyFan0   float64
	timeFan0     float64
	energyFan255 float64
	timeFan255   float64
	lastTemp     float64
	lastMs       uint32
	lastPower    float64

	tuned control_loop.MpcConstants
}

func newMpcTuner(now uint32, current float64, target float64, heaterPower float64, maxPower float64, period float64, f *fan) *mpcTuner {
	t := &mpcTuner{
		target:      target,
		heaterPower: heaterPower,
		maxPower:    maxPower,
		period:      period,
		fan:         f,
		ambient:     current,
		sampleFrom:  target / 2,
	}
	t.enter(now, mpcTuneCooling)
	t.nextTest = now + mpcTuneCoolingTestMs
	t.setFan(255)
	return t
}

func (t *mpcTuner) setFan(speed uint8) {
	if t.fan != nil {
		t.fan.setSpeed(speed)
	}
}

func (t *mpcTuner) enter(now uint32, phase mpcTunePhase) {
	ui.Debug("MPC autotune: %s", phase)
	t.phase = phase
	t.phaseStart = now
}

func (t *mpcTuner) step(now uint32, current float64) float64 {
	if t.done || t.err != nil {
		return 0
	}
	if current > t.target+autotuneMaxOvershoot {
		t.fail(ErrAutotuneOvershoot, "%.1f°C exceeds %.1f°C", current, t.target+autotuneMaxOvershoot)
		return 0
	}
	if hal.Elapsed(now, t.phaseStart+autotuneCycleTimeoutMs) {
		t.fail(ErrAutotuneTimeout, "%s took longer than %d minutes", t.phase, autotuneCycleTimeoutMs/60000)
		return 0
	}

	switch t.phase {
	case mpcTuneCooling:
		return t.stepCooling(now, current)
	case mpcTuneHeating:
		return t.stepHeating(now, current)
	default:
		return t.stepMeasuring(now, current)
	}
}

func (t *mpcTuner) stepCooling(now uint32, current float64) float64 {
	if !hal.Elapsed(now, t.nextTest) {
		return 0
	}
	if current < t.ambient {
		t.ambient = current
		t.nextTest += mpcTuneCoolingTestMs
		return 0
	}

	t.ambient = (t.ambient + current) / 2
	if t.sampleFrom < t.ambient+10 {
		t.fail(ErrAutotuneFailed, "target %.1f°C is too close to the ambient temperature %.1f°C", t.target, t.ambient)
		return 0
	}
	t.setFan(0)
	t.enter(now, mpcTuneHeating)
	t.heatStart = now
	t.nextTest = now
	t.sampleDistance = 1
	return t.maxPower
}

func (t *mpcTuner) stepHeating(now uint32, current float64) float64 {
	if !hal.Elapsed(now, t.nextTest) {
		return t.maxPower
	}

	if current >= t.sampleFrom {
		if t.sampleCount == len(t.samples) {
			for i := 0; i < len(t.samples)/2; i++ {
				t.samples[i] = t.samples[i*2]
			}
			t.sampleCount /= 2
			t.sampleDistance *= 2
		}
		if t.sampleCount == 0 {
			t.t1Time = float64(now-t.heatStart) / 1000
		}
		t.samples[t.sampleCount] = current
		t.sampleCount++
	}

	if current < t.target {
		t.nextTest += 1000 * t.sampleDistance
		return t.maxPower
	}

	if t.sampleCount < 3 {
		t.fail(ErrAutotuneFailed, "only %d samples recorded while heating", t.sampleCount)
		return 0
	}

	count := (t.sampleCount+1)/2*2 - 1
	t.t1 = t.samples[0]
	t.t2 = t.samples[(count-1)>>1]
	t.t3 = t.samples[count-1]
	// the samples are equally spaced, the curve is exponential towards the asymptote
	asymptote := (t.t2*t.t2 - t.t1*t.t3) / (2*t.t2 - t.t1 - t.t3)
	t.tuned = control_loop.MpcConstants{
		HeaterPower:          t.heaterPower,
		AmbientXferCoeffFan0: t.heaterPower * t.maxPower / 255 / (asymptote - t.ambient),
	}
	blockResponsiveness, ok := t.deriveConstants(asymptote, count)
	if !ok {
		return 0
	}

	t.loop = control_loop.NewMpcControlLoop(t.tuned, control_loop.MpcOptions{
		Period:   t.period,
		MaxPower: t.maxPower,
		Fan:      t.fanSource(),
	})
	elapsed := float64(now-t.heatStart) / 1000
	block := asymptote + (t.ambient-asymptote)*math.Exp(-blockResponsiveness*elapsed)
	t.loop.SetModel(block, current, t.ambient)
	t.holdTarget = block

	t.enter(now, mpcTuneMeasuring)
	t.settleEnd = now + mpcTuneSettleMs
	t.testEnd = t.settleEnd + mpcTuneTestMs
	t.lastTemp = current
	t.lastMs = now
	t.lastPower = 0
	return 0
}

func (t *mpcTuner) fanSource() control_loop.FanSpeedSource {
	if t.fan == nil {
		return nil
	}
	return t.fan
}

// deriveConstants computes heat capacity and sensor responsiveness from the
// transfer coefficient and the heating curve.
func (t *mpcTuner) deriveConstants(asymptote float64, count int) (float64, bool) {
	blockResponsiveness := -math.Log((t.t2-asymptote)/(t.t1-asymptote)) / float64(t.sampleDistance*uint32(count>>1))
	t.tuned.BlockHeatCapacity = t.tuned.AmbientXferCoeffFan0 / blockResponsiveness
	t.tuned.SensorResponsiveness = blockResponsiveness /
		(1 - (t.ambient-asymptote)*math.Exp(-blockResponsiveness*t.t1Time)/(t.t1-asymptote))

	if err := t.tuned.Validate(); err != nil || !finite(blockResponsiveness) || !finite(t.tuned.BlockHeatCapacity) || !finite(t.tuned.SensorResponsiveness) {
		t.fail(ErrAutotuneFailed, "heating curve does not fit the model (asymptote %.1f°C)", asymptote)
		return 0, false
	}
	return blockResponsiveness, true
}

func finite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

func (t *mpcTuner) stepMeasuring(now uint32, current float64) float64 {
	dT := float64(now-t.lastMs) / 1000
	energy := t.heaterPower*t.lastPower/255*dT + (t.lastTemp-current)*t.tuned.BlockHeatCapacity

	settled := hal.Elapsed(now, t.settleEnd)
	ended := hal.Elapsed(now, t.testEnd)
	switch {
	case settled && !ended && !t.fan0Done:
		t.energyFan0 += energy
		t.timeFan0 += dT
	case ended && !t.fan0Done && t.fan != nil:
		t.setFan(255)
		t.settleEnd = now + mpcTuneSettleMs
		t.testEnd = t.settleEnd + mpcTuneTestMs
		t.fan0Done = true
	case settled && !ended:
		t.energyFan255 += energy
		t.timeFan255 += dT
	case ended:
		t.finishMeasuring()
		return 0
	}

	if current < t.t3-mpcTuneMaxDeviation || current > t.holdTarget+mpcTuneMaxDeviation {
		t.fail(ErrAutotuneFailed, "temperature %.1f°C left the measuring range", current)
		return 0
	}

	t.lastTemp = current
	t.lastMs = now
	t.lastPower = t.loop.Loop(t.holdTarget, current)
	return t.lastPower
}

func (t *mpcTuner) finishMeasuring() {
	if t.timeFan0 <= 0 {
		t.fail(ErrAutotuneFailed, "no loss measurement")
		return
	}
	t.tuned.AmbientXferCoeffFan0 = t.energyFan0 / t.timeFan0 / (t.holdTarget - t.ambient)
	if t.fan != nil && t.timeFan255 > 0 {
		xferFan255 := t.energyFan255 / t.timeFan255 / (t.holdTarget - t.ambient)
		t.tuned.Fan255Adjustment = xferFan255 - t.tuned.AmbientXferCoeffFan0
	}

	// a better asymptote from the measured losses
	asymptote := t.ambient + t.heaterPower*t.maxPower/255/t.tuned.AmbientXferCoeffFan0
	count := (t.sampleCount+1)/2*2 - 1
	if _, ok := t.deriveConstants(asymptote, count); !ok {
		return
	}
	ui.Debug("MPC autotune: ambient %.1f°C, %+v", t.ambient, t.tuned)
	t.finish()
}

func (t *mpcTuner) constants() control_loop.Constants {
	c := t.tuned
	return control_loop.Constants{Mpc: &c}
}
