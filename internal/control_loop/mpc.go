package control_loop

import (
	"math"

	"github.com/markusressel/heat2go/internal/util"
)

const (
	// mpcSmoothingFactor is the share of the model error corrected per tick
	mpcSmoothingFactor = 0.5
	// mpcSteadyState is the block temperature change in °C/s below which
	// the ambient estimate is adjusted
	mpcSteadyState = 0.5
	// mpcMinAmbientChange is the minimal ambient adjustment in °C/s
	mpcMinAmbientChange = 1.0
	// mpcMaxAmbientSeed caps the initial ambient estimate in °C
	mpcMaxAmbientSeed = 30.0
	// mpcHorizon is the time in seconds the loop plans to reach the target in
	mpcHorizon = 2.0
)

type MpcOptions struct {
	// Period is the time in seconds between two calls of Loop
	Period float64
	// MaxPower caps the output, HeaterPower is always that of a fully driven heater
	MaxPower float64

	Fan       FanSpeedSource
	Extrusion ExtrusionSource
}

// MpcControlLoop derives the heater power from a lumped model of the
// heater block, the sensor and the surrounding air.
type MpcControlLoop struct {
	constants MpcConstants
	options   MpcOptions
	extrusion extrusionDelta

	blockTemp   float64
	sensorTemp  float64
	ambientTemp float64

	// power applied since the last tick, 0..MaxPower
	output float64
}

func NewMpcControlLoop(constants MpcConstants, options MpcOptions) *MpcControlLoop {
	if options.MaxPower <= 0 {
		options.MaxPower = MaxPower
	}
	l := &MpcControlLoop{
		constants: constants,
		options:   options,
		extrusion: extrusionDelta{source: options.Extrusion},
	}
	l.Reset()
	return l
}

func (l *MpcControlLoop) Constants() MpcConstants {
	return l.constants
}

// SetConstants replaces the model constants, the modeled temperatures are kept.
func (l *MpcControlLoop) SetConstants(constants MpcConstants) {
	l.constants = constants
}

// Model returns the modeled block, sensor and ambient temperatures.
func (l *MpcControlLoop) Model() (block float64, sensor float64, ambient float64) {
	return l.blockTemp, l.sensorTemp, l.ambientTemp
}

// SetModel overrides the modeled temperatures, e.g. after measuring them.
func (l *MpcControlLoop) SetModel(block float64, sensor float64, ambient float64) {
	l.blockTemp = block
	l.sensorTemp = sensor
	l.ambientTemp = ambient
}

func (l *MpcControlLoop) Loop(target float64, measured float64) float64 {
	c := l.constants
	dT := l.options.Period

	if math.IsNaN(l.blockTemp) {
		l.ambientTemp = math.Min(mpcMaxAmbientSeed, measured)
		l.blockTemp = measured
		l.sensorTemp = measured
	}

	xfer := l.transferCoefficient()

	blockDelta := l.output/MaxPower*c.HeaterPower*dT/c.BlockHeatCapacity +
		(l.ambientTemp-l.blockTemp)*xfer*dT/c.BlockHeatCapacity
	l.blockTemp += blockDelta
	l.sensorTemp += (l.blockTemp - l.sensorTemp) * c.SensorResponsiveness * dT

	delta := (measured - l.sensorTemp) * mpcSmoothingFactor
	l.blockTemp += delta
	l.sensorTemp += delta

	clipped := l.output <= 0 || l.output >= l.options.MaxPower
	if !clipped || math.Abs(blockDelta+delta) < mpcSteadyState*dT {
		if delta > 0 {
			l.ambientTemp += math.Max(delta, mpcMinAmbientChange*dT)
		} else {
			l.ambientTemp += math.Min(delta, -mpcMinAmbientChange*dT)
		}
	}

	power := 0.0
	if target != 0 {
		power = (target-l.blockTemp)*c.BlockHeatCapacity/mpcHorizon - (l.ambientTemp-l.blockTemp)*xfer
	}

	l.output = util.Coerce(power*MaxPower/c.HeaterPower, 0, l.options.MaxPower)
	return l.output
}

func (l *MpcControlLoop) transferCoefficient() float64 {
	c := l.constants
	xfer := c.AmbientXferCoeffFan0
	if l.options.Fan != nil {
		xfer += c.Fan255Adjustment * float64(l.options.Fan.FanSpeed()) / 255
	}
	if l.options.Extrusion != nil && l.options.Period > 0 {
		speed := l.extrusion.next() / l.options.Period
		xfer += speed * c.FilamentHeatCapacityPerMm
	}
	return xfer
}

func (l *MpcControlLoop) Reset() {
	l.blockTemp = math.NaN()
	l.sensorTemp = math.NaN()
	l.ambientTemp = math.NaN()
	l.output = 0
}
