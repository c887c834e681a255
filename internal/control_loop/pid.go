package control_loop

import (
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/util"
)

const (
	DefaultFunctionalRange = 10.0
	DefaultLagQueueLength  = 20
)

var (
	DefaultPidConstants = PidConstants{
		Kp: 22.2,
		Ki: 1.08,
		Kd: 114,
	}
)

type PidOptions struct {
	// Period is the time in seconds between two calls of Loop
	Period   float64
	MinPower float64
	MaxPower float64
	// FunctionalRange is the error beyond which the loop saturates
	FunctionalRange float64

	// Extrusion enables the Kc feed forward term if set
	Extrusion ExtrusionSource
	// LagQueueLength is the number of control ticks the extrusion term is delayed
	LagQueueLength int
}

// PidControlLoop is a PidLoop based control loop implementation.
type PidControlLoop struct {
	pidLoop   *util.PidLoop
	constants PidConstants
	options   PidOptions

	extrusion extrusionDelta
	lagQueue  []float64
	lagIndex  int
}

// NewPidControlLoop creates a PidControlLoop, which uses a PID loop to approach the target.
func NewPidControlLoop(constants PidConstants, options PidOptions) *PidControlLoop {
	if options.MaxPower <= 0 {
		options.MaxPower = MaxPower
	}
	if options.FunctionalRange <= 0 {
		options.FunctionalRange = DefaultFunctionalRange
	}
	if options.LagQueueLength <= 0 {
		options.LagQueueLength = DefaultLagQueueLength
	}
	l := &PidControlLoop{
		options:   options,
		extrusion: extrusionDelta{source: options.Extrusion},
		lagQueue:  make([]float64, options.LagQueueLength),
	}
	l.SetConstants(constants)
	return l
}

// SetConstants replaces the gains and resets the loop.
func (l *PidControlLoop) SetConstants(constants PidConstants) {
	l.constants = constants
	l.pidLoop = util.NewPidLoop(
		constants.Kp,
		constants.Ki*l.options.Period,
		constants.Kd/l.options.Period,
		l.options.MinPower,
		l.options.MaxPower,
		l.options.FunctionalRange,
	)
}

func (l *PidControlLoop) Constants() PidConstants {
	return l.constants
}

func (l *PidControlLoop) Loop(target float64, measured float64) float64 {
	feedForward := l.extrusionTerm()
	result := l.pidLoop.LoopWithFeedForward(target, measured, feedForward)

	ui.Debug("PidControlLoop: target: %.2f, measured: %.2f, integral: %.2f, result: %.2f", target, measured, l.pidLoop.Integral(), result)
	return result
}

// extrusionTerm pushes the latest extrusion into the lag queue and returns the
// scaled value leaving it.
func (l *PidControlLoop) extrusionTerm() float64 {
	if l.options.Extrusion == nil || l.constants.Kc == 0 {
		return 0
	}
	l.lagQueue[l.lagIndex] = l.extrusion.next()
	l.lagIndex = (l.lagIndex + 1) % len(l.lagQueue)
	return l.lagQueue[l.lagIndex] * l.constants.Kc
}

func (l *PidControlLoop) Reset() {
	l.pidLoop.Reset()
	for i := range l.lagQueue {
		l.lagQueue[i] = 0
	}
	l.lagIndex = 0
}
