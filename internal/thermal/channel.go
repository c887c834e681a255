package thermal

import (
	"math"
	"sync/atomic"

	"github.com/markusressel/heat2go/internal/control_loop"
	"github.com/markusressel/heat2go/internal/hal"
	"github.com/markusressel/heat2go/internal/protection"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/markusressel/heat2go/internal/softpwm"
)

type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

func (f *atomicFloat) Store(value float64) {
	f.bits.Store(math.Float64bits(value))
}

// channel is the runtime state of one ChannelSpec.
// Fields without atomics are owned by the goroutine calling Task.
type channel struct {
	id   ChannelId
	spec ChannelSpec

	adcIndex     int
	thermocouple *sensors.ThermocoupleReader
	conversion   sensors.Conversion

	output   *softpwm.Output
	maxPower float64
	loop     control_loop.ControlLoop
	fan      *fan

	bounds    *protection.BoundCheck
	runaway   *protection.RunawayMonitor
	watch     *protection.HeaterWatch
	redundant *channel

	// target as last seen by Task
	appliedTarget float64
	// power demanded by the control loop or the tuner
	demand    float64
	fanScaler uint8
	tuner     tuner

	raw          atomic.Int32
	current      atomicFloat
	target       atomicFloat
	runawayState atomic.Uint32

	idleTimeout  uint32
	idleDeadline atomic.Uint32
	idleArmed    atomic.Bool
	idleExpired  atomic.Bool
}

func (c *channel) name() string {
	return c.spec.Id
}

func (c *channel) heated() bool {
	return c.output != nil
}

func (c *channel) power() uint8 {
	if c.output == nil {
		return 0
	}
	return c.output.Power()
}

func (c *channel) setPower(power float64) {
	if c.output == nil {
		return
	}
	if power < 0 || math.IsNaN(power) {
		power = 0
	}
	if power > c.maxPower {
		power = c.maxPower
	}
	c.output.SetPower(uint8(math.Round(power)))
}

// idle reports whether the idle timer of the channel has expired.
func (c *channel) idle(now uint32) bool {
	if c.idleArmed.Load() && hal.Elapsed(now, c.idleDeadline.Load()) {
		c.idleExpired.Store(true)
		c.idleArmed.Store(false)
	}
	return c.idleExpired.Load()
}

func (c *channel) startIdleTimer(now uint32) {
	if c.idleTimeout == 0 {
		return
	}
	c.idleDeadline.Store(now + c.idleTimeout)
	c.idleExpired.Store(false)
	c.idleArmed.Store(true)
}

func (c *channel) resetIdleTimer() {
	c.idleArmed.Store(false)
	c.idleExpired.Store(false)
}
