package softpwm

import (
	"errors"
	"sync/atomic"

	"github.com/markusressel/heat2go/internal/hal"
)

const (
	MaxPower = 255

	// slowTickDivider is the number of fast ticks per slow pwm tick
	slowTickDivider = 64
	// DefaultMinStateTime is the number of slow ticks a slow output
	// holds a state before it may switch again
	DefaultMinStateTime = 16
)

// Writer is the part of the board the stage drives.
type Writer interface {
	DigitalWrite(pin hal.Pin, level hal.Level)
}

// Output is one software modulated pin.
// The power level is written by the main loop and read by the interrupt,
// all other fields are owned by the interrupt.
type Output struct {
	pin    hal.Pin
	heater bool
	slow   bool

	power atomic.Uint32

	level      uint16
	on         bool
	written    bool
	stateTimer uint8
}

func (o *Output) Pin() hal.Pin {
	return o.pin
}

func (o *Output) Heater() bool {
	return o.heater
}

// SetPower sets the duty level in 256ths of a cycle. 0 is off, MaxPower leaves
// the pin off for one tick per cycle.
func (o *Output) SetPower(power uint8) {
	o.power.Store(uint32(power))
}

func (o *Output) Power() uint8 {
	return uint8(o.power.Load())
}

type Config struct {
	// Scale shifts the counter step, a higher scale yields a faster but coarser pwm
	Scale uint8
	// Dither carries the part of the level below the step resolution into the next cycle.
	// Without dithering the level is rounded up to the next step.
	Dither bool
	// MinStateTime applies to slow outputs
	MinStateTime uint8
}

// Stage modulates all outputs from the timer interrupt.
type Stage struct {
	writer  Writer
	outputs []*Output

	step         uint16
	mask         uint16
	minStateTime uint8

	counter     uint16
	slowTicks   uint8
	slowCounter uint8

	killed atomic.Bool
}

func NewStage(writer Writer, config Config) (*Stage, error) {
	if config.Scale > 7 {
		return nil, errors.New("soft pwm scale must be between 0 and 7")
	}
	s := &Stage{
		writer:       writer,
		step:         1 << config.Scale,
		minStateTime: config.MinStateTime,
	}
	if config.Dither {
		s.mask = s.step - 1
	}
	return s, nil
}

// Add registers a new output. Outputs must be added before the interrupt starts.
func (s *Stage) Add(pin hal.Pin, heater bool, slow bool) *Output {
	o := &Output{pin: pin, heater: heater, slow: slow}
	s.outputs = append(s.outputs, o)
	return o
}

func (s *Stage) Outputs() []*Output {
	return s.outputs
}

// KillHeaters permanently forces all heater outputs off.
func (s *Stage) KillHeaters() {
	s.killed.Store(true)
}

func (s *Stage) Killed() bool {
	return s.killed.Load()
}

// CycleTicks is the number of ticks of one fast pwm cycle.
func (s *Stage) CycleTicks() int {
	return 256 / int(s.step)
}

// Step advances the stage by one interrupt tick.
func (s *Stage) Step() {
	killed := s.killed.Load()
	cycleStart := s.counter == 0

	for _, o := range s.outputs {
		if killed && o.heater {
			s.write(o, false)
			continue
		}
		if o.slow {
			continue
		}
		if cycleStart {
			o.level = (o.level & s.mask) + uint16(o.power.Load())
		}
		s.write(o, o.level > s.counter+s.mask)
	}

	s.counter = (s.counter + s.step) & 0xFF
	if s.counter%slowTickDivider == 0 {
		s.stepSlow(killed)
	}
}

func (s *Stage) stepSlow(killed bool) {
	s.slowCounter = (s.slowCounter + 1) & 0x7F
	for _, o := range s.outputs {
		if !o.slow || (killed && o.heater) {
			continue
		}
		if o.stateTimer > 0 {
			o.stateTimer--
		}
		if s.slowCounter == 0 {
			o.level = uint16(o.power.Load() >> 1)
		}
		want := o.level > 0 && (s.slowCounter == 0 || o.level >= uint16(s.slowCounter))
		if want != o.on && o.stateTimer == 0 {
			o.stateTimer = s.minStateTime
			s.write(o, want)
		}
	}
}

func (s *Stage) write(o *Output, on bool) {
	if o.written && o.on == on {
		return
	}
	o.on = on
	o.written = true
	s.writer.DigitalWrite(o.pin, hal.Level(on))
}
