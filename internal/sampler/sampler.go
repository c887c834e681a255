package sampler

import (
	"errors"
	"fmt"

	"github.com/markusressel/heat2go/internal/hal"
)

type State uint8

const (
	StateStartupDelay State = iota
	StateStartSampling
	StatePrepare
	StateMeasure
	StateSensorsReady
)

func (s State) String() string {
	switch s {
	case StateStartupDelay:
		return "StartupDelay"
	case StateStartSampling:
		return "StartSampling"
	case StatePrepare:
		return "Prepare"
	case StateMeasure:
		return "Measure"
	case StateSensorsReady:
		return "SensorsReady"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Adc is the part of the board the sampler drives.
type Adc interface {
	AdcStart(pin hal.Pin)
	AdcReady() bool
	AdcValue() uint16
}

type Config struct {
	// Pins are sampled in this order, readings use the same indices
	Pins []hal.Pin
	// Oversample is the number of full passes summed into one reading
	Oversample int
	// Dwell is the number of ticks spent in SensorsReady after each pass
	Dwell int
	// StartupDelay is the number of ticks before the first conversion
	StartupDelay int
}

// Sampler walks all ADC channels one interrupt tick at a time: one tick to start a
// conversion, at least one tick to collect it.
// All methods except Buffer and Period must only be called from interrupt context.
type Sampler struct {
	adc        Adc
	pins       []hal.Pin
	oversample int
	dwell      int

	state  State
	index  int
	wait   int
	passes int
	sums   []uint32

	buffer *RawBuffer
}

func New(adc Adc, config Config) (*Sampler, error) {
	if config.Oversample <= 0 {
		return nil, fmt.Errorf("invalid oversample count: %d", config.Oversample)
	}
	if config.Dwell <= 0 {
		return nil, errors.New("sensors ready dwell must be at least one tick")
	}
	if config.StartupDelay < 0 {
		return nil, errors.New("startup delay must not be negative")
	}

	pins := make([]hal.Pin, len(config.Pins))
	copy(pins, config.Pins)
	return &Sampler{
		adc:        adc,
		pins:       pins,
		oversample: config.Oversample,
		dwell:      config.Dwell,
		state:      StateStartupDelay,
		wait:       config.StartupDelay,
		sums:       make([]uint32, len(pins)),
		buffer:     NewRawBuffer(len(pins)),
	}, nil
}

// Buffer returns the handshake the readings are published to.
func (s *Sampler) Buffer() *RawBuffer {
	return s.buffer
}

// State returns the current state and channel index.
func (s *Sampler) State() (State, int) {
	return s.state, s.index
}

// TicksPerReading is the number of ticks between two published readings,
// assuming every conversion finishes within one tick.
func (s *Sampler) TicksPerReading() int {
	pass := 2 * len(s.pins)
	if pass == 0 {
		pass = 1
	}
	return (pass + s.dwell) * s.oversample
}

// Period is the time in seconds between two readings at the given interrupt frequency.
func (s *Sampler) Period(frequency int) float64 {
	return float64(s.TicksPerReading()) / float64(frequency)
}

// Step advances the state machine by one tick. It returns true if a
// reading has been published to the buffer.
func (s *Sampler) Step() bool {
	switch s.state {
	case StateStartupDelay:
		if s.wait > 0 {
			s.wait--
			return false
		}
		s.state = StateStartSampling
		fallthrough
	case StateStartSampling:
		if len(s.pins) == 0 {
			return s.finishPass()
		}
		s.index = 0
		s.state = StatePrepare
		fallthrough
	case StatePrepare:
		s.adc.AdcStart(s.pins[s.index])
		s.state = StateMeasure
		return false
	case StateMeasure:
		if !s.adc.AdcReady() {
			return false
		}
		s.sums[s.index] += uint32(s.adc.AdcValue())
		s.index++
		if s.index < len(s.pins) {
			s.state = StatePrepare
			return false
		}
		return s.finishPass()
	case StateSensorsReady:
		s.wait--
		if s.wait <= 0 {
			s.state = StateStartSampling
		}
		return false
	}
	return false
}

func (s *Sampler) finishPass() bool {
	s.state = StateSensorsReady
	s.wait = s.dwell
	s.passes++
	if s.passes < s.oversample {
		return false
	}

	s.passes = 0
	published := s.buffer.publish(s.sums)
	for i := range s.sums {
		s.sums[i] = 0
	}
	return published
}
