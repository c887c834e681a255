package hal

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

const simStepSeconds = 0.001

var ErrUnknownThermocouple = errors.New("no thermocouple attached to chip select")

// SimPlant describes a lumped thermal mass heated (or cooled) by a single output.
type SimPlant struct {
	Ambient float64
	// HeaterPower in watts at 100% duty
	HeaterPower float64
	// HeatCapacity in J/K
	HeatCapacity float64
	// Transfer is the loss to ambient in W/K
	Transfer float64
	// FanTransfer is the additional loss in W/K with the fan at full speed
	FanTransfer float64
	// SensorResponsiveness in 1/s, zero means the sensor follows the block without lag
	SensorResponsiveness float64

	HeaterPin Pin
	FanPin    *Pin
	// Cooling plants remove heat while their output is driven
	Cooling bool
}

type simPlant struct {
	SimPlant
	block        float64
	sensor       float64
	disconnected bool
}

type simAdc struct {
	plant  int
	encode func(celsius float64) uint16
	stuck  *uint16
}

type simThermocouple struct {
	plant int
	bits  int
	fault uint32
}

// Sim is an in-memory board with a virtual clock. Plants are integrated
// in one millisecond steps whenever the clock is advanced.
type Sim struct {
	nowUs        atomic.Uint64
	integratedMs uint64
	startMs      uint32

	pins [256]atomic.Bool

	mu            sync.Mutex
	plants        []*simPlant
	adcs          map[Pin]*simAdc
	thermocouples map[Pin]*simThermocouple
	noise         int
	random        *rand.Rand

	adcLatency int
	adcPin     Pin
	adcPending int
	adcStarted bool

	watchdogRefreshes atomic.Uint64
	lastWatchdogMs    atomic.Uint32
}

// NewSim creates a simulated board whose millisecond counter starts at startMs.
func NewSim(startMs uint32) *Sim {
	return &Sim{
		startMs:       startMs,
		adcs:          map[Pin]*simAdc{},
		thermocouples: map[Pin]*simThermocouple{},
		random:        rand.New(rand.NewPCG(uint64(startMs), 0x5eed)),
	}
}

// AddPlant registers a plant and returns its index.
func (s *Sim) AddPlant(plant SimPlant) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plants = append(s.plants, &simPlant{
		SimPlant: plant,
		block:    plant.Ambient,
		sensor:   plant.Ambient,
	})
	return len(s.plants) - 1
}

// AttachAdc connects an ADC pin to the sensor of a plant. encode maps the
// sensor temperature to a single-sample ADC reading.
func (s *Sim) AttachAdc(pin Pin, plant int, encode func(celsius float64) uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if plant < 0 || plant >= len(s.plants) {
		return fmt.Errorf("unknown plant index %d", plant)
	}
	s.adcs[pin] = &simAdc{plant: plant, encode: encode}
	return nil
}

// AttachThermocouple connects a thermocouple converter with the given
// register width (16 or 32 bit) to the sensor of a plant.
func (s *Sim) AttachThermocouple(cs Pin, plant int, bits int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if plant < 0 || plant >= len(s.plants) {
		return fmt.Errorf("unknown plant index %d", plant)
	}
	if bits != 16 && bits != 32 {
		return fmt.Errorf("unsupported thermocouple register width: %d", bits)
	}
	s.thermocouples[cs] = &simThermocouple{plant: plant, bits: bits}
	return nil
}

// SetNoise adds up to +-counts of uniform noise to every ADC sample.
func (s *Sim) SetNoise(counts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noise = counts
}

// SetAdcLatency makes every conversion report busy for the given number of polls.
func (s *Sim) SetAdcLatency(polls int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adcLatency = polls
}

// StickSensor freezes the reading of an ADC pin at the given value.
func (s *Sim) StickSensor(pin Pin, value uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if adc, ok := s.adcs[pin]; ok {
		adc.stuck = &value
	}
}

// UnstickSensor restores live readings of an ADC pin.
func (s *Sim) UnstickSensor(pin Pin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if adc, ok := s.adcs[pin]; ok {
		adc.stuck = nil
	}
}

// DisconnectHeater makes the output of a plant have no thermal effect.
func (s *Sim) DisconnectHeater(plant int, disconnected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plants[plant].disconnected = disconnected
}

// SetThermocoupleFault ORs the given status bits into every read of cs.
func (s *Sim) SetThermocoupleFault(cs Pin, bits uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tc, ok := s.thermocouples[cs]; ok {
		tc.fault = bits
	}
}

// SetPlantTemperature forces block and sensor temperature of a plant.
func (s *Sim) SetPlantTemperature(plant int, celsius float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plants[plant].block = celsius
	s.plants[plant].sensor = celsius
}

// PlantTemperature returns the sensor temperature of a plant.
func (s *Sim) PlantTemperature(plant int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plants[plant].sensor
}

// Advance moves the virtual clock forward and integrates all plants.
func (s *Sim) Advance(d time.Duration) {
	now := s.nowUs.Add(uint64(d.Microseconds()))

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.integratedMs < now/1000 {
		s.integratedMs++
		for _, plant := range s.plants {
			s.stepPlant(plant)
		}
	}
}

func (s *Sim) stepPlant(p *simPlant) {
	heat := 0.0
	if !p.disconnected && s.pins[p.HeaterPin].Load() {
		heat = p.HeaterPower
		if p.Cooling {
			heat = -heat
		}
	}
	transfer := p.Transfer
	if p.FanPin != nil && s.pins[*p.FanPin].Load() {
		transfer += p.FanTransfer
	}
	loss := transfer * (p.block - p.Ambient)
	p.block += (heat - loss) * simStepSeconds / p.HeatCapacity

	if p.SensorResponsiveness > 0 {
		p.sensor += (p.block - p.sensor) * math.Min(1, p.SensorResponsiveness*simStepSeconds)
	} else {
		p.sensor = p.block
	}
}

func (s *Sim) AdcStart(pin Pin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adcPin = pin
	s.adcPending = s.adcLatency
	s.adcStarted = true
}

func (s *Sim) AdcReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.adcStarted {
		return false
	}
	if s.adcPending > 0 {
		s.adcPending--
		return false
	}
	return true
}

func (s *Sim) AdcValue() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adcStarted = false
	adc, ok := s.adcs[s.adcPin]
	if !ok {
		return 0
	}
	if adc.stuck != nil {
		return *adc.stuck
	}
	value := int(adc.encode(s.plants[adc.plant].sensor))
	if s.noise > 0 {
		value += s.random.IntN(2*s.noise+1) - s.noise
	}
	if value < 0 {
		value = 0
	}
	if value > math.MaxUint16 {
		value = math.MaxUint16
	}
	return uint16(value)
}

func (s *Sim) DigitalWrite(pin Pin, level Level) {
	s.pins[pin].Store(bool(level))
}

func (s *Sim) DigitalRead(pin Pin) Level {
	return Level(s.pins[pin].Load())
}

func (s *Sim) NowMs() uint32 {
	return s.startMs + uint32(s.nowUs.Load()/1000)
}

func (s *Sim) WatchdogRefresh() {
	s.watchdogRefreshes.Add(1)
	s.lastWatchdogMs.Store(s.NowMs())
}

// WatchdogRefreshes returns how often the watchdog has been refreshed.
func (s *Sim) WatchdogRefreshes() uint64 {
	return s.watchdogRefreshes.Load()
}

// LastWatchdogRefresh returns the clock value of the most recent refresh.
func (s *Sim) LastWatchdogRefresh() uint32 {
	return s.lastWatchdogMs.Load()
}

func (s *Sim) ReadThermocouple(cs Pin, bits int) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tc, ok := s.thermocouples[cs]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownThermocouple, cs)
	}
	if tc.bits != bits {
		return 0, fmt.Errorf("thermocouple %d has a %d bit register, requested %d", cs, tc.bits, bits)
	}

	quarters := int32(math.Round(s.plants[tc.plant].sensor * 4))
	var word uint32
	if tc.bits == 16 {
		if quarters < 0 {
			quarters = 0
		}
		word = (uint32(quarters) & 0xFFF) << 3
	} else {
		word = (uint32(quarters) & 0x3FFF) << 18
	}
	return word | tc.fault, nil
}
