package sensors

import (
	"fmt"
	"math"
	"strings"

	"github.com/markusressel/heat2go/internal/hal"
	"github.com/markusressel/heat2go/internal/ui"
)

const (
	// ThermocoupleIntervalMs is the minimum time between two register reads
	ThermocoupleIntervalMs = 250
	// DefaultThermocoupleMaxErrors is the number of consecutive faulted reads
	// that are tolerated before the fault is reported
	DefaultThermocoupleMaxErrors = 15

	thermocoupleMaxCelsius = 1024
)

// Chip is a supported SPI thermocouple converter.
type Chip int

const (
	ChipMax6675 Chip = iota
	ChipMax31855
)

func (c Chip) String() string {
	switch c {
	case ChipMax6675:
		return "max6675"
	case ChipMax31855:
		return "max31855"
	default:
		return fmt.Sprintf("Chip(%d)", int(c))
	}
}

// ParseChip parses the configuration name of a chip.
func ParseChip(name string) (Chip, error) {
	switch strings.ToLower(name) {
	case "max6675":
		return ChipMax6675, nil
	case "max31855":
		return ChipMax31855, nil
	default:
		return 0, fmt.Errorf("unknown thermocouple chip '%s', use one of: max6675 | max31855", name)
	}
}

// Bits is the register width of the chip.
func (c Chip) Bits() int {
	if c == ChipMax31855 {
		return 32
	}
	return 16
}

// Sentinel is the raw value returned for a faulted sensor. It converts to a
// temperature above any sane maximum so the max temperature check fires.
func (c Chip) Sentinel() Raw {
	return thermocoupleMaxCelsius * 4
}

func (c Chip) rawMin() Raw {
	if c == ChipMax31855 {
		return -(1 << 13)
	}
	return 0
}

type Fault int

const (
	FaultNone Fault = iota
	FaultOpenCircuit
	FaultShortToGround
	FaultShortToVcc
	FaultBus
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultOpenCircuit:
		return "open circuit"
	case FaultShortToGround:
		return "short to GND"
	case FaultShortToVcc:
		return "short to VCC"
	case FaultBus:
		return "bus error"
	default:
		return fmt.Sprintf("Fault(%d)", int(f))
	}
}

// decode strips the status bits of a register word and sign extends the result.
// The returned raw value is in quarter degrees.
func (c Chip) decode(word uint32) (Raw, Fault) {
	switch c {
	case ChipMax31855:
		switch {
		case word&1 != 0:
			return 0, FaultOpenCircuit
		case word&2 != 0:
			return 0, FaultShortToGround
		case word&4 != 0:
			return 0, FaultShortToVcc
		}
		value := int32(word >> 18)
		if value&0x2000 != 0 {
			value |= ^int32(0x3FFF)
		}
		return Raw(value), FaultNone
	default:
		if word&4 != 0 {
			return 0, FaultOpenCircuit
		}
		return Raw((word >> 3) & 0xFFF), FaultNone
	}
}

// NewThermocoupleConversion creates the conversion for decoded registers of the given chip.
func NewThermocoupleConversion(chip Chip) Conversion {
	return Conversion{
		kind: KindThermocouple,
		celsius: func(raw Raw) float64 {
			return float64(raw) * 0.25
		},
		raw: func(celsius float64) Raw {
			return Raw(math.Round(celsius * 4))
		},
		rawMin:     chip.rawMin(),
		rawMax:     chip.Sentinel(),
		increasing: true,
		step:       1,
	}
}

// FaultError is returned once a thermocouple has been faulted for more
// consecutive reads than allowed.
type FaultError struct {
	Chip        Chip
	Fault       Fault
	Consecutive int
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s: %s (%d consecutive faulted reads)", e.Chip, e.Fault, e.Consecutive)
}

// ThermocoupleReader reads a thermocouple converter at most every ThermocoupleIntervalMs
// and tracks consecutive faults.
type ThermocoupleReader struct {
	bus       hal.ThermocoupleBus
	cs        hal.Pin
	chip      Chip
	maxErrors int

	started    bool
	nextReadMs uint32
	last       Raw
	errors     int
	reported   bool
}

func NewThermocoupleReader(bus hal.ThermocoupleBus, cs hal.Pin, chip Chip, maxErrors int) *ThermocoupleReader {
	if maxErrors < 0 {
		maxErrors = DefaultThermocoupleMaxErrors
	}
	return &ThermocoupleReader{
		bus:       bus,
		cs:        cs,
		chip:      chip,
		maxErrors: maxErrors,
	}
}

func (r *ThermocoupleReader) Chip() Chip {
	return r.chip
}

// Errors returns the number of consecutive faulted reads.
func (r *ThermocoupleReader) Errors() int {
	return r.errors
}

// Read returns the current raw value. While faults are tolerated the last good
// value is returned, past the threshold the chip sentinel is returned and a
// *FaultError is returned exactly once per run of faulted reads.
func (r *ThermocoupleReader) Read(now uint32) (Raw, error) {
	if r.started && hal.Pending(now, r.nextReadMs) {
		return r.value(), nil
	}
	r.started = true
	r.nextReadMs = now + ThermocoupleIntervalMs

	var raw Raw
	fault := FaultBus
	word, err := r.bus.ReadThermocouple(r.cs, r.chip.Bits())
	if err == nil {
		raw, fault = r.chip.decode(word)
	} else {
		ui.Debug("Thermocouple %d read failed: %v", r.cs, err)
	}

	if fault == FaultNone {
		r.errors = 0
		r.reported = false
		r.last = raw
		return raw, nil
	}

	r.errors++
	if r.errors <= r.maxErrors {
		ui.Debug("Thermocouple %d: %s (%d/%d)", r.cs, fault, r.errors, r.maxErrors)
		return r.last, nil
	}
	if r.reported {
		return r.chip.Sentinel(), nil
	}
	r.reported = true
	ui.Error("Temperature measurement error! %s: %s", r.chip, fault)
	return r.chip.Sentinel(), &FaultError{
		Chip:        r.chip,
		Fault:       fault,
		Consecutive: r.errors,
	}
}

func (r *ThermocoupleReader) value() Raw {
	if r.errors > r.maxErrors {
		return r.chip.Sentinel()
	}
	return r.last
}
