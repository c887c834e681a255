package hal

// Pin identifies a digital output, an ADC input or a chip select line.
type Pin uint8

type Level bool

const (
	Low  Level = false
	High Level = true
)

// Hal is the board capability the thermal core runs on.
// AdcStart, AdcReady and AdcValue are only ever called from interrupt context.
type Hal interface {
	// AdcStart starts a non-blocking conversion on the given pin
	AdcStart(pin Pin)
	// AdcReady reports whether the last started conversion has finished
	AdcReady() bool
	// AdcValue returns the result of the last finished conversion
	AdcValue() uint16

	DigitalWrite(pin Pin, level Level)
	DigitalRead(pin Pin) Level

	// NowMs returns a monotonic millisecond counter that wraps at 2^32
	NowMs() uint32

	WatchdogRefresh()
}

// ThermocoupleBus reads the raw register of an SPI thermocouple converter.
type ThermocoupleBus interface {
	// ReadThermocouple reads a big-endian word of the given bit width
	// from the converter selected by cs.
	ReadThermocouple(cs Pin, bits int) (uint32, error)
}
