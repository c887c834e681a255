package configuration

import (
	"fmt"
	"testing"

	"github.com/markusressel/heat2go/internal/control_loop"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int {
	return &v
}

func createValidConfig() Configuration {
	return Configuration{
		Isr: IsrConfig{
			Frequency:         1000,
			Oversample:        16,
			SensorsReadyDwell: 2,
			AdcRange:          4096,
		},
		Channels: []ChannelConfig{
			{
				ID:   "hotend0",
				Kind: "hotend",
				Sensor: SensorConfig{
					AdcPin: intPtr(1),
					Linear: &sensors.LinearParams{Scale: 500, Gain: 1},
				},
				Heater: &HeaterConfig{Pin: 10},
				Control: &ControlConfig{
					Kind: "pid",
					Pid:  &control_loop.PidConstants{Kp: 22.2, Ki: 1.08, Kd: 114},
					Fan:  "part",
				},
				MinTemp: 5,
				MaxTemp: 275,
			},
			{
				ID:   "bed",
				Kind: "bed",
				Sensor: SensorConfig{
					AdcPin: intPtr(2),
					Table:  &TableConfig{Builtin: "1"},
				},
				Heater:  &HeaterConfig{Pin: 11, Slow: true},
				Control: &ControlConfig{Kind: "bangBang"},
				MinTemp: 5,
				MaxTemp: 125,
			},
			{
				ID:   "hotend0-redundant",
				Kind: "redundant",
				Sensor: SensorConfig{
					Thermocouple: &ThermocoupleConfig{Cs: 20, Chip: "max31855"},
				},
				MaxTemp:     300,
				RedundantOf: "hotend0",
				Sim:         &SimConfig{Plant: "hotend0"},
			},
		},
		Fans: []FanConfig{
			{ID: "part", Pin: 12},
			{
				ID:   "hotend-fan",
				Pin:  13,
				Auto: &AutoFanConfig{Channels: []string{"hotend0"}, Temperature: 50, Speed: 255},
			},
		},
	}
}

func TestValidateValidConfig(t *testing.T) {
	// GIVEN
	config := createValidConfig()

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.NoError(t, err)
}

func TestValidateInvalidAdcRange(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Isr.AdcRange = 1

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "invalid adc range: 1")
}

func TestValidateDuplicateChannelId(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	duplicate := config.Channels[1]
	duplicate.Sensor.AdcPin = intPtr(3)
	config.Channels = append(config.Channels, duplicate)

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, fmt.Sprintf("duplicate channel id detected: %s", duplicate.ID))
}

func TestValidateUnknownChannelKind(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Channels[0].Kind = "toaster"

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Channel hotend0: unknown channel kind 'toaster'")
}

func TestValidateSensorInputIsMissing(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Channels[0].Sensor.AdcPin = nil

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Channel hotend0: sensor input is missing, use one of: adcPin | thermocouple")
}

func TestValidateMultipleConversions(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Channels[0].Sensor.Table = &TableConfig{Builtin: "1"}

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Channel hotend0: only one conversion can be used per sensor")
}

func TestValidateThermocoupleWithConversion(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Channels[2].Sensor.Linear = &sensors.LinearParams{Scale: 500, Gain: 1}

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Channel hotend0-redundant: thermocouples do not use a conversion")
}

func TestValidateUnknownBuiltinTable(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Channels[1].Sensor.Table.Builtin = "unknown"

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.ErrorContains(t, err, "Channel bed: unknown builtin table 'unknown'")
}

func TestValidateTableWithSinglePoint(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Channels[1].Sensor.Table = &TableConfig{Points: TablePoints{{Raw: 100, Celsius: 200}}}

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Channel bed: a table needs at least two points")
}

func TestValidateHeaterOnSensorOnlyKind(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Channels[2].Heater = &HeaterConfig{Pin: 30}

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Channel hotend0-redundant: channels of kind 'redundant' cannot have a heater")
}

func TestValidateHeaterWithoutMaxTemp(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Channels[0].MaxTemp = 0

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Channel hotend0: maxTemp is required for heated channels")
}

func TestValidatePidConstantsAllZero(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Channels[0].Control.Pid = &control_loop.PidConstants{}

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Channel hotend0: all PID constants are zero")
}

func TestValidateMpcConstantsMissing(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Channels[0].Control = &ControlConfig{Kind: "mpc"}

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Channel hotend0: missing mpc constants")
}

func TestValidateControlFanIsNotDefined(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Channels[0].Control.Fan = "missing"

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Channel hotend0: no fan definition with id 'missing' found")
}

func TestValidateMaxTempBelowMinTemp(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Channels[1].MinTemp = 130

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Channel bed: maxTemp must be above minTemp")
}

func TestValidateRedundantOfRequiresRedundantKind(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Channels[1].RedundantOf = "hotend0"

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Channel bed: redundantOf requires kind 'redundant'")
}

func TestValidateSimPlantIsNotDefined(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Channels[2].Sim.Plant = "missing"

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Channel hotend0-redundant: no channel definition with id 'missing' found for sim plant")
}

func TestValidateSimPlantDependsOnItself(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Channels[1].Sim = &SimConfig{Plant: "bed"}

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Channel bed depends on itself")
}

func TestValidateSimPlantCycle(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Channels[0].Sim = &SimConfig{Plant: "hotend0-redundant"}

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.ErrorContains(t, err, "You have created a channel dependency cycle")
}

func TestValidateDuplicateFanId(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Fans = append(config.Fans, FanConfig{ID: "part", Pin: 14})

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "duplicate fan id detected: part")
}

func TestValidateAutoFanChannelIsNotDefined(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Fans[1].Auto.Channels = []string{"missing"}

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Fan hotend-fan: no channel definition with id 'missing' found")
}

func TestValidateAutoFanSpeedOutOfRange(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Fans[1].Auto.Speed = 0

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Fan hotend-fan: invalid auto fan speed 0, must be between 1 and 255")
}

func TestValidateOutputPinUsedTwice(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Fans[0].Pin = 10

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Fan part: output pin 10 is already used by Channel hotend0")
}

func TestValidateAdcPinUsedTwice(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Channels[1].Sensor.AdcPin = intPtr(1)

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Channel bed: adc pin 1 is already used by Channel hotend0")
}

func TestValidateCoolerRequiresBangBang(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Channels[1].Kind = "cooler"
	config.Channels[1].Control.Kind = "pid"

	// WHEN
	err := validateConfig(&config, "")

	// THEN
	assert.EqualError(t, err, "Channel bed: coolers only support bangBang control")
}
