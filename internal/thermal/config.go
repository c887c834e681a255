package thermal

import (
	"time"

	"github.com/markusressel/heat2go/internal/control_loop"
	"github.com/markusressel/heat2go/internal/hal"
	"github.com/markusressel/heat2go/internal/protection"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/markusressel/heat2go/internal/softpwm"
)

const (
	DefaultIsrFrequency       = 1000
	DefaultOversample         = 16
	DefaultSensorsReadyDwell  = 2
	DefaultFaultConfirmations = 1

	// autoFanIntervalMs is the time between two auto fan updates
	autoFanIntervalMs = 2500
)

// ThermocoupleSpec selects an SPI thermocouple converter.
type ThermocoupleSpec struct {
	Cs        hal.Pin
	Chip      sensors.Chip
	MaxErrors int
}

// SensorSpec describes where a channel gets its raw readings from.
// Exactly one of AdcPin and Thermocouple is set.
type SensorSpec struct {
	Conversion   sensors.Conversion
	AdcPin       *hal.Pin
	Thermocouple *ThermocoupleSpec
}

type HeaterSpec struct {
	Pin hal.Pin
	// Slow selects the relay friendly slow pwm
	Slow bool
	// MaxPower limits the power level, 0 means 255
	MaxPower uint8
}

type ControlSpec struct {
	Kind ControlKind
	Pid  control_loop.PidConstants
	Mpc  control_loop.MpcConstants

	FunctionalRange float64
	LagQueueLength  int
	// Hysteresis of the bang-bang control
	Hysteresis float64
	// Extrusion enables the extrusion dependent terms of PID and MPC
	Extrusion bool
	// Fan is the id of the fan cooling this heater, used by MPC
	Fan string
}

type VarianceSpec struct {
	// Window is the number of readings a stuck temperature is tolerated
	Window      int
	MinVariance float64
}

type ChannelSpec struct {
	Id   string
	Kind ChannelKind

	Sensor  SensorSpec
	Heater  *HeaterSpec
	Control ControlSpec

	MinTemp float64
	MaxTemp float64

	Runaway  *protection.RunawayConfig
	Variance *VarianceSpec
	Watch    *protection.WatchConfig

	PreheatTime           time.Duration
	ConsecutiveLowAllowed int
	IdleTimeout           time.Duration

	// RedundantOf is the id of the channel this sensor double checks
	RedundantOf      string
	RedundantMaxDiff float64
}

type AutoFanSpec struct {
	// Channels trigger the fan when any of them is above Temperature
	Channels    []string
	Temperature float64
	Speed       uint8
}

type FanSpec struct {
	Id   string
	Pin  hal.Pin
	Slow bool
	Auto *AutoFanSpec
	// PartCooling fans are slowed down by the runaway monitor of these channels
	PartCooling []string
}

type Config struct {
	IsrFrequency      int
	Oversample        int
	SensorsReadyDwell int
	StartupDelay      int
	SoftPwm           softpwm.Config
	// FaultConfirmations is the number of consecutive passes a fault must
	// be observed before the manager halts
	FaultConfirmations int

	Channels []ChannelSpec
	Fans     []FanSpec
}

// Options are the collaborators of a Manager, all but Hal are optional.
type Options struct {
	Hal      hal.Hal
	Bus      hal.ThermocoupleBus
	Reporter StatusReporter
	Stopper  MotionStopper
	Motion   MotionSource
	Store    ConstantsStore
	// IdleHook is called on every Idle pass, after Task
	IdleHook func()
}
