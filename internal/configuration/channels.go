package configuration

import (
	"time"

	"github.com/markusressel/heat2go/internal/control_loop"
	"github.com/markusressel/heat2go/internal/sensors"
)

type ChannelConfig struct {
	ID string `json:"id" yaml:"id"`
	// Kind is one of: hotend | bed | chamber | cooler | probe | board | redundant
	Kind string `json:"kind" yaml:"kind"`

	Sensor  SensorConfig   `json:"sensor" yaml:"sensor"`
	Heater  *HeaterConfig  `json:"heater,omitempty" yaml:"heater,omitempty"`
	Control *ControlConfig `json:"control,omitempty" yaml:"control,omitempty"`

	MinTemp float64 `json:"minTemp" yaml:"minTemp"`
	MaxTemp float64 `json:"maxTemp" yaml:"maxTemp"`

	Runaway  *RunawayConfig  `json:"runaway,omitempty" yaml:"runaway,omitempty"`
	Variance *VarianceConfig `json:"variance,omitempty" yaml:"variance,omitempty"`
	Watch    *WatchConfig    `json:"watch,omitempty" yaml:"watch,omitempty"`

	PreheatTime           time.Duration `json:"preheatTime,omitempty" yaml:"preheatTime,omitempty"`
	ConsecutiveLowAllowed int           `json:"consecutiveLowAllowed,omitempty" yaml:"consecutiveLowAllowed,omitempty"`
	IdleTimeout           time.Duration `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty"`

	RedundantOf      string  `json:"redundantOf,omitempty" yaml:"redundantOf,omitempty"`
	RedundantMaxDiff float64 `json:"redundantMaxDiff,omitempty" yaml:"redundantMaxDiff,omitempty"`

	Sim *SimConfig `json:"sim,omitempty" yaml:"sim,omitempty"`
}

// SensorConfig selects the input of a channel and how its readings are converted.
type SensorConfig struct {
	AdcPin       *int                `json:"adcPin,omitempty" yaml:"adcPin,omitempty"`
	Thermocouple *ThermocoupleConfig `json:"thermocouple,omitempty" yaml:"thermocouple,omitempty"`

	Table         *TableConfig                 `json:"table,omitempty" yaml:"table,omitempty"`
	Linear        *sensors.LinearParams        `json:"linear,omitempty" yaml:"linear,omitempty"`
	SteinhartHart *sensors.SteinhartHartParams `json:"steinhartHart,omitempty" yaml:"steinhartHart,omitempty"`
}

type ThermocoupleConfig struct {
	Cs int `json:"cs" yaml:"cs"`
	// Chip is one of: max6675 | max31855
	Chip      string `json:"chip" yaml:"chip"`
	MaxErrors int    `json:"maxErrors,omitempty" yaml:"maxErrors,omitempty"`
}

type TableConfig struct {
	// Builtin is the id of a built-in thermistor table
	Builtin string      `json:"builtin,omitempty" yaml:"builtin,omitempty"`
	Points  TablePoints `json:"points,omitempty" yaml:"points,omitempty"`
}

// TablePoints map single-sample ADC readings to temperatures.
type TablePoints []sensors.TablePoint

type HeaterConfig struct {
	Pin      int  `json:"pin" yaml:"pin"`
	Slow     bool `json:"slow,omitempty" yaml:"slow,omitempty"`
	MaxPower int  `json:"maxPower,omitempty" yaml:"maxPower,omitempty"`
}

type ControlConfig struct {
	// Kind is one of: pid | mpc | bangBang
	Kind string                     `json:"kind" yaml:"kind"`
	Pid  *control_loop.PidConstants `json:"pid,omitempty" yaml:"pid,omitempty"`
	Mpc  *control_loop.MpcConstants `json:"mpc,omitempty" yaml:"mpc,omitempty"`

	FunctionalRange float64 `json:"functionalRange,omitempty" yaml:"functionalRange,omitempty"`
	LagQueueLength  int     `json:"lagQueueLength,omitempty" yaml:"lagQueueLength,omitempty"`
	Hysteresis      float64 `json:"hysteresis,omitempty" yaml:"hysteresis,omitempty"`
	Extrusion       bool    `json:"extrusion,omitempty" yaml:"extrusion,omitempty"`
	Fan             string  `json:"fan,omitempty" yaml:"fan,omitempty"`
}

type RunawayConfig struct {
	Period             time.Duration `json:"period,omitempty" yaml:"period,omitempty"`
	Hysteresis         float64       `json:"hysteresis,omitempty" yaml:"hysteresis,omitempty"`
	AdaptiveFanSlowing bool          `json:"adaptiveFanSlowing,omitempty" yaml:"adaptiveFanSlowing,omitempty"`
}

type VarianceConfig struct {
	Window      int     `json:"window" yaml:"window"`
	MinVariance float64 `json:"minVariance" yaml:"minVariance"`
}

type WatchConfig struct {
	Period     time.Duration `json:"period,omitempty" yaml:"period,omitempty"`
	Increase   float64       `json:"increase,omitempty" yaml:"increase,omitempty"`
	Hysteresis float64       `json:"hysteresis,omitempty" yaml:"hysteresis,omitempty"`
}

// SimConfig describes the simulated plant behind a channel.
type SimConfig struct {
	// Plant attaches the sensor to the plant of another channel
	Plant string `json:"plant,omitempty" yaml:"plant,omitempty"`

	Ambient              float64 `json:"ambient" yaml:"ambient"`
	HeaterPower          float64 `json:"heaterPower,omitempty" yaml:"heaterPower,omitempty"`
	HeatCapacity         float64 `json:"heatCapacity,omitempty" yaml:"heatCapacity,omitempty"`
	Transfer             float64 `json:"transfer,omitempty" yaml:"transfer,omitempty"`
	FanTransfer          float64 `json:"fanTransfer,omitempty" yaml:"fanTransfer,omitempty"`
	SensorResponsiveness float64 `json:"sensorResponsiveness,omitempty" yaml:"sensorResponsiveness,omitempty"`
	// Fan is the id of the fan blowing at the plant
	Fan string `json:"fan,omitempty" yaml:"fan,omitempty"`
}
