package control_loop

import "errors"

// PidConstants are the gains of a PidControlLoop. Ki and Kd are given per second.
type PidConstants struct {
	Kp float64 `json:"kp" yaml:"kp"`
	Ki float64 `json:"ki" yaml:"ki"`
	Kd float64 `json:"kd" yaml:"kd"`
	// Kc scales the extrusion feed forward term, 0 disables it
	Kc float64 `json:"kc,omitempty" yaml:"kc,omitempty"`
}

// MpcConstants describe the physical model of a heater block.
type MpcConstants struct {
	// HeaterPower is the power of the heater cartridge in W
	HeaterPower float64 `json:"heaterPower" yaml:"heaterPower"`
	// BlockHeatCapacity of the heater block in J/K
	BlockHeatCapacity float64 `json:"blockHeatCapacity" yaml:"blockHeatCapacity"`
	// SensorResponsiveness is the rate the sensor follows the block in 1/s
	SensorResponsiveness float64 `json:"sensorResponsiveness" yaml:"sensorResponsiveness"`
	// AmbientXferCoeffFan0 is the heat transfer to ambient with the fan off in W/K
	AmbientXferCoeffFan0 float64 `json:"ambientXferCoeffFan0" yaml:"ambientXferCoeffFan0"`
	// Fan255Adjustment is added to the transfer coefficient at full fan speed in W/K
	Fan255Adjustment float64 `json:"fan255Adjustment" yaml:"fan255Adjustment"`
	// FilamentHeatCapacityPerMm in J/K/mm
	FilamentHeatCapacityPerMm float64 `json:"filamentHeatCapacityPerMm" yaml:"filamentHeatCapacityPerMm"`
}

// Constants is the persisted tuning result of a channel, exactly one field is set.
type Constants struct {
	Pid *PidConstants `json:"pid,omitempty" yaml:"pid,omitempty"`
	Mpc *MpcConstants `json:"mpc,omitempty" yaml:"mpc,omitempty"`
}

func (c MpcConstants) Validate() error {
	if c.HeaterPower <= 0 {
		return errors.New("heater power must be positive")
	}
	if c.BlockHeatCapacity <= 0 {
		return errors.New("block heat capacity must be positive")
	}
	if c.SensorResponsiveness <= 0 {
		return errors.New("sensor responsiveness must be positive")
	}
	if c.AmbientXferCoeffFan0 < 0 {
		return errors.New("ambient transfer coefficient must not be negative")
	}
	return nil
}

func (c PidConstants) Validate() error {
	if c.Kp < 0 || c.Ki < 0 || c.Kd < 0 {
		return errors.New("pid gains must not be negative")
	}
	return nil
}
