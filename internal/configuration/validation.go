package configuration

import (
	"errors"
	"fmt"

	"github.com/looplab/tarjan"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/markusressel/heat2go/internal/thermal"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/util"
	"golang.org/x/exp/slices"
)

func Validate(configPath string) error {
	return validateConfig(&CurrentConfig, configPath)
}

func validateConfig(config *Configuration, path string) error {
	if config.Isr.AdcRange <= 1 {
		return fmt.Errorf("invalid adc range: %d", config.Isr.AdcRange)
	}
	if config.SoftPwm.Scale > 7 {
		return fmt.Errorf("invalid soft pwm scale %d, must be between 0 and 7", config.SoftPwm.Scale)
	}

	err := validateChannels(config)
	if err != nil {
		return err
	}
	err = validateFans(config)
	if err != nil {
		return err
	}
	err = validatePins(config)
	if err != nil {
		return err
	}

	if len(config.Stop.Exec) > 0 {
		if _, err := util.CheckFilePermissionsForExecution(path); err != nil {
			return fmt.Errorf("config file '%s' has invalid permissions: %w", path, err)
		}
	}

	return nil
}

func validateChannels(config *Configuration) error {
	var ids []string
	graph := make(map[interface{}][]interface{})

	for _, channelConfig := range config.Channels {
		if len(channelConfig.ID) <= 0 {
			return errors.New("channel id must not be empty")
		}
		if slices.Contains(ids, channelConfig.ID) {
			return fmt.Errorf("duplicate channel id detected: %s", channelConfig.ID)
		}
		ids = append(ids, channelConfig.ID)

		kind, err := thermal.ParseChannelKind(channelConfig.Kind)
		if err != nil {
			return fmt.Errorf("Channel %s: %w", channelConfig.ID, err)
		}

		err = validateSensor(channelConfig)
		if err != nil {
			return err
		}

		if channelConfig.Heater != nil {
			err = validateHeater(channelConfig, kind, config)
			if err != nil {
				return err
			}
		} else if channelConfig.Control != nil {
			return fmt.Errorf("Channel %s: control configured without a heater", channelConfig.ID)
		}

		if channelConfig.MaxTemp > 0 && channelConfig.MaxTemp <= channelConfig.MinTemp {
			return fmt.Errorf("Channel %s: maxTemp must be above minTemp", channelConfig.ID)
		}

		if channelConfig.Variance != nil && channelConfig.Runaway == nil {
			ui.Warning("Channel %s: variance check is only active together with runaway protection", channelConfig.ID)
		}

		graph[channelConfig.ID] = []interface{}{}
		if len(channelConfig.RedundantOf) > 0 {
			if kind != thermal.Redundant {
				return fmt.Errorf("Channel %s: redundantOf requires kind 'redundant'", channelConfig.ID)
			}
			if !channelIdExists(channelConfig.RedundantOf, config) {
				return fmt.Errorf("Channel %s: no channel definition with id '%s' found", channelConfig.ID, channelConfig.RedundantOf)
			}
			graph[channelConfig.ID] = append(graph[channelConfig.ID], channelConfig.RedundantOf)
		}
		if channelConfig.Sim != nil && len(channelConfig.Sim.Plant) > 0 {
			if !channelIdExists(channelConfig.Sim.Plant, config) {
				return fmt.Errorf("Channel %s: no channel definition with id '%s' found for sim plant", channelConfig.ID, channelConfig.Sim.Plant)
			}
			graph[channelConfig.ID] = append(graph[channelConfig.ID], channelConfig.Sim.Plant)
		}
	}

	return validateNoLoops(graph)
}

func validateSensor(channelConfig ChannelConfig) error {
	sensor := channelConfig.Sensor

	inputs := 0
	if sensor.AdcPin != nil {
		inputs++
	}
	if sensor.Thermocouple != nil {
		inputs++
	}
	if inputs > 1 {
		return fmt.Errorf("Channel %s: only one sensor input can be used per channel", channelConfig.ID)
	}
	if inputs <= 0 {
		return fmt.Errorf("Channel %s: sensor input is missing, use one of: adcPin | thermocouple", channelConfig.ID)
	}

	conversions := 0
	if sensor.Table != nil {
		conversions++
	}
	if sensor.Linear != nil {
		conversions++
	}
	if sensor.SteinhartHart != nil {
		conversions++
	}

	if sensor.Thermocouple != nil {
		if conversions > 0 {
			return fmt.Errorf("Channel %s: thermocouples do not use a conversion", channelConfig.ID)
		}
		_, err := sensors.ParseChip(sensor.Thermocouple.Chip)
		if err != nil {
			return fmt.Errorf("Channel %s: %w", channelConfig.ID, err)
		}
		return nil
	}

	if *sensor.AdcPin < 0 || *sensor.AdcPin > 255 {
		return fmt.Errorf("Channel %s: invalid adc pin %d", channelConfig.ID, *sensor.AdcPin)
	}
	if conversions > 1 {
		return fmt.Errorf("Channel %s: only one conversion can be used per sensor", channelConfig.ID)
	}
	if conversions <= 0 {
		return fmt.Errorf("Channel %s: conversion is missing, use one of: table | linear | steinhartHart", channelConfig.ID)
	}

	if sensor.Table != nil {
		table := sensor.Table
		if len(table.Builtin) > 0 && len(table.Points) > 0 {
			return fmt.Errorf("Channel %s: use either a builtin table or points", channelConfig.ID)
		}
		if len(table.Builtin) > 0 && !slices.Contains(sensors.BuiltinTableIds(), table.Builtin) {
			return fmt.Errorf("Channel %s: unknown builtin table '%s', use one of: %v", channelConfig.ID, table.Builtin, sensors.BuiltinTableIds())
		}
		if len(table.Builtin) <= 0 && len(table.Points) < 2 {
			return fmt.Errorf("Channel %s: a table needs at least two points", channelConfig.ID)
		}
	}

	return nil
}

func validateHeater(channelConfig ChannelConfig, kind thermal.ChannelKind, config *Configuration) error {
	if !kind.Actuated() {
		return fmt.Errorf("Channel %s: channels of kind '%s' cannot have a heater", channelConfig.ID, kind)
	}
	if channelConfig.Heater.MaxPower < 0 || channelConfig.Heater.MaxPower > 255 {
		return fmt.Errorf("Channel %s: invalid maxPower %d, must be between 0 and 255", channelConfig.ID, channelConfig.Heater.MaxPower)
	}
	if channelConfig.Control == nil {
		return fmt.Errorf("Channel %s: heater configured without control", channelConfig.ID)
	}
	if channelConfig.MaxTemp <= 0 {
		return fmt.Errorf("Channel %s: maxTemp is required for heated channels", channelConfig.ID)
	}

	control := channelConfig.Control
	controlKind, err := thermal.ParseControlKind(control.Kind)
	if err != nil {
		return fmt.Errorf("Channel %s: %w", channelConfig.ID, err)
	}

	if kind == thermal.Cooler && controlKind != thermal.ControlBangBang {
		return fmt.Errorf("Channel %s: coolers only support bangBang control", channelConfig.ID)
	}

	switch controlKind {
	case thermal.ControlNone:
		return fmt.Errorf("Channel %s: control kind is missing, use one of: pid | mpc | bangBang", channelConfig.ID)
	case thermal.ControlPid:
		if control.Pid != nil {
			if err := control.Pid.Validate(); err != nil {
				return fmt.Errorf("Channel %s: %w", channelConfig.ID, err)
			}
			if control.Pid.Kp == 0 && control.Pid.Ki == 0 && control.Pid.Kd == 0 {
				return fmt.Errorf("Channel %s: all PID constants are zero", channelConfig.ID)
			}
		}
	case thermal.ControlMpc:
		if control.Mpc == nil {
			return fmt.Errorf("Channel %s: missing mpc constants", channelConfig.ID)
		}
		if err := control.Mpc.Validate(); err != nil {
			return fmt.Errorf("Channel %s: %w", channelConfig.ID, err)
		}
	case thermal.ControlBangBang:
		if kind == thermal.Hotend {
			ui.Warning("Channel %s: bang-bang control of a hotend", channelConfig.ID)
		}
	}

	if len(control.Fan) > 0 && !fanIdExists(control.Fan, config) {
		return fmt.Errorf("Channel %s: no fan definition with id '%s' found", channelConfig.ID, control.Fan)
	}

	return nil
}

func validateNoLoops(graph map[interface{}][]interface{}) error {
	output := tarjan.Connections(graph)
	for _, items := range output {
		if len(items) > 1 {
			return fmt.Errorf("You have created a channel dependency cycle: %v", items)
		}
		for _, item := range items {
			if slices.Contains(graph[item], item) {
				return fmt.Errorf("Channel %v depends on itself", item)
			}
		}
	}
	return nil
}

func channelIdExists(channelId string, config *Configuration) bool {
	for _, channel := range config.Channels {
		if channel.ID == channelId {
			return true
		}
	}

	return false
}

func fanIdExists(fanId string, config *Configuration) bool {
	for _, fan := range config.Fans {
		if fan.ID == fanId {
			return true
		}
	}

	return false
}

func validateFans(config *Configuration) error {
	var ids []string
	for _, fanConfig := range config.Fans {
		if len(fanConfig.ID) <= 0 {
			return errors.New("fan id must not be empty")
		}
		if slices.Contains(ids, fanConfig.ID) {
			return fmt.Errorf("duplicate fan id detected: %s", fanConfig.ID)
		}
		ids = append(ids, fanConfig.ID)

		if fanConfig.Auto != nil {
			auto := fanConfig.Auto
			if len(auto.Channels) <= 0 {
				return fmt.Errorf("Fan %s: auto fan without channels", fanConfig.ID)
			}
			for _, channelId := range auto.Channels {
				if !channelIdExists(channelId, config) {
					return fmt.Errorf("Fan %s: no channel definition with id '%s' found", fanConfig.ID, channelId)
				}
			}
			if auto.Speed <= 0 || auto.Speed > 255 {
				return fmt.Errorf("Fan %s: invalid auto fan speed %d, must be between 1 and 255", fanConfig.ID, auto.Speed)
			}
		}

		for _, channelId := range fanConfig.PartCooling {
			if !channelIdExists(channelId, config) {
				return fmt.Errorf("Fan %s: no channel definition with id '%s' found", fanConfig.ID, channelId)
			}
		}
	}

	return nil
}

// validatePins checks that no output is driven twice and no input is read twice.
func validatePins(config *Configuration) error {
	outputs := map[int]string{}
	adcs := map[int]string{}
	chipSelects := map[int]string{}

	claim := func(pins map[int]string, pin int, owner string, class string) error {
		if pin < 0 || pin > 255 {
			return fmt.Errorf("%s: invalid %s pin %d", owner, class, pin)
		}
		if other, exists := pins[pin]; exists {
			return fmt.Errorf("%s: %s pin %d is already used by %s", owner, class, pin, other)
		}
		pins[pin] = owner
		return nil
	}

	for _, channelConfig := range config.Channels {
		owner := "Channel " + channelConfig.ID
		if channelConfig.Heater != nil {
			if err := claim(outputs, channelConfig.Heater.Pin, owner, "output"); err != nil {
				return err
			}
		}
		if channelConfig.Sensor.AdcPin != nil {
			if err := claim(adcs, *channelConfig.Sensor.AdcPin, owner, "adc"); err != nil {
				return err
			}
		}
		if channelConfig.Sensor.Thermocouple != nil {
			if err := claim(chipSelects, channelConfig.Sensor.Thermocouple.Cs, owner, "chip select"); err != nil {
				return err
			}
		}
	}
	for _, fanConfig := range config.Fans {
		if err := claim(outputs, fanConfig.Pin, "Fan "+fanConfig.ID, "output"); err != nil {
			return err
		}
	}

	return nil
}
