package internal

import (
	"errors"
	"fmt"
	"time"

	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/control_loop"
	"github.com/markusressel/heat2go/internal/hal"
	"github.com/markusressel/heat2go/internal/persistence"
	"github.com/markusressel/heat2go/internal/protection"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/markusressel/heat2go/internal/softpwm"
	"github.com/markusressel/heat2go/internal/thermal"
	"github.com/markusressel/heat2go/internal/ui"
)

const (
	defaultSimAmbient      = 20.0
	defaultSimHeatCapacity = 10.0
)

// Board is a thermal manager running on the simulated board.
type Board struct {
	Sim     *hal.Sim
	Manager *thermal.Manager

	frequency int
	tick      time.Duration
	plants    map[string]int
}

type BoardOptions struct {
	Reporter thermal.StatusReporter
	Stopper  thermal.MotionStopper
	Store    thermal.ConstantsStore
	// Virtual runs one interrupt tick per main loop pass instead of
	// waiting for a real timer
	Virtual bool
	// IdleInterval is the pause between two main loop passes of a real time board
	IdleInterval time.Duration
}

// NewBoard creates the simulated board and the thermal manager described by config.
func NewBoard(config *configuration.Configuration, options BoardOptions) (*Board, error) {
	thermalConfig, err := NewThermalConfig(config)
	if err != nil {
		return nil, err
	}

	board := &Board{
		Sim:       hal.NewSim(0),
		frequency: thermalConfig.IsrFrequency,
		tick:      time.Second / time.Duration(thermalConfig.IsrFrequency),
		plants:    map[string]int{},
	}
	if err := board.attachPlants(config, thermalConfig); err != nil {
		return nil, err
	}

	var idleHook func()
	if options.Virtual {
		idleHook = board.Tick
	} else if options.IdleInterval > 0 {
		interval := options.IdleInterval
		idleHook = func() {
			time.Sleep(interval)
		}
	}

	board.Manager, err = thermal.New(thermalConfig, thermal.Options{
		Hal:      board.Sim,
		Bus:      board.Sim,
		Reporter: options.Reporter,
		Stopper:  options.Stopper,
		Store:    options.Store,
		IdleHook: idleHook,
	})
	if err != nil {
		return nil, err
	}
	return board, nil
}

// Frequency is the interrupt frequency in Hz.
func (b *Board) Frequency() int {
	return b.frequency
}

// Tick advances the virtual clock by one interrupt period and runs the interrupt.
func (b *Board) Tick() {
	b.Sim.Advance(b.tick)
	b.Manager.ISR()
}

// RunVirtual pumps the main loop of a virtual board for the given virtual time.
func (b *Board) RunVirtual(d time.Duration) {
	ticks := int64(d / b.tick)
	for i := int64(0); i < ticks; i++ {
		b.Manager.Idle()
	}
}

// Plant returns the index of the simulated plant behind a channel.
func (b *Board) Plant(channelId string) (int, bool) {
	plant, ok := b.plants[channelId]
	return plant, ok
}

// LoadConstants replaces the configured tuning of all channels with the
// persisted tuning results, if any.
func (b *Board) LoadConstants(p persistence.Persistence) {
	saved, err := p.LoadAllConstants()
	if err != nil {
		ui.Warning("Unable to load saved constants: %v", err)
		return
	}
	for channelId, constants := range saved {
		id, err := b.Manager.Lookup(channelId)
		if err != nil {
			ui.Warning("Saved constants for unknown channel %s", channelId)
			continue
		}
		if err := b.Manager.SetConstants(id, constants); err != nil {
			ui.Warning("Channel %s: saved constants not applied: %v", channelId, err)
			continue
		}
		ui.Info("Channel %s: using saved constants", channelId)
	}
}

// NewThermalConfig converts the configuration into the setup of a thermal manager.
func NewThermalConfig(config *configuration.Configuration) (thermal.Config, error) {
	result := thermal.Config{
		IsrFrequency:      config.Isr.Frequency,
		Oversample:        config.Isr.Oversample,
		SensorsReadyDwell: config.Isr.SensorsReadyDwell,
		StartupDelay:      config.Isr.StartupDelay,
		SoftPwm: softpwm.Config{
			Scale:        config.SoftPwm.Scale,
			Dither:       config.SoftPwm.Dither.Get(),
			MinStateTime: config.SoftPwm.MinStateTime,
		},
		FaultConfirmations: config.FaultConfirmations,
	}
	if result.IsrFrequency <= 0 {
		result.IsrFrequency = thermal.DefaultIsrFrequency
	}
	if result.Oversample <= 0 {
		result.Oversample = thermal.DefaultOversample
	}

	for _, channelConfig := range config.Channels {
		spec, err := newChannelSpec(channelConfig, config.Isr.AdcRange, result.Oversample)
		if err != nil {
			return thermal.Config{}, fmt.Errorf("channel %s: %w", channelConfig.ID, err)
		}
		result.Channels = append(result.Channels, spec)
	}

	for _, fanConfig := range config.Fans {
		spec := thermal.FanSpec{
			Id:          fanConfig.ID,
			Pin:         hal.Pin(fanConfig.Pin),
			Slow:        fanConfig.Slow,
			PartCooling: fanConfig.PartCooling,
		}
		if fanConfig.Auto != nil {
			spec.Auto = &thermal.AutoFanSpec{
				Channels:    fanConfig.Auto.Channels,
				Temperature: fanConfig.Auto.Temperature,
				Speed:       uint8(fanConfig.Auto.Speed),
			}
		}
		result.Fans = append(result.Fans, spec)
	}

	return result, nil
}

func newChannelSpec(c configuration.ChannelConfig, adcRange int, oversample int) (thermal.ChannelSpec, error) {
	kind, err := thermal.ParseChannelKind(c.Kind)
	if err != nil {
		return thermal.ChannelSpec{}, err
	}

	spec := thermal.ChannelSpec{
		Id:                    c.ID,
		Kind:                  kind,
		MinTemp:               c.MinTemp,
		MaxTemp:               c.MaxTemp,
		PreheatTime:           c.PreheatTime,
		ConsecutiveLowAllowed: c.ConsecutiveLowAllowed,
		IdleTimeout:           c.IdleTimeout,
		RedundantOf:           c.RedundantOf,
		RedundantMaxDiff:      c.RedundantMaxDiff,
	}

	switch {
	case c.Sensor.Thermocouple != nil:
		chip, err := sensors.ParseChip(c.Sensor.Thermocouple.Chip)
		if err != nil {
			return thermal.ChannelSpec{}, err
		}
		spec.Sensor = thermal.SensorSpec{
			Conversion: sensors.NewThermocoupleConversion(chip),
			Thermocouple: &thermal.ThermocoupleSpec{
				Cs:        hal.Pin(c.Sensor.Thermocouple.Cs),
				Chip:      chip,
				MaxErrors: c.Sensor.Thermocouple.MaxErrors,
			},
		}
	case c.Sensor.AdcPin != nil:
		conversion, err := NewConversion(c.Sensor, adcRange, oversample)
		if err != nil {
			return thermal.ChannelSpec{}, err
		}
		pin := hal.Pin(*c.Sensor.AdcPin)
		spec.Sensor = thermal.SensorSpec{Conversion: conversion, AdcPin: &pin}
	default:
		return thermal.ChannelSpec{}, errors.New("no sensor input configured")
	}

	if c.Heater != nil {
		spec.Heater = &thermal.HeaterSpec{
			Pin:      hal.Pin(c.Heater.Pin),
			Slow:     c.Heater.Slow,
			MaxPower: uint8(c.Heater.MaxPower),
		}
	}

	if c.Control != nil {
		controlKind, err := thermal.ParseControlKind(c.Control.Kind)
		if err != nil {
			return thermal.ChannelSpec{}, err
		}
		spec.Control = thermal.ControlSpec{
			Kind:            controlKind,
			Pid:             control_loop.DefaultPidConstants,
			FunctionalRange: c.Control.FunctionalRange,
			LagQueueLength:  c.Control.LagQueueLength,
			Hysteresis:      c.Control.Hysteresis,
			Extrusion:       c.Control.Extrusion,
			Fan:             c.Control.Fan,
		}
		if c.Control.Pid != nil {
			spec.Control.Pid = *c.Control.Pid
		}
		if c.Control.Mpc != nil {
			spec.Control.Mpc = *c.Control.Mpc
		}
	}

	if c.Runaway != nil {
		spec.Runaway = &protection.RunawayConfig{
			Period:             c.Runaway.Period,
			Hysteresis:         c.Runaway.Hysteresis,
			AdaptiveFanSlowing: c.Runaway.AdaptiveFanSlowing,
		}
	}
	if c.Variance != nil {
		spec.Variance = &thermal.VarianceSpec{
			Window:      c.Variance.Window,
			MinVariance: c.Variance.MinVariance,
		}
	}
	if c.Watch != nil {
		spec.Watch = &protection.WatchConfig{
			Period:     c.Watch.Period,
			Increase:   c.Watch.Increase,
			Hysteresis: c.Watch.Hysteresis,
		}
	}

	return spec, nil
}

// NewConversion creates the conversion of an ADC sensor for readings summed
// over oversample samples.
func NewConversion(sensor configuration.SensorConfig, adcRange int, oversample int) (sensors.Conversion, error) {
	switch {
	case sensor.Table != nil && len(sensor.Table.Builtin) > 0:
		return sensors.NewBuiltinConversion(sensor.Table.Builtin, adcRange, oversample)
	case sensor.Table != nil:
		return sensors.NewTableConversion(sensor.Table.Points, oversample)
	case sensor.Linear != nil:
		return sensors.NewLinearConversion(*sensor.Linear, adcRange, oversample)
	case sensor.SteinhartHart != nil:
		return sensors.NewSteinhartHartConversion(*sensor.SteinhartHart, adcRange, oversample)
	default:
		return sensors.Conversion{}, errors.New("no conversion configured")
	}
}

func (b *Board) attachPlants(config *configuration.Configuration, thermalConfig thermal.Config) error {
	fanPins := map[string]hal.Pin{}
	for _, fanConfig := range config.Fans {
		fanPins[fanConfig.ID] = hal.Pin(fanConfig.Pin)
	}

	// own plants first, shared plants are resolved afterwards
	var shared []configuration.ChannelConfig
	for i, c := range config.Channels {
		if c.Sim != nil && len(c.Sim.Plant) > 0 {
			shared = append(shared, c)
			continue
		}
		b.plants[c.ID] = b.Sim.AddPlant(newSimPlant(c, thermalConfig.Channels[i], fanPins))
	}
	for len(shared) > 0 {
		var pending []configuration.ChannelConfig
		for _, c := range shared {
			plant, ok := b.plants[c.Sim.Plant]
			if !ok {
				pending = append(pending, c)
				continue
			}
			b.plants[c.ID] = plant
		}
		if len(pending) == len(shared) {
			return fmt.Errorf("channel %s: sim plant '%s' cannot be resolved", pending[0].ID, pending[0].Sim.Plant)
		}
		shared = pending
	}

	for _, c := range config.Channels {
		plant := b.plants[c.ID]
		switch {
		case c.Sensor.Thermocouple != nil:
			chip, err := sensors.ParseChip(c.Sensor.Thermocouple.Chip)
			if err != nil {
				return err
			}
			if err := b.Sim.AttachThermocouple(hal.Pin(c.Sensor.Thermocouple.Cs), plant, chip.Bits()); err != nil {
				return fmt.Errorf("channel %s: %w", c.ID, err)
			}
		case c.Sensor.AdcPin != nil:
			encode, err := newEncoder(c.Sensor, config.Isr.AdcRange)
			if err != nil {
				return fmt.Errorf("channel %s: %w", c.ID, err)
			}
			if err := b.Sim.AttachAdc(hal.Pin(*c.Sensor.AdcPin), plant, encode); err != nil {
				return fmt.Errorf("channel %s: %w", c.ID, err)
			}
		}
	}
	return nil
}

func newSimPlant(c configuration.ChannelConfig, spec thermal.ChannelSpec, fanPins map[string]hal.Pin) hal.SimPlant {
	plant := hal.SimPlant{
		Ambient:      defaultSimAmbient,
		HeatCapacity: defaultSimHeatCapacity,
		Cooling:      spec.Kind == thermal.Cooler,
	}
	if spec.Heater != nil {
		plant.HeaterPin = spec.Heater.Pin
	}
	if c.Sim == nil {
		return plant
	}

	plant.Ambient = c.Sim.Ambient
	plant.HeaterPower = c.Sim.HeaterPower
	plant.Transfer = c.Sim.Transfer
	plant.FanTransfer = c.Sim.FanTransfer
	plant.SensorResponsiveness = c.Sim.SensorResponsiveness
	if c.Sim.HeatCapacity > 0 {
		plant.HeatCapacity = c.Sim.HeatCapacity
	}
	if pin, ok := fanPins[c.Sim.Fan]; ok {
		plant.FanPin = &pin
	}
	return plant
}

// newEncoder maps the temperature of a plant to a single ADC sample.
func newEncoder(sensor configuration.SensorConfig, adcRange int) (func(celsius float64) uint16, error) {
	single, err := NewConversion(sensor, adcRange, 1)
	if err != nil {
		return nil, err
	}
	return func(celsius float64) uint16 {
		raw := single.Raw(celsius)
		if raw < 0 {
			raw = 0
		}
		return uint16(raw)
	}, nil
}
