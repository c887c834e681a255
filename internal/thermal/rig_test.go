package thermal

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/markusressel/heat2go/internal/control_loop"
	"github.com/markusressel/heat2go/internal/hal"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/stretchr/testify/require"
)

const (
	hotendAdc      hal.Pin = 1
	redundantAdc   hal.Pin = 2
	bedAdc         hal.Pin = 3
	hotendHeater   hal.Pin = 10
	bedHeater      hal.Pin = 11
	partFan        hal.Pin = 12
	thermocoupleCs hal.Pin = 20

	adcRange = 4096
)

var linearParams = sensors.LinearParams{Scale: 500, Gain: 1}

type reportCall struct {
	channel string
	kind    ErrorKind
	err     error
}

type mockReporter struct {
	mu          sync.Mutex
	fatal       []reportCall
	recoverable []reportCall
}

func (r *mockReporter) ReportFatal(channel string, kind ErrorKind, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fatal = append(r.fatal, reportCall{channel, kind, err})
}

func (r *mockReporter) ReportRecoverable(channel string, kind ErrorKind, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recoverable = append(r.recoverable, reportCall{channel, kind, err})
}

func (r *mockReporter) Fatal() []reportCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reportCall{}, r.fatal...)
}

func (r *mockReporter) Recoverable() []reportCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reportCall{}, r.recoverable...)
}

type mockStopper struct {
	stops atomic.Int32
}

func (s *mockStopper) Stop() {
	s.stops.Add(1)
}

type mockStore struct {
	saved map[string]control_loop.Constants
}

func (s *mockStore) SaveConstants(channel string, constants control_loop.Constants) error {
	s.saved[channel] = constants
	return nil
}

// rig runs a Manager against a simulated board. Every Idle pass advances
// the virtual clock by one millisecond and runs one interrupt tick.
type rig struct {
	t        *testing.T
	sim      *hal.Sim
	manager  *Manager
	reporter *mockReporter
	stopper  *mockStopper
	store    *mockStore

	// onIdle is called after every interrupt tick
	onIdle func()
}

func newRig(t *testing.T, config Config, setup func(sim *hal.Sim)) *rig {
	r := &rig{
		t:        t,
		sim:      hal.NewSim(0),
		reporter: &mockReporter{},
		stopper:  &mockStopper{},
		store:    &mockStore{saved: map[string]control_loop.Constants{}},
	}
	if setup != nil {
		setup(r.sim)
	}

	manager, err := New(config, Options{
		Hal:      r.sim,
		Bus:      r.sim,
		Reporter: r.reporter,
		Stopper:  r.stopper,
		Store:    r.store,
		IdleHook: func() {
			r.sim.Advance(time.Millisecond)
			r.manager.ISR()
			if r.onIdle != nil {
				r.onIdle()
			}
		},
	})
	require.NoError(t, err)
	r.manager = manager
	return r
}

// run pumps Idle for the given virtual time.
func (r *rig) run(d time.Duration) {
	for i := int64(0); i < d.Milliseconds(); i++ {
		r.manager.Idle()
	}
}

// runUntil pumps Idle until condition holds or limit has passed.
func (r *rig) runUntil(condition func() bool, limit time.Duration) bool {
	for i := int64(0); i < limit.Milliseconds(); i++ {
		if condition() {
			return true
		}
		r.manager.Idle()
	}
	return condition()
}

func (r *rig) current(id ChannelId) float64 {
	current, err := r.manager.GetCurrent(id)
	require.NoError(r.t, err)
	return current
}

func (r *rig) power(name string) uint8 {
	ch, ok := r.manager.Snapshot().Channel(name)
	require.True(r.t, ok)
	return ch.Power
}

// encoder maps a temperature to a single sample of the linear sensor.
func encoder(t *testing.T) func(celsius float64) uint16 {
	single, err := sensors.NewLinearConversion(linearParams, adcRange, 1)
	require.NoError(t, err)
	return func(celsius float64) uint16 {
		return uint16(single.Raw(celsius))
	}
}

func linearSensor(t *testing.T, pin hal.Pin) SensorSpec {
	conversion, err := sensors.NewLinearConversion(linearParams, adcRange, DefaultOversample)
	require.NoError(t, err)
	return SensorSpec{Conversion: conversion, AdcPin: &pin}
}

func hotendPlant() hal.SimPlant {
	return hal.SimPlant{
		Ambient:              20,
		HeaterPower:          40,
		HeatCapacity:         16.7,
		Transfer:             0.068,
		SensorResponsiveness: 0.22,
		HeaterPin:            hotendHeater,
	}
}

var hotendMpc = control_loop.MpcConstants{
	HeaterPower:          40,
	BlockHeatCapacity:    16.7,
	SensorResponsiveness: 0.22,
	AmbientXferCoeffFan0: 0.068,
}

func hotendSpec(t *testing.T) ChannelSpec {
	return ChannelSpec{
		Id:     "hotend0",
		Kind:   Hotend,
		Sensor: linearSensor(t, hotendAdc),
		Heater: &HeaterSpec{Pin: hotendHeater},
		Control: ControlSpec{
			Kind: ControlPid,
			Pid:  control_loop.DefaultPidConstants,
		},
		MinTemp: 5,
		MaxTemp: 275,
	}
}

// newHotendRig creates a rig with a single hotend on plant 0.
func newHotendRig(t *testing.T, spec ChannelSpec, modify func(config *Config)) *rig {
	config := Config{Channels: []ChannelSpec{spec}}
	if modify != nil {
		modify(&config)
	}
	return newRig(t, config, func(sim *hal.Sim) {
		plant := sim.AddPlant(hotendPlant())
		require.NoError(t, sim.AttachAdc(hotendAdc, plant, encoder(t)))
	})
}
