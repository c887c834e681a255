package thermal

import (
	"context"
	"testing"
	"time"

	"github.com/markusressel/heat2go/internal/control_loop"
	"github.com/markusressel/heat2go/internal/hal"
	"github.com/markusressel/heat2go/internal/protection"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsInvalidConfig(t *testing.T) {
	sim := hal.NewSim(0)

	_, err := New(Config{}, Options{})
	assert.Error(t, err)

	spec := hotendSpec(t)
	_, err = New(Config{Channels: []ChannelSpec{spec, spec}}, Options{Hal: sim})
	assert.ErrorContains(t, err, "duplicate channel id")

	readOnly := hotendSpec(t)
	readOnly.Kind = Probe
	_, err = New(Config{Channels: []ChannelSpec{readOnly}}, Options{Hal: sim})
	assert.ErrorContains(t, err, "can not drive a heater")

	noControl := hotendSpec(t)
	noControl.Control = ControlSpec{}
	_, err = New(Config{Channels: []ChannelSpec{noControl}}, Options{Hal: sim})
	assert.Error(t, err)

	redundant := hotendSpec(t)
	redundant.Heater = nil
	redundant.RedundantOf = "missing"
	_, err = New(Config{Channels: []ChannelSpec{redundant}}, Options{Hal: sim})
	assert.ErrorIs(t, err, ErrUnknownChannel)

	tc := ChannelSpec{
		Id:   "tc",
		Kind: Hotend,
		Sensor: SensorSpec{
			Conversion:   sensors.NewThermocoupleConversion(sensors.ChipMax6675),
			Thermocouple: &ThermocoupleSpec{Cs: thermocoupleCs, Chip: sensors.ChipMax6675},
		},
	}
	_, err = New(Config{Channels: []ChannelSpec{tc}}, Options{Hal: sim})
	assert.ErrorContains(t, err, "no bus")
}

func TestManager_HoldsTargetWithPid(t *testing.T) {
	// GIVEN
	spec := hotendSpec(t)
	spec.Runaway = &protection.RunawayConfig{Hysteresis: 4, Period: 40 * time.Second}
	r := newHotendRig(t, spec, nil)
	require.NoError(t, r.manager.SetTarget(0, 200))

	// WHEN
	settled, err := r.manager.WaitFor(context.Background(), 0, WaitPolicy{Timeout: 10 * time.Minute})

	// THEN
	require.NoError(t, err)
	assert.True(t, settled)
	assert.InDelta(t, 200, r.current(0), DefaultWaitHysteresis)
	assert.False(t, r.manager.Halted())
	assert.Empty(t, r.reporter.Fatal())
}

func TestManager_HoldsTargetWithMpc(t *testing.T) {
	// GIVEN
	spec := hotendSpec(t)
	spec.Control = ControlSpec{Kind: ControlMpc, Mpc: hotendMpc}
	r := newHotendRig(t, spec, nil)
	require.NoError(t, r.manager.SetTarget(0, 200))

	// WHEN
	settled, err := r.manager.WaitFor(context.Background(), 0, WaitPolicy{Timeout: 10 * time.Minute})

	// THEN
	require.NoError(t, err)
	assert.True(t, settled)
	assert.InDelta(t, 200, r.current(0), DefaultWaitHysteresis)
}

func TestManager_BangBangBed(t *testing.T) {
	// GIVEN
	spec := ChannelSpec{
		Id:      "bed",
		Kind:    Bed,
		Sensor:  linearSensor(t, bedAdc),
		Heater:  &HeaterSpec{Pin: bedHeater, Slow: true},
		Control: ControlSpec{Kind: ControlBangBang, Hysteresis: 2},
		MinTemp: 5,
		MaxTemp: 130,
	}
	r := newRig(t, Config{Channels: []ChannelSpec{spec}}, func(sim *hal.Sim) {
		plant := sim.AddPlant(hal.SimPlant{Ambient: 20, HeaterPower: 200, HeatCapacity: 500, Transfer: 1.2, HeaterPin: bedHeater})
		require.NoError(t, sim.AttachAdc(bedAdc, plant, encoder(t)))
	})
	require.NoError(t, r.manager.SetTarget(0, 60))

	// WHEN
	settled, err := r.manager.WaitFor(context.Background(), 0, WaitPolicy{Timeout: 30 * time.Minute})

	// THEN
	require.NoError(t, err)
	assert.True(t, settled)
	assert.InDelta(t, 60, r.current(0), DefaultWaitHysteresis)
}

func TestManager_CoolerDrivesOutputAboveTarget(t *testing.T) {
	// GIVEN
	spec := ChannelSpec{
		Id:      "cooler",
		Kind:    Cooler,
		Sensor:  linearSensor(t, hotendAdc),
		Heater:  &HeaterSpec{Pin: hotendHeater},
		Control: ControlSpec{Kind: ControlBangBang, Hysteresis: 1},
		Runaway: &protection.RunawayConfig{Hysteresis: 4},
		MinTemp: 1,
		MaxTemp: 60,
	}
	var plant int
	r := newRig(t, Config{Channels: []ChannelSpec{spec}}, func(sim *hal.Sim) {
		plant = sim.AddPlant(hal.SimPlant{Ambient: 30, HeaterPower: 30, HeatCapacity: 50, Transfer: 0.5, HeaterPin: hotendHeater, Cooling: true})
		require.NoError(t, sim.AttachAdc(hotendAdc, plant, encoder(t)))
	})
	r.run(time.Second)
	require.NoError(t, r.manager.SetTarget(0, 10))

	// WHEN
	r.run(10 * time.Minute)

	// THEN
	assert.InDelta(t, 10, r.sim.PlantTemperature(plant), 3)
	assert.False(t, r.manager.Halted())

	snapshot, _ := r.manager.Snapshot().Channel("cooler")
	assert.Empty(t, snapshot.Runaway)
}

func TestManager_RunawayHaltsDisconnectedHeater(t *testing.T) {
	// GIVEN
	spec := hotendSpec(t)
	spec.Runaway = &protection.RunawayConfig{Hysteresis: 4, Period: 40 * time.Second}
	r := newHotendRig(t, spec, nil)
	require.NoError(t, r.manager.SetTarget(0, 200))
	settled, err := r.manager.WaitFor(context.Background(), 0, WaitPolicy{Timeout: 10 * time.Minute})
	require.NoError(t, err)
	require.True(t, settled)
	stable := r.runUntil(func() bool {
		snapshot, _ := r.manager.Snapshot().Channel("hotend0")
		return snapshot.Runaway == protection.Stable.String()
	}, 5*time.Minute)
	require.True(t, stable)

	// WHEN
	r.sim.DisconnectHeater(0, true)
	disconnectedAt := r.sim.NowMs()
	halted := r.runUntil(r.manager.Halted, 5*time.Minute)
	r.run(100 * time.Millisecond)

	// THEN
	require.True(t, halted)
	assert.GreaterOrEqual(t, r.sim.NowMs()-disconnectedAt, uint32(40000))

	fault := r.manager.Fault()
	require.NotNil(t, fault)
	assert.Equal(t, KindThermalRunaway, fault.Kind)
	assert.Equal(t, "hotend0", fault.Channel)

	reports := r.reporter.Fatal()
	require.Len(t, reports, 1)
	assert.Equal(t, KindThermalRunaway, reports[0].kind)
	assert.EqualValues(t, 1, r.stopper.stops.Load())

	assert.ErrorIs(t, r.manager.SetTarget(0, 200), ErrHalted)
	target, _ := r.manager.GetTarget(0)
	assert.Zero(t, target)
	assert.Zero(t, r.power("hotend0"))
	assert.Equal(t, hal.Low, r.sim.DigitalRead(hotendHeater))

	snapshot := r.manager.Snapshot()
	assert.True(t, snapshot.Halted)
	require.NotNil(t, snapshot.Fault)
	assert.Equal(t, KindThermalRunaway.String(), snapshot.Fault.Kind)
}

func TestManager_StuckSensorIsMalfunction(t *testing.T) {
	// GIVEN
	spec := hotendSpec(t)
	spec.Runaway = &protection.RunawayConfig{Hysteresis: 4, Period: 40 * time.Second}
	spec.Variance = &VarianceSpec{Window: 20, MinVariance: 0.05}
	r := newHotendRig(t, spec, nil)
	require.NoError(t, r.manager.SetTarget(0, 200))
	stable := r.runUntil(func() bool {
		snapshot, _ := r.manager.Snapshot().Channel("hotend0")
		return snapshot.Runaway == protection.Stable.String()
	}, 10*time.Minute)
	require.True(t, stable)

	// WHEN
	r.sim.StickSensor(hotendAdc, encoder(t)(r.current(0)))
	halted := r.runUntil(r.manager.Halted, time.Minute)
	r.run(100 * time.Millisecond)

	// THEN
	require.True(t, halted)
	fault := r.manager.Fault()
	require.NotNil(t, fault)
	assert.Equal(t, KindThermalMalfunction, fault.Kind)
	assert.Equal(t, "thermal malfunction", fault.Kind.String())

	reports := r.reporter.Fatal()
	require.Len(t, reports, 1)
	assert.Equal(t, KindThermalMalfunction, reports[0].kind)
	assert.Zero(t, r.power("hotend0"))
}

func TestManager_HeatingFailedWhenHeaterIsDisconnected(t *testing.T) {
	// GIVEN
	spec := hotendSpec(t)
	spec.Runaway = &protection.RunawayConfig{Hysteresis: 4}
	spec.Watch = &protection.WatchConfig{Period: 20 * time.Second, Increase: 2}
	r := newHotendRig(t, spec, nil)
	r.sim.DisconnectHeater(0, true)
	r.run(time.Second)

	// WHEN
	require.NoError(t, r.manager.SetTarget(0, 200))
	start := r.sim.NowMs()
	halted := r.runUntil(r.manager.Halted, time.Minute)

	// THEN
	require.True(t, halted)
	assert.GreaterOrEqual(t, r.sim.NowMs()-start, uint32(20000))
	assert.Equal(t, KindHeatingFailed, r.manager.Fault().Kind)
}

func TestManager_TransientFaultIsConfirmedBeforeHalting(t *testing.T) {
	// GIVEN
	spec := hotendSpec(t)
	r := newHotendRig(t, spec, func(config *Config) {
		config.FaultConfirmations = 5
	})
	encode := encoder(t)
	r.run(time.Second)

	// WHEN
	r.sim.StickSensor(hotendAdc, encode(300))
	r.run(128 * time.Millisecond)
	r.sim.UnstickSensor(hotendAdc)
	r.run(time.Second)

	// THEN
	assert.False(t, r.manager.Halted())
	assert.Empty(t, r.reporter.Fatal())

	// WHEN
	r.sim.StickSensor(hotendAdc, encode(300))
	r.run(time.Second)

	// THEN
	assert.True(t, r.manager.Halted())
	assert.Equal(t, KindMaxTemp, r.manager.Fault().Kind)
	assert.Len(t, r.reporter.Fatal(), 1)
}

func TestManager_MinTempOnlyWhileHeating(t *testing.T) {
	// GIVEN
	r := newHotendRig(t, hotendSpec(t), nil)
	r.sim.StickSensor(hotendAdc, 0)

	// WHEN
	r.run(time.Second)

	// THEN
	assert.False(t, r.manager.Halted())

	// WHEN
	require.NoError(t, r.manager.SetTarget(0, 100))
	r.run(time.Second)

	// THEN
	assert.True(t, r.manager.Halted())
	assert.Equal(t, KindMinTemp, r.manager.Fault().Kind)
}

func TestManager_ThermocoupleFaultIsReportedPastThreshold(t *testing.T) {
	// GIVEN
	spec := ChannelSpec{
		Id:   "tc",
		Kind: Hotend,
		Sensor: SensorSpec{
			Conversion:   sensors.NewThermocoupleConversion(sensors.ChipMax6675),
			Thermocouple: &ThermocoupleSpec{Cs: thermocoupleCs, Chip: sensors.ChipMax6675, MaxErrors: 15},
		},
		MinTemp: 5,
		MaxTemp: 300,
	}
	r := newRig(t, Config{Channels: []ChannelSpec{spec}}, func(sim *hal.Sim) {
		plant := sim.AddPlant(hal.SimPlant{Ambient: 25, HeatCapacity: 1})
		require.NoError(t, sim.AttachThermocouple(thermocoupleCs, plant, 16))
	})
	r.run(time.Second)
	require.Equal(t, 25.0, r.current(0))

	// WHEN
	r.sim.SetThermocoupleFault(thermocoupleCs, 4)
	r.run(3 * time.Second)

	// THEN
	assert.False(t, r.manager.Halted())
	assert.Equal(t, 25.0, r.current(0))

	// WHEN
	r.run(3 * time.Second)

	// THEN
	assert.True(t, r.manager.Halted())
	assert.Equal(t, KindSensorFault, r.manager.Fault().Kind)
	assert.Equal(t, 1024.0, r.current(0))
}

func TestManager_RedundantMismatchHaltsPrimary(t *testing.T) {
	// GIVEN
	redundant := ChannelSpec{
		Id:          "hotend0_redundant",
		Kind:        Redundant,
		Sensor:      linearSensor(t, redundantAdc),
		RedundantOf: "hotend0",
	}
	config := Config{Channels: []ChannelSpec{hotendSpec(t), redundant}}
	var second int
	r := newRig(t, config, func(sim *hal.Sim) {
		first := sim.AddPlant(hotendPlant())
		second = sim.AddPlant(hal.SimPlant{Ambient: 20, HeatCapacity: 1})
		require.NoError(t, sim.AttachAdc(hotendAdc, first, encoder(t)))
		require.NoError(t, sim.AttachAdc(redundantAdc, second, encoder(t)))
	})
	r.run(time.Second)
	require.False(t, r.manager.Halted())

	// WHEN
	r.sim.SetPlantTemperature(second, 40)
	r.run(time.Second)

	// THEN
	assert.True(t, r.manager.Halted())
	fault := r.manager.Fault()
	assert.Equal(t, KindRedundantMismatch, fault.Kind)
	assert.Equal(t, "hotend0", fault.Channel)
}

func TestManager_AutoFanFollowsTemperature(t *testing.T) {
	// GIVEN
	config := Config{
		Channels: []ChannelSpec{hotendSpec(t)},
		Fans: []FanSpec{{
			Id:   "hotend_fan",
			Pin:  partFan,
			Auto: &AutoFanSpec{Channels: []string{"hotend0"}, Temperature: 50, Speed: 255},
		}},
	}
	var plant int
	r := newRig(t, config, func(sim *hal.Sim) {
		plant = sim.AddPlant(hotendPlant())
		require.NoError(t, sim.AttachAdc(hotendAdc, plant, encoder(t)))
	})
	r.run(3 * time.Second)
	require.Zero(t, r.manager.Snapshot().Fans[0].Power)

	// WHEN
	r.sim.SetPlantTemperature(plant, 80)
	r.run(3 * time.Second)

	// THEN
	assert.EqualValues(t, 255, r.manager.Snapshot().Fans[0].Power)
	assert.Equal(t, hal.High, r.sim.DigitalRead(partFan))
}

func TestManager_SetFanSpeed(t *testing.T) {
	// GIVEN
	config := Config{
		Channels: []ChannelSpec{hotendSpec(t)},
		Fans:     []FanSpec{{Id: "part", Pin: partFan, PartCooling: []string{"hotend0"}}},
	}
	r := newRig(t, config, func(sim *hal.Sim) {
		plant := sim.AddPlant(hotendPlant())
		require.NoError(t, sim.AttachAdc(hotendAdc, plant, encoder(t)))
	})

	// WHEN
	require.NoError(t, r.manager.SetFanSpeed("part", 200))
	r.run(100 * time.Millisecond)

	// THEN
	fan := r.manager.Snapshot().Fans[0]
	assert.EqualValues(t, 200, fan.Requested)
	assert.EqualValues(t, 200, fan.Power)
	assert.ErrorIs(t, r.manager.SetFanSpeed("missing", 1), ErrUnknownFan)
}

func TestManager_SetTarget(t *testing.T) {
	// GIVEN
	sensor := ChannelSpec{Id: "board", Kind: Board, Sensor: linearSensor(t, redundantAdc)}
	config := Config{Channels: []ChannelSpec{hotendSpec(t), sensor}}
	r := newRig(t, config, func(sim *hal.Sim) {
		plant := sim.AddPlant(hotendPlant())
		require.NoError(t, sim.AttachAdc(hotendAdc, plant, encoder(t)))
		require.NoError(t, sim.AttachAdc(redundantAdc, plant, encoder(t)))
	})

	// WHEN
	require.NoError(t, r.manager.SetTarget(0, 300))

	// THEN
	target, err := r.manager.GetTarget(0)
	require.NoError(t, err)
	assert.Equal(t, 260.0, target)

	require.NoError(t, r.manager.SetTarget(0, -5))
	target, _ = r.manager.GetTarget(0)
	assert.Zero(t, target)

	assert.ErrorIs(t, r.manager.SetTarget(1, 50), ErrNoHeater)
	assert.ErrorIs(t, r.manager.SetTarget(7, 50), ErrUnknownChannel)

	id, err := r.manager.Lookup("board")
	require.NoError(t, err)
	assert.Equal(t, ChannelId(1), id)
	_, err = r.manager.Lookup("missing")
	assert.ErrorIs(t, err, ErrUnknownChannel)
	assert.Equal(t, []ChannelId{0, 1}, r.manager.ChannelIds())
}

func TestManager_IsHeating(t *testing.T) {
	// GIVEN
	r := newHotendRig(t, hotendSpec(t), nil)
	r.run(time.Second)

	// WHEN
	require.NoError(t, r.manager.SetTarget(0, 100))

	// THEN
	heating, err := r.manager.IsHeating(0)
	require.NoError(t, err)
	assert.True(t, heating)
}

func TestManager_IdleTimeoutSwitchesHeaterOff(t *testing.T) {
	// GIVEN
	spec := hotendSpec(t)
	spec.IdleTimeout = 5 * time.Second
	r := newHotendRig(t, spec, nil)
	require.NoError(t, r.manager.SetTarget(0, 200))
	r.run(2 * time.Second)
	require.Positive(t, r.power("hotend0"))

	// WHEN
	require.NoError(t, r.manager.StartIdleTimer(0))
	r.run(6 * time.Second)

	// THEN
	snapshot, _ := r.manager.Snapshot().Channel("hotend0")
	assert.True(t, snapshot.Idle)
	assert.Zero(t, snapshot.Power)
	assert.Equal(t, 200.0, snapshot.Target)

	// WHEN
	require.NoError(t, r.manager.ResetIdleTimer(0))
	r.run(time.Second)

	// THEN
	assert.Positive(t, r.power("hotend0"))
}

func TestManager_DisableAll(t *testing.T) {
	// GIVEN
	r := newHotendRig(t, hotendSpec(t), nil)
	require.NoError(t, r.manager.SetTarget(0, 200))
	r.run(time.Second)
	require.Positive(t, r.power("hotend0"))

	// WHEN
	r.manager.DisableAll()
	r.run(time.Second)

	// THEN
	target, _ := r.manager.GetTarget(0)
	assert.Zero(t, target)
	assert.Zero(t, r.power("hotend0"))
	assert.False(t, r.manager.Halted())
}

func TestManager_SetConstants(t *testing.T) {
	// GIVEN
	r := newHotendRig(t, hotendSpec(t), nil)
	pid := control_loop.PidConstants{Kp: 10, Ki: 1, Kd: 50}

	// WHEN
	err := r.manager.SetConstants(0, control_loop.Constants{Pid: &pid})

	// THEN
	require.NoError(t, err)
	constants, err := r.manager.Constants(0)
	require.NoError(t, err)
	require.NotNil(t, constants.Pid)
	assert.Equal(t, pid, *constants.Pid)

	assert.Error(t, r.manager.SetConstants(0, control_loop.Constants{Mpc: &hotendMpc}))
	assert.Error(t, r.manager.SetConstants(0, control_loop.Constants{Pid: &control_loop.PidConstants{Kp: -1}}))
}

func TestManager_RefreshesWatchdog(t *testing.T) {
	// GIVEN
	r := newHotendRig(t, hotendSpec(t), nil)

	// WHEN
	r.run(500 * time.Millisecond)

	// THEN
	assert.EqualValues(t, 500, r.sim.WatchdogRefreshes())
	assert.Equal(t, uint32(499), r.sim.LastWatchdogRefresh())
}
