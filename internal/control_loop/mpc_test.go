package control_loop

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFan struct {
	speed uint8
}

func (f *mockFan) FanSpeed() uint8 {
	return f.speed
}

var testMpcConstants = MpcConstants{
	HeaterPower:          40,
	BlockHeatCapacity:    16.7,
	SensorResponsiveness: 0.22,
	AmbientXferCoeffFan0: 0.068,
	Fan255Adjustment:     0.1,
}

func TestMpcControlLoop_SeedsModelFromFirstReading(t *testing.T) {
	// GIVEN
	loop := NewMpcControlLoop(testMpcConstants, MpcOptions{Period: 0.1})
	block, _, _ := loop.Model()
	require.True(t, math.IsNaN(block))

	// WHEN
	result := loop.Loop(0, 25)

	// THEN
	assert.Equal(t, 0.0, result)
	block, sensor, ambient := loop.Model()
	assert.InDelta(t, 25, block, 0.01)
	assert.InDelta(t, 25, sensor, 0.01)
	assert.InDelta(t, 25, ambient, 0.2)
}

func TestMpcControlLoop_AmbientSeedIsCapped(t *testing.T) {
	// GIVEN
	loop := NewMpcControlLoop(testMpcConstants, MpcOptions{Period: 0.1})

	// WHEN
	loop.Loop(0, 180)

	// THEN
	_, _, ambient := loop.Model()
	assert.LessOrEqual(t, ambient, 30.2)
}

func TestMpcControlLoop_FanIncreasesPower(t *testing.T) {
	// GIVEN
	withoutFan := NewMpcControlLoop(testMpcConstants, MpcOptions{Period: 0.1, Fan: &mockFan{speed: 0}})
	withFan := NewMpcControlLoop(testMpcConstants, MpcOptions{Period: 0.1, Fan: &mockFan{speed: 255}})

	// WHEN
	powerWithoutFan := withoutFan.Loop(100, 100)
	powerWithFan := withFan.Loop(100, 100)

	// THEN
	assert.Greater(t, powerWithoutFan, 0.0)
	assert.Greater(t, powerWithFan, powerWithoutFan)
}

func TestMpcControlLoop_ReachesTarget(t *testing.T) {
	// GIVEN
	dT := 0.1
	loop := NewMpcControlLoop(testMpcConstants, MpcOptions{Period: dT})
	ambient := 22.0
	block := ambient
	sensor := ambient
	power := 0.0

	// WHEN
	for i := 0; i < int(600/dT); i++ {
		power = loop.Loop(200, sensor)
		heat := power / MaxPower * testMpcConstants.HeaterPower
		loss := (block - ambient) * testMpcConstants.AmbientXferCoeffFan0
		block += (heat - loss) * dT / testMpcConstants.BlockHeatCapacity
		sensor += (block - sensor) * testMpcConstants.SensorResponsiveness * dT
	}

	// THEN
	assert.InDelta(t, 200, sensor, 2)
	// holding needs roughly (200-22)*0.068 W of the 40 W heater
	assert.InDelta(t, (200-ambient)*0.068/40*MaxPower, power, 20)
}

func TestMpcControlLoop_ResetReseeds(t *testing.T) {
	// GIVEN
	loop := NewMpcControlLoop(testMpcConstants, MpcOptions{Period: 0.1})
	loop.Loop(200, 25)

	// WHEN
	loop.Reset()
	loop.Loop(0, 80)

	// THEN
	block, _, _ := loop.Model()
	assert.InDelta(t, 80, block, 0.1)
}

func TestMpcControlLoop_SetModel(t *testing.T) {
	// GIVEN
	loop := NewMpcControlLoop(testMpcConstants, MpcOptions{Period: 0.1})

	// WHEN
	loop.SetModel(150, 140, 22)
	result := loop.Loop(150, 140)

	// THEN
	block, sensor, ambient := loop.Model()
	assert.Greater(t, result, 0.0)
	assert.Less(t, block, 150.0)
	assert.InDelta(t, 140, sensor, 1)
	assert.InDelta(t, 22, ambient, 0.2)
}

func TestMpcControlLoop_CappedOutputIsNotFullHeaterPower(t *testing.T) {
	// GIVEN
	loop := NewMpcControlLoop(testMpcConstants, MpcOptions{Period: 0.1, MaxPower: 128})
	loop.SetModel(20, 20, 20)
	capped := loop.Loop(200, 20)
	loop.SetModel(20, 20, 20)

	expectedBlock := 20 + 128.0/MaxPower*testMpcConstants.HeaterPower*0.1/testMpcConstants.BlockHeatCapacity
	expectedSensor := 20 + (expectedBlock-20)*testMpcConstants.SensorResponsiveness*0.1

	// WHEN
	loop.Loop(200, expectedSensor)

	// THEN
	assert.Equal(t, 128.0, capped)
	block, _, _ := loop.Model()
	assert.InDelta(t, expectedBlock, block, 1e-6)
}
