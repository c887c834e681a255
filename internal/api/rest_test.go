package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/markusressel/heat2go/internal/control_loop"
	"github.com/markusressel/heat2go/internal/hal"
	"github.com/markusressel/heat2go/internal/persistence"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/markusressel/heat2go/internal/thermal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hotendAdc    hal.Pin = 1
	hotendHeater hal.Pin = 10
	partFan      hal.Pin = 12
)

var linearParams = sensors.LinearParams{Scale: 500, Gain: 1}

// newTestService runs a single hotend on a simulated board in virtual time.
func newTestService(t *testing.T) (*echo.Echo, *thermal.Loop, persistence.Persistence) {
	sim := hal.NewSim(0)
	plant := sim.AddPlant(hal.SimPlant{
		Ambient:      20,
		HeaterPower:  40,
		HeatCapacity: 16.7,
		Transfer:     0.068,
		HeaterPin:    hotendHeater,
	})
	single, err := sensors.NewLinearConversion(linearParams, 4096, 1)
	require.NoError(t, err)
	require.NoError(t, sim.AttachAdc(hotendAdc, plant, func(celsius float64) uint16 {
		return uint16(single.Raw(celsius))
	}))

	conversion, err := sensors.NewLinearConversion(linearParams, 4096, thermal.DefaultOversample)
	require.NoError(t, err)
	pin := hotendAdc

	var manager *thermal.Manager
	manager, err = thermal.New(thermal.Config{
		Channels: []thermal.ChannelSpec{
			{
				Id:      "hotend0",
				Kind:    thermal.Hotend,
				Sensor:  thermal.SensorSpec{Conversion: conversion, AdcPin: &pin},
				Heater:  &thermal.HeaterSpec{Pin: hotendHeater},
				Control: thermal.ControlSpec{Kind: thermal.ControlPid, Pid: control_loop.DefaultPidConstants},
				MinTemp: 5,
				MaxTemp: 275,
			},
		},
		Fans: []thermal.FanSpec{{Id: "part", Pin: partFan}},
	}, thermal.Options{
		Hal: sim,
		Bus: sim,
		IdleHook: func() {
			sim.Advance(time.Millisecond)
			manager.ISR()
		},
	})
	require.NoError(t, err)

	loop := thermal.NewLoop(manager)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	p := persistence.NewPersistence(filepath.Join(t.TempDir(), "heat2go.db"))
	require.NoError(t, p.Init())

	return CreateRestService(Backend{Loop: loop, Persistence: p}), loop, p
}

func request(e *echo.Echo, method string, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if len(body) > 0 {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAlive(t *testing.T) {
	// GIVEN
	e, _, _ := newTestService(t)

	// WHEN
	rec := request(e, http.MethodGet, "/alive", "")

	// THEN
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetChannels(t *testing.T) {
	// GIVEN
	e, _, _ := newTestService(t)

	// WHEN
	rec := request(e, http.MethodGet, "/channel/", "")

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	var channels []thermal.ChannelSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &channels))
	require.Len(t, channels, 1)
	assert.Equal(t, "hotend0", channels[0].Id)
	assert.Equal(t, "hotend", channels[0].Kind)
	assert.True(t, channels[0].Heated)
}

func TestGetChannel_NotFound(t *testing.T) {
	// GIVEN
	e, _, _ := newTestService(t)

	// WHEN
	rec := request(e, http.MethodGet, "/channel/bed/", "")

	// THEN
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetTarget(t *testing.T) {
	// GIVEN
	e, loop, _ := newTestService(t)

	// WHEN
	rec := request(e, http.MethodPost, "/channel/hotend0/target/", `{"target": 200}`)

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	target, err := loop.Manager().GetTarget(0)
	require.NoError(t, err)
	assert.Equal(t, 200.0, target)
}

func TestSetTarget_IsClamped(t *testing.T) {
	// GIVEN
	e, _, _ := newTestService(t)

	// WHEN
	rec := request(e, http.MethodPost, "/channel/hotend0/target/", `{"target": 300}`)

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	var channel thermal.ChannelSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &channel))
	assert.Equal(t, 260.0, channel.Target)
}

func TestSetTarget_Invalid(t *testing.T) {
	// GIVEN
	e, _, _ := newTestService(t)

	// WHEN
	missing := request(e, http.MethodPost, "/channel/hotend0/target/", `{}`)
	unknown := request(e, http.MethodPost, "/channel/bed/target/", `{"target": 60}`)

	// THEN
	assert.Equal(t, http.StatusBadRequest, missing.Code)
	assert.Equal(t, http.StatusNotFound, unknown.Code)
}

func TestSetFanSpeed(t *testing.T) {
	// GIVEN
	e, loop, _ := newTestService(t)

	// WHEN
	rec := request(e, http.MethodPost, "/fan/part/speed/", `{"speed": 128}`)

	// THEN
	require.Equal(t, http.StatusNoContent, rec.Code)
	fans := loop.Manager().Snapshot().Fans
	require.Len(t, fans, 1)
	assert.Equal(t, uint8(128), fans[0].Requested)

	assert.Equal(t, http.StatusBadRequest, request(e, http.MethodPost, "/fan/part/speed/", `{"speed": 300}`).Code)
	assert.Equal(t, http.StatusNotFound, request(e, http.MethodPost, "/fan/other/speed/", `{"speed": 1}`).Code)
}

func TestConstants(t *testing.T) {
	// GIVEN
	e, _, p := newTestService(t)

	// WHEN
	rec := request(e, http.MethodGet, "/constants/hotend0/", "")

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	var response ConstantsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.NotNil(t, response.Active.Pid)
	assert.Equal(t, control_loop.DefaultPidConstants.Kp, response.Active.Pid.Kp)
	assert.Nil(t, response.Saved)

	// WHEN
	rec = request(e, http.MethodPut, "/constants/hotend0/?save=true", `{"pid": {"kp": 10, "ki": 0.5, "kd": 50}}`)

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	saved, err := p.LoadConstants("hotend0")
	require.NoError(t, err)
	assert.Equal(t, 10.0, saved.Pid.Kp)

	rec = request(e, http.MethodGet, "/constants/hotend0/", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 10.0, response.Active.Pid.Kp)
	require.NotNil(t, response.Saved)

	// WHEN
	rec = request(e, http.MethodDelete, "/constants/hotend0/", "")

	// THEN
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, request(e, http.MethodDelete, "/constants/hotend0/", "").Code)
}

func TestSetConstants_WrongKind(t *testing.T) {
	// GIVEN
	e, _, _ := newTestService(t)

	// WHEN
	rec := request(e, http.MethodPut, "/constants/hotend0/", `{"mpc": {"heaterPower": 40, "blockHeatCapacity": 16, "sensorResponsiveness": 0.2}}`)

	// THEN
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetFaults_Empty(t *testing.T) {
	// GIVEN
	e, _, _ := newTestService(t)

	// WHEN
	rec := request(e, http.MethodGet, "/fault/", "")

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	var records []persistence.FaultRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Empty(t, records)
}

func TestAutotune_InvalidRequest(t *testing.T) {
	// GIVEN
	e, _, _ := newTestService(t)

	// WHEN
	method := request(e, http.MethodPost, "/autotune/", `{"channel": "hotend0", "method": "magic", "target": 200}`)
	channel := request(e, http.MethodPost, "/autotune/", `{"channel": "bed", "method": "pid", "target": 60}`)

	// THEN
	assert.Equal(t, http.StatusBadRequest, method.Code)
	assert.Equal(t, http.StatusNotFound, channel.Code)
}

func TestAutotune_FailedJob(t *testing.T) {
	// GIVEN
	e, _, _ := newTestService(t)

	// WHEN
	rec := request(e, http.MethodPost, "/autotune/", `{"channel": "hotend0", "method": "pid", "target": 0}`)

	// THEN
	require.Equal(t, http.StatusAccepted, rec.Code)
	var job AutotuneJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "1", job.Id)

	assert.Eventually(t, func() bool {
		rec := request(e, http.MethodGet, "/autotune/1/", "")
		var job AutotuneJob
		_ = json.Unmarshal(rec.Body.Bytes(), &job)
		return job.State == JobFailed && strings.Contains(job.Error, "invalid autotune target")
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, http.StatusNotFound, request(e, http.MethodGet, "/autotune/2/", "").Code)
}

func TestAutotune_Cancel(t *testing.T) {
	// GIVEN
	e, _, _ := newTestService(t)
	rec := request(e, http.MethodPost, "/autotune/", `{"channel": "hotend0", "method": "pid", "target": 200, "cycles": 5}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// WHEN
	cancel := request(e, http.MethodDelete, "/autotune/1/", "")

	// THEN
	assert.Equal(t, http.StatusAccepted, cancel.Code)
	assert.Eventually(t, func() bool {
		rec := request(e, http.MethodGet, "/autotune/1/", "")
		var job AutotuneJob
		_ = json.Unmarshal(rec.Body.Bytes(), &job)
		return job.State == JobCancelled
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDisableAll_DuringAutotune(t *testing.T) {
	// GIVEN
	e, loop, _ := newTestService(t)
	rec := request(e, http.MethodPost, "/autotune/", `{"channel": "hotend0", "method": "pid", "target": 200, "cycles": 20}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool {
		channel, _ := loop.Manager().Snapshot().Channel("hotend0")
		return channel.Power > 0
	}, 5*time.Second, time.Millisecond)

	// WHEN
	start := time.Now()
	disable := request(e, http.MethodDelete, "/channel/", "")

	// THEN
	assert.Equal(t, http.StatusNoContent, disable.Code)
	assert.Less(t, time.Since(start), time.Second)
	assert.Eventually(t, func() bool {
		rec := request(e, http.MethodGet, "/autotune/1/", "")
		var job AutotuneJob
		_ = json.Unmarshal(rec.Body.Bytes(), &job)
		return job.State == JobCancelled
	}, 5*time.Second, 10*time.Millisecond)
	channel, _ := loop.Manager().Snapshot().Channel("hotend0")
	assert.Equal(t, 0, int(channel.Power))
	assert.Equal(t, 0.0, channel.Target)
}

func TestAutotune_SecondJobIsRejected(t *testing.T) {
	// GIVEN
	e, _, _ := newTestService(t)
	body := `{"channel": "hotend0", "method": "pid", "target": 200, "cycles": 20}`
	require.Equal(t, http.StatusAccepted, request(e, http.MethodPost, "/autotune/", body).Code)

	// WHEN
	second := request(e, http.MethodPost, "/autotune/", body)

	// THEN
	assert.Equal(t, http.StatusConflict, second.Code)
	request(e, http.MethodDelete, "/autotune/1/", "")
}

func TestMetrics(t *testing.T) {
	// GIVEN
	e, _, _ := newTestService(t)
	request(e, http.MethodGet, "/alive/", "")

	// WHEN
	rec := request(e, http.MethodGet, "/metrics/", "")

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "heat2go_api_requests_total")
}
