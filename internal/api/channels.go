package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/qdm12/reprint"
)

type TargetRequest struct {
	Target *float64 `json:"target"`
}

type FanSpeedRequest struct {
	Speed *int `json:"speed"`
}

func registerSnapshotEndpoints(rest *echo.Echo, h *handlers) {
	rest.GET("/snapshot/", h.getSnapshot)
}

func registerChannelEndpoints(rest *echo.Echo, h *handlers) {
	group := rest.Group("/channel")

	group.GET("/", h.getChannels)
	group.GET("/:"+urlParamId+"/", h.getChannel)
	group.POST("/:"+urlParamId+"/target/", h.setTarget)
	group.DELETE("/", h.disableAll)
}

func registerFanEndpoints(rest *echo.Echo, h *handlers) {
	group := rest.Group("/fan")

	group.GET("/", h.getFans)
	group.POST("/:"+urlParamId+"/speed/", h.setFanSpeed)
}

func (h *handlers) getSnapshot(c echo.Context) error {
	data := reprint.This(h.loop.Manager().Snapshot())
	return c.JSONPretty(http.StatusOK, data, indentationChar)
}

// returns a list of all configured channels
func (h *handlers) getChannels(c echo.Context) error {
	data := reprint.This(h.loop.Manager().Snapshot().Channels)
	return c.JSONPretty(http.StatusOK, data, indentationChar)
}

func (h *handlers) getChannel(c echo.Context) error {
	id := c.Param(urlParamId)
	data, exists := h.loop.Manager().Snapshot().Channel(id)
	if !exists {
		return returnNotFound(c, id)
	} else {
		return c.JSONPretty(http.StatusOK, data, indentationChar)
	}
}

func (h *handlers) setTarget(c echo.Context) error {
	id := c.Param(urlParamId)
	var request TargetRequest
	if err := c.Bind(&request); err != nil {
		return returnBadRequest(c, err)
	}
	if request.Target == nil {
		return returnBadRequest(c, errors.New("missing target"))
	}

	manager := h.loop.Manager()
	channelId, err := manager.Lookup(id)
	if err != nil {
		return returnThermalError(c, id, err)
	}
	if err := manager.SetTarget(channelId, *request.Target); err != nil {
		return returnThermalError(c, id, err)
	}

	data, _ := manager.Snapshot().Channel(id)
	return c.JSONPretty(http.StatusOK, data, indentationChar)
}

// switches all heaters off, a running autotune is cancelled
func (h *handlers) disableAll(c echo.Context) error {
	h.jobs.cancelAll()
	h.loop.Manager().DisableAll()
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) getFans(c echo.Context) error {
	data := reprint.This(h.loop.Manager().Snapshot().Fans)
	return c.JSONPretty(http.StatusOK, data, indentationChar)
}

func (h *handlers) setFanSpeed(c echo.Context) error {
	id := c.Param(urlParamId)
	var request FanSpeedRequest
	if err := c.Bind(&request); err != nil {
		return returnBadRequest(c, err)
	}
	if request.Speed == nil || *request.Speed < 0 || *request.Speed > 255 {
		return returnBadRequest(c, errors.New("speed must be between 0 and 255"))
	}

	if err := h.loop.Manager().SetFanSpeed(id, uint8(*request.Speed)); err != nil {
		return returnThermalError(c, id, err)
	}
	return c.NoContent(http.StatusNoContent)
}
