package api

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/markusressel/heat2go/internal/control_loop"
	"github.com/markusressel/heat2go/internal/thermal"
)

type ConstantsResponse struct {
	Channel string                  `json:"channel"`
	Active  control_loop.Constants  `json:"active"`
	Saved   *control_loop.Constants `json:"saved,omitempty"`
}

func registerConstantsEndpoints(rest *echo.Echo, h *handlers) {
	group := rest.Group("/constants")

	group.GET("/:"+urlParamId+"/", h.getConstants)
	group.PUT("/:"+urlParamId+"/", h.setConstants)
	group.DELETE("/:"+urlParamId+"/", h.deleteConstants)
}

func registerFaultEndpoints(rest *echo.Echo, h *handlers) {
	rest.GET("/fault/", h.getFaults)
}

func (h *handlers) getConstants(c echo.Context) error {
	id := c.Param(urlParamId)

	var active control_loop.Constants
	err := h.loop.Do(c.Request().Context(), func(ctx context.Context, m *thermal.Manager) error {
		channelId, err := m.Lookup(id)
		if err != nil {
			return err
		}
		active, err = m.Constants(channelId)
		return err
	})
	if err != nil {
		return returnThermalError(c, id, err)
	}

	response := ConstantsResponse{Channel: id, Active: active}
	if h.persistence != nil {
		saved, err := h.persistence.LoadConstants(id)
		if err == nil {
			response.Saved = &saved
		} else if !errors.Is(err, os.ErrNotExist) {
			return returnError(c, err)
		}
	}
	return c.JSONPretty(http.StatusOK, response, indentationChar)
}

// replaces the active constants of a channel, ?save=true also persists them
func (h *handlers) setConstants(c echo.Context) error {
	id := c.Param(urlParamId)
	var constants control_loop.Constants
	if err := c.Bind(&constants); err != nil {
		return returnBadRequest(c, err)
	}
	if (constants.Pid == nil) == (constants.Mpc == nil) {
		return returnBadRequest(c, errors.New("exactly one of pid and mpc must be given"))
	}

	err := h.loop.Do(c.Request().Context(), func(ctx context.Context, m *thermal.Manager) error {
		channelId, err := m.Lookup(id)
		if err != nil {
			return err
		}
		return m.SetConstants(channelId, constants)
	})
	if errors.Is(err, thermal.ErrUnknownChannel) {
		return returnNotFound(c, id)
	} else if err != nil {
		return returnBadRequest(c, err)
	}

	if c.QueryParam("save") == "true" && h.persistence != nil {
		if err := h.persistence.SaveConstants(id, constants); err != nil {
			return returnError(c, err)
		}
	}
	return c.JSONPretty(http.StatusOK, constants, indentationChar)
}

func (h *handlers) deleteConstants(c echo.Context) error {
	id := c.Param(urlParamId)
	if h.persistence == nil {
		return returnNotFound(c, id)
	}
	if _, err := h.persistence.LoadConstants(id); errors.Is(err, os.ErrNotExist) {
		return returnNotFound(c, id)
	}
	if err := h.persistence.DeleteConstants(id); err != nil {
		return returnError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) getFaults(c echo.Context) error {
	if h.persistence == nil {
		return c.JSONPretty(http.StatusOK, []interface{}{}, indentationChar)
	}
	records, err := h.persistence.LoadFaults()
	if err != nil {
		return returnError(c, err)
	}
	return c.JSONPretty(http.StatusOK, records, indentationChar)
}
