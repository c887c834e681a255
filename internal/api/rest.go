package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/markusressel/heat2go/internal/persistence"
	"github.com/markusressel/heat2go/internal/thermal"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	urlParamId      = "id"
	indentationChar = "  "
)

type (
	Result struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}
)

// Backend is what the REST service operates on.
type Backend struct {
	Loop        *thermal.Loop
	Persistence persistence.Persistence
}

type handlers struct {
	loop        *thermal.Loop
	persistence persistence.Persistence
	jobs        *jobRegistry
}

func CreateRestService(backend Backend) *echo.Echo {
	echoRest := echo.New()
	echoRest.HideBanner = true

	h := &handlers{
		loop:        backend.Loop,
		persistence: backend.Persistence,
		jobs:        newJobRegistry(),
	}

	registry := prometheus.NewRegistry()

	// Root level middleware
	echoRest.Pre(middleware.AddTrailingSlash())

	echoRest.Use(middleware.Secure())

	echoRest.Use(middleware.Logger())
	echoRest.Use(middleware.Recover())
	echoRest.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "heat2go",
		Subsystem:  "api",
		Registerer: registry,
	}))

	echoRest.GET("/alive/", isAlive)
	echoRest.GET("/metrics/", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: prometheus.Gatherers{registry, prometheus.DefaultGatherer},
	}))

	registerSnapshotEndpoints(echoRest, h)
	registerChannelEndpoints(echoRest, h)
	registerFanEndpoints(echoRest, h)
	registerConstantsEndpoints(echoRest, h)
	registerFaultEndpoints(echoRest, h)
	registerAutotuneEndpoints(echoRest, h)
	registerWebsocketEndpoint(echoRest, h)

	return echoRest
}

// returns an empty "ok" answer
func isAlive(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// return a "not found" message
func returnNotFound(c echo.Context, id string) (err error) {
	return c.JSONPretty(http.StatusNotFound, &Result{
		Name:    "Not found",
		Message: "No item with id '" + id + "' found",
	}, indentationChar)
}

func returnBadRequest(c echo.Context, e error) (err error) {
	return c.JSONPretty(http.StatusBadRequest, &Result{
		Name:    "Bad Request",
		Message: e.Error(),
	}, indentationChar)
}

func returnConflict(c echo.Context, e error) (err error) {
	return c.JSONPretty(http.StatusConflict, &Result{
		Name:    "Conflict",
		Message: e.Error(),
	}, indentationChar)
}

// return the error message of an error
func returnError(c echo.Context, e error) (err error) {
	return c.JSONPretty(http.StatusInternalServerError, &Result{
		Name:    "Unknown Error",
		Message: e.Error(),
	}, indentationChar)
}

// returnThermalError maps errors of the thermal manager to a response
func returnThermalError(c echo.Context, id string, e error) error {
	switch {
	case errors.Is(e, thermal.ErrUnknownChannel), errors.Is(e, thermal.ErrUnknownFan):
		return returnNotFound(c, id)
	case errors.Is(e, thermal.ErrHalted), errors.Is(e, thermal.ErrAutotuneBusy):
		return returnConflict(c, e)
	case errors.Is(e, thermal.ErrNoHeater):
		return returnBadRequest(c, e)
	default:
		return returnError(c, e)
	}
}
