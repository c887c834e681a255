package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/markusressel/heat2go/internal/thermal"
	"github.com/markusressel/heat2go/internal/ui"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/qdm12/reprint"
)

type JobState string

const (
	JobRunning   JobState = "running"
	JobFinished  JobState = "finished"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

type AutotuneJobRequest struct {
	Channel string  `json:"channel"`
	Method  string  `json:"method"`
	Target  float64 `json:"target"`
	Cycles  int     `json:"cycles"`
	Apply   bool    `json:"apply"`
	Save    bool    `json:"save"`
}

type AutotuneJob struct {
	Id       string                  `json:"id"`
	Request  AutotuneJobRequest      `json:"request"`
	State    JobState                `json:"state"`
	Started  time.Time               `json:"started"`
	Finished *time.Time              `json:"finished,omitempty"`
	Report   *thermal.AutotuneReport `json:"report,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// jobRegistry keeps all autotune jobs of the running daemon.
type jobRegistry struct {
	jobs    cmap.ConcurrentMap[string, *AutotuneJob]
	cancels cmap.ConcurrentMap[string, context.CancelFunc]
	nextId  atomic.Int64
	// mu guards the job fields written by the job goroutine
	mu sync.Mutex
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{
		jobs:    cmap.New[*AutotuneJob](),
		cancels: cmap.New[context.CancelFunc](),
	}
}

// start registers job unless another job is still running.
func (r *jobRegistry) start(job *AutotuneJob, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.jobs.Items() {
		if other.State == JobRunning {
			return false
		}
	}
	job.Id = fmt.Sprintf("%d", r.nextId.Add(1))
	r.jobs.Set(job.Id, job)
	r.cancels.Set(job.Id, cancel)
	return true
}

// cancelAll cancels every running job.
func (r *jobRegistry) cancelAll() {
	for _, cancel := range r.cancels.Items() {
		cancel()
	}
}

// get returns a copy of the job with the given id
func (r *jobRegistry) get(id string) (AutotuneJob, bool) {
	job, ok := r.jobs.Get(id)
	if !ok {
		return AutotuneJob{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return reprint.This(*job).(AutotuneJob), true
}

func (r *jobRegistry) list() []AutotuneJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []AutotuneJob
	for _, id := range r.jobs.Keys() {
		if job, ok := r.jobs.Get(id); ok {
			result = append(result, reprint.This(*job).(AutotuneJob))
		}
	}
	return result
}

func (r *jobRegistry) finish(job *AutotuneJob, report *thermal.AutotuneReport, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	job.Finished = &now
	job.Report = report
	switch {
	case err == nil:
		job.State = JobFinished
	case errors.Is(err, context.Canceled), errors.Is(err, thermal.ErrAutotuneCancelled):
		job.State = JobCancelled
		job.Error = err.Error()
	default:
		job.State = JobFailed
		job.Error = err.Error()
	}
}

func registerAutotuneEndpoints(rest *echo.Echo, h *handlers) {
	group := rest.Group("/autotune")

	group.GET("/", h.getAutotuneJobs)
	group.GET("/:"+urlParamId+"/", h.getAutotuneJob)
	group.POST("/", h.startAutotune)
	group.DELETE("/:"+urlParamId+"/", h.cancelAutotune)
}

func (h *handlers) getAutotuneJobs(c echo.Context) error {
	return c.JSONPretty(http.StatusOK, h.jobs.list(), indentationChar)
}

func (h *handlers) getAutotuneJob(c echo.Context) error {
	id := c.Param(urlParamId)
	job, exists := h.jobs.get(id)
	if !exists {
		return returnNotFound(c, id)
	}
	return c.JSONPretty(http.StatusOK, job, indentationChar)
}

// starts an autotune job in the background and returns it
func (h *handlers) startAutotune(c echo.Context) error {
	var request AutotuneJobRequest
	if err := c.Bind(&request); err != nil {
		return returnBadRequest(c, err)
	}
	method, err := thermal.ParseAutotuneMethod(request.Method)
	if err != nil {
		return returnBadRequest(c, err)
	}
	channelId, err := h.loop.Manager().Lookup(request.Channel)
	if err != nil {
		return returnThermalError(c, request.Channel, err)
	}
	job := &AutotuneJob{
		Request: request,
		State:   JobRunning,
		Started: time.Now(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	if !h.jobs.start(job, cancel) {
		cancel()
		return returnConflict(c, thermal.ErrAutotuneBusy)
	}

	go func() {
		defer cancel()
		report, err := h.loop.Autotune(ctx, thermal.AutotuneRequest{
			Channel: channelId,
			Target:  request.Target,
			Cycles:  request.Cycles,
			Method:  method,
			Apply:   request.Apply,
			Save:    request.Save,
		})
		if err != nil {
			ui.Warning("Autotune job %s failed: %v", job.Id, err)
		}
		h.jobs.finish(job, report, err)
		h.jobs.cancels.Remove(job.Id)
	}()

	data, _ := h.jobs.get(job.Id)
	return c.JSONPretty(http.StatusAccepted, data, indentationChar)
}

func (h *handlers) cancelAutotune(c echo.Context) error {
	id := c.Param(urlParamId)
	if _, exists := h.jobs.get(id); !exists {
		return returnNotFound(c, id)
	}
	if cancel, ok := h.jobs.cancels.Get(id); ok {
		cancel()
	}
	return c.NoContent(http.StatusAccepted)
}
