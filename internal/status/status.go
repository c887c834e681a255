package status

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/markusressel/heat2go/internal/persistence"
	"github.com/markusressel/heat2go/internal/statistics"
	"github.com/markusressel/heat2go/internal/thermal"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/util"
)

// Status is the content of the status file.
type Status struct {
	Time    time.Time  `json:"time"`
	Halted  bool       `json:"halted"`
	Last    *Entry     `json:"last,omitempty"`
	Channel []string   `json:"channels,omitempty"`
	Fatal   *Entry     `json:"fatal,omitempty"`
	Counts  ErrorCount `json:"counts"`
}

type Entry struct {
	Time    time.Time `json:"time"`
	Channel string    `json:"channel"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
}

type ErrorCount struct {
	Fatal       int `json:"fatal"`
	Recoverable int `json:"recoverable"`
}

type Options struct {
	// StatusFile is rewritten on every report if set
	StatusFile string
	// Persistence keeps a history of all reports if set
	Persistence persistence.Persistence
	// Notify sends desktop notifications
	Notify bool
	// Now defaults to time.Now
	Now func() time.Time
}

// Reporter informs the user about thermal errors through the log, the
// metrics, a status file, the fault history and desktop notifications.
type Reporter struct {
	options Options

	mu     sync.Mutex
	status Status
}

func NewReporter(options Options) *Reporter {
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Reporter{options: options}
}

func (r *Reporter) ReportFatal(channel string, kind thermal.ErrorKind, err error) {
	if r.options.Notify {
		ui.ErrorAndNotify("Thermal Error", "%s: %s, heaters disabled: %v", channel, kind, err)
	} else {
		ui.Error("%s: %s, heaters disabled: %v", channel, kind, err)
	}
	r.report(channel, kind, err, true)
}

func (r *Reporter) ReportRecoverable(channel string, kind thermal.ErrorKind, err error) {
	ui.Warning("%s: %s: %v", channel, kind, err)
	if r.options.Notify {
		ui.NotifyWarn("Thermal Warning", channel+": "+err.Error())
	}
	r.report(channel, kind, err, false)
}

// Status returns a copy of the current status.
func (r *Reporter) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Reporter) report(channel string, kind thermal.ErrorKind, err error, fatal bool) {
	statistics.RecordFault(channel, kind.String(), fatal)

	now := r.options.Now()
	message := ""
	if err != nil {
		message = err.Error()
	}
	entry := &Entry{Time: now, Channel: channel, Kind: kind.String(), Message: message}

	r.mu.Lock()
	r.status.Time = now
	r.status.Last = entry
	if fatal {
		r.status.Halted = true
		r.status.Counts.Fatal++
		if r.status.Fatal == nil {
			r.status.Fatal = entry
		}
	} else {
		r.status.Counts.Recoverable++
	}
	status := r.status
	r.mu.Unlock()

	if r.options.Persistence != nil {
		record := persistence.FaultRecord{Time: now, Channel: channel, Kind: kind.String(), Message: message, Fatal: fatal}
		if err := r.options.Persistence.AppendFault(record); err != nil {
			ui.Warning("Unable to persist fault record: %v", err)
		}
	}
	if len(r.options.StatusFile) > 0 {
		if err := writeStatus(r.options.StatusFile, status); err != nil {
			ui.Warning("Unable to write status file %s: %v", r.options.StatusFile, err)
		}
	}
}

// WriteInitial writes a clean status file, called once on startup.
func (r *Reporter) WriteInitial() error {
	if len(r.options.StatusFile) <= 0 {
		return nil
	}
	r.mu.Lock()
	r.status.Time = r.options.Now()
	status := r.status
	r.mu.Unlock()
	return writeStatus(r.options.StatusFile, status)
}

func writeStatus(path string, status Status) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(path, data)
}
