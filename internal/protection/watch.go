package protection

import (
	"time"

	"github.com/markusressel/heat2go/internal/hal"
)

const (
	DefaultWatchPeriod   = 20 * time.Second
	DefaultWatchIncrease = 2.0
)

type WatchConfig struct {
	Period time.Duration
	// Increase is the minimal temperature gain within Period
	Increase float64
	// Hysteresis is added to the distance a target must be away to be watched
	Hysteresis float64
}

// HeaterWatch checks that a heater actually heats after a new target has been set.
type HeaterWatch struct {
	period     uint32
	increase   float64
	hysteresis float64

	active   bool
	failed   bool
	goal     float64
	deadline uint32
}

func NewHeaterWatch(config WatchConfig) *HeaterWatch {
	if config.Period <= 0 {
		config.Period = DefaultWatchPeriod
	}
	if config.Increase <= 0 {
		config.Increase = DefaultWatchIncrease
	}
	return &HeaterWatch{
		period:     uint32(config.Period.Milliseconds()),
		increase:   config.Increase,
		hysteresis: config.Hysteresis,
	}
}

// Start arms the watch if the target is far enough above the current temperature.
func (w *HeaterWatch) Start(now uint32, current float64, target float64) {
	w.failed = false
	if target > 0 && current < target-(w.increase+w.hysteresis+1) {
		w.goal = current + w.increase
		w.deadline = now + w.period
		w.active = true
	} else {
		w.active = false
	}
}

func (w *HeaterWatch) Stop() {
	w.active = false
	w.failed = false
}

func (w *HeaterWatch) Active() bool {
	return w.active
}

// Check reports whether the heater failed to reach the watched temperature in time.
// A failure is reported until the watch is restarted.
func (w *HeaterWatch) Check(now uint32, current float64, target float64) bool {
	if w.failed {
		return true
	}
	if !w.active || hal.Pending(now, w.deadline) {
		return false
	}
	if current < w.goal {
		w.failed = true
		return true
	}
	w.Start(now, current, target)
	return false
}
