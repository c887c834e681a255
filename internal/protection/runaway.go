package protection

import (
	"fmt"
	"time"

	"github.com/markusressel/heat2go/internal/hal"
)

type RunawayState uint8

const (
	Inactive RunawayState = iota
	FirstHeating
	Stable
	Runaway
	Malfunction
)

func (s RunawayState) String() string {
	switch s {
	case Inactive:
		return "Inactive"
	case FirstHeating:
		return "FirstHeating"
	case Stable:
		return "Stable"
	case Runaway:
		return "Runaway"
	case Malfunction:
		return "Malfunction"
	default:
		return fmt.Sprintf("RunawayState(%d)", uint8(s))
	}
}

const (
	// FullFanScale is the fan scaler that leaves the fan speed untouched
	FullFanScale = 128

	DefaultRunawayPeriod     = 40 * time.Second
	DefaultRunawayHysteresis = 4.0
)

type RunawayConfig struct {
	// Hysteresis is the allowed drop below the target in °C
	Hysteresis float64
	// Period is the time the temperature may stay below the band
	Period time.Duration
	// AdaptiveFanSlowing enables the fan scaler hint
	AdaptiveFanSlowing bool
	// Variance enables the malfunction guard if set
	Variance *VarianceMonitor
}

// Verdict is the result of one RunawayMonitor pass.
type Verdict struct {
	State RunawayState
	// Entered is set on the pass that moved the monitor into State
	Entered bool
	// FanScaler is the suggested scale of the part cooling fan, FullFanScale is 100%
	FanScaler uint8
}

// Fault reports whether the verdict requires the heater to be shut down.
func (v Verdict) Fault() bool {
	return v.State == Runaway || v.State == Malfunction
}

// RunawayMonitor supervises one heater. Once the target has been reached the
// temperature must not stay below the hysteresis band for longer than the period.
type RunawayMonitor struct {
	hysteresis float64
	period     uint32
	adaptive   bool
	variance   *VarianceMonitor

	state    RunawayState
	target   float64
	deadline uint32
}

func NewRunawayMonitor(config RunawayConfig) *RunawayMonitor {
	if config.Period <= 0 {
		config.Period = DefaultRunawayPeriod
	}
	return &RunawayMonitor{
		hysteresis: config.Hysteresis,
		period:     uint32(config.Period.Milliseconds()),
		adaptive:   config.AdaptiveFanSlowing,
		variance:   config.Variance,
	}
}

func (m *RunawayMonitor) State() RunawayState {
	return m.state
}

// Run advances the monitor by one pass. idle signals an expired heater idle timeout,
// powered whether the controller currently demands heater power.
func (m *RunawayMonitor) Run(now uint32, current float64, target float64, idle bool, powered bool) Verdict {
	previous := m.state

	if idle {
		m.state = Inactive
		m.target = 0
	} else if target != m.target {
		m.target = target
		if target > 0 {
			m.state = FirstHeating
		} else {
			m.state = Inactive
		}
		if m.variance != nil {
			m.variance.Reset()
		}
	}

	verdict := Verdict{FanScaler: FullFanScale}

	switch m.state {
	case Inactive, Runaway:
	case FirstHeating:
		if current < m.target {
			break
		}
		m.state = Stable
		fallthrough
	case Stable:
		verdict.FanScaler = m.fanScaler(current)
		if m.variance != nil && m.variance.Observe(current, powered) {
			m.state = Malfunction
			break
		}
		if current >= m.target-m.hysteresis {
			m.deadline = now + m.period
			break
		}
		if hal.Pending(now, m.deadline) {
			break
		}
		m.state = Runaway
	case Malfunction:
		if !m.variance.Observe(current, powered) {
			m.state = Stable
			m.deadline = now + m.period
		}
	}

	verdict.State = m.state
	verdict.Entered = m.state != previous
	return verdict
}

// fanScaler slows the part cooling fan the further the temperature drops below the target.
func (m *RunawayMonitor) fanScaler(current float64) uint8 {
	if !m.adaptive {
		return FullFanScale
	}
	switch {
	case current >= m.target-m.hysteresis*0.25:
		return FullFanScale
	case current >= m.target-m.hysteresis*0.3335:
		return 96
	case current >= m.target-m.hysteresis*0.5:
		return 64
	case current >= m.target-m.hysteresis*0.8:
		return 32
	default:
		return 0
	}
}
