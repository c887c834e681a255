package thermal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/markusressel/heat2go/internal/control_loop"
	"github.com/markusressel/heat2go/internal/ui"
)

const (
	DefaultAutotuneCycles = 5
	MinAutotuneCycles     = 3
	MaxAutotuneCycles     = 20

	// autotuneMaxOvershoot is the distance above the target that aborts a tune
	autotuneMaxOvershoot = 20.0
	// autotuneCycleTimeoutMs limits the time spent without progress
	autotuneCycleTimeoutMs = 20 * 60 * 1000
)

// tuner replaces the control loop of a channel while it is tuned.
type tuner interface {
	// step is called once per reading and returns the power to apply
	step(now uint32, current float64) float64
	// result returns whether the tune has finished and the error it failed with
	result() (bool, error)
	// constants returns the tuning result after a successful tune
	constants() control_loop.Constants
}

type tuneResult struct {
	done bool
	err  error
}

func (r *tuneResult) result() (bool, error) {
	return r.done, r.err
}

func (r *tuneResult) fail(err error, format string, args ...any) {
	if r.err == nil && !r.done {
		r.err = fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))
	}
}

func (r *tuneResult) finish() {
	if r.err == nil {
		r.done = true
	}
}

type AutotuneRequest struct {
	Channel ChannelId
	Target  float64
	Cycles  int
	Method  AutotuneMethod
	// Apply replaces the constants of the channel with the result
	Apply bool
	// Save persists the result through the ConstantsStore
	Save bool
}

type AutotuneReport struct {
	Channel   string                 `json:"channel"`
	Method    string                 `json:"method"`
	Target    float64                `json:"target"`
	Constants control_loop.Constants `json:"constants"`
	Duration  time.Duration          `json:"duration"`
	Applied   bool                   `json:"applied"`
	Saved     bool                   `json:"saved"`
}

// Autotune runs a tuning procedure on a channel, pumping Idle until it
// finishes. All heaters are off before and after the tune. Autotune errors
// are recoverable, they never halt the manager.
func (m *Manager) Autotune(ctx context.Context, request AutotuneRequest) (*AutotuneReport, error) {
	ch, err := m.channel(request.Channel)
	if err != nil {
		return nil, err
	}
	if !ch.heated() {
		return nil, fmt.Errorf("%w: %s", ErrNoHeater, ch.name())
	}
	if m.halted.Load() {
		return nil, ErrHalted
	}
	if m.tuning {
		return nil, ErrAutotuneBusy
	}
	if request.Target <= 0 {
		return nil, fmt.Errorf("invalid autotune target: %.1f", request.Target)
	}
	if ch.spec.MaxTemp > 0 && request.Target > ch.spec.MaxTemp-ch.spec.Kind.overshoot() {
		return nil, fmt.Errorf("autotune target %.1f°C is too close to the maximum temperature %.1f°C", request.Target, ch.spec.MaxTemp)
	}

	start := m.hal.NowMs()
	var t tuner
	switch request.Method {
	case AutotunePid:
		if _, ok := ch.loop.(*control_loop.PidControlLoop); !ok && request.Apply {
			return nil, fmt.Errorf("channel %s does not use pid control", ch.name())
		}
		t = newPidTuner(start, request.Target, request.Cycles, ch.maxPower)
	case AutotuneMpc:
		if _, ok := ch.loop.(*control_loop.MpcControlLoop); !ok {
			return nil, fmt.Errorf("channel %s does not use mpc control", ch.name())
		}
		t = newMpcTuner(start, ch.current.Load(), request.Target, ch.spec.Control.Mpc.HeaterPower, ch.maxPower, m.period, ch.fan)
	default:
		return nil, fmt.Errorf("unknown autotune method: %s", request.Method)
	}

	ui.Info("Channel %s: starting %s autotune at %.1f°C", ch.name(), request.Method, request.Target)

	fanSpeeds := make([]uint8, len(m.fans))
	for i, f := range m.fans {
		fanSpeeds[i] = f.FanSpeed()
	}

	m.tuning = true
	m.DisableAll()
	ch.tuner = t
	defer func() {
		ch.tuner = nil
		ch.loop.Reset()
		m.DisableAll()
		for i, f := range m.fans {
			f.setSpeed(fanSpeeds[i])
		}
		m.tuning = false
	}()

	err = m.pumpTuner(ctx, t)
	if errors.Is(err, ErrHalted) {
		return nil, err
	}
	if err != nil {
		kind := autotuneErrorKind(err)
		ui.Warning("Channel %s: %v", ch.name(), err)
		if m.reporter != nil {
			m.reporter.ReportRecoverable(ch.name(), kind, err)
		}
		return nil, err
	}

	report := &AutotuneReport{
		Channel:   ch.name(),
		Method:    request.Method.String(),
		Target:    request.Target,
		Constants: t.constants(),
		Duration:  time.Duration(m.hal.NowMs()-start) * time.Millisecond,
	}
	ui.Success("Channel %s: %s autotune finished after %s", ch.name(), request.Method, report.Duration)

	if request.Apply {
		if err := m.SetConstants(ch.id, report.Constants); err != nil {
			return report, err
		}
		report.Applied = true
	}
	if request.Save && m.store != nil {
		if err := m.store.SaveConstants(ch.name(), report.Constants); err != nil {
			return report, err
		}
		report.Saved = true
	}
	return report, nil
}

func (m *Manager) pumpTuner(ctx context.Context, t tuner) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrAutotuneCancelled, err)
		}
		if m.halted.Load() {
			return ErrHalted
		}

		m.Idle()

		done, err := t.result()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}
